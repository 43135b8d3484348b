// Package flightsvc exposes the same hyperslab extraction /data serves
// over HTTP as an Arrow Flight DoGet endpoint (C17), for clients that
// want native Arrow-over-gRPC instead of a chunked HTTP stream. A
// ticket is simply the request's canonicalized query string — the same
// selector/layout/vars grammar selector.Parse already accepts — so both
// transports share one resolution path (package dataquery).
package flightsvc

import (
	"net/url"

	"github.com/apache/arrow/go/v15/arrow/flight"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"

	"gridserver/internal/alias"
	"gridserver/internal/arrowenc"
	"gridserver/internal/dataquery"
	"gridserver/internal/dataset"
)

// Server implements flight.FlightServiceServer's DoGet; every other
// method falls back to flight.BaseFlightServer's unimplemented stubs.
type Server struct {
	flight.BaseFlightServer

	Store     *dataset.Store
	Alias     *alias.Table
	MaxPoints int64
	BatchRows int
}

// NewServer returns a ready-to-register Flight service.
func NewServer(store *dataset.Store, table *alias.Table, maxPoints int64, batchRows int) *Server {
	if batchRows <= 0 {
		batchRows = arrowenc.DefaultBatchRows
	}
	return &Server{Store: store, Alias: table, MaxPoints: maxPoints, BatchRows: batchRows}
}

// DoGet decodes tkt.Ticket as a URL query string (vars, layout, and
// per-dimension selectors, exactly as /data accepts them), resolves it
// through package dataquery, and streams the result as Arrow record
// batches.
func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	query, err := url.ParseQuery(string(tkt.GetTicket()))
	if err != nil {
		return err
	}

	var varNames []string
	if raw := query.Get("vars"); raw != "" {
		varNames = splitComma(raw)
	}
	var layout []string
	if raw := query.Get("layout"); raw != "" {
		layout = splitComma(raw)
	}

	result, aerr := dataquery.Resolve(s.Store, s.Alias, dataquery.Request{
		VarNames: varNames,
		Layout:   layout,
		Query:    query,
	}, s.MaxPoints)
	if aerr != nil {
		return aerr
	}

	schema, aerr := arrowenc.BuildSchemaAndRecords(result.Dims, result.Cols)
	if aerr != nil {
		return aerr
	}

	mem := memory.NewGoAllocator()
	writer := flight.NewRecordWriter(stream, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	defer writer.Close()

	if werr := arrowenc.WriteRecords(writer, mem, schema, result.Cols, s.BatchRows); werr != nil {
		return werr
	}
	return nil
}

func splitComma(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
