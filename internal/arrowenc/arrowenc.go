// Package arrowenc builds the Arrow schema for a /data response and
// streams record batches over an IPC stream writer (C7).
//
// Coordinate arrays for the selected dimensions have, in general, a
// different length from each other and from the flattened variable
// columns (e.g. lat has 3 samples, lon has 4, but a lat*lon variable
// column flattens to 12 values) — and a single Arrow record batch
// requires every column in it to share one row count, so the dimension
// coordinates can't ride alongside the flattened variable data as
// same-named columns in that batch. WriteStream instead emits each
// dimension coordinate as its own single-column IPC stream (schema
// message, one record batch, end-of-stream marker) ahead of the main
// variable-data stream, all concatenated on the same io.Writer; the
// coordinate values are also still mirrored into schema-level JSON
// metadata (one `coord:<name>` key per dimension) so a reader that only
// looks at the variable-data stream's schema can recover them without
// re-parsing the leading coordinate streams. The Arrow Flight path
// (BuildSchemaAndRecords, used by package flightsvc) is bound to one
// schema per flight.NewRecordWriter call and keeps the metadata-only
// representation.
package arrowenc

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"

	"gridserver/internal/apierr"
)

// DefaultBatchRows bounds the row count of each streamed record batch so
// server memory usage tracks the batch size, not the hyperslab size.
const DefaultBatchRows = 10000

// DimCoord is one selected dimension's coordinate values, in layout order.
type DimCoord struct {
	Name   string
	Values []float64
}

// VarColumn is one requested variable's flattened hyperslab, ready to
// stream.
type VarColumn struct {
	Name       string
	Shape      []int
	Dimensions []string // layout order
	Data       []float32

	// Pass-through attributes, surfaced as field metadata only (Arrow
	// branch does not unpack scale/offset/fill — see SPEC_FULL.md §4.5a).
	HasFillValue bool
	FillValue    float32
	HasScale     bool
	ScaleFactor  float64
	HasOffset    bool
	AddOffset    float64

	// Attrs echoes the source variable's attributes for the JSON metadata
	// branch (spec.md §4.5); the Arrow branch carries them as field
	// metadata above instead.
	Attrs map[string]any
}

// BuildSchema constructs the Arrow schema: one Float32 field per
// variable (with shape/dimensions/attr metadata), schema-level metadata
// carrying each selected dimension's coordinate values as JSON.
func BuildSchema(dims []DimCoord, vars []VarColumn) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(vars))
	for i, v := range vars {
		shapeJSON, err := json.Marshal(v.Shape)
		if err != nil {
			return nil, err
		}
		dimsJSON, err := json.Marshal(v.Dimensions)
		if err != nil {
			return nil, err
		}
		keys := []string{"shape", "dimensions"}
		vals := []string{string(shapeJSON), string(dimsJSON)}
		if v.HasFillValue {
			keys = append(keys, "_FillValue")
			vals = append(vals, fmt.Sprintf("%g", v.FillValue))
		}
		if v.HasScale {
			keys = append(keys, "scale_factor")
			vals = append(vals, fmt.Sprintf("%g", v.ScaleFactor))
		}
		if v.HasOffset {
			keys = append(keys, "add_offset")
			vals = append(vals, fmt.Sprintf("%g", v.AddOffset))
		}
		fields[i] = arrow.Field{
			Name:     v.Name,
			Type:     arrow.PrimitiveTypes.Float32,
			Nullable: false,
			Metadata: arrow.NewMetadata(keys, vals),
		}
	}

	schemaKeys := []string{"dimensions"}
	dimNames := make([]string, len(dims))
	for i, d := range dims {
		dimNames[i] = d.Name
	}
	dimNamesJSON, _ := json.Marshal(dimNames)
	schemaVals := []string{string(dimNamesJSON)}
	for _, d := range dims {
		coordJSON, err := json.Marshal(d.Values)
		if err != nil {
			return nil, err
		}
		schemaKeys = append(schemaKeys, "coord:"+d.Name)
		schemaVals = append(schemaVals, string(coordJSON))
	}
	meta := arrow.NewMetadata(schemaKeys, schemaVals)
	return arrow.NewSchema(fields, &meta), nil
}

// validateVars checks that every variable shares one flattened length, the
// precondition a single-row-count-per-batch Arrow stream requires.
func validateVars(vars []VarColumn) (int, *apierr.Error) {
	if len(vars) == 0 {
		return 0, apierr.InvalidParameter("no variables requested")
	}
	total := len(vars[0].Data)
	for _, v := range vars {
		if len(v.Data) != total {
			return 0, apierr.InvalidParameter(fmt.Sprintf("variable %s has %d flattened values, expected %d (all requested variables must share the same resolved shape)", v.Name, len(v.Data), total))
		}
	}
	return total, nil
}

// RecordWriter is satisfied by both an ipc.Writer (the HTTP /data stream)
// and an Arrow Flight record writer (the DoGet stream), letting
// WriteRecords serve both transports from the same batching logic.
type RecordWriter interface {
	Write(arrow.Record) error
}

// WriteRecords chunks vars' flattened columns into batchRows-sized Arrow
// record batches against schema and writes each one to w.
func WriteRecords(w RecordWriter, mem memory.Allocator, schema *arrow.Schema, vars []VarColumn, batchRows int) *apierr.Error {
	if batchRows <= 0 {
		batchRows = DefaultBatchRows
	}
	total, verr := validateVars(vars)
	if verr != nil {
		return verr
	}
	if total == 0 {
		return nil
	}

	for start := 0; start < total; start += batchRows {
		end := start + batchRows
		if end > total {
			end = total
		}
		rb := array.NewRecordBuilder(mem, schema)
		for i, v := range vars {
			fb := rb.Field(i).(*array.Float32Builder)
			fb.AppendValues(v.Data[start:end], nil)
		}
		rec := rb.NewRecord()
		werr := w.Write(rec)
		rec.Release()
		rb.Release()
		if werr != nil {
			return apierr.IO("failed writing arrow record batch: " + werr.Error())
		}
	}
	return nil
}

// coordSchema is the one-field Float64 schema for a single dimension's
// standalone coordinate stream.
func coordSchema(d DimCoord) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: d.Name, Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	}, nil)
}

// writeCoordBatch emits one complete, self-contained IPC stream (schema
// message, single record batch, end-of-stream marker) carrying d's
// values, onto w.
func writeCoordBatch(w io.Writer, mem memory.Allocator, d DimCoord) *apierr.Error {
	schema := coordSchema(d)
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	defer writer.Close()

	rb := array.NewRecordBuilder(mem, schema)
	rb.Field(0).(*array.Float64Builder).AppendValues(d.Values, nil)
	rec := rb.NewRecord()
	werr := writer.Write(rec)
	rec.Release()
	rb.Release()
	if werr != nil {
		return apierr.IO("failed writing coordinate stream for " + d.Name + ": " + werr.Error())
	}
	return nil
}

// WriteStream streams one coordinate IPC stream per dimension (spec.md
// §4.5's coordinate columns), then the variable-data schema followed by
// bounded-size record batches and the end-of-stream marker, flushing
// chunk by chunk to w. All vars must share the same flattened length,
// since a record batch cannot mix row counts; a request that violates
// this is rejected with InvalidParameter before anything is written.
func WriteStream(w io.Writer, dims []DimCoord, vars []VarColumn, batchRows int) *apierr.Error {
	if _, verr := validateVars(vars); verr != nil {
		return verr
	}

	mem := memory.NewGoAllocator()
	for _, d := range dims {
		if verr := writeCoordBatch(w, mem, d); verr != nil {
			return verr
		}
	}

	schema, err := BuildSchema(dims, vars)
	if err != nil {
		return apierr.Conversion("failed to build arrow schema: " + err.Error())
	}

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	defer writer.Close()

	return WriteRecords(writer, mem, schema, vars, batchRows)
}

// BuildSchemaAndRecords is a convenience used by transports (like Arrow
// Flight) that need the schema up front before they can open their own
// record writer.
func BuildSchemaAndRecords(dims []DimCoord, vars []VarColumn) (*arrow.Schema, *apierr.Error) {
	if _, verr := validateVars(vars); verr != nil {
		return nil, verr
	}
	schema, err := BuildSchema(dims, vars)
	if err != nil {
		return nil, apierr.Conversion("failed to build arrow schema: " + err.Error())
	}
	return schema, nil
}

// JSONMetadata is the `metadata` half of the optional JSON response
// format: an echo of the query plus shape/dimensions/attributes.
type JSONMetadata struct {
	Query      map[string]string          `json:"query"`
	Shape      []int                      `json:"shape"`
	Dimensions []string                   `json:"dimensions"`
	Attributes map[string]map[string]any  `json:"attributes,omitempty"`
	Coords     map[string][]float64       `json:"coords"`
}

// Unpack applies _FillValue -> null, then scale_factor/add_offset, to one
// raw on-disk value, per spec.md §4.5's JSON-branch rule.
func Unpack(raw float32, v VarColumn) any {
	if v.HasFillValue && raw == v.FillValue {
		return nil
	}
	val := float64(raw)
	if v.HasScale {
		val *= v.ScaleFactor
	}
	if v.HasOffset {
		val += v.AddOffset
	}
	return val
}

// WriteJSONStream streams the alternate JSON representation: a prefix
// (metadata + opening of "data"), one numeric segment per variable, then
// a closing suffix. Writes are flushed incrementally so server memory
// usage does not track the full payload size.
func WriteJSONStream(w io.Writer, meta JSONMetadata, vars []VarColumn) *apierr.Error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return apierr.Conversion("failed to marshal metadata: " + err.Error())
	}
	if _, werr := fmt.Fprintf(w, `{"metadata":%s,"data":{`, metaJSON); werr != nil {
		return apierr.IO(werr.Error())
	}

	for vi, v := range vars {
		if vi > 0 {
			if _, werr := io.WriteString(w, ","); werr != nil {
				return apierr.IO(werr.Error())
			}
		}
		nameJSON, _ := json.Marshal(v.Name)
		if _, werr := fmt.Fprintf(w, "%s:[", nameJSON); werr != nil {
			return apierr.IO(werr.Error())
		}
		for i, raw := range v.Data {
			if i > 0 {
				if _, werr := io.WriteString(w, ","); werr != nil {
					return apierr.IO(werr.Error())
				}
			}
			val := Unpack(raw, v)
			var enc []byte
			if val == nil {
				enc = []byte("null")
			} else {
				enc, _ = json.Marshal(val)
			}
			if _, werr := w.Write(enc); werr != nil {
				return apierr.IO(werr.Error())
			}
		}
		if _, werr := io.WriteString(w, "]"); werr != nil {
			return apierr.IO(werr.Error())
		}
	}

	if _, werr := io.WriteString(w, "}}"); werr != nil {
		return apierr.IO(werr.Error())
	}
	return nil
}
