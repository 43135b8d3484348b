// Package audit records one UsageEvent per served query-handler request:
// a bounded, non-blocking channel absorbs bursts without slowing request
// handling, a background worker batches events and fans them out to
// Kafka, and periodically flushes the same batches to a local Parquet
// file for durable, queryable usage history (C14).
package audit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/segmentio/kafka-go"
)

// UsageEvent is one immutable record of a served request.
type UsageEvent struct {
	EventID    string  `parquet:"event_id"`
	Timestamp  int64   `parquet:"timestamp"` // unix nanos
	RequestID  string  `parquet:"request_id"`
	Endpoint   string  `parquet:"endpoint"` // /metadata|/point|/data|/image
	Variables  string  `parquet:"variables"` // comma-joined
	PointCount int64   `parquet:"point_count"`
	DurationMS float64 `parquet:"duration_ms"`
	Error      string  `parquet:"error"` // empty on success
}

// Recorder accepts usage events from request handlers.
type Recorder interface {
	Record(evt UsageEvent)
	Close() error
}

// AsyncRecorder buffers events in a channel and flushes batches on a
// worker goroutine; Record never blocks the calling request.
type AsyncRecorder struct {
	eventCh chan UsageEvent
	doneCh  chan struct{}
	wg      sync.WaitGroup

	kafkaWriter *kafka.Writer
	parquetPath string
}

// Option configures an AsyncRecorder's optional sinks.
type Option func(*AsyncRecorder)

// WithKafka fans out every flushed batch to brokers/topic, best-effort.
func WithKafka(brokers []string, topic string) Option {
	return func(r *AsyncRecorder) {
		if len(brokers) == 0 || topic == "" {
			return
		}
		r.kafkaWriter = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Compression:  kafka.Snappy,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				fmt.Fprintf(os.Stderr, "[audit-kafka-error] "+msg+"\n", args...)
			}),
		}
	}
}

// WithParquetFile periodically appends flushed batches to path as
// Parquet row groups.
func WithParquetFile(path string) Option {
	return func(r *AsyncRecorder) {
		r.parquetPath = path
	}
}

// NewAsyncRecorder starts the background worker and returns a ready
// Recorder; Close must be called to flush pending events on shutdown.
func NewAsyncRecorder(opts ...Option) *AsyncRecorder {
	r := &AsyncRecorder{
		eventCh: make(chan UsageEvent, 10000),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues evt, dropping it if the buffer is full rather than
// blocking the request that produced it.
func (r *AsyncRecorder) Record(evt UsageEvent) {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UTC().UnixNano()
	}
	select {
	case r.eventCh <- evt:
	default:
		fmt.Fprintf(os.Stderr, "[audit] buffer full, dropped event %s\n", evt.EventID)
	}
}

func (r *AsyncRecorder) worker() {
	defer r.wg.Done()

	batch := make([]UsageEvent, 0, 100)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	flushAndReset := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-r.eventCh:
			batch = append(batch, evt)
			if len(batch) >= 100 {
				flushAndReset()
			}
		case <-ticker.C:
			flushAndReset()
		case <-r.doneCh:
			// drain events enqueued before Close so none are lost
			for {
				select {
				case evt := <-r.eventCh:
					batch = append(batch, evt)
				default:
					flushAndReset()
					return
				}
			}
		}
	}
}

func (r *AsyncRecorder) flush(batch []UsageEvent) {
	if r.kafkaWriter != nil {
		msgs := make([]kafka.Message, len(batch))
		for i, evt := range batch {
			msgs[i] = kafka.Message{
				Key:   []byte(evt.RequestID),
				Value: []byte(evt.Endpoint + " " + evt.Variables),
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.kafkaWriter.WriteMessages(ctx, msgs...); err != nil {
			fmt.Fprintf(os.Stderr, "[audit-kafka] write failed: %v\n", err)
		}
		cancel()
	}

	if r.parquetPath != "" {
		if err := appendParquet(r.parquetPath, batch); err != nil {
			fmt.Fprintf(os.Stderr, "[audit-parquet] append failed: %v\n", err)
		}
	}
}

// appendParquet writes batch as a new Parquet file (or, when the file
// exists, rewrites it with its prior rows followed by batch) since parquet-go's GenericWriter does not
// support appending to an existing file's row groups; it is opened,
// written, and closed once per flush.
func appendParquet(path string, batch []UsageEvent) error {
	var existing []UsageEvent
	if f, err := os.Open(path); err == nil {
		existing, _ = parquet.Read[UsageEvent](f, mustSize(f))
		_ = f.Close()
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[UsageEvent](f)
	if len(existing) > 0 {
		if _, err := w.Write(existing); err != nil {
			_ = w.Close()
			_ = f.Close()
			return err
		}
	}
	if _, err := w.Write(batch); err != nil {
		_ = w.Close()
		_ = f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func mustSize(f *os.File) int64 {
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Close stops the worker, flushing any buffered events first.
func (r *AsyncRecorder) Close() error {
	close(r.doneCh)
	r.wg.Wait()
	if r.kafkaWriter != nil {
		return r.kafkaWriter.Close()
	}
	return nil
}
