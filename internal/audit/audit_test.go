package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStampsEventIDAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usage.parquet")

	r := NewAsyncRecorder(WithParquetFile(path))
	r.Record(UsageEvent{Endpoint: "/data"})
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	rows, err := parquet.Read[UsageEvent](f, info.Size())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].EventID)
	assert.NotZero(t, rows[0].Timestamp)
}

func TestRecordNeverBlocksWhenBufferIsFull(t *testing.T) {
	r := &AsyncRecorder{eventCh: make(chan UsageEvent, 1), doneCh: make(chan struct{})}
	r.eventCh <- UsageEvent{Endpoint: "/data"} // fill the buffer without starting the worker

	done := make(chan struct{})
	go func() {
		r.Record(UsageEvent{Endpoint: "/point"}) // must not block despite the full buffer
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}

func TestFlushWritesParquetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usage.parquet")

	r := NewAsyncRecorder(WithParquetFile(path))
	r.Record(UsageEvent{RequestID: "r1", Endpoint: "/data", Variables: "temp", PointCount: 10, DurationMS: 1.5})
	r.Record(UsageEvent{RequestID: "r2", Endpoint: "/point", Variables: "temp;salinity", PointCount: 1, DurationMS: 0.5})
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	rows, err := parquet.Read[UsageEvent](f, info.Size())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r1", rows[0].RequestID)
	assert.Equal(t, "/point", rows[1].Endpoint)
}

func TestAppendParquetPreservesExistingRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usage.parquet")

	require.NoError(t, appendParquet(path, []UsageEvent{{RequestID: "a"}}))
	require.NoError(t, appendParquet(path, []UsageEvent{{RequestID: "b"}}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	rows, err := parquet.Read[UsageEvent](f, info.Size())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].RequestID)
	assert.Equal(t, "b", rows[1].RequestID)
}
