package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	base := time.Unix(1_700_000_000, 123_456_000)
	return []Record{
		{Timestamp: base, RunID: "r1", ModelID: "coder-a", Identity: "u1", Objective: "coding", Status: "ok", Latency: 100 * time.Millisecond, ResponseLength: 42, EstimatedCost: 0.0042},
		{Timestamp: base.Add(time.Second), RunID: "r1", ModelID: "coder-b", Identity: "u1", Objective: "coding", Status: "timeout", Latency: 2 * time.Second},
		{Timestamp: base.Add(2 * time.Minute), RunID: "r2", ModelID: "fast-a", Identity: "u2", Objective: "fast_response", Status: "ok", Latency: 50 * time.Millisecond, ResponseLength: 7, EstimatedCost: 0.0001},
	}
}

func exerciseSink(t *testing.T, sink Sink) {
	t.Helper()
	ctx := context.Background()
	in := sampleRecords()
	require.NoError(t, sink.Write(ctx, in[:2]))
	require.NoError(t, sink.Write(ctx, in[2:]))

	all, err := sink.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := range in {
		assert.True(t, in[i].Timestamp.Equal(all[i].Timestamp), "timestamp %d", i)
		all[i].Timestamp = in[i].Timestamp
	}
	assert.Equal(t, in, all)

	run, err := sink.Query(ctx, Filter{RunID: "r1"})
	require.NoError(t, err)
	assert.Len(t, run, 2)

	window, err := sink.Query(ctx, Filter{Since: in[1].Timestamp, Until: in[2].Timestamp})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "coder-b", window[0].ModelID)

	byModel, err := sink.Query(ctx, Filter{ModelID: "FAST-A", Identity: "u2"})
	require.NoError(t, err)
	assert.Len(t, byModel, 1)

	limited, err := sink.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, sink.Close())
}

func TestMemorySink(t *testing.T) {
	exerciseSink(t, NewMemorySink())
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "metrics.csv")
	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	exerciseSink(t, sink)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "timestamp,model,identity,latency,response_length")
	assert.Contains(t, string(raw), "1700000000.123456,coder-a,u1,0.100000,42")
}

func TestCSVSink_ReadsLegacyFourColumnRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	legacy := "timestamp,model,latency,response_length\n1700000000,llama3,0.25,120\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	sink, err := NewCSVSink(path)
	require.NoError(t, err)
	got, err := sink.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "llama3", got[0].ModelID)
	assert.Equal(t, 250*time.Millisecond, got[0].Latency)
	assert.Equal(t, 120, got[0].ResponseLength)
}

func TestCSVSink_MissingFileIsEmpty(t *testing.T) {
	sink, err := NewCSVSink(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	got, err := sink.Query(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteSink(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	exerciseSink(t, sink)
}

func TestPostgresSink(t *testing.T) {
	dsn := os.Getenv("METRICS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("METRICS_TEST_PG_DSN not set")
	}
	sink, err := NewPostgresSink(context.Background(), dsn)
	require.NoError(t, err)
	_, err = sink.db.Exec("TRUNCATE metric_records")
	require.NoError(t, err)
	exerciseSink(t, sink)
}
