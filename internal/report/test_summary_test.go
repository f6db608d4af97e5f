package report

import (
	"testing"
	"time"

	"llmnexus/internal/metrics"
	"llmnexus/internal/tester"
)

func TestSummarize_ExactAverages(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	records := []metrics.Record{
		{Timestamp: base, ModelID: "A", Status: "ok", Latency: 100 * time.Millisecond, ResponseLength: 10, EstimatedCost: 0.001},
		{Timestamp: base.Add(time.Second), ModelID: "A", Status: "ok", Latency: 200 * time.Millisecond, ResponseLength: 20, EstimatedCost: 0.002},
		{Timestamp: base.Add(2 * time.Second), ModelID: "A", Status: "ok", Latency: 300 * time.Millisecond, ResponseLength: 33, EstimatedCost: 0.003},
		{Timestamp: base.Add(3 * time.Second), ModelID: "B", Status: "timeout", Latency: 2 * time.Second},
	}
	s := Summarize(records)

	tester.Eq(t, s.RequestCount, 4)
	tester.Eq(t, s.PerModelAvgLatency["A"], 200*time.Millisecond)
	tester.Eq(t, s.PerModelAvgLatency["B"], 2*time.Second)
	tester.Eq(t, s.PerModelAvgResponseLength["A"], 21.0)
	tester.Eq(t, s.PerModelAvgResponseLength["B"], 0.0)
	tester.True(t, s.TotalEstimatedCost > 0.00599999 && s.TotalEstimatedCost < 0.00600001)

	tester.Eq(t, len(s.Models), 2)
	tester.Eq(t, s.Models[0].ModelID, "A")
	tester.Eq(t, s.Models[0].Ok, 3)
	tester.Eq(t, s.Models[1].Timeouts, 1)
	tester.Eq(t, s.From, base)
	tester.Eq(t, s.To, base.Add(3*time.Second))
	tester.Eq(t, s.ModelIDs(), []string{"A", "B"})
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	tester.Eq(t, s.RequestCount, 0)
	tester.Eq(t, s.TotalEstimatedCost, 0.0)
	tester.Eq(t, len(s.PerModelAvgLatency), 0)
}

func TestSummarize_SameInputSameOutput(t *testing.T) {
	records := []metrics.Record{
		{ModelID: "x", Latency: time.Second, ResponseLength: 3},
		{ModelID: "y", Latency: 3 * time.Second, ResponseLength: 5},
	}
	tester.Eq(t, Summarize(records), Summarize(records))
}

func TestTimeline_PerMinuteWithGaps(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	records := []metrics.Record{
		{Timestamp: base.Add(5 * time.Second)},
		{Timestamp: base.Add(59 * time.Second), EstimatedCost: 1},
		{Timestamp: base.Add(2*time.Minute + time.Second)},
	}
	got := Timeline(records, time.Minute)
	tester.Eq(t, len(got), 3)
	tester.Eq(t, got[0], Bucket{Start: base, Count: 2, Cost: 1})
	tester.Eq(t, got[1], Bucket{Start: base.Add(time.Minute)})
	tester.Eq(t, got[2].Count, 1)

	tester.True(t, Timeline(nil, time.Minute) == nil)
	tester.True(t, Timeline(records, 0) == nil)
}

func TestTimeline_WideRangeSkipsEmptySteps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []metrics.Record{
		{Timestamp: base.Add(30 * 24 * time.Hour)},
		{Timestamp: base},
	}
	got := Timeline(records, time.Minute)
	tester.Eq(t, len(got), 2)
	tester.True(t, got[0].Start.Before(got[1].Start))
}

func TestCache_PutGetAndExpire(t *testing.T) {
	c := NewCache(2, 50*time.Millisecond)
	c.Put(RunReport{RunID: "r1"})
	c.Put(RunReport{RunID: "r2"})
	c.Put(RunReport{RunID: "r3"})

	_, ok := c.Get("r1")
	tester.False(t, ok, "evicted by size")
	got, ok := c.Get("r3")
	tester.True(t, ok)
	tester.Eq(t, got.RunID, "r3")

	time.Sleep(120 * time.Millisecond)
	_, ok = c.Get("r3")
	tester.False(t, ok, "expired by ttl")
}

func TestNewS3Exporter_Validation(t *testing.T) {
	_, err := NewS3Exporter(S3Config{})
	tester.True(t, err != nil)
	_, err = NewS3Exporter(S3Config{Endpoint: "localhost:9000", Bucket: "b"})
	tester.True(t, err != nil, "credentials are required")

	e, err := NewS3Exporter(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b", Prefix: "/runs/"})
	tester.NoErr(t, err)
	tester.Eq(t, e.ObjectKey("abc"), "runs/abc.json")
}
