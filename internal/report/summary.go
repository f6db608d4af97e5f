// Package report aggregates metric records into cost and performance
// summaries.
package report

import (
	"sort"
	"time"

	"llmnexus/internal/metrics"
)

// ModelStats aggregates the records of one model.
type ModelStats struct {
	ModelID           string        `json:"model_id"`
	Requests          int           `json:"requests"`
	Ok                int           `json:"ok"`
	Timeouts          int           `json:"timeouts"`
	Errors            int           `json:"errors"`
	TotalCost         float64       `json:"total_cost"`
	AvgLatency        time.Duration `json:"avg_latency"`
	AvgResponseLength float64       `json:"avg_response_length"`
}

// Bucket counts requests that started within one timeline step.
type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
	Cost  float64   `json:"cost"`
}

// Summary is the aggregate over a set of records.
type Summary struct {
	TotalEstimatedCost        float64                  `json:"total_estimated_cost"`
	PerModelAvgLatency        map[string]time.Duration `json:"per_model_avg_latency"`
	PerModelAvgResponseLength map[string]float64       `json:"per_model_avg_response_length"`
	RequestCount              int                      `json:"request_count"`

	// Models lists per-model stats in order of first appearance.
	Models   []ModelStats `json:"models"`
	Timeline []Bucket     `json:"timeline,omitempty"`
	From     time.Time    `json:"from,omitempty"`
	To       time.Time    `json:"to,omitempty"`
}

type acc struct {
	stats   ModelStats
	latency time.Duration
	length  int
}

// Summarize aggregates records. It has no side effects; the same records
// always produce the same summary.
func Summarize(records []metrics.Record) Summary {
	s := Summary{
		PerModelAvgLatency:        map[string]time.Duration{},
		PerModelAvgResponseLength: map[string]float64{},
		RequestCount:              len(records),
	}
	var order []string
	byModel := map[string]*acc{}
	for _, r := range records {
		a, ok := byModel[r.ModelID]
		if !ok {
			a = &acc{stats: ModelStats{ModelID: r.ModelID}}
			byModel[r.ModelID] = a
			order = append(order, r.ModelID)
		}
		a.stats.Requests++
		switch r.Status {
		case "timeout":
			a.stats.Timeouts++
		case "error":
			a.stats.Errors++
		default:
			a.stats.Ok++
		}
		a.stats.TotalCost += r.EstimatedCost
		a.latency += r.Latency
		a.length += r.ResponseLength
		s.TotalEstimatedCost += r.EstimatedCost

		if s.From.IsZero() || r.Timestamp.Before(s.From) {
			s.From = r.Timestamp
		}
		if r.Timestamp.After(s.To) {
			s.To = r.Timestamp
		}
	}
	for _, id := range order {
		a := byModel[id]
		n := a.stats.Requests
		a.stats.AvgLatency = a.latency / time.Duration(n)
		a.stats.AvgResponseLength = float64(a.length) / float64(n)
		s.PerModelAvgLatency[id] = a.stats.AvgLatency
		s.PerModelAvgResponseLength[id] = a.stats.AvgResponseLength
		s.Models = append(s.Models, a.stats)
	}
	return s
}

// maxFilledBuckets caps zero-filling; wider ranges list non-empty steps only.
const maxFilledBuckets = 7 * 24 * 60

// Timeline counts records per step, aligned to step boundaries in UTC. Empty
// steps between the first and last record are included with a zero count.
func Timeline(records []metrics.Record, step time.Duration) []Bucket {
	if len(records) == 0 || step <= 0 {
		return nil
	}
	counts := map[int64]*Bucket{}
	var lo, hi int64
	for i, r := range records {
		k := r.Timestamp.UTC().Truncate(step).UnixNano()
		if i == 0 || k < lo {
			lo = k
		}
		if i == 0 || k > hi {
			hi = k
		}
		b, ok := counts[k]
		if !ok {
			b = &Bucket{Start: time.Unix(0, k).UTC()}
			counts[k] = b
		}
		b.Count++
		b.Cost += r.EstimatedCost
	}
	if (hi-lo)/int64(step) >= maxFilledBuckets {
		out := make([]Bucket, 0, len(counts))
		for _, b := range counts {
			out = append(out, *b)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
		return out
	}
	out := make([]Bucket, 0, (hi-lo)/int64(step)+1)
	for k := lo; k <= hi; k += int64(step) {
		if b, ok := counts[k]; ok {
			out = append(out, *b)
		} else {
			out = append(out, Bucket{Start: time.Unix(0, k).UTC()})
		}
	}
	return out
}

// WithTimeline returns s with a per-step timeline attached.
func WithTimeline(s Summary, records []metrics.Record, step time.Duration) Summary {
	s.Timeline = Timeline(records, step)
	return s
}

// ModelIDs returns the summarized model ids, sorted.
func (s Summary) ModelIDs() []string {
	out := make([]string, 0, len(s.PerModelAvgLatency))
	for id := range s.PerModelAvgLatency {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
