package metrics

import (
	"context"
	"strings"
	"time"
)

// Record is the telemetry for one model call.
type Record struct {
	Timestamp      time.Time     `json:"timestamp"`
	RunID          string        `json:"run_id"`
	ModelID        string        `json:"model_id"`
	Identity       string        `json:"identity"`
	Objective      string        `json:"objective,omitempty"`
	Status         string        `json:"status"`
	Latency        time.Duration `json:"latency"`
	ResponseLength int           `json:"response_length"`
	EstimatedCost  float64       `json:"estimated_cost"`
}

// Filter selects records. Zero fields match everything; Since is inclusive
// and Until exclusive.
type Filter struct {
	RunID    string
	Identity string
	ModelID  string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (f Filter) Match(r Record) bool {
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Identity != "" && r.Identity != f.Identity {
		return false
	}
	if f.ModelID != "" && !strings.EqualFold(r.ModelID, f.ModelID) {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Sink is durable append-only record storage.
type Sink interface {
	Write(ctx context.Context, records []Record) error
	Query(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}
