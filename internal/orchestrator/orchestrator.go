// Package orchestrator runs one prompt through rate limiting, routing,
// parallel dispatch, metrics and reporting.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"llmnexus/internal/dispatch"
	"llmnexus/internal/globalctx"
	"llmnexus/internal/llm"
	"llmnexus/internal/metrics"
	"llmnexus/internal/report"
	"llmnexus/internal/router"
)

var (
	ErrInvalidPrompt = errors.New("invalid prompt")
	ErrRunNotFound   = errors.New("run not found")
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
	DefaultMaxPrompt   = 32 * 1024
	DefaultTimeout     = 30 * time.Second
	exportTimeout      = 10 * time.Second
)

// Gate admits or rejects a request for an identity.
type Gate interface {
	Allow(identity string) error
}

// Selector picks models for an objective.
type Selector interface {
	Select(obj router.Objective) ([]llm.ModelDescriptor, error)
}

// Runner executes one dispatch.
type Runner interface {
	Run(ctx context.Context, req dispatch.Request, models []llm.ModelDescriptor) (*dispatch.Results, error)
}

// Observer is told the outcome of every model call.
type Observer interface {
	Observe(modelID string, ok bool)
}

// Request is the caller-facing input of one run. Zero Temperature and
// MaxTokens take the defaults; set TemperatureSet to send an explicit 0.
type Request struct {
	Identity       string
	Objective      router.Objective
	Prompt         string
	Temperature    float64
	TemperatureSet bool
	MaxTokens      int
}

// Result is what a run returns to the caller.
type Result struct {
	RunID     string
	Objective router.Objective
	Models    []string
	Responses *dispatch.Results
	Elapsed   time.Duration
	Report    report.Summary
}

type Config struct {
	Timeout        time.Duration
	MaxPromptBytes int
}

type Deps struct {
	Limiter    Gate
	Router     Selector
	Dispatcher Runner
	Recorder   *metrics.Recorder
	Health     Observer
	Reports    *report.Cache
	Exporter   report.Exporter
	Cost       CostFunc
	Logger     log.FieldLogger
}

type Orchestrator struct {
	cfg  Config
	deps Deps
	now  func() time.Time
	// newID produces run ids
	newID func() string

	exports sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Limiter == nil || deps.Router == nil || deps.Dispatcher == nil || deps.Recorder == nil {
		return nil, fmt.Errorf("orchestrator: limiter, router, dispatcher and recorder are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPromptBytes <= 0 {
		cfg.MaxPromptBytes = DefaultMaxPrompt
	}
	if deps.Cost == nil {
		deps.Cost = PerTokenCost
	}
	if deps.Reports == nil {
		deps.Reports = report.NewCache(256, time.Hour)
	}
	if deps.Logger == nil {
		deps.Logger = log.StandardLogger()
	}
	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}, nil
}

// validate checks the request before it costs anything. The returned
// request has defaults applied.
func (o *Orchestrator) validate(req Request) (Request, error) {
	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		return req, fmt.Errorf("%w: identity is required", ErrInvalidPrompt)
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	switch {
	case req.Prompt == "":
		return req, fmt.Errorf("%w: prompt is empty", ErrInvalidPrompt)
	case !utf8.ValidString(req.Prompt):
		return req, fmt.Errorf("%w: prompt is not valid UTF-8", ErrInvalidPrompt)
	case len(req.Prompt) > o.cfg.MaxPromptBytes:
		return req, fmt.Errorf("%w: prompt is %d bytes, limit is %d", ErrInvalidPrompt, len(req.Prompt), o.cfg.MaxPromptBytes)
	}
	if !req.TemperatureSet && req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return req, fmt.Errorf("%w: temperature %.2f outside [0, 2]", ErrInvalidPrompt, req.Temperature)
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.MaxTokens < 0 {
		return req, fmt.Errorf("%w: max_tokens must be positive", ErrInvalidPrompt)
	}
	return req, nil
}

// Orchestrate runs one prompt end to end. It fails with ErrInvalidPrompt,
// ratelimit.ErrRateLimited or router.ErrRoutingExhausted; individual model
// failures are reported in Result.Responses.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (*Result, error) {
	req, err := o.validate(req)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Limiter.Allow(req.Identity); err != nil {
		o.deps.Logger.WithFields(log.Fields{"event": "rate_limited", "identity": req.Identity}).Info("request rejected")
		return nil, err
	}
	models, err := o.deps.Router.Select(req.Objective)
	if err != nil {
		o.deps.Logger.WithFields(log.Fields{"event": "routing_failed", "identity": req.Identity, "objective": req.Objective}).WithError(err).Warn("no model available")
		return nil, err
	}

	runID := o.newID()
	ctx = globalctx.WithRunID(globalctx.WithIdentity(ctx, req.Identity), runID)
	start := o.now()
	rs, err := o.deps.Dispatcher.Run(ctx, dispatch.Request{
		Prompt:      req.Prompt,
		Objective:   string(req.Objective),
		Identity:    req.Identity,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Deadline:    o.cfg.Timeout,
	}, models)
	if err != nil {
		return nil, fmt.Errorf("dispatch run %s: %w", runID, err)
	}
	elapsed := o.now().Sub(start)

	records := o.record(runID, req, models, rs)
	summary := report.Summarize(records)

	ids := rs.IDs()
	rr := report.RunReport{
		RunID:     runID,
		Identity:  req.Identity,
		Objective: string(req.Objective),
		Models:    ids,
		CreatedAt: start,
		Elapsed:   elapsed,
		Summary:   summary,
	}
	o.deps.Reports.Put(rr)
	o.export(rr)

	o.deps.Logger.WithFields(log.Fields{
		"event":      "run_done",
		"run_id":     runID,
		"identity":   req.Identity,
		"objective":  req.Objective,
		"models":     ids,
		"elapsed_ms": elapsed.Milliseconds(),
		"cost":       summary.TotalEstimatedCost,
	}).Info("orchestration finished")

	return &Result{
		RunID:     runID,
		Objective: req.Objective,
		Models:    ids,
		Responses: rs,
		Elapsed:   elapsed,
		Report:    summary,
	}, nil
}

// record appends one metric record per result in selection order, stamped
// with the call start time.
func (o *Orchestrator) record(runID string, req Request, models []llm.ModelDescriptor, rs *dispatch.Results) []metrics.Record {
	out := make([]metrics.Record, 0, len(models))
	for _, m := range models {
		res, ok := rs.Get(m.ID)
		if !ok {
			continue
		}
		if o.deps.Health != nil {
			o.deps.Health.Observe(m.ID, res.OK())
		}
		rec := metrics.Record{
			Timestamp:      res.StartedAt,
			RunID:          runID,
			ModelID:        m.ID,
			Identity:       req.Identity,
			Objective:      string(req.Objective),
			Status:         string(res.Status),
			Latency:        res.Latency,
			ResponseLength: utf8.RuneCountInString(res.Text),
			EstimatedCost:  o.deps.Cost(m, res),
		}
		o.deps.Recorder.Append(rec)
		out = append(out, rec)
	}
	return out
}

func (o *Orchestrator) export(rr report.RunReport) {
	if o.deps.Exporter == nil {
		return
	}
	o.exports.Add(1)
	go func() {
		defer o.exports.Done()
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := o.deps.Exporter.Export(ctx, rr); err != nil {
			o.deps.Logger.WithFields(log.Fields{"event": "report_export_failed", "run_id": rr.RunID}).WithError(err).Warn("report export failed")
		}
	}()
}

// Report returns the report of a finished run, rebuilding it from stored
// metrics when it is no longer cached.
func (o *Orchestrator) Report(ctx context.Context, runID string) (report.RunReport, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return report.RunReport{}, fmt.Errorf("%w: run_id is required", ErrInvalidPrompt)
	}
	if rr, ok := o.deps.Reports.Get(runID); ok {
		return rr, nil
	}
	records, err := o.deps.Recorder.Query(ctx, metrics.Filter{RunID: runID})
	if err != nil {
		return report.RunReport{}, err
	}
	if len(records) == 0 {
		return report.RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	summary := report.Summarize(records)
	// records are stored in selection order, which Models keeps
	ids := make([]string, 0, len(summary.Models))
	for _, m := range summary.Models {
		ids = append(ids, m.ModelID)
	}
	rr := report.RunReport{
		RunID:     runID,
		Identity:  records[0].Identity,
		Objective: records[0].Objective,
		CreatedAt: summary.From,
		Elapsed:   runSpan(records),
		Models:    ids,
		Summary:   summary,
	}
	o.deps.Reports.Put(rr)
	return rr, nil
}

// runSpan is the time from the first call start to the last call end.
func runSpan(records []metrics.Record) time.Duration {
	var first, last time.Time
	for i, r := range records {
		end := r.Timestamp.Add(r.Latency)
		if i == 0 || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if end.After(last) {
			last = end
		}
	}
	return last.Sub(first)
}

// Summarize aggregates stored metrics matching f, with a per-step timeline
// when step is positive.
func (o *Orchestrator) Summarize(ctx context.Context, f metrics.Filter, step time.Duration) (report.Summary, error) {
	records, err := o.deps.Recorder.Query(ctx, f)
	if err != nil {
		return report.Summary{}, err
	}
	s := report.Summarize(records)
	if step > 0 {
		s = report.WithTimeline(s, records, step)
	}
	return s, nil
}

// Close waits for pending report exports.
func (o *Orchestrator) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.exports.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
