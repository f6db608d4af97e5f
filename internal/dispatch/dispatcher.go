// Package dispatch fans one prompt out to several backends concurrently and
// collects a typed outcome for each of them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"llmnexus/internal/llm"
	"llmnexus/internal/llmclient"
)

var (
	ErrNoModels        = errors.New("dispatch: no models selected")
	ErrInvalidDeadline = errors.New("dispatch: deadline must be positive")
	ErrDuplicateModel  = errors.New("dispatch: model selected twice")

	// errTaskDeadline is the cause attached to the per-model deadline.
	errTaskDeadline = errors.New("dispatch: task deadline reached")
)

// Request is immutable for the lifetime of a run.
type Request struct {
	Prompt      string
	Objective   string
	Identity    string
	Temperature float64
	MaxTokens   int
	// Deadline bounds each model call.
	Deadline time.Duration
}

// ClientSource hands out the backend client for a model id.
type ClientSource interface {
	Client(ctx context.Context, id string) (llmclient.BackendClient, error)
}

// Dispatcher runs one call per selected model.
type Dispatcher struct {
	clients ClientSource
	log     log.FieldLogger
	now     func() time.Time
}

func New(clients ClientSource, logger log.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{clients: clients, log: logger, now: time.Now}
}

// Run calls every model concurrently and waits for all of them. Individual
// failures are reported in the results; the error is non-nil only when the
// run cannot start.
func (d *Dispatcher) Run(ctx context.Context, req Request, models []llm.ModelDescriptor) (*Results, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	if req.Deadline <= 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidDeadline, req.Deadline)
	}
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		k := strings.ToLower(strings.TrimSpace(m.ID))
		if seen[k] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, m.ID)
		}
		seen[k] = true
	}

	started := d.now()
	out := make([]Result, len(models))
	var g errgroup.Group
	for i, m := range models {
		g.Go(func() error {
			out[i] = d.call(ctx, req, m)
			return nil
		})
	}
	_ = g.Wait()

	rs := newResults(out)
	d.log.WithFields(log.Fields{
		"event":     "dispatch_done",
		"identity":  req.Identity,
		"objective": req.Objective,
		"models":    len(models),
		"ok":        rs.Count(StatusOk),
		"timeout":   rs.Count(StatusTimeout),
		"error":     rs.Count(StatusError),
		"wall_ms":   d.now().Sub(started).Milliseconds(),
	}).Info("dispatch finished")
	return rs, nil
}

type invokeOutcome struct {
	resp llmclient.Response
	err  error
}

// call runs one model under its own deadline. The backend call runs in a
// separate goroutine so the task ends at the deadline even if the backend
// is slow to observe cancellation.
func (d *Dispatcher) call(parent context.Context, req Request, m llm.ModelDescriptor) Result {
	res := Result{ModelID: m.ID, StartedAt: d.now()}
	ctx, cancel := context.WithTimeoutCause(parent, req.Deadline, errTaskDeadline)
	defer cancel()

	maxTokens := req.MaxTokens
	if m.MaxTokens > 0 && (maxTokens <= 0 || maxTokens > m.MaxTokens) {
		maxTokens = m.MaxTokens
	}

	client, err := d.clients.Client(ctx, m.ID)
	if err != nil {
		return d.fail(ctx, res, req.Deadline, err)
	}

	done := make(chan invokeOutcome, 1)
	go func() {
		resp, err := client.Invoke(ctx, llmclient.Request{
			Prompt:      req.Prompt,
			Temperature: req.Temperature,
			MaxTokens:   maxTokens,
		})
		done <- invokeOutcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return d.fail(ctx, res, req.Deadline, o.err)
		}
		res.Status = StatusOk
		res.Text = o.resp.Text
		res.Latency = d.now().Sub(res.StartedAt)
		res.PromptTokens = o.resp.PromptTokens
		res.CompletionTokens = o.resp.CompletionTokens
		if res.PromptTokens == 0 {
			res.PromptTokens = client.CountTokens(req.Prompt)
		}
		if res.CompletionTokens == 0 {
			res.CompletionTokens = client.CountTokens(o.resp.Text)
		}
		return res
	case <-ctx.Done():
		return d.fail(ctx, res, req.Deadline, ctx.Err())
	}
}

// fail classifies err. Only the per-task deadline is a timeout, with
// latency equal to the deadline. A run whose caller context ends first is
// an error carrying the real elapsed time.
func (d *Dispatcher) fail(ctx context.Context, res Result, deadline time.Duration, err error) Result {
	if errors.Is(context.Cause(ctx), errTaskDeadline) {
		res.Status = StatusTimeout
		res.Latency = deadline
		res.Error = fmt.Sprintf("no response within %s", deadline)
		return res
	}
	res.Latency = d.now().Sub(res.StartedAt)
	res.Status = StatusError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = "caller deadline exceeded"
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		res.Error = "canceled"
	case llmclient.IsTimeout(err):
		// the backend gave up before our deadline
		res.Status = StatusTimeout
		res.Error = err.Error()
	default:
		res.Error = err.Error()
	}
	return res
}
