package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"llmnexus/internal/globalctx"
	"llmnexus/internal/llmclient"
)

// Middleware decorates a BackendClient to inject cross-cutting concerns
// (throttling, logging, rate-limit back-off).
type Middleware func(llmclient.BackendClient) llmclient.BackendClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.BackendClient, mws ...Middleware) llmclient.BackendClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

// passthrough forwards everything but Invoke.
type passthrough struct{ next llmclient.BackendClient }

func (p passthrough) Name() string                { return p.next.Name() }
func (p passthrough) Close() error                { return p.next.Close() }
func (p passthrough) CountTokens(text string) int { return p.next.CountTokens(text) }

// -------- Provider-side throttling --------

// ProviderLimit throttles calls to one model with an rps/burst bucket and an
// optional requests-per-minute bucket. A nil or zero config disables it.
func ProviderLimit(cfg *RateLimitConfig) Middleware {
	if cfg == nil {
		return nil
	}
	rps := newTokenBucket(cfg.RPS, cfg.Burst)
	var rpm *tokenBucket
	if cfg.RPM > 0 {
		rpm = newTokenBucket(float64(cfg.RPM)/60.0, cfg.RPM)
	}
	if rps == nil && rpm == nil {
		return nil
	}
	return func(next llmclient.BackendClient) llmclient.BackendClient {
		return &limited{passthrough: passthrough{next}, buckets: []*tokenBucket{rps, rpm}}
	}
}

type limited struct {
	passthrough
	buckets []*tokenBucket
}

func (l *limited) Invoke(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	for _, b := range l.buckets {
		if err := b.Acquire(ctx); err != nil {
			return llmclient.Response{}, waitError(l.Name(), err)
		}
	}
	return l.next.Invoke(ctx, req)
}

func waitError(name string, err error) error {
	if llmclient.IsTimeout(err) {
		return fmt.Errorf("%s: throttled past deadline: %w", name, llmclient.ErrTimeout)
	}
	return err
}

// -------- Provider rate-limit signals --------

// RespectRateLimitSignals delays the next call after a provider reported an
// exhausted budget. Clients that do not expose rate-limit headers are
// returned unchanged.
func RespectRateLimitSignals(adapter llmclient.RateLimitControlAdapter) Middleware {
	if adapter == nil {
		adapter = llmclient.HeaderRateLimitControlAdapter{}
	}
	return func(next llmclient.BackendClient) llmclient.BackendClient {
		aware, ok := next.(llmclient.RateLimitHeaderAwareClient)
		if !ok {
			return next
		}
		s := &signaled{passthrough: passthrough{next}, now: time.Now}
		aware.SetRateLimitHeaderHandler(func(h llmclient.RateLimitHeaders) {
			if wait := adapter.NextWait(h); wait > 0 {
				s.holdFor(wait)
			}
		})
		return s
	}
}

type signaled struct {
	passthrough
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

func (s *signaled) holdFor(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until := s.now().Add(d); until.After(s.until) {
		s.until = until
	}
}

func (s *signaled) pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.until.Sub(s.now())
}

func (s *signaled) Invoke(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	if wait := s.pending(); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return llmclient.Response{}, waitError(s.Name(), ctx.Err())
		case <-t.C:
		}
	}
	return s.next.Invoke(ctx, req)
}

// -------- Logging --------

// WithLogging logs request size and errors for every call. A nil logger uses
// the logrus standard logger.
func WithLogging(logger log.FieldLogger) Middleware {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return func(next llmclient.BackendClient) llmclient.BackendClient {
		return &logging{passthrough: passthrough{next}, log: logger}
	}
}

type logging struct {
	passthrough
	log log.FieldLogger
}

func (l *logging) Invoke(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	fields := log.Fields{
		"client":   l.Name(),
		"run_id":   globalctx.RunIDFrom(ctx),
		"identity": globalctx.IdentityFrom(ctx),
	}
	l.log.WithFields(fields).WithField("prompt_bytes", len(req.Prompt)).Debug("backend request")
	start := time.Now()
	resp, err := l.next.Invoke(ctx, req)
	fields["latency_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		l.log.WithFields(fields).WithError(err).Warn("backend error")
		return resp, err
	}
	l.log.WithFields(fields).WithField("response_bytes", len(resp.Text)).Debug("backend response")
	return resp, nil
}
