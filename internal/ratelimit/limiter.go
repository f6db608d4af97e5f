// Package ratelimit gates requests per caller identity. The default
// algorithm is a fixed window anchored at the first request of each window;
// a sliding log is available for callers that need the bound to hold over
// every trailing interval.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("rate limited")

// LimitError reports a rejected request and when the window reopens.
type LimitError struct {
	Identity   string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: identity %q, retry after %s", e.Identity, e.RetryAfter.Round(time.Millisecond))
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// Decision is the outcome of one check.
type Decision struct {
	Allowed bool
	// Count is the number of attempts in the current window, this one included.
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Algorithm selects how attempts are counted.
type Algorithm string

const (
	FixedWindow Algorithm = "fixed"
	SlidingLog  Algorithm = "sliding"
)

// ParseAlgorithm accepts "fixed" (default for "") and "sliding".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", FixedWindow:
		return FixedWindow, nil
	case SlidingLog:
		return SlidingLog, nil
	default:
		return "", fmt.Errorf("ratelimit: unknown algorithm %q", s)
	}
}

type window struct {
	mu      sync.Mutex
	start   time.Time
	count   int
	log     []time.Time // accepted attempts, SlidingLog only
	evicted bool
}

// Limiter admits at most limit requests per identity per window. Rejected
// attempts still count, so hammering a closed window does not shorten the
// cool-off, which always ends window after the first accepted request.
type Limiter struct {
	limit   int
	window  time.Duration
	algo    Algorithm
	now     func() time.Time
	windows sync.Map // identity -> *window
}

type Option func(*Limiter)

// WithAlgorithm selects the counting algorithm.
func WithAlgorithm(a Algorithm) Option {
	return func(l *Limiter) { l.algo = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(limit int, window time.Duration, opts ...Option) (*Limiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", window)
	}
	l := &Limiter{limit: limit, window: window, algo: FixedWindow, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if l.algo != FixedWindow && l.algo != SlidingLog {
		return nil, fmt.Errorf("ratelimit: unknown algorithm %q", l.algo)
	}
	return l, nil
}

func (l *Limiter) Limit() int            { return l.limit }
func (l *Limiter) Window() time.Duration { return l.window }

// Check counts one attempt for identity and reports whether it is allowed.
func (l *Limiter) Check(identity string) bool {
	return l.Decide(identity).Allowed
}

// Allow is Check with the rejection as an error wrapping ErrRateLimited.
func (l *Limiter) Allow(identity string) error {
	d := l.Decide(identity)
	if d.Allowed {
		return nil
	}
	return &LimitError{Identity: identity, RetryAfter: d.RetryAfter}
}

// Decide counts one attempt for identity. The check and the increment happen
// under the identity's own lock.
func (l *Limiter) Decide(identity string) Decision {
	for {
		v, _ := l.windows.LoadOrStore(identity, &window{})
		w := v.(*window)

		w.mu.Lock()
		if w.evicted {
			// swept between load and lock; take the replacement
			w.mu.Unlock()
			continue
		}
		var d Decision
		if l.algo == SlidingLog {
			d = l.decideSliding(w, l.now())
		} else {
			d = l.decideFixed(w, l.now())
		}
		w.mu.Unlock()
		return d
	}
}

func (l *Limiter) decideFixed(w *window, now time.Time) Decision {
	if w.count == 0 || !now.Before(w.start.Add(l.window)) {
		w.start = now
		w.count = 0
	}
	w.count++
	d := Decision{Allowed: w.count <= l.limit, Count: w.count}
	if d.Allowed {
		d.Remaining = l.limit - w.count
	} else {
		d.RetryAfter = w.start.Add(l.window).Sub(now)
	}
	return d
}

func (l *Limiter) decideSliding(w *window, now time.Time) Decision {
	cutoff := now.Add(-l.window)
	keep := 0
	for keep < len(w.log) && !w.log[keep].After(cutoff) {
		keep++
	}
	w.log = w.log[keep:]
	if len(w.log) == 0 {
		w.count = 0
	}
	w.count++
	if len(w.log) < l.limit {
		w.log = append(w.log, now)
		w.start = w.log[0]
		return Decision{Allowed: true, Count: w.count, Remaining: l.limit - len(w.log)}
	}
	return Decision{Count: w.count, RetryAfter: w.log[0].Add(l.window).Sub(now)}
}

// expired reports whether w holds no live state at now.
func (l *Limiter) expired(w *window, now time.Time) bool {
	if l.algo == SlidingLog {
		return len(w.log) == 0 || !now.Before(w.log[len(w.log)-1].Add(l.window))
	}
	return !now.Before(w.start.Add(l.window))
}

// Sweep drops windows that have expired and returns how many were removed.
func (l *Limiter) Sweep() int {
	removed := 0
	now := l.now()
	l.windows.Range(func(key, v any) bool {
		w := v.(*window)
		w.mu.Lock()
		if l.expired(w, now) {
			w.evicted = true
			l.windows.CompareAndDelete(key, w)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (l *Limiter) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = l.window
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}
