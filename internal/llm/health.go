package llm

import (
	"strings"
	"sync"
	"time"
)

// BreakerConfig configures the automatic per-model circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed calls before the model
	// is taken out of rotation. Zero disables the breaker.
	MaxFailures int
	// Cooldown is how long an open model stays unavailable before one call
	// is let through again.
	Cooldown time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, Cooldown: 60 * time.Second}
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

type modelHealth struct {
	disabled bool // manual flag
	state    breakerState
	failures int
	openedAt time.Time
}

// HealthTracker decides whether a model may be routed to. It combines a
// manual health flag with a circuit breaker fed by call outcomes.
type HealthTracker struct {
	mu     sync.Mutex
	cfg    BreakerConfig
	models map[string]*modelHealth
	now    func() time.Time
}

func NewHealthTracker(cfg BreakerConfig) *HealthTracker {
	return &HealthTracker{cfg: cfg, models: map[string]*modelHealth{}, now: time.Now}
}

func (h *HealthTracker) entry(id string) *modelHealth {
	k := keyFor(id)
	m, ok := h.models[k]
	if !ok {
		m = &modelHealth{}
		h.models[k] = m
	}
	return m
}

// SetHealthy sets the manual health flag. Marking a model healthy also
// closes its breaker.
func (h *HealthTracker) SetHealthy(id string, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.entry(id)
	m.disabled = !healthy
	if healthy {
		m.state = breakerClosed
		m.failures = 0
	}
}

// Available reports whether id may be selected right now. An open breaker
// whose cool-down elapsed moves to half-open and admits traffic.
func (h *HealthTracker) Available(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.models[keyFor(id)]
	if !ok {
		return true
	}
	if m.disabled {
		return false
	}
	if m.state == breakerOpen {
		if h.now().Sub(m.openedAt) < h.cfg.Cooldown {
			return false
		}
		m.state = breakerHalfOpen
	}
	return true
}

// Observe feeds one call outcome into the breaker.
func (h *HealthTracker) Observe(id string, ok bool) {
	if h.cfg.MaxFailures <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.entry(id)
	if ok {
		m.state = breakerClosed
		m.failures = 0
		return
	}
	m.failures++
	if m.state == breakerHalfOpen || m.failures >= h.cfg.MaxFailures {
		m.state = breakerOpen
		m.openedAt = h.now()
	}
}

// ModelHealth is a point-in-time view of one model's health.
type ModelHealth struct {
	ID        string
	Available bool
	Manual    bool
	Breaker   string
	Failures  int
}

// Snapshot reports health for the given ids in the given order.
func (h *HealthTracker) Snapshot(ids []string) []ModelHealth {
	out := make([]ModelHealth, 0, len(ids))
	for _, id := range ids {
		avail := h.Available(id)
		h.mu.Lock()
		mh := ModelHealth{ID: strings.TrimSpace(id), Available: avail, Manual: true, Breaker: "closed"}
		if m, ok := h.models[keyFor(id)]; ok {
			mh.Manual = !m.disabled
			mh.Failures = m.failures
			switch m.state {
			case breakerOpen:
				mh.Breaker = "open"
			case breakerHalfOpen:
				mh.Breaker = "half_open"
			}
		}
		h.mu.Unlock()
		out = append(out, mh)
	}
	return out
}
