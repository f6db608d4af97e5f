package llm

import (
	"testing"
	"time"

	"llmnexus/internal/tester"
)

func TestHealthTracker_ManualFlag(t *testing.T) {
	h := NewHealthTracker(DefaultBreakerConfig())
	tester.True(t, h.Available("m"), "unknown models are available")
	h.SetHealthy("M", false)
	tester.False(t, h.Available("m"))
	h.SetHealthy("m", true)
	tester.True(t, h.Available("m"))
}

func TestHealthTracker_BreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	h := NewHealthTracker(BreakerConfig{MaxFailures: 2, Cooldown: time.Minute})
	h.now = func() time.Time { return now }

	h.Observe("m", false)
	tester.True(t, h.Available("m"))
	h.Observe("m", false)
	tester.False(t, h.Available("m"), "breaker should be open")

	now = now.Add(time.Minute)
	tester.True(t, h.Available("m"), "half-open after cooldown")

	h.Observe("m", false)
	tester.False(t, h.Available("m"), "failure in half-open reopens")

	now = now.Add(time.Minute)
	tester.True(t, h.Available("m"))
	h.Observe("m", true)
	snap := h.Snapshot([]string{"m"})
	tester.Eq(t, snap[0].Breaker, "closed")
	tester.Eq(t, snap[0].Failures, 0)
}

func TestHealthTracker_DisabledBreaker(t *testing.T) {
	h := NewHealthTracker(BreakerConfig{})
	for i := 0; i < 10; i++ {
		h.Observe("m", false)
	}
	tester.True(t, h.Available("m"))
}
