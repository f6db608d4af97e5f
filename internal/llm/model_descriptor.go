package llm

import (
	"context"
	"strings"
	"time"

	"llmnexus/internal/llmclient"
)

// RateLimitConfig holds provider-side throttling for one model. Zero fields
// are disabled.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	RPM   int
}

// ModelDescriptor is the static description of a routable model.
type ModelDescriptor struct {
	ID           string
	Provider     string
	Model        string
	Tags         []string
	CostPerToken float64
	AvgLatency   time.Duration
	MaxTokens    int
	RateLimit    *RateLimitConfig
}

// HasTag reports whether the descriptor carries tag (case-insensitive).
func (d ModelDescriptor) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range d.Tags {
		if strings.ToLower(strings.TrimSpace(t)) == tag {
			return true
		}
	}
	return false
}

// ClientFactory builds the backend client for a descriptor.
type ClientFactory func(ctx context.Context, desc ModelDescriptor) (llmclient.BackendClient, error)

// ModelRegistration pairs a descriptor with its factory.
type ModelRegistration struct {
	Descriptor ModelDescriptor
	Factory    ClientFactory
}
