package rpc

import (
	"llmnexus/internal/gateway/api"
	"llmnexus/internal/llm"
)

// toModelInfos pairs descriptors with their health snapshot by position.
func toModelInfos(descs []llm.ModelDescriptor, health []llm.ModelHealth) []api.ModelInfo {
	out := make([]api.ModelInfo, len(descs))
	for i, d := range descs {
		info := api.ModelInfo{
			ID:            d.ID,
			Provider:      d.Provider,
			Model:         d.Model,
			Tags:          d.Tags,
			CostPerToken:  d.CostPerToken,
			AvgLatencyMs:  d.AvgLatency.Milliseconds(),
			MaxTokens:     d.MaxTokens,
			Available:     true,
			ManualHealthy: true,
			Breaker:       "closed",
		}
		if i < len(health) {
			hs := health[i]
			info.Available = hs.Available
			info.ManualHealthy = hs.Manual
			info.Breaker = hs.Breaker
			info.Failures = hs.Failures
		}
		out[i] = info
	}
	return out
}
