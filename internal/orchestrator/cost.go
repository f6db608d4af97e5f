package orchestrator

import (
	"llmnexus/internal/dispatch"
	"llmnexus/internal/llm"
)

// CostFunc estimates the cost of one call.
type CostFunc func(desc llm.ModelDescriptor, res dispatch.Result) float64

// PerTokenCost prices prompt and completion tokens at the model's
// cost_per_token. Calls that did not succeed cost nothing.
func PerTokenCost(desc llm.ModelDescriptor, res dispatch.Result) float64 {
	if !res.OK() {
		return 0
	}
	return float64(res.PromptTokens+res.CompletionTokens) * desc.CostPerToken
}
