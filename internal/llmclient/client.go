package llmclient

import (
	"context"
)

// Request is a single completion call. The call deadline travels on the
// context passed to Invoke.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response is what a backend produced for one Request. Token counts are zero
// when the provider does not report usage.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// BackendClient is the uniform capability every model provider implements.
// Cross-cutting concerns (throttling, logging, rate-limit back-off) are
// applied by middleware in the llm package.
type BackendClient interface {
	Name() string
	Close() error
	CountTokens(text string) int
	Invoke(ctx context.Context, req Request) (Response, error)
}
