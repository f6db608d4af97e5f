package app

import (
	"context"
	"fmt"

	"llmnexus/internal/gateway/config"
	"llmnexus/internal/llm"
	"llmnexus/internal/llmclient"
)

func needsKey(provider string) bool {
	switch provider {
	case "groq", "openrouter", "gemini":
		return true
	}
	return false
}

func clientFactory(keys config.ProviderKeys) llm.ClientFactory {
	return func(ctx context.Context, desc llm.ModelDescriptor) (llmclient.BackendClient, error) {
		switch desc.Provider {
		case "groq":
			c, err := llmclient.NewGroqClient(keys.Groq, desc.Model)
			if err != nil {
				return nil, err
			}
			return c, nil
		case "openrouter":
			c, err := llmclient.NewOpenRouterClient(keys.OpenRouter, desc.Model)
			if err != nil {
				return nil, err
			}
			return c, nil
		case "gemini":
			c, err := llmclient.NewGeminiClient(ctx, keys.Gemini, desc.Model)
			if err != nil {
				return nil, err
			}
			return c, nil
		case "fake":
			return llmclient.NewFakeClient(desc.Model), nil
		default:
			return nil, fmt.Errorf("unknown provider %q for model %s", desc.Provider, desc.ID)
		}
	}
}
