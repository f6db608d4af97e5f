package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const (
	GroqEndpoint       = "https://api.groq.com/openai/v1/chat/completions"
	OpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"
)

// ChatClient calls an OpenAI-compatible Chat Completions endpoint. Groq and
// OpenRouter both speak this protocol.
type ChatClient struct {
	http     *http.Client
	provider string
	apiKey   string
	model    string
	endpoint string

	rlMu      sync.RWMutex
	rlLast    RateLimitHeaders
	rlHasLast bool
	rlHandler RateLimitHeaderHandler
}

// ChatConfig configures a ChatClient. Endpoint defaults to the provider's
// public URL; HTTPClient defaults to a client without its own timeout since
// the call deadline comes from the context.
type ChatConfig struct {
	Provider   string
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	model := strings.TrimSpace(cfg.Model)
	if provider == "" || model == "" {
		return nil, fmt.Errorf("chat client: provider and model are required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		switch provider {
		case "groq":
			endpoint = GroqEndpoint
		case "openrouter":
			endpoint = OpenRouterEndpoint
		default:
			return nil, fmt.Errorf("chat client: endpoint is required for provider %q", provider)
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &ChatClient{
		http:     hc,
		provider: provider,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    model,
		endpoint: endpoint,
	}, nil
}

// NewGroqClient creates a client for the Groq API.
func NewGroqClient(apiKey, model string) (*ChatClient, error) {
	return NewChatClient(ChatConfig{Provider: "groq", APIKey: apiKey, Model: model})
}

// NewOpenRouterClient creates a client for the OpenRouter API.
func NewOpenRouterClient(apiKey, model string) (*ChatClient, error) {
	return NewChatClient(ChatConfig{Provider: "openrouter", APIKey: apiKey, Model: model})
}

func (c *ChatClient) Name() string { return c.provider + ":" + c.model }
func (c *ChatClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
func (c *ChatClient) CountTokens(text string) int { return CountTokens(text) }

func (c *ChatClient) SetRateLimitHeaderHandler(handler RateLimitHeaderHandler) {
	c.rlMu.Lock()
	defer c.rlMu.Unlock()
	c.rlHandler = handler
}

func (c *ChatClient) LastRateLimitHeaders() (RateLimitHeaders, bool) {
	c.rlMu.RLock()
	defer c.rlMu.RUnlock()
	return c.rlLast, c.rlHasLast
}

type chatReq struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Invoke sends the prompt as a single user message.
func (c *ChatClient) Invoke(ctx context.Context, in Request) (Response, error) {
	body, err := json.Marshal(chatReq{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: in.Prompt}},
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%s: %w", c.Name(), ErrTimeout)
		}
		return Response{}, &ProviderError{Provider: c.provider, Detail: err.Error()}
	}
	defer resp.Body.Close()
	c.captureRateLimitHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		perr := &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(raw), `"context_length_exceeded"`) {
			return Response{}, NewPermanentError(perr)
		}
		return Response{}, perr
	}

	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode, Detail: "decode response: " + err.Error()}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return Response{}, ErrEmptyCompletion
	}
	res := Response{Text: out.Choices[0].Message.Content}
	if out.Usage != nil {
		res.PromptTokens = out.Usage.PromptTokens
		res.CompletionTokens = out.Usage.CompletionTokens
	}
	return res, nil
}

func (c *ChatClient) captureRateLimitHeaders(h http.Header) {
	parsed, ok := parseRateLimitHeaders(h)
	if !ok {
		return
	}
	c.rlMu.Lock()
	c.rlLast = parsed
	c.rlHasLast = true
	handler := c.rlHandler
	c.rlMu.Unlock()
	if handler != nil {
		handler(parsed)
	}
}
