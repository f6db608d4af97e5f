package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"llmnexus/internal/tester"
)

func newTestChatClient(t *testing.T, h http.HandlerFunc) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewChatClient(ChatConfig{Provider: "groq", APIKey: "k", Model: "llama", Endpoint: srv.URL})
	tester.NoErr(t, err)
	return c
}

func TestChatClient_InvokeSendsSettingsAndReadsUsage(t *testing.T) {
	var got chatReq
	c := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "no auth", http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"sorted"}}],"usage":{"prompt_tokens":4,"completion_tokens":1}}`))
	})

	var seen RateLimitHeaders
	c.SetRateLimitHeaderHandler(func(h RateLimitHeaders) { seen = h })

	out, err := c.Invoke(context.Background(), Request{Prompt: "write a sort", Temperature: 0.7, MaxTokens: 64})
	tester.NoErr(t, err)
	tester.Eq(t, out.Text, "sorted")
	tester.Eq(t, out.PromptTokens, 4)
	tester.Eq(t, out.CompletionTokens, 1)
	tester.Eq(t, got.Model, "llama")
	tester.Eq(t, got.MaxTokens, 64)
	tester.Eq(t, got.Temperature, 0.7)
	tester.Eq(t, got.Messages[0].Content, "write a sort")
	tester.Eq(t, seen.RemainingRequests, 9)

	last, ok := c.LastRateLimitHeaders()
	tester.True(t, ok)
	tester.Eq(t, last.LimitRequests, 10)
}

func TestChatClient_StatusErrorIsProviderError(t *testing.T) {
	c := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	})
	_, err := c.Invoke(context.Background(), Request{Prompt: "hi"})
	var perr *ProviderError
	tester.True(t, errors.As(err, &perr), "expected ProviderError")
	tester.Eq(t, perr.StatusCode, http.StatusServiceUnavailable)
	tester.Eq(t, perr.Provider, "groq")
}

func TestChatClient_ContextLengthIsPermanent(t *testing.T) {
	c := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"context_length_exceeded"}}`))
	})
	_, err := c.Invoke(context.Background(), Request{Prompt: "hi"})
	var perm *PermanentError
	tester.True(t, errors.As(err, &perm), "expected PermanentError")
}

func TestChatClient_EmptyChoices(t *testing.T) {
	c := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.Invoke(context.Background(), Request{Prompt: "hi"})
	tester.ErrIs(t, err, ErrEmptyCompletion)
}

func TestChatClient_DeadlineIsTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, Request{Prompt: "hi"})
	tester.ErrIs(t, err, ErrTimeout)
	tester.True(t, IsTimeout(err))
}

func TestNewChatClient_UnknownProviderNeedsEndpoint(t *testing.T) {
	_, err := NewChatClient(ChatConfig{Provider: "acme", Model: "m"})
	tester.True(t, err != nil)

	c, err := NewOpenRouterClient("k", "mistral")
	tester.NoErr(t, err)
	tester.Eq(t, c.endpoint, OpenRouterEndpoint)
	tester.Eq(t, c.Name(), "openrouter:mistral")
}

func TestFakeClient_HonorsDeadline(t *testing.T) {
	f := &FakeClient{Model: "slow", Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Invoke(ctx, Request{Prompt: "x"})
	tester.ErrIs(t, err, ErrTimeout)
	tester.Eq(t, f.Calls(), 1)
}

func TestCountTokens(t *testing.T) {
	tester.Eq(t, CountTokens(""), 0)
	tester.Eq(t, CountTokens("write a sort function"), 4)
	tester.Eq(t, CountTokens("abcdefgh"), 2)
	tester.Eq(t, CountTokens("a"), 1)
}
