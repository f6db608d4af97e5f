package llmclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// FakeClient is an in-process backend for local runs and tests. It answers
// with Text after Delay, or fails with Err, and honors context cancellation.
type FakeClient struct {
	Model string
	Text  string
	Delay time.Duration
	Err   error

	calls  atomic.Int64
	closed atomic.Bool
}

func NewFakeClient(model string) *FakeClient {
	return &FakeClient{Model: model}
}

func (f *FakeClient) Name() string                { return "fake:" + f.Model }
func (f *FakeClient) CountTokens(text string) int { return CountTokens(text) }
func (f *FakeClient) Calls() int                  { return int(f.calls.Load()) }
func (f *FakeClient) Closed() bool                { return f.closed.Load() }

func (f *FakeClient) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *FakeClient) Invoke(ctx context.Context, req Request) (Response, error) {
	f.calls.Add(1)
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			if IsTimeout(ctx.Err()) {
				return Response{}, fmt.Errorf("%s: %w", f.Name(), ErrTimeout)
			}
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}
	if f.Err != nil {
		return Response{}, f.Err
	}
	text := f.Text
	if text == "" {
		text = fmt.Sprintf("[%s] %s", f.Model, req.Prompt)
	}
	return Response{
		Text:             text,
		PromptTokens:     CountTokens(req.Prompt),
		CompletionTokens: CountTokens(text),
	}, nil
}
