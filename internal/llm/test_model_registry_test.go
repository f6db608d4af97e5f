package llm

import (
	"context"
	"errors"
	"testing"

	"llmnexus/internal/llmclient"
	"llmnexus/internal/tester"
)

func fakeFactory(built *int) ClientFactory {
	return func(_ context.Context, desc ModelDescriptor) (llmclient.BackendClient, error) {
		*built++
		return llmclient.NewFakeClient(desc.Model), nil
	}
}

func TestRegistry_BuildsClientOnce(t *testing.T) {
	built := 0
	r := NewInMemoryModelRegistry(nil)
	tester.NoErr(t, r.RegisterModel(ModelRegistration{
		Descriptor: ModelDescriptor{ID: "coder-a", Provider: "Fake", Model: "a"},
		Factory:    fakeFactory(&built),
	}))

	c1, err := r.Client(context.Background(), "coder-a")
	tester.NoErr(t, err)
	c2, err := r.Client(context.Background(), " CODER-A ")
	tester.NoErr(t, err)
	tester.True(t, c1 == c2, "expected cached client")
	tester.Eq(t, built, 1)

	desc, ok := r.Descriptor("coder-a")
	tester.True(t, ok)
	tester.Eq(t, desc.Provider, "fake")
}

func TestRegistry_UnknownModel(t *testing.T) {
	r := NewInMemoryModelRegistry(nil)
	_, err := r.Client(context.Background(), "missing")
	tester.ErrIs(t, err, ErrModelNotRegistered)
}

func TestRegistry_ReplaceClosesPreviousClient(t *testing.T) {
	r := NewInMemoryModelRegistry(nil)
	first := llmclient.NewFakeClient("a")
	tester.NoErr(t, r.RegisterModel(ModelRegistration{
		Descriptor: ModelDescriptor{ID: "m", Provider: "fake", Model: "a"},
		Factory: func(context.Context, ModelDescriptor) (llmclient.BackendClient, error) {
			return first, nil
		},
	}))
	_, err := r.Client(context.Background(), "m")
	tester.NoErr(t, err)

	built := 0
	tester.NoErr(t, r.RegisterModel(ModelRegistration{
		Descriptor: ModelDescriptor{ID: "m", Provider: "fake", Model: "b"},
		Factory:    fakeFactory(&built),
	}))
	tester.True(t, first.Closed(), "previous client should be closed")
	tester.Eq(t, len(r.Descriptors()), 1)
	tester.Eq(t, r.IDs(), []string{"m"})
}

func TestRegistry_RejectsInvalidRegistration(t *testing.T) {
	r := NewInMemoryModelRegistry(nil)
	built := 0
	cases := []ModelRegistration{
		{Descriptor: ModelDescriptor{ID: "x", Provider: "fake", Model: "x"}},
		{Descriptor: ModelDescriptor{Provider: "fake", Model: "x"}, Factory: fakeFactory(&built)},
		{Descriptor: ModelDescriptor{ID: "x", Model: "x"}, Factory: fakeFactory(&built)},
		{Descriptor: ModelDescriptor{ID: "x", Provider: "fake", Model: "x", CostPerToken: -1}, Factory: fakeFactory(&built)},
	}
	for i, c := range cases {
		if err := r.RegisterModel(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestRegistry_FactoryErrorIsNotCached(t *testing.T) {
	r := NewInMemoryModelRegistry(nil)
	calls := 0
	tester.NoErr(t, r.RegisterModel(ModelRegistration{
		Descriptor: ModelDescriptor{ID: "flaky", Provider: "fake", Model: "f"},
		Factory: func(context.Context, ModelDescriptor) (llmclient.BackendClient, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("no credentials")
			}
			return llmclient.NewFakeClient("f"), nil
		},
	}))
	_, err := r.Client(context.Background(), "flaky")
	tester.True(t, err != nil)
	_, err = r.Client(context.Background(), "flaky")
	tester.NoErr(t, err)
	tester.Eq(t, calls, 2)
}

func TestRegistry_AppliesChainPerModel(t *testing.T) {
	var seen []string
	r := NewInMemoryModelRegistry(func(d ModelDescriptor) []Middleware {
		seen = append(seen, d.ID)
		return []Middleware{WithLogging(nil)}
	})
	built := 0
	tester.NoErr(t, r.RegisterModel(ModelRegistration{
		Descriptor: ModelDescriptor{ID: "m", Provider: "fake", Model: "m"},
		Factory:    fakeFactory(&built),
	}))
	c, err := r.Client(context.Background(), "m")
	tester.NoErr(t, err)
	_, isLogging := c.(*logging)
	tester.True(t, isLogging, "expected logging middleware")
	tester.Eq(t, seen, []string{"m"})
	tester.NoErr(t, r.Close())
}
