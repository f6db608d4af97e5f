package globalctx

import (
	"context"
	"testing"
)

func TestIdentityFrom_DefaultAndOverride(t *testing.T) {
	ctx := context.Background()
	if got := IdentityFrom(ctx); got != "" {
		t.Fatalf("default identity: got=%q want empty", got)
	}

	ctx = WithIdentity(ctx, "  u1 ")
	if got := IdentityFrom(ctx); got != "u1" {
		t.Fatalf("identity: got=%q want=u1", got)
	}

	ctx = WithRunID(ctx, "run-1")
	if got := IdentityFrom(ctx); got != "u1" {
		t.Fatalf("identity lost after run id: got=%q", got)
	}
	if got := RunIDFrom(ctx); got != "run-1" {
		t.Fatalf("run id: got=%q want=run-1", got)
	}
}

func TestGlobalContextFrom_NilContext(t *testing.T) {
	if got := GlobalContextFrom(nil); got != (GlobalContext{}) {
		t.Fatalf("nil context: got=%+v", got)
	}
}
