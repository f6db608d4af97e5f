package globalctx

import (
	"context"
	"strings"
)

type ctxKeyGlobalContext struct{}

// GlobalContext carries per-request values set at the transport boundary.
type GlobalContext struct {
	Identity string
	RunID    string
}

func WithGlobalContext(ctx context.Context, gc GlobalContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	gc.Identity = strings.TrimSpace(gc.Identity)
	gc.RunID = strings.TrimSpace(gc.RunID)
	return context.WithValue(ctx, ctxKeyGlobalContext{}, gc)
}

func GlobalContextFrom(ctx context.Context) GlobalContext {
	if ctx != nil {
		if v := ctx.Value(ctxKeyGlobalContext{}); v != nil {
			if gc, ok := v.(GlobalContext); ok {
				return gc
			}
		}
	}
	return GlobalContext{}
}

// WithIdentity records the caller identity. Identity is opaque; only outer
// whitespace is removed.
func WithIdentity(ctx context.Context, identity string) context.Context {
	gc := GlobalContextFrom(ctx)
	gc.Identity = identity
	return WithGlobalContext(ctx, gc)
}

func IdentityFrom(ctx context.Context) string {
	return GlobalContextFrom(ctx).Identity
}

func WithRunID(ctx context.Context, runID string) context.Context {
	gc := GlobalContextFrom(ctx)
	gc.RunID = runID
	return WithGlobalContext(ctx, gc)
}

func RunIDFrom(ctx context.Context) string {
	return GlobalContextFrom(ctx).RunID
}
