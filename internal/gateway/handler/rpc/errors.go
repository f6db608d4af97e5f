package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"connectrpc.com/connect"

	"llmnexus/internal/llm"
	"llmnexus/internal/orchestrator"
	"llmnexus/internal/ratelimit"
	"llmnexus/internal/router"
)

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

func toConnectError(err error) error {
	var limited *ratelimit.LimitError
	switch {
	case errors.As(err, &limited):
		ce := connect.NewError(connect.CodeResourceExhausted, err)
		ce.Meta().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		return ce
	case errors.Is(err, ratelimit.ErrRateLimited):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, router.ErrRoutingExhausted):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, orchestrator.ErrInvalidPrompt), errors.Is(err, router.ErrUnknownObjective):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, orchestrator.ErrRunNotFound), errors.Is(err, llm.ErrModelNotRegistered):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("nexus service failed: %w", err))
	}
}
