package llmclient

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is reported when a backend did not answer before its deadline.
	ErrTimeout = errors.New("backend timeout")
	// ErrEmptyCompletion is reported when a provider answered without any text.
	ErrEmptyCompletion = errors.New("empty completion from provider")
)

// ProviderError carries the provider's own failure detail.
type ProviderError struct {
	Provider   string
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
}

// PermanentError indicates an error that will not resolve by calling again
// with the same input.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsTimeout reports whether err means the call ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
