package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDiffUnavailable means the diff for the job's head SHA could not be
	// retrieved. It is fatal to the job: no chunks are produced.
	ErrDiffUnavailable = errors.New("diff unavailable")

	// ErrDuplicateDelivery means the delivery ID was already admitted.
	// Dropped silently; not an operational error.
	ErrDuplicateDelivery = errors.New("duplicate delivery")

	// ErrSuperseded means a newer head SHA replaced the job while it was
	// running. Cooperative cancellation; not an operational error.
	ErrSuperseded = errors.New("job superseded")

	// ErrTerminalState means a job's terminal status was already written and
	// a second finalization was refused.
	ErrTerminalState = errors.New("job already in terminal state")
)

// ProviderError is a classified failure from a model provider. Transient
// failures (rate limit, 5xx, timeout) are retried with backoff; everything
// else fails the chunk immediately.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider error (%s, status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a provider error worth retrying.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
