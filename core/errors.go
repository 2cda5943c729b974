package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the backend error taxonomy. Subsystems wrap these
// with fmt.Errorf("...: %w", ...) so the HTTP boundary can map any error
// chain to a status code with errors.Is.
var (
	// ErrInvalidArgument marks malformed or missing required input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks an unknown agent, session or resource.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a dependent subsystem that is not ready or not
	// reachable. Callers may retry.
	ErrUnavailable = errors.New("unavailable")
)

// UpstreamError wraps a failure from the model provider. The message is
// surfaced to callers but must never carry credentials or provider config.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether any error in the chain is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
