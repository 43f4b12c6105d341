package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTrailer means every catalog definitively reported no trailer.
	// Stable across retries, and the only thing that justifies an ignore entry.
	ErrNoTrailer = errors.New("no trailer available")

	// ErrUnavailable means one candidate's handle could not be turned into a
	// playable reference (restricted or removed). Disqualifies that candidate
	// and triggers fallback, never an ignore entry by itself.
	ErrUnavailable = errors.New("playable reference unavailable")

	// ErrCorruptState means a persisted state file could not be parsed.
	// Surfaced at startup so nothing is silently overwritten.
	ErrCorruptState = errors.New("corrupt state file")
)

// TransientError marks network-shaped failures (timeouts, HTTP 5xx, rate
// limits) that are worth retrying and must never be mistaken for not-found.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError tagged with the failing operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
