package escrow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the escrow identifier does not exist in the ledger.
	ErrNotFound = errors.New("escrow: not found")
	// ErrInvalidInput rejects malformed payloads before any state lookup.
	ErrInvalidInput = errors.New("escrow: invalid input")
	// ErrInvalidTransition rejects actions that are not legal from the current
	// status. Non-retryable.
	ErrInvalidTransition = errors.New("escrow: invalid transition")
	// ErrUnauthorized rejects actions by actors not entitled to perform them.
	// Non-retryable.
	ErrUnauthorized = errors.New("escrow: unauthorized")
	// ErrConcurrentModification indicates a version mismatch or lease
	// contention. Callers should reload current state and retry.
	ErrConcurrentModification = errors.New("escrow: concurrent modification")
	// ErrIdempotencyMismatch indicates an idempotency token was reused with a
	// different payload.
	ErrIdempotencyMismatch = errors.New("escrow: idempotency token reuse with different payload")
	// ErrUnavailable surfaces exhausted storage retries.
	ErrUnavailable = errors.New("escrow: storage unavailable")
)

// StatusError wraps a rejection with the escrow status observed at rejection
// time so callers can resync their view without a second read.
type StatusError struct {
	Err    error
	Action Action
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: cannot %s in status %s", e.Err, e.Action, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

func invalidTransition(action Action, status Status) error {
	return &StatusError{Err: ErrInvalidTransition, Action: action, Status: status}
}

func unauthorized(action Action, status Status) error {
	return &StatusError{Err: ErrUnauthorized, Action: action, Status: status}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// CurrentStatus extracts the status echoed back by a rejection, if any.
func CurrentStatus(err error) (Status, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, true
	}
	return "", false
}
