package review

import (
	"errors"
	"fmt"
)

var (
	// ErrReasonTooShort is wrapped by ValidationError when a justification is too short.
	ErrReasonTooShort = errors.New("justification reason too short")
	// ErrInvalidTransition is returned when an action does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrNoSuchInconsistency is returned when selecting outside the active list.
	ErrNoSuchInconsistency = errors.New("no such inconsistency")
	// ErrSegmentNotFound is returned by SegmentStore implementations for unknown ids.
	ErrSegmentNotFound = errors.New("segment not found")
)

// ValidationError is a recoverable input problem meant to be shown inline to
// the reviewer.
type ValidationError struct {
	Field string
	Min   int
	Got   int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s must have at least %d characters (got %d)", e.Field, e.Min, e.Got)
}

func (e *ValidationError) Unwrap() error { return e.Err }
