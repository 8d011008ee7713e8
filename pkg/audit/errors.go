package audit

import "errors"

var (
	// ErrNilSegments is reported when a scan is requested without a segment collection.
	ErrNilSegments = errors.New("segments collection is absent")
	// ErrNilMemory is reported when a scan is requested without a term memory.
	ErrNilMemory = errors.New("term memory collection is absent")
)

// InputContractError reports a structurally absent input collection. Empty
// collections are valid input; nil ones are a caller bug.
type InputContractError struct {
	Err error
}

func (e *InputContractError) Error() string { return "input contract violation: " + e.Err.Error() }

func (e *InputContractError) Unwrap() error { return e.Err }

func checkInputs(segments []Segment, memory []TermMemoryEntry) error {
	if segments == nil {
		return &InputContractError{Err: ErrNilSegments}
	}
	if memory == nil {
		return &InputContractError{Err: ErrNilMemory}
	}
	return nil
}
