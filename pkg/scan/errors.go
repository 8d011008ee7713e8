package scan

import "errors"

// ErrScanTimeout is reported when the engine does not answer within the
// configured window. The late answer, if any, is discarded.
var ErrScanTimeout = errors.New("scan timed out")

// TransportError reports a failure of the scan channel itself rather than of
// the scan logic: a crashed engine, a closed pool, a canceled host context.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "scan transport failure: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
