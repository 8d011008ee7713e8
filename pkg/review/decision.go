package review

import (
	"fmt"
	"time"

	"github.com/japaniel/termaudit/pkg/audit"
)

// Decision is the reviewer's verdict on one finding. The set of
// implementations is closed: GlobalFix, LocalException and Ignore.
type Decision interface {
	// Kind is a stable name used when decisions are persisted.
	Kind() string
	decision()
}

// GlobalFix asks the editor to force the expected term into the segment.
type GlobalFix struct{}

// LocalException keeps the deviation and records why.
type LocalException struct {
	Reason string
}

// Ignore hides the finding until the next scan.
type Ignore struct{}

func (GlobalFix) Kind() string      { return "global_fix" }
func (LocalException) Kind() string { return "local_exception" }
func (Ignore) Kind() string         { return "ignore" }

func (GlobalFix) decision()      {}
func (LocalException) decision() {}
func (Ignore) decision()         {}

// ParseDecision builds a Decision from its persisted kind.
func ParseDecision(kind, reason string) (Decision, error) {
	switch kind {
	case GlobalFix{}.Kind():
		return GlobalFix{}, nil
	case LocalException{}.Kind():
		return LocalException{Reason: reason}, nil
	case Ignore{}.Kind():
		return Ignore{}, nil
	default:
		return nil, fmt.Errorf("unknown decision kind %q", kind)
	}
}

// GlobalFixIntent instructs the editor to rewrite one segment so that it uses
// the expected target term. The workflow only emits it; the text rewrite
// belongs to the editor.
type GlobalFixIntent struct {
	SegmentID      string
	SourceTerm     string
	ExpectedTarget string
	Location       string
}

// Resolution is the record of one terminal decision.
type Resolution struct {
	Inconsistency audit.Inconsistency
	Decision      Decision
	At            time.Time
}
