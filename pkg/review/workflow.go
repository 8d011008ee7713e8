// Package review walks a reviewer through the findings of a scan and records
// the decision taken for each one.
package review

import (
	"fmt"
	"slices"
	"time"

	"github.com/japaniel/termaudit/pkg/audit"
	"go.uber.org/zap"
)

// State is the workflow screen.
type State int

const (
	// Listing shows the current findings; nothing is selected.
	Listing State = iota
	// Reviewing shows one selected finding and its expected term.
	Reviewing
	// Justifying collects the reason for a local exception.
	Justifying
)

func (s State) String() string {
	switch s {
	case Listing:
		return "listing"
	case Reviewing:
		return "reviewing"
	case Justifying:
		return "justifying"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithGlobalFixHandler receives the intent emitted by every GlobalFix decision.
func WithGlobalFixHandler(h func(GlobalFixIntent)) WorkflowOption {
	return func(w *Workflow) { w.onGlobalFix = h }
}

// WithResolutionHandler receives every terminal decision.
func WithResolutionHandler(h func(Resolution)) WorkflowOption {
	return func(w *Workflow) { w.onResolved = h }
}

// WithWorkflowLogger sets the logger.
func WithWorkflowLogger(l *zap.Logger) WorkflowOption {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock overrides time.Now for resolution timestamps.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// Workflow is the resolution state machine. It is meant to be driven from a
// single goroutine (the host's UI loop) and is not safe for concurrent use.
type Workflow struct {
	state    State
	items    []audit.Inconsistency
	active   int
	recorder *Recorder

	onGlobalFix func(GlobalFixIntent)
	onResolved  func(Resolution)
	now         func() time.Time
	logger      *zap.Logger
}

// NewWorkflow creates a workflow in the Listing state with an empty list.
func NewWorkflow(recorder *Recorder, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		state:    Listing,
		items:    []audit.Inconsistency{},
		active:   -1,
		recorder: recorder,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current state.
func (w *Workflow) State() State { return w.state }

// Inconsistencies returns a copy of the active list.
func (w *Workflow) Inconsistencies() []audit.Inconsistency {
	return slices.Clone(w.items)
}

// Active returns the selected finding, if any.
func (w *Workflow) Active() (audit.Inconsistency, bool) {
	if w.active < 0 {
		return audit.Inconsistency{}, false
	}
	return w.items[w.active], true
}

// SetInconsistencies replaces the list with a fresh scan result. A finding
// under review stays selected if the new list still contains it.
func (w *Workflow) SetInconsistencies(list []audit.Inconsistency) {
	var key string
	if cur, ok := w.Active(); ok {
		key = cur.Key()
	}
	w.items = slices.Clone(list)
	if w.items == nil {
		w.items = []audit.Inconsistency{}
	}
	w.active = -1
	if key == "" {
		return
	}
	for i, inc := range w.items {
		if inc.Key() == key {
			w.active = i
			return
		}
	}
	w.logger.Debug("finding under review disappeared after rescan", zap.String("state", w.state.String()))
	w.state = Listing
}

// Select moves from Listing to Reviewing the finding at index i.
func (w *Workflow) Select(i int) error {
	if w.state != Listing {
		return w.invalid("select")
	}
	if i < 0 || i >= len(w.items) {
		return fmt.Errorf("%w: index %d of %d", ErrNoSuchInconsistency, i, len(w.items))
	}
	w.active = i
	w.state = Reviewing
	return nil
}

// ChooseGlobalFix resolves the reviewed finding by forcing the expected term.
func (w *Workflow) ChooseGlobalFix() error {
	if w.state != Reviewing {
		return w.invalid("global fix")
	}
	inc := w.items[w.active]
	if w.onGlobalFix != nil {
		w.onGlobalFix(GlobalFixIntent{
			SegmentID:      inc.VerseID,
			SourceTerm:     inc.SourceTerm,
			ExpectedTarget: inc.ExpectedTarget,
			Location:       inc.Location,
		})
	}
	w.finish(GlobalFix{})
	return nil
}

// ChooseLocalException moves from Reviewing to Justifying.
func (w *Workflow) ChooseLocalException() error {
	if w.state != Reviewing {
		return w.invalid("local exception")
	}
	w.state = Justifying
	return nil
}

// Ignore drops the reviewed finding for this cycle. It comes back on the next
// scan unless the segment changes.
func (w *Workflow) Ignore() error {
	if w.state != Reviewing {
		return w.invalid("ignore")
	}
	w.finish(Ignore{})
	return nil
}

// Cancel steps back one screen: Justifying to Reviewing, Reviewing to Listing.
func (w *Workflow) Cancel() error {
	switch w.state {
	case Justifying:
		w.state = Reviewing
	case Reviewing:
		w.state = Listing
		w.active = -1
	default:
		return w.invalid("cancel")
	}
	return nil
}

// Confirm records the local exception with reason. A reason that is too short
// returns a *ValidationError and leaves the workflow in Justifying.
func (w *Workflow) Confirm(reason string) error {
	if w.state != Justifying {
		return w.invalid("confirm")
	}
	if err := ValidateReason(reason); err != nil {
		return err
	}
	if w.recorder == nil {
		return fmt.Errorf("confirm: no justification recorder configured")
	}
	inc := w.items[w.active]
	if _, err := w.recorder.Record(inc, reason); err != nil {
		w.logger.Error("recording justification failed", zap.String("segment", inc.VerseID), zap.Error(err))
		return err
	}
	w.finish(LocalException{Reason: reason})
	return nil
}

// Resolve applies a complete decision to the reviewed finding.
func (w *Workflow) Resolve(d Decision) error {
	if w.state != Reviewing {
		return w.invalid("resolve")
	}
	switch d := d.(type) {
	case GlobalFix:
		return w.ChooseGlobalFix()
	case LocalException:
		if err := ValidateReason(d.Reason); err != nil {
			return err
		}
		if err := w.ChooseLocalException(); err != nil {
			return err
		}
		if err := w.Confirm(d.Reason); err != nil {
			w.state = Reviewing
			return err
		}
		return nil
	case Ignore:
		return w.Ignore()
	default:
		return fmt.Errorf("%w: unsupported decision %T", ErrInvalidTransition, d)
	}
}

func (w *Workflow) finish(d Decision) {
	inc := w.items[w.active]
	w.items = slices.Delete(w.items, w.active, w.active+1)
	w.active = -1
	w.state = Listing

	w.logger.Info("inconsistency resolved",
		zap.String("decision", d.Kind()),
		zap.String("segment", inc.VerseID),
		zap.String("term", inc.SourceTerm))
	if w.onResolved != nil {
		w.onResolved(Resolution{Inconsistency: inc, Decision: d, At: w.now()})
	}
}

func (w *Workflow) invalid(action string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, action, w.state)
}
