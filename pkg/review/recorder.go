package review

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/japaniel/termaudit/pkg/audit"
	"go.uber.org/zap"
)

const (
	// FieldCulturalNotes is the only segment field the recorder writes.
	FieldCulturalNotes = "culturalNotes"
	// MinReasonLength is the minimum justification length, in characters.
	MinReasonLength = 10
	// noteSeparator keeps successive justifications apart in the notes field.
	noteSeparator = "\n\n"
)

// SegmentStore is the editor-side contract the recorder writes through.
type SegmentStore interface {
	// CulturalNotes returns the current notes of a segment, or ErrSegmentNotFound.
	CulturalNotes(segmentID string) (string, error)
	// UpdateSegmentField replaces one field of a segment.
	UpdateSegmentField(segmentID, field, value string) error
}

// ValidateReason checks the minimum justification length in runes, after
// trimming surrounding whitespace: " 123456789" has ten characters as typed
// but is rejected, since padding is not justification.
func ValidateReason(reason string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(reason))
	if n < MinReasonLength {
		return &ValidationError{Field: "reason", Min: MinReasonLength, Got: n, Err: ErrReasonTooShort}
	}
	return nil
}

// FormatJustification renders the audit line appended for a local exception.
// The reason is recorded trimmed, matching what ValidateReason counted.
func FormatJustification(inc audit.Inconsistency, reason string) string {
	translation := inc.DetectedTarget
	if translation == "" {
		translation = inc.ExpectedTarget
	}
	return fmt.Sprintf("Termo: %s | Tradução: %s | Notas Culturais: Contexto de %s | Justificativa: %s",
		inc.SourceTerm, translation, inc.Location, strings.TrimSpace(reason))
}

// AppendNote appends line to existing notes without ever overwriting them.
func AppendNote(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + noteSeparator + line
}

// Recorder appends justifications to a segment's cultural notes.
type Recorder struct {
	store  SegmentStore
	logger *zap.Logger
}

// NewRecorder creates a Recorder writing through store.
func NewRecorder(store SegmentStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Record validates reason and appends the formatted justification to the
// segment named by inc. It returns the new notes value.
func (r *Recorder) Record(inc audit.Inconsistency, reason string) (string, error) {
	if err := ValidateReason(reason); err != nil {
		return "", err
	}
	existing, err := r.store.CulturalNotes(inc.VerseID)
	if err != nil {
		return "", fmt.Errorf("read notes of %s: %w", inc.VerseID, err)
	}
	notes := AppendNote(existing, FormatJustification(inc, reason))
	if err := r.store.UpdateSegmentField(inc.VerseID, FieldCulturalNotes, notes); err != nil {
		return "", fmt.Errorf("update notes of %s: %w", inc.VerseID, err)
	}
	r.logger.Info("justification recorded",
		zap.String("segment", inc.VerseID),
		zap.String("term", inc.SourceTerm),
		zap.String("location", inc.Location))
	return notes, nil
}
