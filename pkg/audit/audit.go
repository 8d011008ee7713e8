// Package audit detects terminology drift between translated segments and the
// project term memory.
package audit

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// DriftMarker is reported as the detected target of every finding. The scanner
// only knows the expected term is missing, not which word replaced it.
const DriftMarker = "DESVIO_DETECTADO"

// TermMemoryEntry is one glossary-enforced mapping.
type TermMemoryEntry struct {
	SourceTerm string `json:"sourceTerm" yaml:"source_term"`
	TargetTerm string `json:"targetTerm" yaml:"target_term"`
	Frequency  int    `json:"frequency" yaml:"frequency"`
}

// Segment is one translatable unit (a verse) with paired source and target text.
type Segment struct {
	ID            string `json:"id"`
	SourceText    string `json:"sourceText"`
	TargetText    string `json:"targetText"`
	LocationLabel string `json:"locationLabel"` // e.g. "Zapuura 1:1"
	CulturalNotes string `json:"culturalNotes,omitempty"`
}

// Inconsistency is a segment that carries a source term without its mandated
// target equivalent. Findings are recomputed on every scan and never stored.
type Inconsistency struct {
	VerseID        string `json:"verseId"`
	SourceTerm     string `json:"sourceTerm"`
	ExpectedTarget string `json:"expectedTarget"`
	DetectedTarget string `json:"detectedTarget"`
	Context        string `json:"context"`
	Location       string `json:"location"`
}

// Key identifies a finding across scans: the same verse violating the same
// mapping produces the same key.
func (i Inconsistency) Key() string {
	return i.VerseID + "\x00" + i.SourceTerm + "\x00" + i.ExpectedTarget
}
