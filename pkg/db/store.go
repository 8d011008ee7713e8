package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/japaniel/termaudit/pkg/audit"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Writable segment fields, keyed by their editor name.
const (
	FieldCulturalNotes = "culturalNotes"
	FieldTargetText    = "targetText"
)

var segmentColumns = map[string]string{
	FieldCulturalNotes: "cultural_notes",
	FieldTargetText:    "target_text",
}

// UpsertSegment inserts a segment or replaces its texts. Cultural notes are
// append-only: incoming notes replace the stored ones only when they extend
// them, so re-importing an older export never erases justifications recorded
// since.
func UpsertSegment(db DBExecutor, seg audit.Segment, position int) error {
	id := strings.TrimSpace(seg.ID)
	if id == "" {
		return fmt.Errorf("segment id must be non-empty")
	}
	_, err := db.Exec(`INSERT INTO segments (id, position, source_text, target_text, location_label, cultural_notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  position = excluded.position,
		  source_text = excluded.source_text,
		  target_text = excluded.target_text,
		  location_label = excluded.location_label,
		  cultural_notes = CASE
		    WHEN substr(excluded.cultural_notes, 1, length(segments.cultural_notes)) = segments.cultural_notes
		      THEN excluded.cultural_notes
		    ELSE segments.cultural_notes
		  END,
		  updated_at = excluded.updated_at`,
		id, position, seg.SourceText, seg.TargetText, seg.LocationLabel, seg.CulturalNotes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert segment %s: %w", id, err)
	}
	return nil
}

// GetSegment returns one segment or ErrNotFound.
func GetSegment(db DBExecutor, id string) (audit.Segment, error) {
	var s audit.Segment
	err := db.QueryRow(`SELECT id, source_text, target_text, location_label, cultural_notes FROM segments WHERE id = ?`, id).
		Scan(&s.ID, &s.SourceText, &s.TargetText, &s.LocationLabel, &s.CulturalNotes)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Segment{}, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return audit.Segment{}, err
	}
	return s, nil
}

// ListSegments returns every segment in document order. The result is never
// nil.
func ListSegments(db DBExecutor) ([]audit.Segment, error) {
	rows, err := db.Query(`SELECT id, source_text, target_text, location_label, cultural_notes FROM segments ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []audit.Segment{}
	for rows.Next() {
		var s audit.Segment
		if err := rows.Scan(&s.ID, &s.SourceText, &s.TargetText, &s.LocationLabel, &s.CulturalNotes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateSegmentField replaces one editor-writable field of a segment.
func UpdateSegmentField(db DBExecutor, id, field, value string) error {
	col, ok := segmentColumns[field]
	if !ok {
		return fmt.Errorf("field %q is not writable", field)
	}
	res, err := db.Exec(`UPDATE segments SET `+col+` = ?, updated_at = ? WHERE id = ?`, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update %s of %s: %w", field, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertTerm inserts a glossary term or updates the definition and frequency
// of an existing (pt, koti) pair, returning its id.
func UpsertTerm(db DBExecutor, t Term) (int64, error) {
	pt := strings.TrimSpace(t.Pt)
	koti := strings.TrimSpace(t.Koti)
	if pt == "" || koti == "" {
		return 0, fmt.Errorf("term needs both pt and koti, got %q/%q", t.Pt, t.Koti)
	}
	var id int64
	err := db.QueryRow(`INSERT INTO glossary_terms (pt, koti, frequency, definition, original_word)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pt, koti) DO UPDATE SET
		  frequency = excluded.frequency,
		  definition = COALESCE(NULLIF(excluded.definition, ''), glossary_terms.definition),
		  original_word = COALESCE(NULLIF(excluded.original_word, ''), glossary_terms.original_word)
		RETURNING id`, pt, koti, t.Frequency, t.Definition, t.OriginalWord).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert term: %w", err)
	}
	return id, nil
}

// ListTerms returns the glossary ordered by descending frequency then term.
func ListTerms(db DBExecutor) ([]Term, error) {
	rows, err := db.Query(`SELECT id, pt, koti, frequency, definition, original_word FROM glossary_terms ORDER BY frequency DESC, pt, koti`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Term
	for rows.Next() {
		var t Term
		if err := rows.Scan(&t.ID, &t.Pt, &t.Koti, &t.Frequency, &t.Definition, &t.OriginalWord); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordDecision appends d to the decision log. A missing ID is generated and
// a zero DecidedAt is set to now. The stored ID is returned.
func RecordDecision(db DBExecutor, d Decision) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	_, err := db.Exec(`INSERT INTO decisions (id, segment_id, source_term, expected_target, location, kind, reason, reviewer, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SegmentID, d.SourceTerm, d.ExpectedTarget, d.Location, d.Kind, d.Reason, d.Reviewer, d.DecidedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("record decision: %w", err)
	}
	return d.ID, nil
}

// ListDecisions returns the decision log, oldest first. An empty segmentID
// lists every segment.
func ListDecisions(db DBExecutor, segmentID string) ([]Decision, error) {
	q := `SELECT id, segment_id, source_term, expected_target, location, kind, reason, reviewer, decided_at FROM decisions`
	var args []interface{}
	if segmentID != "" {
		q += ` WHERE segment_id = ?`
		args = append(args, segmentID)
	}
	q += ` ORDER BY decided_at, rowid`

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.SegmentID, &d.SourceTerm, &d.ExpectedTarget, &d.Location, &d.Kind, &d.Reason, &d.Reviewer, &d.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
