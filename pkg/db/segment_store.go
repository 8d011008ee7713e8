package db

import (
	"errors"
	"fmt"

	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/japaniel/termaudit/pkg/review"
)

// Store exposes the segments table as the editor-side store the review
// workflow writes justifications through.
type Store struct {
	db DBExecutor
}

var _ review.SegmentStore = (*Store)(nil)

// NewStore wraps db.
func NewStore(db DBExecutor) *Store {
	return &Store{db: db}
}

// CulturalNotes implements review.SegmentStore.
func (s *Store) CulturalNotes(segmentID string) (string, error) {
	seg, err := GetSegment(s.db, segmentID)
	if err != nil {
		return "", notFound(segmentID, err)
	}
	return seg.CulturalNotes, nil
}

// UpdateSegmentField implements review.SegmentStore.
func (s *Store) UpdateSegmentField(segmentID, field, value string) error {
	return notFound(segmentID, UpdateSegmentField(s.db, segmentID, field, value))
}

// Segments returns every segment in document order.
func (s *Store) Segments() ([]audit.Segment, error) {
	return ListSegments(s.db)
}

func notFound(id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", id, review.ErrSegmentNotFound)
	}
	return err
}
