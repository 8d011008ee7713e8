package db

import "time"

// Term is a stored glossary row.
type Term struct {
	ID           int64
	Pt           string
	Koti         string
	Frequency    int
	Definition   string
	OriginalWord string
}

// Decision is one entry of the review log.
type Decision struct {
	ID             string
	SegmentID      string
	SourceTerm     string
	ExpectedTarget string
	Location       string
	Kind           string
	Reason         string
	Reviewer       string
	DecidedAt      time.Time
}
