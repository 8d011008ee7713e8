package audit

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// folder normalizes text for case-insensitive substring matching.
// cases.Caser is stateful, so each scan (and each parallel chunk) owns one.
type folder struct {
	c cases.Caser
}

func newFolder() *folder {
	return &folder{c: cases.Fold()}
}

func (f *folder) fold(s string) string {
	return f.c.String(norm.NFC.String(s))
}

// foldedEntry caches the folded terms of a memory entry for one scan.
type foldedEntry struct {
	entry  TermMemoryEntry
	source string
	target string
}

func foldMemory(f *folder, memory []TermMemoryEntry) []foldedEntry {
	out := make([]foldedEntry, 0, len(memory))
	for _, m := range memory {
		src := strings.TrimSpace(m.SourceTerm)
		tgt := strings.TrimSpace(m.TargetTerm)
		// An empty needle matches everything; that is a broken glossary row, not drift.
		if src == "" || tgt == "" {
			continue
		}
		out = append(out, foldedEntry{entry: m, source: f.fold(src), target: f.fold(tgt)})
	}
	return out
}

// Scan reports every (segment, memory entry) pair where the segment's source
// text contains the entry's source term but its target text lacks the target
// term. Output order is segment order, then memory order.
func Scan(segments []Segment, memory []TermMemoryEntry) ([]Inconsistency, error) {
	if err := checkInputs(segments, memory); err != nil {
		return nil, err
	}
	f := newFolder()
	return scanChunk(f, segments, foldMemory(f, memory)), nil
}

func scanChunk(f *folder, segments []Segment, memory []foldedEntry) []Inconsistency {
	found := []Inconsistency{}
	for _, seg := range segments {
		if strings.TrimSpace(seg.TargetText) == "" {
			continue
		}
		source := f.fold(seg.SourceText)
		target := f.fold(seg.TargetText)

		for _, m := range memory {
			if !strings.Contains(source, m.source) {
				continue
			}
			if strings.Contains(target, m.target) {
				continue
			}
			found = append(found, Inconsistency{
				VerseID:        seg.ID,
				SourceTerm:     m.entry.SourceTerm,
				ExpectedTarget: m.entry.TargetTerm,
				DetectedTarget: DriftMarker,
				Context:        seg.SourceText,
				Location:       seg.LocationLabel,
			})
		}
	}
	return found
}

// ScanParallel splits segments into contiguous chunks and scans them
// concurrently. The result is identical to Scan on the same input.
func ScanParallel(ctx context.Context, segments []Segment, memory []TermMemoryEntry, workers int) ([]Inconsistency, error) {
	if err := checkInputs(segments, memory); err != nil {
		return nil, err
	}
	if workers <= 1 || len(segments) < 2*workers {
		return Scan(segments, memory)
	}

	chunkSize := (len(segments) + workers - 1) / workers
	chunks := make([][]Inconsistency, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		if start >= len(segments) {
			break
		}
		end := min(start+chunkSize, len(segments))
		idx := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := newFolder()
			chunks[idx] = scanChunk(f, segments[start:end], foldMemory(f, memory))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := []Inconsistency{}
	for _, c := range chunks {
		found = append(found, c...)
	}
	return found, nil
}
