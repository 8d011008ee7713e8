package glossary

import (
	"sort"
	"strings"
	"sync"

	"github.com/japaniel/termaudit/pkg/audit"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Index answers "which approved renderings exist for this source term".
// Lookups are case-insensitive and normalization-insensitive.
type Index struct {
	// index is read by the review screen while a rescan may Replace it.
	mu    sync.RWMutex
	index map[string][]Term
}

// NewIndex builds an index over terms.
func NewIndex(terms []Term) *Index {
	ix := &Index{}
	ix.Replace(terms)
	return ix
}

// Replace swaps the indexed terms.
func (ix *Index) Replace(terms []Term) {
	c := cases.Fold()
	idx := make(map[string][]Term)
	for _, t := range terms {
		if !t.Valid() {
			continue
		}
		k := key(c, t.Pt)
		idx[k] = append(idx[k], t)
	}
	for k := range idx {
		entries := idx[k]
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Frequency > entries[j].Frequency
		})
	}

	ix.mu.Lock()
	ix.index = idx
	ix.mu.Unlock()
}

// Lookup returns the terms registered for source, most frequent first.
func (ix *Index) Lookup(source string) []Term {
	k := key(cases.Fold(), source)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entries := ix.index[k]
	if len(entries) == 0 {
		return nil
	}
	return append([]Term(nil), entries...)
}

// Len returns the number of distinct source terms.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.index)
}

// Terms returns every indexed term ordered by source term.
func (ix *Index) Terms() []Term {
	ix.mu.RLock()
	keys := make([]string, 0, len(ix.index))
	for k := range ix.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []Term
	for _, k := range keys {
		out = append(out, ix.index[k]...)
	}
	ix.mu.RUnlock()
	return out
}

func key(c cases.Caser, s string) string {
	return c.String(norm.NFC.String(strings.TrimSpace(s)))
}

// CountUsage returns terms with Frequency recomputed as the number of
// segments whose target text contains the approved rendering.
func CountUsage(segments []audit.Segment, terms []Term) []Term {
	c := cases.Fold()
	targets := make([]string, len(segments))
	for i, s := range segments {
		targets[i] = c.String(norm.NFC.String(s.TargetText))
	}

	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = t
		if !t.Valid() {
			continue
		}
		needle := key(c, t.Target())
		n := 0
		for _, tgt := range targets {
			if strings.Contains(tgt, needle) {
				n++
			}
		}
		out[i].Frequency = n
	}
	return out
}
