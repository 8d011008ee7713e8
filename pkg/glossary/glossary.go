// Package glossary loads the project's approved term list and turns it into
// the term memory the scanner checks against.
package glossary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/japaniel/termaudit/pkg/audit"
	"gopkg.in/yaml.v3"
)

// Term is one approved glossary row. Pt is the Portuguese source term and
// Koti the Ekoti rendering the team agreed on.
type Term struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Pt           string `json:"pt" yaml:"pt"`
	Koti         string `json:"koti" yaml:"koti"`
	Frequency    int    `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Definition   string `json:"definition,omitempty" yaml:"definition,omitempty"`
	OriginalWord string `json:"originalWord,omitempty" yaml:"originalWord,omitempty"`
	// Term is the legacy alias of Koti found in older exports.
	Term string `json:"term,omitempty" yaml:"term,omitempty"`
}

// Target returns the approved rendering, falling back to the legacy field.
func (t Term) Target() string {
	if s := strings.TrimSpace(t.Koti); s != "" {
		return s
	}
	return strings.TrimSpace(t.Term)
}

// Valid reports whether the row can take part in a scan.
func (t Term) Valid() bool {
	return strings.TrimSpace(t.Pt) != "" && t.Target() != ""
}

// Load reads a glossary file. YAML is chosen by the .yaml/.yml extension;
// anything else is parsed as JSON, either as {"terms": [...]} or a bare array.
func Load(path string) ([]Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(f)
	default:
		return decodeJSON(f)
	}
}

func decodeJSON(r io.ReadSeeker) ([]Term, error) {
	var wrapper struct {
		Terms []Term `json:"terms"`
	}
	// Try the object wrapper first { "terms": [...] }
	if err := json.NewDecoder(r).Decode(&wrapper); err == nil && len(wrapper.Terms) > 0 {
		return wrapper.Terms, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var terms []Term
	if err := json.NewDecoder(r).Decode(&terms); err != nil {
		return nil, fmt.Errorf("failed to parse glossary as object or array: %w", err)
	}
	return terms, nil
}

func decodeYAML(r io.ReadSeeker) ([]Term, error) {
	var wrapper struct {
		Terms []Term `yaml:"terms"`
	}
	if err := yaml.NewDecoder(r).Decode(&wrapper); err == nil && len(wrapper.Terms) > 0 {
		return wrapper.Terms, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var terms []Term
	if err := yaml.NewDecoder(r).Decode(&terms); err != nil {
		if err == io.EOF {
			return []Term{}, nil
		}
		return nil, fmt.Errorf("failed to parse glossary as object or list: %w", err)
	}
	return terms, nil
}

// Save writes terms as a {"terms": [...]} JSON document.
func Save(path string, terms []Term) error {
	data, err := json.MarshalIndent(struct {
		Terms []Term `json:"terms"`
	}{Terms: terms}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Default returns the built-in project memory used when no glossary file is
// configured.
func Default() []Term {
	return []Term{
		{Pt: "homem", Koti: "mwanamwane", Frequency: 45},
		{Pt: "pecadores", Koti: "anatamphela", Frequency: 12},
		{Pt: "conselho", Koti: "masururu", Frequency: 8},
		{Pt: "caminho", Koti: "phiro", Frequency: 22},
		{Pt: "lei", Koti: "nlamulo", Frequency: 15},
	}
}

// Memory converts terms into scanner input, most frequent first. Ties are
// broken by source term so the order is stable across loads. Invalid rows are
// dropped.
func Memory(terms []Term) []audit.TermMemoryEntry {
	out := make([]audit.TermMemoryEntry, 0, len(terms))
	for _, t := range terms {
		if !t.Valid() {
			continue
		}
		out = append(out, audit.TermMemoryEntry{
			SourceTerm: strings.TrimSpace(t.Pt),
			TargetTerm: t.Target(),
			Frequency:  t.Frequency,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].SourceTerm < out[j].SourceTerm
	})
	return out
}
