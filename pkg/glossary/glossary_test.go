package glossary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSONWrapper(t *testing.T) {
	path := writeFile(t, "glossary.json", `{
  "terms": [
    {"id": "koti-101", "pt": "Deus", "koti": "Nnyizinku", "definition": "Nome sagrado", "originalWord": "Deus / Elohim"},
    {"pt": "caminho", "koti": "phiro", "frequency": 22}
  ]
}`)
	terms, err := Load(path)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "koti-101", terms[0].ID)
	assert.Equal(t, "Deus / Elohim", terms[0].OriginalWord)
	assert.Equal(t, 22, terms[1].Frequency)
}

func TestLoad_JSONArrayAndLegacyField(t *testing.T) {
	path := writeFile(t, "glossary.json", `[{"pt": "Salmos", "term": "Zapuura"}]`)
	terms, err := Load(path)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "Zapuura", terms[0].Target())
	assert.True(t, terms[0].Valid())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "glossary.yaml", `terms:
  - pt: lei
    koti: nlamulo
    frequency: 15
  - pt: conselho
    koti: masururu
`)
	terms, err := Load(path)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "nlamulo", terms[0].Koti)

	list := writeFile(t, "list.yml", "- pt: homem\n  koti: mwanamwane\n")
	terms, err = Load(list)
	require.NoError(t, err)
	require.Len(t, terms, 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := writeFile(t, "bad.json", `{"terms": oops`)
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse glossary")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, Save(path, Default()))
	terms, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), terms)
}

func TestMemory_OrderAndFiltering(t *testing.T) {
	terms := append(Default(),
		Term{Pt: "  ", Koti: "x"},
		Term{Pt: "vazio", Koti: ""},
		Term{Pt: "árvore", Koti: "mwiri", Frequency: 8},
	)
	mem := Memory(terms)

	var got []string
	for _, m := range mem {
		got = append(got, m.SourceTerm)
	}
	assert.Equal(t, []string{"homem", "caminho", "lei", "pecadores", "conselho", "árvore"}, got)
	assert.Equal(t, audit.TermMemoryEntry{SourceTerm: "homem", TargetTerm: "mwanamwane", Frequency: 45}, mem[0])
}

func TestIndex_Lookup(t *testing.T) {
	ix := NewIndex([]Term{
		{Pt: "Caminho", Koti: "phiro", Frequency: 22},
		{Pt: "caminho", Koti: "njira", Frequency: 3},
		{Pt: "lei", Koti: "nlamulo"},
		{Pt: "", Koti: "ignored"},
	})
	assert.Equal(t, 2, ix.Len())

	got := ix.Lookup("CAMINHO ")
	require.Len(t, got, 2)
	assert.Equal(t, "phiro", got[0].Koti)
	assert.Nil(t, ix.Lookup("pecadores"))

	ix.Replace(Default())
	assert.Equal(t, 5, ix.Len())
	assert.Len(t, ix.Terms(), 5)
	assert.Equal(t, "caminho", ix.Terms()[0].Pt)
}

func TestCountUsage(t *testing.T) {
	segments := []audit.Segment{
		{ID: "v1", TargetText: "Mwanamwane a phiro"},
		{ID: "v2", TargetText: "phiro wa nlamulo"},
		{ID: "v3", TargetText: ""},
	}
	counted := CountUsage(segments, Default())
	freq := map[string]int{}
	for _, c := range counted {
		freq[c.Pt] = c.Frequency
	}
	assert.Equal(t, map[string]int{"homem": 1, "pecadores": 0, "conselho": 0, "caminho": 2, "lei": 1}, freq)
	assert.Equal(t, 45, Default()[0].Frequency, "input is not modified")
}
