package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version())
}

func homemMemory() []TermMemoryEntry {
	return []TermMemoryEntry{{SourceTerm: "homem", TargetTerm: "mwanamwane", Frequency: 45}}
}

func TestScan_ReportsMissingTarget(t *testing.T) {
	segs := []Segment{{ID: "v1", SourceText: "homem de bem", TargetText: "elepa ya etthu", LocationLabel: "Zapuura 1:1"}}

	got, err := Scan(segs, homemMemory())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Inconsistency{
		VerseID:        "v1",
		SourceTerm:     "homem",
		ExpectedTarget: "mwanamwane",
		DetectedTarget: DriftMarker,
		Context:        "homem de bem",
		Location:       "Zapuura 1:1",
	}, got[0])
}

func TestScan_NoFindingWhenTargetPresent(t *testing.T) {
	segs := []Segment{{ID: "v1", SourceText: "Bem-aventurado o homem", TargetText: "Oreriwa mwanamwane", LocationLabel: "Zapuura 1:1"}}

	got, err := Scan(segs, homemMemory())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScan_CaseInsensitive(t *testing.T) {
	segs := []Segment{
		{ID: "v1", SourceText: "O HOMEM justo", TargetText: "MwanaMwane orera", LocationLabel: "Zapuura 1:1"},
		{ID: "v2", SourceText: "Homem", TargetText: "nlopwana", LocationLabel: "Zapuura 1:2"},
	}

	got, err := Scan(segs, homemMemory())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].VerseID)
}

func TestScan_NormalizesComposedCharacters(t *testing.T) {
	// "ç" + "ã" written with combining marks in the segment, precomposed in memory.
	decomposed := "traduc\u0327a\u0303o fiel"
	mem := []TermMemoryEntry{{SourceTerm: "tradu\u00e7\u00e3o", TargetTerm: "othaphulela"}}
	segs := []Segment{{ID: "v1", SourceText: decomposed, TargetText: "ekuma", LocationLabel: "Zapuura 2:1"}}

	got, err := Scan(segs, mem)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestScan_SkipsEmptyTarget(t *testing.T) {
	segs := []Segment{
		{ID: "v1", SourceText: "homem", TargetText: "", LocationLabel: "Zapuura 1:1"},
		{ID: "v2", SourceText: "homem", TargetText: "   \t\n", LocationLabel: "Zapuura 1:2"},
	}
	mem := append(homemMemory(), TermMemoryEntry{SourceTerm: "lei", TargetTerm: "nlamulo"})

	got, err := Scan(segs, mem)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScan_MultipleTermsInOneSegment(t *testing.T) {
	segs := []Segment{{ID: "v1", SourceText: "o homem anda no caminho", TargetText: "elepa ya etthu", LocationLabel: "Zapuura 1:1"}}
	mem := []TermMemoryEntry{
		{SourceTerm: "homem", TargetTerm: "mwanamwane", Frequency: 45},
		{SourceTerm: "caminho", TargetTerm: "phiro", Frequency: 22},
	}

	got, err := Scan(segs, mem)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "homem", got[0].SourceTerm)
	assert.Equal(t, "caminho", got[1].SourceTerm)
}

func TestScan_OverlappingTermsAreNotDeduplicated(t *testing.T) {
	segs := []Segment{{ID: "v1", SourceText: "os pecadores", TargetText: "x", LocationLabel: "Zapuura 1:1"}}
	mem := []TermMemoryEntry{
		{SourceTerm: "pecador", TargetTerm: "otampha"},
		{SourceTerm: "pecadores", TargetTerm: "anatamphela"},
		{SourceTerm: "pecadores", TargetTerm: "anatamphela"},
	}

	got, err := Scan(segs, mem)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestScan_SkipsBlankMemoryTerms(t *testing.T) {
	segs := []Segment{{ID: "v1", SourceText: "homem", TargetText: "x", LocationLabel: "Zapuura 1:1"}}
	mem := []TermMemoryEntry{{SourceTerm: "", TargetTerm: "mwanamwane"}, {SourceTerm: "homem", TargetTerm: " "}}

	got, err := Scan(segs, mem)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScan_Deterministic(t *testing.T) {
	segs := sampleChapter(60)
	mem := sampleMemory()

	first, err := Scan(segs, mem)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	for i := 0; i < 5; i++ {
		again, err := Scan(segs, mem)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScan_InputContract(t *testing.T) {
	_, err := Scan(nil, homemMemory())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNilSegments))
	var ice *InputContractError
	assert.True(t, errors.As(err, &ice))

	_, err = Scan([]Segment{}, nil)
	assert.True(t, errors.Is(err, ErrNilMemory))

	got, err := Scan([]Segment{}, []TermMemoryEntry{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScan_DoesNotMutateInputs(t *testing.T) {
	segs := sampleChapter(10)
	mem := sampleMemory()
	segsBefore := append([]Segment(nil), segs...)
	memBefore := append([]TermMemoryEntry(nil), mem...)

	_, err := Scan(segs, mem)
	require.NoError(t, err)
	assert.Equal(t, segsBefore, segs)
	assert.Equal(t, memBefore, mem)
}

func TestScanParallel_MatchesSequential(t *testing.T) {
	segs := sampleChapter(301)
	mem := sampleMemory()

	want, err := Scan(segs, mem)
	require.NoError(t, err)

	for _, workers := range []int{0, 1, 2, 3, 8, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			got, err := ScanParallel(context.Background(), segs, mem, workers)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestScanParallel_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScanParallel(ctx, sampleChapter(100), sampleMemory(), 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanParallel_InputContract(t *testing.T) {
	_, err := ScanParallel(context.Background(), nil, sampleMemory(), 4)
	assert.ErrorIs(t, err, ErrNilSegments)
}

func TestInconsistencyKey(t *testing.T) {
	a := Inconsistency{VerseID: "v1", SourceTerm: "homem", ExpectedTarget: "mwanamwane", Context: "x"}
	b := Inconsistency{VerseID: "v1", SourceTerm: "homem", ExpectedTarget: "mwanamwane", Context: "y"}
	c := Inconsistency{VerseID: "v2", SourceTerm: "homem", ExpectedTarget: "mwanamwane"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func sampleMemory() []TermMemoryEntry {
	return []TermMemoryEntry{
		{SourceTerm: "homem", TargetTerm: "mwanamwane", Frequency: 45},
		{SourceTerm: "pecadores", TargetTerm: "anatamphela", Frequency: 12},
		{SourceTerm: "conselho", TargetTerm: "masururu", Frequency: 8},
		{SourceTerm: "caminho", TargetTerm: "phiro", Frequency: 22},
		{SourceTerm: "lei", TargetTerm: "nlamulo", Frequency: 15},
	}
}

func sampleChapter(n int) []Segment {
	sources := []string{
		"Bem-aventurado o homem que não anda segundo o conselho dos ímpios",
		"nem se detém no caminho dos pecadores",
		"antes tem o seu prazer na lei do Senhor",
		"e na sua lei medita de dia e de noite",
	}
	targets := []string{
		"Oreriwa mwanamwane ohinettela masururu",
		"hanimela mphironi",
		"",
		"nlamulo nawe onuupuwela",
	}
	segs := make([]Segment, n)
	for i := range segs {
		segs[i] = Segment{
			ID:            fmt.Sprintf("v%d", i+1),
			SourceText:    sources[i%len(sources)],
			TargetText:    targets[i%len(targets)],
			LocationLabel: fmt.Sprintf("Zapuura 1:%d", i+1),
		}
	}
	return segs
}
