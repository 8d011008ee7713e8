package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/japaniel/termaudit/pkg/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var memory = []audit.TermMemoryEntry{
	{SourceTerm: "homem", TargetTerm: "mwanamwane", Frequency: 45},
	{SourceTerm: "caminho", TargetTerm: "phiro", Frequency: 22},
}

var psalmOne = []audit.Segment{
	{ID: "v1", SourceText: "homem de bem", TargetText: "elepa ya etthu", LocationLabel: "Zapuura 1:1"},
}

var largeInput = []audit.Segment{
	{ID: "v1", SourceText: "homem de bem", TargetText: "elepa ya etthu", LocationLabel: "Zapuura 1:1"},
	{ID: "v2", SourceText: "no caminho", TargetText: "mphironi", LocationLabel: "Zapuura 1:2"},
	{ID: "v3", SourceText: "o caminho do homem", TargetText: "elepa", LocationLabel: "Zapuura 1:3"},
}

var smallInput = []audit.Segment{
	{ID: "v9", SourceText: "caminho", TargetText: "nlopwana", LocationLabel: "Zapuura 1:9"},
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, chan Result) {
	t.Helper()
	results := make(chan Result, 16)
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithResultHandler(func(r Result) { results <- r }),
	}, opts...)
	o := New(opts...)
	o.Start(context.Background())
	return o, results
}

func waitResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scan result")
		return Result{}
	}
}

func TestOrchestrator_ScanApplied(t *testing.T) {
	o, results := newTestOrchestrator(t)
	defer o.Close()

	seq := o.Trigger(psalmOne, memory)
	res := waitResult(t, results)

	require.NoError(t, res.Err)
	assert.Equal(t, seq, res.Seq)
	assert.Equal(t, []audit.Inconsistency{{
		VerseID:        "v1",
		SourceTerm:     "homem",
		ExpectedTarget: "mwanamwane",
		DetectedTarget: audit.DriftMarker,
		Context:        "homem de bem",
		Location:       "Zapuura 1:1",
	}}, res.Inconsistencies)
	assert.Equal(t, res.Inconsistencies, o.Inconsistencies())

	st := o.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, seq, st.Applied)
	assert.NoError(t, st.Err)
}

func TestOrchestrator_TriggerDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	engine := EngineFunc(func(ctx context.Context, s []audit.Segment, m []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		<-release
		return audit.Scan(s, m)
	})
	o, results := newTestOrchestrator(t, WithEngine(engine), WithWorkers(1))
	defer o.Close()

	done := make(chan uint64, 1)
	go func() { done <- o.Trigger(psalmOne, memory) }()
	select {
	case seq := <-done:
		assert.Equal(t, uint64(1), seq)
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked while the engine was busy")
	}
	assert.Equal(t, StateScanning, o.Status().State)

	close(release)
	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Equal(t, StateIdle, o.Status().State)
}

func TestOrchestrator_DiscardsStaleResult(t *testing.T) {
	releaseLarge := make(chan struct{})
	engine := EngineFunc(func(ctx context.Context, s []audit.Segment, m []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		if len(s) > 1 {
			<-releaseLarge
		}
		return audit.Scan(s, m)
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	o, results := newTestOrchestrator(t, WithEngine(engine), WithWorkers(2), WithMetrics(metrics))
	defer o.Close()

	first := o.Trigger(largeInput, memory)
	second := o.Trigger(smallInput, memory)
	require.Less(t, first, second)

	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Equal(t, second, res.Seq)

	close(releaseLarge)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Stale) == 1
	}, 2*time.Second, 5*time.Millisecond)

	want, err := audit.Scan(smallInput, memory)
	require.NoError(t, err)
	assert.Equal(t, want, o.Inconsistencies())
	assert.Equal(t, second, o.Status().Applied)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Triggered))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Applied))

	select {
	case r := <-results:
		t.Fatalf("stale result was emitted: seq %d", r.Seq)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestOrchestrator_EngineErrorKeepsPriorFindings(t *testing.T) {
	o, results := newTestOrchestrator(t)
	defer o.Close()

	o.Trigger(psalmOne, memory)
	ok := waitResult(t, results)
	require.NoError(t, ok.Err)

	o.Trigger(nil, memory)
	failed := waitResult(t, results)
	require.Error(t, failed.Err)
	assert.ErrorIs(t, failed.Err, audit.ErrNilSegments)
	assert.NotNil(t, failed.Inconsistencies)
	assert.Empty(t, failed.Inconsistencies)

	st := o.Status()
	assert.Equal(t, StateIdle, st.State)
	var ice *audit.InputContractError
	assert.True(t, errors.As(st.Err, &ice))
	assert.Equal(t, ok.Inconsistencies, o.Inconsistencies())

	o.Trigger(psalmOne, memory)
	recovered := waitResult(t, results)
	require.NoError(t, recovered.Err)
	assert.NoError(t, o.Status().Err)
}

func TestOrchestrator_EnginePanicIsTransportFailure(t *testing.T) {
	engine := EngineFunc(func(ctx context.Context, s []audit.Segment, m []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		panic("worker crashed")
	})
	o, results := newTestOrchestrator(t, WithEngine(engine))
	defer o.Close()

	o.Trigger(psalmOne, memory)
	res := waitResult(t, results)

	var te *TransportError
	require.True(t, errors.As(res.Err, &te))
	assert.Contains(t, te.Error(), "worker crashed")
	assert.Equal(t, StateIdle, o.Status().State)
}

func TestOrchestrator_Timeout(t *testing.T) {
	release := make(chan struct{})
	engine := EngineFunc(func(ctx context.Context, s []audit.Segment, m []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		<-release
		return audit.Scan(s, m)
	})
	metrics := NewMetrics(nil)
	o, results := newTestOrchestrator(t, WithEngine(engine), WithTimeout(30*time.Millisecond), WithMetrics(metrics))
	defer o.Close()

	o.Trigger(psalmOne, memory)
	res := waitResult(t, results)
	assert.ErrorIs(t, res.Err, ErrScanTimeout)
	assert.Equal(t, StateIdle, o.Status().State)
	assert.ErrorIs(t, o.Status().Err, ErrScanTimeout)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Failed))

	// The engine answering late must not overwrite the timeout.
	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, o.Inconsistencies())
}

func TestOrchestrator_CloseResolvesPendingRequests(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	engine := EngineFunc(func(ctx context.Context, s []audit.Segment, m []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		<-release
		return audit.Scan(s, m)
	})
	o, _ := newTestOrchestrator(t, WithEngine(engine), WithWorkers(1), WithTimeout(0))

	o.Trigger(psalmOne, memory)
	o.Trigger(psalmOne, memory)
	last := o.Trigger(psalmOne, memory)
	o.Close()

	st := o.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, last, st.Applied)
	var te *TransportError
	assert.True(t, errors.As(st.Err, &te))
}

func TestOrchestrator_TriggerAfterClose(t *testing.T) {
	o, results := newTestOrchestrator(t)
	o.Close()

	o.Trigger(psalmOne, memory)
	res := waitResult(t, results)
	assert.ErrorIs(t, res.Err, ErrPoolClosed)
	assert.Equal(t, StateIdle, o.Status().State)
}

func TestOrchestrator_SnapshotsInputs(t *testing.T) {
	release := make(chan struct{})
	engine := EngineFunc(func(ctx context.Context, s []audit.Segment, m []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		<-release
		return audit.Scan(s, m)
	})
	o, results := newTestOrchestrator(t, WithEngine(engine))
	defer o.Close()

	segs := []audit.Segment{{ID: "v1", SourceText: "homem", TargetText: "elepa", LocationLabel: "Zapuura 1:1"}}
	o.Trigger(segs, memory)
	// Editing after the trigger must not leak into the running scan.
	segs[0].TargetText = "mwanamwane"
	close(release)

	res := waitResult(t, results)
	require.NoError(t, res.Err)
	assert.Len(t, res.Inconsistencies, 1)
}

func TestParallelEngine(t *testing.T) {
	o, results := newTestOrchestrator(t, WithEngine(ParallelEngine(3)))
	defer o.Close()

	o.Trigger(largeInput, memory)
	res := waitResult(t, results)
	require.NoError(t, res.Err)

	want, err := audit.Scan(largeInput, memory)
	require.NoError(t, err)
	assert.Equal(t, want, res.Inconsistencies)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scanning", StateScanning.String())
	assert.Equal(t, "State(7)", State(7).String())
}

func TestOrchestrator_HandlerMayRetrigger(t *testing.T) {
	var o *Orchestrator
	var seen []Result
	retried := false
	o = New(
		WithLogger(zaptest.NewLogger(t)),
		WithResultHandler(func(r Result) {
			seen = append(seen, r)
			if r.Err != nil && !retried {
				retried = true
				o.Trigger(psalmOne, memory)
			}
		}),
	)
	o.Start(context.Background())
	o.Close()

	done := make(chan struct{})
	go func() {
		o.Trigger(psalmOne, memory)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked when the result handler triggered again")
	}

	require.Len(t, seen, 2)
	assert.Equal(t, uint64(1), seen[0].Seq)
	assert.Equal(t, uint64(2), seen[1].Seq, "retry result follows the failure that caused it")
	assert.ErrorIs(t, seen[1].Err, ErrPoolClosed)
	assert.Equal(t, StateIdle, o.Status().State)
}
