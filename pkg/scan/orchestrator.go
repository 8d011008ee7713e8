// Package scan runs consistency scans off the caller's goroutine and keeps the
// most recent result.
package scan

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/japaniel/termaudit/pkg/audit"
	"go.uber.org/zap"
)

// State reflects whether a scan is outstanding.
type State int

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine computes findings for one snapshot. Implementations must not mutate
// their inputs.
type Engine interface {
	Scan(ctx context.Context, segments []audit.Segment, memory []audit.TermMemoryEntry) ([]audit.Inconsistency, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, segments []audit.Segment, memory []audit.TermMemoryEntry) ([]audit.Inconsistency, error)

func (f EngineFunc) Scan(ctx context.Context, segments []audit.Segment, memory []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
	return f(ctx, segments, memory)
}

// SequentialEngine scans on a single goroutine.
var SequentialEngine Engine = EngineFunc(func(_ context.Context, segments []audit.Segment, memory []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
	return audit.Scan(segments, memory)
})

// ParallelEngine splits each scan across n goroutines.
func ParallelEngine(n int) Engine {
	return EngineFunc(func(ctx context.Context, segments []audit.Segment, memory []audit.TermMemoryEntry) ([]audit.Inconsistency, error) {
		return audit.ScanParallel(ctx, segments, memory, n)
	})
}

// Result is emitted once per applied request. Failed requests carry an empty
// list and the error.
type Result struct {
	Seq             uint64
	Inconsistencies []audit.Inconsistency
	Err             error
	Duration        time.Duration
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State State
	// Applied is the sequence number of the last applied result.
	Applied uint64
	// Issued is the sequence number of the last trigger.
	Issued uint64
	// Err is the error of the last applied request, nil after a successful scan.
	Err error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEngine replaces the scan engine (SequentialEngine by default).
func WithEngine(e Engine) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeout bounds how long a single scan may run before it is reported as
// ErrScanTimeout. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithWorkers sets how many scans may run at the same time.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithResultHandler registers the completion callback. It is called from a
// background goroutine, one call at a time, in applied order.
func WithResultHandler(h func(Result)) Option {
	return func(o *Orchestrator) { o.onResult = h }
}

// WithMetrics records lifecycle counters on m.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

type request struct {
	seq      uint64
	segments []audit.Segment
	memory   []audit.TermMemoryEntry
}

// Orchestrator schedules scans and applies their results last-write-wins by
// trigger order.
type Orchestrator struct {
	engine   Engine
	logger   *zap.Logger
	timeout  time.Duration
	workers  int
	onResult func(Result)
	metrics  *Metrics

	pool   *WorkerPool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// emitMu guards apply order and the handler queue. Handlers observe
	// results in applied order, one at a time.
	emitMu   sync.Mutex
	pending  []Result
	draining bool

	mu       sync.Mutex
	started  bool
	closed   bool
	issued   uint64
	applied  uint64
	state    State
	lastErr  error
	findings []audit.Inconsistency
}

// New creates an orchestrator. Call Start before triggering scans.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   SequentialEngine,
		logger:   zap.NewNop(),
		timeout:  10 * time.Second,
		workers:  2,
		findings: []audit.Inconsistency{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the background workers. The orchestrator stops when ctx is
// canceled or Close is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.pool = NewWorkerPool(o.workers, o.workers*4, o.logger)
	o.pool.Start(o.ctx)
}

// Trigger schedules a scan of the given snapshot and returns its sequence
// number without waiting for it. The inputs are copied; callers may keep
// editing their slices.
func (o *Orchestrator) Trigger(segments []audit.Segment, memory []audit.TermMemoryEntry) uint64 {
	req := request{
		segments: slices.Clone(segments),
		memory:   slices.Clone(memory),
	}

	o.mu.Lock()
	o.issued++
	req.seq = o.issued
	o.state = StateScanning
	usable := o.started && !o.closed
	if usable {
		o.wg.Add(1)
	}
	o.mu.Unlock()

	o.metrics.triggered()
	o.logger.Debug("scan triggered",
		zap.Uint64("seq", req.seq),
		zap.Int("segments", len(req.segments)),
		zap.Int("terms", len(req.memory)))

	if !usable {
		o.deliver(Result{Seq: req.seq, Err: &TransportError{Err: ErrPoolClosed}})
		return req.seq
	}

	go func() {
		defer o.wg.Done()
		err := o.pool.SubmitCtx(o.ctx, func(ctx context.Context) error {
			o.run(ctx, req)
			return nil
		})
		if err != nil {
			o.deliver(Result{Seq: req.seq, Err: &TransportError{Err: err}})
		}
	}()
	return req.seq
}

type outcome struct {
	findings []audit.Inconsistency
	err      error
}

func (o *Orchestrator) run(ctx context.Context, req request) {
	start := time.Now()
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &TransportError{Err: fmt.Errorf("scan engine panic: %v", r)}}
			}
		}()
		found, err := o.engine.Scan(ctx, req.segments, req.memory)
		ch <- outcome{findings: found, err: err}
	}()

	var timeout <-chan time.Time
	if o.timeout > 0 {
		t := time.NewTimer(o.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case out := <-ch:
		o.deliver(Result{Seq: req.seq, Inconsistencies: out.findings, Err: out.err, Duration: time.Since(start)})
	case <-timeout:
		o.deliver(Result{Seq: req.seq, Err: ErrScanTimeout, Duration: time.Since(start)})
	case <-ctx.Done():
		o.deliver(Result{Seq: req.seq, Err: &TransportError{Err: ctx.Err()}, Duration: time.Since(start)})
	}
}

// deliver applies res unless a newer request has already been applied, then
// hands it to the result handler.
func (o *Orchestrator) deliver(res Result) {
	o.emitMu.Lock()

	o.mu.Lock()
	if res.Seq <= o.applied {
		applied := o.applied
		o.mu.Unlock()
		o.emitMu.Unlock()
		o.logger.Debug("discarding stale scan result",
			zap.Uint64("seq", res.Seq),
			zap.Uint64("applied", applied))
		o.metrics.stale()
		return
	}
	o.applied = res.Seq
	if res.Err != nil {
		// Prior findings stay visible; the event itself carries an empty list.
		o.lastErr = res.Err
		res.Inconsistencies = []audit.Inconsistency{}
	} else {
		o.lastErr = nil
		if res.Inconsistencies == nil {
			res.Inconsistencies = []audit.Inconsistency{}
		}
		o.findings = slices.Clone(res.Inconsistencies)
	}
	if o.applied >= o.issued {
		o.state = StateIdle
	}
	handler := o.onResult
	o.mu.Unlock()

	o.metrics.observe(res.Err, res.Duration)
	if res.Err != nil {
		o.logger.Error("scan failed", zap.Uint64("seq", res.Seq), zap.Error(res.Err))
	} else {
		o.logger.Debug("scan applied",
			zap.Uint64("seq", res.Seq),
			zap.Int("inconsistencies", len(res.Inconsistencies)),
			zap.Duration("took", res.Duration))
	}

	if handler == nil {
		o.emitMu.Unlock()
		return
	}
	o.pending = append(o.pending, res)
	if o.draining {
		// The goroutine already draining will hand res over after the
		// results queued before it.
		o.emitMu.Unlock()
		return
	}
	o.draining = true
	o.emitMu.Unlock()
	o.drain(handler)
}

// drain calls handler for every queued result in applied order without
// holding emitMu, so a handler may call Trigger again.
func (o *Orchestrator) drain(handler func(Result)) {
	for {
		o.emitMu.Lock()
		if len(o.pending) == 0 {
			o.draining = false
			o.emitMu.Unlock()
			return
		}
		res := o.pending[0]
		o.pending = o.pending[1:]
		o.emitMu.Unlock()

		handler(res)
	}
}

// Status returns the current scan state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{State: o.state, Applied: o.applied, Issued: o.issued, Err: o.lastErr}
}

// Inconsistencies returns a copy of the last successfully applied finding list.
func (o *Orchestrator) Inconsistencies() []audit.Inconsistency {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.findings)
}

// Close stops the workers and waits for in-flight submissions. Requests still
// queued are reported as transport failures.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed || !o.started {
		o.closed = true
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.pool.Close()

	o.mu.Lock()
	issued, pending := o.issued, o.applied < o.issued
	o.mu.Unlock()
	if pending {
		o.deliver(Result{Seq: issued, Err: &TransportError{Err: ErrPoolClosed}})
	}
}
