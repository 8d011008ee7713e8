// Package watch rescans the project whenever its segments or glossary file
// changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/japaniel/termaudit/pkg/audit"
	"go.uber.org/zap"
)

// Reloader reads the current scan inputs.
type Reloader func(ctx context.Context) ([]audit.Segment, []audit.TermMemoryEntry, error)

// Trigger accepts a fresh scan request. *scan.Orchestrator satisfies it.
type Trigger interface {
	Trigger(segments []audit.Segment, memory []audit.TermMemoryEntry) uint64
}

// Stats counts watcher activity.
type Stats struct {
	Events        int
	Rescans       int
	ReloadErrors  int
	WatchErrors   int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches a fixed set of files. Editors often save by renaming a
// temp file over the original, so the parent directories are watched and
// events are filtered by path.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	files       map[string]bool
	reload      Reloader
	target      Trigger
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// New creates a watcher for files. Changes that settle for debounce call
// reload and hand the result to target.
func New(files []string, debounce time.Duration, reload Reloader, target Trigger, logger *zap.Logger) (*Watcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("watch: no files to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
		set[abs] = true
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		files:       set,
		reload:      reload,
		target:      target,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds the watches and runs the event loop in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	dirs := map[string]bool{}
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			// Not running: Stop only releases the fsnotify watcher.
			return fmt.Errorf("watch %s: %w", d, err)
		}
		w.logger.Info("watching directory", zap.String("dir", d))
	}

	w.running = true
	go w.run(ctx)
	return nil
}

// Stop stops the event loop and releases the fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher", zap.Error(err))
	}
	w.logger.Debug("watcher stopped")
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Rescan reloads the inputs and triggers a scan immediately.
func (w *Watcher) Rescan(ctx context.Context) error {
	segments, memory, err := w.reload(ctx)
	if err != nil {
		w.mu.Lock()
		w.stats.ReloadErrors++
		w.mu.Unlock()
		return fmt.Errorf("reload: %w", err)
	}
	seq := w.target.Trigger(segments, memory)
	w.mu.Lock()
	w.stats.Rescans++
	w.mu.Unlock()
	w.logger.Debug("rescan triggered", zap.Uint64("seq", seq), zap.Int("segments", len(segments)))
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.WatchErrors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil || !w.files[path] {
		return
	}
	w.logger.Debug("file changed", zap.String("path", path), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = path
	w.stats.LastEventTime = time.Now()
	w.debounceMap[path] = time.Now()
	w.mu.Unlock()
}

// processDebounced rescans once for every batch of settled events.
func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled++
		}
	}
	w.mu.Unlock()

	if settled == 0 {
		return
	}
	if err := w.Rescan(ctx); err != nil {
		w.logger.Warn("rescan after change failed", zap.Error(err))
	}
}
