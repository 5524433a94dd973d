// Package indexer runs the indexing pipeline: a fixed pool of workers
// draining the shared event queue, plus folder scan jobs tracked in the
// store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/deletion"
	"github.com/trentonhq/trenton/internal/embed"
	"github.com/trentonhq/trenton/internal/metrics"
	"github.com/trentonhq/trenton/internal/store"
	"github.com/trentonhq/trenton/internal/watcher"
)

// Orchestrator owns the event workers and scan jobs. Worker count is fixed
// at startup; backpressure lives in the bounded event queue, not in an
// unbounded goroutine population.
type Orchestrator struct {
	cfg      config.IndexingConfig
	store    *store.Store
	provider *embed.Handle
	tracker  *deletion.Tracker
	watch    *watcher.Manager
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool

	workerWG sync.WaitGroup
	scanWG   sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg config.IndexingConfig, st *store.Store, provider *embed.Handle, tracker *deletion.Tracker, watch *watcher.Manager, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		provider: provider,
		tracker:  tracker,
		watch:    watch,
		logger:   logger,
	}
}

// Start launches the worker pool. Workers run until Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true

	workCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for i := 0; i < o.cfg.Workers; i++ {
		o.workerWG.Add(1)
		go o.worker(workCtx, i)
	}
	o.logger.Info("indexing workers started", "workers", o.cfg.Workers)
	return nil
}

// Stop shuts the pipeline down gracefully: the watch manager stops feeding
// the queue, workers drain what is already buffered and exit, and any
// in-flight scan jobs run to completion. Safe to call without Start; it
// still waits for background scans.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	started := o.started
	o.started = false
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if started {
		_ = o.watch.Close()
		o.workerWG.Wait()
	}
	o.scanWG.Wait()
	if cancel != nil {
		cancel()
	}
	if started {
		o.logger.Info("indexing pipeline stopped")
	}
}

// worker drains the shared event queue until it closes.
func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.workerWG.Done()
	logger := o.logger.With("worker", id)
	for ev := range o.watch.Events() {
		metrics.EventsTotal.WithLabelValues(ev.Action.String()).Inc()
		metrics.EventQueueDepth.Set(float64(len(o.watch.Events())))
		if err := o.handleEvent(ctx, ev); err != nil {
			if ctx.Err() != nil {
				// Shutdown raced the event; remaining work is picked up by
				// the next incremental scan.
				return
			}
			logger.Error("event processing failed",
				"action", ev.Action.String(), "path", ev.Path, "error", err)
		}
	}
}

// handleEvent routes one debounced event.
func (o *Orchestrator) handleEvent(ctx context.Context, ev watcher.Event) error {
	switch ev.Action {
	case watcher.ActionDelete:
		if err := o.tracker.Mark(ctx, ev.Path); err != nil {
			return err
		}
		metrics.FilesDeletedTotal.Inc()
		return nil
	case watcher.ActionCreate, watcher.ActionModify:
		return o.IndexFile(ctx, ev.FolderID, ev.Path)
	default:
		return fmt.Errorf("unknown event action %d", ev.Action)
	}
}

// resolveFolder finds the owning folder for a path: the first active
// registered folder, in registration order, whose root is a prefix of the
// path. Returns (nil, nil) when no folder claims it.
func (o *Orchestrator) resolveFolder(ctx context.Context, path string) (*store.Folder, error) {
	folders, err := o.store.ListFolders(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range folders {
		if pathWithin(folders[i].Path, path) {
			return &folders[i], nil
		}
	}
	return nil, nil
}
