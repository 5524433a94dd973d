// Package app wires the Trenton components together: storage, embedding
// provider, watch manager, indexing orchestrator, and search engine, all
// owned explicitly by one container rather than by package globals.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/trentonhq/trenton/internal/config"
	"github.com/trentonhq/trenton/internal/deletion"
	"github.com/trentonhq/trenton/internal/embed"
	"github.com/trentonhq/trenton/internal/errors"
	"github.com/trentonhq/trenton/internal/indexer"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/search"
	"github.com/trentonhq/trenton/internal/store"
	"github.com/trentonhq/trenton/internal/watcher"
)

// App is the assembled application.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Provider     *embed.Handle
	Tracker      *deletion.Tracker
	Watch        *watcher.Manager
	Orchestrator *indexer.Orchestrator
	Engine       *search.Engine

	lock    *flock.Flock
	running bool
}

// New builds the application from config. Nothing is started: watches and
// workers launch in Start, so one-shot CLI commands pay only for what they
// use.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	provider := embed.NewHandle(cfg.Provider, logger)
	tracker := deletion.NewTracker(st, logger)
	debouncer := watcher.NewDebouncer(cfg.Indexing.EventCooldown.Std(), cfg.Indexing.CooldownEntries)
	watch := watcher.NewManager(debouncer, cfg.Indexing.QueueSize, logger)
	orchestrator := indexer.New(cfg.Indexing, st, provider, tracker, watch, logger)
	engine := search.NewEngine(cfg.Search, st, provider, tracker, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Provider:     provider,
		Tracker:      tracker,
		Watch:        watch,
		Orchestrator: orchestrator,
		Engine:       engine,
	}, nil
}

// Start acquires the single-instance lock, starts watches for every active
// folder, and launches the worker pool.
func (a *App) Start(ctx context.Context) error {
	lock := flock.New(filepath.Join(a.Config.Paths.DataDir, "trenton.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return errors.New(errors.ErrCodeDataDirLocked,
			fmt.Sprintf("another instance is already using %s", a.Config.Paths.DataDir), nil)
	}
	a.lock = lock

	folders, err := a.Store.ListFolders(ctx, true)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if err := a.Watch.RegisterFolder(ctx, f.ID, f.Path); err != nil {
			// A folder whose root disappeared stays registered in the
			// store; the next scan will reconcile its files.
			a.Logger.Warn("cannot watch folder", "folder_id", f.ID, "path", f.Path, "error", err)
		}
	}

	if err := a.Orchestrator.Start(ctx); err != nil {
		return err
	}
	a.running = true
	return nil
}

// Close stops the pipeline and releases all resources. Background scan
// jobs are drained even when Start was never called.
func (a *App) Close() error {
	a.Orchestrator.Stop()
	a.running = false
	if a.lock != nil {
		_ = a.lock.Unlock()
		a.lock = nil
	}
	_ = a.Provider.Close()
	return a.Store.Close()
}

// RegisterFolder registers a directory for monitoring, starts its watch
// when the pipeline is running, and kicks off a background full scan.
func (a *App) RegisterFolder(ctx context.Context, path string, modality media.Modality) (*store.Folder, *store.IndexingJob, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, errors.ValidationError(fmt.Sprintf("invalid path %q", path), err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, nil, errors.ValidationError(fmt.Sprintf("%s is not an existing directory", abs), err)
	}
	if !media.ValidFolderFilter(modality) {
		return nil, nil, errors.ValidationError(fmt.Sprintf("invalid modality filter %q", modality), nil)
	}

	existing, err := a.Store.GetFolderByPath(ctx, abs)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, errors.New(errors.ErrCodeFolderConflict,
			fmt.Sprintf("folder %s is already registered", abs), nil)
	}

	folder, err := a.Store.CreateFolder(ctx, abs, modality)
	if err != nil {
		return nil, nil, err
	}

	if a.running {
		if err := a.Watch.RegisterFolder(ctx, folder.ID, folder.Path); err != nil {
			a.Logger.Warn("cannot watch new folder", "folder_id", folder.ID, "error", err)
		}
	}

	job, err := a.Orchestrator.ScanFolderAsync(ctx, folder.ID, store.JobKindFullScan)
	if err != nil {
		return folder, nil, err
	}
	return folder, job, nil
}

// DeregisterFolder stops the folder's watch, waits for it to wind down,
// and removes the folder with its files and embeddings.
func (a *App) DeregisterFolder(ctx context.Context, id int64) error {
	folder, err := a.Store.GetFolder(ctx, id)
	if err != nil {
		return err
	}
	if folder == nil {
		return errors.NotFound(fmt.Sprintf("folder %d not found", id))
	}

	if a.running {
		if err := a.Watch.DeregisterFolder(id); err != nil {
			a.Logger.Debug("folder was not watched", "folder_id", id, "error", err)
		}
	}
	if _, err := a.Store.DeleteFolder(ctx, id); err != nil {
		return err
	}
	a.Logger.Info("folder deregistered", "folder_id", id, "path", folder.Path)
	return nil
}

// Stats summarizes the index for the stats endpoint and CLI.
type Stats struct {
	Folders        int    `json:"folders"`
	Files          int    `json:"files"`
	Embeddings     int    `json:"embeddings"`
	ActiveJobs     int    `json:"active_jobs"`
	DroppedEvents  uint64 `json:"dropped_events"`
	Provider       string `json:"provider"`
	ProviderOnline bool   `json:"provider_online"`
}

// CollectStats gathers index counts and provider status.
func (a *App) CollectStats(ctx context.Context) (*Stats, error) {
	folders, err := a.Store.ListFolders(ctx, false)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Folders: len(folders), DroppedEvents: a.Watch.Dropped()}
	for _, f := range folders {
		n, err := a.Store.CountFilesByFolder(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		stats.Files += n
	}
	if stats.Embeddings, err = a.Store.CountEmbeddings(ctx); err != nil {
		return nil, err
	}
	if stats.ActiveJobs, err = a.Store.CountActiveJobs(ctx); err != nil {
		return nil, err
	}
	if provider, err := a.Provider.Get(ctx); err == nil {
		stats.Provider = provider.Name()
		stats.ProviderOnline = provider.Available(ctx)
	}
	return stats, nil
}
