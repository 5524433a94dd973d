// Package watcher turns raw filesystem notifications for monitored folders
// into debounced media events on a shared queue.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/metrics"
)

// Action is the kind of change observed on a media file.
type Action int

const (
	// ActionCreate indicates a new file appeared.
	ActionCreate Action = iota
	// ActionModify indicates an existing file's content changed.
	ActionModify
	// ActionDelete indicates a file disappeared. Renames surface as a
	// delete at the old path plus a create at the new one.
	ActionDelete
)

// String returns a human-readable action name.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "CREATE"
	case ActionModify:
		return "MODIFY"
	case ActionDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one debounced media-file change, attributed to the monitored
// folder it happened under.
type Event struct {
	Action    Action
	FolderID  int64
	Path      string
	Timestamp time.Time
}

// Manager watches registered folders with fsnotify and publishes debounced
// events on one shared queue. Each folder gets its own recursive watch;
// the queue is bounded, and events arriving while it is full are dropped
// and counted rather than blocking the notification loop.
type Manager struct {
	logger    *slog.Logger
	debouncer *Debouncer
	queue     chan Event
	dropped   atomic.Uint64

	mu      sync.Mutex
	folders map[int64]*folderWatch
	closed  bool
}

type folderWatch struct {
	id     int64
	root   string
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a watch manager publishing to a queue of the given
// capacity.
func NewManager(debouncer *Debouncer, queueSize int, logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		debouncer: debouncer,
		queue:     make(chan Event, queueSize),
		folders:   make(map[int64]*folderWatch),
	}
}

// Events returns the shared event queue.
func (m *Manager) Events() <-chan Event {
	return m.queue
}

// Dropped returns the number of events discarded because the queue was full.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

// RegisterFolder starts a recursive watch rooted at root, attributing its
// events to folderID. Returns an error when the root is not a watchable
// directory or the folder is already registered.
func (m *Manager) RegisterFolder(ctx context.Context, folderID int64, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("watch manager is closed")
	}
	if _, ok := m.folders[folderID]; ok {
		return fmt.Errorf("folder %d is already watched", folderID)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := addRecursive(fsw, root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", root, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &folderWatch{
		id:     folderID,
		root:   root,
		fsw:    fsw,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.folders[folderID] = w

	go m.run(watchCtx, w)

	m.logger.Info("folder watch started", "folder_id", folderID, "path", root)
	return nil
}

// DeregisterFolder stops the watch for folderID and waits for its loop to
// exit, so no event for the folder is published after return.
func (m *Manager) DeregisterFolder(folderID int64) error {
	m.mu.Lock()
	w, ok := m.folders[folderID]
	if ok {
		delete(m.folders, folderID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("folder %d is not watched", folderID)
	}

	w.cancel()
	_ = w.fsw.Close()
	<-w.done

	m.logger.Info("folder watch stopped", "folder_id", folderID, "path", w.root)
	return nil
}

// Close stops all folder watches and closes the event queue.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	watches := make([]*folderWatch, 0, len(m.folders))
	for _, w := range m.folders {
		watches = append(watches, w)
	}
	m.folders = map[int64]*folderWatch{}
	m.mu.Unlock()

	for _, w := range watches {
		w.cancel()
		_ = w.fsw.Close()
		<-w.done
	}
	close(m.queue)
	return nil
}

// run drains one folder's fsnotify channels until the watcher closes.
func (m *Manager) run(ctx context.Context, w *folderWatch) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			m.handle(w, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watch error", "folder_id", w.id, "error", err)
		}
	}
}

// handle converts one fsnotify event into zero or more queue events.
func (m *Manager) handle(w *folderWatch, ev fsnotify.Event) {
	if ev.Op&fsnotify.Chmod != 0 {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			// Files may land in the new directory before the watch
			// attaches; walk it so they are not lost.
			m.adoptDirectory(w, ev.Name)
			return
		}
		m.publish(w, Event{Action: ActionCreate, FolderID: w.id, Path: ev.Name, Timestamp: time.Now()})
	case ev.Op&fsnotify.Write != 0:
		if isDir {
			return
		}
		m.publish(w, Event{Action: ActionModify, FolderID: w.id, Path: ev.Name, Timestamp: time.Now()})
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		// A rename is a delete here; the create at the destination path
		// arrives as its own event.
		m.publish(w, Event{Action: ActionDelete, FolderID: w.id, Path: ev.Name, Timestamp: time.Now()})
	}
}

// adoptDirectory adds a newly created directory tree to the watch and
// emits create events for supported files already inside it.
func (m *Manager) adoptDirectory(w *folderWatch, dir string) {
	if err := addRecursive(w.fsw, dir); err != nil {
		m.logger.Warn("watch new directory", "folder_id", w.id, "path", dir, "error", err)
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		m.publish(w, Event{Action: ActionCreate, FolderID: w.id, Path: path, Timestamp: time.Now()})
		return nil
	})
}

// publish runs an event through the supported-extension filter and the
// debouncer, then enqueues it without blocking.
func (m *Manager) publish(w *folderWatch, ev Event) {
	if !media.IsSupported(ev.Path) {
		return
	}
	if !m.debouncer.Admit(ev) {
		return
	}
	select {
	case m.queue <- ev:
	default:
		n := m.dropped.Add(1)
		metrics.EventsDroppedTotal.Inc()
		m.logger.Warn("event queue full, dropping event",
			"folder_id", w.id, "path", ev.Path, "action", ev.Action.String(), "dropped_total", n)
	}
}

// addRecursive watches root and every directory under it. Unreadable
// subdirectories are skipped.
func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			if path == root {
				return err
			}
		}
		return nil
	})
}
