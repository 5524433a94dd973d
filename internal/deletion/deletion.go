// Package deletion keeps the index honest about files that vanished from
// disk: soft-deleting records, reconciling folders against the filesystem,
// and producing one-shot warnings when a deleted file surfaces in search
// results.
package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/trentonhq/trenton/internal/store"
)

// Tracker performs soft-deletion bookkeeping against the store. Records
// are never removed on deletion; they stay searchable so results can warn
// that the underlying file is gone.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
}

// NewTracker creates a deletion tracker.
func NewTracker(st *store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{store: st, logger: logger}
}

// Mark soft-deletes the file record at path. Unknown paths are a no-op:
// a delete event can arrive for a file that was never indexed.
func (t *Tracker) Mark(ctx context.Context, path string) error {
	marked, err := t.store.MarkFileDeleted(ctx, path)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	if marked {
		t.logger.Info("file marked deleted", "path", path)
	}
	return nil
}

// Reconcile sweeps a folder's live records against the filesystem and
// soft-deletes those whose file no longer exists. Returns the number of
// records marked. Watch gaps (downtime, dropped events) make this sweep
// necessary; it runs as part of every folder scan.
func (t *Tracker) Reconcile(ctx context.Context, folderID int64) (int, error) {
	files, err := t.store.ListFilesByFolder(ctx, folderID, false)
	if err != nil {
		return 0, fmt.Errorf("list folder files: %w", err)
	}

	marked := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		if _, err := os.Stat(f.Path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			// Transient stat failures (permissions, I/O) must not cascade
			// into false deletions.
			t.logger.Warn("skip unreadable file during reconcile", "path", f.Path, "error", err)
			continue
		}
		ok, err := t.store.MarkFileDeleted(ctx, f.Path)
		if err != nil {
			return marked, fmt.Errorf("mark deleted: %w", err)
		}
		if ok {
			marked++
		}
	}
	if marked > 0 {
		t.logger.Info("reconciled deleted files", "folder_id", folderID, "count", marked)
	}
	return marked, nil
}

// Warning is the message attached to a search hit whose file was deleted.
func Warning(filename, path string) string {
	return fmt.Sprintf("Warning: Matching file '%s' has been deleted from source. The file was originally located at: %s", filename, path)
}

// NotifyOnce returns the deletion warning for a file the first time it is
// seen in results after deletion, flipping the notified flag. Later calls
// return "" until the file is deleted again.
func (t *Tracker) NotifyOnce(ctx context.Context, f *store.File) (string, error) {
	if !f.IsDeleted || f.DeletionNotified {
		return "", nil
	}
	if _, err := t.store.MarkDeletionNotified(ctx, f.ID); err != nil {
		return "", fmt.Errorf("mark notified: %w", err)
	}
	return Warning(f.Filename, f.Path), nil
}
