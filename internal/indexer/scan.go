package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/metrics"
	"github.com/trentonhq/trenton/internal/store"
)

// ScanFolder indexes one folder under a tracked job: reconcile deletions,
// walk the tree for supported files, and index them with bounded
// concurrency. Incremental scans skip files whose stored index timestamp
// is at or after the on-disk modification time.
func (o *Orchestrator) ScanFolder(ctx context.Context, folderID int64, kind store.JobKind) (*store.IndexingJob, error) {
	folder, err := o.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %d not found", folderID)
	}

	job, err := o.store.CreateJob(ctx, kind, &folderID)
	if err != nil {
		return nil, err
	}
	if err := o.runScan(ctx, job, folder, kind); err != nil {
		o.failJob(ctx, job, err)
		return o.store.GetJob(ctx, job.ID)
	}
	return o.store.GetJob(ctx, job.ID)
}

// ScanFolderAsync starts a folder scan in the background and returns the
// pending job immediately. The orchestrator tracks the goroutine so Stop
// waits for it.
func (o *Orchestrator) ScanFolderAsync(ctx context.Context, folderID int64, kind store.JobKind) (*store.IndexingJob, error) {
	folder, err := o.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder %d not found", folderID)
	}
	job, err := o.store.CreateJob(ctx, kind, &folderID)
	if err != nil {
		return nil, err
	}

	o.scanWG.Add(1)
	go func() {
		defer o.scanWG.Done()
		// The request context dies with the HTTP response; the scan keeps
		// its own lifetime.
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 24*time.Hour)
		defer cancel()
		if err := o.runScan(bg, job, folder, kind); err != nil {
			o.failJob(bg, job, err)
		}
	}()
	return job, nil
}

// ScanAllAsync starts a whole-index scan in the background and returns
// the pending job immediately.
func (o *Orchestrator) ScanAllAsync(ctx context.Context, kind store.JobKind) (*store.IndexingJob, error) {
	folders, err := o.store.ListFolders(ctx, true)
	if err != nil {
		return nil, err
	}
	job, err := o.store.CreateJob(ctx, kind, nil)
	if err != nil {
		return nil, err
	}

	o.scanWG.Add(1)
	go func() {
		defer o.scanWG.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 24*time.Hour)
		defer cancel()
		if _, err := o.store.UpdateJobStatus(bg, job.ID, store.JobStatusRunning, ""); err != nil {
			o.failJob(bg, job, err)
			return
		}
		var firstErr error
		for i := range folders {
			if err := o.scanInto(bg, job, &folders[i], kind); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				o.logger.Error("folder scan failed", "folder_id", folders[i].ID, "error", err)
			}
		}
		if firstErr != nil {
			o.failJob(bg, job, firstErr)
		} else {
			o.completeJob(bg, job)
		}
	}()
	return job, nil
}

// ScanAll scans every active folder under a single job.
func (o *Orchestrator) ScanAll(ctx context.Context, kind store.JobKind) (*store.IndexingJob, error) {
	folders, err := o.store.ListFolders(ctx, true)
	if err != nil {
		return nil, err
	}

	job, err := o.store.CreateJob(ctx, kind, nil)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.UpdateJobStatus(ctx, job.ID, store.JobStatusRunning, ""); err != nil {
		return nil, err
	}

	var firstErr error
	for i := range folders {
		if err := o.scanInto(ctx, job, &folders[i], kind); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			o.logger.Error("folder scan failed", "folder_id", folders[i].ID, "error", err)
		}
	}
	if firstErr != nil {
		o.failJob(ctx, job, firstErr)
	} else {
		o.completeJob(ctx, job)
	}
	return o.store.GetJob(ctx, job.ID)
}

// runScan executes a single-folder scan inside job.
func (o *Orchestrator) runScan(ctx context.Context, job *store.IndexingJob, folder *store.Folder, kind store.JobKind) error {
	if _, err := o.store.UpdateJobStatus(ctx, job.ID, store.JobStatusRunning, ""); err != nil {
		return err
	}
	if err := o.scanInto(ctx, job, folder, kind); err != nil {
		return err
	}
	o.completeJob(ctx, job)
	return nil
}

// scanInto does the scan work for one folder, accumulating progress into
// an already-running job.
func (o *Orchestrator) scanInto(ctx context.Context, job *store.IndexingJob, folder *store.Folder, kind store.JobKind) error {
	start := time.Now()

	// Deletion reconciliation first: files that vanished while unwatched
	// must stop looking live before new work is counted.
	if _, err := o.tracker.Reconcile(ctx, folder.ID); err != nil {
		return err
	}

	paths, err := discover(folder.Path, folder.Modality)
	if err != nil {
		return err
	}
	if kind == store.JobKindIncremental {
		paths, err = o.filterUnchanged(ctx, paths)
		if err != nil {
			return err
		}
	}
	if err := o.store.SetJobTotalFiles(ctx, job.ID, len(paths)); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := o.IndexFile(gctx, folder.ID, path); err != nil {
				o.logger.Error("index file failed", "path", path, "error", err)
				_ = o.store.IncrementJobProgress(gctx, job.ID, 0, 1)
				// Per-file failures do not abort the scan.
				return nil
			}
			return o.store.IncrementJobProgress(gctx, job.ID, 1, 0)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := o.store.UpdateFolderLastIndexed(ctx, folder.ID, time.Now()); err != nil {
		return err
	}
	o.logger.Info("folder scan finished",
		"folder_id", folder.ID, "kind", string(kind), "files", len(paths),
		"duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// filterUnchanged drops paths whose record was indexed at or after the
// file's current modification time.
func (o *Orchestrator) filterUnchanged(ctx context.Context, paths []string) ([]string, error) {
	changed := make([]string, 0, len(paths))
	for _, path := range paths {
		file, err := o.store.GetFileByPath(ctx, path)
		if err != nil {
			return nil, err
		}
		if file != nil && !file.IsDeleted && file.IndexedAt != nil {
			info, err := media.Stat(path)
			if err == nil && info.Size == file.FileSize {
				if mtime, mErr := fileMtime(path); mErr == nil && !mtime.After(*file.IndexedAt) {
					continue
				}
			}
		}
		changed = append(changed, path)
	}
	return changed, nil
}

// completeJob marks job completed; failJob marks it failed with the error
// message. Both record the outcome metric.
func (o *Orchestrator) completeJob(ctx context.Context, job *store.IndexingJob) {
	if _, err := o.store.UpdateJobStatus(ctx, job.ID, store.JobStatusCompleted, ""); err != nil {
		o.logger.Error("complete job", "job_id", job.ID, "error", err)
	}
	metrics.JobsTotal.WithLabelValues(string(job.Kind), string(store.JobStatusCompleted)).Inc()
}

func (o *Orchestrator) failJob(ctx context.Context, job *store.IndexingJob, cause error) {
	if _, err := o.store.UpdateJobStatus(ctx, job.ID, store.JobStatusFailed, cause.Error()); err != nil {
		o.logger.Error("fail job", "job_id", job.ID, "error", err)
	}
	metrics.JobsTotal.WithLabelValues(string(job.Kind), string(store.JobStatusFailed)).Inc()
	o.logger.Error("indexing job failed", "job_id", job.ID, "kind", string(job.Kind), "error", cause)
}

// discover walks a folder for files matching its modality filter.
// Unreadable subtrees are skipped rather than failing the scan.
func discover(root string, filter media.Modality) ([]string, error) {
	exts := media.ExtensionsFor(filter)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

func fileMtime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
