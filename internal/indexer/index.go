package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/trentonhq/trenton/internal/embed"
	"github.com/trentonhq/trenton/internal/errors"
	"github.com/trentonhq/trenton/internal/media"
	"github.com/trentonhq/trenton/internal/metrics"
	"github.com/trentonhq/trenton/internal/vector"
)

// IndexFile runs the full per-file indexing procedure: validate, resolve
// the database record, embed, and store the vectors. folderID may be 0
// when the caller does not know the owning folder; it is then resolved by
// path prefix against the active folders.
func (o *Orchestrator) IndexFile(ctx context.Context, folderID int64, path string) error {
	start := time.Now()
	modality, _ := media.Detect(path)
	err := o.indexFile(ctx, folderID, path)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FilesIndexedTotal.WithLabelValues(modality.String(), status).Inc()
	metrics.IndexDuration.Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) indexFile(ctx context.Context, folderID int64, path string) error {
	if err := media.Validate(path); err != nil {
		// Validation failures are skips, not faults: partially written or
		// vanished files are normal during watch bursts.
		o.logger.Debug("skipping file", "path", path, "reason", err)
		return nil
	}
	info, err := media.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if folderID == 0 {
		folder, err := o.resolveFolder(ctx, path)
		if err != nil {
			return err
		}
		if folder == nil {
			o.logger.Debug("no registered folder owns path, skipping", "path", path)
			return nil
		}
		folderID = folder.ID
	}

	file, err := o.store.GetFileByPath(ctx, path)
	if err != nil {
		return err
	}
	switch {
	case file == nil:
		file, err = o.store.CreateFile(ctx, folderID, info)
		if err != nil {
			return err
		}
	case file.IsDeleted:
		// The path reappeared: the original record is revived and
		// re-embedded rather than duplicated.
		if err := o.store.ReviveFile(ctx, file.ID); err != nil {
			return err
		}
		fallthrough
	default:
		if err := o.store.UpdateFileMetadata(ctx, file.ID, info.Size, info.MimeType); err != nil {
			return err
		}
	}

	provider, err := o.provider.Get(ctx)
	if err != nil {
		return err
	}
	for _, embeddingType := range embed.TypesFor(info.Modality) {
		vec, err := o.embedFile(ctx, provider, path, embeddingType)
		if err != nil {
			return errors.ProviderError(
				fmt.Sprintf("embed %s as %s", path, embeddingType), err)
		}
		if err := o.store.UpsertEmbedding(ctx, file.ID, media.Modality(embeddingType), embeddingType, vector.Encode(vec)); err != nil {
			return err
		}
	}

	if err := o.store.TouchFileIndexed(ctx, file.ID, time.Now()); err != nil {
		return err
	}
	o.logger.Info("file indexed", "path", path, "modality", info.Modality.String(), "folder_id", folderID)
	return nil
}

// embedFile wraps a provider call with retry for transient failures and
// records provider metrics.
func (o *Orchestrator) embedFile(ctx context.Context, provider embed.Provider, path, embeddingType string) ([]float32, error) {
	start := time.Now()
	var vec []float32
	err := errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		var embedErr error
		vec, embedErr = provider.EmbedFile(ctx, path, embeddingType)
		return embedErr
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.EmbedRequestsTotal.WithLabelValues("file", status).Inc()
	metrics.EmbedDuration.Observe(time.Since(start).Seconds())
	return vec, err
}

// pathWithin reports whether path sits at or under root.
func pathWithin(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
