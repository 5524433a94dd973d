package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trentonhq/trenton/internal/media"
)

// UpsertEmbedding stores a vector for (fileID, embeddingType), overwriting
// any existing row in place. The unique index on (file_id, embedding_type)
// guarantees at most one current embedding per pair.
func (s *Store) UpsertEmbedding(ctx context.Context, fileID int64, modality media.Modality, embeddingType string, vector []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (file_id, modality, embedding_type, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (file_id, embedding_type)
		 DO UPDATE SET vector = excluded.vector, modality = excluded.modality`,
		fileID, modality.String(), embeddingType, vector, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// GetEmbeddingsByFile returns a file's embeddings in storage order.
func (s *Store) GetEmbeddingsByFile(ctx context.Context, fileID int64) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, modality, embedding_type, vector, created_at
		 FROM embeddings WHERE file_id = ? ORDER BY id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []Embedding
	for rows.Next() {
		var e Embedding
		var modality string
		if err := rows.Scan(&e.ID, &e.FileID, &modality, &e.EmbeddingType, &e.Vector, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Modality = media.Modality(modality)
		e.CreatedAt = e.CreatedAt.UTC()
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

// DeleteEmbeddingsByFile removes all embeddings for a file, returning the
// number of rows removed.
func (s *Store) DeleteEmbeddingsByFile(ctx context.Context, fileID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE file_id = ?`, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	return res.RowsAffected()
}

// ScanCandidates streams (file, raw vector) pairs matching the filter for
// in-process similarity scoring. Soft-deleted files are excluded unless
// the filter opts in.
func (s *Store) ScanCandidates(ctx context.Context, filter CandidateFilter) ([]Candidate, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT f.id, f.folder_id, f.path, f.filename, f.modality, f.file_size, f.mime_type,
		f.duration_seconds, f.is_deleted, f.deletion_notified, f.created_at, f.modified_at, f.indexed_at,
		e.vector
		FROM files f
		JOIN embeddings e ON e.file_id = f.id
		WHERE e.vector IS NOT NULL`)

	var args []any
	if filter.Modality != "" {
		sb.WriteString(` AND e.modality = ?`)
		args = append(args, filter.Modality.String())
	}
	if len(filter.FolderIDs) > 0 {
		sb.WriteString(` AND f.folder_id IN (?` + strings.Repeat(",?", len(filter.FolderIDs)-1) + `)`)
		for _, id := range filter.FolderIDs {
			args = append(args, id)
		}
	}
	if !filter.IncludeDeleted {
		sb.WriteString(` AND f.is_deleted = 0`)
	}
	sb.WriteString(` ORDER BY f.id, e.id`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var modality string
		var size sql.NullInt64
		var mimeType sql.NullString
		var duration sql.NullFloat64
		var indexedAt sql.NullTime
		err := rows.Scan(&c.File.ID, &c.File.FolderID, &c.File.Path, &c.File.Filename, &modality,
			&size, &mimeType, &duration, &c.File.IsDeleted, &c.File.DeletionNotified,
			&c.File.CreatedAt, &c.File.ModifiedAt, &indexedAt, &c.Vector)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.File.Modality = media.Modality(modality)
		c.File.FileSize = size.Int64
		c.File.MimeType = nullString(mimeType)
		if duration.Valid {
			c.File.DurationSeconds = &duration.Float64
		}
		c.File.CreatedAt = c.File.CreatedAt.UTC()
		c.File.ModifiedAt = c.File.ModifiedAt.UTC()
		c.File.IndexedAt = nullTime(indexedAt)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// CountEmbeddings returns the total number of stored embeddings.
func (s *Store) CountEmbeddings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}
