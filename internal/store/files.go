package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trentonhq/trenton/internal/media"
)

// CreateFile inserts a file record from discovery metadata.
func (s *Store) CreateFile(ctx context.Context, folderID int64, info media.FileInfo) (*File, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO files (folder_id, path, filename, modality, file_size, mime_type, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		folderID, info.Path, info.Filename, info.Modality.String(), info.Size, info.MimeType, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("file id: %w", err)
	}
	return &File{
		ID:         id,
		FolderID:   folderID,
		Path:       info.Path,
		Filename:   info.Filename,
		Modality:   info.Modality,
		FileSize:   info.Size,
		MimeType:   info.MimeType,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}

// GetFile fetches a file by id. Returns (nil, nil) when absent.
func (s *Store) GetFile(ctx context.Context, id int64) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx, fileSelect+` WHERE id = ?`, id))
}

// GetFileByPath fetches a file by its unique path, including soft-deleted
// rows: rediscovery of a deleted path must find and revive the original
// record rather than violate the unique path constraint.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx, fileSelect+` WHERE path = ?`, path))
}

// ListFilesByFolder returns a folder's files, optionally including
// soft-deleted rows.
func (s *Store) ListFilesByFolder(ctx context.Context, folderID int64, includeDeleted bool) ([]File, error) {
	query := fileSelect + ` WHERE folder_id = ?`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// CountFilesByFolder counts a folder's non-deleted files.
func (s *Store) CountFilesByFolder(ctx context.Context, folderID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE folder_id = ? AND is_deleted = 0`, folderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// MarkFileDeleted soft-deletes the file at path and resets its notified
// flag so the next search hit produces a fresh warning. Idempotent;
// returns false when the path is unknown.
func (s *Store) MarkFileDeleted(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET is_deleted = 1, deletion_notified = 0, modified_at = ? WHERE path = ?`,
		time.Now().UTC(), path)
	if err != nil {
		return false, fmt.Errorf("mark file deleted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReviveFile clears the deleted and notified flags after a soft-deleted
// file is rediscovered on disk at its original path.
func (s *Store) ReviveFile(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET is_deleted = 0, deletion_notified = 0, modified_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revive file: %w", err)
	}
	return nil
}

// MarkDeletionNotified flips the one-shot notified flag. Returns false when
// the file is absent.
func (s *Store) MarkDeletionNotified(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET deletion_notified = 1 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("mark deletion notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchFileIndexed stamps a file's indexed timestamp.
func (s *Store) TouchFileIndexed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET indexed_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch file indexed_at: %w", err)
	}
	return nil
}

// UpdateFileMetadata refreshes size, mime type, and modified timestamp after
// a file changes on disk.
func (s *Store) UpdateFileMetadata(ctx context.Context, id int64, size int64, mimeType string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET file_size = ?, mime_type = ?, modified_at = ? WHERE id = ?`,
		size, mimeType, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update file metadata: %w", err)
	}
	return nil
}

const fileSelect = `SELECT id, folder_id, path, filename, modality, file_size, mime_type,
	duration_seconds, is_deleted, deletion_notified, created_at, modified_at, indexed_at
	FROM files`

func (s *Store) scanFile(row *sql.Row) (*File, error) {
	f, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func scanFileRow(row rowScanner) (*File, error) {
	var f File
	var modality string
	var size sql.NullInt64
	var mimeType sql.NullString
	var duration sql.NullFloat64
	var indexedAt sql.NullTime
	err := row.Scan(&f.ID, &f.FolderID, &f.Path, &f.Filename, &modality, &size, &mimeType,
		&duration, &f.IsDeleted, &f.DeletionNotified, &f.CreatedAt, &f.ModifiedAt, &indexedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.Modality = media.Modality(modality)
	f.FileSize = size.Int64
	f.MimeType = nullString(mimeType)
	if duration.Valid {
		f.DurationSeconds = &duration.Float64
	}
	f.CreatedAt = f.CreatedAt.UTC()
	f.ModifiedAt = f.ModifiedAt.UTC()
	f.IndexedAt = nullTime(indexedAt)
	return &f, nil
}
