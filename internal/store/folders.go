package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trentonhq/trenton/internal/media"
)

// CreateFolder registers a new monitored folder. The path must be unique.
func (s *Store) CreateFolder(ctx context.Context, path string, modality media.Modality) (*Folder, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (path, modality, is_active, created_at) VALUES (?, ?, 1, ?)`,
		path, modality.String(), now)
	if err != nil {
		return nil, fmt.Errorf("insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("folder id: %w", err)
	}
	return &Folder{ID: id, Path: path, Modality: modality, IsActive: true, CreatedAt: now}, nil
}

// GetFolder fetches a folder by id. Returns (nil, nil) when absent.
func (s *Store) GetFolder(ctx context.Context, id int64) (*Folder, error) {
	return s.scanFolder(s.db.QueryRowContext(ctx,
		`SELECT id, path, modality, is_active, created_at, last_indexed_at
		 FROM folders WHERE id = ?`, id))
}

// GetFolderByPath fetches a folder by its unique path. Returns (nil, nil)
// when absent.
func (s *Store) GetFolderByPath(ctx context.Context, path string) (*Folder, error) {
	return s.scanFolder(s.db.QueryRowContext(ctx,
		`SELECT id, path, modality, is_active, created_at, last_indexed_at
		 FROM folders WHERE path = ?`, path))
}

// ListFolders returns folders in registration order. The order matters:
// file-ownership resolution picks the first active folder whose path
// prefixes the file.
func (s *Store) ListFolders(ctx context.Context, activeOnly bool) ([]Folder, error) {
	query := `SELECT id, path, modality, is_active, created_at, last_indexed_at FROM folders`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		f, err := scanFolderRow(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

// UpdateFolderLastIndexed stamps a folder's last-indexed timestamp.
func (s *Store) UpdateFolderLastIndexed(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE folders SET last_indexed_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update folder last_indexed_at: %w", err)
	}
	return nil
}

// SetFolderActive toggles a folder's active flag.
func (s *Store) SetFolderActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE folders SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update folder active flag: %w", err)
	}
	return nil
}

// DeleteFolder removes a folder; files and embeddings cascade.
// Returns false when the folder did not exist.
func (s *Store) DeleteFolder(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete folder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanFolder(row *sql.Row) (*Folder, error) {
	f, err := scanFolderRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func scanFolderRow(row rowScanner) (*Folder, error) {
	var f Folder
	var modality string
	var lastIndexed sql.NullTime
	if err := row.Scan(&f.ID, &f.Path, &modality, &f.IsActive, &f.CreatedAt, &lastIndexed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan folder: %w", err)
	}
	f.Modality = media.Modality(modality)
	f.CreatedAt = f.CreatedAt.UTC()
	f.LastIndexedAt = nullTime(lastIndexed)
	return &f, nil
}
