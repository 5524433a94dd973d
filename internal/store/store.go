package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/trentonhq/trenton/internal/store/migrations"
)

// defaultTimeout bounds individual database operations that have no caller
// deadline.
const defaultTimeout = 5 * time.Second

// Store provides CRUD access to the Trenton database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database at path and runs
// pending migrations. path may be ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		// WAL for concurrent readers, busy_timeout to ride out writer
		// contention between the event workers and scan jobs.
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_loc=UTC"
	} else {
		dsn = ":memory:?_foreign_keys=on&_loc=UTC"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// An in-memory database exists per connection; more than one
		// connection would see different schemas.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// nullTime converts a nullable scan target to *time.Time.
func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// nullString converts a nullable scan target to a plain string.
func nullString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
