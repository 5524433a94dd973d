// Package store is the persistence layer for folders, files, embeddings,
// and indexing jobs, backed by SQLite.
package store

import (
	"time"

	"github.com/trentonhq/trenton/internal/media"
)

// JobKind identifies what triggered an indexing job.
type JobKind string

const (
	JobKindFullScan    JobKind = "full_scan"
	JobKindIncremental JobKind = "incremental"
	JobKindSingleFile  JobKind = "single_file"
)

// JobStatus is the lifecycle state of an indexing job.
// Transitions are monotonic: pending -> running -> completed|failed.
// Terminal states are final; no job is reopened or retried.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether s is a sink state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Folder is a monitored folder registration.
type Folder struct {
	ID            int64
	Path          string
	Modality      media.Modality
	IsActive      bool
	CreatedAt     time.Time
	LastIndexedAt *time.Time
}

// File is a tracked media file under a monitored folder.
type File struct {
	ID               int64
	FolderID         int64
	Path             string
	Filename         string
	Modality         media.Modality
	FileSize         int64
	MimeType         string
	DurationSeconds  *float64
	IsDeleted        bool
	DeletionNotified bool
	CreatedAt        time.Time
	ModifiedAt       time.Time
	IndexedAt        *time.Time
}

// Embedding is a stored vector for a file. At most one row exists per
// (file, embedding type) pair; upserts overwrite in place.
type Embedding struct {
	ID            int64
	FileID        int64
	Modality      media.Modality
	EmbeddingType string
	Vector        []byte
	CreatedAt     time.Time
}

// IndexingJob tracks one scan or single-file indexing run.
type IndexingJob struct {
	ID             int64
	Kind           JobKind
	FolderID       *int64
	Status         JobStatus
	TotalFiles     int
	ProcessedFiles int
	FailedFiles    int
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Candidate pairs a file with one of its raw stored vectors for in-process
// similarity scoring.
type Candidate struct {
	File   File
	Vector []byte
}

// CandidateFilter restricts a similarity candidate scan.
type CandidateFilter struct {
	// Modality restricts to embeddings tagged with this modality (empty = all).
	Modality media.Modality
	// FolderIDs restricts to files owned by these folders (empty = all).
	FolderIDs []int64
	// IncludeDeleted includes soft-deleted files when true.
	IncludeDeleted bool
}
