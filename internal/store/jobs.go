package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateJob records a new indexing job in the pending state.
func (s *Store) CreateJob(ctx context.Context, kind JobKind, folderID *int64) (*IndexingJob, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO indexing_jobs (job_type, folder_id, status) VALUES (?, ?, ?)`,
		kind, folderID, JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	return &IndexingJob{ID: id, Kind: kind, FolderID: folderID, Status: JobStatusPending}, nil
}

// GetJob fetches a job by id. Returns (nil, nil) when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*IndexingJob, error) {
	j, err := scanJobRow(s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// ListRecentJobs returns the most recent jobs, newest first.
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]IndexingJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []IndexingJob
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus advances a job's lifecycle state. Transitions are
// monotonic: once a job completes or fails it stays that way, so the
// update refuses to touch rows already in a terminal state. Returns false
// when the transition was rejected or the job is unknown.
func (s *Store) UpdateJobStatus(ctx context.Context, id int64, status JobStatus, errorMessage string) (bool, error) {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	switch {
	case status == JobStatusRunning:
		res, err = s.db.ExecContext(ctx,
			`UPDATE indexing_jobs SET status = ?, started_at = ?
			 WHERE id = ? AND status = ?`,
			status, now, id, JobStatusPending)
	case status.Terminal():
		res, err = s.db.ExecContext(ctx,
			`UPDATE indexing_jobs SET status = ?, error_message = ?, completed_at = ?
			 WHERE id = ? AND status NOT IN (?, ?)`,
			status, asNullString(errorMessage), now, id, JobStatusCompleted, JobStatusFailed)
	default:
		return false, fmt.Errorf("invalid job status transition to %q", status)
	}
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetJobTotalFiles records the total discovered by an initial scan pass.
func (s *Store) SetJobTotalFiles(ctx context.Context, id int64, total int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE indexing_jobs SET total_files = ? WHERE id = ?`, total, id)
	if err != nil {
		return fmt.Errorf("set job total: %w", err)
	}
	return nil
}

// IncrementJobProgress adds to a job's processed and failed counters in a
// single statement so concurrent workers never lose updates.
func (s *Store) IncrementJobProgress(ctx context.Context, id int64, processed, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE indexing_jobs
		 SET processed_files = processed_files + ?, failed_files = failed_files + ?
		 WHERE id = ?`,
		processed, failed, id)
	if err != nil {
		return fmt.Errorf("increment job progress: %w", err)
	}
	return nil
}

// CountActiveJobs counts jobs not yet in a terminal state.
func (s *Store) CountActiveJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM indexing_jobs WHERE status IN (?, ?)`,
		JobStatusPending, JobStatusRunning).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

const jobSelect = `SELECT id, job_type, folder_id, status, total_files, processed_files,
	failed_files, error_message, started_at, completed_at
	FROM indexing_jobs`

func scanJobRow(row rowScanner) (*IndexingJob, error) {
	var j IndexingJob
	var kind, status string
	var folderID sql.NullInt64
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&j.ID, &kind, &folderID, &status, &j.TotalFiles, &j.ProcessedFiles,
		&j.FailedFiles, &errMsg, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Kind = JobKind(kind)
	j.Status = JobStatus(status)
	if folderID.Valid {
		j.FolderID = &folderID.Int64
	}
	j.ErrorMessage = nullString(errMsg)
	j.StartedAt = nullTime(startedAt)
	j.CompletedAt = nullTime(completedAt)
	return &j, nil
}

// asNullString maps an empty string to NULL for storage.
func asNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
