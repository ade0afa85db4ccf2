package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/folio-health/folio/internal/types"
)

// CreateJob inserts a new pending job.
func (s *Store) CreateJob(ctx context.Context, job *types.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, document_id, stage, state, attempt_count, last_error, version, created_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DocumentID, job.Stage, job.State, job.AttemptCount,
		job.LastError, job.Version, job.CreatedAt, job.StartedAt, job.FinishedAt)
	if err != nil {
		return &PersistenceError{Op: "create job", Err: err}
	}
	return nil
}

// UpdateJob persists a job's current state. Terminal jobs are
// write-once; updating an already-terminal job is rejected.
func (s *Store) UpdateJob(ctx context.Context, job *types.Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET stage = ?, state = ?, attempt_count = ?, last_error = ?, version = ?, started_at = ?, finished_at = ?
		 WHERE id = ? AND state NOT IN ('succeeded', 'failed', 'cancelled')`,
		job.Stage, job.State, job.AttemptCount, job.LastError, job.Version,
		job.StartedAt, job.FinishedAt, job.ID)
	if err != nil {
		return &PersistenceError{Op: "update job", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, stage, state, attempt_count, last_error, version, created_at, started_at, finished_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs newest first, optionally filtered by document.
func (s *Store) ListJobs(ctx context.Context, documentID string, limit int) ([]types.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, document_id, stage, state, attempt_count, last_error, version, created_at, started_at, finished_at
	          FROM jobs`
	args := []any{}
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "list jobs", Err: err}
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ActiveJob returns the non-terminal job for a document, if any.
func (s *Store) ActiveJob(ctx context.Context, documentID string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, stage, state, attempt_count, last_error, version, created_at, started_at, finished_at
		 FROM jobs
		 WHERE document_id = ? AND state IN ('pending', 'running')
		 ORDER BY created_at DESC LIMIT 1`, documentID)
	return scanJob(row)
}

// PruneJobs deletes terminal jobs older than the retention window and
// returns how many were removed.
func (s *Store) PruneJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs
		 WHERE state IN ('succeeded', 'failed', 'cancelled') AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, &PersistenceError{Op: "prune jobs", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanJob(row *sql.Row) (*types.Job, error) {
	var job types.Job
	err := row.Scan(&job.ID, &job.DocumentID, &job.Stage, &job.State, &job.AttemptCount,
		&job.LastError, &job.Version, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get job", Err: err}
	}
	return &job, nil
}

func scanJobRows(rows *sql.Rows) (*types.Job, error) {
	var job types.Job
	err := rows.Scan(&job.ID, &job.DocumentID, &job.Stage, &job.State, &job.AttemptCount,
		&job.LastError, &job.Version, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, &PersistenceError{Op: "scan job", Err: err}
	}
	return &job, nil
}
