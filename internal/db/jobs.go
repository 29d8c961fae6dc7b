package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aidobe/assembly/internal/jobs"
	"github.com/aidobe/assembly/internal/models"
	"github.com/lib/pq"
)

// Postgres implementation of jobs.JobStore over the render_jobs table.
//
// The lifecycle transition guards live in the WHERE clauses: a conditional
// update that matches zero rows reports "not applied" instead of clobbering a
// terminal state. Concurrent callbacks for the same job id are therefore safe
// without row locks.

const jobColumns = `
	id, status, input, progress, stage, progress_message,
	output_url, error_message, metadata, created_at, updated_at, completed_at
`

func (db *DB) CreateJob(ctx context.Context, job *models.VideoJob) error {
	query := `
		INSERT INTO render_jobs (id, status, input)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`

	err := db.QueryRowContext(ctx, query, job.ID, job.Status, job.Input).
		Scan(&job.CreatedAt, &job.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &jobs.DuplicateJobError{JobID: job.ID}
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.VideoJob, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE id = $1`

	job := &models.VideoJob{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Status, &job.Input, &job.Progress, &job.Stage,
		&job.ProgressMessage, &job.OutputURL, &job.ErrorMessage, &job.Metadata,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &jobs.NotFoundError{JobID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (db *DB) ApplyProgress(ctx context.Context, id string, stage string, progress int, message *string) (bool, error) {
	// GREATEST keeps progress monotonic under out-of-order delivery.
	query := `
		UPDATE render_jobs
		SET status = $2,
		    stage = $3,
		    progress = GREATEST(COALESCE(progress, 0), $4),
		    progress_message = COALESCE($5, progress_message),
		    updated_at = now()
		WHERE id = $1 AND status IN ($6, $2)
	`

	result, err := db.ExecContext(ctx, query, id, models.JobStatusProcessing, stage, progress, message, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to apply progress: %w", err)
	}

	return rowsAffected(result)
}

func (db *DB) ApplyCompletion(ctx context.Context, id string, status models.JobStatus, outputURL, errorMessage *string, metadata models.JSONB) (bool, error) {
	// Typed-nil JSONB would serialize as JSON null and clobber the column;
	// pass SQL NULL instead so COALESCE keeps the existing value.
	var meta interface{}
	if metadata != nil {
		meta = metadata
	}

	query := `
		UPDATE render_jobs
		SET status = $2,
		    output_url = COALESCE($3, output_url),
		    error_message = COALESCE($4, error_message),
		    metadata = COALESCE($5, metadata),
		    updated_at = now(),
		    completed_at = now()
		WHERE id = $1 AND status IN ($6, $7)
	`

	result, err := db.ExecContext(ctx, query, id, status, outputURL, errorMessage, meta,
		models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to apply completion: %w", err)
	}

	return rowsAffected(result)
}

func (db *DB) MarkCancelled(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE render_jobs
		SET status = $2, updated_at = now(), completed_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`

	result, err := db.ExecContext(ctx, query, id, models.JobStatusCancelled,
		models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	return rowsAffected(result)
}

func (db *DB) MarkDispatchFailed(ctx context.Context, id string, errorMessage string) (bool, error) {
	query := `
		UPDATE render_jobs
		SET status = $2, error_message = $3, updated_at = now(), completed_at = now()
		WHERE id = $1 AND status = $4
	`

	result, err := db.ExecContext(ctx, query, id, models.JobStatusDispatchFailed, errorMessage, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark dispatch failure: %w", err)
	}

	return rowsAffected(result)
}

func (db *DB) ListJobs(ctx context.Context, limit, offset int) ([]models.VideoJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM render_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var list []models.VideoJob
	for rows.Next() {
		var job models.VideoJob
		err := rows.Scan(
			&job.ID, &job.Status, &job.Input, &job.Progress, &job.Stage,
			&job.ProgressMessage, &job.OutputURL, &job.ErrorMessage, &job.Metadata,
			&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		list = append(list, job)
	}

	return list, rows.Err()
}

func (db *DB) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM render_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

func (db *DB) AvgProcessingTimeMs(ctx context.Context) (*float64, error) {
	query := `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - created_at)) * 1000)
		FROM render_jobs
		WHERE status = $1 AND completed_at IS NOT NULL
	`

	var avg sql.NullFloat64
	if err := db.QueryRowContext(ctx, query, models.JobStatusCompleted).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to compute avg processing time: %w", err)
	}

	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

func rowsAffected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
