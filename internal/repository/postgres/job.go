package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/internal/repository"
)

// JobRepository is the postgres-backed extraction job queue. Claiming
// uses FOR UPDATE SKIP LOCKED so multiple workers never process the
// same job, and orders by created_at so jobs for one session merge in
// submission order.
type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Enqueue(ctx context.Context, job *model.ExtractionJob) error {
	job.ID = uuid.New()
	job.Status = model.JobStatusPending
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	query := `
		INSERT INTO extraction_jobs (
			id, session_id, image_data, image_url, status, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.SessionID, job.ImageData, job.ImageURL,
		job.Status, job.Attempts, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*model.ExtractionJob, error) {
	var job model.ExtractionJob
	query := `SELECT * FROM extraction_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ClaimPending atomically moves up to limit due jobs to processing and
// returns them. UPDATE ... RETURNING emits rows in no particular
// order, so callers must sort by CreatedAt before processing. Sessions
// with a job already in flight are skipped: a second worker claiming
// the session's next job while the first is mid-merge would break
// per-session submission ordering.
func (r *JobRepository) ClaimPending(ctx context.Context, limit int) ([]*model.ExtractionJob, error) {
	query := `
		UPDATE extraction_jobs SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT j.id FROM extraction_jobs j
			WHERE (j.status = $2 OR (j.status = $3 AND j.retry_at <= NOW()))
			AND NOT EXISTS (
				SELECT 1 FROM extraction_jobs p
				WHERE p.session_id = j.session_id AND p.status = $1
			)
			ORDER BY j.created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`
	var jobs []*model.ExtractionJob
	if err := r.db.SelectContext(ctx, &jobs, query,
		model.JobStatusProcessing, model.JobStatusPending, model.JobStatusRetry, limit,
	); err != nil {
		return nil, fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	return jobs, nil
}

func (r *JobRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, model.JobStatusProcessed, nil, nil)
}

func (r *JobRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, delay time.Duration) error {
	retryAt := time.Now().UTC().Add(delay)
	query := `
		UPDATE extraction_jobs
		SET status = $2, attempts = attempts + 1, last_error = $3, retry_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, model.JobStatusRetry, errMsg, retryAt); err != nil {
		return fmt.Errorf("failed to mark job for retry: %w", err)
	}
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.setStatus(ctx, id, model.JobStatusFailed, &errMsg, nil)
}

func (r *JobRepository) setStatus(ctx context.Context, id uuid.UUID, status string, errMsg *string, retryAt *time.Time) error {
	query := `
		UPDATE extraction_jobs
		SET status = $2, last_error = $3, retry_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, status, errMsg, retryAt); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (r *JobRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM extraction_jobs WHERE status IN ($1, $2)`
	if err := r.db.GetContext(ctx, &count, query, model.JobStatusPending, model.JobStatusRetry); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}
