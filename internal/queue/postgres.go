package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, job_type, payload, owner_id, status,
	retry_count, max_retries, COALESCE(error_message, '') AS error_message,
	created_at, processed_at, completed_at
`

// PostgresStore implements Store on PostgreSQL. Claiming relies on
// FOR UPDATE SKIP LOCKED so concurrent claimants never block on, or
// double-claim, the same row.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// CreateJob inserts a new PENDING job.
func (s *PostgresStore) CreateJob(ctx context.Context, jobType, payload, ownerID string, maxRetries int) (*Job, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	job := &Job{
		ID:         uuid.New().String(),
		JobType:    jobType,
		Payload:    payload,
		OwnerID:    ownerID,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now().UTC(),
	}

	query := `
		INSERT INTO jobs (
			job_id, job_type, payload, owner_id, status,
			retry_count, max_retries, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			0, $6, $7
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.JobType, job.Payload, job.OwnerID, job.Status,
		job.MaxRetries, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("owner_id", job.OwnerID),
	)

	return job, nil
}

// GetJob returns the job with the given id.
func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// TryClaimOne claims the oldest PENDING job in one atomic statement.
// SKIP LOCKED makes claimants step over rows another transaction holds,
// so claim latency is never amplified by lock waits.
func (s *PostgresStore) TryClaimOne(ctx context.Context) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    processed_at = NOW()
		WHERE job_id = (
			SELECT job_id
			FROM jobs
			WHERE status = $2
			ORDER BY created_at, job_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var job Job
	if err := s.db.GetContext(ctx, &job, query, StatusProcessing, StatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingJobs
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Debug("Job claimed",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
	)

	return &job, nil
}

// MarkCompleted transitions a PROCESSING job to COMPLETED.
func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = NULL,
		    completed_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusCompleted, jobID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrJobNotFound
	}

	s.logger.Info("Job completed",
		slog.String("job_id", jobID),
	)

	return nil
}

// MarkFailed records a failure. The store, not the caller, decides between
// re-queueing and terminal failure: retry_count increments only while
// budget remains, so it never exceeds max_retries.
func (s *PostgresStore) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET retry_count   = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    status        = CASE WHEN retry_count < max_retries THEN $1 ELSE $2 END,
		    completed_at  = CASE WHEN retry_count < max_retries THEN completed_at ELSE NOW() END,
		    error_message = $3
		WHERE job_id = $4 AND status = $5
		RETURNING status, retry_count
	`

	var status string
	var retryCount int
	err := s.db.QueryRowContext(ctx, query,
		StatusPending, StatusFailed, errorMessage, jobID, StatusProcessing,
	).Scan(&status, &retryCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	if status == StatusFailed {
		s.logger.Warn("Job terminally failed",
			slog.String("job_id", jobID),
			slog.Int("retry_count", retryCount),
			slog.String("error", errorMessage),
		)
	} else {
		s.logger.Info("Job re-queued for retry",
			slog.String("job_id", jobID),
			slog.Int("retry_count", retryCount),
		)
	}

	return nil
}

// GetPendingJobs lists PENDING jobs oldest first.
func (s *PostgresStore) GetPendingJobs(ctx context.Context, limit int) ([]Job, error) {
	return s.GetJobsByStatus(ctx, StatusPending, limit)
}

// GetJobsByStatus lists jobs in the given status, oldest first.
func (s *PostgresStore) GetJobsByStatus(ctx context.Context, status string, limit int) ([]Job, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		ORDER BY created_at, job_id
		LIMIT $2
	`

	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, query, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	return jobs, nil
}

// GetJobsByOwner lists an owner's jobs, newest first.
func (s *PostgresStore) GetJobsByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = $1
		ORDER BY created_at DESC, job_id DESC
		LIMIT $2
	`

	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, query, ownerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs by owner: %w", err)
	}

	return jobs, nil
}
