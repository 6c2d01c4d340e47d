// Package queue is the durable job store: a bounded state machine with
// concurrency-safe claiming and retry bookkeeping. All cross-poller
// coordination happens through the store's atomic claim operation.
package queue

import (
	"context"
	"errors"
	"time"
)

// Status values of the job state machine:
// PENDING -> PROCESSING -> {COMPLETED | PENDING(retry) | FAILED}.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// DefaultMaxRetries applies when a job is created without an explicit budget.
const DefaultMaxRetries = 3

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoPendingJobs is returned by TryClaimOne when no claimable job exists.
	ErrNoPendingJobs = errors.New("no pending jobs")

	// ErrInvalidStatus is returned when a status filter is not a known status.
	ErrInvalidStatus = errors.New("invalid job status")
)

// Job is a persisted unit of asynchronous work.
type Job struct {
	ID           string     `db:"job_id"`
	JobType      string     `db:"job_type"`
	Payload      string     `db:"payload"`
	OwnerID      string     `db:"owner_id"`
	Status       string     `db:"status"`
	RetryCount   int        `db:"retry_count"`
	MaxRetries   int        `db:"max_retries"`
	ErrorMessage string     `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// Terminal reports whether the job has reached a terminal status.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Store is the job store contract. Implementations must guarantee that
// TryClaimOne hands any given job to at most one claimant, and that
// MarkFailed alone decides between re-queueing and terminal failure.
type Store interface {
	// CreateJob inserts a new PENDING job and returns it.
	CreateJob(ctx context.Context, jobType, payload, ownerID string, maxRetries int) (*Job, error)

	// GetJob returns the job with the given id, or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// TryClaimOne atomically claims the oldest PENDING job, marking it
	// PROCESSING and stamping processed_at. Claimants skip rows locked by
	// concurrent claimants instead of blocking. Returns ErrNoPendingJobs
	// when nothing is claimable.
	TryClaimOne(ctx context.Context) (*Job, error)

	// MarkCompleted transitions a PROCESSING job to COMPLETED.
	MarkCompleted(ctx context.Context, jobID string) error

	// MarkFailed records a failure: while retry budget remains the job
	// re-enters PENDING with retry_count incremented; otherwise it is
	// terminally FAILED with completed_at stamped. Callers need not know
	// which outcome occurred.
	MarkFailed(ctx context.Context, jobID, errorMessage string) error

	GetPendingJobs(ctx context.Context, limit int) ([]Job, error)
	GetJobsByStatus(ctx context.Context, status string, limit int) ([]Job, error)
	GetJobsByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error)
}

// ValidStatus reports whether s is a known job status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
