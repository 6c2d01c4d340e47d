package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with a mutex-guarded map. The claim is an
// atomic conditional update on the status field, preserving the same
// exclusivity property as the SQL skip-locked claim. Used in tests and
// for embedded single-process deployments.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string // job ids in creation order
	clock func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[string]*Job),
		clock: time.Now,
	}
}

// CreateJob inserts a new PENDING job.
func (s *MemoryStore) CreateJob(_ context.Context, jobType, payload, ownerID string, maxRetries int) (*Job, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := &Job{
		ID:         uuid.New().String(),
		JobType:    jobType,
		Payload:    payload,
		OwnerID:    ownerID,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  s.clock().UTC(),
	}

	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)

	snapshot := *job
	return &snapshot, nil
}

// GetJob returns a copy of the job with the given id.
func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	snapshot := *job
	return &snapshot, nil
}

// TryClaimOne claims the oldest PENDING job via a conditional update on
// the status field under the store lock.
func (s *MemoryStore) TryClaimOne(_ context.Context) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != StatusPending {
			continue
		}

		now := s.clock().UTC()
		job.Status = StatusProcessing
		job.ProcessedAt = &now

		snapshot := *job
		return &snapshot, nil
	}

	return nil, ErrNoPendingJobs
}

// MarkCompleted transitions a PROCESSING job to COMPLETED.
func (s *MemoryStore) MarkCompleted(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return ErrJobNotFound
	}

	now := s.clock().UTC()
	job.Status = StatusCompleted
	job.ErrorMessage = ""
	job.CompletedAt = &now

	return nil
}

// MarkFailed re-queues the job while retry budget remains, otherwise
// terminally fails it.
func (s *MemoryStore) MarkFailed(_ context.Context, jobID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return ErrJobNotFound
	}

	job.ErrorMessage = errorMessage
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = StatusPending
	} else {
		now := s.clock().UTC()
		job.Status = StatusFailed
		job.CompletedAt = &now
	}

	return nil
}

// GetPendingJobs lists PENDING jobs oldest first.
func (s *MemoryStore) GetPendingJobs(ctx context.Context, limit int) ([]Job, error) {
	return s.GetJobsByStatus(ctx, StatusPending, limit)
}

// GetJobsByStatus lists jobs in the given status, oldest first.
func (s *MemoryStore) GetJobsByStatus(_ context.Context, status string, limit int) ([]Job, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, id := range s.order {
		if len(jobs) == limit {
			break
		}
		if job := s.jobs[id]; job.Status == status {
			jobs = append(jobs, *job)
		}
	}

	return jobs, nil
}

// GetJobsByOwner lists an owner's jobs, newest first.
func (s *MemoryStore) GetJobsByOwner(_ context.Context, ownerID string, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []Job
	for _, id := range s.order {
		if job := s.jobs[id]; job.OwnerID == ownerID {
			jobs = append(jobs, *job)
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}
