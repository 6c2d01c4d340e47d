package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job, err := store.CreateJob(ctx, "background-removal", `{"image":"a.png"}`, "user-1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, "user-1", job.OwnerID)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Nil(t, job.ProcessedAt)
	assert.Nil(t, job.CompletedAt)
	assert.False(t, job.Terminal())

	fetched, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, fetched.ID)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_NegativeMaxRetriesDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job, err := store.CreateJob(ctx, "t", "{}", "user-1", -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)
}

func TestMemoryStore_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.CreateJob(ctx, "compose", "{}", "user-1", 1)
	require.NoError(t, err)

	claimed, err := store.TryClaimOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claimed.ID)
	assert.Equal(t, StatusProcessing, claimed.Status)
	require.NotNil(t, claimed.ProcessedAt)

	// Nothing else is claimable while the job is processing.
	_, err = store.TryClaimOne(ctx)
	assert.ErrorIs(t, err, ErrNoPendingJobs)

	require.NoError(t, store.MarkCompleted(ctx, claimed.ID))

	final, err := store.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.True(t, final.Terminal())
}

func TestMemoryStore_ClaimOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := store.CreateJob(ctx, "t", "{}", "user-1", 0)
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	for _, want := range ids {
		claimed, err := store.TryClaimOne(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, claimed.ID, "claims follow creation order")
	}
}

// Claim exclusivity: N concurrent claimants over M jobs never claim the
// same job twice and never claim more than M jobs total.
func TestMemoryStore_ClaimExclusivity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const pollers = 16
	const jobCount = 10

	for i := 0; i < jobCount; i++ {
		_, err := store.CreateJob(ctx, "t", "{}", fmt.Sprintf("user-%d", i), 0)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for p := 0; p < pollers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.TryClaimOne(ctx)
				if errors.Is(err, ErrNoPendingJobs) {
					return
				}
				require.NoError(t, err)

				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobCount)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

// Retry ceiling: with max_retries = k, a job survives k failures as
// PENDING and terminally fails on the (k+1)-th, with retry_count pinned
// at min(failures, k) throughout.
func TestMemoryStore_RetryCeiling(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const k = 2

	job, err := store.CreateJob(ctx, "t", "{}", "user-1", k)
	require.NoError(t, err)

	for failure := 1; failure <= k; failure++ {
		claimed, err := store.TryClaimOne(ctx)
		require.NoError(t, err)
		require.Equal(t, job.ID, claimed.ID)

		require.NoError(t, store.MarkFailed(ctx, job.ID, fmt.Sprintf("attempt %d failed", failure)))

		current, err := store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, current.Status, "failure %d should re-queue", failure)
		assert.Equal(t, failure, current.RetryCount)
		assert.Equal(t, fmt.Sprintf("attempt %d failed", failure), current.ErrorMessage)
	}

	// The (k+1)-th failure is terminal.
	_, err = store.TryClaimOne(ctx)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, job.ID, "final failure"))

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, k, final.RetryCount, "retry_count never exceeds max_retries")
	assert.Equal(t, "final failure", final.ErrorMessage)
	require.NotNil(t, final.CompletedAt)

	// Terminal jobs are never claimable again.
	_, err = store.TryClaimOne(ctx)
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestMemoryStore_ZeroRetryBudget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job, err := store.CreateJob(ctx, "t", "{}", "user-1", 0)
	require.NoError(t, err)

	_, err = store.TryClaimOne(ctx)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, job.ID, "boom"))

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 0, final.RetryCount)
}

func TestMemoryStore_MarkOnWrongStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job, err := store.CreateJob(ctx, "t", "{}", "user-1", 1)
	require.NoError(t, err)

	// Marking a PENDING (unclaimed) job is rejected.
	assert.ErrorIs(t, store.MarkCompleted(ctx, job.ID), ErrJobNotFound)
	assert.ErrorIs(t, store.MarkFailed(ctx, job.ID, "x"), ErrJobNotFound)

	assert.ErrorIs(t, store.MarkCompleted(ctx, "missing"), ErrJobNotFound)
}

func TestMemoryStore_Listings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Strictly increasing clock so creation order and timestamps agree.
	base := time.Now()
	tick := 0
	store.clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	a, err := store.CreateJob(ctx, "t", "{}", "alice", 0)
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, "t", "{}", "bob", 0)
	require.NoError(t, err)
	c, err := store.CreateJob(ctx, "t", "{}", "alice", 0)
	require.NoError(t, err)

	// Complete the first job.
	claimed, err := store.TryClaimOne(ctx)
	require.NoError(t, err)
	require.Equal(t, a.ID, claimed.ID)
	require.NoError(t, store.MarkCompleted(ctx, a.ID))

	pending, err := store.GetPendingJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	completed, err := store.GetJobsByStatus(ctx, StatusCompleted, 10)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, a.ID, completed[0].ID)

	_, err = store.GetJobsByStatus(ctx, "BOGUS", 10)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	byOwner, err := store.GetJobsByOwner(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, byOwner, 2)

	limited, err := store.GetJobsByOwner(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, c.ID, limited[0].ID, "owner listing is newest first")
}
