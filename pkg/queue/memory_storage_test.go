package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

func newPendingJob(opts ...func(*queue.Job)) *queue.Job {
	job := &queue.Job{
		ID:          uuid.New(),
		Queue:       queue.DefaultQueueName,
		JobType:     queue.JobTypeOneTime,
		Name:        "test-job",
		Payload:     []byte(`{"value":1}`),
		Status:      queue.JobStatusPending,
		Priority:    queue.PriorityDefault,
		MaxAttempts: 3,
		ScheduledAt: time.Now().Add(-time.Second),
		CreatedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

func TestMemoryStorage_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob()
	require.NoError(t, storage.CreateJob(ctx, job))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, queue.JobStatusPending, got.Status)
	assert.Equal(t, int8(0), got.Attempts)
	assert.JSONEq(t, `{"value":1}`, string(got.Payload))

	t.Run("duplicate id rejected", func(t *testing.T) {
		assert.Error(t, storage.CreateJob(ctx, job))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := storage.GetJob(ctx, uuid.New())
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("returned job is a copy", func(t *testing.T) {
		got.Status = queue.JobStatusFailed
		fresh, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusPending, fresh.Status)
	})
}

func TestMemoryStorage_CancelJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("pending job cancels", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		require.NoError(t, storage.CancelJob(ctx, job.ID))

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusCanceled, got.Status)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "canceled", *got.LastError)
		assert.NotNil(t, got.CompletedAt)

		// Terminal: a second cancel is an invalid transition
		assert.ErrorIs(t, storage.CancelJob(ctx, job.ID), queue.ErrJobNotPending)
	})

	t.Run("canceled job is not claimable", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))
		require.NoError(t, storage.CancelJob(ctx, job.ID))

		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("processing job cannot be canceled", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)

		err = storage.CancelJob(ctx, job.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotPending)
		assert.ErrorIs(t, err, queue.ErrInvalidState)
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		assert.ErrorIs(t, storage.CancelJob(ctx, uuid.New()), queue.ErrJobNotFound)
	})
}

func TestMemoryStorage_ClaimJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("claim transitions and charges an attempt", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		workerID := uuid.New()
		claimed, err := storage.ClaimJob(ctx, workerID, []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)

		assert.Equal(t, job.ID, claimed.ID)
		assert.Equal(t, queue.JobStatusProcessing, claimed.Status)
		assert.Equal(t, int8(1), claimed.Attempts)
		assert.NotNil(t, claimed.StartedAt)
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)
		assert.NotNil(t, claimed.LockedUntil)
	})

	t.Run("empty pool", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("future job is not claimable until due", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob(func(j *queue.Job) {
			j.ScheduledAt = time.Now().Add(time.Hour)
		})
		require.NoError(t, storage.CreateJob(ctx, job))

		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("queue filter applies", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob(func(j *queue.Job) { j.Queue = "emails" })
		require.NoError(t, storage.CreateJob(ctx, job))

		_, err := storage.ClaimJob(ctx, uuid.New(), []string{"reports"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)

		claimed, err := storage.ClaimJob(ctx, uuid.New(), []string{"reports", "emails"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, job.ID, claimed.ID)
	})

	t.Run("higher priority wins", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		low := newPendingJob(func(j *queue.Job) {
			j.Priority = queue.PriorityLow
			j.ScheduledAt = time.Now().Add(-time.Hour)
		})
		high := newPendingJob(func(j *queue.Job) {
			j.Priority = queue.PriorityHigh
		})
		require.NoError(t, storage.CreateJob(ctx, low))
		require.NoError(t, storage.CreateJob(ctx, high))

		claimed, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, high.ID, claimed.ID)
	})

	t.Run("earlier due time breaks priority ties", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		older := newPendingJob(func(j *queue.Job) {
			j.ScheduledAt = time.Now().Add(-time.Hour)
		})
		newer := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, newer))
		require.NoError(t, storage.CreateJob(ctx, older))

		claimed, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, older.ID, claimed.ID)
	})

	t.Run("concurrent claims have exactly one winner", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		const claimers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0

		for range claimers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusProcessing, got.Status)
		assert.Equal(t, int8(1), got.Attempts)
	})
}

func TestMemoryStorage_CompleteJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob()
	require.NoError(t, storage.CreateJob(ctx, job))
	_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, storage.CompleteJob(ctx, job.ID))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.LockedUntil)
	assert.Nil(t, got.LockedBy)

	// Terminal states reject further transitions
	assert.ErrorIs(t, storage.CompleteJob(ctx, job.ID), queue.ErrFailedToUpdateJobStatus)
	assert.ErrorIs(t, storage.FailJob(ctx, job.ID, "nope"), queue.ErrFailedToUpdateJobStatus)
}

func TestMemoryStorage_RetryJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns job to claimable pool", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))
		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)

		nextRun := time.Now().Add(5 * time.Minute)
		require.NoError(t, storage.RetryJob(ctx, job.ID, "network blip", nextRun))

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusPending, got.Status)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "network blip", *got.LastError)
		assert.WithinDuration(t, nextRun, got.ScheduledAt, time.Second)
		assert.Equal(t, int8(1), got.Attempts)
	})

	t.Run("scheduled_at never moves backwards", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob(func(j *queue.Job) {
			j.ScheduledAt = time.Now().Add(-time.Millisecond)
		})
		require.NoError(t, storage.CreateJob(ctx, job))
		claimed, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)

		past := claimed.ScheduledAt.Add(-time.Hour)
		require.NoError(t, storage.RetryJob(ctx, job.ID, "err", past))

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, claimed.ScheduledAt.Unix(), got.ScheduledAt.Unix())
	})

	t.Run("only processing jobs retry", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		err := storage.RetryJob(ctx, job.ID, "err", time.Now())
		assert.ErrorIs(t, err, queue.ErrFailedToUpdateJobStatus)
	})
}

func TestMemoryStorage_FailJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob()
	require.NoError(t, storage.CreateJob(ctx, job))
	_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, storage.FailJob(ctx, job.ID, "permanent failure"))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "permanent failure", *got.LastError)
	assert.NotNil(t, got.CompletedAt)
}

func TestMemoryStorage_ArchiveToDLQ(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob()
	require.NoError(t, storage.CreateJob(ctx, job))
	_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.FailJob(ctx, job.ID, "boom"))

	require.NoError(t, storage.ArchiveToDLQ(ctx, job.ID))

	entries := storage.DLQEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, job.ID, entries[0].JobID)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, int8(1), entries[0].Attempts)

	// The job row keeps its terminal status
	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusFailed, got.Status)
}

func TestMemoryStorage_PurgeDLQ(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob()
	require.NoError(t, storage.CreateJob(ctx, job))
	_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.FailJob(ctx, job.ID, "boom"))
	require.NoError(t, storage.ArchiveToDLQ(ctx, job.ID))

	purged, err := storage.PurgeDLQ(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.Len(t, storage.DLQEntries(), 1)

	purged, err = storage.PurgeDLQ(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
	assert.Empty(t, storage.DLQEntries())
}

func TestMemoryStorage_ExtendLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob()
	require.NoError(t, storage.CreateJob(ctx, job))
	claimed, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, storage.ExtendLock(ctx, job.ID, time.Hour))

	got, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.LockedUntil.After(*claimed.LockedUntil))
}

func TestMemoryStorage_ReleaseExpiredLocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("stale job with attempts left goes back to pending", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		// Claim with an already-expired lock to simulate a crashed worker
		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, -time.Second)
		require.NoError(t, err)

		released, err := storage.ReleaseExpiredLocks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusPending, got.Status)
		assert.Equal(t, int8(1), got.Attempts)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "processing lock expired", *got.LastError)
		assert.Nil(t, got.LockedBy)
	})

	t.Run("stale job with exhausted attempts fails terminally", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob(func(j *queue.Job) { j.MaxAttempts = 1 })
		require.NoError(t, storage.CreateJob(ctx, job))

		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, -time.Second)
		require.NoError(t, err)

		released, err := storage.ReleaseExpiredLocks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusFailed, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("live locks are untouched", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		job := newPendingJob()
		require.NoError(t, storage.CreateJob(ctx, job))

		_, err := storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Hour)
		require.NoError(t, err)

		released, err := storage.ReleaseExpiredLocks(ctx)
		require.NoError(t, err)
		assert.Zero(t, released)

		got, err := storage.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusProcessing, got.Status)
	})
}

func TestMemoryStorage_GetPendingJobByName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()

	job := newPendingJob(func(j *queue.Job) { j.Name = "nightly-report" })
	require.NoError(t, storage.CreateJob(ctx, job))

	got, err := storage.GetPendingJobByName(ctx, "nightly-report")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = storage.GetPendingJobByName(ctx, "unknown")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)

	// A claimed instance no longer counts as pending
	_, err = storage.ClaimJob(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
	require.NoError(t, err)
	_, err = storage.GetPendingJobByName(ctx, "nightly-report")
	assert.ErrorIs(t, err, queue.ErrJobNotFound)
}
