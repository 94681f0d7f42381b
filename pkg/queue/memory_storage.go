package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and
// local development. All transitions happen under one mutex, which gives the
// same atomic-claim guarantee the SQL backends get from conditional updates.
type MemoryStorage struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	dlq  map[uuid.UUID]*DLQEntry

	// Indexes for efficient queries
	byQueue  map[string][]uuid.UUID
	byStatus map[JobStatus][]uuid.UUID
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:     make(map[uuid.UUID]*Job),
		dlq:      make(map[uuid.UUID]*DLQEntry),
		byQueue:  make(map[string][]uuid.UUID),
		byStatus: make(map[JobStatus][]uuid.UUID),
	}
}

// Close releases storage resources. It exists so callers can treat all
// storage backends uniformly; the memory backend holds nothing to release.
func (ms *MemoryStorage) Close() error {
	return nil
}

// CreateJob implements EnqueuerRepository and SchedulerRepository
func (ms *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}

	// Clone job to prevent external modifications
	jobCopy := *job
	ms.jobs[job.ID] = &jobCopy

	ms.byQueue[job.Queue] = append(ms.byQueue[job.Queue], job.ID)
	ms.byStatus[job.Status] = append(ms.byStatus[job.Status], job.ID)

	return nil
}

// GetJob implements EnqueuerRepository
func (ms *MemoryStorage) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// CancelJob implements EnqueuerRepository. Only pending jobs can be
// cancelled; a claimed job runs to completion.
func (ms *MemoryStorage) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != JobStatusPending {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotPending, jobID, job.Status)
	}

	now := time.Now()
	reason := "canceled"
	job.Status = JobStatusCanceled
	job.LastError = &reason
	job.CompletedAt = &now

	ms.removeFromStatusIndex(jobID, JobStatusPending)
	ms.byStatus[JobStatusCanceled] = append(ms.byStatus[JobStatusCanceled], jobID)

	return nil
}

// ClaimJob implements WorkerRepository. The claim transitions the winning
// row to processing, increments Attempts and stamps StartedAt in one
// critical section, so concurrent claimers observe exactly one winner.
func (ms *MemoryStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var bestJob *Job
	var bestPriority Priority = -1

	// Priority-first selection; earliest scheduled_at breaks ties within a tier
	for _, jobID := range ms.byStatus[JobStatusPending] {
		job := ms.jobs[jobID]

		if !slices.Contains(queues, job.Queue) {
			continue
		}

		// Jobs scheduled for the future are not claimable yet
		if job.ScheduledAt.After(now) {
			continue
		}

		if job.LockedUntil != nil && job.LockedUntil.After(now) {
			continue
		}

		if bestJob == nil ||
			job.Priority > bestPriority ||
			(job.Priority == bestPriority && job.ScheduledAt.Before(bestJob.ScheduledAt)) {
			bestJob = job
			bestPriority = job.Priority
		}
	}

	if bestJob == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockDuration)
	bestJob.Status = JobStatusProcessing
	bestJob.Attempts++
	bestJob.StartedAt = &now
	bestJob.LockedUntil = &lockUntil
	bestJob.LockedBy = &workerID

	ms.removeFromStatusIndex(bestJob.ID, JobStatusPending)
	ms.byStatus[JobStatusProcessing] = append(ms.byStatus[JobStatusProcessing], bestJob.ID)

	jobCopy := *bestJob
	return &jobCopy, nil
}

// CompleteJob implements WorkerRepository
func (ms *MemoryStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	now := time.Now()
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.removeFromStatusIndex(jobID, JobStatusProcessing)
	ms.byStatus[JobStatusCompleted] = append(ms.byStatus[JobStatusCompleted], jobID)

	return nil
}

// RetryJob implements WorkerRepository
func (ms *MemoryStorage) RetryJob(ctx context.Context, jobID uuid.UUID, errorMsg string, nextRun time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	// scheduled_at never moves backwards across retries
	if nextRun.After(job.ScheduledAt) {
		job.ScheduledAt = nextRun
	}
	job.Status = JobStatusPending
	job.LastError = &errorMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.removeFromStatusIndex(jobID, JobStatusProcessing)
	ms.byStatus[JobStatusPending] = append(ms.byStatus[JobStatusPending], jobID)

	return nil
}

// FailJob implements WorkerRepository
func (ms *MemoryStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	now := time.Now()
	job.Status = JobStatusFailed
	job.LastError = &errorMsg
	job.CompletedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.removeFromStatusIndex(jobID, JobStatusProcessing)
	ms.byStatus[JobStatusFailed] = append(ms.byStatus[JobStatusFailed], jobID)

	return nil
}

// ArchiveToDLQ implements WorkerRepository. The job row keeps its terminal
// status so Get keeps answering for it; only a DLQ copy is added.
func (ms *MemoryStorage) ArchiveToDLQ(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	entry := &DLQEntry{
		ID:        uuid.New(),
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Queue:     job.Queue,
		JobType:   job.JobType,
		Name:      job.Name,
		Payload:   job.Payload,
		Priority:  job.Priority,
		Attempts:  job.Attempts,
		FailedAt:  time.Now(),
		CreatedAt: time.Now(),
	}

	if job.LastError != nil {
		entry.Error = *job.LastError
	}

	ms.dlq[entry.ID] = entry

	return nil
}

// ExtendLock implements WorkerRepository
func (ms *MemoryStorage) ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	lockUntil := time.Now().Add(duration)
	job.LockedUntil = &lockUntil

	return nil
}

// ReleaseExpiredLocks implements WorkerRepository. Stale processing rows
// already consumed an attempt at claim time, so rows with attempts remaining
// go back to pending while exhausted rows fail terminally.
func (ms *MemoryStorage) ReleaseExpiredLocks(ctx context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	released := 0

	for _, jobID := range slices.Clone(ms.byStatus[JobStatusProcessing]) {
		job := ms.jobs[jobID]
		if job.LockedUntil == nil || !job.LockedUntil.Before(now) {
			continue
		}

		released++
		reason := "processing lock expired"
		job.LastError = &reason
		job.LockedUntil = nil
		job.LockedBy = nil
		ms.removeFromStatusIndex(jobID, JobStatusProcessing)

		if job.Attempts >= job.MaxAttempts {
			job.Status = JobStatusFailed
			completedAt := now
			job.CompletedAt = &completedAt
			ms.byStatus[JobStatusFailed] = append(ms.byStatus[JobStatusFailed], jobID)
			continue
		}

		job.Status = JobStatusPending
		ms.byStatus[JobStatusPending] = append(ms.byStatus[JobStatusPending], jobID)
	}

	return released, nil
}

// GetPendingJobByName implements SchedulerRepository
func (ms *MemoryStorage) GetPendingJobByName(ctx context.Context, name string) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, jobID := range ms.byStatus[JobStatusPending] {
		job := ms.jobs[jobID]
		if job.Name == name {
			jobCopy := *job
			return &jobCopy, nil
		}
	}

	return nil, fmt.Errorf("%w: pending job %q", ErrJobNotFound, name)
}

// DLQEntries returns a snapshot of the dead letter queue
func (ms *MemoryStorage) DLQEntries() []DLQEntry {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entries := make([]DLQEntry, 0, len(ms.dlq))
	for _, e := range ms.dlq {
		entries = append(entries, *e)
	}
	return entries
}

// PurgeDLQ removes dead letter entries older than the given cutoff and
// returns the number removed
func (ms *MemoryStorage) PurgeDLQ(ctx context.Context, olderThan time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var purged int64
	for id, entry := range ms.dlq {
		if entry.FailedAt.Before(olderThan) {
			delete(ms.dlq, id)
			purged++
		}
	}
	return purged, nil
}

// Helper methods

func (ms *MemoryStorage) removeFromStatusIndex(jobID uuid.UUID, status JobStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(id uuid.UUID) bool {
		return id == jobID
	})
}
