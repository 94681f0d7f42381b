package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the storage surface used by producers
type EnqueuerRepository interface {
	// CreateJob inserts a new pending job row
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns the current job row or ErrJobNotFound
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// CancelJob transitions a pending job to canceled. Returns
	// ErrJobNotPending if the job is already claimed or terminal,
	// ErrJobNotFound if it does not exist.
	CancelJob(ctx context.Context, jobID uuid.UUID) error
}

// Enqueuer is the producer-facing queue API: submit work, observe it, and
// cancel it while it is still unclaimed.
type Enqueuer struct {
	repo            EnqueuerRepository
	defaultQueue    string
	defaultPriority Priority
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:    DefaultQueueName,
		defaultPriority: PriorityDefault,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:            repo,
		defaultQueue:    options.defaultQueue,
		defaultPriority: options.defaultPriority,
	}, nil
}

// Enqueue adds a new job to the queue and returns the created job record.
// The job becomes claimable immediately unless WithDelay or WithScheduledAt
// pushes it into the future.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (*Job, error) {
	options := &enqueueOptions{
		queue:       e.defaultQueue,
		priority:    e.defaultPriority,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(options)
	}

	job, err := e.buildJob(payload, options)
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job %q in queue %q: %w", job.Name, job.Queue, err)
	}

	jobsEnqueued.Inc()

	return job, nil
}

// Schedule adds a new job that becomes claimable at the given time.
// A timestamp in the past is clamped to now rather than rejected, so
// Schedule(ctx, p, time.Now()) is race-free for callers.
func (e *Enqueuer) Schedule(ctx context.Context, payload any, at time.Time, opts ...EnqueueOption) (*Job, error) {
	return e.Enqueue(ctx, payload, append(opts, WithScheduledAt(at))...)
}

// Get returns the current state of a job or ErrJobNotFound
func (e *Enqueuer) Get(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return e.repo.GetJob(ctx, jobID)
}

// Cancel terminally cancels a job that has not been claimed yet. A job that
// is already processing runs to completion and cannot be cancelled mid-flight;
// Cancel returns ErrJobNotPending in that case.
func (e *Enqueuer) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return e.repo.CancelJob(ctx, jobID)
}

// buildJob constructs and validates a Job from payload and options
func (e *Enqueuer) buildJob(payload any, options *enqueueOptions) (*Job, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}

	if !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	if options.maxAttempts < 1 || options.maxAttempts > 10 {
		return nil, ErrInvalidMaxAttempts
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload of type %T: %v", ErrPayloadMarshal, payload, err)
	}

	name := options.jobName
	if name == "" {
		name = qualifiedStructName(payload)
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil && options.scheduledAt.After(now) {
		scheduledAt = *options.scheduledAt
	} else if options.scheduledAt == nil && options.delay > 0 {
		scheduledAt = now.Add(options.delay)
	}

	return &Job{
		ID:          uuid.New(),
		ProjectID:   options.projectID,
		Queue:       options.queue,
		JobType:     JobTypeOneTime,
		Name:        name,
		Payload:     payloadBytes,
		Status:      JobStatusPending,
		Priority:    options.priority,
		Attempts:    0,
		MaxAttempts: options.maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}
