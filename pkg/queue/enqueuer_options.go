package queue

import (
	"time"

	"github.com/google/uuid"
)

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue    string
	defaultPriority Priority
}

// WithDefaultQueue sets the default queue name
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority sets the default priority
func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if priority.Valid() {
			o.defaultPriority = priority
		}
	}
}

// EnqueueOption is a functional option for the Enqueue and Schedule methods
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	maxAttempts int8
	delay       time.Duration
	scheduledAt *time.Time
	jobName     string
	projectID   *uuid.UUID
}

// WithQueue routes the job to a named queue
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority sets the priority hint for the job
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxAttempts sets the execution attempt ceiling (1-10).
// Capped at 10 to prevent infinite retry loops on persistent failures.
func WithMaxAttempts(maxAttempts int8) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxAttempts = maxAttempts
	}
}

// WithDelay sets a delay before the job becomes claimable
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt sets a specific time at which the job becomes claimable.
// Past timestamps are clamped to now.
func WithScheduledAt(scheduledAt time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &scheduledAt
	}
}

// WithJobName sets a custom job-type name instead of deriving it from the payload type
func WithJobName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.jobName = name
		}
	}
}

// WithProjectID scopes the job to an owning project/tenant.
// Jobs without a project are system-wide.
func WithProjectID(projectID uuid.UUID) EnqueueOption {
	return func(o *enqueueOptions) {
		o.projectID = &projectID
	}
}
