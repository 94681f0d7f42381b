package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the queue jobs are routed to when no queue is specified
const DefaultQueueName = "default"

// DefaultMaxAttempts is the execution attempt ceiling applied when the
// producer does not set one explicitly
const DefaultMaxAttempts int8 = 3

// JobType distinguishes one-time jobs from scheduler-generated periodic jobs
type JobType string

const (
	JobTypeOneTime  JobType = "one-time"
	JobTypePeriodic JobType = "periodic"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether no further transitions are permitted out of the status
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}

// Priority represents job priority (0-100, higher is more important)
// Using int8 provides sufficient range while keeping memory footprint minimal
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Job represents a unit of durable, retryable work.
//
// Attempts is incremented inside the atomic claim, so a row in "processing"
// has already been charged for the in-flight execution. Payload is immutable
// after creation; retries re-deliver the identical bytes.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty"`
	Queue       string     `json:"queue"`
	JobType     JobType    `json:"job_type"`
	Name        string     `json:"name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      JobStatus  `json:"status"`
	Priority    Priority   `json:"priority"`
	Attempts    int8       `json:"attempts"`
	MaxAttempts int8       `json:"max_attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DLQEntry represents a terminally failed job archived to the dead letter queue.
// The original job row keeps its terminal status; the DLQ entry exists for
// manual inspection and recovery tooling.
type DLQEntry struct {
	ID        uuid.UUID  `json:"id"`
	JobID     uuid.UUID  `json:"job_id"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	Queue     string     `json:"queue"`
	JobType   JobType    `json:"job_type"`
	Name      string     `json:"name"`
	Payload   []byte     `json:"payload,omitempty"`
	Priority  Priority   `json:"priority"`
	Error     string     `json:"error"`
	Attempts  int8       `json:"attempts"`
	FailedAt  time.Time  `json:"failed_at"`
	CreatedAt time.Time  `json:"created_at"`
}
