package queue

import (
	"errors"
	"fmt"
)

// Grouping sentinels. Specific errors below wrap one of these so transport
// layers can map whole classes deterministically with errors.Is
// (ErrValidation -> 400, ErrJobNotFound -> 404, ErrInvalidState -> 409).
var (
	// ErrValidation groups all bad-input errors returned by the producer API
	ErrValidation = errors.New("validation failed")

	// ErrJobNotFound is returned when a job id does not exist in storage
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidState groups illegal lifecycle transition attempts
	ErrInvalidState = errors.New("invalid job state")
)

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = fmt.Errorf("%w: payload cannot be nil", ErrValidation)

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = fmt.Errorf("%w: failed to marshal payload to JSON", ErrValidation)

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = fmt.Errorf("%w: priority must be between 0 and 100", ErrValidation)

	// ErrInvalidMaxAttempts is returned when the attempt ceiling is outside 1-10
	ErrInvalidMaxAttempts = fmt.Errorf("%w: max attempts must be between 1 and 10", ErrValidation)

	// ErrJobNotPending is returned when cancelling a job that is already
	// claimed or terminal
	ErrJobNotPending = fmt.Errorf("%w: job is not pending", ErrInvalidState)

	// ErrJobCreate is returned when job creation in storage fails
	ErrJobCreate = errors.New("failed to create job in storage")

	// ErrHandlerNotFound is returned when no handler is registered for a job name
	ErrHandlerNotFound = errors.New("no handler registered for job type")

	// ErrNoHandlers is returned when worker has no handlers registered
	ErrNoHandlers = errors.New("no job handlers registered")

	// ErrNoJobToClaim signals an empty claimable pool; not an error condition
	// for the worker, just an idle tick
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrJobAlreadyRegistered is returned when registering a duplicate periodic job
	ErrJobAlreadyRegistered = errors.New("periodic job already registered")

	// ErrSchedulerNotConfigured is returned when scheduler has no jobs
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered jobs")

	// ErrFailedToUpdateJobStatus is returned when a job status transition fails in storage
	ErrFailedToUpdateJobStatus = errors.New("failed to update job status")
)
