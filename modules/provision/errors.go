package provision

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// Class identifies the failure category of a provisioning error. The class
// decides whether the worker retries the job and is recorded as the job's
// last error, so it must stay stable across releases.
type Class string

const (
	ClassEntityNotFound               Class = "entity-not-found"
	ClassDependencyCreationFailed     Class = "dependency-creation-failed"
	ClassDownstreamRegistrationFailed Class = "downstream-registration-failed"
	ClassPermissionDenied             Class = "permission-denied"
	ClassQuotaExceeded                Class = "quota-exceeded"
	ClassNetworkError                 Class = "network-error"
	ClassTimeout                      Class = "timeout"
	ClassUnknown                      Class = "unknown"
)

// Sentinel errors collaborators wrap to signal a specific failure class.
var (
	ErrEntityNotFound   = errors.New("entity not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrNetwork          = errors.New("network error")
	ErrTimeout          = errors.New("operation timed out")
)

// Error carries a provisioning failure together with its class and the stage
// at which it occurred.
type Error struct {
	Class Class
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return string(e.Class) + " at stage " + string(e.Stage) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps an arbitrary error onto the failure taxonomy. Errors that do
// not wrap a known sentinel fall back to the class the failing stage implies,
// or ClassUnknown if the stage implies none.
func Classify(err error, fallback Class) Class {
	switch {
	case errors.Is(err, ErrEntityNotFound):
		return ClassEntityNotFound
	case errors.Is(err, ErrPermissionDenied):
		return ClassPermissionDenied
	case errors.Is(err, ErrQuotaExceeded):
		return ClassQuotaExceeded
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, ErrNetwork), isNetError(err):
		return ClassNetworkError
	}
	if fallback != "" {
		return fallback
	}
	return ClassUnknown
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Retryable reports whether a failure class is worth retrying. Permission
// and quota problems will not resolve on their own, and a missing
// prerequisite entity will still be missing on the next attempt.
func (c Class) Retryable() bool {
	switch c {
	case ClassPermissionDenied, ClassQuotaExceeded, ClassEntityNotFound:
		return false
	default:
		return true
	}
}

// classified wraps err with its class and stage, marked fatal or retryable
// for the worker according to the class.
func classified(err error, stage Stage, fallback Class) error {
	class := Classify(err, fallback)
	werr := &Error{Class: class, Stage: stage, Err: err}
	if class.Retryable() {
		return queue.Retryable(werr)
	}
	return queue.Fatal(werr)
}
