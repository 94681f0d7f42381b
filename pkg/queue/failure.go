package queue

import "errors"

// FatalError marks a handler failure as non-retryable. The worker fails the
// job immediately regardless of remaining attempts, because retrying cannot
// change the outcome (malformed payload, missing prerequisite entity, etc.).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err so the worker treats the failure as non-retryable.
// Wrapping nil returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// RetryableError explicitly marks a handler failure as transient. Plain
// errors are already treated as retryable; the wrapper exists for handlers
// that want to be explicit about the classification at the return site.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as an explicitly transient failure.
// Wrapping nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
// An explicit RetryableError closer to the surface wins, so a fatal cause
// re-wrapped as retryable by an outer layer stays retryable.
func IsFatal(err error) bool {
	for err != nil {
		switch err.(type) {
		case *RetryableError:
			return false
		case *FatalError:
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
