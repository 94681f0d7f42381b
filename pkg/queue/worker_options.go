package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues            []string
	pollInterval      time.Duration
	sweepInterval     time.Duration
	lockTimeout       time.Duration
	backoff           Backoff
	maxConcurrentJobs int
	registry          *Registry
	logger            *slog.Logger
}

// WithQueues sets which queues the worker should claim from
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPollInterval sets how often the worker checks for claimable jobs
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithSweepInterval sets how often the liveness sweep runs
func WithSweepInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithLockTimeout sets the claim lock duration, which is also the per-job
// execution timeout
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithRetryBackoff sets the retry backoff policy
func WithRetryBackoff(b Backoff) WorkerOption {
	return func(o *workerOptions) {
		o.backoff = b
	}
}

// WithMaxConcurrentJobs sets the maximum number of concurrently executing jobs
func WithMaxConcurrentJobs(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentJobs = n
		}
	}
}

// WithRegistry makes the worker dispatch from a shared handler registry
// instead of its own private one
func WithRegistry(r *Registry) WorkerOption {
	return func(o *workerOptions) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
