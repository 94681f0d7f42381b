package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// WorkerRepository defines the storage surface used by workers.
//
// ClaimJob is the concurrency primitive of the whole engine: it must
// atomically transition exactly one due pending job to processing
// (conditional update, compare-and-swap on status) so that two workers
// racing for the same row produce exactly one winner. The claim also
// increments Attempts and stamps StartedAt.
type WorkerRepository interface {
	// ClaimJob atomically claims the next due job from the given queues,
	// preferring higher priority, then earlier scheduled_at.
	// Returns ErrNoJobToClaim when the claimable pool is empty.
	ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error)

	// CompleteJob marks a processing job as completed
	CompleteJob(ctx context.Context, jobID uuid.UUID) error

	// RetryJob returns a processing job to the claimable pool with the
	// given failure message and a future scheduled_at
	RetryJob(ctx context.Context, jobID uuid.UUID, errorMsg string, nextRun time.Time) error

	// FailJob marks a processing job as terminally failed
	FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error

	// ArchiveToDLQ copies a terminally failed job into the dead letter
	// queue; the job row keeps its terminal status
	ArchiveToDLQ(ctx context.Context, jobID uuid.UUID) error

	// ExtendLock extends the lock timeout for long-running jobs
	ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error

	// ReleaseExpiredLocks recovers jobs stuck in processing after a worker
	// crash: stale rows with attempts remaining go back to pending, the
	// rest are terminally failed. Returns the number of rows touched.
	ReleaseExpiredLocks(ctx context.Context) (int, error)
}

// Worker claims pending jobs and dispatches them to registered handlers
type Worker struct {
	repo     WorkerRepository
	registry *Registry
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	// Configuration
	pollInterval  time.Duration
	sweepInterval time.Duration
	lockTimeout   time.Duration
	backoff       Backoff
	logger        *slog.Logger

	// State management
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new job worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	// Default options
	options := &workerOptions{
		queues:            []string{DefaultQueueName},
		pollInterval:      5 * time.Second,
		sweepInterval:     30 * time.Second,
		lockTimeout:       5 * time.Minute,
		backoff:           DefaultBackoff(),
		maxConcurrentJobs: 1,
		registry:          nil,
		logger:            slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(options)
	}

	registry := options.registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Worker{
		repo:          repo,
		registry:      registry,
		queues:        options.queues,
		workerID:      uuid.New(),
		sem:           make(chan struct{}, options.maxConcurrentJobs),
		pollInterval:  options.pollInterval,
		sweepInterval: options.sweepInterval,
		lockTimeout:   options.lockTimeout,
		backoff:       options.backoff,
		logger:        options.logger,
	}, nil
}

// Registry returns the handler registry the worker dispatches from
func (w *Worker) Registry() *Registry {
	return w.registry
}

// RegisterHandlers registers job handlers on the worker's registry
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.registry.Register(handlers...)
}

// Start begins processing jobs in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	if w.registry.Len() == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	// Reset stopping flag
	w.stopping.Store(false)

	// Start the main processing loop
	go w.run()

	w.logger.Info("worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for in-flight jobs
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	// Use stopMu to synchronize with run() goroutine
	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	// Cancel context to stop processing
	cancel()

	w.logger.Info("worker stopping, waiting for active jobs to complete",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop: a poll ticker that pulls claimable jobs
// and a sweep ticker that recovers jobs abandoned by crashed workers.
func (w *Worker) run() {
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()

	sweep := time.NewTicker(w.sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-sweep.C:
			w.sweepExpiredLocks()
		case <-poll.C:
			// Try to acquire a slot
			select {
			case w.sem <- struct{}{}:
				// Use stopMu to ensure we don't add to WaitGroup after Stop() starts
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem // Release slot
					return
				}

				// Safe to add to wait group while holding stopMu
				w.wg.Add(1)
				w.stopMu.Unlock()

				// Got a slot, process job in background
				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }() // Release slot

					if err := w.pullAndProcess(); err != nil {
						if !errors.Is(err, ErrHandlerNotFound) {
							w.logger.Error("failed to process job",
								slog.String("worker_id", w.workerID.String()),
								slog.String("error", err.Error()))
						}
					}
				}()
			default:
				// All slots busy, skip this tick
				w.logger.Debug("all worker slots busy, skipping tick",
					slog.String("worker_id", w.workerID.String()))
			}
		}
	}
}

// sweepExpiredLocks is the liveness sweep: it asks storage to recover
// processing rows whose lock has expired so a crash mid-execution never
// leaves a job permanently stuck.
func (w *Worker) sweepExpiredLocks() {
	released, err := w.repo.ReleaseExpiredLocks(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Error("failed to release expired locks",
				slog.String("worker_id", w.workerID.String()),
				slog.String("error", err.Error()))
		}
		return
	}

	if released > 0 {
		locksExpired.Add(float64(released))
		w.logger.Warn("released expired job locks",
			slog.String("worker_id", w.workerID.String()),
			slog.Int("count", released))
	}
}

// pullAndProcess claims a job and processes it
func (w *Worker) pullAndProcess() error {
	job, err := w.repo.ClaimJob(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		// An empty claimable pool is normal, not an error
		if errors.Is(err, ErrNoJobToClaim) {
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	if job == nil {
		return nil
	}

	w.logger.Debug("claimed job",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("queue", job.Queue),
		slog.Int("attempt", int(job.Attempts)))

	jobsInFlight.Inc()
	defer jobsInFlight.Dec()

	return w.processJob(job)
}

// processJob executes a claimed job with its handler and persists the outcome
func (w *Worker) processJob(job *Job) (retErr error) {
	start := time.Now()

	// Panic recovery: a panicking handler is a retryable failure, and it
	// must never escape the poll loop.
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.logger.Error("handler panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("job_id", job.ID.String()),
				slog.String("job_name", job.Name),
				slog.Any("panic", r))
			_ = w.handleJobFailure(job, retErr, time.Since(start))
		}
	}()

	handler, err := w.registry.Get(job.Name)
	if err != nil {
		return w.handleMissingHandler(job)
	}

	// The execution timeout is not tied to the worker lifecycle so that
	// graceful shutdown lets in-flight jobs run to completion.
	ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
	defer cancel()

	err = handler.Handle(ctx, job.Payload)
	duration := time.Since(start)

	if err != nil {
		// A handler that overran its execution timeout is a transient
		// condition; the default retryable classification applies.
		return w.handleJobFailure(job, err, duration)
	}

	return w.handleJobSuccess(job, duration)
}

// handleMissingHandler fails jobs that have no registered handler.
//
// Retrying cannot succeed without redeploying code, so the job is failed
// immediately instead of consuming its retry budget, and archived to the
// DLQ so operators can requeue it once the handler ships.
func (w *Worker) handleMissingHandler(job *Job) error {
	w.logger.Error("no handler registered for job type",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name))

	errorMsg := "no handler registered for job type: " + job.Name
	if err := w.repo.FailJob(w.ctx, job.ID, errorMsg); err != nil {
		return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, err)
	}
	jobsFailed.Inc()

	if err := w.repo.ArchiveToDLQ(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to archive job %s to DLQ: %w", job.ID, err)
	}
	jobsDeadLettered.Inc()

	return fmt.Errorf("%w: %s", ErrHandlerNotFound, job.Name)
}

// handleJobFailure persists the outcome of a failed execution.
//
// Fatal failures and exhausted retry budgets are terminal: the job is failed
// and archived to the DLQ. Anything else goes back to the claimable pool
// with an exponential backoff delay.
func (w *Worker) handleJobFailure(job *Job, execErr error, duration time.Duration) error {
	fatal := IsFatal(execErr)

	w.logger.Error("job failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.Int("attempts", int(job.Attempts)),
		slog.Int("max_attempts", int(job.MaxAttempts)),
		slog.Bool("fatal", fatal),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	if !fatal && job.Attempts < job.MaxAttempts {
		nextRun := time.Now().Add(w.backoff.Next(job.Attempts))
		if err := w.repo.RetryJob(w.ctx, job.ID, execErr.Error(), nextRun); err != nil {
			return fmt.Errorf("failed to requeue job %s for retry: %w", job.ID, err)
		}
		jobsRetried.Inc()
		return nil
	}

	if err := w.repo.FailJob(w.ctx, job.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update job %s status to failed: %w", job.ID, err)
	}
	jobsFailed.Inc()

	if err := w.repo.ArchiveToDLQ(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to archive job %s to DLQ: %w", job.ID, err)
	}
	jobsDeadLettered.Inc()

	w.logger.Warn("job archived to dead letter queue",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name))

	return nil
}

// handleJobSuccess persists successful job completion
func (w *Worker) handleJobSuccess(job *Job, duration time.Duration) error {
	if err := w.repo.CompleteJob(w.ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}
	jobsCompleted.Inc()

	w.logger.Info("job completed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("queue", job.Queue),
		slog.Duration("duration", duration))

	return nil
}

// ExtendLockForJob extends the lock timeout for a long-running job.
// Handlers that expect to outlive the lock timeout should call this periodically.
func (w *Worker) ExtendLockForJob(ctx context.Context, jobID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, jobID, extension)
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
