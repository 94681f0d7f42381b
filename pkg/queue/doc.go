// Package queue provides a durable, storage-backed job queue with at-most-one
// active execution per job across concurrent workers, bounded retries with
// exponential backoff, and a pluggable handler registry.
//
// The package is organised around four main components:
//
//   - Enqueuer   — the producer API: submit, schedule, observe, and cancel jobs
//   - Registry   — maps job-type names to handlers, validated at bootstrap
//   - Scheduler  — converts periodic Schedule definitions into jobs at runtime
//   - Worker     — claims due jobs and dispatches them to registered handlers
//
// Components interact only through small repository interfaces, keeping the
// queue logic decoupled from persistence. Three storage backends ship with
// the package: PostgreSQL (production), Redis, and an in-memory store for
// tests and local development.
//
// # Lifecycle
//
// A job starts pending, is atomically claimed by exactly one worker
// (transitioning to processing and consuming one attempt), and ends
// completed, failed, or canceled. A retryable failure with attempts
// remaining re-enters the claimable pool after an exponential backoff delay;
// a fatal failure or an exhausted attempt budget is terminal and archives
// the job to the dead letter queue. The claim is a conditional update
// guarded by the pending status, so coordination needs no external lock
// manager: two workers racing for one row produce exactly one winner.
//
// A liveness sweep recovers jobs whose worker died mid-execution: processing
// rows with an expired lock return to pending (or fail terminally once their
// attempts are spent), so a crash never leaves a job stuck.
//
// # Usage
//
// Basic one-time job:
//
//	type SendEmailPayload struct {
//	    UserID int64
//	}
//
//	func example(repo queue.EnqueuerRepository) error {
//	    e, err := queue.NewEnqueuer(repo)
//	    if err != nil {
//	        return err
//	    }
//
//	    // Execute within the next minute
//	    _, err = e.Enqueue(context.Background(),
//	        SendEmailPayload{UserID: 42},
//	        queue.WithDelay(time.Minute),
//	    )
//	    return err
//	}
//
// Worker side:
//
//	w, _ := queue.NewWorker(repo, queue.WithMaxConcurrentJobs(4))
//	w.RegisterHandlers(queue.NewJobHandler(func(ctx context.Context, p SendEmailPayload) error {
//	    return send(ctx, p.UserID)
//	}))
//	go w.Start(ctx)
//
// Handlers classify failures by wrapping returned errors: queue.Fatal for
// conditions a retry cannot fix, plain (or queue.Retryable) errors for
// transient ones.
//
// # Error Handling
//
// Package-level sentinel errors signal violations of business invariants and
// can be checked with errors.Is. The grouping sentinels ErrValidation,
// ErrJobNotFound, and ErrInvalidState wrap the specific ones so callers
// building HTTP or CLI surfaces can map error classes to status codes
// deterministically.
package queue
