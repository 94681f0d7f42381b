package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements all queue repository interfaces on top of a
// pgx connection pool. Claims rely on a conditional UPDATE guarded by
// status = 'pending' with FOR UPDATE SKIP LOCKED, so workers in separate
// processes coordinate purely through the jobs table, without an external
// lock manager.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a Postgres-backed storage using the given pool
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrRepositoryNil
	}
	return &PostgresStorage{pool: pool}, nil
}

const jobColumns = `id, project_id, queue, job_type, name, payload, status, priority,
	attempts, max_attempts, last_error, scheduled_at, locked_until, locked_by,
	started_at, completed_at, created_at`

// CreateJob implements EnqueuerRepository and SchedulerRepository
func (s *PostgresStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, project_id, queue, job_type, name, payload, status, priority,
			attempts, max_attempts, last_error, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, job.ID, job.ProjectID, job.Queue, job.JobType, job.Name, job.Payload, job.Status,
		job.Priority, job.Attempts, job.MaxAttempts, job.LastError, job.ScheduledAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJobCreate, err)
	}
	return nil
}

// GetJob implements EnqueuerRepository
func (s *PostgresStorage) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return job, nil
}

// CancelJob implements EnqueuerRepository. The status guard in the WHERE
// clause makes cancellation lose cleanly against a concurrent claim.
func (s *PostgresStorage) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, last_error = 'canceled', completed_at = now()
		WHERE id = $1 AND status = $3
	`, jobID, JobStatusCanceled, JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	if tag.RowsAffected() == 0 {
		var status JobStatus
		err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
		}
		return fmt.Errorf("%w: job %s is %s", ErrJobNotPending, jobID, status)
	}

	return nil
}

// ClaimJob implements WorkerRepository. The inner SELECT picks the best due
// row (priority first, oldest due within a tier); SKIP LOCKED lets
// concurrent claimers pass over rows another transaction is claiming, and
// the status guard produces exactly one winner per row.
func (s *PostgresStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error) {
	lockUntil := time.Now().Add(lockDuration)

	row := s.pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, started_at = now(),
			locked_until = $2, locked_by = $3
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = $4 AND scheduled_at <= now() AND queue = ANY($5)
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		JobStatusProcessing, lockUntil, workerID, JobStatusPending, queues)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobToClaim
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// CompleteJob implements WorkerRepository
func (s *PostgresStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, completed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = $3
	`, jobID, JobStatusCompleted, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}
	return nil
}

// RetryJob implements WorkerRepository. GREATEST keeps scheduled_at
// monotonically non-decreasing across retries.
func (s *PostgresStorage) RetryJob(ctx context.Context, jobID uuid.UUID, errorMsg string, nextRun time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, last_error = $3, scheduled_at = GREATEST(scheduled_at, $4),
			locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = $5
	`, jobID, JobStatusPending, errorMsg, nextRun, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}
	return nil
}

// FailJob implements WorkerRepository
func (s *PostgresStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, last_error = $3, completed_at = now(),
			locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = $4
	`, jobID, JobStatusFailed, errorMsg, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}
	return nil
}

// ArchiveToDLQ implements WorkerRepository. The jobs row keeps its terminal
// status; only a copy is inserted for inspection and recovery tooling.
func (s *PostgresStorage) ArchiveToDLQ(ctx context.Context, jobID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO jobs_dlq (id, job_id, project_id, queue, job_type, name, payload,
			priority, error, attempts, failed_at, created_at)
		SELECT gen_random_uuid(), id, project_id, queue, job_type, name, payload,
			priority, COALESCE(last_error, ''), attempts, now(), now()
		FROM jobs WHERE id = $1
	`, jobID)
	if err != nil {
		return fmt.Errorf("failed to archive job %s to DLQ: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// ExtendLock implements WorkerRepository
func (s *PostgresStorage) ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error {
	lockUntil := time.Now().Add(duration)
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET locked_until = $2 WHERE id = $1 AND status = $3
	`, jobID, lockUntil, JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}
	return nil
}

// ReleaseExpiredLocks implements WorkerRepository. The attempt for a stale
// row was consumed at claim time, so exhausted rows fail terminally and the
// rest return to the claimable pool.
func (s *PostgresStorage) ReleaseExpiredLocks(ctx context.Context) (int, error) {
	failed, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, last_error = 'processing lock expired', completed_at = now(),
			locked_until = NULL, locked_by = NULL
		WHERE status = $2 AND locked_until < now() AND attempts >= max_attempts
	`, JobStatusFailed, JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to expire exhausted locks: %w", err)
	}

	requeued, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $1, last_error = 'processing lock expired',
			locked_until = NULL, locked_by = NULL
		WHERE status = $2 AND locked_until < now() AND attempts < max_attempts
	`, JobStatusPending, JobStatusProcessing)
	if err != nil {
		return int(failed.RowsAffected()), fmt.Errorf("failed to requeue expired locks: %w", err)
	}

	return int(failed.RowsAffected() + requeued.RowsAffected()), nil
}

// GetPendingJobByName implements SchedulerRepository
func (s *PostgresStorage) GetPendingJobByName(ctx context.Context, name string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE name = $1 AND status = $2
		ORDER BY scheduled_at ASC
		LIMIT 1
	`, name, JobStatusPending)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: pending job %q", ErrJobNotFound, name)
		}
		return nil, fmt.Errorf("failed to get pending job %q: %w", name, err)
	}
	return job, nil
}

// PurgeDLQ removes dead letter entries older than the given cutoff
func (s *PostgresStorage) PurgeDLQ(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs_dlq WHERE failed_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	var projectID, lockedBy pgtype.UUID
	var lastError pgtype.Text
	var lockedUntil, startedAt, completedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &projectID, &job.Queue, &job.JobType, &job.Name, &job.Payload,
		&job.Status, &job.Priority, &job.Attempts, &job.MaxAttempts, &lastError,
		&job.ScheduledAt, &lockedUntil, &lockedBy, &startedAt, &completedAt, &job.CreatedAt)
	if err != nil {
		return nil, err
	}

	if projectID.Valid {
		id := uuid.UUID(projectID.Bytes)
		job.ProjectID = &id
	}
	if lockedBy.Valid {
		id := uuid.UUID(lockedBy.Bytes)
		job.LockedBy = &id
	}
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	if lockedUntil.Valid {
		job.LockedUntil = &lockedUntil.Time
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}
