package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements all queue repository interfaces on Redis.
//
// Layout: job records are JSON strings under job:<id>; each queue has a
// pending sorted set scored by due time (priority folded into the low bits
// so it breaks ties among jobs due at the same millisecond); claimed jobs
// live in one processing sorted set scored by lock expiry. The claim itself
// is a Lua script that atomically pops one due member from the first
// non-empty pending set, which is what guarantees a single winner across
// racing workers.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage creates a Redis-backed storage using the given client
func NewRedisStorage(client *redis.Client) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrRepositoryNil
	}
	return &RedisStorage{client: client, prefix: "jobqueue:"}, nil
}

func (s *RedisStorage) jobKey(jobID uuid.UUID) string {
	return s.prefix + "job:" + jobID.String()
}

func (s *RedisStorage) pendingKey(queue string) string {
	return s.prefix + "pending:" + queue
}

func (s *RedisStorage) nameKey(name string) string {
	return s.prefix + "name:" + name
}

func (s *RedisStorage) processingKey() string {
	return s.prefix + "processing"
}

func (s *RedisStorage) dlqKey() string {
	return s.prefix + "dlq"
}

// pendingScore orders the claimable pool: due time first, higher priority
// winning among jobs due at the same millisecond.
func pendingScore(scheduledAt time.Time, priority Priority) float64 {
	return float64(scheduledAt.UnixMilli())*256 + float64(100-priority)
}

// claimScript pops one due job id from the first non-empty pending set and
// moves it to the processing set in a single atomic step.
// KEYS: pending sets..., processing set. ARGV: max due score, lock expiry ms.
var claimScript = redis.NewScript(`
local processing = KEYS[#KEYS]
for i=1,#KEYS-1 do
  local ids = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', ARGV[1], 'LIMIT', 0, 1)
  if #ids > 0 then
    redis.call('ZREM', KEYS[i], ids[1])
    redis.call('ZADD', processing, ARGV[2], ids[1])
    return ids[1]
  end
end
return false
`)

// CreateJob implements EnqueuerRepository and SchedulerRepository
func (s *RedisStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJobCreate, err)
	}

	ok, err := s.client.SetNX(ctx, s.jobKey(job.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJobCreate, err)
	}
	if !ok {
		return fmt.Errorf("%w: job %s already exists", ErrJobCreate, job.ID)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.pendingKey(job.Queue), redis.Z{
		Score:  pendingScore(job.ScheduledAt, job.Priority),
		Member: job.ID.String(),
	})
	pipe.SAdd(ctx, s.nameKey(job.Name), job.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrJobCreate, err)
	}

	return nil
}

// GetJob implements EnqueuerRepository
func (s *RedisStorage) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return s.loadJob(ctx, jobID)
}

// CancelJob implements EnqueuerRepository. ZREM on the pending set is the
// compare-and-swap: a concurrent claim removes the member first, and the
// loser of that race observes zero removals.
func (s *RedisStorage) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != JobStatusPending {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotPending, jobID, job.Status)
	}

	removed, err := s.client.ZRem(ctx, s.pendingKey(job.Queue), jobID.String()).Result()
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: job %s was claimed concurrently", ErrJobNotPending, jobID)
	}

	now := time.Now()
	reason := "canceled"
	job.Status = JobStatusCanceled
	job.LastError = &reason
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.nameKey(job.Name), jobID.String()).Err()
}

// ClaimJob implements WorkerRepository
func (s *RedisStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Job, error) {
	now := time.Now()
	lockUntil := now.Add(lockDuration)

	keys := make([]string, 0, len(queues)+1)
	for _, q := range queues {
		keys = append(keys, s.pendingKey(q))
	}
	keys = append(keys, s.processingKey())

	maxDue := pendingScore(now, PriorityMin)
	res, err := claimScript.Run(ctx, s.client, keys, maxDue, lockUntil.UnixMilli()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJobToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	jobID, err := uuid.Parse(res.(string))
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: bad job id %q: %w", res, err)
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	// The pop above made this worker the sole owner; the record update
	// does not race with other claimers.
	job.Status = JobStatusProcessing
	job.Attempts++
	job.StartedAt = &now
	job.LockedUntil = &lockUntil
	job.LockedBy = &workerID

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.client.SRem(ctx, s.nameKey(job.Name), jobID.String()).Err(); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	return job, nil
}

// CompleteJob implements WorkerRepository
func (s *RedisStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	return s.finishProcessing(ctx, jobID, func(job *Job, now time.Time) {
		job.Status = JobStatusCompleted
		job.CompletedAt = &now
	})
}

// RetryJob implements WorkerRepository
func (s *RedisStorage) RetryJob(ctx context.Context, jobID uuid.UUID, errorMsg string, nextRun time.Time) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	if err := s.client.ZRem(ctx, s.processingKey(), jobID.String()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}

	// scheduled_at never moves backwards across retries
	if nextRun.After(job.ScheduledAt) {
		job.ScheduledAt = nextRun
	}
	job.Status = JobStatusPending
	job.LastError = &errorMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.pendingKey(job.Queue), redis.Z{
		Score:  pendingScore(job.ScheduledAt, job.Priority),
		Member: jobID.String(),
	})
	pipe.SAdd(ctx, s.nameKey(job.Name), jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}

	return nil
}

// FailJob implements WorkerRepository
func (s *RedisStorage) FailJob(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	return s.finishProcessing(ctx, jobID, func(job *Job, now time.Time) {
		job.Status = JobStatusFailed
		job.LastError = &errorMsg
		job.CompletedAt = &now
	})
}

// ArchiveToDLQ implements WorkerRepository
func (s *RedisStorage) ArchiveToDLQ(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	entry := DLQEntry{
		ID:        uuid.New(),
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Queue:     job.Queue,
		JobType:   job.JobType,
		Name:      job.Name,
		Payload:   job.Payload,
		Priority:  job.Priority,
		Attempts:  job.Attempts,
		FailedAt:  now,
		CreatedAt: now,
	}
	if job.LastError != nil {
		entry.Error = *job.LastError
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to archive job %s to DLQ: %w", jobID, err)
	}

	return s.client.ZAdd(ctx, s.dlqKey(), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: data,
	}).Err()
}

// ExtendLock implements WorkerRepository
func (s *RedisStorage) ExtendLock(ctx context.Context, jobID uuid.UUID, duration time.Duration) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	lockUntil := time.Now().Add(duration)
	job.LockedUntil = &lockUntil

	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.processingKey(), redis.Z{
		Score:  float64(lockUntil.UnixMilli()),
		Member: jobID.String(),
	}).Err()
}

// ReleaseExpiredLocks implements WorkerRepository. ZREM decides ownership of
// each stale member, so concurrent sweepers recover disjoint sets of jobs.
func (s *RedisStorage) ReleaseExpiredLocks(ctx context.Context) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}

	released := 0
	for _, raw := range ids {
		removed, err := s.client.ZRem(ctx, s.processingKey(), raw).Result()
		if err != nil {
			return released, fmt.Errorf("failed to release expired locks: %w", err)
		}
		if removed == 0 {
			continue
		}

		jobID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}

		job, err := s.loadJob(ctx, jobID)
		if err != nil {
			continue
		}

		released++
		now := time.Now()
		reason := "processing lock expired"
		job.LastError = &reason
		job.LockedUntil = nil
		job.LockedBy = nil

		if job.Attempts >= job.MaxAttempts {
			job.Status = JobStatusFailed
			job.CompletedAt = &now
			if err := s.saveJob(ctx, job); err != nil {
				return released, err
			}
			continue
		}

		job.Status = JobStatusPending
		if err := s.saveJob(ctx, job); err != nil {
			return released, err
		}

		pipe := s.client.TxPipeline()
		pipe.ZAdd(ctx, s.pendingKey(job.Queue), redis.Z{
			Score:  pendingScore(job.ScheduledAt, job.Priority),
			Member: raw,
		})
		pipe.SAdd(ctx, s.nameKey(job.Name), raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return released, fmt.Errorf("failed to release expired locks: %w", err)
		}
	}

	return released, nil
}

// GetPendingJobByName implements SchedulerRepository
func (s *RedisStorage) GetPendingJobByName(ctx context.Context, name string) (*Job, error) {
	ids, err := s.client.SMembers(ctx, s.nameKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending job %q: %w", name, err)
	}

	for _, raw := range ids {
		jobID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		job, err := s.loadJob(ctx, jobID)
		if err != nil {
			continue
		}
		if job.Status == JobStatusPending {
			return job, nil
		}
	}

	return nil, fmt.Errorf("%w: pending job %q", ErrJobNotFound, name)
}

// PurgeDLQ removes dead letter entries older than the given cutoff
func (s *RedisStorage) PurgeDLQ(ctx context.Context, olderThan time.Time) (int64, error) {
	purged, err := s.client.ZRemRangeByScore(ctx, s.dlqKey(),
		"-inf", fmt.Sprintf("%d", olderThan.UnixMilli())).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to purge DLQ: %w", err)
	}
	return purged, nil
}

// DLQEntries returns a snapshot of the dead letter queue, newest first
func (s *RedisStorage) DLQEntries(ctx context.Context, limit int64) ([]DLQEntry, error) {
	raw, err := s.client.ZRevRange(ctx, s.dlqKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	entries := make([]DLQEntry, 0, len(raw))
	for _, r := range raw {
		var e DLQEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStorage) loadJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStorage) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}
	if err := s.client.Set(ctx, s.jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}
	return nil
}

func (s *RedisStorage) finishProcessing(ctx context.Context, jobID uuid.UUID, apply func(*Job, time.Time)) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != JobStatusProcessing {
		return fmt.Errorf("%w: job %s is not processing", ErrFailedToUpdateJobStatus, jobID)
	}

	if err := s.client.ZRem(ctx, s.processingKey(), jobID.String()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToUpdateJobStatus, err)
	}

	apply(job, time.Now())
	job.LockedUntil = nil
	job.LockedBy = nil

	return s.saveJob(ctx, job)
}
