package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerRepository defines the storage surface used by the scheduler
type SchedulerRepository interface {
	// CreateJob inserts a new pending job row
	CreateJob(ctx context.Context, job *Job) error

	// GetPendingJobByName returns a pending job with the given name, if one
	// exists, or ErrJobNotFound
	GetPendingJobByName(ctx context.Context, name string) (*Job, error)
}

// Scheduler converts periodic Schedule definitions into pending jobs at
// runtime. It deduplicates against already-pending instances so restarting
// the process does not double-schedule.
type Scheduler struct {
	repo     SchedulerRepository
	jobs     map[string]*periodicJob
	mu       sync.RWMutex
	interval time.Duration
	logger   *slog.Logger
}

// periodicJob holds configuration for a registered periodic job
type periodicJob struct {
	name            string
	schedule        Schedule
	queue           string
	priority        Priority
	maxAttempts     int8
	lastScheduledAt *time.Time
}

// NewScheduler creates a new periodic job scheduler
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		jobs:     make(map[string]*periodicJob),
		interval: options.checkInterval,
		logger:   options.logger,
	}, nil
}

// AddJob registers a periodic job definition
func (s *Scheduler) AddJob(name string, schedule Schedule, opts ...SchedulerJobOption) error {
	jobOpts := &schedulerJobOptions{
		queue:       DefaultQueueName,
		priority:    PriorityDefault,
		maxAttempts: DefaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(jobOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}

	s.jobs[name] = &periodicJob{
		name:        name,
		schedule:    schedule,
		queue:       jobOpts.queue,
		priority:    jobOpts.priority,
		maxAttempts: jobOpts.maxAttempts,
	}

	s.logger.Info("registered periodic job",
		slog.String("job_name", name),
		slog.String("schedule", schedule.String()))

	return nil
}

// Start begins the scheduler's periodic checking and blocks until the
// context is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	jobCount := len(s.jobs)
	s.mu.RUnlock()

	if jobCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Check immediately on start
	s.checkJobs(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.checkJobs(ctx)
		}
	}
}

// checkJobs checks all registered periodic jobs and creates any that are due
func (s *Scheduler) checkJobs(ctx context.Context) {
	s.mu.RLock()
	jobs := make([]*periodicJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.RUnlock()

	now := time.Now()

	for _, job := range jobs {
		if err := s.scheduleJobIfNeeded(ctx, job, now); err != nil {
			s.logger.Error("failed to schedule periodic job",
				slog.String("job_name", job.name),
				slog.String("error", err.Error()))
		}
	}
}

// scheduleJobIfNeeded creates the next instance of a periodic job unless one
// is already pending
func (s *Scheduler) scheduleJobIfNeeded(ctx context.Context, job *periodicJob, now time.Time) error {
	nextRun := s.calculateNextRun(job, now)

	if !s.shouldSchedule(job, nextRun, now) {
		return nil
	}

	// Dedup against an instance already waiting in storage
	if existing, err := s.repo.GetPendingJobByName(ctx, job.name); err == nil && existing != nil {
		s.updateJobState(job.name, &existing.ScheduledAt)
		s.logger.Debug("periodic job already pending",
			slog.String("job_name", job.name),
			slog.Time("scheduled_for", existing.ScheduledAt))
		return nil
	}

	if err := s.createJob(ctx, job, nextRun); err != nil {
		return fmt.Errorf("failed to create periodic job: %w", err)
	}

	s.updateJobState(job.name, &nextRun)

	s.logger.Info("created periodic job",
		slog.String("job_name", job.name),
		slog.Time("scheduled_for", nextRun))

	return nil
}

// calculateNextRun determines when the job should run next
func (s *Scheduler) calculateNextRun(job *periodicJob, now time.Time) time.Time {
	if job.lastScheduledAt == nil {
		return job.schedule.Next(now)
	}
	return job.schedule.Next(*job.lastScheduledAt)
}

// shouldSchedule determines if a periodic job is due to be scheduled
func (s *Scheduler) shouldSchedule(job *periodicJob, nextRun, now time.Time) bool {
	// First run is always scheduled
	if job.lastScheduledAt == nil {
		return true
	}

	if nextRun.After(now) {
		return false
	}

	return true
}

// updateJobState records when a periodic job instance was last created
func (s *Scheduler) updateJobState(name string, scheduledAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[name]; ok {
		j.lastScheduledAt = scheduledAt
	}
}

// createJob creates a new instance of a periodic job in storage
func (s *Scheduler) createJob(ctx context.Context, job *periodicJob, scheduledAt time.Time) error {
	return s.repo.CreateJob(ctx, &Job{
		ID:          uuid.New(),
		Queue:       job.queue,
		JobType:     JobTypePeriodic,
		Name:        job.name,
		Payload:     nil, // Periodic jobs carry no payload
		Status:      JobStatusPending,
		Priority:    job.priority,
		Attempts:    0,
		MaxAttempts: job.maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	})
}

// RemoveJob removes a periodic job from the scheduler
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, name)

	s.logger.Info("removed periodic job",
		slog.String("job_name", name))
}

// ListJobs returns all registered periodic job names
func (s *Scheduler) ListJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
