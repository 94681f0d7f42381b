package queue

import "time"

// Config holds the configuration for the job queue
type Config struct {
	PollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	LockTimeout       time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	SweepInterval     time.Duration `env:"QUEUE_SWEEP_INTERVAL" envDefault:"30s"`
	BackoffBase       time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"5m"`
	BackoffCap        time.Duration `env:"QUEUE_BACKOFF_CAP" envDefault:"6h"`
	ShutdownTimeout   time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentJobs int           `env:"QUEUE_MAX_CONCURRENT_JOBS" envDefault:"10"`
}
