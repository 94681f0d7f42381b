package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobqueue/modules/provision"
	"github.com/dmitrymomot/jobqueue/pkg/config"
	"github.com/dmitrymomot/jobqueue/pkg/logger"
	"github.com/dmitrymomot/jobqueue/pkg/pg"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
	"github.com/dmitrymomot/jobqueue/pkg/redis"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	ServiceName   string        `env:"SERVICE_NAME" envDefault:"jobqueue-worker"`
	StorageDriver string        `env:"QUEUE_STORAGE_DRIVER" envDefault:"postgres"` // postgres, redis or memory
	Queues        []string      `env:"QUEUE_NAMES" envDefault:"default" envSeparator:","`
	MetricsAddr   string        `env:"METRICS_ADDR" envDefault:":9090"`
	DLQRetention  time.Duration `env:"DLQ_RETENTION" envDefault:"168h"`
}

// jobStorage is the combined storage surface the daemon needs: worker
// claims, scheduler dedup lookups and dead letter housekeeping.
type jobStorage interface {
	queue.WorkerRepository
	queue.SchedulerRepository
	PurgeDLQ(ctx context.Context, olderThan time.Time) (int64, error)
}

func main() {
	var appCfg appConfig
	config.MustLoad(&appCfg)

	var queueCfg queue.Config
	config.MustLoad(&queueCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, appCfg.ServiceName))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(ctx, appCfg.StorageDriver, log)
	if err != nil {
		log.Error("storage bootstrap failed", logger.Error(err))
		os.Exit(1)
	}
	defer closeStorage()

	provisionSvc := provision.NewService(
		staticDirectory{},
		logProvisioner{log: log},
		logRegistrar{log: log},
		provision.WithLogger(log),
	)

	registry := queue.NewRegistry()
	registry.Register(
		provisionSvc.Handler(),
		queue.NewPeriodicJobHandler("dlq.purge", func(ctx context.Context) error {
			purged, err := storage.PurgeDLQ(ctx, time.Now().Add(-appCfg.DLQRetention))
			if err != nil {
				return err
			}
			if purged > 0 {
				log.Info("dead letter queue purged", slog.Int64("entries", purged))
			}
			return nil
		}),
	)
	if err := registry.ValidateRequired(provision.HandlerName, "dlq.purge"); err != nil {
		log.Error("handler registry incomplete", logger.Error(err))
		os.Exit(1)
	}

	worker, err := queue.NewWorker(storage,
		queue.WithRegistry(registry),
		queue.WithQueues(appCfg.Queues...),
		queue.WithPollInterval(queueCfg.PollInterval),
		queue.WithSweepInterval(queueCfg.SweepInterval),
		queue.WithLockTimeout(queueCfg.LockTimeout),
		queue.WithRetryBackoff(queue.Backoff{Base: queueCfg.BackoffBase, Cap: queueCfg.BackoffCap}),
		queue.WithMaxConcurrentJobs(queueCfg.MaxConcurrentJobs),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		log.Error("worker bootstrap failed", logger.Error(err))
		os.Exit(1)
	}

	scheduler, err := queue.NewScheduler(storage, queue.WithSchedulerLogger(log))
	if err != nil {
		log.Error("scheduler bootstrap failed", logger.Error(err))
		os.Exit(1)
	}
	if err := scheduler.AddJob("dlq.purge", queue.Daily()); err != nil {
		log.Error("scheduler job registration failed", logger.Error(err))
		os.Exit(1)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error {
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(metricsServer(ctx, appCfg.MetricsAddr, queueCfg.ShutdownTimeout, log))

	log.Info("worker daemon started",
		slog.String("driver", appCfg.StorageDriver),
		slog.Any("queues", appCfg.Queues),
		slog.String("metrics_addr", appCfg.MetricsAddr))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker daemon stopped with error", logger.Error(err))
		os.Exit(1)
	}

	log.Info("worker daemon stopped")
}

// openStorage selects and boots the storage backend. Postgres runs goose
// migrations before the worker starts polling.
func openStorage(ctx context.Context, driver string, log *slog.Logger) (jobStorage, func(), error) {
	switch driver {
	case "postgres":
		var pgCfg pg.Config
		config.MustLoad(&pgCfg)

		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		storage, err := queue.NewPostgresStorage(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return storage, pool.Close, nil

	case "redis":
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)

		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		storage, err := queue.NewRedisStorage(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return storage, func() { _ = client.Close() }, nil

	case "memory":
		return queue.NewMemoryStorage(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// metricsServer serves the prometheus endpoint until ctx is cancelled.
func metricsServer(ctx context.Context, addr string, shutdownTimeout time.Duration, log *slog.Logger) func() error {
	return func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", queue.MetricsHandler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		srv := &http.Server{Addr: addr, Handler: mux}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("metrics server shutdown failed", logger.Error(err))
			}
		}()

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Local provisioning collaborators for deployments without real downstream
// systems. They accept every project and log the side effects.

type staticDirectory struct{}

func (staticDirectory) GetProject(_ context.Context, id uuid.UUID) (*provision.Project, error) {
	return &provision.Project{ID: id, Name: "project-" + id.String()[:8]}, nil
}

type logProvisioner struct {
	log *slog.Logger
}

func (p logProvisioner) CreateDatabase(_ context.Context, projectID uuid.UUID, name string) error {
	p.log.Info("database provisioned",
		slog.String("project_id", projectID.String()),
		slog.String("database", name))
	return nil
}

type logRegistrar struct {
	log *slog.Logger
}

func (r logRegistrar) RegisterService(_ context.Context, projectID uuid.UUID, service string) error {
	r.log.Info("service registered",
		slog.String("project_id", projectID.String()),
		slog.String("service", service))
	return nil
}
