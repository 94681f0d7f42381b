package queue

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	jobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobqueue_jobs_enqueued_total",
		Help: "Jobs accepted by the producer API",
	})
	jobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobqueue_jobs_completed_total",
		Help: "Jobs completed successfully",
	})
	jobsRetried = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobqueue_jobs_retried_total",
		Help: "Failed executions re-queued for retry",
	})
	jobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobqueue_jobs_failed_total",
		Help: "Jobs that reached terminal failure",
	})
	jobsDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobqueue_jobs_dead_lettered_total",
		Help: "Jobs archived to the dead letter queue",
	})
	jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobqueue_jobs_inflight",
		Help: "Jobs currently claimed and executing",
	})
	locksExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobqueue_locks_expired_total",
		Help: "Stale processing locks released by the liveness sweep",
	})
)

// MetricsHandler exposes the queue metrics as an HTTP handler, registering
// the collectors on first use.
func MetricsHandler() http.Handler {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			jobsEnqueued,
			jobsCompleted,
			jobsRetried,
			jobsFailed,
			jobsDeadLettered,
			jobsInFlight,
			locksExpired,
		)
	})
	return promhttp.Handler()
}
