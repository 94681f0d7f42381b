package provision

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageMetricsOnce sync.Once

	stageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobqueue_provision_stage_transitions_total",
		Help: "Provisioning stage transitions by stage name",
	}, []string{"stage"})
)

func observeStage(stage Stage) {
	stageMetricsOnce.Do(func() {
		prometheus.MustRegister(stageTransitions)
	})
	stageTransitions.WithLabelValues(string(stage)).Inc()
}
