package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nitroplanner",
		Subsystem: "jobs",
		Name:      "queue_depth",
		Help:      "Simulation jobs waiting for a worker",
	})

	jobsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nitroplanner",
		Subsystem: "jobs",
		Name:      "transitions_total",
		Help:      "Simulation job status transitions",
	}, []string{"status"})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(queueDepth)
	registry.MustRegister(jobsCounter)
}
