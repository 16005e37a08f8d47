package simulation

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "nitroplanner"
	subsystem = "simulation"
)

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "runs_total",
		Help:      "Total number of Monte Carlo simulations by outcome",
	}, []string{"outcome"})

	runDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock time of Monte Carlo simulations",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2.0, 15),
	})

	riskLevelCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "risk_level_total",
		Help:      "Simulations by classified risk level",
	}, []string{"level"})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(runsCounter)
	registry.MustRegister(runDurationHistogram)
	registry.MustRegister(riskLevelCounter)
}
