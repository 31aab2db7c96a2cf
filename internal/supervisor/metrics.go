package supervisor

import "github.com/prometheus/client_golang/prometheus"

var (
	workersLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deepleela",
			Subsystem: "supervisor",
			Name:      "workers_live",
			Help:      "Worker processes currently running",
		},
	)

	workerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deepleela",
			Subsystem: "supervisor",
			Name:      "worker_restarts_total",
			Help:      "Workers replaced after exiting",
		},
	)

	spawnFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deepleela",
			Subsystem: "supervisor",
			Name:      "spawn_failures_total",
			Help:      "Failed attempts to start a worker",
		},
	)
)

func init() {
	prometheus.MustRegister(workersLive, workerRestarts, spawnFailures)
}
