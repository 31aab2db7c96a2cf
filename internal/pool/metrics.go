package pool

import "github.com/prometheus/client_golang/prometheus"

var (
	poolCapacity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deepleela",
			Subsystem: "pool",
			Name:      "capacity",
			Help:      "Configured engine slots in this worker",
		},
	)

	poolActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deepleela",
			Subsystem: "pool",
			Name:      "active_engines",
			Help:      "Leased engine processes",
		},
		[]string{"kind"},
	)

	poolRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepleela",
			Subsystem: "pool",
			Name:      "rejections_total",
			Help:      "Total refused lease/release requests",
		},
		[]string{"reason"},
	)

	poolLeaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deepleela",
			Subsystem: "pool",
			Name:      "lease_duration_seconds",
			Help:      "How long engines stay leased",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(poolCapacity, poolActive, poolRejections, poolLeaseDuration)
}
