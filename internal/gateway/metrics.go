package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	connsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deepleela",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open WebSocket connections",
		},
		[]string{"endpoint"},
	)

	connsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepleela",
			Subsystem: "gateway",
			Name:      "connections_accepted_total",
			Help:      "Total upgraded WebSocket connections",
		},
		[]string{"endpoint"},
	)

	connsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepleela",
			Subsystem: "gateway",
			Name:      "connections_rejected_total",
			Help:      "Connections refused before or during upgrade",
		},
		[]string{"endpoint", "reason"},
	)

	handlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepleela",
			Subsystem: "gateway",
			Name:      "handler_panics_total",
			Help:      "Recovered panics in connection handlers",
		},
		[]string{"endpoint"},
	)

	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deepleela",
			Subsystem: "gateway",
			Name:      "online_users",
			Help:      "Play connections currently open in this worker",
		},
	)
)

func init() {
	prometheus.MustRegister(connsActive, connsAccepted, connsRejected, handlerPanics, onlineUsers)
}
