package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorstream/metric"
)

// gatewayMetrics holds the Prometheus instruments for the gateway.
type gatewayMetrics struct {
	framesSent          *prometheus.CounterVec
	clientsConnected    prometheus.Gauge
	connectionsTotal    prometheus.Counter
	disconnectionsTotal *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
}

func newGatewayMetrics(registry *metric.Registry) *gatewayMetrics {
	if registry == nil {
		return nil
	}

	m := &gatewayMetrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorstream",
			Subsystem: "gateway",
			Name:      "frames_sent_total",
			Help:      "Total frames sent to WebSocket clients",
		}, []string{"type"}),

		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorstream",
			Subsystem: "gateway",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorstream",
			Subsystem: "gateway",
			Name:      "client_connections_total",
			Help:      "Total client connections accepted",
		}),

		disconnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorstream",
			Subsystem: "gateway",
			Name:      "client_disconnections_total",
			Help:      "Total client disconnections",
		}, []string{"reason"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorstream",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Gateway errors",
		}, []string{"error_type"}),
	}

	registry.PrometheusRegistry().MustRegister(
		m.framesSent,
		m.clientsConnected,
		m.connectionsTotal,
		m.disconnectionsTotal,
		m.errorsTotal,
	)
	return m
}
