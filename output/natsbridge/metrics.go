package natsbridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorstream/metric"
)

type bridgeMetrics struct {
	framesPublished *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
}

func newBridgeMetrics(registry *metric.Registry) *bridgeMetrics {
	m := &bridgeMetrics{
		framesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorstream",
			Subsystem: "natsbridge",
			Name:      "frames_published_total",
			Help:      "Frames mirrored to NATS by frame type.",
		}, []string{"type"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorstream",
			Subsystem: "natsbridge",
			Name:      "publish_errors_total",
			Help:      "Frames dropped by the bridge by error stage.",
		}, []string{"stage"}),
	}
	registry.PrometheusRegistry().MustRegister(m.framesPublished, m.publishErrors)
	return m
}
