package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core pipeline metrics shared by all components.
// Component-specific metrics are registered separately through the Registry.
type Metrics struct {
	// Production
	ReadingsProduced *prometheus.CounterVec
	SamplingErrors   *prometheus.CounterVec
	TickDuration     prometheus.Histogram

	// Broker
	FramesPublished   *prometheus.CounterVec
	SubscribersActive prometheus.Gauge

	// Detection and alerting
	AnomalyEvents  *prometheus.CounterVec
	AlertsOpened   prometheus.Counter
	AlertsResolved prometheus.Counter
	AlertsActive   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all core pipeline metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ReadingsProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensorstream",
				Subsystem: "readings",
				Name:      "produced_total",
				Help:      "Total number of sensor readings produced",
			},
			[]string{"kind"},
		),

		SamplingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensorstream",
				Subsystem: "readings",
				Name:      "sampling_errors_total",
				Help:      "Total number of isolated per-sensor sampling failures",
			},
			[]string{"kind"},
		),

		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sensorstream",
				Subsystem: "registry",
				Name:      "tick_duration_seconds",
				Help:      "Duration of one registry tick including fan-out",
				Buckets:   prometheus.DefBuckets,
			},
		),

		FramesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensorstream",
				Subsystem: "broker",
				Name:      "frames_published_total",
				Help:      "Total number of frames published to the broker",
			},
			[]string{"type"},
		),

		SubscribersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sensorstream",
				Subsystem: "broker",
				Name:      "subscribers_active",
				Help:      "Current number of attached subscriptions",
			},
		),

		AnomalyEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensorstream",
				Subsystem: "detector",
				Name:      "anomaly_events_total",
				Help:      "Total number of anomaly events by rule",
			},
			[]string{"rule"},
		),

		AlertsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sensorstream",
				Subsystem: "alerts",
				Name:      "opened_total",
				Help:      "Total number of alerts opened",
			},
		),

		AlertsResolved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sensorstream",
				Subsystem: "alerts",
				Name:      "resolved_total",
				Help:      "Total number of alerts resolved by cooldown expiry",
			},
		),

		AlertsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sensorstream",
				Subsystem: "alerts",
				Name:      "active",
				Help:      "Current number of open or acknowledged alerts",
			},
		),
	}
}

// collectors returns every core metric for bulk registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsProduced,
		m.SamplingErrors,
		m.TickDuration,
		m.FramesPublished,
		m.SubscribersActive,
		m.AnomalyEvents,
		m.AlertsOpened,
		m.AlertsResolved,
		m.AlertsActive,
	}
}
