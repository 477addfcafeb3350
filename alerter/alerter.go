// Package alerter aggregates anomaly events into deduplicated, stateful
// alerts. One alert exists per (sensor, rule) pair at a time; repeated
// events within the cooldown window merge into it, and an alert resolves
// automatically once the cooldown elapses without a new event.
package alerter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/types"
)

// DefaultCooldown is the quiet period after which an alert resolves.
const DefaultCooldown = 30 * time.Second

type alertKey struct {
	sensorID string
	rule     types.Rule
}

// Manager owns the active alert set. Not safe for concurrent use; the
// pipeline calls it from a single goroutine, same as the detector.
type Manager struct {
	cooldown time.Duration
	active   map[alertKey]*types.Alert
	byID     map[string]*types.Alert
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// Option configures optional manager wiring.
type Option func(*Manager)

// WithCooldown overrides the resolution cooldown.
func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithMetrics exports alert counters and the active gauge.
func WithMetrics(registry *metric.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.metrics = registry.CoreMetrics()
		}
	}
}

// New creates an alert manager.
func New(logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cooldown: DefaultCooldown,
		active:   make(map[alertKey]*types.Alert),
		byID:     make(map[string]*types.Alert),
		logger:   logger.With("component", "alerter"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Cooldown returns the configured resolution cooldown.
func (m *Manager) Cooldown() time.Duration { return m.cooldown }

// Observe merges one anomaly event into the alert set and returns a
// snapshot of the alert it created or updated. Concurrent events for the
// same (sensor, rule) key always merge; they never produce duplicate
// alerts.
func (m *Manager) Observe(ev types.AnomalyEvent) types.Alert {
	key := alertKey{sensorID: ev.SensorID, rule: ev.Rule}

	alert, ok := m.active[key]
	if !ok {
		alert = &types.Alert{
			ID:         uuid.NewString(),
			SensorID:   ev.SensorID,
			Rule:       ev.Rule,
			Severity:   ev.Severity,
			State:      types.AlertOpen,
			FirstSeen:  ev.Reading.Timestamp,
			LastSeen:   ev.Reading.Timestamp,
			Events:     []types.AnomalyEvent{ev},
			EventCount: 1,
		}
		m.active[key] = alert
		m.byID[alert.ID] = alert

		m.logger.Info("alert opened",
			"alert_id", alert.ID, "sensor_id", alert.SensorID,
			"rule", alert.Rule, "severity", alert.Severity)
		if m.metrics != nil {
			m.metrics.AlertsOpened.Inc()
			m.metrics.AlertsActive.Set(float64(len(m.active)))
		}
		return alert.Snapshot()
	}

	alert.LastSeen = ev.Reading.Timestamp
	alert.Severity = types.MaxSeverity(alert.Severity, ev.Severity)
	alert.EventCount++
	alert.Events = append(alert.Events, ev)
	if len(alert.Events) > types.MaxAlertEvents {
		alert.Events = alert.Events[len(alert.Events)-types.MaxAlertEvents:]
	}

	m.logger.Debug("alert updated",
		"alert_id", alert.ID, "sensor_id", alert.SensorID,
		"rule", alert.Rule, "severity", alert.Severity,
		"event_count", alert.EventCount)
	return alert.Snapshot()
}

// ExpireCheck resolves every alert whose cooldown has elapsed since its
// last event and returns snapshots of the alerts it transitioned. Each
// alert resolves exactly once; resolved alerts leave the active set so a
// later event opens a brand-new alert.
func (m *Manager) ExpireCheck(now time.Time) []types.Alert {
	var resolved []types.Alert
	for key, alert := range m.active {
		if now.Sub(alert.LastSeen) < m.cooldown {
			continue
		}

		alert.State = types.AlertResolved
		delete(m.active, key)
		delete(m.byID, alert.ID)
		resolved = append(resolved, alert.Snapshot())

		m.logger.Info("alert resolved",
			"alert_id", alert.ID, "sensor_id", alert.SensorID,
			"rule", alert.Rule,
			"duration", alert.LastSeen.Sub(alert.FirstSeen).String())
		if m.metrics != nil {
			m.metrics.AlertsResolved.Inc()
		}
	}

	if len(resolved) > 0 && m.metrics != nil {
		m.metrics.AlertsActive.Set(float64(len(m.active)))
	}
	return resolved
}

// Acknowledge moves an open alert to acknowledged. Idempotent for an
// already acknowledged alert; unknown or resolved ids fail with a
// not-found error.
func (m *Manager) Acknowledge(alertID string) error {
	alert, ok := m.byID[alertID]
	if !ok {
		return errors.WrapInvalid(errors.ErrAlertNotFound, "Manager", "Acknowledge",
			fmt.Sprintf("alert %s", alertID))
	}
	if alert.State == types.AlertAcknowledged {
		return nil
	}

	alert.State = types.AlertAcknowledged
	m.logger.Info("alert acknowledged", "alert_id", alert.ID, "sensor_id", alert.SensorID)
	return nil
}

// Get returns a snapshot of an active alert by id.
func (m *Manager) Get(alertID string) (types.Alert, bool) {
	alert, ok := m.byID[alertID]
	if !ok {
		return types.Alert{}, false
	}
	return alert.Snapshot(), true
}

// Active returns snapshots of all alerts currently open or acknowledged.
func (m *Manager) Active() []types.Alert {
	out := make([]types.Alert, 0, len(m.active))
	for _, alert := range m.active {
		out = append(out, alert.Snapshot())
	}
	return out
}
