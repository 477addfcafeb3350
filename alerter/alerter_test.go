package alerter

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func event(sensorID string, rule types.Rule, severity types.Severity, at time.Time) types.AnomalyEvent {
	return types.AnomalyEvent{
		SensorID: sensorID,
		Reading: types.Reading{
			SensorID:  sensorID,
			Kind:      types.KindTemperature,
			Value:     75,
			Timestamp: at,
		},
		Rule:     rule,
		Severity: severity,
	}
}

func TestObserveOpensAlert(t *testing.T) {
	m := New(testLogger())

	alert := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "s1", alert.SensorID)
	assert.Equal(t, types.RuleRangeExceeded, alert.Rule)
	assert.Equal(t, types.AlertOpen, alert.State)
	assert.Equal(t, types.SeverityWarning, alert.Severity)
	assert.Equal(t, baseTime, alert.FirstSeen)
	assert.Equal(t, baseTime, alert.LastSeen)
	assert.Equal(t, 1, alert.EventCount)
	assert.Len(t, m.Active(), 1)
}

func TestObserveDeduplicatesSameKey(t *testing.T) {
	m := New(testLogger())

	first := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))
	second := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime.Add(5*time.Second)))

	assert.Equal(t, first.ID, second.ID, "same key must merge, not duplicate")
	assert.Equal(t, baseTime, second.FirstSeen)
	assert.Equal(t, baseTime.Add(5*time.Second), second.LastSeen)
	assert.Equal(t, 2, second.EventCount)
	assert.Len(t, m.Active(), 1)
}

func TestDifferentRulesProduceSeparateAlerts(t *testing.T) {
	m := New(testLogger())

	a := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))
	b := m.Observe(event("s1", types.RuleStatisticalOutlier, types.SeverityWarning, baseTime))
	c := m.Observe(event("s2", types.RuleRangeExceeded, types.SeverityWarning, baseTime))

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, m.Active(), 3)
}

func TestSeverityEscalatesNeverDowngrades(t *testing.T) {
	m := New(testLogger())

	m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))
	escalated := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityCritical, baseTime.Add(time.Second)))
	assert.Equal(t, types.SeverityCritical, escalated.Severity)

	// A later warning event does not downgrade the alert.
	still := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime.Add(2*time.Second)))
	assert.Equal(t, types.SeverityCritical, still.Severity)
}

func TestExpireCheckResolvesExactlyOnce(t *testing.T) {
	m := New(testLogger(), WithCooldown(30*time.Second))

	alert := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))

	// Before cooldown elapses: nothing resolves.
	assert.Empty(t, m.ExpireCheck(baseTime.Add(29*time.Second)))
	assert.Len(t, m.Active(), 1)

	resolved := m.ExpireCheck(baseTime.Add(30 * time.Second))
	require.Len(t, resolved, 1)
	assert.Equal(t, alert.ID, resolved[0].ID)
	assert.Equal(t, types.AlertResolved, resolved[0].State)
	assert.Empty(t, m.Active())

	// Second check after resolution is a no-op.
	assert.Empty(t, m.ExpireCheck(baseTime.Add(time.Minute)))
}

func TestEventWithinCooldownDefersResolution(t *testing.T) {
	m := New(testLogger(), WithCooldown(30*time.Second))

	m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))
	m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime.Add(20*time.Second)))

	// 35s after the first event but only 15s after the second.
	assert.Empty(t, m.ExpireCheck(baseTime.Add(35*time.Second)))

	resolved := m.ExpireCheck(baseTime.Add(50 * time.Second))
	assert.Len(t, resolved, 1)
}

func TestReopenAfterResolutionIsNewAlert(t *testing.T) {
	m := New(testLogger(), WithCooldown(30*time.Second))

	first := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityCritical, baseTime))
	m.ExpireCheck(baseTime.Add(time.Minute))

	reopened := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime.Add(2*time.Minute)))

	assert.NotEqual(t, first.ID, reopened.ID, "resolved alerts are never resurrected")
	assert.Equal(t, types.AlertOpen, reopened.State)
	assert.Equal(t, types.SeverityWarning, reopened.Severity, "new alert starts from its own event severity")
	assert.Equal(t, 1, reopened.EventCount)
}

func TestAcknowledge(t *testing.T) {
	m := New(testLogger())

	alert := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))

	require.NoError(t, m.Acknowledge(alert.ID))
	got, ok := m.Get(alert.ID)
	require.True(t, ok)
	assert.Equal(t, types.AlertAcknowledged, got.State)

	// Idempotent.
	require.NoError(t, m.Acknowledge(alert.ID))

	// Acknowledged alerts still deduplicate and still expire.
	merged := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime.Add(time.Second)))
	assert.Equal(t, alert.ID, merged.ID)
	assert.Equal(t, types.AlertAcknowledged, merged.State)

	resolved := m.ExpireCheck(baseTime.Add(2 * time.Minute))
	require.Len(t, resolved, 1)
	assert.Equal(t, types.AlertResolved, resolved[0].State)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	m := New(testLogger())

	err := m.Acknowledge("no-such-alert")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestAcknowledgeResolvedAlertFails(t *testing.T) {
	m := New(testLogger(), WithCooldown(time.Second))

	alert := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))
	m.ExpireCheck(baseTime.Add(time.Minute))

	err := m.Acknowledge(alert.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestEventHistoryIsBounded(t *testing.T) {
	m := New(testLogger())

	var last types.Alert
	for i := 0; i < types.MaxAlertEvents+10; i++ {
		last = m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning,
			baseTime.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, types.MaxAlertEvents+10, last.EventCount)
	assert.Len(t, last.Events, types.MaxAlertEvents)

	// The window keeps the most recent events.
	oldest := last.Events[0]
	assert.Equal(t, baseTime.Add(10*time.Second), oldest.Reading.Timestamp)
}

func TestSnapshotIsolation(t *testing.T) {
	m := New(testLogger())

	snap := m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityWarning, baseTime))
	m.Observe(event("s1", types.RuleRangeExceeded, types.SeverityCritical, baseTime.Add(time.Second)))

	// The earlier snapshot is unaffected by later mutation.
	assert.Equal(t, types.SeverityWarning, snap.Severity)
	assert.Equal(t, 1, snap.EventCount)
}
