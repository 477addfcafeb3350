package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorKindValid(t *testing.T) {
	for _, k := range []SensorKind{KindTemperature, KindHumidity, KindMotion, KindLight} {
		assert.True(t, k.Valid(), "kind %s should be valid", k)
		assert.NotEmpty(t, k.Unit())
	}
	assert.False(t, SensorKind("pressure").Valid())
	assert.Empty(t, SensorKind("pressure").Unit())
}

func TestPlausibleRanges(t *testing.T) {
	lo, hi := KindTemperature.PlausibleRange()
	assert.Equal(t, -40.0, lo)
	assert.Equal(t, 80.0, hi)

	lo, hi = KindHumidity.PlausibleRange()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 100.0, hi)

	lo, hi = KindMotion.PlausibleRange()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityWarning))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityWarning))
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityWarning, SeverityCritical))
	assert.Equal(t, SeverityWarning, MaxSeverity(SeverityWarning, SeverityInfo))
}

func TestReadingFrameWireShape(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := NewReadingFrame(Reading{
		SensorID:  "abc",
		Kind:      KindTemperature,
		Value:     21.5,
		Unit:      "°C",
		Timestamp: ts,
	})

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "reading", decoded["type"])
	assert.Equal(t, "abc", decoded["sensorId"])
	assert.Equal(t, "temperature", decoded["kind"])
	assert.Equal(t, 21.5, decoded["value"])
	assert.Equal(t, float64(ts.UnixMilli()), decoded["timestampMs"])
}

func TestAlertFrameWireShape(t *testing.T) {
	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	last := first.Add(5 * time.Second)
	frame := NewAlertFrame(Alert{
		ID:        "alert-1",
		SensorID:  "abc",
		Rule:      RuleRangeExceeded,
		Severity:  SeverityCritical,
		State:     AlertOpen,
		FirstSeen: first,
		LastSeen:  last,
	})

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "alert", decoded["type"])
	assert.Equal(t, "alert-1", decoded["alertId"])
	assert.Equal(t, "RangeExceeded", decoded["ruleViolated"])
	assert.Equal(t, "critical", decoded["severity"])
	assert.Equal(t, "open", decoded["state"])
	assert.Equal(t, float64(first.UnixMilli()), decoded["firstSeen"])
	assert.Equal(t, float64(last.UnixMilli()), decoded["lastSeen"])
}

func TestAlertSnapshotIsIndependent(t *testing.T) {
	a := &Alert{
		ID:     "alert-1",
		State:  AlertOpen,
		Events: []AnomalyEvent{{SensorID: "abc", Rule: RuleRangeExceeded}},
	}

	snap := a.Snapshot()
	a.Events[0].SensorID = "mutated"
	a.State = AlertResolved

	assert.Equal(t, "abc", snap.Events[0].SensorID)
	assert.Equal(t, AlertOpen, snap.State)
}

func TestAlertActive(t *testing.T) {
	assert.True(t, (&Alert{State: AlertOpen}).Active())
	assert.True(t, (&Alert{State: AlertAcknowledged}).Active())
	assert.False(t, (&Alert{State: AlertResolved}).Active())
}
