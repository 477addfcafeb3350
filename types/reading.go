// Package types defines the core data model shared by the sensorstream
// pipeline: sensor readings, anomaly events, alerts, and the JSON wire
// frames delivered to subscribers.
package types

import "time"

// SensorKind identifies the physical quantity a sensor measures.
// The set of kinds is closed; each kind carries its own unit and
// physically plausible value range.
type SensorKind string

const (
	// KindTemperature measures ambient temperature in degrees Celsius.
	KindTemperature SensorKind = "temperature"
	// KindHumidity measures relative humidity as a percentage.
	KindHumidity SensorKind = "humidity"
	// KindMotion reports motion detection as 0 (none) or 1 (detected).
	KindMotion SensorKind = "motion"
	// KindLight measures illuminance in lux.
	KindLight SensorKind = "light"
)

// Valid reports whether k is one of the known sensor kinds.
func (k SensorKind) Valid() bool {
	switch k {
	case KindTemperature, KindHumidity, KindMotion, KindLight:
		return true
	default:
		return false
	}
}

// Unit returns the measurement unit for the kind.
func (k SensorKind) Unit() string {
	switch k {
	case KindTemperature:
		return "°C"
	case KindHumidity:
		return "%"
	case KindMotion:
		return "detected"
	case KindLight:
		return "lux"
	default:
		return ""
	}
}

// PlausibleRange returns the physically plausible [min, max] value range
// for the kind. Generated values are clamped to this range; readings
// outside it can only be injected externally.
func (k SensorKind) PlausibleRange() (minValue, maxValue float64) {
	switch k {
	case KindTemperature:
		return -40, 80
	case KindHumidity:
		return 0, 100
	case KindMotion:
		return 0, 1
	case KindLight:
		return 0, 120000
	default:
		return 0, 0
	}
}

// Reading is one timestamped sensor value. A Reading is immutable once
// produced; the Timestamp is captured at the moment of sampling and carries
// Go's monotonic clock reading alongside the wall clock, so per-sensor
// ordering comparisons are safe across wall-clock adjustments.
type Reading struct {
	SensorID  string     `json:"sensorId"`
	Kind      SensorKind `json:"kind"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
	Seq       uint64     `json:"seq"`
	Timestamp time.Time  `json:"timestamp"`
	Location  string     `json:"location,omitempty"`
	Name      string     `json:"name,omitempty"`
}
