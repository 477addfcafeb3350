package types

import "time"

// AlertState tracks the lifecycle of an alert. State transitions only move
// forward: Open → Acknowledged → Resolved. A later qualifying event after
// resolution opens a brand-new alert rather than resurrecting the old one.
type AlertState string

const (
	// AlertOpen is the initial state of a newly raised alert.
	AlertOpen AlertState = "open"
	// AlertAcknowledged marks an alert an operator has seen.
	AlertAcknowledged AlertState = "acknowledged"
	// AlertResolved marks an alert whose cooldown expired without a new
	// qualifying event. Terminal.
	AlertResolved AlertState = "resolved"
)

// MaxAlertEvents bounds the source-event history kept on an alert so a
// long-running violation cannot grow an alert without limit.
const MaxAlertEvents = 32

// Alert is an aggregated, deduplicated, stateful notification derived from
// one or more anomaly events for the same (sensor, rule) pair.
type Alert struct {
	ID        string     `json:"alertId"`
	SensorID  string     `json:"sensorId"`
	Rule      Rule       `json:"ruleViolated"`
	Severity  Severity   `json:"severity"`
	State     AlertState `json:"state"`
	FirstSeen time.Time  `json:"firstSeen"`
	LastSeen  time.Time  `json:"lastSeen"`
	// Events is the ordered sequence of source anomaly events, capped at
	// MaxAlertEvents; when full the oldest entries are discarded.
	Events []AnomalyEvent `json:"-"`
	// EventCount counts every merged event, including ones no longer in
	// the Events window.
	EventCount int `json:"eventCount"`
}

// Active reports whether the alert still participates in deduplication.
func (a *Alert) Active() bool {
	return a.State == AlertOpen || a.State == AlertAcknowledged
}

// Snapshot returns a copy of the alert safe to hand to subscribers while
// the alert manager keeps mutating the original.
func (a *Alert) Snapshot() Alert {
	cp := *a
	cp.Events = make([]AnomalyEvent, len(a.Events))
	copy(cp.Events, a.Events)
	return cp
}
