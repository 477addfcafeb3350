package types

// Rule identifies which detection rule an anomaly event violated.
type Rule string

const (
	// RuleRangeExceeded fires when a value falls outside the configured
	// [min, max] bounds for the sensor kind.
	RuleRangeExceeded Rule = "RangeExceeded"
	// RuleRateOfChangeExceeded fires when |Δvalue|/Δt exceeds the
	// configured per-second threshold.
	RuleRateOfChangeExceeded Rule = "RateOfChangeExceeded"
	// RuleStatisticalOutlier fires when a value deviates more than k
	// standard deviations from the rolling window mean.
	RuleStatisticalOutlier Rule = "StatisticalOutlier"
)

// Severity grades how far outside normal an anomaly is.
type Severity string

const (
	// SeverityInfo marks informational events.
	SeverityInfo Severity = "info"
	// SeverityWarning marks violations close to their threshold.
	SeverityWarning Severity = "warning"
	// SeverityCritical marks violations far beyond their threshold.
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for escalation comparisons.
func severityRank(s Severity) int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return -1
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank(s) >= severityRank(other)
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if severityRank(a) >= severityRank(b) {
		return a
	}
	return b
}

// AnomalyEvent is a single rule violation detected on one reading.
// Each event instance is consumed at most once by the alert manager.
type AnomalyEvent struct {
	SensorID string   `json:"sensorId"`
	Reading  Reading  `json:"reading"`
	Rule     Rule     `json:"ruleViolated"`
	Severity Severity `json:"severity"`
	// Detail is a short human-readable description of the violation,
	// e.g. "value 75.0 above max 50.0".
	Detail string `json:"detail,omitempty"`
}
