// Package health tracks the liveness of pipeline components and
// aggregates them into a single system status for the /healthz endpoint.
package health

import (
	"time"

	"github.com/c360/sensorstream/component"
)

// Status represents the health state of a component or the whole system.
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"` // healthy, degraded, unhealthy
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	// SubStatuses carries per-component detail on aggregated statuses.
	SubStatuses []Status `json:"subStatuses,omitempty"`
}

// IsHealthy returns true if the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded returns true if the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy returns true if the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// NewHealthy creates a healthy status.
func NewHealthy(name, message string) Status {
	return Status{Component: name, Healthy: true, Status: "healthy", Message: message, Timestamp: time.Now()}
}

// NewDegraded creates a degraded status.
func NewDegraded(name, message string) Status {
	return Status{Component: name, Status: "degraded", Message: message, Timestamp: time.Now()}
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(name, message string) Status {
	return Status{Component: name, Status: "unhealthy", Message: message, Timestamp: time.Now()}
}

// FromState maps a component lifecycle state to a health status. Only a
// started component is healthy; a failed one is unhealthy; everything in
// between counts as degraded.
func FromState(name string, state component.State) Status {
	switch state {
	case component.StateStarted:
		return NewHealthy(name, "running")
	case component.StateFailed:
		return NewUnhealthy(name, "component failed")
	default:
		return NewDegraded(name, "not running: "+state.String())
	}
}

// Aggregate folds sub-statuses into one status. Any unhealthy member makes
// the aggregate unhealthy; otherwise any degraded member makes it degraded.
func Aggregate(name string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(name, "no components registered")
	}

	hasUnhealthy := false
	hasDegraded := false
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			hasUnhealthy = true
		case sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(name, "one or more components are unhealthy")
	case hasDegraded:
		status = NewDegraded(name, "one or more components are degraded")
	default:
		status = NewHealthy(name, "all components healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
