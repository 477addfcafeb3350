package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Monitor tracks the health of named components.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records the status for a named component.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// Get retrieves the status for a named component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// Remove drops a component from monitoring.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
}

// Count returns the number of monitored components.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}

// System aggregates every tracked component into one status. Sub-statuses
// are ordered by component name so the output is stable.
func (m *Monitor) System(name string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for n := range m.statuses {
		names = append(names, n)
	}
	sort.Strings(names)

	subStatuses := make([]Status, 0, len(names))
	for _, n := range names {
		subStatuses = append(subStatuses, m.statuses[n])
	}
	return Aggregate(name, subStatuses)
}

// Healthy reports whether every tracked component is healthy.
func (m *Monitor) Healthy() bool {
	return m.System("system").IsHealthy()
}

// Watch polls a probe at the given interval and records its result until
// the context is cancelled. The probe runs once immediately.
func (m *Monitor) Watch(ctx context.Context, name string, interval time.Duration, probe func() Status) {
	m.Update(name, probe())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Update(name, probe())
			}
		}
	}()
}
