package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/component"
)

func TestStatusConstructors(t *testing.T) {
	h := NewHealthy("engine", "running")
	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("gateway", "starting")
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)

	u := NewUnhealthy("natsbridge", "connection lost")
	assert.True(t, u.IsUnhealthy())
	assert.False(t, u.Healthy)
}

func TestFromState(t *testing.T) {
	assert.True(t, FromState("engine", component.StateStarted).IsHealthy())
	assert.True(t, FromState("engine", component.StateFailed).IsUnhealthy())
	assert.True(t, FromState("engine", component.StateCreated).IsDegraded())
	assert.True(t, FromState("engine", component.StateStopped).IsDegraded())
}

func TestAggregateRules(t *testing.T) {
	healthy := NewHealthy("a", "")
	degraded := NewDegraded("b", "")
	unhealthy := NewUnhealthy("c", "")

	assert.True(t, Aggregate("sys", []Status{healthy, healthy}).IsHealthy())
	assert.True(t, Aggregate("sys", []Status{healthy, degraded}).IsDegraded())
	assert.True(t, Aggregate("sys", []Status{degraded, unhealthy}).IsUnhealthy())
	assert.True(t, Aggregate("sys", nil).IsHealthy())

	agg := Aggregate("sys", []Status{healthy, degraded})
	assert.Len(t, agg.SubStatuses, 2)
}

func TestMonitorTracksComponents(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, 0, m.Count())
	assert.True(t, m.Healthy(), "empty monitor counts as healthy")

	m.Update("engine", NewHealthy("engine", "running"))
	m.Update("gateway", NewHealthy("gateway", "listening"))
	assert.Equal(t, 2, m.Count())
	assert.True(t, m.Healthy())

	m.Update("gateway", NewUnhealthy("gateway", "bind failed"))
	assert.False(t, m.Healthy())

	got, ok := m.Get("gateway")
	require.True(t, ok)
	assert.True(t, got.IsUnhealthy())

	m.Remove("gateway")
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Healthy())
}

func TestMonitorSystemIsStable(t *testing.T) {
	m := NewMonitor()
	m.Update("gateway", NewHealthy("gateway", ""))
	m.Update("engine", NewHealthy("engine", ""))

	sys := m.System("sensorstream")
	require.Len(t, sys.SubStatuses, 2)
	assert.Equal(t, "engine", sys.SubStatuses[0].Component)
	assert.Equal(t, "gateway", sys.SubStatuses[1].Component)
}

func TestMonitorUpdateFillsNameAndTimestamp(t *testing.T) {
	m := NewMonitor()
	m.Update("engine", Status{Status: "healthy", Healthy: true})

	got, ok := m.Get("engine")
	require.True(t, ok)
	assert.Equal(t, "engine", got.Component)
	assert.False(t, got.Timestamp.IsZero())
}

func TestWatchPollsProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMonitor()
	var state atomic.Int32
	state.Store(int32(component.StateStarted))
	m.Watch(ctx, "engine", 10*time.Millisecond, func() Status {
		return FromState("engine", component.State(state.Load()))
	})

	// The probe runs synchronously once.
	got, ok := m.Get("engine")
	require.True(t, ok)
	assert.True(t, got.IsHealthy())

	state.Store(int32(component.StateFailed))
	assert.Eventually(t, func() bool {
		got, _ := m.Get("engine")
		return got.IsUnhealthy()
	}, time.Second, 5*time.Millisecond)
}
