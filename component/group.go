package component

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/sensorstream/errors"
)

// managed tracks a component and its lifecycle bookkeeping.
type managed struct {
	component LifecycleComponent
	state     State
	cancel    context.CancelFunc
}

// Group starts components in registration order and stops them in reverse.
// Each component receives its own child context so it can be cancelled
// individually without tearing down the rest.
type Group struct {
	logger  *slog.Logger
	members []*managed
}

// NewGroup creates an empty component group.
func NewGroup(logger *slog.Logger) *Group {
	return &Group{logger: logger}
}

// Add registers a component. Components start in the order they were added.
func (g *Group) Add(c LifecycleComponent) {
	g.members = append(g.members, &managed{component: c, state: StateCreated})
}

// Start initializes and starts every component in order. On the first
// failure it stops the components already started (in reverse) and returns
// the failure.
func (g *Group) Start(ctx context.Context) error {
	for i, m := range g.members {
		if err := m.component.Initialize(); err != nil {
			m.state = StateFailed
			g.stopStarted(i)
			return errors.Wrap(err, "Group", "Start", "initializing "+m.component.Name())
		}
		m.state = StateInitialized

		childCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel

		if err := m.component.Start(childCtx); err != nil {
			cancel()
			m.state = StateFailed
			g.stopStarted(i)
			return errors.Wrap(err, "Group", "Start", "starting "+m.component.Name())
		}
		m.state = StateStarted
		g.logger.Info("component started", "component", m.component.Name())
	}
	return nil
}

// Stop stops every started component in reverse order. All components are
// attempted; the first error is returned.
func (g *Group) Stop(timeout time.Duration) error {
	var firstErr error
	for i := len(g.members) - 1; i >= 0; i-- {
		m := g.members[i]
		if m.state != StateStarted {
			continue
		}
		if m.cancel != nil {
			m.cancel()
		}
		if err := m.component.Stop(timeout); err != nil {
			m.state = StateFailed
			g.logger.Error("component stop failed", "component", m.component.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.state = StateStopped
		g.logger.Info("component stopped", "component", m.component.Name())
	}
	return firstErr
}

// stopStarted stops members[0:upTo] in reverse after a start failure.
func (g *Group) stopStarted(upTo int) {
	for i := upTo - 1; i >= 0; i-- {
		m := g.members[i]
		if m.state != StateStarted {
			continue
		}
		if m.cancel != nil {
			m.cancel()
		}
		if err := m.component.Stop(5 * time.Second); err != nil {
			g.logger.Error("component stop failed during rollback",
				"component", m.component.Name(), "error", err)
		}
		m.state = StateStopped
	}
}
