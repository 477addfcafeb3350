// Package engine drives the produce→detect→alert pipeline. A single
// cooperative loop ticks the sensor registry at a fixed resolution, pushes
// each reading through the broker, the anomaly detector and the alert
// manager, and publishes the resulting frames. Running the whole pipeline
// on one goroutine keeps per-sensor ordering trivially correct; fan-out to
// subscribers is non-blocking, so a slow consumer cannot stall the loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/sensorstream/alerter"
	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/component"
	"github.com/c360/sensorstream/detector"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/registry"
	"github.com/c360/sensorstream/sensor"
	"github.com/c360/sensorstream/types"
)

// DefaultTickResolution is the loop cadence. It must be finer than any
// sensor's sampling interval; sensors are only sampled when due.
const DefaultTickResolution = 100 * time.Millisecond

// Engine owns the pipeline loop.
type Engine struct {
	resolution time.Duration

	registry *registry.Registry
	broker   *broker.Broker
	detector *detector.Detector
	alerter  *alerter.Manager

	logger  *slog.Logger
	metrics *metric.Metrics

	// mu serializes pipeline mutations: the loop tick, injected readings
	// and alert acknowledgements all funnel through it because detector
	// and alerter state is single-writer.
	mu sync.Mutex

	stateMu sync.Mutex
	state   component.State
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures the engine.
type Option func(*Engine)

// WithTickResolution overrides the loop cadence.
func WithTickResolution(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.resolution = d
		}
	}
}

// WithMetrics exports tick duration timing.
func WithMetrics(registry *metric.Registry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.metrics = registry.CoreMetrics()
		}
	}
}

// New assembles the pipeline around its four stages.
func New(reg *registry.Registry, brk *broker.Broker, det *detector.Detector,
	alm *alerter.Manager, logger *slog.Logger, opts ...Option) *Engine {

	e := &Engine{
		resolution: DefaultTickResolution,
		registry:   reg,
		broker:     brk,
		detector:   det,
		alerter:    alm,
		logger:     logger.With("component", "engine"),
		state:      component.StateCreated,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Name implements component.Component.
func (e *Engine) Name() string { return "engine" }

// Initialize verifies the pipeline is fully wired.
func (e *Engine) Initialize() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.state != component.StateCreated {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "Initialize",
			fmt.Sprintf("unexpected state %s", e.state))
	}
	if e.registry == nil || e.broker == nil || e.detector == nil || e.alerter == nil {
		e.state = component.StateFailed
		return errors.WrapFatal(errors.ErrInvalidConfig, "Engine", "Initialize",
			"pipeline stage missing")
	}

	e.state = component.StateInitialized
	return nil
}

// Start launches the tick loop. The loop runs until the context is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.state == component.StateStarted {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Engine", "Start", "engine")
	}
	if e.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotInitialized, "Engine", "Start",
			fmt.Sprintf("unexpected state %s", e.state))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = component.StateStarted

	go e.run(loopCtx)

	e.logger.Info("engine started",
		"tick_resolution", e.resolution, "sensors", e.registry.Len())
	return nil
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (e *Engine) Stop(timeout time.Duration) error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.state != component.StateStarted {
		return nil
	}

	e.cancel()
	select {
	case <-e.done:
	case <-time.After(timeout):
		e.state = component.StateFailed
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Engine", "Stop",
			fmt.Sprintf("loop did not stop within %s", timeout))
	}

	e.state = component.StateStopped
	e.logger.Info("engine stopped")
	return nil
}

// State returns the current lifecycle state.
func (e *Engine) State() component.State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// tick runs one pipeline step: sample due sensors, run detection and
// alerting per reading, then resolve expired alerts.
func (e *Engine) tick(now time.Time) {
	start := time.Now()

	readings := e.registry.Tick(now)

	e.mu.Lock()
	for _, r := range readings {
		e.process(r)
	}
	// Resolved frames go out under the lock: a concurrent Inject must not
	// publish a reopened alert for the same key ahead of the Resolved frame
	// that closed its predecessor.
	for _, alert := range e.alerter.ExpireCheck(now) {
		e.broker.Publish(types.NewAlertFrame(alert))
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

// process publishes one reading and any alerts it triggers. Caller holds mu.
func (e *Engine) process(r types.Reading) {
	e.broker.Publish(types.NewReadingFrame(r))

	for _, ev := range e.detector.Observe(r) {
		alert := e.alerter.Observe(ev)
		e.broker.Publish(types.NewAlertFrame(alert))
	}
}

// Inject pushes a forced reading through the full pipeline, bypassing the
// stochastic generators. Used for manual readings and tests. Safe to call
// while the loop is running.
func (e *Engine) Inject(r types.Reading) error {
	if r.SensorID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "Inject",
			"reading has no sensor id")
	}
	if !r.Kind.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "Inject",
			fmt.Sprintf("unknown sensor kind %q", r.Kind))
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	e.mu.Lock()
	e.process(r)
	e.mu.Unlock()
	return nil
}

// Acknowledge marks an alert acknowledged and publishes its updated state
// to subscribers.
func (e *Engine) Acknowledge(alertID string) error {
	e.mu.Lock()
	err := e.alerter.Acknowledge(alertID)
	var snapshot types.Alert
	var ok bool
	if err == nil {
		snapshot, ok = e.alerter.Get(alertID)
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if ok {
		e.broker.Publish(types.NewAlertFrame(snapshot))
	}
	return nil
}

// RegisterSensor adds a sensor to the running pipeline.
func (e *Engine) RegisterSensor(cfg sensor.Config) (string, error) {
	return e.registry.Register(cfg)
}

// UnregisterSensor removes a sensor and drops its detection state.
func (e *Engine) UnregisterSensor(id string) error {
	if err := e.registry.Unregister(id); err != nil {
		return err
	}
	e.mu.Lock()
	e.detector.Forget(id)
	e.mu.Unlock()
	return nil
}

// Sensors describes the active sensor set, for sensor list frames.
func (e *Engine) Sensors() []types.SensorInfo {
	return e.registry.Sensors()
}

// SensorStats reports the detector's current window statistics for one
// sensor.
func (e *Engine) SensorStats(sensorID string) (detector.WindowStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.Stats(sensorID)
}

// ActiveAlerts returns snapshots of all open or acknowledged alerts.
func (e *Engine) ActiveAlerts() []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerter.Active()
}

// Subscribe attaches a consumer to the frame stream.
func (e *Engine) Subscribe(opts ...broker.SubscribeOption) (*broker.Subscription, error) {
	return e.broker.Subscribe(opts...)
}
