// Package registry owns the set of active sensors, assigns stable
// identifiers, and drives periodic sampling. A cooperative loop (the
// engine) calls Tick at a fixed resolution finer than any sensor's
// configured interval; the registry samples only sensors whose due time
// has elapsed, so one sensor's cadence never blocks another's.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/sensor"
	"github.com/c360/sensorstream/types"
)

// entry tracks one registered sensor and its sampling schedule.
type entry struct {
	sensor  sensor.Sensor
	nextDue time.Time
}

// Registry manages sensor lifecycle and due-time scheduling.
type Registry struct {
	mu      sync.Mutex
	sensors map[string]*entry
	logger  *slog.Logger
	metrics *metric.Metrics // optional
}

// New creates an empty sensor registry. metrics may be nil.
func New(logger *slog.Logger, metrics *metric.Metrics) *Registry {
	return &Registry{
		sensors: make(map[string]*entry),
		logger:  logger.With("component", "registry"),
		metrics: metrics,
	}
}

// Register validates the configuration, constructs the sensor and returns
// its assigned identifier. Identifiers are unique and stable for the
// registry's lifetime.
func (r *Registry) Register(cfg sensor.Config) (string, error) {
	id := uuid.NewString()

	s, err := sensor.New(id, cfg)
	if err != nil {
		return "", errors.Wrap(err, "Registry", "Register", "constructing sensor")
	}

	r.mu.Lock()
	// First sample is due on the next tick.
	r.sensors[id] = &entry{sensor: s}
	r.mu.Unlock()

	r.logger.Info("sensor registered",
		"sensor_id", id, "kind", cfg.Kind, "interval", cfg.SamplingInterval)
	return id, nil
}

// Unregister removes a sensor. Returns ErrSensorNotFound for unknown ids.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sensors[id]; !ok {
		return errors.WrapInvalid(errors.ErrSensorNotFound, "Registry", "Unregister",
			fmt.Sprintf("sensor %s", id))
	}
	delete(r.sensors, id)

	r.logger.Info("sensor unregistered", "sensor_id", id)
	return nil
}

// Tick samples every sensor whose due time has elapsed and returns the
// produced readings. Calling Tick faster than a sensor's interval produces
// no duplicate reading for that sensor. A misbehaving sensor is isolated:
// its reading is dropped for this tick and logged, others are unaffected.
func (r *Registry) Tick(now time.Time) []types.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()

	var readings []types.Reading
	for id, e := range r.sensors {
		if !e.nextDue.IsZero() && now.Before(e.nextDue) {
			continue
		}

		reading, ok := r.sampleOne(id, e, now)
		if !ok {
			continue
		}
		readings = append(readings, reading)
	}
	return readings
}

// sampleOne samples a single sensor, recovering a panicking generator so
// the tick keeps going for everyone else.
func (r *Registry) sampleOne(id string, e *entry, now time.Time) (reading types.Reading, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			r.logger.Error("sensor sample panicked, reading dropped",
				"sensor_id", id, "panic", rec)
			if r.metrics != nil {
				r.metrics.SamplingErrors.WithLabelValues(string(e.sensor.Kind())).Inc()
			}
		}
	}()

	// Advance the schedule before sampling so a failure cannot cause a
	// hot retry loop on every tick.
	e.nextDue = now.Add(e.sensor.Interval())

	reading = e.sensor.Sample(now)
	if r.metrics != nil {
		r.metrics.ReadingsProduced.WithLabelValues(string(reading.Kind)).Inc()
	}
	return reading, true
}

// Sensors returns a description of every active sensor, for sensor list
// frames and dashboards.
func (r *Registry) Sensors() []types.SensorInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]types.SensorInfo, 0, len(r.sensors))
	for _, e := range r.sensors {
		infos = append(infos, e.sensor.Info())
	}
	return infos
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sensors)
}

// Shutdown removes all sensors. In-flight Tick calls complete first.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors = make(map[string]*entry)
}
