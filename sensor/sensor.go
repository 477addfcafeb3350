// Package sensor implements the simulated IoT sensors. Each sensor
// generates a time series for one physical quantity using a seeded
// stochastic model; the registry, not the sensor, decides sampling cadence.
package sensor

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/types"
)

// Config holds the stochastic model parameters for one sensor.
// Read-only after construction.
type Config struct {
	Kind types.SensorKind `json:"kind"`
	// Mean is the starting value of the random walk. For motion sensors
	// it is the per-sample detection probability in [0, 1].
	Mean float64 `json:"mean"`
	// NoiseAmplitude scales the gaussian noise added to each sample.
	NoiseAmplitude float64 `json:"noise_amplitude"`
	// DriftRate is added to the value on every sample.
	DriftRate float64 `json:"drift_rate"`
	// SamplingInterval is how often the registry samples this sensor.
	SamplingInterval time.Duration `json:"sampling_interval"`
	Location         string        `json:"location,omitempty"`
	Name             string        `json:"name,omitempty"`
	// Seed makes the generator deterministic; 0 means time-seeded.
	Seed int64 `json:"seed,omitempty"`
}

// Validate rejects out-of-domain configuration. Called at construction;
// a sensor that validated never fails to sample.
func (c Config) Validate() error {
	if !c.Kind.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Sensor", "Validate",
			fmt.Sprintf("unknown sensor kind %q", c.Kind))
	}
	if c.SamplingInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Sensor", "Validate",
			fmt.Sprintf("sampling interval must be positive, got %v", c.SamplingInterval))
	}
	if c.NoiseAmplitude < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Sensor", "Validate",
			fmt.Sprintf("noise amplitude must be non-negative, got %v", c.NoiseAmplitude))
	}
	if c.Kind == types.KindMotion && (c.Mean < 0 || c.Mean > 1) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Sensor", "Validate",
			fmt.Sprintf("motion detection probability must be in [0,1], got %v", c.Mean))
	}
	return nil
}

// Sensor generates readings for one physical quantity. Sample never fails:
// invalid configuration is rejected at construction instead.
type Sensor interface {
	ID() string
	Kind() types.SensorKind
	Interval() time.Duration
	Info() types.SensorInfo

	// Sample produces the next reading, advancing internal generator
	// state. Timestamps are strictly increasing per sensor.
	Sample(now time.Time) types.Reading
}

// New constructs a sensor for the configured kind. The id is assigned by
// the registry and must be stable for the sensor's lifetime.
func New(id string, cfg Config) (Sensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	base := base{id: id, cfg: cfg, rng: rng}

	if cfg.Kind == types.KindMotion {
		return &motionSensor{base: base}, nil
	}
	return &walkSensor{base: base, last: cfg.Mean}, nil
}

// base carries the state shared by all sensor models.
type base struct {
	id     string
	cfg    Config
	rng    *rand.Rand
	seq    uint64
	lastTS time.Time
}

func (b *base) ID() string { return b.id }

func (b *base) Kind() types.SensorKind { return b.cfg.Kind }

func (b *base) Interval() time.Duration { return b.cfg.SamplingInterval }

func (b *base) Info() types.SensorInfo {
	return types.SensorInfo{
		SensorID: b.id,
		Kind:     b.cfg.Kind,
		Unit:     b.cfg.Kind.Unit(),
		Location: b.cfg.Location,
		Name:     b.cfg.Name,
	}
}

// reading stamps a value into an immutable Reading, enforcing strictly
// increasing per-sensor timestamps even on coarse clocks.
func (b *base) reading(now time.Time, value float64) types.Reading {
	if !now.After(b.lastTS) {
		now = b.lastTS.Add(time.Nanosecond)
	}
	b.lastTS = now
	b.seq++

	return types.Reading{
		SensorID:  b.id,
		Kind:      b.cfg.Kind,
		Value:     value,
		Unit:      b.cfg.Kind.Unit(),
		Seq:       b.seq,
		Timestamp: now,
		Location:  b.cfg.Location,
		Name:      b.cfg.Name,
	}
}

// walkSensor models temperature, humidity and light as a bounded random
// walk: value += drift + gauss(0, noise), clamped to the kind's plausible
// range.
type walkSensor struct {
	base
	last float64
}

func (s *walkSensor) Sample(now time.Time) types.Reading {
	value := s.last + s.cfg.DriftRate + s.rng.NormFloat64()*s.cfg.NoiseAmplitude

	lo, hi := s.cfg.Kind.PlausibleRange()
	if value < lo {
		value = lo
	}
	if value > hi {
		value = hi
	}

	s.last = value
	return s.reading(now, value)
}

// motionSensor models motion detection as a probabilistic on/off state
// machine: a detection holds for a few samples, followed by a short
// cooldown before a new detection can begin.
type motionSensor struct {
	base
	activeLeft   int
	cooldownLeft int
}

func (s *motionSensor) Sample(now time.Time) types.Reading {
	switch {
	case s.activeLeft > 0:
		s.activeLeft--
		if s.activeLeft == 0 {
			s.cooldownLeft = 3 + s.rng.Intn(6)
		}
		return s.reading(now, 1)

	case s.cooldownLeft > 0:
		s.cooldownLeft--
		return s.reading(now, 0)

	case s.rng.Float64() < s.cfg.Mean:
		// Motion lasts 2-8 samples, matching typical occupancy bursts.
		s.activeLeft = 2 + s.rng.Intn(7)
		s.activeLeft--
		return s.reading(now, 1)

	default:
		return s.reading(now, 0)
	}
}
