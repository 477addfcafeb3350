// Package detector flags anomalous readings. Three independent rules are
// evaluated per reading: a configured range check, a rate-of-change check
// against the previous reading, and a k-sigma statistical outlier check
// over a sliding window. Any subset of the rules may fire on one reading.
package detector

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/types"
)

const (
	// DefaultWindowSize is the sliding window length for the outlier rule.
	DefaultWindowSize = 20

	// DefaultSigma is the deviation multiplier for the outlier rule.
	DefaultSigma = 3.0
)

// defaultRateThresholds are per-kind rate-of-change limits in units per
// second. Chosen well above plausible physical drift for each kind.
var defaultRateThresholds = map[types.SensorKind]float64{
	types.KindTemperature: 5,
	types.KindHumidity:    10,
	types.KindMotion:      math.Inf(1), // binary flips are expected
	types.KindLight:       20000,
}

// Range bounds the acceptable values for a sensor kind.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Config holds the detector thresholds. Zero values fall back to defaults
// when passed through Normalize.
type Config struct {
	// WindowSize is the number of readings in the statistical window.
	WindowSize int `json:"windowSize" yaml:"window_size"`

	// Sigma is the k in the k-sigma outlier rule.
	Sigma float64 `json:"sigma" yaml:"sigma"`

	// Ranges overrides the acceptable [min,max] per kind. Kinds absent
	// from the map use their plausible physical range.
	Ranges map[types.SensorKind]Range `json:"ranges,omitempty" yaml:"ranges,omitempty"`

	// RateThresholds overrides the per-kind rate-of-change limit in
	// units per second.
	RateThresholds map[types.SensorKind]float64 `json:"rateThresholds,omitempty" yaml:"rate_thresholds,omitempty"`
}

// Normalize fills defaults into zero-valued fields.
func (c *Config) Normalize() {
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.Sigma == 0 {
		c.Sigma = DefaultSigma
	}
}

// Validate rejects thresholds the rules cannot evaluate.
func (c *Config) Validate() error {
	if c.WindowSize < 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Detector", "Validate",
			fmt.Sprintf("window size %d, need at least 2", c.WindowSize))
	}
	if c.Sigma <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Detector", "Validate",
			fmt.Sprintf("sigma %.2f, must be positive", c.Sigma))
	}
	for kind, r := range c.Ranges {
		if r.Min >= r.Max {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Detector", "Validate",
				fmt.Sprintf("range for %s: min %.2f >= max %.2f", kind, r.Min, r.Max))
		}
	}
	for kind, limit := range c.RateThresholds {
		if limit <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Detector", "Validate",
				fmt.Sprintf("rate threshold for %s: %.2f, must be positive", kind, limit))
		}
	}
	return nil
}

// Detector evaluates anomaly rules over a stream of readings, keeping
// O(1) state per sensor. Not safe for concurrent use; the pipeline calls
// Observe from a single goroutine.
type Detector struct {
	cfg     Config
	windows map[string]*window
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures optional detector wiring.
type Option func(*Detector)

// WithMetrics exports anomaly counters through the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(d *Detector) {
		if registry != nil {
			d.metrics = registry.CoreMetrics()
		}
	}
}

// New creates a detector with the given thresholds.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Detector, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:     cfg,
		windows: make(map[string]*window),
		logger:  logger.With("component", "detector"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Observe evaluates all rules against one reading and returns the events
// that fired, in rule order. Never fails; a sensor still warming up simply
// skips the rules that lack history.
func (d *Detector) Observe(r types.Reading) []types.AnomalyEvent {
	w, ok := d.windows[r.SensorID]
	if !ok {
		w = newWindow(d.cfg.WindowSize)
		d.windows[r.SensorID] = w
	}

	var events []types.AnomalyEvent

	if ev, fired := d.checkRange(r); fired {
		events = append(events, ev)
	}
	if ev, fired := d.checkRate(r, w); fired {
		events = append(events, ev)
	}

	// The current reading joins the window before the outlier rule runs,
	// so the rule becomes eligible exactly at the Nth reading.
	w.push(r)

	if ev, fired := d.checkOutlier(r, w); fired {
		events = append(events, ev)
	}

	for _, ev := range events {
		d.logger.Debug("anomaly detected",
			"sensor_id", ev.SensorID, "rule", ev.Rule, "severity", ev.Severity,
			"value", r.Value, "detail", ev.Detail)
		if d.metrics != nil {
			d.metrics.AnomalyEvents.WithLabelValues(string(ev.Rule)).Inc()
		}
	}
	return events
}

// Stats reports the current window statistics for a sensor. The boolean is
// false when the detector has not yet seen the sensor.
func (d *Detector) Stats(sensorID string) (WindowStats, bool) {
	w, ok := d.windows[sensorID]
	if !ok {
		return WindowStats{}, false
	}
	return w.stats(), true
}

// Forget drops the accumulated state for a sensor, typically after it is
// unregistered.
func (d *Detector) Forget(sensorID string) {
	delete(d.windows, sensorID)
}

func (d *Detector) rangeFor(kind types.SensorKind) Range {
	if r, ok := d.cfg.Ranges[kind]; ok {
		return r
	}
	minValue, maxValue := kind.PlausibleRange()
	return Range{Min: minValue, Max: maxValue}
}

func (d *Detector) checkRange(r types.Reading) (types.AnomalyEvent, bool) {
	bounds := d.rangeFor(r.Kind)
	if r.Value >= bounds.Min && r.Value <= bounds.Max {
		return types.AnomalyEvent{}, false
	}

	var excess float64
	if r.Value < bounds.Min {
		excess = bounds.Min - r.Value
	} else {
		excess = r.Value - bounds.Max
	}
	span := bounds.Max - bounds.Min

	severity := types.SeverityWarning
	if span > 0 && excess >= 0.1*span {
		severity = types.SeverityCritical
	}

	return types.AnomalyEvent{
		SensorID: r.SensorID,
		Reading:  r,
		Rule:     types.RuleRangeExceeded,
		Severity: severity,
		Detail: fmt.Sprintf("value %.2f outside [%.2f, %.2f]",
			r.Value, bounds.Min, bounds.Max),
	}, true
}

func (d *Detector) checkRate(r types.Reading, w *window) (types.AnomalyEvent, bool) {
	limit, ok := d.cfg.RateThresholds[r.Kind]
	if !ok {
		limit = defaultRateThresholds[r.Kind]
	}
	if math.IsInf(limit, 1) || !w.hasPrev {
		return types.AnomalyEvent{}, false
	}

	elapsed := r.Timestamp.Sub(w.prevTime).Seconds()
	if elapsed <= 0 {
		return types.AnomalyEvent{}, false
	}

	rate := math.Abs(r.Value-w.prevValue) / elapsed
	if rate <= limit {
		return types.AnomalyEvent{}, false
	}

	severity := types.SeverityWarning
	if rate >= 2*limit {
		severity = types.SeverityCritical
	}

	return types.AnomalyEvent{
		SensorID: r.SensorID,
		Reading:  r,
		Rule:     types.RuleRateOfChangeExceeded,
		Severity: severity,
		Detail: fmt.Sprintf("rate %.2f/s exceeds limit %.2f/s",
			rate, limit),
	}, true
}

func (d *Detector) checkOutlier(r types.Reading, w *window) (types.AnomalyEvent, bool) {
	if w.count() < d.cfg.WindowSize {
		return types.AnomalyEvent{}, false
	}

	mean, stddev := w.meanStddev()
	if stddev == 0 {
		return types.AnomalyEvent{}, false
	}

	deviation := math.Abs(r.Value - mean)
	if deviation <= d.cfg.Sigma*stddev {
		return types.AnomalyEvent{}, false
	}

	severity := types.SeverityWarning
	if deviation >= 2*d.cfg.Sigma*stddev {
		severity = types.SeverityCritical
	}

	return types.AnomalyEvent{
		SensorID: r.SensorID,
		Reading:  r,
		Rule:     types.RuleStatisticalOutlier,
		Severity: severity,
		Detail: fmt.Sprintf("value %.2f deviates %.2f sigma from mean %.2f",
			r.Value, deviation/stddev, mean),
	}, true
}
