// Package config defines the application configuration surface and loads
// it from JSON or YAML files. Every knob has a default; an empty file is a
// valid configuration.
package config

import (
	"fmt"
	"time"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/detector"
	"github.com/c360/sensorstream/engine"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/pkg/buffer"
	"github.com/c360/sensorstream/types"
)

// Config is the complete application configuration.
type Config struct {
	Logging  LoggingConfig   `json:"logging" yaml:"logging"`
	Metrics  MetricsConfig   `json:"metrics" yaml:"metrics"`
	Engine   EngineConfig    `json:"engine" yaml:"engine"`
	Broker   BrokerConfig    `json:"broker" yaml:"broker"`
	Detector detector.Config `json:"detector" yaml:"detector"`
	Alerter  AlerterConfig   `json:"alerter" yaml:"alerter"`
	Gateway  GatewayConfig   `json:"gateway" yaml:"gateway"`
	NATS     NATSConfig      `json:"nats" yaml:"nats"`
	Recorder RecorderConfig  `json:"recorder" yaml:"recorder"`
	Webhook  WebhookConfig   `json:"webhook" yaml:"webhook"`
	Sensors  []SensorSpec    `json:"sensors" yaml:"sensors"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
	// Format is json or text.
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// EngineConfig controls the pipeline loop.
type EngineConfig struct {
	TickResolution Duration `json:"tickResolution" yaml:"tick_resolution"`
}

// BrokerConfig controls subscription queues.
type BrokerConfig struct {
	QueueCapacity int `json:"queueCapacity" yaml:"queue_capacity"`
	// Policy is drop-oldest or drop-newest.
	Policy string `json:"policy" yaml:"policy"`
	// Backlog keeps a ring of the n most recent frames for subscribers
	// that request replay. 0 disables it.
	Backlog int `json:"backlog" yaml:"backlog"`
}

// AlerterConfig controls alert resolution.
type AlerterConfig struct {
	Cooldown Duration `json:"cooldown" yaml:"cooldown"`
}

// GatewayConfig controls the WebSocket endpoint.
type GatewayConfig struct {
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Host         string   `json:"host" yaml:"host"`
	Port         int      `json:"port" yaml:"port"`
	Path         string   `json:"path" yaml:"path"`
	PingInterval Duration `json:"pingInterval" yaml:"ping_interval"`
}

// NATSConfig controls the optional NATS mirror.
type NATSConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	SubjectPrefix string `json:"subjectPrefix" yaml:"subject_prefix"`
	UseJetStream  bool   `json:"useJetStream" yaml:"use_jetstream"`
	StreamName    string `json:"streamName" yaml:"stream_name"`
}

// RecorderConfig controls the optional frame file sink.
type RecorderConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	Directory     string   `json:"directory" yaml:"directory"`
	FilePrefix    string   `json:"filePrefix" yaml:"file_prefix"`
	Append        bool     `json:"append" yaml:"append"`
	FlushInterval Duration `json:"flushInterval" yaml:"flush_interval"`
}

// WebhookConfig controls the optional alert webhook.
type WebhookConfig struct {
	Enabled bool              `json:"enabled" yaml:"enabled"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout Duration          `json:"timeout" yaml:"timeout"`
}

// SensorSpec declares one sensor to register at startup.
type SensorSpec struct {
	Kind             types.SensorKind `json:"kind" yaml:"kind"`
	Mean             float64          `json:"mean" yaml:"mean"`
	NoiseAmplitude   float64          `json:"noiseAmplitude" yaml:"noise_amplitude"`
	DriftRate        float64          `json:"driftRate" yaml:"drift_rate"`
	SamplingInterval Duration         `json:"samplingInterval" yaml:"sampling_interval"`
	Location         string           `json:"location,omitempty" yaml:"location,omitempty"`
	Name             string           `json:"name,omitempty" yaml:"name,omitempty"`
	Seed             int64            `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Default returns the configuration used when no file is supplied: three
// sensors, WebSocket gateway and metrics on, NATS mirror off.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Engine:  EngineConfig{TickResolution: Duration(engine.DefaultTickResolution)},
		Broker: BrokerConfig{
			QueueCapacity: broker.DefaultQueueCapacity,
			Policy:        buffer.DropOldest.String(),
		},
		Detector: detector.Config{
			WindowSize: detector.DefaultWindowSize,
			Sigma:      detector.DefaultSigma,
		},
		Alerter: AlerterConfig{Cooldown: Duration(30 * time.Second)},
		Gateway: GatewayConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         8765,
			Path:         "/stream",
			PingInterval: Duration(20 * time.Second),
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "sensorstream",
			StreamName:    "SENSORSTREAM",
		},
		Recorder: RecorderConfig{
			Directory:     "./data",
			FilePrefix:    "frames",
			Append:        true,
			FlushInterval: Duration(time.Second),
		},
		Webhook: WebhookConfig{
			Timeout: Duration(10 * time.Second),
		},
		Sensors: []SensorSpec{
			{Kind: types.KindTemperature, Mean: 22, NoiseAmplitude: 0.5, DriftRate: 0.01,
				SamplingInterval: Duration(time.Second), Location: "server-room", Name: "temp-1"},
			{Kind: types.KindHumidity, Mean: 45, NoiseAmplitude: 2, DriftRate: 0.05,
				SamplingInterval: Duration(2 * time.Second), Location: "server-room", Name: "hum-1"},
			{Kind: types.KindMotion, Mean: 0.05,
				SamplingInterval: Duration(500 * time.Millisecond), Location: "entrance", Name: "motion-1"},
		},
	}
}

// applyDefaults fills zero-valued fields from the default configuration so
// partial files stay valid.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	// Enabled-by-default sections cannot distinguish "false" from "unset"
	// field by field, so a fully omitted section takes the whole default,
	// matching the no-file behavior. A file that sets any gateway or
	// metrics field keeps its explicit enabled value.
	if c.Metrics == (MetricsConfig{}) {
		c.Metrics = def.Metrics
	}
	if c.Gateway == (GatewayConfig{}) {
		c.Gateway = def.Gateway
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = def.Metrics.Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}
	if c.Engine.TickResolution == 0 {
		c.Engine.TickResolution = def.Engine.TickResolution
	}
	if c.Broker.QueueCapacity == 0 {
		c.Broker.QueueCapacity = def.Broker.QueueCapacity
	}
	if c.Broker.Policy == "" {
		c.Broker.Policy = def.Broker.Policy
	}
	c.Detector.Normalize()
	if c.Alerter.Cooldown == 0 {
		c.Alerter.Cooldown = def.Alerter.Cooldown
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = def.Gateway.Host
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = def.Gateway.Port
	}
	if c.Gateway.Path == "" {
		c.Gateway.Path = def.Gateway.Path
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = def.Gateway.PingInterval
	}
	if c.NATS.URL == "" {
		c.NATS.URL = def.NATS.URL
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = def.NATS.SubjectPrefix
	}
	if c.NATS.StreamName == "" {
		c.NATS.StreamName = def.NATS.StreamName
	}
	if c.Recorder.Directory == "" {
		c.Recorder.Directory = def.Recorder.Directory
	}
	if c.Recorder.FilePrefix == "" {
		c.Recorder.FilePrefix = def.Recorder.FilePrefix
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = def.Recorder.FlushInterval
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = def.Webhook.Timeout
	}
}

// Validate checks the whole configuration, aggregating section checks.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("logging level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("logging format %q", c.Logging.Format))
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics port %d", c.Metrics.Port))
	}

	if c.Engine.TickResolution <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"tick resolution must be positive")
	}

	if c.Broker.QueueCapacity < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("queue capacity %d", c.Broker.QueueCapacity))
	}
	if _, ok := buffer.ParsePolicy(c.Broker.Policy); !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("backpressure policy %q", c.Broker.Policy))
	}
	if c.Broker.Backlog < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("backlog %d", c.Broker.Backlog))
	}

	if err := c.Detector.Validate(); err != nil {
		return err
	}

	if c.Alerter.Cooldown <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"alert cooldown must be positive")
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("gateway port %d", c.Gateway.Port))
	}
	if c.Gateway.PingInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"gateway ping interval must be positive")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"nats url required when the bridge is enabled")
	}
	if c.NATS.Enabled && c.NATS.UseJetStream && c.NATS.StreamName == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"stream name required when jetstream is enabled")
	}

	if c.Recorder.Enabled {
		if c.Recorder.Directory == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"recorder directory required when the recorder is enabled")
		}
		if c.Recorder.FlushInterval <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"recorder flush interval must be positive")
		}
	}

	if c.Webhook.Enabled {
		if c.Webhook.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"webhook url required when the notifier is enabled")
		}
		if c.Webhook.Timeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"webhook timeout must be positive")
		}
	}

	for i, s := range c.Sensors {
		if !s.Kind.Valid() {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("sensor %d: unknown kind %q", i, s.Kind))
		}
		if s.SamplingInterval <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("sensor %d: sampling interval must be positive", i))
		}
		if s.SamplingInterval < c.Engine.TickResolution {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("sensor %d: interval %s finer than tick resolution %s",
					i, s.SamplingInterval, c.Engine.TickResolution))
		}
	}

	return nil
}

// OverflowPolicy returns the parsed broker backpressure policy. Call after
// Validate.
func (c *Config) OverflowPolicy() buffer.OverflowPolicy {
	policy, _ := buffer.ParsePolicy(c.Broker.Policy)
	return policy
}
