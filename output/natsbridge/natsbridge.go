// Package natsbridge mirrors the frame stream onto NATS subjects so that
// services outside the process can consume readings and alerts. Each
// frame is published as JSON under a per-sensor subject.
package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/natsclient"
	"github.com/c360/sensorstream/pkg/retry"
	"github.com/c360/sensorstream/types"
)

// Source provides the frame stream the bridge republishes.
type Source interface {
	Subscribe(opts ...broker.SubscribeOption) (*broker.Subscription, error)
}

// Config holds the bridge settings.
type Config struct {
	URL           string
	SubjectPrefix string

	// UseJetStream persists frames in a JetStream stream named
	// StreamName instead of fire-and-forget core publishing.
	UseJetStream bool
	StreamName   string

	QueueCapacity int
}

// DefaultConfig returns the standard bridge settings.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		SubjectPrefix: "sensorstream",
		StreamName:    "SENSORSTREAM",
		QueueCapacity: 1024,
	}
}

// Bridge is the NATS output component.
type Bridge struct {
	cfg    Config
	source Source
	client *natsclient.Client
	logger *slog.Logger

	retryCfg retry.Config

	mu      sync.Mutex
	running bool
	sub     *broker.Subscription
	cancel  context.CancelFunc
	done    chan struct{}

	metrics *bridgeMetrics
}

// Option configures optional bridge wiring.
type Option func(*Bridge)

// WithMetrics exports bridge counters through the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(b *Bridge) {
		b.metrics = newBridgeMetrics(registry)
	}
}

// New creates the bridge around a frame source.
func New(cfg Config, source Source, logger *slog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "natsbridge"),
		// Short schedule so a blip does not stall the pump for long.
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name implements component.Component.
func (b *Bridge) Name() string { return "natsbridge" }

// Initialize validates the configuration and prepares the client.
func (b *Bridge) Initialize() error {
	if b.source == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Bridge", "Initialize",
			"frame source missing")
	}
	if err := validateToken(b.cfg.SubjectPrefix); err != nil {
		return errors.WrapInvalid(err, "Bridge", "Initialize", "subject prefix")
	}
	if b.cfg.UseJetStream && b.cfg.StreamName == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "Initialize",
			"stream name required when JetStream is enabled")
	}
	if b.cfg.QueueCapacity <= 0 {
		b.cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}

	client, err := natsclient.New(b.cfg.URL, b.logger, natsclient.WithName("sensorstream-bridge"))
	if err != nil {
		return err
	}
	b.client = client
	return nil
}

// Start connects to the server and begins mirroring frames.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Bridge", "Start", "natsbridge")
	}
	if b.client == nil {
		return errors.WrapInvalid(errors.ErrNotInitialized, "Bridge", "Start", "natsbridge")
	}

	if err := b.client.Connect(ctx); err != nil {
		return err
	}
	if b.cfg.UseJetStream {
		subjects := []string{b.cfg.SubjectPrefix + ".>"}
		if err := b.client.EnsureStream(ctx, b.cfg.StreamName, subjects); err != nil {
			return err
		}
	}

	sub, err := b.source.Subscribe(
		broker.SubscribeName("natsbridge"),
		broker.SubscribeQueueCapacity(b.cfg.QueueCapacity),
	)
	if err != nil {
		return err
	}
	b.sub = sub

	pumpCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running = true

	go b.pump(pumpCtx)

	b.logger.Info("bridge started",
		"url", b.cfg.URL, "prefix", b.cfg.SubjectPrefix, "jetstream", b.cfg.UseJetStream)
	return nil
}

// Stop halts mirroring and drains the connection.
func (b *Bridge) Stop(timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	b.running = false

	b.cancel()
	select {
	case <-b.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Bridge", "Stop",
			fmt.Sprintf("pump still running after %s", timeout))
	}
	b.sub.Close()

	closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.client.Close(closeCtx); err != nil {
		return err
	}

	b.logger.Info("bridge stopped")
	return nil
}

// pump forwards frames from the subscription to NATS until cancelled.
func (b *Bridge) pump(ctx context.Context) {
	defer close(b.done)

	for {
		frame, err := b.sub.NextContext(ctx)
		if err != nil {
			return
		}
		b.publish(ctx, frame)
	}
}

func (b *Bridge) publish(ctx context.Context, frame types.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		b.logger.Error("frame marshal failed", "type", frame.FrameType(), "error", err)
		if b.metrics != nil {
			b.metrics.publishErrors.WithLabelValues("marshal").Inc()
		}
		return
	}

	subject := b.subjectFor(frame)
	err = retry.Do(ctx, b.retryCfg, func() error {
		if b.cfg.UseJetStream {
			return b.client.PublishToStream(ctx, subject, data)
		}
		return b.client.Publish(subject, data)
	})
	if err != nil {
		// A frame that fails all retries is dropped; the stream is a
		// live mirror, not a durable log.
		b.logger.Warn("publish failed", "subject", subject, "error", err)
		if b.metrics != nil {
			b.metrics.publishErrors.WithLabelValues("publish").Inc()
		}
		return
	}
	if b.metrics != nil {
		b.metrics.framesPublished.WithLabelValues(frame.FrameType()).Inc()
	}
}

// subjectFor maps a frame to its NATS subject. Reading and alert frames
// get per-sensor subjects so consumers can filter with wildcards.
func (b *Bridge) subjectFor(frame types.Frame) string {
	switch f := frame.(type) {
	case types.ReadingFrame:
		return b.cfg.SubjectPrefix + ".reading." + sanitizeToken(f.SensorID)
	case types.AlertFrame:
		return b.cfg.SubjectPrefix + ".alert." + sanitizeToken(f.SensorID)
	case types.SensorListFrame:
		return b.cfg.SubjectPrefix + ".sensors"
	default:
		return b.cfg.SubjectPrefix + "." + sanitizeToken(frame.FrameType())
	}
}

// sanitizeToken makes a string safe to embed as one NATS subject token.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, s)
}

func validateToken(s string) error {
	if s == "" {
		return fmt.Errorf("subject prefix cannot be empty")
	}
	if strings.ContainsAny(s, " \t\n*>") {
		return fmt.Errorf("subject prefix %q contains reserved characters", s)
	}
	return nil
}
