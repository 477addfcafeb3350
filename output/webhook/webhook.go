// Package webhook delivers alert frames to an HTTP endpoint via POST.
// Readings are filtered out; only alert state changes leave the process.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/pkg/retry"
	"github.com/c360/sensorstream/types"
)

// Source provides the frame stream the notifier filters.
type Source interface {
	Subscribe(opts ...broker.SubscribeOption) (*broker.Subscription, error)
}

// Config holds the notifier settings.
type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Retry   retry.Config
}

// DefaultConfig returns the standard notifier settings.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Retry:   retry.DefaultConfig(),
	}
}

// Notifier is the alert webhook component.
type Notifier struct {
	cfg    Config
	source Source
	logger *slog.Logger
	client *http.Client

	mu      sync.Mutex
	running bool
	sub     *broker.Subscription
	cancel  context.CancelFunc
	done    chan struct{}

	alertsSent   atomic.Int64
	deliveryErrs atomic.Int64
}

// New creates the notifier around a frame source.
func New(cfg Config, source Source, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "webhook"),
	}
}

// Name implements component.Component.
func (n *Notifier) Name() string { return "webhook" }

// Initialize validates the configuration and builds the HTTP client.
func (n *Notifier) Initialize() error {
	if n.source == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Notifier", "Initialize",
			"frame source missing")
	}
	parsed, err := url.Parse(n.cfg.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Notifier", "Initialize",
			fmt.Sprintf("invalid webhook URL %q", n.cfg.URL))
	}
	if n.cfg.Timeout <= 0 {
		n.cfg.Timeout = DefaultConfig().Timeout
	}

	n.client = &http.Client{Timeout: n.cfg.Timeout}
	return nil
}

// Start subscribes to the frame stream and begins delivering alerts.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Notifier", "Start", "webhook")
	}
	if n.client == nil {
		return errors.WrapInvalid(errors.ErrNotInitialized, "Notifier", "Start", "webhook")
	}

	sub, err := n.source.Subscribe(broker.SubscribeName("webhook"))
	if err != nil {
		return err
	}
	n.sub = sub

	pumpCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true

	go n.pump(pumpCtx)

	n.logger.Info("webhook notifier started", "url", n.cfg.URL)
	return nil
}

// Stop halts delivery.
func (n *Notifier) Stop(timeout time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}
	n.running = false

	n.cancel()
	select {
	case <-n.done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Notifier", "Stop",
			fmt.Sprintf("pump still running after %s", timeout))
	}
	n.sub.Close()

	n.logger.Info("webhook notifier stopped",
		"delivered", n.alertsSent.Load(), "failed", n.deliveryErrs.Load())
	return nil
}

// AlertsSent returns the number of alerts delivered so far.
func (n *Notifier) AlertsSent() int64 { return n.alertsSent.Load() }

// pump filters alert frames out of the stream and posts them.
func (n *Notifier) pump(ctx context.Context) {
	defer close(n.done)

	for {
		frame, err := n.sub.NextContext(ctx)
		if err != nil {
			return
		}
		alert, ok := frame.(types.AlertFrame)
		if !ok {
			continue
		}
		n.deliver(ctx, alert)
	}
}

func (n *Notifier) deliver(ctx context.Context, alert types.AlertFrame) {
	data, err := json.Marshal(alert)
	if err != nil {
		n.logger.Error("alert marshal failed", "alert", alert.AlertID, "error", err)
		n.deliveryErrs.Add(1)
		return
	}

	err = retry.Do(ctx, n.cfg.Retry, func() error {
		return n.post(ctx, data)
	})
	if err != nil {
		n.logger.Warn("alert delivery failed",
			"alert", alert.AlertID, "state", alert.State, "error", err)
		n.deliveryErrs.Add(1)
		return
	}
	n.alertsSent.Add(1)
}

func (n *Notifier) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return errors.WrapInvalid(err, "Notifier", "post", "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range n.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "Notifier", "post", "sending request")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The endpoint rejected the payload; retrying cannot help.
		return errors.WrapInvalid(fmt.Errorf("status %d", resp.StatusCode),
			"Notifier", "post", "endpoint rejected alert")
	default:
		return errors.WrapTransient(fmt.Errorf("status %d", resp.StatusCode),
			"Notifier", "post", "endpoint unavailable")
	}
}
