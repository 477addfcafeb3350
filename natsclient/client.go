// Package natsclient manages a NATS connection for mirroring the frame
// stream to external consumers. It wraps connection lifecycle, reconnect
// handling and optional JetStream publishing behind a small surface.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/sensorstream/errors"
)

// ErrNotConnected is returned when an operation needs a live connection.
var ErrNotConnected = stderrors.New("not connected to NATS")

// Client is a thin lifecycle wrapper around a NATS connection.
type Client struct {
	url    string
	logger *slog.Logger

	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	mu     sync.RWMutex
	conn   *nats.Conn
	js     jetstream.JetStream
	closed bool
}

// New creates a client for the given server URL. The connection is not
// established until Connect.
func New(url string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "NATSClient", "New",
			"server URL cannot be empty")
	}

	c := &Client{
		url:           url,
		logger:        logger.With("component", "natsclient"),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// URL returns the configured server URL.
func (c *Client) URL() string { return c.url }

// Connect establishes the connection. Reconnects after network failures
// are handled by the underlying library; Connect only fails when the
// initial dial cannot complete.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "NATSClient", "Connect", "client closed")
	}
	if c.conn != nil {
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("reconnected", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			c.logger.Info("connection closed")
		}),
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < c.timeout {
			opts = append(opts, nats.Timeout(remaining))
		}
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		return errors.WrapTransient(err, "NATSClient", "Connect",
			fmt.Sprintf("dialing %s", c.url))
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapTransient(err, "NATSClient", "Connect", "JetStream context")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("connected", "url", conn.ConnectedUrl())
	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends data to a core NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "Publish", subject)
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "NATSClient", "Publish", subject)
	}
	return nil
}

// PublishToStream publishes to a JetStream-backed subject and waits for
// the server acknowledgement.
func (c *Client) PublishToStream(ctx context.Context, subject string, data []byte) error {
	c.mu.RLock()
	js := c.js
	connected := c.conn != nil && c.conn.IsConnected()
	c.mu.RUnlock()

	if js == nil || !connected {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "PublishToStream", subject)
	}
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return errors.WrapTransient(err, "NATSClient", "PublishToStream", subject)
	}
	return nil
}

// EnsureStream creates the named JetStream stream if it does not exist,
// or updates its subject filter if it does.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "EnsureStream", name)
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSClient", "EnsureStream", name)
	}
	return nil
}

// Subscribe registers a handler for a subject. Subscriptions live until
// Close drains the connection.
func (c *Client) Subscribe(subject string, handler func([]byte)) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "Subscribe", subject)
	}
	_, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSClient", "Subscribe", subject)
	}
	return nil
}

// Close drains outstanding messages and closes the connection. Safe to
// call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.js = nil

	drainDone := make(chan error, 1)
	go func() { drainDone <- conn.Drain() }()

	select {
	case err := <-drainDone:
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "NATSClient", "Close", "drain")
		}
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "NATSClient", "Close", "drain cancelled")
	}
	return nil
}
