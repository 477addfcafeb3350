// Package websocket serves the frame stream to external consumers over
// WebSocket. Each client gets its own broker subscription, so one slow
// dashboard never affects another; the subscription's overflow policy
// bounds how far a client can fall behind.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/detector"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/types"
)

// Source is what the gateway needs from the pipeline: a frame stream, the
// sensor inventory, per-sensor window statistics and alert acknowledgement.
type Source interface {
	Subscribe(opts ...broker.SubscribeOption) (*broker.Subscription, error)
	Sensors() []types.SensorInfo
	SensorStats(sensorID string) (detector.WindowStats, bool)
	Acknowledge(alertID string) error
}

// Config holds the gateway settings.
type Config struct {
	Host         string
	Port         int
	Path         string
	PingInterval time.Duration
}

// DefaultConfig returns the standard gateway settings.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8765,
		Path:         "/stream",
		PingInterval: 20 * time.Second,
	}
}

// clientCommand is the only message shape clients may send. Anything else
// is ignored.
type clientCommand struct {
	Type     string `json:"type"`
	AlertID  string `json:"alertId,omitempty"`
	SensorID string `json:"sensorId,omitempty"`
}

// commandResult reports the outcome of a client command.
type commandResult struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// sensorStatistics pairs a sensor id with its current window statistics.
type sensorStatistics struct {
	SensorID string               `json:"sensorId"`
	Stats    detector.WindowStats `json:"stats"`
}

// statisticsResult answers a get_statistics command.
type statisticsResult struct {
	Type       string             `json:"type"`
	Statistics []sensorStatistics `json:"statistics"`
}

// Gateway is the WebSocket endpoint component.
type Gateway struct {
	cfg    Config
	source Source
	logger *slog.Logger

	upgrader websocket.Upgrader

	server   *http.Server
	listener net.Listener

	clientsMu sync.Mutex
	clients   map[*client]struct{}

	lifecycleMu sync.Mutex
	running     bool
	shutdown    chan struct{}
	wg          *sync.WaitGroup

	metrics *gatewayMetrics
}

// client is one connected consumer.
type client struct {
	conn *websocket.Conn
	sub  *broker.Subscription

	// writeMu serializes writes; gorilla connections do not allow
	// concurrent writers.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Option configures optional gateway wiring.
type Option func(*Gateway)

// WithMetrics exports gateway counters through the registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(g *Gateway) {
		g.metrics = newGatewayMetrics(registry)
	}
}

// New creates the gateway around a frame source.
func New(cfg Config, source Source, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Name implements component.Component.
func (g *Gateway) Name() string { return "gateway" }

// Initialize validates the configuration.
func (g *Gateway) Initialize() error {
	// Port 0 binds a random free port, used by tests.
	if g.cfg.Port < 0 || g.cfg.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			fmt.Sprintf("port %d out of range", g.cfg.Port))
	}
	if g.cfg.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			"endpoint path cannot be empty")
	}
	if g.cfg.PingInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "Initialize",
			"ping interval must be positive")
	}
	if g.source == nil {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Gateway", "Initialize",
			"frame source missing")
	}
	return nil
}

// Start binds the listener and begins accepting clients.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if g.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Gateway", "Start", "gateway")
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Gateway", "Start", "context already cancelled")
	}

	addr := fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapFatal(err, "Gateway", "Start",
			fmt.Sprintf("binding %s", addr))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.Path, g.handleConnect)

	g.listener = listener
	g.server = &http.Server{Handler: mux}
	g.shutdown = make(chan struct{})
	g.wg = &sync.WaitGroup{}
	g.running = true

	g.wg.Add(1)
	go g.serve()

	g.logger.Info("gateway listening",
		"addr", listener.Addr().String(), "path", g.cfg.Path)
	return nil
}

// Stop closes the listener and every client connection.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if !g.running {
		return nil
	}
	g.running = false
	close(g.shutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.server.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("server shutdown incomplete", "error", err)
	}

	g.clientsMu.Lock()
	for c := range g.clients {
		g.closeClient(c, "shutdown")
	}
	g.clientsMu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrShutdownTimeout, "Gateway", "Stop",
			fmt.Sprintf("client goroutines still running after %s", timeout))
	}

	g.logger.Info("gateway stopped")
	return nil
}

// Addr returns the bound listen address, useful when Port was 0.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()
	return len(g.clients)
}

func (g *Gateway) serve() {
	defer g.wg.Done()

	err := g.server.Serve(g.listener)
	if err != nil && err != http.ErrServerClosed {
		g.logger.Error("gateway server failed", "error", err)
		if g.metrics != nil {
			g.metrics.errorsTotal.WithLabelValues("serve").Inc()
		}
	}
}

// handleConnect upgrades the HTTP request, sends the sensor listing and
// attaches the client to the frame stream.
func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if g.metrics != nil {
			g.metrics.errorsTotal.WithLabelValues("upgrade").Inc()
		}
		return
	}

	sub, err := g.source.Subscribe()
	if err != nil {
		g.logger.Warn("rejecting client, subscription failed",
			"remote", r.RemoteAddr, "error", err)
		_ = conn.Close()
		if g.metrics != nil {
			g.metrics.errorsTotal.WithLabelValues("subscribe").Inc()
		}
		return
	}

	c := &client{conn: conn, sub: sub}

	// Sensor listing goes out before any frame so clients can label the
	// stream that follows.
	if err := g.writeJSON(c, types.NewSensorListFrame(g.source.Sensors())); err != nil {
		g.closeClient(c, "sensor_list_write")
		return
	}

	g.clientsMu.Lock()
	g.clients[c] = struct{}{}
	count := len(g.clients)
	g.clientsMu.Unlock()

	if g.metrics != nil {
		g.metrics.connectionsTotal.Inc()
		g.metrics.clientsConnected.Set(float64(count))
	}
	g.logger.Debug("client connected", "remote", r.RemoteAddr, "clients", count)

	g.wg.Add(3)
	go g.writeLoop(c)
	go g.readLoop(c)
	go g.pingLoop(c)
}

// writeLoop pumps frames from the client's subscription to the socket.
func (g *Gateway) writeLoop(c *client) {
	defer g.wg.Done()
	defer g.dropClient(c, "write")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-g.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		frame, err := c.sub.NextContext(ctx)
		if err != nil {
			return
		}
		if err := g.writeJSON(c, frame); err != nil {
			if g.metrics != nil {
				g.metrics.errorsTotal.WithLabelValues("frame_write").Inc()
			}
			return
		}
		if g.metrics != nil {
			g.metrics.framesSent.WithLabelValues(frame.FrameType()).Inc()
		}
	}
}

// readLoop consumes client commands. It also drives pong handling: the
// read deadline refreshes on every pong, so a silent peer eventually
// fails the read and gets dropped.
func (g *Gateway) readLoop(c *client) {
	defer g.wg.Done()
	defer g.dropClient(c, "read")

	readTimeout := 3 * g.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		g.handleCommand(c, cmd)
	}
}

func (g *Gateway) handleCommand(c *client, cmd clientCommand) {
	switch cmd.Type {
	case "acknowledge":
		result := commandResult{Type: "command_result", Command: cmd.Type, OK: true}
		if err := g.source.Acknowledge(cmd.AlertID); err != nil {
			result.OK = false
			result.Error = err.Error()
		}
		_ = g.writeJSON(c, result)
	case "get_sensors":
		_ = g.writeJSON(c, types.NewSensorListFrame(g.source.Sensors()))
	case "get_statistics":
		_ = g.writeJSON(c, g.statistics(cmd.SensorID))
	default:
		// Unknown commands are ignored.
	}
}

// statistics answers a get_statistics command. An empty sensor id returns
// statistics for every active sensor; sensors still warming up report a
// zero-count window.
func (g *Gateway) statistics(sensorID string) statisticsResult {
	result := statisticsResult{Type: "statistics"}
	if sensorID != "" {
		if stats, ok := g.source.SensorStats(sensorID); ok {
			result.Statistics = append(result.Statistics,
				sensorStatistics{SensorID: sensorID, Stats: stats})
		}
		return result
	}
	for _, info := range g.source.Sensors() {
		if stats, ok := g.source.SensorStats(info.SensorID); ok {
			result.Statistics = append(result.Statistics,
				sensorStatistics{SensorID: info.SensorID, Stats: stats})
		}
	}
	return result
}

// pingLoop keeps the connection alive and detects dead peers.
func (g *Gateway) pingLoop(c *client) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.shutdown:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				g.dropClient(c, "ping")
				return
			}
		}
	}
}

func (g *Gateway) writeJSON(c *client, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

// dropClient removes the client from the active set and releases its
// resources. Safe to call from multiple loops; only the first wins.
func (g *Gateway) dropClient(c *client, reason string) {
	g.clientsMu.Lock()
	_, present := g.clients[c]
	delete(g.clients, c)
	count := len(g.clients)
	g.clientsMu.Unlock()

	g.closeClient(c, reason)

	if present {
		if g.metrics != nil {
			g.metrics.disconnectionsTotal.WithLabelValues(reason).Inc()
			g.metrics.clientsConnected.Set(float64(count))
		}
		g.logger.Debug("client disconnected", "reason", reason, "clients", count)
	}
}

func (g *Gateway) closeClient(c *client, _ string) {
	c.closeOnce.Do(func() {
		c.sub.Close()
		_ = c.conn.Close()
	})
}
