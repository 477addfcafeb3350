package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/detector"
	"github.com/c360/sensorstream/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// stubSource feeds the gateway from a bare broker and records
// acknowledgements.
type stubSource struct {
	broker  *broker.Broker
	sensors []types.SensorInfo
	stats   map[string]detector.WindowStats
	acked   []string
	ackErr  error
}

func (s *stubSource) Subscribe(opts ...broker.SubscribeOption) (*broker.Subscription, error) {
	return s.broker.Subscribe(opts...)
}

func (s *stubSource) Sensors() []types.SensorInfo { return s.sensors }

func (s *stubSource) SensorStats(sensorID string) (detector.WindowStats, bool) {
	stats, ok := s.stats[sensorID]
	return stats, ok
}

func (s *stubSource) Acknowledge(alertID string) error {
	if s.ackErr != nil {
		return s.ackErr
	}
	s.acked = append(s.acked, alertID)
	return nil
}

func startGateway(t *testing.T, source *stubSource) *Gateway {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.PingInterval = 50 * time.Millisecond

	g := New(cfg, source, testLogger())
	require.NoError(t, g.Initialize())
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Stop(2 * time.Second) })
	return g
}

func dial(t *testing.T, g *Gateway) *gws.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s%s", g.Addr(), g.cfg.Path)
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, g *Gateway, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for g.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, g.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientReceivesSensorListOnConnect(t *testing.T) {
	source := &stubSource{
		broker: broker.New(testLogger()),
		sensors: []types.SensorInfo{
			{SensorID: "s1", Kind: types.KindTemperature, Unit: "°C", Name: "temp-1"},
			{SensorID: "s2", Kind: types.KindMotion, Unit: "detected"},
		},
	}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)

	msg := readMessage(t, conn)
	assert.Equal(t, "sensor_list", msg["type"])

	sensors, ok := msg["sensors"].([]any)
	require.True(t, ok)
	assert.Len(t, sensors, 2)
	first := sensors[0].(map[string]any)
	assert.Equal(t, "s1", first["sensorId"])
	assert.Equal(t, "temperature", first["kind"])
}

func TestClientReceivesPublishedFrames(t *testing.T) {
	source := &stubSource{broker: broker.New(testLogger())}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn) // sensor_list

	waitForClients(t, g, 1)

	source.broker.Publish(types.NewReadingFrame(types.Reading{
		SensorID:  "s1",
		Kind:      types.KindTemperature,
		Value:     22.5,
		Unit:      "°C",
		Timestamp: time.Now(),
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, "reading", msg["type"])
	assert.Equal(t, "s1", msg["sensorId"])
	assert.Equal(t, 22.5, msg["value"])

	source.broker.Publish(types.NewAlertFrame(types.Alert{
		ID:       "a1",
		SensorID: "s1",
		Rule:     types.RuleRangeExceeded,
		Severity: types.SeverityCritical,
		State:    types.AlertOpen,
	}))

	msg = readMessage(t, conn)
	assert.Equal(t, "alert", msg["type"])
	assert.Equal(t, "a1", msg["alertId"])
	assert.Equal(t, "RangeExceeded", msg["ruleViolated"])
}

func TestEveryClientGetsEveryFrame(t *testing.T) {
	source := &stubSource{broker: broker.New(testLogger())}
	defer source.broker.Close()

	g := startGateway(t, source)
	connA := dial(t, g)
	connB := dial(t, g)
	readMessage(t, connA)
	readMessage(t, connB)

	waitForClients(t, g, 2)

	source.broker.Publish(types.NewReadingFrame(types.Reading{
		SensorID: "s1", Kind: types.KindHumidity, Value: 45, Timestamp: time.Now(),
	}))

	for _, conn := range []*gws.Conn{connA, connB} {
		msg := readMessage(t, conn)
		assert.Equal(t, "reading", msg["type"])
		assert.Equal(t, 45.0, msg["value"])
	}
}

func TestAcknowledgeCommand(t *testing.T) {
	source := &stubSource{broker: broker.New(testLogger())}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn)
	waitForClients(t, g, 1)

	require.NoError(t, conn.WriteJSON(clientCommand{Type: "acknowledge", AlertID: "alert-9"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "command_result", msg["type"])
	assert.Equal(t, "acknowledge", msg["command"])
	assert.Equal(t, true, msg["ok"])
	assert.Equal(t, []string{"alert-9"}, source.acked)
}

func TestAcknowledgeUnknownAlertReportsError(t *testing.T) {
	source := &stubSource{
		broker: broker.New(testLogger()),
		ackErr: fmt.Errorf("alert not found"),
	}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn)
	waitForClients(t, g, 1)

	require.NoError(t, conn.WriteJSON(clientCommand{Type: "acknowledge", AlertID: "nope"}))

	msg := readMessage(t, conn)
	assert.Equal(t, false, msg["ok"])
	assert.Contains(t, msg["error"], "not found")
}

func TestGetSensorsCommand(t *testing.T) {
	source := &stubSource{
		broker: broker.New(testLogger()),
		sensors: []types.SensorInfo{
			{SensorID: "s1", Kind: types.KindTemperature, Unit: "°C"},
		},
	}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn) // connect-time sensor_list
	waitForClients(t, g, 1)

	require.NoError(t, conn.WriteJSON(clientCommand{Type: "get_sensors"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "sensor_list", msg["type"])
	sensors, ok := msg["sensors"].([]any)
	require.True(t, ok)
	require.Len(t, sensors, 1)
	assert.Equal(t, "s1", sensors[0].(map[string]any)["sensorId"])
}

func TestGetStatisticsCommand(t *testing.T) {
	source := &stubSource{
		broker: broker.New(testLogger()),
		sensors: []types.SensorInfo{
			{SensorID: "s1", Kind: types.KindTemperature},
			{SensorID: "s2", Kind: types.KindHumidity},
		},
		stats: map[string]detector.WindowStats{
			"s1": {Count: 20, Mean: 21.5, StdDev: 0.4, Min: 20.8, Max: 22.3},
			"s2": {Count: 12, Mean: 45.0, StdDev: 1.8, Min: 42.0, Max: 48.0},
		},
	}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn)
	waitForClients(t, g, 1)

	// One sensor by id.
	require.NoError(t, conn.WriteJSON(clientCommand{Type: "get_statistics", SensorID: "s1"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "statistics", msg["type"])
	entries, ok := msg["statistics"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "s1", entry["sensorId"])
	stats := entry["stats"].(map[string]any)
	assert.Equal(t, 21.5, stats["mean"])
	assert.Equal(t, 20.0, stats["count"])

	// No id: every active sensor.
	require.NoError(t, conn.WriteJSON(clientCommand{Type: "get_statistics"}))
	msg = readMessage(t, conn)
	entries, ok = msg["statistics"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 2)

	// Unknown id: empty result, not an error.
	require.NoError(t, conn.WriteJSON(clientCommand{Type: "get_statistics", SensorID: "nope"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "statistics", msg["type"])
	assert.Empty(t, msg["statistics"])
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	source := &stubSource{broker: broker.New(testLogger())}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn)
	waitForClients(t, g, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, g, 0)
}

func TestStopClosesClients(t *testing.T) {
	source := &stubSource{broker: broker.New(testLogger())}
	defer source.broker.Close()

	g := startGateway(t, source)
	conn := dial(t, g)
	readMessage(t, conn)
	waitForClients(t, g, 1)

	require.NoError(t, g.Stop(2*time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed after gateway stop")

	// Stop twice is a no-op.
	require.NoError(t, g.Stop(time.Second))
}

func TestInitializeValidation(t *testing.T) {
	source := &stubSource{broker: broker.New(testLogger())}

	cfg := DefaultConfig()
	cfg.Port = -1
	assert.Error(t, New(cfg, source, testLogger()).Initialize())

	cfg = DefaultConfig()
	cfg.Path = ""
	assert.Error(t, New(cfg, source, testLogger()).Initialize())

	cfg = DefaultConfig()
	cfg.PingInterval = 0
	assert.Error(t, New(cfg, source, testLogger()).Initialize())

	assert.Error(t, New(DefaultConfig(), nil, testLogger()).Initialize())
}
