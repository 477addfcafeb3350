package natsbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/testutil"
	"github.com/c360/sensorstream/types"
)

func TestIntegration_BridgeMirrorsFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := testutil.StartNATSContainer(ctx, t)

	source := broker.New(testLogger())
	defer source.Close()

	cfg := DefaultConfig()
	cfg.URL = url
	bridge := New(cfg, source, testLogger())
	require.NoError(t, bridge.Initialize())
	require.NoError(t, bridge.Start(ctx))
	defer bridge.Stop(5 * time.Second)

	// Plain NATS consumer on the reading wildcard.
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan *nats.Msg, 8)
	_, err = conn.ChanSubscribe("sensorstream.reading.>", received)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	source.Publish(types.NewReadingFrame(types.Reading{
		SensorID:  "temp-1",
		Kind:      types.KindTemperature,
		Value:     22.5,
		Unit:      "°C",
		Timestamp: time.Now(),
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "sensorstream.reading.temp-1", msg.Subject)

		var frame map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &frame))
		assert.Equal(t, "reading", frame["type"])
		assert.Equal(t, 22.5, frame["value"])
	case <-time.After(5 * time.Second):
		t.Fatal("mirrored frame never arrived")
	}
}

func TestIntegration_BridgeJetStreamPersistsFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := testutil.StartNATSContainer(ctx, t)

	source := broker.New(testLogger())
	defer source.Close()

	cfg := DefaultConfig()
	cfg.URL = url
	cfg.UseJetStream = true
	bridge := New(cfg, source, testLogger())
	require.NoError(t, bridge.Initialize())
	require.NoError(t, bridge.Start(ctx))
	defer bridge.Stop(5 * time.Second)

	source.Publish(types.NewAlertFrame(types.Alert{
		ID:       "a1",
		SensorID: "temp-1",
		Rule:     types.RuleRangeExceeded,
		Severity: types.SeverityCritical,
		State:    types.AlertOpen,
	}))

	conn, err := nats.Connect(url)
	require.NoError(t, err)
	defer conn.Close()

	js, err := conn.JetStream()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		info, err := js.StreamInfo("SENSORSTREAM")
		return err == nil && info.State.Msgs == 1
	}, 5*time.Second, 50*time.Millisecond, "alert frame never reached the stream")
}
