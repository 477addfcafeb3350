package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/testutil"
)

func TestIntegration_ConnectAndPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := testutil.StartNATSContainer(ctx, t)

	client, err := New(url, testLogger(), WithName("integration-test"))
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	assert.True(t, client.IsConnected())

	received := make(chan []byte, 1)
	require.NoError(t, client.Subscribe("sensorstream.reading.s1", func(data []byte) {
		received <- data
	}))

	payload := []byte(`{"type":"reading","sensorId":"s1","value":21.5}`)
	require.NoError(t, client.Publish("sensorstream.reading.s1", payload))

	select {
	case data := <-received:
		assert.Equal(t, payload, data)
	case <-time.After(5 * time.Second):
		t.Fatal("published message never arrived")
	}
}

func TestIntegration_JetStreamPublish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := testutil.StartNATSContainer(ctx, t)

	client, err := New(url, testLogger())
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	require.NoError(t, client.EnsureStream(ctx, "SENSORSTREAM", []string{"sensorstream.>"}))

	// EnsureStream twice must not fail.
	require.NoError(t, client.EnsureStream(ctx, "SENSORSTREAM", []string{"sensorstream.>"}))

	err = client.PublishToStream(ctx, "sensorstream.alert.s1", []byte(`{"type":"alert"}`))
	require.NoError(t, err)
}

func TestIntegration_CloseDrains(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := testutil.StartNATSContainer(ctx, t)

	client, err := New(url, testLogger(), WithDrainTimeout(5*time.Second))
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))

	require.NoError(t, client.Publish("sensorstream.reading.s1", []byte("{}")))
	require.NoError(t, client.Close(ctx))
	assert.False(t, client.IsConnected())
}
