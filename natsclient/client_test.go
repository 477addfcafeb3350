package natsclient

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestNewRejectsEmptyURL(t *testing.T) {
	_, err := New("", testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestOptionsApply(t *testing.T) {
	c, err := New("nats://localhost:4222", testLogger(),
		WithName("sensorstream"),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithTimeout(2*time.Second),
		WithDrainTimeout(5*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "sensorstream", c.clientName)
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, 2*time.Second, c.timeout)
	assert.Equal(t, 5*time.Second, c.drainTimeout)
}

func TestOptionsIgnoreNonPositiveDurations(t *testing.T) {
	c, err := New("nats://localhost:4222", testLogger(),
		WithReconnectWait(0),
		WithTimeout(-time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, c.reconnectWait)
	assert.Equal(t, 5*time.Second, c.timeout)
}

func TestPublishWithoutConnection(t *testing.T) {
	c, err := New("nats://localhost:4222", testLogger())
	require.NoError(t, err)

	err = c.Publish("frames.test", []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.IsConnected())
}

func TestCloseWithoutConnectionIsNoOp(t *testing.T) {
	c, err := New("nats://localhost:4222", testLogger())
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
}

func TestConnectAfterCloseFails(t *testing.T) {
	c, err := New("nats://localhost:4222", testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))

	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
