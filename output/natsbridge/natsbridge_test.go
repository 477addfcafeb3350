package natsbridge

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorstream/broker"
	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newSource(t *testing.T) *broker.Broker {
	t.Helper()
	b := broker.New(testLogger())
	t.Cleanup(b.Close)
	return b
}

func TestInitializeValidation(t *testing.T) {
	src := newSource(t)

	cfg := DefaultConfig()
	b := New(cfg, nil, testLogger())
	require.Error(t, b.Initialize())

	cfg = DefaultConfig()
	cfg.SubjectPrefix = ""
	require.Error(t, New(cfg, src, testLogger()).Initialize())

	cfg = DefaultConfig()
	cfg.SubjectPrefix = "sensor stream"
	require.Error(t, New(cfg, src, testLogger()).Initialize())

	cfg = DefaultConfig()
	cfg.SubjectPrefix = "frames.>"
	require.Error(t, New(cfg, src, testLogger()).Initialize())

	cfg = DefaultConfig()
	cfg.UseJetStream = true
	cfg.StreamName = ""
	require.Error(t, New(cfg, src, testLogger()).Initialize())

	cfg = DefaultConfig()
	require.NoError(t, New(cfg, src, testLogger()).Initialize())
}

func TestInitializeDefaultsQueueCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 0

	b := New(cfg, newSource(t), testLogger())
	require.NoError(t, b.Initialize())
	assert.Equal(t, DefaultConfig().QueueCapacity, b.cfg.QueueCapacity)
}

func TestStartBeforeInitializeFails(t *testing.T) {
	b := New(DefaultConfig(), newSource(t), testLogger())

	err := b.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
}

func TestStopBeforeStartIsNoOp(t *testing.T) {
	b := New(DefaultConfig(), newSource(t), testLogger())
	require.NoError(t, b.Initialize())
	require.NoError(t, b.Stop(time.Second))
}

func TestSubjectMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SubjectPrefix = "iot"
	b := New(cfg, newSource(t), testLogger())

	reading := types.NewReadingFrame(types.Reading{SensorID: "temp-1", Timestamp: time.Now()})
	assert.Equal(t, "iot.reading.temp-1", b.subjectFor(reading))

	alert := types.NewAlertFrame(types.Alert{ID: "a1", SensorID: "temp-1"})
	assert.Equal(t, "iot.alert.temp-1", b.subjectFor(alert))

	list := types.NewSensorListFrame(nil)
	assert.Equal(t, "iot.sensors", b.subjectFor(list))
}

func TestSubjectMappingSanitizesSensorIDs(t *testing.T) {
	b := New(DefaultConfig(), newSource(t), testLogger())

	reading := types.NewReadingFrame(types.Reading{SensorID: "room 1.temp>*", Timestamp: time.Now()})
	assert.Equal(t, "sensorstream.reading.room_1_temp__", b.subjectFor(reading))
}
