package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassString(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "invalid", Invalid.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "unknown", Class(42).String())
}

func TestWrapFormat(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Registry", "Tick", "sampling sensor")
	require.Error(t, err)
	assert.Equal(t, "Registry.Tick: sampling sensor failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "C", "M", "a"))
	assert.NoError(t, WrapTransient(nil, "C", "M", "a"))
	assert.NoError(t, WrapInvalid(nil, "C", "M", "a"))
	assert.NoError(t, WrapFatal(nil, "C", "M", "a"))
}

func TestClassificationPreservedThroughWrapping(t *testing.T) {
	err := WrapInvalid(ErrInvalidConfig, "Sensor", "New", "validating config")

	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))
	assert.False(t, IsFatal(err))

	// Another layer of plain wrapping keeps the classification reachable.
	outer := fmt.Errorf("constructing pipeline: %w", err)
	assert.True(t, IsInvalid(outer))

	var ce *ClassifiedError
	require.True(t, stderrors.As(outer, &ce))
	assert.Equal(t, Invalid, ce.Class)
	assert.Equal(t, "Sensor", ce.Component)
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsTransient(ErrSubscriberGone))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(context.DeadlineExceeded))

	assert.True(t, IsInvalid(ErrSensorNotFound))
	assert.True(t, IsInvalid(ErrInvalidConfig))

	assert.True(t, IsFatal(ErrResourceExhausted))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrSensorNotFound))
	assert.True(t, IsNotFound(ErrAlertNotFound))
	assert.True(t, IsNotFound(WrapInvalid(ErrSensorNotFound, "Registry", "Unregister", "lookup")))
	assert.False(t, IsNotFound(ErrConnectionLost))
	assert.False(t, IsNotFound(nil))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, Transient, Classify(stderrors.New("something unexpected")))
	assert.Equal(t, Invalid, Classify(ErrNotFound))
	assert.Equal(t, Fatal, Classify(ErrResourceExhausted))
}
