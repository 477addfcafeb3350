package errors

import (
	"context"
	"errors"
	"fmt"
)

// Class partitions errors by the reaction they call for.
type Class int

const (
	// Transient conditions may clear on their own; callers may retry.
	Transient Class = iota
	// Invalid marks caller mistakes; retrying cannot help.
	Invalid
	// Fatal marks unrecoverable conditions; processing must stop.
	Fatal
)

var classNames = map[Class]string{
	Transient: "transient",
	Invalid:   "invalid",
	Fatal:     "fatal",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// Lifecycle sentinels.
var (
	ErrAlreadyStarted  = errors.New("component already started")
	ErrNotInitialized  = errors.New("component not initialized")
	ErrNotStarted      = errors.New("component not started")
	ErrAlreadyStopped  = errors.New("component already stopped")
	ErrShuttingDown    = errors.New("component is shutting down")
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// Configuration sentinels.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Lookup sentinels.
var (
	ErrNotFound        = errors.New("not found")
	ErrSensorNotFound  = errors.New("sensor not found")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrDuplicateSensor = errors.New("sensor already registered")
)

// Delivery and connection sentinels.
var (
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrSubscriberGone     = errors.New("subscriber disconnected")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
)

// Unwrapped sentinels classify by membership in these sets. Classified
// errors override them.
var (
	transientSentinels = []error{
		ErrConnectionTimeout, ErrConnectionLost, ErrNoConnection,
		ErrSubscriberGone, context.DeadlineExceeded, context.Canceled,
	}
	invalidSentinels = []error{
		ErrInvalidConfig, ErrMissingConfig, ErrNotFound,
		ErrSensorNotFound, ErrAlertNotFound, ErrDuplicateSensor,
	}
	fatalSentinels = []error{ErrResourceExhausted}
)

// ClassifiedError ties an error to its class and to the component operation
// that produced it.
type ClassifiedError struct {
	Class     Class
	Component string
	Operation string
	Err       error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }

func (e *ClassifiedError) Unwrap() error { return e.Err }

func classOf(err error) (Class, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

func matchesAny(err error, sentinels []error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsTransient reports whether the error may clear on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := classOf(err); ok {
		return c == Transient
	}
	return matchesAny(err, transientSentinels)
}

// IsInvalid reports whether the error is a caller mistake.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := classOf(err); ok {
		return c == Invalid
	}
	return matchesAny(err, invalidSentinels)
}

// IsFatal reports whether processing should stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if c, ok := classOf(err); ok {
		return c == Fatal
	}
	return matchesAny(err, fatalSentinels)
}

// IsNotFound reports whether the error indicates a missing sensor, alert or
// subscription, regardless of how it was wrapped.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSensorNotFound) ||
		errors.Is(err, ErrAlertNotFound)
}

// Classify resolves the class of any error. Unknown errors are treated as
// transient so callers err on the side of retrying.
func Classify(err error) Class {
	switch {
	case IsFatal(err):
		return Fatal
	case IsInvalid(err):
		return Invalid
	default:
		return Transient
	}
}

// Wrap adds "component.operation: detail failed" context without changing
// the classification of the underlying error.
func Wrap(err error, component, operation, detail string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, operation, detail, err)
}

func classify(class Class, err error, component, operation, detail string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Component: component,
		Operation: operation,
		Err:       Wrap(err, component, operation, detail),
	}
}

// WrapTransient wraps an error with context and marks it retryable.
func WrapTransient(err error, component, operation, detail string) error {
	return classify(Transient, err, component, operation, detail)
}

// WrapInvalid wraps an error with context and marks it a caller mistake.
func WrapInvalid(err error, component, operation, detail string) error {
	return classify(Invalid, err, component, operation, detail)
}

// WrapFatal wraps an error with context and marks it unrecoverable.
func WrapFatal(err error, component, operation, detail string) error {
	return classify(Fatal, err, component, operation, detail)
}
