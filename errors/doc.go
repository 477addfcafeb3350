// Package errors provides standardized error handling patterns for sensorstream.
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input or configuration, non-retryable),
// and Fatal (unrecoverable, stop processing).
//
// The pipeline's error taxonomy maps onto these classes as follows:
//
//   - Configuration errors (bad sensor or detector parameters, rejected at
//     construction) are Invalid, built from ErrInvalidConfig via WrapInvalid.
//   - Not-found errors (operations on unknown sensor or alert identifiers)
//     are Invalid, built from ErrSensorNotFound / ErrAlertNotFound.
//   - Transport errors (a subscriber disconnecting mid-delivery) are
//     Transient, built from ErrSubscriberGone, and are always recovered
//     locally by removing the subscription - they never reach a producer.
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Classification is preserved through wrapping chains and integrates with
// errors.Is, errors.As and Unwrap from the standard library:
//
//	if err := registry.Unregister(id); errors.IsNotFound(err) {
//	    // unknown sensor id
//	}
package errors
