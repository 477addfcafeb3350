// Package buffer provides a generic, thread-safe bounded queue with
// configurable overflow policies.
//
// Each broker subscription owns one buffer as its delivery queue. Writes
// never block: when the buffer is full the overflow policy decides whether
// the oldest queued item is overwritten (DropOldest) or the incoming item
// is discarded (DropNewest). Statistics are always collected; Prometheus
// export is optional via the WithMetrics option.
package buffer

// Buffer is a bounded FIFO queue parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. It never blocks; when the buffer
	// is full the overflow policy decides what is dropped. Write fails
	// only after Close.
	Write(item T) error

	// Read retrieves and removes one item.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items.
	ReadBatch(max int) []T

	// Peek retrieves one item without removing it.
	Peek() (T, bool)

	// Size returns the current number of queued items.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// IsFull returns true if the buffer is at capacity.
	IsFull() bool

	// Clear removes all items.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts down the buffer. Subsequent writes fail, which is how
	// the broker detects a dead subscription lazily.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest queued item to make room, so a slow
	// consumer always sees the most recent items.
	DropOldest OverflowPolicy = iota

	// DropNewest discards incoming items while the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a config string into an OverflowPolicy.
// Returns DropOldest and false for unrecognized input.
func ParsePolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "drop-oldest", "":
		return DropOldest, true
	case "drop-newest":
		return DropNewest, true
	default:
		return DropOldest, false
	}
}

// DropCallback is called with each item dropped by the overflow policy.
type DropCallback[T any] func(item T)

// NewCircular creates a bounded circular buffer with the given capacity.
// Returns an error only if metrics registration fails when requested.
func NewCircular[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircular(capacity, opts)
}
