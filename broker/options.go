package broker

import (
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/pkg/buffer"
)

// DefaultQueueCapacity is the per-subscription delivery queue size used
// when no capacity is configured.
const DefaultQueueCapacity = 256

// Option configures broker-wide behavior.
type Option func(*options)

type options struct {
	queueCapacity int
	policy        buffer.OverflowPolicy
	backlogSize   int
	metrics       *metric.Registry
}

// WithQueueCapacity sets the default delivery queue capacity for new
// subscriptions.
func WithQueueCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.queueCapacity = capacity
		}
	}
}

// WithPolicy sets the default overflow policy for new subscriptions.
// Defaults to drop-oldest so live dashboards always see the freshest state.
func WithPolicy(policy buffer.OverflowPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithBacklog keeps a ring of the n most recent frames. Subscribers that
// opt in with SubscribeBacklog receive up to that many frames at attach
// time. 0 disables the backlog entirely (the default: no replay).
func WithBacklog(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.backlogSize = n
		}
	}
}

// WithMetrics wires broker counters and gauges into the metrics registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(o *options) {
		o.metrics = registry
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		queueCapacity: DefaultQueueCapacity,
		policy:        buffer.DropOldest,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// SubscribeOption configures one subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	capacity int
	policy   buffer.OverflowPolicy
	backlog  int
	name     string
}

// SubscribeQueueCapacity overrides the broker default queue capacity for
// this subscription.
func SubscribeQueueCapacity(capacity int) SubscribeOption {
	return func(o *subscribeOptions) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// SubscribePolicy overrides the broker default overflow policy for this
// subscription.
func SubscribePolicy(policy buffer.OverflowPolicy) SubscribeOption {
	return func(o *subscribeOptions) {
		o.policy = policy
	}
}

// SubscribeBacklog requests up to n recent frames replayed into the new
// subscription's queue at attach time. Effective only when the broker was
// created with WithBacklog.
func SubscribeBacklog(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		if n > 0 {
			o.backlog = n
		}
	}
}

// SubscribeName labels the subscription in logs and queue metrics instead
// of its generated id.
func SubscribeName(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.name = name
	}
}
