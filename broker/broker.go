// Package broker implements the real-time transport at the heart of the
// pipeline: it accepts subscriber attachments and fans every published
// frame out to all current subscriptions.
//
// The core correctness requirement is that Publish never blocks the
// producer regardless of subscriber speed. Each subscription owns a
// bounded delivery queue; when a queue is full the configured overflow
// policy (drop-oldest or drop-newest) decides what is lost, for that
// subscriber only. Slow or dead subscribers never affect other
// subscribers or the producer.
package broker

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/metric"
	"github.com/c360/sensorstream/pkg/buffer"
	"github.com/c360/sensorstream/types"
)

// Broker fans out frames to subscriptions.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	// backlog is a ring of the most recent frames, replayed into new
	// subscriptions that opt in. nil when disabled.
	backlog *frameRing

	opts    *options
	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates a stream broker. Readings and alerts share one broker; the
// frame type field discriminates them on the wire.
func New(logger *slog.Logger, opts ...Option) *Broker {
	o := applyOptions(opts...)

	b := &Broker{
		subs:   make(map[string]*Subscription),
		opts:   o,
		logger: logger.With("component", "broker"),
	}
	if o.metrics != nil {
		b.metrics = o.metrics.CoreMetrics()
	}
	if o.backlogSize > 0 {
		b.backlog = newFrameRing(o.backlogSize)
	}
	return b
}

// Subscribe attaches a new consumer and returns its subscription. The
// subscription observes no frame published before it attached unless it
// explicitly requests a bounded backlog. Failure to allocate the delivery
// queue is fatal to this call only.
func (b *Broker) Subscribe(opts ...SubscribeOption) (*Subscription, error) {
	so := &subscribeOptions{
		capacity: b.opts.queueCapacity,
		policy:   b.opts.policy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(so)
		}
	}

	id := uuid.NewString()
	name := so.name
	if name == "" {
		name = id
	}

	bufOpts := []buffer.Option[types.Frame]{
		buffer.WithOverflowPolicy[types.Frame](so.policy),
	}
	if b.opts.metrics != nil && so.name != "" {
		// Only named subscriptions export queue metrics; ephemeral ids
		// would leak registered collectors.
		bufOpts = append(bufOpts, buffer.WithMetrics[types.Frame](b.opts.metrics, so.name))
	}

	queue, err := buffer.NewCircular[types.Frame](so.capacity, bufOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "Broker", "Subscribe", "allocating delivery queue")
	}

	sub := &Subscription{
		id:     id,
		name:   name,
		queue:  queue,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		broker: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = queue.Close()
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Broker", "Subscribe", "broker closed")
	}

	// Replay happens under the write lock so a concurrent Publish can
	// neither be missed nor duplicated.
	if b.backlog != nil && so.backlog > 0 {
		for _, frame := range b.backlog.Last(so.backlog) {
			_ = queue.Write(frame)
		}
		sub.signal()
	}

	b.subs[id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SubscribersActive.Set(float64(count))
	}
	b.logger.Debug("subscriber attached", "subscriber", name, "queue_capacity", so.capacity,
		"policy", so.policy.String())
	return sub, nil
}

// Unsubscribe detaches a subscription and releases its queue. Safe to call
// concurrently with an in-flight Publish. Returns ErrNotFound for ids the
// broker does not know (including already-removed ones).
func (b *Broker) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return errors.WrapInvalid(errors.ErrNotFound, "Broker", "Unsubscribe", "subscriber "+id)
	}

	sub.markClosed()
	if b.metrics != nil {
		b.metrics.SubscribersActive.Set(float64(count))
	}
	b.logger.Debug("subscriber detached", "subscriber", sub.name)
	return nil
}

// Publish fans a frame out to every current subscription. Never blocks:
// delivery into each subscriber's queue is governed by that queue's
// overflow policy. Dead subscriptions discovered during delivery are
// removed lazily.
func (b *Broker) Publish(frame types.Frame) {
	var targets []*Subscription

	if b.backlog != nil {
		// The backlog push and the subscriber snapshot share one critical
		// section: a subscriber attaching with replay between them would
		// receive the frame twice, once from the backlog and once from
		// the fan-out below.
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.backlog.Push(frame)
		targets = make([]*Subscription, 0, len(b.subs))
		for _, sub := range b.subs {
			targets = append(targets, sub)
		}
		b.mu.Unlock()
	} else {
		b.mu.RLock()
		if b.closed {
			b.mu.RUnlock()
			return
		}
		targets = make([]*Subscription, 0, len(b.subs))
		for _, sub := range b.subs {
			targets = append(targets, sub)
		}
		b.mu.RUnlock()
	}

	var dead []*Subscription
	for _, sub := range targets {
		if err := sub.queue.Write(frame); err != nil {
			// Closed queue: the subscriber is gone.
			dead = append(dead, sub)
			continue
		}
		sub.signal()
	}

	if b.metrics != nil {
		b.metrics.FramesPublished.WithLabelValues(frame.FrameType()).Inc()
	}

	for _, sub := range dead {
		if err := b.Unsubscribe(sub.id); err == nil {
			b.logger.Warn("removed dead subscriber after failed delivery",
				"subscriber", sub.name)
		}
	}
}

// SubscriberCount returns the number of attached subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscription and rejects further ones.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}
	if b.metrics != nil {
		b.metrics.SubscribersActive.Set(0)
	}
}

// frameRing is a fixed-size ring of the most recent frames, oldest first.
// Guarded by the broker's mutex.
type frameRing struct {
	frames []types.Frame
	next   int
	filled bool
}

func newFrameRing(size int) *frameRing {
	return &frameRing{frames: make([]types.Frame, size)}
}

func (r *frameRing) Push(frame types.Frame) {
	r.frames[r.next] = frame
	r.next = (r.next + 1) % len(r.frames)
	if r.next == 0 {
		r.filled = true
	}
}

// Last returns up to n most recent frames in publication order.
func (r *frameRing) Last(n int) []types.Frame {
	size := r.next
	if r.filled {
		size = len(r.frames)
	}
	if n > size {
		n = size
	}
	if n == 0 {
		return nil
	}

	out := make([]types.Frame, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.frames)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.frames[(start+i)%len(r.frames)])
	}
	return out
}
