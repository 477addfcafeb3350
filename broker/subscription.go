package broker

import (
	"context"
	"sync"

	"github.com/c360/sensorstream/errors"
	"github.com/c360/sensorstream/pkg/buffer"
	"github.com/c360/sensorstream/types"
)

// Subscription is one consumer's view of the broker. Frames accumulate in
// its bounded queue until read; once the subscription is closed the
// remaining queued frames are still readable, then reads report
// ErrSubscriptionClosed.
type Subscription struct {
	id   string
	name string

	queue  buffer.Buffer[types.Frame]
	notify chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	broker *Broker
}

// ID returns the broker-assigned subscription id.
func (s *Subscription) ID() string { return s.id }

// Name returns the subscriber label used in logs and metrics.
func (s *Subscription) Name() string { return s.name }

// Next returns the oldest queued frame without blocking. The boolean is
// false when the queue is currently empty.
func (s *Subscription) Next() (types.Frame, bool) {
	return s.queue.Read()
}

// NextContext blocks until a frame is available, the context is cancelled,
// or the subscription is closed and drained.
func (s *Subscription) NextContext(ctx context.Context) (types.Frame, error) {
	for {
		if frame, ok := s.queue.Read(); ok {
			return frame, nil
		}

		var zero types.Frame
		select {
		case <-s.done:
			// Closed. Drain whatever was queued before reporting closure.
			if frame, ok := s.queue.Read(); ok {
				return frame, nil
			}
			return zero, errors.WrapInvalid(errors.ErrSubscriptionClosed,
				"Subscription", "NextContext", "subscriber "+s.name)
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.notify:
		}
	}
}

// Frames pumps queued frames into a channel until the context is cancelled
// or the subscription closes. The returned channel is closed on exit.
func (s *Subscription) Frames(ctx context.Context) <-chan types.Frame {
	out := make(chan types.Frame)
	go func() {
		defer close(out)
		for {
			frame, err := s.NextContext(ctx)
			if err != nil {
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Stats exposes the delivery queue counters for this subscription.
func (s *Subscription) Stats() buffer.Summary {
	return s.queue.Stats().Summary()
}

// Close detaches the subscription from the broker. Idempotent.
func (s *Subscription) Close() {
	_ = s.broker.Unsubscribe(s.id)
	s.markClosed() // covers races where the broker already dropped us
}

// markClosed shuts the delivery queue and wakes blocked readers. Called by
// the broker with the subscription already removed from its map.
func (s *Subscription) markClosed() {
	s.closeOnce.Do(func() {
		_ = s.queue.Close()
		close(s.done)
	})
}

// signal wakes at most one blocked reader. The 1-slot channel coalesces
// bursts of publishes into a single wakeup; the reader loops on the queue
// so nothing is lost.
func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
