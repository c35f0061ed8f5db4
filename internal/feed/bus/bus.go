// SPDX-License-Identifier: MIT

// Package bus provides a typed in-process broadcast channel. It carries the
// slot-readiness and buffer-state events the engine publishes for UI and
// indicator consumers, replacing implicit global notifications with explicit
// message passing.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/reelfeed/reelfeed/internal/log"
)

const (
	subBuffer    = 64
	dropLogEvery = 100
)

// Bus fans out events of type T to all live subscribers. Delivery is
// at-least-once in-process while the publish context remains active; a
// subscriber that stops draining causes the publisher to drop, not block
// forever.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs []chan T

	dropCount atomic.Uint64
	onDrop    func(reason string)
}

// New creates an empty bus. onDrop, if non-nil, is invoked with a reason
// whenever a publish is abandoned (used for metrics accounting).
func New[T any](onDrop func(reason string)) *Bus[T] {
	return &Bus[T]{onDrop: onDrop}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish delivers the event to every current subscriber. It returns an
// error only when the context expires before all subscribers accepted it.
// The subscriber list is read-locked for the whole delivery loop so a
// concurrent Close can never close a channel mid-send; publishers must
// therefore pass a bounded context.
func (b *Bus[T]) Publish(ctx context.Context, ev T) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			reason := dropReason(ctx.Err())
			if b.onDrop != nil {
				b.onDrop(reason)
			}
			count := b.dropCount.Add(1)
			if count%dropLogEvery == 0 {
				logger := log.L()
				logger.Warn().
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("event bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish event: %w", ctx.Err())
		}
	}
	return nil
}

// Subscriber is one receiver's end of the bus.
type Subscriber[T any] struct {
	b  *Bus[T]
	ch chan T

	closeOnce sync.Once
}

// Subscribe registers a new subscriber with a buffered channel.
func (b *Bus[T]) Subscribe() *Subscriber[T] {
	ch := make(chan T, subBuffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return &Subscriber[T]{b: b, ch: ch}
}

// C returns the receive channel. It is closed when the subscriber closes.
func (s *Subscriber[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscriber and closes its channel.
func (s *Subscriber[T]) Close() {
	s.closeOnce.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		s.b.subs = out
		close(s.ch)
	})
}
