// Package eventbus provides an in-process publish/subscribe bus used to fan
// dispatching events out to the API, metrics, and notification layers.
package eventbus

import "sync"

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Publishing never blocks: subscribers that fall behind drop events.
type TypedBus[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber with the default buffer of 8 events.
func (b *TypedBus[T]) Subscribe() <-chan T {
	return b.SubscribeBuffered(8)
}

// SubscribeBuffered registers a subscriber with an explicit buffer size.
// Slow consumers that care about completeness should size the buffer to the
// burst they expect; dropped events are not retried.
func (b *TypedBus[T]) SubscribeBuffered(size int) <-chan T {
	ch := make(chan T, size)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
