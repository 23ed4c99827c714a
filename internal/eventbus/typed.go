package eventbus

import (
	"context"
	"sync"
)

// DefaultBuffer is how far a subscriber may lag before events are dropped
// for it.
const DefaultBuffer = 16

// TypedBus delivers events of type T to every subscriber. A slow subscriber
// loses events instead of blocking the publisher.
type TypedBus[T any] struct {
	mu     sync.RWMutex
	subs   map[<-chan T]chan T
	buffer int
	closed bool
}

// NewTyped creates a bus with the given per subscriber buffer.
func NewTyped[T any](buffer int) *TypedBus[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &TypedBus[T]{subs: map[<-chan T]chan T{}, buffer: buffer}
}

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

// Subscribe returns a new channel. It is closed straight away once the bus
// is closed.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = ch
	return ch
}

// Unsubscribe closes the channel. Unknown channels are ignored.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(ch)
	}
}

// Close closes every subscriber. Publishing afterwards is a no-op.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for k, ch := range b.subs {
		close(ch)
		delete(b.subs, k)
	}
}

// Listen subscribes before returning and calls fn from a goroutine for each
// event until ctx is done or the bus is closed.
func Listen[T any](ctx context.Context, s Subscriber[T], fn func(T)) {
	sub := s.Subscribe()
	go func() {
		defer s.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}()
}
