// Package eventbus fans planner, executor and verifier events out to the
// components that react to them without coupling the producers to them.
package eventbus

// Event is any value published on the shared bus.
type Event any

// Subscriber is the receiving side of a bus.
type Subscriber[T any] interface {
	Subscribe() <-chan T
	Unsubscribe(<-chan T)
}

// EventBus is the untyped bus shared by the service components.
type EventBus interface {
	Subscriber[Event]
	Publish(Event)
	Close()
}

// Bus is the EventBus implementation.
type Bus = TypedBus[Event]

// New creates a Bus whose subscribers buffer DefaultBuffer events.
func New() *Bus { return NewTyped[Event](DefaultBuffer) }
