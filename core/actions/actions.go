// Package actions executes device commands and derives the state a command
// is expected to produce.
package actions

import (
	"context"
	"errors"
)

// ErrStateUnavailable is returned when the actual state of an entity or
// topic cannot be read.
var ErrStateUnavailable = errors.New("state unavailable")

// Actuator reads entity states and calls services on the home automation
// controller.
type Actuator interface {
	// State returns the state of entityID, or of one of its attributes when
	// attribute is not empty.
	State(ctx context.Context, entityID, attribute string) (string, error)
	CallService(ctx context.Context, service string, data map[string]any) error
}

// Publisher sends MQTT payloads and exposes the last value seen on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
	LastValue(topic string) (string, bool)
}

// Vars are the template variables available to action values.
type Vars map[string]any
