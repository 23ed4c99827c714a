package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/flexplan/core/logger"
	"github.com/kilianp07/flexplan/core/model"
)

// Runner executes action sets without verification.
type Runner struct {
	actuator  Actuator
	publisher Publisher
	log       logger.Logger
}

// NewRunner creates a Runner. When publisher is nil MQTT actions are sent
// through the actuator's mqtt/publish service.
func NewRunner(actuator Actuator, publisher Publisher, log logger.Logger) *Runner {
	return &Runner{actuator: actuator, publisher: publisher, log: log}
}

// Run executes every action of the set. A failing action does not stop the
// remaining ones; all errors are returned joined.
func (r *Runner) Run(ctx context.Context, set model.ActionSet, vars Vars) error {
	var errs []error
	for _, a := range set.MQTT {
		if err := r.publish(ctx, a, vars); err != nil {
			r.log.Errorf("mqtt action %s failed: %v", a.Topic, err)
			errs = append(errs, err)
		}
	}
	for _, a := range set.Entity {
		if err := r.call(ctx, a, vars); err != nil {
			r.log.Errorf("entity action %s on %s failed: %v", a.Service, a.EntityID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) publish(ctx context.Context, a model.MQTTAction, vars Vars) error {
	payload, err := Render(a.Payload, vars)
	if err != nil {
		return err
	}
	if r.publisher != nil {
		return r.publisher.Publish(ctx, a.Topic, payload)
	}
	if r.actuator == nil {
		return fmt.Errorf("no mqtt transport for %s", a.Topic)
	}
	return r.actuator.CallService(ctx, "mqtt/publish", map[string]any{"topic": a.Topic, "payload": payload})
}

func (r *Runner) call(ctx context.Context, a model.EntityAction, vars Vars) error {
	if r.actuator == nil {
		return fmt.Errorf("no actuator for %s", a.EntityID)
	}
	if a.Service == "" {
		return fmt.Errorf("entity action on %s without service", a.EntityID)
	}
	data := make(map[string]any, len(a.Data)+3)
	for k, v := range a.Data {
		if s, ok := v.(string); ok {
			rendered, err := Render(s, vars)
			if err != nil {
				return err
			}
			v = rendered
		}
		data[k] = v
	}
	if a.EntityID != "" {
		data["entity_id"] = a.EntityID
	}
	for key, raw := range map[string]string{"value": a.Value, "option": a.Option} {
		if raw == "" {
			continue
		}
		v, err := Render(raw, vars)
		if err != nil {
			return err
		}
		data[key] = v
	}
	return r.actuator.CallService(ctx, a.Service, data)
}

// Check reads the actual state of every action target and compares it with
// the expected value. Actions without an expected value are skipped. An
// unreadable state counts as a mismatch.
func (r *Runner) Check(ctx context.Context, set model.ActionSet, vars Vars) (bool, error) {
	for _, a := range set.MQTT {
		want, ok := ExpectedMQTTValue(a)
		if !ok {
			continue
		}
		want, err := Render(want, vars)
		if err != nil {
			return false, err
		}
		got, err := r.readTopic(ctx, StateTopic(a))
		if err != nil {
			return false, err
		}
		if !PayloadsMatch(want, got) {
			r.log.Debugw("mqtt state mismatch", map[string]any{"topic": a.Topic, "want": want, "got": got})
			return false, nil
		}
	}
	for _, a := range set.Entity {
		want, ok := ExpectedEntityValue(a)
		if !ok {
			continue
		}
		want, err := Render(want, vars)
		if err != nil {
			return false, err
		}
		if r.actuator == nil {
			return false, ErrStateUnavailable
		}
		got, err := r.actuator.State(ctx, a.EntityID, a.StateAttribute)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrStateUnavailable, a.EntityID, err)
		}
		if !ValuesMatch(want, got) {
			r.log.Debugw("entity state mismatch", map[string]any{"entity": a.EntityID, "want": want, "got": got})
			return false, nil
		}
	}
	return true, nil
}

func (r *Runner) readTopic(ctx context.Context, topic string) (string, error) {
	if r.publisher != nil {
		if v, ok := r.publisher.LastValue(topic); ok {
			return v, nil
		}
	}
	if r.actuator == nil {
		return "", fmt.Errorf("%w: %s", ErrStateUnavailable, topic)
	}
	v, err := r.actuator.State(ctx, FallbackSensor(topic), "")
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStateUnavailable, topic, err)
	}
	return v, nil
}

// ReadFloat reads a numeric entity state.
func (r *Runner) ReadFloat(ctx context.Context, entityID string) (float64, error) {
	if r.actuator == nil {
		return 0, ErrStateUnavailable
	}
	s, err := r.actuator.State(ctx, entityID, "")
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrStateUnavailable, entityID, err)
	}
	f, err := toFloat(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrStateUnavailable, entityID, s)
	}
	return f, nil
}
