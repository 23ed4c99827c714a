package actions

import (
	"context"
	"errors"
	"sync"
)

type call struct {
	Service string
	Data    map[string]any
}

type fakeActuator struct {
	mu     sync.Mutex
	states map[string]string
	calls  []call
	fail   map[string]error
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{states: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeActuator) State(_ context.Context, entity, attr string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entity
	if attr != "" {
		key += "#" + attr
	}
	v, ok := f.states[key]
	if !ok {
		return "", errors.New("unknown entity")
	}
	return v, nil
}

func (f *fakeActuator) CallService(_ context.Context, service string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Service: service, Data: data})
	return f.fail[service]
}

type fakePublisher struct {
	published map[string]string
	retained  map[string]string
}

func (p *fakePublisher) Publish(_ context.Context, topic, payload string) error {
	if p.published == nil {
		p.published = map[string]string{}
	}
	p.published[topic] = payload
	return nil
}

func (p *fakePublisher) LastValue(topic string) (string, bool) {
	v, ok := p.retained[topic]
	return v, ok
}
