package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/flexplan/core/events"
	"github.com/kilianp07/flexplan/core/logger"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

// Request identifies an executed action for verification.
type Request struct {
	Device     string
	Kind       model.ActionKind
	Transition model.Transition
	Set        model.ActionSet
	Vars       Vars
}

// Registrar schedules follow up checks for an executed action.
type Registrar interface {
	Register(ctx context.Context, req Request)
}

// Executor runs the action set bound to a device transition and hands it
// to the verifier.
type Executor struct {
	runner   *Runner
	devices  map[string]model.Device
	verifier Registrar
	metrics  coremetrics.MetricsSink
	bus      eventbus.EventBus
	log      logger.Logger
}

// NewExecutor creates an Executor. verifier may be nil to skip checks and
// bus may be nil to skip events.
func NewExecutor(runner *Runner, devices []model.Device, verifier Registrar, sink coremetrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) *Executor {
	idx := make(map[string]model.Device, len(devices))
	for _, d := range devices {
		idx[d.Name] = d
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Executor{runner: runner, devices: idx, verifier: verifier, metrics: sink, bus: bus, log: log}
}

// Device returns the configuration of a device.
func (e *Executor) Device(name string) (model.Device, bool) {
	d, ok := e.devices[name]
	return d, ok
}

// Execute runs the actions of a device transition. Unknown devices and
// transitions without actions are reported as errors without side effects.
func (e *Executor) Execute(ctx context.Context, device string, kind model.ActionKind, tr model.Transition) error {
	d, ok := e.devices[device]
	if !ok {
		return fmt.Errorf("unknown device %s", device)
	}
	set, ok := d.Actions(kind, tr)
	if !ok {
		return fmt.Errorf("device %s has no %s %s actions", device, kind, tr)
	}
	err := e.runner.Run(ctx, set, nil)
	e.report(device, kind, tr, err)
	if e.verifier != nil {
		e.verifier.Register(ctx, Request{Device: device, Kind: kind, Transition: tr, Set: set})
	}
	return err
}

func (e *Executor) report(device string, kind model.ActionKind, tr model.Transition, err error) {
	ev := coremetrics.ActionEvent{Device: device, Kind: kind, Transition: tr, Success: err == nil, Time: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		e.log.Warnf("%s %s %s failed: %v", device, kind, tr, err)
	} else {
		e.log.Infof("%s %s %s executed", device, kind, tr)
	}
	if rec, ok := e.metrics.(coremetrics.ActionRecorder); ok {
		_ = rec.RecordAction(ev)
	}
	if e.bus != nil {
		e.bus.Publish(events.ActionEvent{Device: device, Kind: kind, Transition: tr, Err: err})
	}
}
