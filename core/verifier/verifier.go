// Package verifier checks that devices reached the state their last action
// asked for and repeats the action when they did not.
package verifier

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/flexplan/core/actions"
	"github.com/kilianp07/flexplan/core/events"
	"github.com/kilianp07/flexplan/core/logger"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/scheduler"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

// Defaults for the post action checks.
const (
	DefaultChecks   = 6
	DefaultInterval = 30 * time.Second
)

// Checker compares and re-applies action sets.
type Checker interface {
	Check(ctx context.Context, set model.ActionSet, vars actions.Vars) (bool, error)
	Run(ctx context.Context, set model.ActionSet, vars actions.Vars) error
}

// Devices resolves device configurations.
type Devices interface {
	Device(name string) (model.Device, bool)
}

// Config tunes the bounded re-checks.
type Config struct {
	Checks   int
	Interval time.Duration
}

type registration struct {
	id        string
	req       actions.Request
	remaining int
	timers    []scheduler.Stopper
	done      bool
}

// Pending describes an active registration.
type Pending struct {
	ID         string
	Device     string
	Kind       model.ActionKind
	Transition model.Transition
	Remaining  int
}

// Verifier schedules bounded state checks after each action.
type Verifier struct {
	mu      sync.Mutex
	active  map[string]*registration
	checker Checker
	timers  scheduler.Timers
	cfg     Config
	metrics coremetrics.MetricsSink
	bus     eventbus.EventBus
	log     logger.Logger
}

// New creates a Verifier. Zero config values select the defaults.
func New(checker Checker, timers scheduler.Timers, cfg Config, sink coremetrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) *Verifier {
	if cfg.Checks <= 0 {
		cfg.Checks = DefaultChecks
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if timers == nil {
		timers = scheduler.RealTimers{}
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Verifier{
		active:  map[string]*registration{},
		checker: checker,
		timers:  timers,
		cfg:     cfg,
		metrics: sink,
		bus:     bus,
		log:     log,
	}
}

func regKey(device string, kind model.ActionKind) string {
	return device + "/" + string(kind)
}

// Register schedules the checks of an executed action, replacing any
// registration still running for the same device and kind. Registrations
// are keyed by device and kind: a matching check only ends its own
// registration, so a battery's charge and discharge checks run side by side.
func (v *Verifier) Register(ctx context.Context, req actions.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if old, ok := v.active[regKey(req.Device, req.Kind)]; ok {
		v.stopLocked(old)
	}
	reg := &registration{id: uuid.NewString(), req: req, remaining: v.cfg.Checks}
	for i := 1; i <= v.cfg.Checks; i++ {
		n := i
		reg.timers = append(reg.timers, v.timers.AfterFunc(time.Duration(i)*v.cfg.Interval, func() {
			v.check(ctx, reg, n)
		}))
	}
	v.active[regKey(req.Device, req.Kind)] = reg
	v.log.Debugw("verification registered", map[string]any{
		"id":         reg.id,
		"device":     req.Device,
		"kind":       string(req.Kind),
		"transition": string(req.Transition),
		"checks":     v.cfg.Checks,
	})
}

// Cancel stops every check of a device.
func (v *Verifier) Cancel(device string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, reg := range v.active {
		if reg.req.Device == device {
			v.stopLocked(reg)
		}
	}
}

func (v *Verifier) stopLocked(reg *registration) {
	reg.done = true
	for _, t := range reg.timers {
		t.Stop()
	}
	key := regKey(reg.req.Device, reg.req.Kind)
	if cur, ok := v.active[key]; ok && cur == reg {
		delete(v.active, key)
	}
}

func (v *Verifier) check(ctx context.Context, reg *registration, n int) {
	v.mu.Lock()
	if reg.done {
		v.mu.Unlock()
		return
	}
	reg.remaining--
	last := reg.remaining <= 0
	v.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	matched, err := v.checker.Check(ctx, reg.req.Set, reg.req.Vars)
	if err != nil {
		v.log.Warnf("check %d/%d for %s: %v", n, v.cfg.Checks, reg.req.Device, err)
	}
	corrected := false
	if matched {
		v.log.Debugf("%s verified after %d checks", reg.req.Device, n)
		v.mu.Lock()
		v.stopLocked(reg)
		v.mu.Unlock()
	} else {
		v.log.Warnf("%s state mismatch on check %d/%d, re-executing %s %s", reg.req.Device, n, v.cfg.Checks, reg.req.Kind, reg.req.Transition)
		if rerr := v.checker.Run(ctx, reg.req.Set, reg.req.Vars); rerr != nil {
			v.log.Errorf("re-executing %s: %v", reg.req.Device, rerr)
		}
		corrected = true
		if last {
			v.mu.Lock()
			v.stopLocked(reg)
			v.mu.Unlock()
		}
	}
	v.report(reg.req.Device, n, matched, corrected, err)
}

func (v *Verifier) report(device string, n int, matched, corrected bool, err error) {
	if rec, ok := v.metrics.(coremetrics.VerificationRecorder); ok {
		_ = rec.RecordVerification(coremetrics.VerificationEvent{Device: device, Check: n, Matched: matched, Corrected: corrected, Time: v.timers.Now()})
	}
	if v.bus != nil {
		v.bus.Publish(events.VerificationEvent{Device: device, Check: n, Matched: matched, Corrected: corrected, Err: err})
	}
}

// Status lists the running registrations ordered by device and kind.
func (v *Verifier) Status() []Pending {
	v.mu.Lock()
	out := make([]Pending, 0, len(v.active))
	for _, reg := range v.active {
		out = append(out, Pending{
			ID:         reg.id,
			Device:     reg.req.Device,
			Kind:       reg.req.Kind,
			Transition: reg.req.Transition,
			Remaining:  reg.remaining,
		})
	}
	v.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Device != out[j].Device {
			return out[i].Device < out[j].Device
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
