package loadwatch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/flexplan/core/actions"
	"github.com/kilianp07/flexplan/core/events"
	"github.com/kilianp07/flexplan/core/logger"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

// LimitationsKey is the repository key of the persisted limits.
const LimitationsKey = "device_limitations"

// Config configures a Watcher.
type Config struct {
	EnergyEntity    string
	MaxPeakKW       float64
	Deadband        float64
	ChargeThreshold float64
	PhaseThreshold  float64
	PhaseDelay      time.Duration
	Slot            time.Duration
}

// Limitations is the persisted outcome of the last pass.
type Limitations struct {
	UpdatedAt  time.Time             `json:"updated_at"`
	PeakKW     float64               `json:"peak_kw"`
	AvailableW float64               `json:"available_w"`
	Limits     map[string]float64    `json:"limits"`
	Phases     map[string]PhaseState `json:"phases,omitempty"`
}

// Report describes one pass.
type Report struct {
	PeakKW     float64
	AvailableW float64
	Limits     map[string]float64
	Changed    bool
}

// Reader reads numeric entity states.
type Reader interface {
	ReadFloat(ctx context.Context, entityID string) (float64, error)
}

// Applier issues limit and phase commands.
type Applier interface {
	Run(ctx context.Context, set model.ActionSet, vars actions.Vars) error
}

// Watcher runs load watcher passes.
type Watcher struct {
	cfg       Config
	reader    Reader
	applier   Applier
	store     *repository.Store
	devices   []model.Device
	allocator Allocator
	phases    *PhaseController
	peak      *PeakCalculator
	metrics   coremetrics.MetricsSink
	bus       eventbus.EventBus
	log       logger.Logger

	restore sync.Once
}

// NewWatcher creates a Watcher over the devices with load management
// enabled. runner is used both to read loads and to apply limits.
func NewWatcher(cfg Config, runner *actions.Runner, store *repository.Store, devices []model.Device, sink coremetrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) *Watcher {
	return newWatcher(cfg, runner, runner, store, devices, sink, bus, log)
}

func newWatcher(cfg Config, reader Reader, applier Applier, store *repository.Store, devices []model.Device, sink coremetrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) *Watcher {
	if cfg.MaxPeakKW <= 0 {
		cfg.MaxPeakKW = DefaultMaxPeakKW
	}
	if cfg.Deadband <= 0 {
		cfg.Deadband = DefaultDeadband
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	var managed []model.Device
	for _, d := range devices {
		if d.LoadManagement != nil && d.LoadManagement.Enabled {
			managed = append(managed, d)
		}
	}
	return &Watcher{
		cfg:       cfg,
		reader:    reader,
		applier:   applier,
		store:     store,
		devices:   managed,
		allocator: Allocator{Deadband: cfg.Deadband, ChargeThreshold: cfg.ChargeThreshold},
		phases:    NewPhaseController(cfg.PhaseThreshold, cfg.PhaseDelay),
		peak:      NewPeakCalculator(cfg.Slot),
		metrics:   sink,
		bus:       bus,
		log:       log,
	}
}

// Managed returns the names of the devices under load management.
func (w *Watcher) Managed() []string {
	out := make([]string, 0, len(w.devices))
	for _, d := range w.devices {
		out = append(out, d.Name)
	}
	return out
}

// Step runs one pass at now.
func (w *Watcher) Step(ctx context.Context, now time.Time) (Report, error) {
	w.restore.Do(func() { w.restorePhases(ctx) })

	kWh, err := w.reader.ReadFloat(ctx, w.cfg.EnergyEntity)
	if err != nil {
		return Report{}, fmt.Errorf("energy meter: %w", err)
	}
	w.peak.Add(now, kWh)
	peak, ok := w.peak.Peak(now)
	if !ok {
		w.log.Debugf("not enough energy readings for a peak estimate")
		return Report{}, nil
	}
	rep := Report{PeakKW: peak, AvailableW: (w.cfg.MaxPeakKW - peak) * 1000}

	consumers := w.readConsumers(ctx)
	limits, changed := w.allocator.Allocate(rep.AvailableW, consumers)
	if !changed {
		w.log.Debugw("available power within deadband", map[string]any{"available_w": rep.AvailableW, "peak_kw": peak})
		return rep, nil
	}
	rep.Limits = limits
	rep.Changed = true

	w.apply(ctx, limits, now)
	if err := w.persist(ctx, rep, now); err != nil {
		w.log.Errorf("save limitations: %v", err)
	}
	w.report(rep, now)
	return rep, nil
}

func (w *Watcher) readConsumers(ctx context.Context) []Consumer {
	out := make([]Consumer, 0, len(w.devices))
	for _, d := range w.devices {
		lm := d.LoadManagement
		c := Consumer{Name: d.Name, Priority: lm.Priority, MaxWatts: lm.MaxWatts, Sign: lm.ChargeSign}
		v, err := w.reader.ReadFloat(ctx, lm.LoadEntity)
		if err != nil {
			w.log.Warnf("load of %s unavailable: %v", d.Name, err)
		} else {
			if lm.Unit == "kW" {
				v *= 1000
			}
			c.Reading = &v
		}
		out = append(out, c)
	}
	return out
}

func (w *Watcher) apply(ctx context.Context, limits map[string]float64, now time.Time) {
	names := make([]string, 0, len(limits))
	for n := range limits {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		d, ok := w.device(name)
		if !ok {
			continue
		}
		limit := math.Round(limits[name])
		lm := d.LoadManagement
		if lm.PhaseSwitching {
			if phase, sw := w.phases.Decide(name, limit, now); sw {
				set := lm.Actions.SwitchToThreePhase
				if phase == PhaseSingle {
					set = lm.Actions.SwitchToSinglePhase
				}
				if err := w.applier.Run(ctx, set, nil); err != nil {
					w.log.Errorf("phase switch of %s failed: %v", name, err)
				} else {
					w.phases.Record(name, phase, now)
					w.log.Infof("%s switched to %s phase", name, phase)
				}
			}
		}
		if lm.Actions.ApplyLimit.Empty() {
			continue
		}
		if err := w.applier.Run(ctx, lm.Actions.ApplyLimit, w.phases.LimitVars(limit)); err != nil {
			w.log.Errorf("apply limit %.0f W to %s failed: %v", limit, name, err)
		}
	}
}

func (w *Watcher) device(name string) (model.Device, bool) {
	for _, d := range w.devices {
		if d.Name == name {
			return d, true
		}
	}
	return model.Device{}, false
}

func (w *Watcher) persist(ctx context.Context, rep Report, now time.Time) error {
	if w.store == nil {
		return nil
	}
	_, err := repository.Update(ctx, w.store, LimitationsKey, func(cur Limitations, _ bool) (Limitations, error) {
		if cur.Limits == nil {
			cur.Limits = map[string]float64{}
		}
		for k, v := range rep.Limits {
			cur.Limits[k] = v
		}
		cur.UpdatedAt = now
		cur.PeakKW = rep.PeakKW
		cur.AvailableW = rep.AvailableW
		cur.Phases = w.phases.States()
		return cur, nil
	})
	return err
}

func (w *Watcher) restorePhases(ctx context.Context) {
	if w.store == nil {
		return
	}
	var doc Limitations
	found, err := w.store.Get(ctx, LimitationsKey, &doc)
	if err != nil {
		w.log.Warnf("read limitations: %v", err)
		return
	}
	if found {
		w.phases.Restore(doc.Phases)
	}
}

func (w *Watcher) report(rep Report, now time.Time) {
	if rec, ok := w.metrics.(coremetrics.LoadRecorder); ok {
		_ = rec.RecordLoad(coremetrics.LoadEvent{PeakKW: rep.PeakKW, AvailableW: rep.AvailableW, Limits: rep.Limits, Time: now})
	}
	if w.bus != nil {
		w.bus.Publish(events.LimitEvent{PeakKW: rep.PeakKW, AvailableW: rep.AvailableW, Limits: rep.Limits})
	}
}
