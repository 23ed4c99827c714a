// Package planner produces the device schedule for a price horizon and keeps
// the battery part of it in line with the measured state of charge.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/flexplan/core/battery"
	"github.com/kilianp07/flexplan/core/events"
	"github.com/kilianp07/flexplan/core/ev"
	"github.com/kilianp07/flexplan/core/logger"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/prediction"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/core/thermal"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

var (
	// ErrNoPrices is returned when the price source has nothing to plan on.
	ErrNoPrices = errors.New("no prices available")
	// ErrNoPlan is returned by a battery re-solve without a stored plan.
	ErrNoPlan = errors.New("no plan stored")
	// ErrHorizonExpired is returned by a battery re-solve after the horizon.
	ErrHorizonExpired = errors.New("plan horizon expired")
)

// Default values of Config.
const (
	DefaultHistoryDays = 14
	DefaultFallbackSOC = 50.0
)

// PriceSource provides the price horizon to plan on.
type PriceSource interface {
	Horizon(ctx context.Context, now time.Time) (model.PriceHorizon, error)
}

// PriceHistory stores past prices for the battery thresholds.
type PriceHistory interface {
	Record(ctx context.Context, h model.PriceHorizon) error
	Prices(ctx context.Context, since time.Time) ([]float64, error)
}

// Archive keeps every saved plan.
type Archive interface {
	Append(ctx context.Context, plan model.Plan) error
}

// SOCReader reads the state of charge entity of a battery.
type SOCReader interface {
	ReadFloat(ctx context.Context, entityID string) (float64, error)
}

// Config holds the planning parameters.
type Config struct {
	HistoryDays         int
	ChargePercentile    float64
	DischargePercentile float64
	PriceDiff           float64
	ChargeBuffer        float64
	DischargeBuffer     float64
	EVMaxPrice          float64
	// FallbackSOC is used when a SOC entity is configured but unreadable.
	FallbackSOC float64
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HistoryDays <= 0 {
		c.HistoryDays = DefaultHistoryDays
	}
	if c.ChargePercentile == 0 {
		c.ChargePercentile = battery.DefaultChargePercentile
	}
	if c.DischargePercentile == 0 {
		c.DischargePercentile = battery.DefaultDischargePercentile
	}
	if c.PriceDiff == 0 {
		c.PriceDiff = battery.DefaultPriceDiff
	}
	if c.ChargeBuffer == 0 {
		c.ChargeBuffer = battery.DefaultChargeBuffer
	}
	if c.DischargeBuffer == 0 {
		c.DischargeBuffer = battery.DefaultDischargeBuffer
	}
	if c.EVMaxPrice == 0 {
		c.EVMaxPrice = ev.DefaultMaxPrice
	}
	if c.FallbackSOC == 0 {
		c.FallbackSOC = DefaultFallbackSOC
	}
}

// Deps are the collaborators of an Optimizer. Thermal, Prices and Store are
// required; the others may be nil.
type Deps struct {
	Prices    PriceSource
	History   PriceHistory
	Thermal   *thermal.Scheduler
	SOC       SOCReader
	Predictor prediction.UsagePredictor
	Store     *repository.Store
	Archive   Archive
	Metrics   coremetrics.MetricsSink
	Bus       eventbus.EventBus
	Now       func() time.Time
}

// Optimizer builds and persists plans.
type Optimizer struct {
	cfg     Config
	deps    Deps
	devices []model.Device
	limiter battery.Limiter
	log     logger.Logger
}

// New creates an Optimizer.
func New(cfg Config, devices []model.Device, deps Deps, log logger.Logger) (*Optimizer, error) {
	if deps.Prices == nil || deps.Thermal == nil || deps.Store == nil {
		return nil, fmt.Errorf("planner: prices, thermal scheduler and store are required")
	}
	cfg.SetDefaults()
	if deps.Predictor == nil {
		deps.Predictor = prediction.None{}
	}
	if deps.Metrics == nil {
		deps.Metrics = coremetrics.NopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Optimizer{
		cfg:     cfg,
		deps:    deps,
		devices: devices,
		limiter: battery.Limiter{ChargeBuffer: cfg.ChargeBuffer, DischargeBuffer: cfg.DischargeBuffer},
		log:     log,
	}, nil
}

// Current returns the stored plan.
func (o *Optimizer) Current(ctx context.Context) (model.Plan, bool, error) {
	var p model.Plan
	found, err := o.deps.Store.Get(ctx, model.PlanKey, &p)
	return p, found, err
}

// Refresh plans every device over the current price horizon and replaces
// the stored plan. Without prices the stored plan is kept.
func (o *Optimizer) Refresh(ctx context.Context) model.Outcome[model.Plan] {
	now := o.deps.Now()
	h, err := o.deps.Prices.Horizon(ctx, now)
	if err == nil && h.Len() == 0 {
		err = ErrNoPrices
	}
	if err != nil {
		if !errors.Is(err, ErrNoPrices) {
			err = fmt.Errorf("%w: %v", ErrNoPrices, err)
		}
		o.log.Warnf("refresh skipped, keeping previous plan: %v", err)
		return model.DataUnavailable[model.Plan](err)
	}
	if err := h.Validate(); err != nil {
		return model.DataUnavailable[model.Plan](fmt.Errorf("%w: %v", ErrNoPrices, err))
	}
	if o.deps.History != nil {
		if err := o.deps.History.Record(ctx, h); err != nil {
			o.log.Warnf("record price history: %v", err)
		}
	}

	plan := model.Plan{
		Revision:          uuid.NewString(),
		HorizonStart:      h.Start,
		HorizonEnd:        h.End(),
		Prices:            h.Prices,
		SlotMinutes:       int(h.SlotDuration / time.Minute),
		LockEndSlot:       h.LockEndSlot,
		UpdatedAt:         now,
		BatteryThresholds: map[string]model.PriceThresholds{},
		Status:            map[string]string{},
	}
	current := max(h.SlotIndex(now), 0)

	var entries, planned []model.ScheduleEntry
	var infeasible []error
	for _, d := range o.devices {
		switch {
		case d.Type.Thermal():
			out := o.deps.Thermal.Schedule(ctx, d, h)
			plan.Status[d.Name] = out.Status.String()
			if out.Status == model.StatusDataUnavailable {
				o.log.Errorf("thermal %s: %v", d.Name, out.Err)
				continue
			}
			if out.Status == model.StatusInfeasible {
				infeasible = append(infeasible, out.Err)
			}
			entries = append(entries, model.EntriesFromSlots(d.Name, model.KindRun, h, out.Value.Starts, out.Value.Block)...)
		case d.Type == model.DeviceBattery:
			th, ok := o.thresholds(ctx, h, now)
			if !ok {
				plan.Status[d.Name] = model.StatusDataUnavailable.String()
				continue
			}
			plan.BatteryThresholds[d.Name] = th
			cand := battery.SelectCandidates(h.Prices, th, o.cfg.PriceDiff)
			planned = append(planned, batteryEntries(d.Name, h, cand)...)
			entries = append(entries, o.limitBattery(ctx, d, h, cand, current)...)
			plan.Status[d.Name] = model.StatusOK.String()
		case d.Type == model.DeviceEV:
			maxPrice := o.cfg.EVMaxPrice
			if d.EV != nil && d.EV.MaxPrice != 0 {
				maxPrice = d.EV.MaxPrice
			}
			slots := ev.SelectSlots(h.Prices, maxPrice)
			entries = append(entries, model.EntriesFromSlots(d.Name, model.KindCharge, h, slots, 1)...)
			plan.Status[d.Name] = model.StatusOK.String()
		}
	}
	plan.Entries = model.MergeSequential(entries)
	plan.PlannedBattery = model.MergeSequential(planned)

	if _, err := repository.Update(ctx, o.deps.Store, model.PlanKey, func(model.Plan, bool) (model.Plan, error) {
		return plan, nil
	}); err != nil {
		return model.DataUnavailable[model.Plan](fmt.Errorf("save plan: %w", err))
	}
	o.saved(ctx, plan, "refresh")

	if len(infeasible) > 0 {
		return model.Infeasible(plan, errors.Join(infeasible...))
	}
	return model.Ok(plan)
}

// ResolveBattery recomputes the battery entries of the stored plan from the
// planned candidates and the measured state of charge. Entries of other
// devices are kept.
func (o *Optimizer) ResolveBattery(ctx context.Context) model.Outcome[model.Plan] {
	now := o.deps.Now()
	plan, err := repository.Update(ctx, o.deps.Store, model.PlanKey, func(cur model.Plan, found bool) (model.Plan, error) {
		if !found || (cur.Empty() && len(cur.PlannedBattery) == 0) {
			return cur, ErrNoPlan
		}
		h := cur.Horizon()
		if h.Expired(now) {
			return cur, ErrHorizonExpired
		}
		current := max(h.SlotIndex(now), 0)

		batteries := map[string]model.Device{}
		for _, d := range o.devices {
			if d.Type == model.DeviceBattery {
				batteries[d.Name] = d
			}
		}
		var entries []model.ScheduleEntry
		for _, e := range cur.Entries {
			if _, ok := batteries[e.DeviceID]; !ok {
				entries = append(entries, e)
			}
		}
		for _, d := range o.devices {
			if d.Type != model.DeviceBattery {
				continue
			}
			cand := candidatesFrom(d.Name, h, cur.PlannedBattery)
			entries = append(entries, o.limitBattery(ctx, d, h, cand, current)...)
		}
		cur.Entries = model.MergeSequential(entries)
		cur.Revision = uuid.NewString()
		cur.UpdatedAt = now
		cur.LastSOCRecalc = &now
		return cur, nil
	})
	if err != nil {
		if errors.Is(err, ErrNoPlan) || errors.Is(err, ErrHorizonExpired) {
			o.log.Debugf("battery re-solve skipped: %v", err)
		} else {
			o.log.Errorf("battery re-solve: %v", err)
		}
		return model.DataUnavailable[model.Plan](err)
	}
	o.saved(ctx, plan, "battery")
	return model.Ok(plan)
}

func (o *Optimizer) thresholds(ctx context.Context, h model.PriceHorizon, now time.Time) (battery.Thresholds, bool) {
	var hist []float64
	if o.deps.History != nil {
		since := now.AddDate(0, 0, -o.cfg.HistoryDays)
		p, err := o.deps.History.Prices(ctx, since)
		if err != nil {
			o.log.Warnf("price history unavailable, using horizon: %v", err)
		}
		hist = p
	}
	return battery.ResolveThresholds(hist, h.Prices, o.cfg.ChargePercentile, o.cfg.DischargePercentile)
}

func (o *Optimizer) limitBattery(ctx context.Context, d model.Device, h model.PriceHorizon, cand battery.Selection, current int) []model.ScheduleEntry {
	in := battery.Input{
		Candidates:   cand,
		CurrentSlot:  current,
		State:        d.BatteryState(o.readSOC(ctx, d)),
		SlotDuration: h.SlotDuration,
		Prices:       h.Prices,
		UsageHints:   o.deps.Predictor.Hints(d.Name, h),
	}
	sel := o.limiter.Limit(in)
	o.log.Debugw("battery limited", map[string]any{
		"device":    d.Name,
		"charge":    len(sel.Charge),
		"discharge": len(sel.Discharge),
		"current":   current,
	})
	_ = o.deps.Metrics.RecordPlan(coremetrics.PlanEvent{Device: d.Name, Kind: model.KindCharge, Status: model.StatusOK, Slots: len(sel.Charge), Time: o.deps.Now()})
	_ = o.deps.Metrics.RecordPlan(coremetrics.PlanEvent{Device: d.Name, Kind: model.KindDischarge, Status: model.StatusOK, Slots: len(sel.Discharge), Time: o.deps.Now()})
	return batteryEntries(d.Name, h, sel)
}

func (o *Optimizer) readSOC(ctx context.Context, d model.Device) *float64 {
	if d.Battery == nil || d.Battery.SOCEntity == "" || o.deps.SOC == nil {
		return nil
	}
	v, err := o.deps.SOC.ReadFloat(ctx, d.Battery.SOCEntity)
	if err != nil {
		o.log.Warnf("soc of %s unavailable, assuming %.0f%%: %v", d.Name, o.cfg.FallbackSOC, err)
		v = o.cfg.FallbackSOC
	}
	return &v
}

func (o *Optimizer) saved(ctx context.Context, plan model.Plan, reason string) {
	if o.deps.Archive != nil {
		if err := o.deps.Archive.Append(ctx, plan); err != nil {
			o.log.Warnf("archive plan %s: %v", plan.Revision, err)
		}
	}
	o.log.Infof("plan %s saved (%s): %d entries", plan.Revision, reason, len(plan.Entries))
	if o.deps.Bus != nil {
		o.deps.Bus.Publish(events.PlanEvent{
			Revision: plan.Revision,
			Reason:   reason,
			Entries:  len(plan.Entries),
			Status:   model.StatusOK,
			Time:     plan.UpdatedAt,
		})
	}
}

func batteryEntries(device string, h model.PriceHorizon, sel battery.Selection) []model.ScheduleEntry {
	out := model.EntriesFromSlots(device, model.KindCharge, h, sel.Charge, 1)
	return append(out, model.EntriesFromSlots(device, model.KindDischarge, h, sel.Discharge, 1)...)
}

// candidatesFrom expands the planned entries of a device back into slots.
func candidatesFrom(device string, h model.PriceHorizon, planned []model.ScheduleEntry) battery.Selection {
	var sel battery.Selection
	for _, e := range planned {
		if e.DeviceID != device {
			continue
		}
		for t := e.Start; t.Before(e.Stop); t = t.Add(h.SlotDuration) {
			s := h.SlotIndex(t)
			if s < 0 || s >= h.Len() {
				continue
			}
			switch e.Kind {
			case model.KindCharge:
				sel.Charge = append(sel.Charge, s)
			case model.KindDischarge:
				sel.Discharge = append(sel.Discharge, s)
			}
		}
	}
	return sel
}
