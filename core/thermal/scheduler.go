package thermal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/flexplan/core/continuity"
	"github.com/kilianp07/flexplan/core/logger"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
)

// Result is the selection made for one device.
type Result struct {
	Starts []int
	Block  int
	Cost   float64
}

// Scheduler plans thermal devices and keeps their continuity state.
type Scheduler struct {
	solver  Solver
	store   *continuity.Store
	metrics coremetrics.MetricsSink
	log     logger.Logger
}

// NewScheduler wires a solver to a continuity store. A nil sink disables
// metrics.
func NewScheduler(solver Solver, store *continuity.Store, sink coremetrics.MetricsSink, log logger.Logger) *Scheduler {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Scheduler{solver: solver, store: store, metrics: sink, log: log}
}

// ProblemFor builds the solver input of a device for the horizon.
func ProblemFor(params model.ThermalParams, h model.PriceHorizon, st model.DeviceRuntimeState, store *continuity.Store) Problem {
	block := model.SlotsFor(params.Block, h.SlotDuration)
	if block < 1 {
		block = 1
	}
	return Problem{
		Prices:     h.Prices,
		Block:      block,
		MinGap:     model.SlotsFor(params.MinGap, h.SlotDuration),
		MaxGap:     model.SlotsFor(params.MaxGap, h.SlotDuration),
		Locked:     store.LockedSlots(st, h),
		InitialGap: store.InitialGap(st, h),
	}
}

// Schedule solves a device over the horizon and commits the selection to the
// continuity store. Conflicting constraints yield an Infeasible outcome that
// keeps only the locked starts.
func (s *Scheduler) Schedule(ctx context.Context, dev model.Device, h model.PriceHorizon) model.Outcome[Result] {
	if err := h.Validate(); err != nil {
		return model.DataUnavailable[Result](err)
	}
	params := model.DefaultThermalParams(dev.Type)
	if dev.Thermal != nil {
		params = *dev.Thermal
	}
	st, err := s.store.State(ctx, dev.Name)
	if err != nil {
		return model.DataUnavailable[Result](fmt.Errorf("continuity %s: %w", dev.Name, err))
	}
	p := ProblemFor(params, h, st, s.store)
	if err := p.Validate(); err != nil {
		return model.DataUnavailable[Result](fmt.Errorf("device %s: %w", dev.Name, err))
	}

	begin := time.Now()
	starts, err := s.solver.Solve(p)
	elapsed := time.Since(begin)

	var out model.Outcome[Result]
	switch {
	case err == nil:
		out = model.Ok(Result{Starts: starts, Block: p.Block, Cost: p.TotalCost(starts)})
	case errors.Is(err, ErrInfeasible):
		locked := p.ValidLocks()
		if locked == nil {
			locked = []int{}
		}
		s.log.Warnf("thermal constraints for %s infeasible, keeping %d locked starts", dev.Name, len(locked))
		out = model.Infeasible(Result{Starts: locked, Block: p.Block, Cost: p.TotalCost(locked)}, err)
	default:
		return model.DataUnavailable[Result](fmt.Errorf("solve %s: %w", dev.Name, err))
	}

	if rec, ok := s.metrics.(coremetrics.SolverRecorder); ok {
		_ = rec.RecordSolver(coremetrics.SolverEvent{Solver: SolverName(s.solver), Status: out.Status, Duration: elapsed})
	}
	if _, err := s.store.Commit(ctx, dev.Name, h, out.Value.Starts, p.Block); err != nil {
		s.log.Errorf("%v", err)
	}
	_ = s.metrics.RecordPlan(coremetrics.PlanEvent{
		Device:   dev.Name,
		Kind:     model.KindRun,
		Status:   out.Status,
		Slots:    len(out.Value.Starts) * p.Block,
		Cost:     out.Value.Cost,
		Duration: elapsed,
		Time:     time.Now(),
	})
	s.log.Debugw("thermal schedule", map[string]any{
		"device": dev.Name,
		"starts": out.Value.Starts,
		"status": out.Status.String(),
	})
	return out
}
