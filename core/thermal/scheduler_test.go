package thermal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexplan/core/continuity"
	coremetrics "github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/infra/logger"
)

type planSink struct {
	coremetrics.NopSink
	events []coremetrics.PlanEvent
}

func (p *planSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func dayHorizon() model.PriceHorizon {
	prices := make([]float64, 96)
	for i := range prices {
		prices[i] = 0.30
		if i%24 >= 8 && i%24 < 12 {
			prices[i] = 0.05
		}
	}
	return model.PriceHorizon{
		Start:        time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
		SlotDuration: 15 * time.Minute,
		Prices:       prices,
		LockEndSlot:  8,
	}
}

func TestSchedulerSolvesAndCommits(t *testing.T) {
	store := continuity.NewStore(repository.NewStore(repository.NewMemoryRepository()), 0, logger.NopLogger{})
	sink := &planSink{}
	s := NewScheduler(DPSolver{}, store, sink, logger.NopLogger{})
	h := dayHorizon()
	dev := model.Device{Name: "wp", Type: model.DeviceHeatPump}

	out := s.Schedule(context.Background(), dev, h)
	require.True(t, out.OK(), "status %s err %v", out.Status, out.Err)
	require.NotEmpty(t, out.Value.Starts)
	assert.Equal(t, 4, out.Value.Block)

	st, err := store.State(context.Background(), "wp")
	require.NoError(t, err)
	p := ProblemFor(model.DefaultThermalParams(model.DeviceHeatPump), h, model.DeviceRuntimeState{}, store)
	require.NoError(t, Verify(p, out.Value.Starts))
	last := out.Value.Starts[len(out.Value.Starts)-1]
	require.NotNil(t, st.LastRunEnd)
	assert.True(t, st.LastRunEnd.Equal(h.SlotTime(last+4)))
	for _, ls := range st.LockedStarts {
		assert.True(t, ls.Before(h.LockEnd()))
	}
	require.Len(t, sink.events, 1)
	assert.Equal(t, model.StatusOK, sink.events[0].Status)
}

func TestSchedulerInfeasibleKeepsLocks(t *testing.T) {
	repo := repository.NewStore(repository.NewMemoryRepository())
	store := continuity.NewStore(repo, 0, logger.NopLogger{})
	h := dayHorizon()
	_, err := store.Commit(context.Background(), "hw", h, []int{0, 2}, 1)
	require.NoError(t, err)

	s := NewScheduler(DPSolver{}, store, nil, logger.NopLogger{})
	out := s.Schedule(context.Background(), model.Device{Name: "hw", Type: model.DeviceHotWater}, h)
	assert.Equal(t, model.StatusInfeasible, out.Status)
	assert.True(t, errors.Is(out.Err, ErrInfeasible))
	assert.Equal(t, []int{0, 2}, out.Value.Starts)
}

func TestSchedulerEmptyHorizon(t *testing.T) {
	store := continuity.NewStore(repository.NewStore(repository.NewMemoryRepository()), 0, logger.NopLogger{})
	s := NewScheduler(DPSolver{}, store, nil, logger.NopLogger{})
	out := s.Schedule(context.Background(), model.Device{Name: "wp", Type: model.DeviceHeatPump}, model.PriceHorizon{SlotDuration: time.Minute})
	assert.Equal(t, model.StatusDataUnavailable, out.Status)
	assert.Error(t, out.Err)
}
