package loadwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexplan/core/actions"
	"github.com/kilianp07/flexplan/core/events"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/infra/logger"
	"github.com/kilianp07/flexplan/internal/eventbus"
)

func watts(v float64) *float64 { return &v }

func TestAllocatorDeadband(t *testing.T) {
	a := NewAllocator()
	limits, changed := a.Allocate(80, []Consumer{{Name: "ev", MaxWatts: 11000, Reading: watts(5000)}})
	assert.False(t, changed)
	assert.Nil(t, limits)
}

func TestAllocatorDistributesSurplusByPriority(t *testing.T) {
	a := NewAllocator()
	consumers := []Consumer{
		{Name: "idle", Priority: 3, MaxWatts: 4000, Reading: watts(0)},
		{Name: "second", Priority: 2, MaxWatts: 5000, Reading: watts(1000)},
		{Name: "first", Priority: 1, MaxWatts: 3000, Reading: watts(2000)},
		{Name: "offline", Priority: 0, MaxWatts: 3000},
	}
	limits, changed := a.Allocate(1500, consumers)
	require.True(t, changed)
	assert.Equal(t, map[string]float64{"first": 3000, "second": 1500}, limits)
}

func TestAllocatorShedsLowestPriorityFirst(t *testing.T) {
	a := NewAllocator()
	consumers := []Consumer{
		{Name: "first", Priority: 1, MaxWatts: 3000, Reading: watts(2000)},
		{Name: "second", Priority: 2, MaxWatts: 5000, Reading: watts(1000)},
		{Name: "idle", Priority: 3, MaxWatts: 4000, Reading: watts(0)},
	}
	limits, changed := a.Allocate(-2500, consumers)
	require.True(t, changed)
	assert.Equal(t, map[string]float64{"idle": 4000, "second": 0, "first": 500}, limits)
}

func TestAllocatorTable(t *testing.T) {
	cases := []struct {
		name      string
		available float64
		consumers []Consumer
		want      map[string]float64
	}{
		{
			name:      "surplus skips idle device and tops up the charging one",
			available: 2500,
			consumers: []Consumer{
				{Name: "p1", Priority: 1, MaxWatts: 3500, Reading: watts(0)},
				{Name: "p2", Priority: 2, MaxWatts: 7400, Reading: watts(1000)},
			},
			want: map[string]float64{"p1": 3500, "p2": 3500},
		},
		{
			name:      "surplus with reading above max passes nothing on",
			available: 1000,
			consumers: []Consumer{
				{Name: "p1", Priority: 1, MaxWatts: 7400, Reading: watts(9000)},
				{Name: "p2", Priority: 2, MaxWatts: 5000, Reading: watts(1000)},
			},
			want: map[string]float64{"p1": 7400, "p2": 2000},
		},
		{
			name:      "small excess with reading above max",
			available: -200,
			consumers: []Consumer{
				{Name: "p1", Priority: 1, MaxWatts: 7400, Reading: watts(9000)},
			},
			want: map[string]float64{"p1": 7200},
		},
		{
			name:      "large excess with reading above max",
			available: -8000,
			consumers: []Consumer{
				{Name: "p1", Priority: 1, MaxWatts: 7400, Reading: watts(9000)},
			},
			want: map[string]float64{"p1": 0},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limits, changed := NewAllocator().Allocate(tc.available, tc.consumers)
			require.True(t, changed)
			assert.Equal(t, tc.want, limits)
		})
	}
}

func TestAllocatorLimitsStayWithinMax(t *testing.T) {
	a := NewAllocator()
	for _, available := range []float64{-12000, -3000, -150, 150, 2500, 12000} {
		for _, reading := range []float64{0, 500, 3000, 7400, 9000, 15000} {
			consumers := []Consumer{
				{Name: "wallbox", Priority: 1, MaxWatts: 7400, Reading: watts(reading)},
				{Name: "heater", Priority: 2, MaxWatts: 3000, Reading: watts(reading / 2)},
				{Name: "battery", Priority: 3, MaxWatts: 5000, Sign: model.SignNegative, Reading: watts(-reading)},
			}
			limits, _ := a.Allocate(available, consumers)
			for _, c := range consumers {
				l, ok := limits[c.Name]
				if !ok {
					continue
				}
				assert.GreaterOrEqual(t, l, 0.0, "%s available=%v reading=%v", c.Name, available, reading)
				assert.LessOrEqual(t, l, c.MaxWatts, "%s available=%v reading=%v", c.Name, available, reading)
			}
		}
	}
}

func TestAllocatorNegativeChargeSign(t *testing.T) {
	a := NewAllocator()
	c := Consumer{Name: "bat", MaxWatts: 5000, Sign: model.SignNegative, Reading: watts(-2000)}
	charging, power := a.Charging(c)
	assert.True(t, charging)
	assert.Equal(t, 2000.0, power)

	c.Reading = watts(1500)
	charging, _ = a.Charging(c)
	assert.False(t, charging)
}

func TestPhaseControllerDelaysReturnToThreePhase(t *testing.T) {
	p := NewPhaseController(0, 0)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	phase, sw := p.Decide("ev", 3000, now)
	require.True(t, sw)
	assert.Equal(t, PhaseSingle, phase)
	p.Record("ev", phase, now)

	_, sw = p.Decide("ev", 6000, now.Add(2*time.Minute))
	assert.False(t, sw)

	phase, sw = p.Decide("ev", 6000, now.Add(6*time.Minute))
	assert.True(t, sw)
	assert.Equal(t, PhaseThree, phase)

	vars := p.LimitVars(2300)
	assert.Equal(t, 10.0, vars["limit_amps"])
	assert.Equal(t, true, vars["single_phase"])
}

func TestPeakCalculator(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewPeakCalculator(15 * time.Minute)
	p.Add(base, 100)
	_, ok := p.Peak(base)
	assert.False(t, ok)

	p.Add(base.Add(5*time.Minute), 100.5)
	p.Add(base.Add(10*time.Minute), 101)
	kw, ok := p.Peak(base.Add(10 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 6.0, kw, 1e-9)
}

func TestPeakCalculatorUsesPreviousSlotReading(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewPeakCalculator(15 * time.Minute)
	p.Add(base.Add(-5*time.Minute), 100)
	p.Add(base.Add(2*time.Minute), 100.5)
	kw, ok := p.Peak(base.Add(2 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 0.5*60/7, kw, 1e-9)
}

func TestPeakCalculatorPrunesOldReadings(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewPeakCalculator(15 * time.Minute)
	p.Add(base, 1)
	p.Add(base.Add(2*time.Hour), 2)
	assert.Len(t, p.readings, 1)
}

type fakeReader struct {
	mu     sync.Mutex
	values map[string]float64
}

func (f *fakeReader) set(entity string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[entity] = v
}

func (f *fakeReader) ReadFloat(_ context.Context, entity string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[entity]
	if !ok {
		return 0, actions.ErrStateUnavailable
	}
	return v, nil
}

type appliedRun struct {
	set  model.ActionSet
	vars actions.Vars
}

type fakeApplier struct {
	runs []appliedRun
}

func (f *fakeApplier) Run(_ context.Context, set model.ActionSet, vars actions.Vars) error {
	f.runs = append(f.runs, appliedRun{set: set, vars: vars})
	return nil
}

func charger() model.Device {
	return model.Device{
		Name: "wallbox",
		Type: model.DeviceEV,
		LoadManagement: &model.LoadManagement{
			Enabled:        true,
			LoadEntity:     "sensor.wallbox_power",
			Unit:           "W",
			Priority:       1,
			MaxWatts:       11000,
			ChargeSign:     model.SignPositive,
			PhaseSwitching: true,
			Actions: model.LimitActions{
				SwitchToSinglePhase: model.ActionSet{Entity: []model.EntityAction{{Service: "select/select_option", EntityID: "select.wallbox_phases", Option: "1"}}},
				SwitchToThreePhase:  model.ActionSet{Entity: []model.EntityAction{{Service: "select/select_option", EntityID: "select.wallbox_phases", Option: "3"}}},
				ApplyLimit:          model.ActionSet{Entity: []model.EntityAction{{Service: "number/set_value", EntityID: "number.wallbox_limit", Value: "{{ .limit_watts }}"}}},
			},
		},
	}
}

func TestWatcherStepShedsLoad(t *testing.T) {
	ctx := context.Background()
	reader := &fakeReader{values: map[string]float64{"sensor.energy": 100, "sensor.wallbox_power": 5000}}
	applier := &fakeApplier{}
	store := repository.NewStore(repository.NewMemoryRepository())
	bus := eventbus.New()
	sub := bus.Subscribe()
	defer bus.Close()

	devices := []model.Device{charger(), {Name: "boiler", Type: model.DeviceHotWater}}
	w := newWatcher(Config{EnergyEntity: "sensor.energy", MaxPeakKW: 7.5}, reader, applier, store, devices, nil, bus, logger.NopLogger{})
	assert.Equal(t, []string{"wallbox"}, w.Managed())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rep, err := w.Step(ctx, base)
	require.NoError(t, err)
	assert.False(t, rep.Changed)

	reader.set("sensor.energy", 100.75)
	rep, err = w.Step(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	require.True(t, rep.Changed)
	assert.InDelta(t, 9.0, rep.PeakKW, 1e-9)
	assert.InDelta(t, -1500.0, rep.AvailableW, 1e-6)
	assert.InDelta(t, 3500.0, rep.Limits["wallbox"], 1e-6)

	require.Len(t, applier.runs, 2)
	assert.Equal(t, "1", applier.runs[0].set.Entity[0].Option)
	assert.Equal(t, 3500.0, applier.runs[1].vars["limit_watts"])
	assert.Equal(t, PhaseSingle, w.phases.Current("wallbox"))

	var doc Limitations
	found, err := store.Get(ctx, LimitationsKey, &doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 3500.0, doc.Limits["wallbox"], 1e-6)
	assert.Equal(t, PhaseSingle, doc.Phases["wallbox"].Current)

	select {
	case ev := <-sub:
		_, ok := ev.(events.LimitEvent)
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no limit event published")
	}
}

func TestWatcherStepMeterUnavailable(t *testing.T) {
	reader := &fakeReader{values: map[string]float64{}}
	w := newWatcher(Config{EnergyEntity: "sensor.energy"}, reader, &fakeApplier{}, nil, []model.Device{charger()}, nil, nil, logger.NopLogger{})
	_, err := w.Step(context.Background(), time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, actions.ErrStateUnavailable))
}

func TestWatcherRestoresPhases(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(repository.NewMemoryRepository())
	require.NoError(t, store.Save(ctx, LimitationsKey, Limitations{Phases: map[string]PhaseState{"wallbox": {Current: PhaseSingle}}}))

	reader := &fakeReader{values: map[string]float64{"sensor.energy": 1}}
	w := newWatcher(Config{EnergyEntity: "sensor.energy"}, reader, &fakeApplier{}, store, []model.Device{charger()}, nil, nil, logger.NopLogger{})
	_, err := w.Step(ctx, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PhaseSingle, w.phases.Current("wallbox"))
}
