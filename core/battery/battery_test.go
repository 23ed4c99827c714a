package battery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexplan/core/model"
)

func TestPercentile(t *testing.T) {
	v, ok := Percentile([]float64{4, 1, 3, 2}, 50)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	v, _ = Percentile([]float64{4, 1, 3, 2}, 100)
	assert.Equal(t, 4.0, v)
	v, _ = Percentile([]float64{4, 1, 3, 2}, 0)
	assert.Equal(t, 1.0, v)
	_, ok = Percentile(nil, 30)
	assert.False(t, ok)
}

func TestResolveThresholdsFallsBackToHorizon(t *testing.T) {
	th, ok := ResolveThresholds(nil, []float64{1, 2, 3, 4}, 0, 100)
	require.True(t, ok)
	assert.Equal(t, "horizon", th.Source)
	assert.Equal(t, 1.0, th.Charge)
	assert.Equal(t, 4.0, th.Discharge)

	th, ok = ResolveThresholds([]float64{5, 6}, []float64{1, 2}, 0, 100)
	require.True(t, ok)
	assert.Equal(t, "history", th.Source)
	assert.Equal(t, 5.0, th.Charge)

	_, ok = ResolveThresholds(nil, nil, 30, 70)
	assert.False(t, ok)
}

func TestSelectCandidates(t *testing.T) {
	prices := []float64{1, 3, 2.5, 5}
	sel := SelectCandidates(prices, Thresholds{Charge: 1.5, Discharge: 4.5}, 1)
	assert.Equal(t, []int{0}, sel.Charge)
	assert.Equal(t, []int{1, 2, 3}, sel.Discharge)

	sel = SelectCandidates(prices, Thresholds{Charge: 1.5, Discharge: 4.5}, 0)
	assert.Equal(t, []int{0}, sel.Charge)
	assert.Equal(t, []int{3}, sel.Discharge)

	sel = SelectCandidates([]float64{2, 2, 4}, Thresholds{Charge: 0, Discharge: 10}, 1)
	assert.Equal(t, []int{0, 1}, sel.Charge)
	assert.Equal(t, []int{2}, sel.Discharge)
}

func socPtr(v float64) *float64 { return &v }

func baseInput(soc float64) Input {
	return Input{
		State: model.BatteryState{
			CapacityKWh:  10,
			ChargeRateKW: 4,
			MinSOC:       20,
			MaxSOC:       80,
			SOC:          socPtr(soc),
		},
		SlotDuration: 15 * time.Minute,
		Prices:       []float64{0.10, 0.11, 0.12, 0.13, 0.50, 0.60, 0.70, 0.80, 0.90},
	}
}

func TestLimiterRespectsSOCBounds(t *testing.T) {
	in := baseInput(50)
	in.Candidates = Selection{Charge: []int{0, 1, 2, 3}, Discharge: []int{4, 5, 6, 7, 8}}
	l := NewLimiter()
	got := l.Limit(in)
	assert.Equal(t, []int{0, 1, 2}, got.Charge)
	assert.Equal(t, []int{4, 5, 6, 7, 8}, got.Discharge)

	for slot, soc := range l.Trajectory(in, got) {
		assert.GreaterOrEqual(t, soc, 20-1e-9, "slot %d", slot)
		assert.LessOrEqual(t, soc, 80+1e-9, "slot %d", slot)
	}
}

func TestLimiterChargeBuffer(t *testing.T) {
	in := baseInput(20)
	in.Candidates = Selection{Charge: []int{0, 1, 2, 3}, Discharge: []int{8}}
	got := NewLimiter().Limit(in)
	assert.Equal(t, []int{0}, got.Charge)
	assert.Equal(t, []int{8}, got.Discharge)
}

func TestLimiterChargesUntilFullWithoutDischarge(t *testing.T) {
	in := baseInput(50)
	in.Candidates = Selection{Charge: []int{0, 1, 2, 3, 4, 5}}
	got := NewLimiter().Limit(in)
	assert.Equal(t, []int{0, 1, 2}, got.Charge)
	assert.Empty(t, got.Discharge)
}

func TestLimiterPreservesPastSlots(t *testing.T) {
	in := baseInput(50)
	in.CurrentSlot = 2
	in.Candidates = Selection{Charge: []int{0, 1, 3, 5}, Discharge: []int{1, 5}}
	got := NewLimiter().Limit(in)
	assert.Equal(t, []int{0, 1, 3}, got.Charge)
	assert.Equal(t, []int{1, 5}, got.Discharge)
}

func TestLimiterUsageHints(t *testing.T) {
	in := baseInput(50)
	in.Candidates = Selection{Discharge: []int{4, 5}}
	in.UsageHints = map[int]float64{4: 0}
	got := NewLimiter().Limit(in)
	assert.Empty(t, got.Charge)
	assert.Equal(t, []int{5}, got.Discharge)
}

func TestLimiterUnknownBattery(t *testing.T) {
	in := baseInput(50)
	in.State.CapacityKWh = 0
	in.Candidates = Selection{Charge: []int{1}, Discharge: []int{4}}
	got := NewLimiter().Limit(in)
	assert.Empty(t, got.Charge)
	assert.Empty(t, got.Discharge)
}

func TestLimiterUnknownSOCStartsEmpty(t *testing.T) {
	in := baseInput(0)
	in.State.SOC = nil
	in.Candidates = Selection{Discharge: []int{8}}
	got := NewLimiter().Limit(in)
	assert.Empty(t, got.Discharge)
}

func TestLimiterLowSOC(t *testing.T) {
	state := model.BatteryState{
		CapacityKWh:  10,
		ChargeRateKW: 3.3,
		MinSOC:       10,
		MaxSOC:       90,
		SOC:          socPtr(15),
	}
	cases := []struct {
		name          string
		prices        []float64
		candidates    Selection
		wantCharge    []int
		wantDischarge []int
	}{
		{
			name:          "discharges before any charge",
			prices:        []float64{0.5, 0.6, 0.7, 0.1, 0.1, 0.1, 0.1, 0.1},
			candidates:    Selection{Charge: []int{3, 4, 5, 6, 7}, Discharge: []int{0, 1, 2}},
			wantDischarge: []int{2},
		},
		{
			name:          "charges before the discharges",
			prices:        []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.5, 0.6, 0.7},
			candidates:    Selection{Charge: []int{0, 1, 2, 3, 4}, Discharge: []int{5, 6, 7}},
			wantCharge:    []int{0, 1, 2},
			wantDischarge: []int{5, 6, 7},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := Input{
				Candidates:   tc.candidates,
				State:        state,
				SlotDuration: 15 * time.Minute,
				Prices:       tc.prices,
			}
			l := NewLimiter()
			got := l.Limit(in)
			assert.Equal(t, tc.wantCharge, got.Charge)
			assert.Equal(t, tc.wantDischarge, got.Discharge)
			for slot, soc := range l.Trajectory(in, got) {
				assert.GreaterOrEqual(t, soc, 10-1e-9, "slot %d", slot)
				assert.LessOrEqual(t, soc, 90+1e-9, "slot %d", slot)
			}
		})
	}
}
