package battery

import (
	"sort"
	"time"

	"github.com/kilianp07/flexplan/core/model"
)

// Default buffers in percent.
const (
	DefaultChargeBuffer    = 20
	DefaultDischargeBuffer = 20
)

// feasibleShare is the minimum fraction of a slot's energy that must fit in
// the SOC bounds for the slot to be usable.
const feasibleShare = 0.1

// Input is one limiter run.
type Input struct {
	Candidates   Selection
	CurrentSlot  int
	State        model.BatteryState
	SlotDuration time.Duration
	// Prices orders candidates. Without prices discharges are taken in time
	// order.
	Prices []float64
	// UsageHints is the expected consumption in kWh per slot. A hint caps the
	// energy discharged in that slot.
	UsageHints map[int]float64
}

// Limiter reduces candidate slots to a subset the battery can physically
// follow without cycling more than necessary.
type Limiter struct {
	// ChargeBuffer is how much more energy, in percent, may be charged than
	// discharged once discharging is planned.
	ChargeBuffer float64
	// DischargeBuffer reduces usage hints, in percent.
	DischargeBuffer float64
}

// NewLimiter returns a Limiter with the default buffers.
func NewLimiter() Limiter {
	return Limiter{ChargeBuffer: DefaultChargeBuffer, DischargeBuffer: DefaultDischargeBuffer}
}

type op struct {
	slot   int
	charge bool
}

type simulation struct {
	feasible   bool
	charged    float64
	discharged float64
	finalSOC   float64
}

// Limit returns the slots to use. Slots before CurrentSlot are returned
// unchanged; later slots are selected greedily, most expensive discharges
// first and cheapest charges first, while the simulated SOC stays within
// bounds.
func (l Limiter) Limit(in Input) Selection {
	var out Selection
	discharge := map[int]bool{}
	var futureDischarge []int
	for _, s := range in.Candidates.Discharge {
		if s < in.CurrentSlot {
			out.Discharge = append(out.Discharge, s)
			continue
		}
		if !discharge[s] {
			discharge[s] = true
			futureDischarge = append(futureDischarge, s)
		}
	}
	seenCharge := map[int]bool{}
	var futureCharge []int
	for _, s := range in.Candidates.Charge {
		if s < in.CurrentSlot {
			out.Charge = append(out.Charge, s)
			continue
		}
		if discharge[s] || seenCharge[s] {
			continue
		}
		seenCharge[s] = true
		futureCharge = append(futureCharge, s)
	}

	if in.State.CapacityKWh > 0 && in.SlotDuration > 0 {
		ch, dis := l.selectFuture(in, futureCharge, futureDischarge)
		out.Charge = append(out.Charge, ch...)
		out.Discharge = append(out.Discharge, dis...)
	}
	sort.Ints(out.Charge)
	sort.Ints(out.Discharge)
	return out
}

func (l Limiter) selectFuture(in Input, charge, discharge []int) ([]int, []int) {
	price := func(s int) float64 {
		if s >= 0 && s < len(in.Prices) {
			return in.Prices[s]
		}
		return 0
	}
	sort.Ints(discharge)
	if len(in.Prices) > 0 {
		sort.SliceStable(discharge, func(i, j int) bool { return price(discharge[i]) > price(discharge[j]) })
	}
	sort.Ints(charge)
	sort.SliceStable(charge, func(i, j int) bool { return price(charge[i]) < price(charge[j]) })

	selected := map[int]bool{}
	isCharge := map[int]bool{}
	tryDischarges := func() {
		for _, s := range discharge {
			if selected[s] {
				continue
			}
			selected[s] = true
			if !l.simulate(in, selected, isCharge).feasible {
				delete(selected, s)
			}
		}
	}

	tryDischarges()
	for _, s := range charge {
		selected[s] = true
		isCharge[s] = true
		sim := l.simulate(in, selected, isCharge)
		ok := sim.feasible
		if ok && sim.discharged > 0 && sim.charged > sim.discharged*(1+l.ChargeBuffer/100) {
			ok = false
		}
		if !ok {
			delete(selected, s)
			delete(isCharge, s)
			continue
		}
		tryDischarges()
	}

	var ch, dis []int
	for s := range selected {
		if isCharge[s] {
			ch = append(ch, s)
		} else {
			dis = append(dis, s)
		}
	}
	return ch, dis
}

// simulate walks the selected slots in time order and tracks the SOC.
func (l Limiter) simulate(in Input, selected, isCharge map[int]bool) simulation {
	slots := make([]int, 0, len(selected))
	for s := range selected {
		slots = append(slots, s)
	}
	sort.Ints(slots)

	st := in.State
	capacity := st.CapacityKWh
	hours := in.SlotDuration.Hours()
	chargeEnergy := st.ChargeRateKW * hours
	dischargeRate := st.DischargeRateKW
	if dischargeRate <= 0 {
		dischargeRate = st.ChargeRateKW
	}
	dischargeEnergy := dischargeRate * hours
	scale := 1 - l.DischargeBuffer/100

	soc := st.SOCOr(0)
	res := simulation{feasible: true}
	for _, s := range slots {
		if isCharge[s] {
			headroom := capacity * (st.MaxSOC - soc) / 100
			if headroom < feasibleShare*chargeEnergy {
				res.feasible = false
				break
			}
			e := min(chargeEnergy, headroom)
			soc += e / capacity * 100
			res.charged += e
			continue
		}
		want := dischargeEnergy
		if hint, ok := in.UsageHints[s]; ok {
			want = min(want, hint*scale)
		}
		available := capacity * (soc - st.MinSOC) / 100
		if want <= 0 || available < feasibleShare*want {
			res.feasible = false
			break
		}
		e := min(want, available)
		soc -= e / capacity * 100
		res.discharged += e
	}
	res.finalSOC = soc
	return res
}

// Trajectory returns the SOC after each selected slot in time order. It is
// used to check a selection against the battery bounds.
func (l Limiter) Trajectory(in Input, sel Selection) map[int]float64 {
	selected := map[int]bool{}
	isCharge := map[int]bool{}
	for _, s := range sel.Discharge {
		if s >= in.CurrentSlot {
			selected[s] = true
		}
	}
	for _, s := range sel.Charge {
		if s >= in.CurrentSlot {
			selected[s] = true
			isCharge[s] = true
		}
	}
	out := map[int]float64{}
	slots := make([]int, 0, len(selected))
	for s := range selected {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	for i := range slots {
		prefix := map[int]bool{}
		for _, s := range slots[:i+1] {
			prefix[s] = true
		}
		out[slots[i]] = l.simulate(in, prefix, isCharge).finalSOC
	}
	return out
}
