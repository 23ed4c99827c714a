// Package loadwatch keeps the household below a peak power ceiling by
// redistributing charging limits across load managed devices.
package loadwatch

import (
	"math"
	"sort"

	"github.com/kilianp07/flexplan/core/model"
)

// Defaults of the allocator.
const (
	DefaultDeadband = 100.0 // W
	DefaultPriority = 999
)

// Consumer is a load managed device with its latest reading.
type Consumer struct {
	Name     string
	Priority int
	MaxWatts float64
	Sign     model.ChargeSign
	// Reading is the instantaneous load in W, nil when unavailable.
	Reading *float64
}

// Allocator redistributes available power across consumers.
type Allocator struct {
	Deadband float64
	// ChargeThreshold is the load above which a consumer counts as charging.
	ChargeThreshold float64
}

// NewAllocator returns an Allocator with the default deadband.
func NewAllocator() Allocator {
	return Allocator{Deadband: DefaultDeadband}
}

// Charging reports whether c is drawing power and how much.
func (a Allocator) Charging(c Consumer) (bool, float64) {
	if c.Reading == nil {
		return false, 0
	}
	r := *c.Reading
	if c.Sign == model.SignNegative {
		if r < -a.ChargeThreshold {
			return true, math.Abs(r)
		}
		return false, 0
	}
	if r > a.ChargeThreshold {
		return true, r
	}
	return false, 0
}

// Allocate returns new limits in W, each within [0, MaxWatts]. A positive available value lets
// charging consumers grow in ascending priority order; a negative value
// sheds load in descending priority order. Consumers not charging are set
// to their maximum and consumers without reading are left alone. The second
// result is false when available lies within the deadband.
func (a Allocator) Allocate(available float64, consumers []Consumer) (map[string]float64, bool) {
	if math.Abs(available) <= a.Deadband {
		return nil, false
	}
	list := make([]Consumer, 0, len(consumers))
	for _, c := range consumers {
		if c.Reading != nil {
			list = append(list, c)
		}
	}
	limits := make(map[string]float64, len(list))
	if available > 0 {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
		remaining := available
		for _, c := range list {
			charging, power := a.Charging(c)
			if !charging {
				limits[c.Name] = c.MaxWatts
				continue
			}
			p := math.Min(power, c.MaxWatts)
			want := p + remaining
			if want > c.MaxWatts {
				limits[c.Name] = c.MaxWatts
				remaining -= c.MaxWatts - p
			} else {
				limits[c.Name] = want
				remaining = 0
			}
			if remaining <= 0 {
				break
			}
		}
		return limits, true
	}

	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
	excess := math.Abs(available)
	for _, c := range list {
		charging, power := a.Charging(c)
		if !charging || power <= 0 {
			limits[c.Name] = c.MaxWatts
			continue
		}
		p := math.Min(power, c.MaxWatts)
		want := p - excess
		if want < 0 {
			limits[c.Name] = 0
			excess -= power
		} else {
			limits[c.Name] = clamp(want, c.MaxWatts)
			excess = 0
		}
		if excess <= 0 {
			break
		}
	}
	return limits, true
}

func clamp(w, hi float64) float64 {
	return math.Min(math.Max(w, 0), hi)
}
