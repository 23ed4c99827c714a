package loadwatch

import (
	"sync"
	"time"
)

// DefaultMaxPeakKW is the default household peak ceiling.
const DefaultMaxPeakKW = 7.5

const readingRetention = time.Hour

type energyReading struct {
	at  time.Time
	kWh float64
}

// PeakCalculator derives the average power of the running slot from a
// cumulative energy meter.
type PeakCalculator struct {
	mu       sync.Mutex
	slot     time.Duration
	readings []energyReading
}

// NewPeakCalculator creates a calculator for slots of the given length.
func NewPeakCalculator(slot time.Duration) *PeakCalculator {
	if slot <= 0 {
		slot = 15 * time.Minute
	}
	return &PeakCalculator{slot: slot}
}

// Add records a meter reading in kWh and drops readings older than an hour.
func (p *PeakCalculator) Add(at time.Time, kWh float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = append(p.readings, energyReading{at: at, kWh: kWh})
	cutoff := at.Add(-readingRetention)
	i := 0
	for i < len(p.readings) && p.readings[i].at.Before(cutoff) {
		i++
	}
	p.readings = p.readings[i:]
}

// Peak returns the average power in kW since the start of the slot
// containing now. With a single reading in the slot the previous reading is
// used as reference. It returns false without enough readings.
func (p *PeakCalculator) Peak(now time.Time) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slotStart := now.Truncate(p.slot)
	first := -1
	for i, r := range p.readings {
		if !r.at.Before(slotStart) && !r.at.After(now) {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, false
	}
	last := first
	for i := first; i < len(p.readings) && !p.readings[i].at.After(now); i++ {
		last = i
	}
	from, to := p.readings[first], p.readings[last]
	if first == last {
		if first == 0 {
			return 0, false
		}
		from = p.readings[first-1]
	}
	minutes := to.at.Sub(from.at).Minutes()
	if minutes <= 0 {
		return 0, false
	}
	return (to.kWh - from.kWh) * 60 / minutes, true
}
