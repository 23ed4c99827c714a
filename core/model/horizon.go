package model

import (
	"errors"
	"time"
)

// DefaultSlotDuration is the horizon granularity used when none is configured.
const DefaultSlotDuration = 15 * time.Minute

// PriceHorizon is the forward price signal split into equal slots.
type PriceHorizon struct {
	Start        time.Time     `json:"start"`
	SlotDuration time.Duration `json:"slot_duration"`
	Prices       []float64     `json:"prices"`
	// LockEndSlot is the first slot index outside the lock window.
	LockEndSlot int `json:"lock_end_slot"`
}

// Len returns the number of slots in the horizon.
func (h PriceHorizon) Len() int { return len(h.Prices) }

// End returns the instant right after the last slot.
func (h PriceHorizon) End() time.Time {
	return h.SlotTime(len(h.Prices))
}

// SlotTime returns the start instant of slot i.
func (h PriceHorizon) SlotTime(i int) time.Time {
	return h.Start.Add(time.Duration(i) * h.SlotDuration)
}

// SlotIndex returns the index of the slot containing t. The result is
// negative for instants before the horizon and may exceed Len.
func (h PriceHorizon) SlotIndex(t time.Time) int {
	if h.SlotDuration <= 0 {
		return 0
	}
	d := t.Sub(h.Start)
	idx := int(d / h.SlotDuration)
	if d < 0 && d%h.SlotDuration != 0 {
		idx--
	}
	return idx
}

// LockEnd returns the instant at which the lock window closes.
func (h PriceHorizon) LockEnd() time.Time {
	return h.SlotTime(h.LockEndSlot)
}

// Expired reports whether now lies after the last slot.
func (h PriceHorizon) Expired(now time.Time) bool {
	return !now.Before(h.End())
}

// Validate checks that the horizon can be planned on.
func (h PriceHorizon) Validate() error {
	if h.SlotDuration <= 0 {
		return errors.New("slot duration must be positive")
	}
	if len(h.Prices) == 0 {
		return errors.New("horizon has no prices")
	}
	if h.LockEndSlot < 0 {
		return errors.New("lock end slot must not be negative")
	}
	return nil
}

// SlotsFor converts a duration into a whole number of slots, rounding down.
func SlotsFor(d, slot time.Duration) int {
	if slot <= 0 || d <= 0 {
		return 0
	}
	return int(d / slot)
}
