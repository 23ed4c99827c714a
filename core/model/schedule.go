package model

import (
	"fmt"
	"sort"
	"time"
)

// ActionKind identifies what a schedule entry makes a device do.
type ActionKind string

const (
	KindRun       ActionKind = "run"
	KindCharge    ActionKind = "charge"
	KindDischarge ActionKind = "discharge"
)

// Transition is the edge of a schedule entry an action is bound to.
type Transition string

const (
	TransitionStart Transition = "start"
	TransitionStop  Transition = "stop"
)

// ScheduleEntry is one contiguous run of a device.
type ScheduleEntry struct {
	DeviceID string     `json:"device"`
	Kind     ActionKind `json:"kind"`
	Start    time.Time  `json:"start"`
	Stop     time.Time  `json:"stop"`
}

// Validate checks that the entry describes a non empty interval.
func (e ScheduleEntry) Validate() error {
	if e.DeviceID == "" {
		return fmt.Errorf("schedule entry without device")
	}
	if !e.Stop.After(e.Start) {
		return fmt.Errorf("schedule entry %s: stop %s not after start %s", e.DeviceID, e.Stop, e.Start)
	}
	return nil
}

// Active reports whether now falls within [Start, Stop).
func (e ScheduleEntry) Active(now time.Time) bool {
	return !now.Before(e.Start) && now.Before(e.Stop)
}

// EntriesFromSlots turns slot starts into entries of blockSlots slots each.
func EntriesFromSlots(device string, kind ActionKind, h PriceHorizon, slots []int, blockSlots int) []ScheduleEntry {
	if blockSlots < 1 {
		blockSlots = 1
	}
	out := make([]ScheduleEntry, 0, len(slots))
	for _, s := range slots {
		out = append(out, ScheduleEntry{
			DeviceID: device,
			Kind:     kind,
			Start:    h.SlotTime(s),
			Stop:     h.SlotTime(s + blockSlots),
		})
	}
	return out
}

// MergeSequential coalesces touching or overlapping entries of the same
// device and kind. The result is sorted by device, kind and start time and
// merging it again returns the same entries.
func MergeSequential(entries []ScheduleEntry) []ScheduleEntry {
	sorted := make([]ScheduleEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Start.Before(b.Start)
	})
	out := make([]ScheduleEntry, 0, len(sorted))
	for _, e := range sorted {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.DeviceID == e.DeviceID && last.Kind == e.Kind && !e.Start.After(last.Stop) {
				if e.Stop.After(last.Stop) {
					last.Stop = e.Stop
				}
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
