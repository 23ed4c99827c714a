package verifier

import (
	"context"
	"sort"
	"time"

	"github.com/kilianp07/flexplan/core/actions"
	"github.com/kilianp07/flexplan/core/model"
)

// Summary counts the results of a reconciliation pass.
type Summary struct {
	Checked   int
	Matched   int
	Corrected int
	Skipped   int
}

type target struct {
	device string
	kind   model.ActionKind
}

// Expected derives for each device and kind of the plan whether it should
// currently be started or stopped.
func Expected(entries []model.ScheduleEntry, now time.Time) map[target]model.Transition {
	out := map[target]model.Transition{}
	for _, e := range entries {
		key := target{device: e.DeviceID, kind: e.Kind}
		if e.Active(now) {
			out[key] = model.TransitionStart
			continue
		}
		if _, ok := out[key]; !ok {
			out[key] = model.TransitionStop
		}
	}
	return out
}

// Reconcile compares every planned device with the state the plan implies
// at now. Mismatches are corrected and registered for follow up checks.
// Devices without configuration or actions count as matched.
func (v *Verifier) Reconcile(ctx context.Context, plan model.Plan, devices Devices, now time.Time) Summary {
	expected := Expected(plan.Entries, now)
	keys := make([]target, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].device != keys[j].device {
			return keys[i].device < keys[j].device
		}
		return keys[i].kind < keys[j].kind
	})

	var sum Summary
	for _, k := range keys {
		if ctx.Err() != nil {
			break
		}
		tr := expected[k]
		dev, ok := devices.Device(k.device)
		if !ok {
			sum.Skipped++
			continue
		}
		set, ok := dev.Actions(k.kind, tr)
		if !ok {
			sum.Skipped++
			continue
		}
		sum.Checked++
		matched, err := v.checker.Check(ctx, set, nil)
		if err != nil {
			v.log.Warnf("reconcile %s %s: %v", k.device, k.kind, err)
		}
		if matched {
			sum.Matched++
			continue
		}
		v.log.Infof("reconcile: %s %s should be %s, correcting", k.device, k.kind, tr)
		if err := v.checker.Run(ctx, set, nil); err != nil {
			v.log.Errorf("reconcile %s: %v", k.device, err)
		}
		v.Register(ctx, actions.Request{Device: k.device, Kind: k.kind, Transition: tr, Set: set})
		sum.Corrected++
	}
	return sum
}
