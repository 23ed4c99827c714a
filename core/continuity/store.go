// Package continuity keeps the run history of thermal devices between
// planning runs so a new horizon honours what was promised earlier.
package continuity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/flexplan/core/logger"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/repository"
)

// DefaultInitialGap is assumed when a device has never run.
const DefaultInitialGap = 4 * time.Hour

// record is the persisted form. Timestamps stay strings so a corrupt value
// only invalidates itself.
type record struct {
	LastRunEnd   string   `json:"last_run_end,omitempty"`
	LockedStarts []string `json:"locked_starts,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

// Store reads and writes DeviceRuntimeState through a repository. Commit is
// the only writer of a device key.
type Store struct {
	repo       *repository.Store
	log        logger.Logger
	initialGap time.Duration
	now        func() time.Time
}

// NewStore creates a Store. A non positive initialGap selects DefaultInitialGap.
func NewStore(repo *repository.Store, initialGap time.Duration, log logger.Logger) *Store {
	if initialGap <= 0 {
		initialGap = DefaultInitialGap
	}
	return &Store{repo: repo, log: log, initialGap: initialGap, now: time.Now}
}

// Key returns the repository key of a device.
func Key(device string) string { return "continuity/" + device }

// State loads the runtime state of a device. Missing records yield the zero
// state and unparseable timestamps are dropped.
func (s *Store) State(ctx context.Context, device string) (model.DeviceRuntimeState, error) {
	var rec record
	found, err := s.repo.Get(ctx, Key(device), &rec)
	if err != nil {
		s.log.Warnf("continuity record for %s unreadable, ignoring: %v", device, err)
		return model.DeviceRuntimeState{}, nil
	}
	if !found {
		return model.DeviceRuntimeState{}, nil
	}
	return s.decode(device, rec), nil
}

func (s *Store) decode(device string, rec record) model.DeviceRuntimeState {
	var st model.DeviceRuntimeState
	if rec.LastRunEnd != "" {
		if t, err := time.Parse(time.RFC3339, rec.LastRunEnd); err == nil {
			st.LastRunEnd = &t
		} else {
			s.log.Warnf("continuity %s: bad last_run_end %q", device, rec.LastRunEnd)
		}
	}
	for _, raw := range rec.LockedStarts {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.log.Warnf("continuity %s: bad locked start %q", device, raw)
			continue
		}
		st.LockedStarts = append(st.LockedStarts, t)
	}
	return st
}

// InitialGap returns the number of slots since the device last ran, counted
// at the start of the horizon.
func (s *Store) InitialGap(st model.DeviceRuntimeState, h model.PriceHorizon) int {
	if st.LastRunEnd == nil {
		return model.SlotsFor(s.initialGap, h.SlotDuration)
	}
	if !st.LastRunEnd.Before(h.Start) {
		return 0
	}
	return model.SlotsFor(h.Start.Sub(*st.LastRunEnd), h.SlotDuration)
}

// LockedSlots maps the locked starts that fall inside the current lock
// window to slot indices.
func (s *Store) LockedSlots(st model.DeviceRuntimeState, h model.PriceHorizon) []int {
	lockEnd := h.LockEnd()
	seen := map[int]bool{}
	var out []int
	for _, t := range st.LockedStarts {
		if t.Before(h.Start) || !t.Before(lockEnd) {
			continue
		}
		idx := h.SlotIndex(t)
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// Commit records the outcome of a thermal run. The last run end is derived
// from the latest start and only starts inside the lock window are kept as
// locked. An empty selection keeps the previous last run end.
func (s *Store) Commit(ctx context.Context, device string, h model.PriceHorizon, starts []int, blockSlots int) (model.DeviceRuntimeState, error) {
	sorted := append([]int(nil), starts...)
	sort.Ints(sorted)

	rec, err := repository.Update(ctx, s.repo, Key(device), func(cur record, _ bool) (record, error) {
		next := record{LastRunEnd: cur.LastRunEnd, UpdatedAt: s.now().UTC().Format(time.RFC3339)}
		if n := len(sorted); n > 0 {
			next.LastRunEnd = h.SlotTime(sorted[n-1] + blockSlots).UTC().Format(time.RFC3339)
		}
		for _, idx := range sorted {
			if idx >= 0 && idx < h.LockEndSlot {
				next.LockedStarts = append(next.LockedStarts, h.SlotTime(idx).UTC().Format(time.RFC3339))
			}
		}
		return next, nil
	})
	if err != nil {
		return model.DeviceRuntimeState{}, fmt.Errorf("commit continuity for %s: %w", device, err)
	}
	return s.decode(device, rec), nil
}
