package model

import "time"

// PlanKey is the repository key of the current plan.
const PlanKey = "schedule"

// PriceThresholds are the battery charge and discharge price levels.
type PriceThresholds struct {
	Charge    float64 `json:"charge"`
	Discharge float64 `json:"discharge"`
	// Source is "history" or "horizon".
	Source string `json:"source"`
}

// Plan is the persisted result of the optimiser.
type Plan struct {
	Revision string          `json:"revision"`
	Entries  []ScheduleEntry `json:"schedule"`
	// PlannedBattery holds the battery candidates before limiting. The
	// battery re-solve starts from these entries.
	PlannedBattery    []ScheduleEntry            `json:"planned_battery_schedule,omitempty"`
	HorizonStart      time.Time                  `json:"horizon_start"`
	HorizonEnd        time.Time                  `json:"horizon_end"`
	Prices            []float64                  `json:"prices"`
	SlotMinutes       int                        `json:"slot_minutes"`
	LockEndSlot       int                        `json:"lock_end_slot"`
	UpdatedAt         time.Time                  `json:"updated_at"`
	BatteryThresholds map[string]PriceThresholds `json:"battery_price_thresholds,omitempty"`
	LastSOCRecalc     *time.Time                 `json:"last_soc_recalc,omitempty"`
	// Status maps a device to the status of its last planning step.
	Status map[string]string `json:"status,omitempty"`
}

// Horizon rebuilds the price horizon the plan was computed on.
func (p Plan) Horizon() PriceHorizon {
	slot := time.Duration(p.SlotMinutes) * time.Minute
	if slot <= 0 {
		slot = DefaultSlotDuration
	}
	return PriceHorizon{Start: p.HorizonStart, SlotDuration: slot, Prices: p.Prices, LockEndSlot: p.LockEndSlot}
}

// Empty reports whether the plan holds no entries.
func (p Plan) Empty() bool { return len(p.Entries) == 0 }
