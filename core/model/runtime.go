package model

import "time"

// DeviceRuntimeState is the continuity information kept per thermal device
// between planning runs.
type DeviceRuntimeState struct {
	LastRunEnd   *time.Time  `json:"last_run_end,omitempty"`
	LockedStarts []time.Time `json:"locked_starts,omitempty"`
}

// BatteryState is the physical state of a battery read before each solve.
type BatteryState struct {
	CapacityKWh     float64
	ChargeRateKW    float64
	DischargeRateKW float64
	MinSOC          float64 // percent
	MaxSOC          float64 // percent
	SOC             *float64
}

// SOCOr returns the current SOC or def when it is unknown.
func (b BatteryState) SOCOr(def float64) float64 {
	if b.SOC == nil {
		return def
	}
	return *b.SOC
}
