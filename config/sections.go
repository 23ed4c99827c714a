package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/flexplan/core/battery"
	"github.com/kilianp07/flexplan/core/continuity"
	"github.com/kilianp07/flexplan/core/ev"
	"github.com/kilianp07/flexplan/core/loadwatch"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/planner"
	"github.com/kilianp07/flexplan/core/verifier"
)

// HorizonConfig sets the slot granularity and the lock window.
type HorizonConfig struct {
	SlotMinutes int `json:"slot_minutes"`
	LockMinutes int `json:"lock_minutes"`
	// InitialGap is assumed for thermal devices without run history.
	InitialGap time.Duration `json:"initial_gap"`
}

func (c *HorizonConfig) SetDefaults() {
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = int(model.DefaultSlotDuration / time.Minute)
	}
	if c.LockMinutes <= 0 {
		c.LockMinutes = 120
	}
	if c.InitialGap <= 0 {
		c.InitialGap = continuity.DefaultInitialGap
	}
}

func (c HorizonConfig) Validate() error {
	if c.SlotMinutes <= 0 {
		return fmt.Errorf("horizon.slot_minutes must be positive")
	}
	if c.LockMinutes%c.SlotMinutes != 0 {
		return fmt.Errorf("horizon.lock_minutes must be a multiple of slot_minutes")
	}
	return nil
}

// Slot returns the slot duration.
func (c HorizonConfig) Slot() time.Duration { return time.Duration(c.SlotMinutes) * time.Minute }

// BatteryConfig tunes the price thresholds and SOC buffers.
type BatteryConfig struct {
	HistoryDays         int     `json:"history_days"`
	ChargePercentile    float64 `json:"charge_percentile"`
	DischargePercentile float64 `json:"discharge_percentile"`
	PriceDiff           float64 `json:"price_diff"`
	ChargeBuffer        float64 `json:"charge_buffer"`
	DischargeBuffer     float64 `json:"discharge_buffer"`
	FallbackSOC         float64 `json:"fallback_soc"`
}

func (c *BatteryConfig) SetDefaults() {
	if c.HistoryDays <= 0 {
		c.HistoryDays = planner.DefaultHistoryDays
	}
	if c.ChargePercentile == 0 {
		c.ChargePercentile = battery.DefaultChargePercentile
	}
	if c.DischargePercentile == 0 {
		c.DischargePercentile = battery.DefaultDischargePercentile
	}
	if c.PriceDiff == 0 {
		c.PriceDiff = battery.DefaultPriceDiff
	}
	if c.ChargeBuffer == 0 {
		c.ChargeBuffer = battery.DefaultChargeBuffer
	}
	if c.DischargeBuffer == 0 {
		c.DischargeBuffer = battery.DefaultDischargeBuffer
	}
	if c.FallbackSOC == 0 {
		c.FallbackSOC = planner.DefaultFallbackSOC
	}
}

func (c BatteryConfig) Validate() error {
	if c.ChargePercentile <= 0 || c.ChargePercentile >= 100 || c.DischargePercentile <= 0 || c.DischargePercentile >= 100 {
		return fmt.Errorf("battery percentiles must be within (0, 100)")
	}
	if c.ChargePercentile >= c.DischargePercentile {
		return fmt.Errorf("battery.charge_percentile must be below discharge_percentile")
	}
	return nil
}

// EVConfig sets the default charging price ceiling.
type EVConfig struct {
	MaxPrice float64 `json:"max_price"`
}

func (c *EVConfig) SetDefaults() {
	if c.MaxPrice == 0 {
		c.MaxPrice = ev.DefaultMaxPrice
	}
}

// Planner maps the battery and ev sections to the planner parameters.
func (c Config) Planner() planner.Config {
	return planner.Config{
		HistoryDays:         c.Battery.HistoryDays,
		ChargePercentile:    c.Battery.ChargePercentile,
		DischargePercentile: c.Battery.DischargePercentile,
		PriceDiff:           c.Battery.PriceDiff,
		ChargeBuffer:        c.Battery.ChargeBuffer,
		DischargeBuffer:     c.Battery.DischargeBuffer,
		EVMaxPrice:          c.EV.MaxPrice,
		FallbackSOC:         c.Battery.FallbackSOC,
	}
}

// LoadWatchConfig configures the peak power watcher.
type LoadWatchConfig struct {
	EnergyEntity    string        `json:"energy_entity"`
	MaxPeakKW       float64       `json:"max_peak_kw"`
	Deadband        float64       `json:"deadband"`
	ChargeThreshold float64       `json:"charge_threshold"`
	PhaseThreshold  float64       `json:"phase_threshold"`
	PhaseDelay      time.Duration `json:"phase_delay"`
}

func (c *LoadWatchConfig) SetDefaults() {
	if c.MaxPeakKW <= 0 {
		c.MaxPeakKW = loadwatch.DefaultMaxPeakKW
	}
	if c.Deadband <= 0 {
		c.Deadband = loadwatch.DefaultDeadband
	}
	if c.PhaseThreshold <= 0 {
		c.PhaseThreshold = loadwatch.DefaultPhaseThreshold
	}
	if c.PhaseDelay <= 0 {
		c.PhaseDelay = loadwatch.DefaultPhaseDelay
	}
}

// Validate requires an energy meter once a device is load managed.
func (c LoadWatchConfig) Validate(devices []model.Device) error {
	for _, d := range devices {
		if d.LoadManagement != nil && d.LoadManagement.Enabled && c.EnergyEntity == "" {
			return fmt.Errorf("loadwatch.energy_entity is required for device %s", d.Name)
		}
	}
	return nil
}

// Enabled reports whether the watcher has something to do.
func (c LoadWatchConfig) Enabled() bool { return c.EnergyEntity != "" }

// Watcher maps the section to the watcher settings.
func (c Config) Watcher() loadwatch.Config {
	return loadwatch.Config{
		EnergyEntity:    c.LoadWatch.EnergyEntity,
		MaxPeakKW:       c.LoadWatch.MaxPeakKW,
		Deadband:        c.LoadWatch.Deadband,
		ChargeThreshold: c.LoadWatch.ChargeThreshold,
		PhaseThreshold:  c.LoadWatch.PhaseThreshold,
		PhaseDelay:      c.LoadWatch.PhaseDelay,
		Slot:            c.Horizon.Slot(),
	}
}

// VerifierConfig bounds the post action checks.
type VerifierConfig struct {
	Checks   int           `json:"checks"`
	Interval time.Duration `json:"interval"`
}

func (c *VerifierConfig) SetDefaults() {
	if c.Checks <= 0 {
		c.Checks = verifier.DefaultChecks
	}
	if c.Interval <= 0 {
		c.Interval = verifier.DefaultInterval
	}
}

// Config converts the section.
func (c VerifierConfig) Config() verifier.Config {
	return verifier.Config{Checks: c.Checks, Interval: c.Interval}
}

// CadenceConfig holds the cron specs of the periodic jobs.
type CadenceConfig struct {
	Refresh        string `json:"refresh"`
	RefreshOnStart *bool  `json:"refresh_on_start"`
	Battery        string `json:"battery"`
	LoadWatch      string `json:"loadwatch"`
	Verify         string `json:"verify"`
}

func (c *CadenceConfig) SetDefaults() {
	if c.Refresh == "" {
		c.Refresh = "0 13 * * *"
	}
	if c.RefreshOnStart == nil {
		on := true
		c.RefreshOnStart = &on
	}
	if c.Battery == "" {
		c.Battery = "@every 15m"
	}
	if c.LoadWatch == "" {
		c.LoadWatch = "@every 5m"
	}
	if c.Verify == "" {
		c.Verify = "@every 5m"
	}
}

func (c CadenceConfig) Validate() error {
	for name, spec := range map[string]string{"refresh": c.Refresh, "battery": c.Battery, "loadwatch": c.LoadWatch, "verify": c.Verify} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("cadence.%s: %w", name, err)
		}
	}
	return nil
}
