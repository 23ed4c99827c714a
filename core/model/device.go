package model

import (
	"errors"
	"fmt"
	"time"
)

// DeviceType selects the planner responsible for a device.
type DeviceType string

const (
	DeviceHeatPump DeviceType = "heat_pump"
	DeviceHotWater DeviceType = "hot_water"
	DeviceBattery  DeviceType = "battery"
	DeviceEV       DeviceType = "ev"
	// DeviceGeneric devices are only load managed.
	DeviceGeneric DeviceType = "generic"
)

// Thermal reports whether the type is planned by the thermal scheduler.
func (t DeviceType) Thermal() bool {
	return t == DeviceHeatPump || t == DeviceHotWater
}

// ChargeSign tells how a load reading maps to consumption.
type ChargeSign string

const (
	SignPositive ChargeSign = "positive"
	SignNegative ChargeSign = "negative"
)

// MQTTAction publishes a payload to a topic.
type MQTTAction struct {
	Topic        string `json:"topic"`
	TopicGet     string `json:"topic_get,omitempty"`
	Payload      string `json:"payload"`
	PayloadCheck string `json:"payload_check,omitempty"`
}

// EntityAction calls a service on a remote entity.
type EntityAction struct {
	Service        string         `json:"service"`
	EntityID       string         `json:"entity_id"`
	Value          string         `json:"value,omitempty"`
	Option         string         `json:"option,omitempty"`
	ValueCheck     string         `json:"value_check,omitempty"`
	StateAttribute string         `json:"state_attribute,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

// ActionSet groups the commands executed for one transition.
type ActionSet struct {
	MQTT   []MQTTAction   `json:"mqtt,omitempty"`
	Entity []EntityAction `json:"entity,omitempty"`
}

// Empty reports whether the set has no action.
func (a ActionSet) Empty() bool { return len(a.MQTT) == 0 && len(a.Entity) == 0 }

// ThermalParams are the run constraints of a heat pump or hot water tank.
type ThermalParams struct {
	Block  time.Duration `json:"block"`
	MinGap time.Duration `json:"min_gap"`
	MaxGap time.Duration `json:"max_gap"`
}

// BatteryParams describe a home battery and its commands.
type BatteryParams struct {
	SOCEntity       string    `json:"soc_entity"`
	CapacityKWh     float64   `json:"capacity_kwh"`
	ChargeRateKW    float64   `json:"charge_rate_kw"`
	DischargeRateKW float64   `json:"discharge_rate_kw"`
	MinSOC          float64   `json:"min_soc"`
	MaxSOC          float64   `json:"max_soc"`
	ChargeStart     ActionSet `json:"charge_start"`
	ChargeStop      ActionSet `json:"charge_stop"`
	DischargeStart  ActionSet `json:"discharge_start"`
	DischargeStop   ActionSet `json:"discharge_stop"`
}

// EVParams configure threshold based EV charging.
type EVParams struct {
	MaxPrice float64 `json:"max_price"`
}

// LimitActions are the commands issued by the load watcher.
type LimitActions struct {
	SwitchToSinglePhase ActionSet `json:"switch_to_single_phase"`
	SwitchToThreePhase  ActionSet `json:"switch_to_three_phase"`
	ApplyLimit          ActionSet `json:"apply_limit"`
}

// LoadManagement holds the peak power settings of a consumer.
type LoadManagement struct {
	Enabled        bool         `json:"enabled"`
	LoadEntity     string       `json:"load_entity"`
	Unit           string       `json:"unit"`
	Priority       int          `json:"priority"`
	LimiterEntity  string       `json:"limiter_entity,omitempty"`
	MaxWatts       float64      `json:"max_watts"`
	ChargeSign     ChargeSign   `json:"charge_sign"`
	PhaseSwitching bool         `json:"phase_switching"`
	Actions        LimitActions `json:"actions"`
}

// Device is a controllable appliance.
type Device struct {
	Name           string          `json:"name"`
	Type           DeviceType      `json:"type"`
	Start          ActionSet       `json:"start"`
	Stop           ActionSet       `json:"stop"`
	Thermal        *ThermalParams  `json:"thermal,omitempty"`
	Battery        *BatteryParams  `json:"battery,omitempty"`
	EV             *EVParams       `json:"ev,omitempty"`
	LoadManagement *LoadManagement `json:"load_management,omitempty"`
}

// DefaultThermalParams returns the run constraints for a thermal type.
func DefaultThermalParams(t DeviceType) ThermalParams {
	if t == DeviceHotWater {
		return ThermalParams{Block: time.Hour, MinGap: 6 * time.Hour, MaxGap: 12 * time.Hour}
	}
	return ThermalParams{Block: time.Hour, MinGap: 3 * time.Hour, MaxGap: 8 * time.Hour}
}

// SetDefaults fills unset fields.
func (d *Device) SetDefaults() {
	if d.Type.Thermal() {
		def := DefaultThermalParams(d.Type)
		if d.Thermal == nil {
			d.Thermal = &def
		} else {
			if d.Thermal.Block <= 0 {
				d.Thermal.Block = def.Block
			}
			if d.Thermal.MinGap < 0 {
				d.Thermal.MinGap = def.MinGap
			}
			if d.Thermal.MaxGap <= 0 {
				d.Thermal.MaxGap = def.MaxGap
			}
		}
	}
	if b := d.Battery; b != nil {
		if b.MinSOC == 0 && b.MaxSOC == 0 {
			b.MinSOC, b.MaxSOC = 20, 80
		}
		if b.DischargeRateKW <= 0 {
			b.DischargeRateKW = b.ChargeRateKW
		}
	}
	if lm := d.LoadManagement; lm != nil {
		if lm.Priority == 0 {
			lm.Priority = 999
		}
		if lm.ChargeSign == "" {
			lm.ChargeSign = SignPositive
		}
		if lm.Unit == "" {
			lm.Unit = "W"
		}
	}
}

// Validate checks the device definition.
func (d Device) Validate() error {
	if d.Name == "" {
		return errors.New("device name is required")
	}
	switch d.Type {
	case DeviceHeatPump, DeviceHotWater, DeviceEV, DeviceGeneric:
	case DeviceBattery:
		if d.Battery == nil {
			return fmt.Errorf("device %s: battery section is required", d.Name)
		}
		if d.Battery.CapacityKWh <= 0 || d.Battery.ChargeRateKW <= 0 {
			return fmt.Errorf("device %s: capacity and charge rate must be positive", d.Name)
		}
		if d.Battery.MinSOC < 0 || d.Battery.MaxSOC > 100 || d.Battery.MinSOC >= d.Battery.MaxSOC {
			return fmt.Errorf("device %s: invalid soc bounds %.0f-%.0f", d.Name, d.Battery.MinSOC, d.Battery.MaxSOC)
		}
	default:
		return fmt.Errorf("device %s: unknown type %q", d.Name, d.Type)
	}
	if lm := d.LoadManagement; lm != nil && lm.Enabled {
		if lm.LoadEntity == "" {
			return fmt.Errorf("device %s: load_entity is required", d.Name)
		}
		if lm.MaxWatts <= 0 {
			return fmt.Errorf("device %s: max_watts must be positive", d.Name)
		}
		if lm.ChargeSign != SignPositive && lm.ChargeSign != SignNegative {
			return fmt.Errorf("device %s: charge_sign must be positive or negative", d.Name)
		}
	}
	return nil
}

// Actions returns the command set bound to a kind and transition.
func (d Device) Actions(kind ActionKind, tr Transition) (ActionSet, bool) {
	var set ActionSet
	switch kind {
	case KindRun:
		set = d.Start
		if tr == TransitionStop {
			set = d.Stop
		}
	case KindCharge, KindDischarge:
		if d.Battery == nil {
			return ActionSet{}, false
		}
		switch {
		case kind == KindCharge && tr == TransitionStart:
			set = d.Battery.ChargeStart
		case kind == KindCharge:
			set = d.Battery.ChargeStop
		case tr == TransitionStart:
			set = d.Battery.DischargeStart
		default:
			set = d.Battery.DischargeStop
		}
	default:
		return ActionSet{}, false
	}
	return set, !set.Empty()
}

// BatteryState builds the physical state of a battery device with the
// given SOC reading.
func (d Device) BatteryState(soc *float64) BatteryState {
	if d.Battery == nil {
		return BatteryState{SOC: soc}
	}
	return BatteryState{
		CapacityKWh:     d.Battery.CapacityKWh,
		ChargeRateKW:    d.Battery.ChargeRateKW,
		DischargeRateKW: d.Battery.DischargeRateKW,
		MinSOC:          d.Battery.MinSOC,
		MaxSOC:          d.Battery.MaxSOC,
		SOC:             soc,
	}
}
