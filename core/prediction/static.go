package prediction

import (
	"fmt"
	"time"

	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/model"
)

// StaticProfile forecasts from fixed hourly consumption profiles.
type StaticProfile struct {
	// Hourly is the default profile, 24 values in kWh.
	Hourly []float64
	// Devices overrides the profile per battery device.
	Devices  map[string][]float64
	Location *time.Location
}

type staticConf struct {
	Hourly   []float64            `json:"hourly"`
	Devices  map[string][]float64 `json:"devices"`
	Timezone string               `json:"timezone"`
}

// NewStaticFromConf builds a StaticProfile from raw configuration.
func NewStaticFromConf(conf map[string]any) (UsagePredictor, error) {
	var c staticConf
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	p := StaticProfile{Hourly: c.Hourly, Devices: c.Devices, Location: time.Local}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("static prediction timezone: %w", err)
		}
		p.Location = loc
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the profile lengths.
func (p StaticProfile) Validate() error {
	if p.Hourly != nil && len(p.Hourly) != 24 {
		return fmt.Errorf("hourly profile needs 24 values, got %d", len(p.Hourly))
	}
	for name, prof := range p.Devices {
		if len(prof) != 24 {
			return fmt.Errorf("profile of %s needs 24 values, got %d", name, len(prof))
		}
	}
	return nil
}

// Hints implements UsagePredictor.
func (p StaticProfile) Hints(device string, h model.PriceHorizon) map[int]float64 {
	prof, ok := p.Devices[device]
	if !ok {
		prof = p.Hourly
	}
	if len(prof) != 24 {
		return nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	share := h.SlotDuration.Hours()
	out := make(map[int]float64, h.Len())
	for i := 0; i < h.Len(); i++ {
		out[i] = prof[h.SlotTime(i).In(loc).Hour()] * share
	}
	return out
}
