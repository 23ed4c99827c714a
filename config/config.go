package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/metrics"
	"github.com/kilianp07/flexplan/core/model"
	"github.com/kilianp07/flexplan/core/thermal"
	"github.com/kilianp07/flexplan/infra/homeassistant"
	"github.com/kilianp07/flexplan/infra/mqtt"
	"github.com/kilianp07/flexplan/infra/prices"
)

type Config struct {
	MQTT          mqtt.Config          `json:"mqtt"`
	HomeAssistant homeassistant.Config `json:"homeassistant"`
	Prices        prices.Config        `json:"prices"`
	Store         factory.ModuleConfig `json:"store"`
	Archive       ArchiveConfig        `json:"archive"`
	Metrics       metrics.Config       `json:"metrics"`
	Sentry        SentryConfig         `json:"sentry"`
	Horizon       HorizonConfig        `json:"horizon"`
	Battery       BatteryConfig        `json:"battery"`
	EV            EVConfig             `json:"ev"`
	LoadWatch     LoadWatchConfig      `json:"loadwatch"`
	Verifier      VerifierConfig       `json:"verifier"`
	Cadence       CadenceConfig        `json:"cadence"`
	Solver        factory.ModuleConfig `json:"solver"`
	Prediction    factory.ModuleConfig `json:"prediction"`
	Devices       []model.Device       `json:"devices"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section. The horizon section drives the slot and
// lock settings of the price client.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.HomeAssistant.SetDefaults()
	c.Horizon.SetDefaults()
	if c.Prices.SlotMinutes <= 0 {
		c.Prices.SlotMinutes = c.Horizon.SlotMinutes
	}
	if c.Prices.LockMinutes <= 0 {
		c.Prices.LockMinutes = c.Horizon.LockMinutes
	}
	c.Prices.SetDefaults()
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	c.Archive.SetDefaults()
	c.Sentry.SetDefaults()
	c.Battery.SetDefaults()
	c.EV.SetDefaults()
	c.LoadWatch.SetDefaults()
	c.Verifier.SetDefaults()
	c.Cadence.SetDefaults()
	if c.Solver.Type == "" {
		c.Solver.Type = "dp"
	}
	if c.Prediction.Type == "" {
		c.Prediction.Type = "none"
	}
	for i := range c.Devices {
		c.Devices[i].SetDefaults()
	}
}

// Validate checks every section and the device list.
func (c Config) Validate() error {
	if err := c.HomeAssistant.Validate(); err != nil {
		return err
	}
	if err := c.Prices.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.Horizon.Validate(); err != nil {
		return err
	}
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if err := c.LoadWatch.Validate(c.Devices); err != nil {
		return err
	}
	if err := c.Cadence.Validate(); err != nil {
		return err
	}
	if !slices.Contains(thermal.SolverNames(), c.Solver.Type) {
		return fmt.Errorf("unknown solver %q, expected one of %v", c.Solver.Type, thermal.SolverNames())
	}
	if len(c.Devices) == 0 {
		return errors.New("at least one device is required")
	}
	seen := map[string]bool{}
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate device %s", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}
