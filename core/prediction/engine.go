package prediction

import (
	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/model"
)

// UsagePredictor forecasts energy use per slot.
type UsagePredictor interface {
	// Hints returns the expected consumption in kWh keyed by slot index of
	// the horizon. Slots without a forecast are absent.
	Hints(device string, h model.PriceHorizon) map[int]float64
}

// None never forecasts.
type None struct{}

// Hints implements UsagePredictor.
func (None) Hints(string, model.PriceHorizon) map[int]float64 { return nil }

var registry = factory.NewRegistry[UsagePredictor]()

// Register adds a predictor factory identified by name.
func Register(name string, f factory.Factory[UsagePredictor]) error {
	return registry.Register(name, f)
}

// New creates the predictor described by cfg. An empty type disables
// forecasts.
func New(cfg factory.ModuleConfig) (UsagePredictor, error) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}
	return registry.Create(cfg)
}

func init() {
	_ = Register("none", func(map[string]any) (UsagePredictor, error) { return None{}, nil })
	_ = Register("static", NewStaticFromConf)
}
