package metrics

import "github.com/kilianp07/flexplan/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PromAddr serves /metrics when set and a prometheus sink is configured.
	PromAddr string `json:"prom_addr"`
}
