package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/flexplan/core/factory"
	metrics "github.com/kilianp07/flexplan/core/metrics"
	_ "github.com/kilianp07/flexplan/infra/metrics"
)

func TestSinkTypesIncludeBuiltins(t *testing.T) {
	assert.Subset(t, metrics.SinkTypes(), []string{"influx", "nop", "prometheus"})
}

func TestNewMetricsSink(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	multi, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "got %T", s)
	assert.Len(t, multi.Sinks, 2)
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics sink 1")
}

func TestConfigDecodes(t *testing.T) {
	var fromYAML metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte("sinks:\n  - type: nop\n  - type: nop\n"), &fromYAML))
	s, err := metrics.NewMetricsSink(fromYAML.Sinks)
	require.NoError(t, err)
	assert.IsType(t, &metrics.MultiSink{}, s)

	var fromJSON metrics.Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"nop"}],"prom_addr":":9100"}`), &fromJSON))
	assert.Equal(t, ":9100", fromJSON.PromAddr)
	require.Len(t, fromJSON.Sinks, 1)
	assert.Equal(t, "nop", fromJSON.Sinks[0].Type)
}
