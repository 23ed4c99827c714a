package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/flexplan/core/model"
)

var start = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func samplePlan() model.Plan {
	return model.Plan{
		Revision:     "rev-1",
		HorizonStart: start,
		HorizonEnd:   start.Add(time.Hour),
		Prices:       []float64{0.1, 0.3, 0.3, 0.4},
		SlotMinutes:  15,
		UpdatedAt:    start,
		Entries: []model.ScheduleEntry{
			{DeviceID: "wp", Kind: model.KindRun, Start: start, Stop: start.Add(30 * time.Minute)},
			{DeviceID: "car", Kind: model.KindCharge, Start: start.Add(2 * time.Hour), Stop: start.Add(3 * time.Hour)},
		},
	}
}

func TestRowsMeanPrice(t *testing.T) {
	rows := Rows(samplePlan())
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].AvgPrice)
	assert.InDelta(t, 0.2, *rows[0].AvgPrice, 1e-9)
	assert.Nil(t, rows[1].AvgPrice)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "csv", samplePlan()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "device,kind,start,stop,avg_price", lines[0])
	assert.Equal(t, "wp,run,2025-03-10T12:00:00Z,2025-03-10T12:30:00Z,0.2", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ","))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", samplePlan()))
	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "rev-1", doc.Revision)
	assert.Len(t, doc.Entries, 2)
	assert.Equal(t, "2025-03-10T12:00:00Z", doc.Horizon[0])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "yaml", samplePlan()))
	assert.Contains(t, buf.String(), "revision: rev-1")
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Len(t, doc["entries"], 2)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, "xml", samplePlan()))
}
