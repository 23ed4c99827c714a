// Package export renders plans for operators and other tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/flexplan/core/model"
)

// Row is one schedule entry with the mean price of the slots it covers.
type Row struct {
	Device   string    `json:"device" yaml:"device"`
	Kind     string    `json:"kind" yaml:"kind"`
	Start    time.Time `json:"start" yaml:"start"`
	Stop     time.Time `json:"stop" yaml:"stop"`
	AvgPrice *float64  `json:"avg_price,omitempty" yaml:"avg_price,omitempty"`
}

// Document is the exported form of a plan.
type Document struct {
	Revision  string    `json:"revision" yaml:"revision"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Horizon   [2]string `json:"horizon" yaml:"horizon"`
	Entries   []Row     `json:"entries" yaml:"entries"`
}

// Rows flattens the entries of a plan in schedule order.
func Rows(p model.Plan) []Row {
	h := p.Horizon()
	out := make([]Row, 0, len(p.Entries))
	for _, e := range p.Entries {
		r := Row{Device: e.DeviceID, Kind: string(e.Kind), Start: e.Start, Stop: e.Stop}
		if avg, ok := meanPrice(h, e); ok {
			r.AvgPrice = &avg
		}
		out = append(out, r)
	}
	return out
}

func meanPrice(h model.PriceHorizon, e model.ScheduleEntry) (float64, bool) {
	from, to := max(h.SlotIndex(e.Start), 0), min(h.SlotIndex(e.Stop), h.Len())
	if to <= from {
		return 0, false
	}
	var sum float64
	for i := from; i < to; i++ {
		sum += h.Prices[i]
	}
	return sum / float64(to-from), true
}

// NewDocument builds the exported form of p.
func NewDocument(p model.Plan) Document {
	return Document{
		Revision:  p.Revision,
		UpdatedAt: p.UpdatedAt,
		Horizon:   [2]string{p.HorizonStart.Format(time.RFC3339), p.HorizonEnd.Format(time.RFC3339)},
		Entries:   Rows(p),
	}
}

// WriteJSON writes the plan to w in indented JSON.
func WriteJSON(w io.Writer, p model.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(p))
}

// WriteYAML writes the plan to w in YAML.
func WriteYAML(w io.Writer, p model.Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(p)); err != nil {
		return err
	}
	return enc.Close()
}

// WriteCSV writes one line per schedule entry.
func WriteCSV(w io.Writer, p model.Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"device", "kind", "start", "stop", "avg_price"}); err != nil {
		return err
	}
	for _, r := range Rows(p) {
		price := ""
		if r.AvgPrice != nil {
			price = strconv.FormatFloat(*r.AvgPrice, 'f', -1, 64)
		}
		rec := []string{
			r.Device,
			r.Kind,
			r.Start.Format(time.RFC3339),
			r.Stop.Format(time.RFC3339),
			price,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write renders p in format: json, yaml or csv.
func Write(w io.Writer, format string, p model.Plan) error {
	switch format {
	case "json", "":
		return WriteJSON(w, p)
	case "yaml", "yml":
		return WriteYAML(w, p)
	case "csv":
		return WriteCSV(w, p)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
