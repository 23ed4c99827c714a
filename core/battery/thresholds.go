// Package battery selects and limits battery charge and discharge slots.
package battery

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/flexplan/core/model"
)

// Default threshold parameters.
const (
	DefaultChargePercentile    = 30
	DefaultDischargePercentile = 70
	DefaultPriceDiff           = 0.10
)

// Thresholds are the price levels below which charging and above which
// discharging is always eligible.
type Thresholds = model.PriceThresholds

// Percentile returns the p-th percentile (0-100) of values using linear
// interpolation. It reports false for an empty input.
func Percentile(values []float64, p float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil), true
}

// ResolveThresholds computes thresholds from the price history and falls
// back to the horizon prices when no history is available.
func ResolveThresholds(history, horizon []float64, chargePct, dischargePct float64) (Thresholds, bool) {
	src, name := history, "history"
	if len(src) == 0 {
		src, name = horizon, "horizon"
	}
	lo, ok := Percentile(src, chargePct)
	if !ok {
		return Thresholds{}, false
	}
	hi, _ := Percentile(src, dischargePct)
	return Thresholds{Charge: lo, Discharge: hi, Source: name}, true
}
