package battery

import "math"

// Selection holds the slot indices chosen for charging and discharging.
type Selection struct {
	Charge    []int `json:"charge"`
	Discharge []int `json:"discharge"`
}

// SelectCandidates marks slots where charging or discharging is price
// favourable. A slot is a charge candidate when its price is at or below the
// charge threshold or a later slot is at least diff more expensive. It is a
// discharge candidate when its price is at or above the discharge threshold
// or at least diff above an earlier slot. A slot eligible for both is kept
// for discharge only.
func SelectCandidates(prices []float64, th Thresholds, diff float64) Selection {
	n := len(prices)
	laterMax := make([]float64, n)
	running := math.Inf(-1)
	for i := n - 1; i >= 0; i-- {
		laterMax[i] = running
		running = math.Max(running, prices[i])
	}

	var sel Selection
	earlierMin := math.Inf(1)
	for i, p := range prices {
		discharge := p >= th.Discharge || (diff > 0 && p >= earlierMin+diff)
		charge := p <= th.Charge || (diff > 0 && laterMax[i] >= p+diff)
		switch {
		case discharge:
			sel.Discharge = append(sel.Discharge, i)
		case charge:
			sel.Charge = append(sel.Charge, i)
		}
		earlierMin = math.Min(earlierMin, p)
	}
	return sel
}
