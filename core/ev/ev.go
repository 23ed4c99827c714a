// Package ev plans threshold based EV charging.
package ev

// DefaultMaxPrice is the price at or below which an EV charges.
const DefaultMaxPrice = 0.09

// SelectSlots returns every slot priced at or below maxPrice.
func SelectSlots(prices []float64, maxPrice float64) []int {
	out := []int{}
	for i, p := range prices {
		if p <= maxPrice {
			out = append(out, i)
		}
	}
	return out
}
