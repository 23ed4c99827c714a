// Package thermal selects run blocks for heat pumps and hot water tanks.
//
// A block of Block slots may start at any slot 0..n-Block. Consecutive starts
// keep at least Block+MinGap slots apart, every window of MaxGap+Block slots
// contains a running slot, a block starts within MaxGap-InitialGap slots of
// the horizon start and every locked start is kept. Among the valid
// selections the cheapest one wins.
package thermal

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInfeasible is returned by solvers when no selection satisfies every
// constraint.
var ErrInfeasible = errors.New("thermal constraints infeasible")

// Problem is one thermal scheduling instance expressed in slots.
type Problem struct {
	Prices     []float64
	Block      int
	MinGap     int
	MaxGap     int
	Locked     []int
	InitialGap int
}

// Solver picks the start slots of a Problem.
type Solver interface {
	Solve(p Problem) ([]int, error)
}

// Validate checks the problem parameters.
func (p Problem) Validate() error {
	if p.Block < 1 {
		return fmt.Errorf("block must be at least one slot, got %d", p.Block)
	}
	if p.MinGap < 0 || p.MaxGap < 0 {
		return fmt.Errorf("gaps must not be negative (min %d, max %d)", p.MinGap, p.MaxGap)
	}
	if p.InitialGap < 0 {
		return fmt.Errorf("initial gap must not be negative, got %d", p.InitialGap)
	}
	return nil
}

// ValidStarts is the number of slots a block may start at.
func (p Problem) ValidStarts() int {
	v := len(p.Prices) - p.Block + 1
	if v < 0 {
		return 0
	}
	return v
}

// window is the length of the max gap windows.
func (p Problem) window() int { return p.MaxGap + p.Block }

// lastWindow is the first slot of the last complete max gap window, negative
// when the horizon is shorter than one window.
func (p Problem) lastWindow() int { return len(p.Prices) - p.window() }

// leadLimit returns the latest slot the first block may start at and whether
// the leading constraint applies.
func (p Problem) leadLimit() (int, bool) {
	r := p.MaxGap - p.InitialGap
	if r < 0 {
		r = 0
	}
	return r, r < p.ValidStarts()
}

// ValidLocks returns the sorted, deduplicated locked slots that are valid
// starts. Other locks are ignored.
func (p Problem) ValidLocks() []int {
	v := p.ValidStarts()
	seen := map[int]bool{}
	var out []int
	for _, l := range p.Locked {
		if l < 0 || l >= v || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Cost is the summed price of the block starting at i.
func (p Problem) Cost(i int) float64 {
	var c float64
	for k := i; k < i+p.Block && k < len(p.Prices); k++ {
		c += p.Prices[k]
	}
	return c
}

// TotalCost sums the cost of every start.
func (p Problem) TotalCost(starts []int) float64 {
	var c float64
	for _, s := range starts {
		c += p.Cost(s)
	}
	return c
}

// Verify reports the first constraint violated by starts.
func Verify(p Problem, starts []int) error {
	v := p.ValidStarts()
	s := append([]int(nil), starts...)
	sort.Ints(s)
	for i, x := range s {
		if x < 0 || x >= v {
			return fmt.Errorf("start %d outside valid range [0,%d)", x, v)
		}
		if i > 0 && x-s[i-1] < p.Block+p.MinGap {
			return fmt.Errorf("starts %d and %d closer than %d slots", s[i-1], x, p.Block+p.MinGap)
		}
	}
	chosen := make(map[int]bool, len(s))
	for _, x := range s {
		chosen[x] = true
	}
	for _, l := range p.ValidLocks() {
		if !chosen[l] {
			return fmt.Errorf("locked start %d not selected", l)
		}
	}
	w := p.window()
	for from := 0; from <= p.lastWindow(); from++ {
		lo, hi := from-p.Block+1, from+w-1
		covered := false
		for _, x := range s {
			if x >= lo && x <= hi {
				covered = true
				break
			}
		}
		if !covered {
			return fmt.Errorf("no run within slots [%d,%d)", from, from+w)
		}
	}
	if r, ok := p.leadLimit(); ok && (len(s) == 0 || s[0] > r) {
		return fmt.Errorf("no run starts within the first %d slots", r+1)
	}
	return nil
}
