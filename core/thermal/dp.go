package thermal

import "math"

// DPSolver is an exact dynamic programme over consecutive starts.
//
// For sorted starts the covering windows only depend on neighbouring pairs,
// so f[j], the cheapest valid prefix ending with a block at j, only needs the
// best compatible predecessor.
type DPSolver struct{}

func (DPSolver) Solve(p Problem) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	v := p.ValidStarts()
	locks := p.ValidLocks()
	lastWin := p.lastWindow()
	w := p.window()
	lead, leadActive := p.leadLimit()

	if v == 0 {
		return []int{}, nil
	}

	// nextLock[i] is the first lock strictly after i, or v.
	nextLock := make([]int, v)
	firstLock, lastLock := v, -1
	if len(locks) > 0 {
		firstLock, lastLock = locks[0], locks[len(locks)-1]
	}
	idx := 0
	for i := 0; i < v; i++ {
		for idx < len(locks) && locks[idx] <= i {
			idx++
		}
		if idx < len(locks) {
			nextLock[i] = locks[idx]
		} else {
			nextLock[i] = v
		}
	}

	canStart := func(j int) bool {
		if lastWin >= 0 && j > w-1 {
			return false
		}
		if leadActive && j > lead {
			return false
		}
		return j <= firstLock
	}
	canEnd := func(i int) bool {
		return i+p.Block > lastWin && i >= lastLock
	}
	// between reports whether i and j may be consecutive starts.
	between := func(i, j int) bool {
		if j-i < p.Block+p.MinGap {
			return false
		}
		limit := lastWin
		if j-w < limit {
			limit = j - w
		}
		if i+p.Block <= limit {
			return false
		}
		return nextLock[i] >= j
	}

	inf := math.Inf(1)
	f := make([]float64, v)
	parent := make([]int, v)
	for j := 0; j < v; j++ {
		f[j] = inf
		parent[j] = -1
		best := inf
		if canStart(j) {
			best = 0
		}
		for i := 0; i < j; i++ {
			if math.IsInf(f[i], 1) || !between(i, j) {
				continue
			}
			if f[i] < best {
				best = f[i]
				parent[j] = i
			}
		}
		if !math.IsInf(best, 1) {
			f[j] = best + p.Cost(j)
		}
	}

	end, best := -1, inf
	if lastWin < 0 && !leadActive && len(locks) == 0 {
		best = 0
	}
	for i := 0; i < v; i++ {
		if math.IsInf(f[i], 1) || !canEnd(i) {
			continue
		}
		if f[i] < best {
			best, end = f[i], i
		}
	}
	if math.IsInf(best, 1) {
		return nil, ErrInfeasible
	}
	starts := []int{}
	for j := end; j >= 0; j = parent[j] {
		starts = append(starts, j)
	}
	for l, r := 0, len(starts)-1; l < r; l, r = l+1, r-1 {
		starts[l], starts[r] = starts[r], starts[l]
	}
	return starts, nil
}
