package thermal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/flexplan/core/logger"
)

// LPSolver solves the problem as a linear programme with gonum's simplex.
//
// Every constraint row covers an interval of consecutive starts, so the
// matrix has the consecutive ones property and the optimal vertex is
// integral. The rounded solution is verified and the Fallback solver is used
// when the simplex fails numerically.
type LPSolver struct {
	Fallback Solver
	Log      logger.Logger
}

// lpSolve points to the simplex call. Tests override it to simulate
// numerical failures.
var lpSolve = func(c []float64, A mat.Matrix, b []float64) ([]float64, error) {
	_, x, err := lp.Simplex(c, A, b, 1e-7, nil)
	return x, err
}

type lpRow struct {
	from, to int // start interval [from, to)
	slack    float64
}

// standardForm builds min cᵀx s.t. Ax = b, x >= 0. The first ValidStarts
// columns are the start indicators, one slack column follows per inequality.
func standardForm(p Problem) (c []float64, A *mat.Dense, b []float64) {
	v := p.ValidStarts()
	var rows []lpRow
	spacing := p.Block + p.MinGap
	for i := 0; i < v; i++ {
		rows = append(rows, lpRow{from: i, to: min(i+spacing, v), slack: 1})
	}
	w := p.window()
	for from := 0; from <= p.lastWindow(); from++ {
		rows = append(rows, lpRow{from: max(0, from-p.Block+1), to: min(from+w, v), slack: -1})
	}
	if r, ok := p.leadLimit(); ok {
		rows = append(rows, lpRow{from: 0, to: r + 1, slack: -1})
	}
	locks := p.ValidLocks()
	cols := v + len(rows)
	A = mat.NewDense(len(rows)+len(locks), cols, nil)
	b = make([]float64, len(rows)+len(locks))
	for r, row := range rows {
		for i := row.from; i < row.to; i++ {
			A.Set(r, i, 1)
		}
		A.Set(r, v+r, row.slack)
		b[r] = 1
	}
	for k, l := range locks {
		A.Set(len(rows)+k, l, 1)
		b[len(rows)+k] = 1
	}
	c = make([]float64, cols)
	for i := 0; i < v; i++ {
		c[i] = p.Cost(i)
	}
	return c, A, b
}

func (s LPSolver) Solve(p Problem) ([]int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	v := p.ValidStarts()
	if v == 0 {
		return []int{}, nil
	}
	c, A, b := standardForm(p)
	x, err := lpSolve(c, A, b)
	if errors.Is(err, lp.ErrInfeasible) {
		return nil, ErrInfeasible
	}
	if err != nil {
		return s.fallback(p, fmt.Errorf("simplex: %w", err))
	}
	starts := []int{}
	for i := 0; i < v && i < len(x); i++ {
		if math.Round(x[i]) >= 1 {
			starts = append(starts, i)
		}
	}
	if err := Verify(p, starts); err != nil {
		return s.fallback(p, fmt.Errorf("rounded solution: %w", err))
	}
	return starts, nil
}

func (s LPSolver) fallback(p Problem, cause error) ([]int, error) {
	if s.Fallback == nil {
		return nil, cause
	}
	if s.Log != nil {
		s.Log.Warnf("lp solver failed, using fallback: %v", cause)
	}
	return s.Fallback.Solve(p)
}
