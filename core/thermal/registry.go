package thermal

import (
	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/logger"
)

var solverRegistry = factory.NewRegistry[Solver]()

// RegisterSolver adds a solver factory identified by name.
func RegisterSolver(name string, f factory.Factory[Solver]) error {
	return solverRegistry.Register(name, f)
}

// NewSolver creates the solver described by cfg. An empty type selects the
// dynamic programme.
func NewSolver(cfg factory.ModuleConfig) (Solver, error) {
	if cfg.Type == "" {
		cfg.Type = "dp"
	}
	return solverRegistry.Create(cfg)
}

// SolverNames lists the registered solvers.
func SolverNames() []string { return solverRegistry.Names() }

func init() {
	_ = RegisterSolver("dp", func(map[string]any) (Solver, error) {
		return DPSolver{}, nil
	})
	_ = RegisterSolver("lp", func(conf map[string]any) (Solver, error) {
		var c struct {
			Fallback bool `json:"fallback"`
		}
		c.Fallback = true
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		s := LPSolver{}
		if c.Fallback {
			s.Fallback = DPSolver{}
		}
		return s, nil
	})
}

// WithLogger attaches a logger to solvers that report fallbacks.
func WithLogger(s Solver, log logger.Logger) Solver {
	if lp, ok := s.(LPSolver); ok {
		lp.Log = log
		return lp
	}
	return s
}

// SolverName returns the registry name of the built-in solvers.
func SolverName(s Solver) string {
	switch s.(type) {
	case DPSolver:
		return "dp"
	case LPSolver:
		return "lp"
	default:
		return "custom"
	}
}
