// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[thermal.Solver]()
//	reg.Register("lp", func(conf map[string]any) (thermal.Solver, error) {
//	    var c struct{ Fallback string `json:"fallback"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return thermal.LPSolver{Fallback: thermal.DPSolver{}}, nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "lp"})
package factory
