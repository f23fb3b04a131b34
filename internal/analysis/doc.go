// Package analysis characterizes model behavior across runs and within a
// single trajectory.
//
//   - [DoseResponse]: sweep one constant and record where an entity settles
//   - [NewPhasePortrait]: one entity against another over a trajectory
//   - [SteadyState]: when every magnitude stops changing
//
// A dose-response sweep runs on an [optim.Preparer], usually an
// experiment:
//
//	points, err := analysis.DoseResponse(ctx, exp, cfg.Run(), analysis.Sweep{
//	    Param:  "k_kill",
//	    Values: []float64{5e-4, 1e-3, 2e-3},
//	    Entity: "[tumor_cell].[tumor].[-]",
//	})
package analysis
