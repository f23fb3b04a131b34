// Package dynamo provides the numeric primitives shared by the ODE layer and
// the integration loop.
//
//   - [State]: magnitude vector ordered by graph entity index
//   - [System]: a derivative function dX/dt = f(X, t) that may fail
//   - [Integrator]: fixed-step solver interface
//   - [AdaptiveIntegrator]: solver with error control
//   - [IntegrationError]: run failure carrying the last valid state
//
// # Example
//
//	sys, err := ode.Assemble(g, ode.WithHistory(h))
//	integ := integrators.NewRK4()
//	x1, err := integ.Step(sys, x0, 0, 0.01)
//
// # Thread Safety
//
// Integrators keep scratch buffers and are NOT safe for concurrent use. A
// System returned by the ode package may be shared between goroutines.
package dynamo
