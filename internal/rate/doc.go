// Package rate describes and evaluates edge functions.
//
// An edge function is a tagged expression tree ([Func]) rather than an
// arbitrary closure, so a model can be validated, printed and loaded from a
// document before any simulation runs:
//
//   - [Func]: serializable descriptor (constants, entity references, helpers)
//   - [Registry]: named helper functions such as hill and sigmoid
//   - [Compile]: binds a descriptor to entity and parameter indices
//   - [Evaluate]: computes the instantaneous rate of a compiled function
//
// # Example
//
//	fn := rate.Mul(rate.Const("k"), rate.Value(rate.Source()))
//	prog, err := rate.Compile(fn, "[A].[-].[-] -> [B].[-].[-]", binder)
//	v, err := rate.Evaluate(prog, t, x, params, hist)
//
// Evaluation never mutates the state vector or the history it reads.
package rate
