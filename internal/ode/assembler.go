// Package ode assembles a built graph into a derivative function.
//
// For entity i the derivative is the sum of the rates of the edges that
// target i, followed by the terms attached to i, always in ascending index
// order. Edges do not subtract from their source: conservation is expressed
// by declaring paired edges or negative terms in the model.
//
// Edge functions may be evaluated on several goroutines; the reduction runs
// afterwards in the fixed order above, so results are bit-identical between
// sequential and parallel evaluation.
package ode

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/history"
	"github.com/san-kum/celltx/internal/rate"
)

// Recorder receives one call per derivative evaluation.
type Recorder interface {
	ObserveDerivative()
}

type Option func(*System)

// WithParams overrides declared constants by name.
func WithParams(overrides map[string]float64) Option {
	return func(s *System) { s.overrides = overrides }
}

// WithHistory binds the store read by delay and window functions. The
// integration loop records into it after every accepted step.
func WithHistory(h rate.History) Option {
	return func(s *System) { s.hist = h }
}

// WithParallel evaluates edge functions on up to workers goroutines.
func WithParallel(workers int) Option {
	return func(s *System) { s.workers = workers }
}

// WithNonNegative zeroes negative derivative components of entities whose
// magnitude is already at or below zero.
func WithNonNegative(on bool) Option {
	return func(s *System) { s.nonNeg = on }
}

func WithRecorder(r Recorder) Option {
	return func(s *System) { s.rec = r }
}

// System is the assembled derivative function of a graph.
type System struct {
	g         *graph.Graph
	params    []float64
	overrides map[string]float64
	hist      rate.History
	workers   int
	nonNeg    bool
	rec       Recorder
}

var _ dynamo.System = (*System)(nil)

// Assemble binds g to its parameter vector and history.
func Assemble(g *graph.Graph, opts ...Option) (*System, error) {
	s := &System{g: g, workers: 1}
	for _, opt := range opts {
		opt(s)
	}
	params, err := g.ParamVector(s.overrides)
	if err != nil {
		return nil, err
	}
	s.params = params
	if s.hist == nil && g.HasHistory() {
		return nil, fmt.Errorf("ode: graph %q reads history but none was bound: %w", g.Name(), rate.ErrNoHistory)
	}
	if r, ok := s.hist.(interface{ Retention() float64 }); ok {
		if w := r.Retention(); w > 0 && w < g.MaxLag() {
			return nil, fmt.Errorf("%w: graph %q reads %g back, store keeps %g", history.ErrRetention, g.Name(), g.MaxLag(), w)
		}
	}
	if s.workers < 1 {
		s.workers = 1
	}
	return s, nil
}

func (s *System) StateDim() int { return s.g.Len() }

func (s *System) Graph() *graph.Graph { return s.g }

// Params returns a copy of the bound parameter vector.
func (s *System) Params() []float64 {
	out := make([]float64, len(s.params))
	copy(out, s.params)
	return out
}

// Func exposes the system as a plain (t, x) -> dx callable.
func (s *System) Func() func(t float64, x []float64) ([]float64, error) {
	return func(t float64, x []float64) ([]float64, error) {
		return s.Derive(x, t)
	}
}

func (s *System) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	if len(x) != s.g.Len() {
		return nil, fmt.Errorf("%w: state has %d components, graph has %d entities", dynamo.ErrDimensionMismatch, len(x), s.g.Len())
	}
	edgeRates, termRates, err := s.evaluate(x, t)
	if err != nil {
		return nil, err
	}

	dx := make(dynamo.State, len(x))
	for i := range dx {
		sum := 0.0
		for _, e := range s.g.InEdges(i) {
			sum += edgeRates[e]
		}
		for _, k := range s.g.TermsOf(i) {
			sum += termRates[k]
		}
		if math.IsNaN(sum) || math.IsInf(sum, 0) {
			return nil, fmt.Errorf("%w: derivative of %s is %g at t=%g", dynamo.ErrInvalidState, s.g.Entity(i).ID, sum, t)
		}
		if s.nonNeg && x[i] <= 0 && sum < 0 {
			sum = 0
		}
		dx[i] = sum
	}
	if s.rec != nil {
		s.rec.ObserveDerivative()
	}
	return dx, nil
}

// Rates returns the instantaneous rate of every edge, by edge index.
func (s *System) Rates(x dynamo.State, t float64) ([]float64, error) {
	if len(x) != s.g.Len() {
		return nil, fmt.Errorf("%w: state has %d components, graph has %d entities", dynamo.ErrDimensionMismatch, len(x), s.g.Len())
	}
	edgeRates, _, err := s.evaluate(x, t)
	return edgeRates, err
}

func (s *System) evaluate(x dynamo.State, t float64) ([]float64, []float64, error) {
	ne, nt := s.g.NumEdges(), s.g.NumTerms()
	edgeRates := make([]float64, ne)
	termRates := make([]float64, nt)

	eval := func(k int) error {
		var (
			v   float64
			err error
		)
		if k < ne {
			v, err = rate.Evaluate(s.g.Edge(k).Fn, t, x, s.params, s.hist)
			edgeRates[k] = v
		} else {
			v, err = rate.Evaluate(s.g.Term(k-ne).Fn, t, x, s.params, s.hist)
			termRates[k-ne] = v
		}
		return err
	}

	total := ne + nt
	if s.workers == 1 || total < 2*s.workers {
		for k := 0; k < total; k++ {
			if err := eval(k); err != nil {
				return nil, nil, err
			}
		}
		return edgeRates, termRates, nil
	}

	chunk := (total + s.workers - 1) / s.workers
	nchunks := (total + chunk - 1) / chunk
	errs := make([]error, nchunks)
	var g errgroup.Group
	g.SetLimit(s.workers)
	for c := 0; c < nchunks; c++ {
		start, end := c*chunk, min((c+1)*chunk, total)
		g.Go(func() error {
			for k := start; k < end; k++ {
				if err := eval(k); err != nil {
					errs[c] = err
					return err
				}
			}
			return nil
		})
	}
	if g.Wait() != nil {
		// Report the lowest-indexed failure, as the sequential path would.
		for _, err := range errs {
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return edgeRates, termRates, nil
}
