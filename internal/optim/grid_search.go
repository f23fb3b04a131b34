// Package optim searches model constants for the combination that minimizes
// a run metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/sim"
)

var ErrNoFeasible = errors.New("optim: every parameter combination failed")

// Preparer builds an independent simulator for one parameter combination.
// experiment.Experiment satisfies it.
type Preparer interface {
	Prepare(params map[string]float64) (*sim.Simulator, dynamo.State, error)
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: 1}
}

// WithWorkers runs up to n combinations concurrently.
func (g *GridSearch) WithWorkers(n int) *GridSearch {
	g.workers = n
	return g
}

// Point is one evaluated combination. Err is set when the run failed.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search runs every combination and returns the parameters with the lowest
// value of metricName, that value, and every evaluated point in grid order.
// Failed combinations are skipped.
func (g *GridSearch) Search(ctx context.Context, p Preparer, cfg dynamo.Config, metricName string) (map[string]float64, float64, []Point, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("optim: %d parameter names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	var combos []map[string]float64
	g.searchRecursive(0, make(map[string]float64), &combos)

	points := make([]Point, len(combos))
	jobs := make([]sim.Job, 0, len(combos))
	slot := make([]int, 0, len(combos))
	for i, params := range combos {
		points[i].Params = params
		s, x0, err := p.Prepare(params)
		if err != nil {
			points[i].Err = err
			continue
		}
		jobs = append(jobs, sim.Job{Sim: s, X0: x0})
		slot = append(slot, i)
	}

	results, errs := sim.NewEnsemble(jobs, g.workers).RunAll(ctx, cfg)
	for j, i := range slot {
		if errs[j] != nil {
			points[i].Err = errs[j]
			continue
		}
		val, ok := results[j].Metrics[metricName]
		if !ok {
			points[i].Err = fmt.Errorf("optim: run produced no metric %q", metricName)
			continue
		}
		points[i].Value = val
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, pt := range points {
		if pt.Err == nil && pt.Value < best {
			best = pt.Value
			bestParams = pt.Params
		}
	}
	if bestParams == nil {
		if err := ctx.Err(); err != nil {
			return nil, 0, points, err
		}
		return nil, 0, points, ErrNoFeasible
	}
	return bestParams, best, points, nil
}

func (g *GridSearch) searchRecursive(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		combo := make(map[string]float64, len(current))
		for k, v := range current {
			combo[k] = v
		}
		*out = append(*out, combo)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		g.searchRecursive(depth+1, current, out)
	}
	delete(current, paramName)
}
