package sim

import (
	"context"
	"sync"

	"github.com/san-kum/celltx/internal/dynamo"
)

// Job is one independent run. Simulators and integrators keep per-run
// scratch state, so every job needs its own.
type Job struct {
	Sim *Simulator
	X0  dynamo.State
}

// Ensemble runs jobs concurrently with at most workers in flight.
type Ensemble struct {
	jobs    []Job
	workers int
}

func NewEnsemble(jobs []Job, workers int) *Ensemble {
	if workers < 1 {
		workers = 1
	}
	return &Ensemble{jobs: jobs, workers: workers}
}

// Run returns results in job order. The error of the lowest-index failing
// job is returned; results of the other jobs are kept.
func (e *Ensemble) Run(ctx context.Context, cfg dynamo.Config) ([]*Result, error) {
	results, errs := e.RunAll(ctx, cfg)
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunAll returns the result and error of every job in job order.
func (e *Ensemble) RunAll(ctx context.Context, cfg dynamo.Config) ([]*Result, []error) {
	results := make([]*Result, len(e.jobs))
	errs := make([]error, len(e.jobs))
	sem := make(chan struct{}, e.workers)

	var wg sync.WaitGroup
	for i := range e.jobs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job := e.jobs[idx]
			results[idx], errs[idx] = job.Sim.Run(ctx, job.X0, cfg)
		}(i)
	}

	wg.Wait()
	return results, errs
}
