package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/integrators"
	"github.com/san-kum/celltx/internal/metrics"
	"github.com/san-kum/celltx/internal/models"
)

// RunawayThreshold is the magnitude above which a step counts against the
// stability metric.
const RunawayThreshold = 1e9

type Registry struct {
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func() dynamo.Integrator { return integrators.NewRK45() }

	return r
}

func (r *Registry) GetModel(name string) (models.Entry, error) {
	entry, ok := models.Lookup(name)
	if !ok {
		return models.Entry{}, fmt.Errorf("unknown model: %s", name)
	}
	return entry, nil
}

// GetIntegrator returns a fresh instance; integrators keep scratch buffers
// and must not be shared between concurrent runs.
func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListModels() []string {
	return models.Names()
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics observes total mass and its drift over all entities, the
// exposure of every element and whether any magnitude runs away.
func (r *Registry) DefaultMetrics(g *graph.Graph) []dynamo.Metric {
	ms := []dynamo.Metric{
		metrics.NewTotalMass("total_mass", nil),
		metrics.NewMassDrift(nil),
		metrics.NewRunaway(RunawayThreshold),
	}

	byElement := make(map[string][]int)
	var order []string
	for _, e := range g.Entities() {
		if _, ok := byElement[e.ID.Element]; !ok {
			order = append(order, e.ID.Element)
		}
		byElement[e.ID.Element] = append(byElement[e.ID.Element], e.Index)
	}
	for _, el := range order {
		ms = append(ms, metrics.NewExposure("exposure_"+el, byElement[el]))
	}
	return ms
}
