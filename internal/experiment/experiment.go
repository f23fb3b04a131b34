// Package experiment wires a run configuration into the full pipeline:
// build the graph, bind history and parameters, assemble the derivative and
// integrate it.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/celltx/internal/config"
	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/history"
	"github.com/san-kum/celltx/internal/metrics"
	"github.com/san-kum/celltx/internal/ode"
	"github.com/san-kum/celltx/internal/sim"
	"github.com/san-kum/celltx/internal/spec"
)

type Experiment struct {
	cfg        *config.Config
	registry   *Registry
	model      *spec.Model
	graph      *graph.Graph
	initial    map[string]float64
	prehistory map[string]float64
	collector  *metrics.Collector
	observers  []dynamo.Observer
	logger     *slog.Logger
}

type Option func(*Experiment)

func WithLogger(l *slog.Logger) Option {
	return func(e *Experiment) { e.logger = l }
}

// WithModel replaces the catalog model named by the config, for models
// loaded from YAML documents.
func WithModel(m *spec.Model) Option {
	return func(e *Experiment) { e.model = m }
}

func WithCollector(c *metrics.Collector) Option {
	return func(e *Experiment) { e.collector = c }
}

func WithObserver(o dynamo.Observer) Option {
	return func(e *Experiment) { e.observers = append(e.observers, o) }
}

// New validates cfg and builds the graph. Structural errors surface here,
// before anything is integrated.
func New(cfg *config.Config, opts ...Option) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Experiment{
		cfg:      cfg,
		registry: NewRegistry(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.initial = make(map[string]float64)
	e.prehistory = make(map[string]float64)
	if e.model == nil {
		entry, err := e.registry.GetModel(cfg.Model)
		if err != nil {
			return nil, err
		}
		e.model = entry.New()
		merge(e.initial, entry.Initial)
		merge(e.prehistory, entry.Prehistory)
	}
	merge(e.initial, cfg.Initial)
	merge(e.prehistory, cfg.Prehistory)

	g, err := graph.Build(e.model)
	if err != nil {
		return nil, err
	}
	if lag := g.MaxLag(); cfg.HistoryRetention > 0 && cfg.HistoryRetention < lag {
		return nil, fmt.Errorf("%w: model %s reads %g back, history_retention is %g", history.ErrRetention, g.Name(), lag, cfg.HistoryRetention)
	}
	e.graph = g
	e.logger.Info("graph built", "model", g.Name(), "entities", g.Len(), "edges", g.NumEdges(), "terms", g.NumTerms(), "history", g.HasHistory())
	return e, nil
}

func merge(dst, src map[string]float64) {
	for k, v := range src {
		dst[k] = v
	}
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Graph() *graph.Graph { return e.graph }

// InitialState is the starting vector: catalog defaults overlaid with the
// configured values.
func (e *Experiment) InitialState() (dynamo.State, error) {
	return e.graph.InitialState(e.initial)
}

// Prepare assembles a fresh simulator and initial state. Each call gets its
// own history store and integrator, so prepared runs may execute
// concurrently.
func (e *Experiment) Prepare(params map[string]float64) (*sim.Simulator, dynamo.State, error) {
	x0, err := e.InitialState()
	if err != nil {
		return nil, nil, err
	}
	integrator, err := e.registry.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return nil, nil, err
	}

	merged := make(map[string]float64, len(e.cfg.Params)+len(params))
	merge(merged, e.cfg.Params)
	merge(merged, params)

	sysOpts := []ode.Option{
		ode.WithParams(merged),
		ode.WithParallel(e.cfg.Parallel),
		ode.WithNonNegative(e.cfg.Negativity == string(dynamo.NegativityClamp)),
	}
	simOpts := []sim.Option{
		sim.WithLabels(e.graph.Labels()),
		sim.WithLogger(e.logger),
	}
	if e.collector != nil {
		sysOpts = append(sysOpts, ode.WithRecorder(e.collector))
		simOpts = append(simOpts, sim.WithRecorder(e.collector))
	}
	if e.graph.HasHistory() {
		hist, err := e.history()
		if err != nil {
			return nil, nil, err
		}
		sysOpts = append(sysOpts, ode.WithHistory(hist))
		simOpts = append(simOpts, sim.WithHistory(hist))
	}

	sys, err := ode.Assemble(e.graph, sysOpts...)
	if err != nil {
		return nil, nil, err
	}

	s := sim.New(sys, integrator, simOpts...)
	for _, m := range e.registry.DefaultMetrics(e.graph) {
		s.AddMetric(m)
	}
	for _, o := range e.observers {
		s.AddObserver(o)
	}
	return s, x0, nil
}

func (e *Experiment) history() (*history.Store, error) {
	var opts []history.Option
	if e.cfg.HistoryRetention > 0 {
		opts = append(opts, history.WithRetention(e.cfg.HistoryRetention))
	}
	hist := history.New(e.graph.Labels(), opts...)
	for id, v := range e.prehistory {
		parsed, err := graph.ParseEntityID(id)
		if err != nil {
			return nil, err
		}
		idx, ok := e.graph.Lookup(parsed)
		if !ok {
			return nil, fmt.Errorf("experiment: prehistory for unknown entity %s", id)
		}
		if err := hist.SetDefault(idx, v); err != nil {
			return nil, err
		}
	}
	return hist, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.RunWith(ctx, nil)
}

// RunWith integrates once with params overriding the configured constants.
func (e *Experiment) RunWith(ctx context.Context, params map[string]float64) (*sim.Result, error) {
	s, x0, err := e.Prepare(params)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, x0, e.cfg.Run())
}
