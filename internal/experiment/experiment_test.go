package experiment

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/celltx/internal/config"
	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/history"
	"github.com/san-kum/celltx/internal/metrics"
	"github.com/san-kum/celltx/internal/models"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"euler", "rk4", "rk45"}, r.ListIntegrators())
	assert.Equal(t, models.Names(), r.ListModels())

	_, err := r.GetIntegrator("verlet")
	assert.Error(t, err)
	_, err = r.GetModel("lymph_node")
	assert.Error(t, err)

	a, err := r.GetIntegrator("rk4")
	require.NoError(t, err)
	b, err := r.GetIntegrator("rk4")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestDefaultMetrics(t *testing.T) {
	g, err := graph.Build(models.NewCARTherapy())
	require.NoError(t, err)

	var names []string
	for _, m := range NewRegistry().DefaultMetrics(g) {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"total_mass", "mass_drift", "stability", "exposure_car_t", "exposure_tumor_cell", "exposure_il2"}, names)
}

func TestRunDecay(t *testing.T) {
	exp, err := New(config.DefaultConfig())
	require.NoError(t, err)

	result, err := exp.Run(context.Background())
	require.NoError(t, err)

	final, tf, ok := result.Trajectory.Final()
	require.True(t, ok)
	assert.InDelta(t, 10, tf, 1e-9)
	assert.InDelta(t, 100*math.Exp(-1), final[0], 1e-6)

	assert.InDelta(t, 100, result.Metrics["total_mass"], 1e-9)
	assert.Less(t, result.Metrics["mass_drift"], 1e-12)
	assert.InDelta(t, 1000, result.Metrics["exposure_drug"], 1e-6)
	assert.Equal(t, 1.0, result.Metrics["stability"])
}

func TestRunWithOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Initial = map[string]float64{"[drug].[body].[A]": 10}
	cfg.Params = map[string]float64{"k": 0.2}
	exp, err := New(cfg)
	require.NoError(t, err)

	result, err := exp.RunWith(context.Background(), map[string]float64{"k": 0.5})
	require.NoError(t, err)
	final, _, _ := result.Trajectory.Final()
	assert.InDelta(t, 10*math.Exp(-5), final[0], 1e-6)

	cfg.Initial = map[string]float64{"[drug].[gut].[A]": 10}
	exp, err = New(cfg)
	require.NoError(t, err)
	_, err = exp.Run(context.Background())
	assert.Error(t, err)
}

func TestStructuralErrorStopsBeforeIntegration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "custom"
	_, err := New(cfg, WithModel(models.NewCrossSpecies()))

	var se *graph.StructuralError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, graph.KindCrossSpecies, se.Kind)

	cfg.Model = "missing"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestDelayedUsesPrehistory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "delayed"
	cfg.Duration = 5
	cfg.HistoryRetention = 3
	exp, err := New(cfg)
	require.NoError(t, err)

	result, err := exp.Run(context.Background())
	require.NoError(t, err)
	naive, err := result.Trajectory.Series("[t_cell].[body].[naive]")
	require.NoError(t, err)
	assert.Equal(t, 100.0, naive[100])
	assert.Less(t, naive[len(naive)-1], 100.0)

	// runs are independent: a second run starts from a fresh history
	_, err = exp.Run(context.Background())
	require.NoError(t, err)
}

func TestRetentionMustCoverLongestDelay(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "delayed"
	cfg.Duration = 5
	cfg.HistoryRetention = 1
	_, err := New(cfg)
	require.ErrorIs(t, err, history.ErrRetention)

	cfg.HistoryRetention = models.DefaultLag
	exp, err := New(cfg)
	require.NoError(t, err)
	result, err := exp.Run(context.Background())
	require.NoError(t, err)

	naive, err := result.Trajectory.Series("[t_cell].[body].[naive]")
	require.NoError(t, err)
	assert.Equal(t, 100.0, naive[100])
	assert.Less(t, naive[len(naive)-1], 100.0)
}

func TestDelayedWithoutPrehistoryFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model = "custom"
	cfg.Initial = map[string]float64{"[t_cell].[body].[naive]": 100, "[antigen].[-].[-]": 10}
	exp, err := New(cfg, WithModel(models.NewDelayedActivation()))
	require.NoError(t, err)

	_, err = exp.Run(context.Background())
	assert.ErrorIs(t, err, history.ErrOutOfRange)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestCollectorWiring(t *testing.T) {
	reg := prometheus.NewRegistry()
	col, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Duration = 1
	exp, err := New(cfg, WithCollector(col))
	require.NoError(t, err)
	_, err = exp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100.0, counterValue(t, reg, "celltx_steps_accepted_total"))
	// rk4 evaluates the derivative four times per step
	assert.Equal(t, 400.0, counterValue(t, reg, "celltx_derivative_evaluations_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "celltx_runs_total"))
}
