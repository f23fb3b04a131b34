package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/celltx/internal/config"
	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/experiment"
	"github.com/san-kum/celltx/internal/sim"
	"github.com/san-kum/celltx/internal/trajectory"
)

const (
	drugA = "[drug].[body].[A]"
	drugB = "[drug].[body].[B]"
)

func decay(t *testing.T) *experiment.Experiment {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Duration = 2
	cfg.Dt = 0.01
	exp, err := experiment.New(cfg)
	require.NoError(t, err)
	return exp
}

func TestDoseResponse(t *testing.T) {
	exp := decay(t)
	points, err := DoseResponse(context.Background(), exp, exp.Config().Run(), Sweep{
		Param:   "k",
		Values:  []float64{0.1, 1, 5},
		Entity:  drugA,
		Workers: 2,
	})
	require.NoError(t, err)
	require.Len(t, points, 3)

	for i, p := range points {
		require.NoError(t, p.Err)
		assert.InDelta(t, 100*math.Exp(-2*p.Param), p.Final, 1e-4)
		assert.Equal(t, p.Final, p.Min)
		assert.GreaterOrEqual(t, p.Max, p.Min)
		if i > 0 {
			assert.Less(t, p.Final, points[i-1].Final)
		}
	}

	art := ResponseToASCII(points, 30, 10)
	assert.Equal(t, 10, strings.Count(art, "\n"))
	assert.Equal(t, 3, strings.Count(art, "•"))
}

type failingPreparer struct{}

func (failingPreparer) Prepare(map[string]float64) (*sim.Simulator, dynamo.State, error) {
	return nil, nil, errors.New("boom")
}

func TestDoseResponseErrors(t *testing.T) {
	exp := decay(t)
	cfg := exp.Config().Run()

	_, err := DoseResponse(context.Background(), exp, cfg, Sweep{Param: "k", Entity: drugA})
	assert.Error(t, err)

	_, err = DoseResponse(context.Background(), failingPreparer{}, cfg, Sweep{Param: "k", Values: []float64{1}, Entity: drugA})
	assert.ErrorContains(t, err, "boom")

	_, err = DoseResponse(context.Background(), exp, cfg, Sweep{Param: "k", Values: []float64{1}, Entity: "[x].[-].[-]"})
	assert.ErrorIs(t, err, trajectory.ErrUnknownKey)

	assert.Empty(t, ResponseToASCII([]ResponsePoint{{Err: errors.New("failed")}}, 10, 5))
}

func sampled(t *testing.T, rows [][3]float64) *trajectory.Trajectory {
	t.Helper()
	tr := trajectory.New([]string{drugA, drugB})
	for _, r := range rows {
		require.NoError(t, tr.Append(r[0], []float64{r[1], r[2]}))
	}
	return tr
}

func TestPhasePortrait(t *testing.T) {
	tr := sampled(t, [][3]float64{{0, 100, 0}, {1, 60, 40}, {2, 30, 70}, {3, 10, 90}})

	p, err := NewPhasePortrait(tr, drugA, drugB)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 60, 30, 10}, p.X)
	assert.Equal(t, []float64{0, 40, 70, 90}, p.Y)

	art := p.ASCII(20, 8)
	assert.Equal(t, 8, strings.Count(art, "\n"))
	assert.Equal(t, 1, strings.Count(art, "o"))
	assert.Equal(t, 1, strings.Count(art, "*"))
	assert.Equal(t, 2, strings.Count(art, "•"))

	_, err = NewPhasePortrait(tr, drugA, "[x].[-].[-]")
	assert.ErrorIs(t, err, trajectory.ErrUnknownKey)
}

func TestSteadyState(t *testing.T) {
	tr := sampled(t, [][3]float64{{0, 100, 0}, {1, 50, 50}, {2, 50, 50}, {3, 50, 50}})
	ts, ok := SteadyState(tr, 1e-9)
	require.True(t, ok)
	assert.Equal(t, 1.0, ts)

	moving := sampled(t, [][3]float64{{0, 100, 0}, {1, 50, 50}, {2, 40, 60}})
	_, ok = SteadyState(moving, 1e-9)
	assert.False(t, ok)

	_, ok = SteadyState(sampled(t, [][3]float64{{0, 1, 1}}), 1)
	assert.False(t, ok)
}
