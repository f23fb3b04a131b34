package models

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/history"
	"github.com/san-kum/celltx/internal/ode"
	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/spec"
)

func TestCatalogModelsBuild(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			entry, _ := Lookup(name)
			g, err := graph.Build(entry.New())
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if _, err := g.InitialState(entry.Initial); err != nil {
				t.Errorf("initial state rejected: %v", err)
			}
			for id := range entry.Prehistory {
				if _, err := graph.ParseEntityID(id); err != nil {
					t.Errorf("bad prehistory id: %v", err)
				}
			}
		})
	}
}

func TestDecayDerivative(t *testing.T) {
	g, err := graph.Build(NewDecay())
	if err != nil {
		t.Fatal(err)
	}
	sys, err := ode.Assemble(g)
	if err != nil {
		t.Fatal(err)
	}

	dx, err := sys.Derive([]float64{100, 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dx[0]+10) > 1e-12 || math.Abs(dx[1]-10) > 1e-12 {
		t.Errorf("expected [-10 10], got %v", dx)
	}
}

func TestDiffusionConservesMass(t *testing.T) {
	g, err := graph.Build(NewDiffusion())
	if err != nil {
		t.Fatal(err)
	}
	if g.NumEdges() != 2 {
		t.Fatalf("expected a paired edge, got %d edges", g.NumEdges())
	}
	sys, err := ode.Assemble(g)
	if err != nil {
		t.Fatal(err)
	}

	dx, err := sys.Derive([]float64{50, 10}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(dx.Sum()) > 1e-12 {
		t.Errorf("net flux should be zero, got %g", dx.Sum())
	}
}

func TestConservingFlowsRejectTargetReads(t *testing.T) {
	gradient := rate.Mul(rate.Const("d"), rate.Sub(rate.Value(rate.Source()), rate.Value(rate.Target())))
	cases := map[string]func(m *spec.Model){
		"transfer": func(m *spec.Model) {
			transfer(m, "conversion", "conversion",
				spec.Select("il6", "tumor", ""), spec.Select("il6", "circulation", ""), gradient)
		},
		"exchange": func(m *spec.Model) {
			exchange(m, "diffusion", "diffusion", "il6", gradient)
		},
		"target compartment": func(m *spec.Model) {
			exchange(m, "diffusion", "diffusion", "il6",
				rate.Value(rate.Ref{Element: "il6", Compartment: rate.TargetRef}))
		},
	}
	for name, declare := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewDiffusion()
			defer func() {
				if recover() == nil {
					t.Error("expected a flow reading $target to be refused")
				}
			}()
			declare(m)
		})
	}
}

func TestCARTherapyStructure(t *testing.T) {
	g, err := graph.Build(NewCARTherapy())
	if err != nil {
		t.Fatal(err)
	}

	// 4 CAR-T states in 2 compartments, 1 tumor, 2 IL-2.
	if g.Len() != 11 {
		t.Errorf("expected 11 entities, got %d", g.Len())
	}
	// activation, exhaustion, 4 states x 2 directions of migration, 2 IL-2 diffusion.
	if g.NumEdges() != 12 {
		t.Errorf("expected 12 edges, got %d", g.NumEdges())
	}

	for _, e := range g.Edges() {
		if g.Entity(e.Source).ID.Element != g.Entity(e.Target).ID.Element {
			t.Errorf("edge %d crosses species", e.Index)
		}
	}
}

func TestCARTherapyConservesCellsWithoutGrowth(t *testing.T) {
	g, err := graph.Build(NewCARTherapy())
	if err != nil {
		t.Fatal(err)
	}
	// Without proliferation or death, transitions and migration only move cells.
	sys, err := ode.Assemble(g, ode.WithParams(map[string]float64{"k_prolif": 0, "k_death": 0}))
	if err != nil {
		t.Fatal(err)
	}

	x, err := g.InitialState(CARInitial())
	if err != nil {
		t.Fatal(err)
	}
	tumorIdx, _ := g.Lookup(graph.EntityID{Element: "car_t", Compartment: "tumor", State: CARResting})
	x[tumorIdx] = 500

	dx, err := sys.Derive(x, 0)
	if err != nil {
		t.Fatal(err)
	}
	total := 0.0
	for i, e := range g.Entities() {
		if e.ID.Element == "car_t" {
			total += dx[i]
		}
	}
	if math.Abs(total) > 1e-9 {
		t.Errorf("CAR-T population should be conserved, net change %g", total)
	}
}

func TestDelayedActivationNeedsHistory(t *testing.T) {
	g, err := graph.Build(NewDelayedActivation())
	if err != nil {
		t.Fatal(err)
	}
	if !g.HasHistory() {
		t.Fatal("delayed model should read history")
	}

	h := history.New(g.Labels())
	sys, err := ode.Assemble(g, ode.WithHistory(h))
	if err != nil {
		t.Fatal(err)
	}
	x, _ := g.InitialState(map[string]float64{"[t_cell].[body].[naive]": 100, "[antigen].[-].[-]": 10})
	if err := h.RecordState(0, x); err != nil {
		t.Fatal(err)
	}

	_, err = sys.Derive(x, 1)
	if !errors.Is(err, history.ErrOutOfRange) {
		t.Errorf("expected out of range error, got %v", err)
	}

	g2, err := graph.Build(NewDelayedActivationWithDefault(10))
	if err != nil {
		t.Fatal(err)
	}
	sys2, err := ode.Assemble(g2, ode.WithHistory(h))
	if err != nil {
		t.Fatal(err)
	}
	dx, err := sys2.Derive(x, 1)
	if err != nil {
		t.Fatalf("default should cover prehistory: %v", err)
	}
	// ka * 10 * 100
	if math.Abs(dx[1]-500) > 1e-9 {
		t.Errorf("expected activation flux 500, got %g", dx[1])
	}
}

func TestCrossSpeciesRejected(t *testing.T) {
	_, err := graph.Build(NewCrossSpecies())
	var se *graph.StructuralError
	if !errors.As(err, &se) || se.Kind != graph.KindCrossSpecies {
		t.Fatalf("expected cross species error, got %v", err)
	}
}
