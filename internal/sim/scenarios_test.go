package sim_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/history"
	"github.com/san-kum/celltx/internal/integrators"
	"github.com/san-kum/celltx/internal/models"
	"github.com/san-kum/celltx/internal/ode"
	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/sim"
	"github.com/san-kum/celltx/internal/spec"
)

type run struct {
	g    *graph.Graph
	hist *history.Store
	sim  *sim.Simulator
}

func prepare(m *spec.Model, integrator dynamo.Integrator, prehistory map[string]float64) run {
	g, err := graph.Build(m)
	Expect(err).NotTo(HaveOccurred())

	hist := history.New(g.Labels())
	for id, v := range prehistory {
		parsed, err := graph.ParseEntityID(id)
		Expect(err).NotTo(HaveOccurred())
		idx, ok := g.Lookup(parsed)
		Expect(ok).To(BeTrue())
		Expect(hist.SetDefault(idx, v)).To(Succeed())
	}

	sys, err := ode.Assemble(g, ode.WithHistory(hist))
	Expect(err).NotTo(HaveOccurred())
	return run{
		g:    g,
		hist: hist,
		sim:  sim.New(sys, integrator, sim.WithHistory(hist), sim.WithLabels(g.Labels())),
	}
}

func initial(g *graph.Graph, values map[string]float64) dynamo.State {
	x, err := g.InitialState(values)
	Expect(err).NotTo(HaveOccurred())
	return x
}

var _ = Describe("Simple decay", func() {
	const k = 0.1
	a0 := map[string]float64{"[drug].[body].[A]": 100}

	check := func(result *sim.Result) {
		tr := result.Trajectory
		_, tf, ok := tr.Final()
		Expect(ok).To(BeTrue())
		Expect(tf).To(BeNumerically("~", 10, 1e-9))

		for i := 0; i < tr.Len(); i++ {
			t := tr.Time(i)
			wantA := 100 * math.Exp(-k*t)
			wantB := 100 * (1 - math.Exp(-k*t))
			x := tr.At(i)
			Expect(math.Abs(x["[drug].[body].[A]"]-wantA) / wantA).To(BeNumerically("<", 1e-4))
			if wantB > 0 {
				Expect(math.Abs(x["[drug].[body].[B]"]-wantB) / wantB).To(BeNumerically("<", 1e-4))
			}
		}
	}

	It("matches the analytic solution with fixed steps", func() {
		r := prepare(models.NewDecay(), integrators.NewRK4(), nil)
		result, err := r.sim.Run(context.Background(), initial(r.g, a0), dynamo.Config{Dt: 0.05, Duration: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.StepsTaken).To(Equal(200))
		check(result)
	})

	It("matches the analytic solution with adaptive steps", func() {
		r := prepare(models.NewDecay(), integrators.NewRK45(), nil)
		cfg := dynamo.Config{Dt: 0.1, Duration: 10, Adaptive: true, Tolerance: 1e-9, MinDt: 1e-8, MaxDt: 1}
		result, err := r.sim.Run(context.Background(), initial(r.g, a0), cfg)
		Expect(err).NotTo(HaveOccurred())
		check(result)
	})
})

var _ = Describe("Cross-compartment diffusion", func() {
	It("keeps total mass constant", func() {
		r := prepare(models.NewDiffusion(), integrators.NewRK4(), nil)
		x0 := initial(r.g, map[string]float64{"[il6].[tumor].[-]": 80, "[il6].[circulation].[-]": 5})

		result, err := r.sim.Run(context.Background(), x0, dynamo.Config{Dt: 0.1, Duration: 30})
		Expect(err).NotTo(HaveOccurred())

		for _, total := range result.Trajectory.Totals(nil) {
			Expect(total).To(BeNumerically("~", 85, 1e-9))
		}
		final, _, _ := result.Trajectory.Final()
		Expect(final[0]).To(BeNumerically("~", final[1], 1e-3))
	})
})

var _ = Describe("History-dependent edge", func() {
	entry, _ := models.Lookup("delayed")

	It("fails before the delay has elapsed without a pre-history default", func() {
		r := prepare(models.NewDelayedActivation(), integrators.NewRK4(), nil)
		x0 := initial(r.g, entry.Initial)

		result, err := r.sim.Run(context.Background(), x0, dynamo.Config{Dt: 0.1, Duration: 5})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, history.ErrOutOfRange)).To(BeTrue())

		var ie *dynamo.IntegrationError
		Expect(errors.As(err, &ie)).To(BeTrue())
		Expect(ie.Time).To(BeZero())
		Expect(ie.State).To(Equal(x0))

		var oor *history.OutOfRangeError
		Expect(errors.As(err, &oor)).To(BeTrue())
		Expect(oor.Entity).To(Equal("[antigen].[-].[-]"))
		Expect(result.Trajectory.Len()).To(Equal(1))
	})

	It("raises at t=1 when evaluated directly", func() {
		r := prepare(models.NewDelayedActivation(), integrators.NewRK4(), nil)
		x0 := initial(r.g, entry.Initial)
		Expect(r.hist.RecordState(0, x0)).To(Succeed())
		Expect(r.hist.RecordState(1, x0)).To(Succeed())

		sys, err := ode.Assemble(r.g, ode.WithHistory(r.hist))
		Expect(err).NotTo(HaveOccurred())
		_, err = sys.Derive(x0, 1)
		Expect(err).To(MatchError(history.ErrOutOfRange))
	})

	It("runs when a pre-history default is supplied", func() {
		r := prepare(models.NewDelayedActivation(), integrators.NewRK4(), entry.Prehistory)
		x0 := initial(r.g, entry.Initial)

		result, err := r.sim.Run(context.Background(), x0, dynamo.Config{Dt: 0.1, Duration: 5})
		Expect(err).NotTo(HaveOccurred())

		naive, err := result.Trajectory.Series("[t_cell].[body].[naive]")
		Expect(err).NotTo(HaveOccurred())
		// antigen was 0 before t=0, so nothing activates until t=2
		Expect(naive[10]).To(Equal(100.0))
		Expect(naive[len(naive)-1]).To(BeNumerically("<", 100))

		totals := result.Trajectory.Totals(func(l string) bool { return l != "[antigen].[-].[-]" })
		for _, total := range totals {
			Expect(total).To(BeNumerically("~", 100, 1e-9))
		}
	})
})

var _ = Describe("Invalid model rejection", func() {
	It("refuses a cross-species relationship and builds nothing", func() {
		g, err := graph.Build(models.NewCrossSpecies())
		Expect(g).To(BeNil())
		Expect(err).To(MatchError(graph.ErrStructural))

		var se *graph.StructuralError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Kind).To(Equal(graph.KindCrossSpecies))
		Expect(se.Source.String()).To(Equal("[car_t].[tumor].[active]"))
		Expect(se.Target.String()).To(Equal("[il2].[tumor].[-]"))
	})
})

var _ = Describe("CAR-T therapy", func() {
	It("moves cells between compartments and stays non-negative", func() {
		r := prepare(models.NewCARTherapy(), integrators.NewRK4(), nil)
		x0 := initial(r.g, models.CARInitial())

		result, err := r.sim.Run(context.Background(), x0, dynamo.Config{Dt: 0.01, Duration: 5})
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < result.Trajectory.Len(); i++ {
			for _, v := range result.Trajectory.State(i) {
				Expect(v).To(BeNumerically(">=", 0))
			}
		}

		resting := "[car_t].[tumor].[" + models.CARResting + "]"
		series, err := result.Trajectory.Series(resting)
		Expect(err).NotTo(HaveOccurred())
		Expect(series[0]).To(BeZero())
		Expect(series[len(series)-1]).To(BeNumerically(">", 0))
	})
})

var _ = Describe("Ensemble", func() {
	It("runs parameter variants concurrently in job order", func() {
		g, err := graph.Build(models.NewDecay())
		Expect(err).NotTo(HaveOccurred())
		x0 := initial(g, map[string]float64{"[drug].[body].[A]": 100})

		rates := []float64{0.05, 0.1, 0.2, 0.4}
		jobs := make([]sim.Job, len(rates))
		for i, k := range rates {
			sys, err := ode.Assemble(g, ode.WithParams(map[string]float64{"k": k}))
			Expect(err).NotTo(HaveOccurred())
			jobs[i] = sim.Job{Sim: sim.New(sys, integrators.NewRK4()), X0: x0}
		}

		results, err := sim.NewEnsemble(jobs, 2).Run(context.Background(), dynamo.Config{Dt: 0.1, Duration: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(len(rates)))
		for i, k := range rates {
			final, _, _ := results[i].Trajectory.Final()
			Expect(final[0]).To(BeNumerically("~", 100*math.Exp(-k*5), 1e-4))
		}
	})
})

var _ = Describe("Non-finite derivatives", func() {
	growth := func(fn rate.Func) *spec.Model {
		return &spec.Model{
			Name:         "growth",
			Compartments: []spec.Compartment{{Name: "body"}},
			Elements:     []spec.Element{{Name: "cell", Scope: spec.Global}},
			Terms: []spec.Term{
				{Name: "growth", Target: spec.Select("cell", "", ""), Func: fn},
			},
		}
	}
	cfg := dynamo.Config{Dt: 0.1, Duration: 1, Negativity: dynamo.NegativityReject}

	It("aborts when a term divides by a zero magnitude", func() {
		r := prepare(growth(rate.Pow(rate.Value(rate.Source()), rate.Lit(-1))), integrators.NewRK4(), nil)
		result, err := r.sim.Run(context.Background(), dynamo.State{0}, cfg)

		var ie *dynamo.IntegrationError
		Expect(errors.As(err, &ie)).To(BeTrue())
		Expect(ie.Time).To(Equal(0.0))
		Expect(ie.State).To(Equal(dynamo.State{0}))
		Expect(errors.Is(err, rate.ErrDomain)).To(BeTrue())
		Expect(result.Trajectory.Len()).To(Equal(1))
	})

	It("aborts when a derivative overflows", func() {
		fn := rate.Mul(rate.Value(rate.Source()), rate.Lit(1e300), rate.Lit(1e300))
		r := prepare(growth(fn), integrators.NewEuler(), nil)
		result, err := r.sim.Run(context.Background(), dynamo.State{1}, dynamo.Config{Dt: 0.1, Duration: 1})

		var ie *dynamo.IntegrationError
		Expect(errors.As(err, &ie)).To(BeTrue())
		Expect(errors.Is(err, dynamo.ErrInvalidState)).To(BeTrue())
		Expect(ie.Step).To(Equal(0))
		Expect(ie.State).To(Equal(dynamo.State{1}))
		Expect(result.StepsTaken).To(Equal(0))
		Expect(r.hist.Len(0)).To(Equal(1))
	})
})
