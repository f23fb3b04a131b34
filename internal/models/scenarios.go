package models

import (
	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/spec"
)

const (
	DefaultDecayRate     = 0.1
	DefaultDiffusionRate = 0.2
	DefaultActivation    = 0.5
	DefaultLag           = 2.0
)

// NewDecay converts drug A into B at rate k*A in a single compartment.
func NewDecay() *spec.Model {
	m := &spec.Model{
		Name:         "decay",
		Compartments: []spec.Compartment{{Name: "body"}},
		Elements: []spec.Element{
			{Name: "drug", Kind: "molecule", Scope: spec.PerCompartment, States: []string{"A", "B"}},
		},
		Constants: []spec.Constant{
			{Name: "k", Value: DefaultDecayRate, Description: "conversion rate A -> B"},
		},
	}
	transfer(m, "conversion", "conversion",
		spec.Select("drug", "body", "A"),
		spec.Select("drug", "body", "B"),
		rate.Linear("k", rate.Source()))
	return m
}

// NewDiffusion exchanges a cytokine between tumor and circulation.
func NewDiffusion() *spec.Model {
	m := &spec.Model{
		Name: "diffusion",
		Compartments: []spec.Compartment{
			{Name: "tumor", Adjacent: []string{"circulation"}},
			{Name: "circulation"},
		},
		Elements: []spec.Element{
			{Name: "il6", Kind: "cytokine", Scope: spec.PerCompartment},
		},
		Constants: []spec.Constant{
			{Name: "d", Value: DefaultDiffusionRate, Description: "diffusion rate"},
		},
	}
	exchange(m, "diffusion", "diffusion", "il6", rate.Linear("d", rate.Source()))
	return m
}

// NewDelayedActivation activates naive cells at a rate driven by the antigen
// level lag time units ago. Without a prehistory value, evaluating before
// t = lag fails.
func NewDelayedActivation() *spec.Model {
	return delayedActivation(rate.Delay(rate.Entity("antigen", "", ""), DefaultLag))
}

// NewDelayedActivationWithDefault assumes antigen was at prehistory before
// the simulation started.
func NewDelayedActivationWithDefault(prehistory float64) *spec.Model {
	m := delayedActivation(rate.DelayOr(rate.Entity("antigen", "", ""), DefaultLag, prehistory))
	m.Name = "delayed-default"
	return m
}

func delayedActivation(antigen rate.Func) *spec.Model {
	m := &spec.Model{
		Name:         "delayed",
		Compartments: []spec.Compartment{{Name: "body"}},
		Elements: []spec.Element{
			{Name: "t_cell", Kind: "tx_cell", Scope: spec.PerCompartment, States: []string{"naive", "active"}},
			{Name: "antigen", Kind: "molecule", Scope: spec.Global},
		},
		Constants: []spec.Constant{
			{Name: "ka", Value: DefaultActivation, Description: "activation rate per unit antigen"},
			{Name: "kc", Value: DefaultDecayRate, Description: "antigen clearance"},
		},
		Terms: []spec.Term{{
			Name:   "clearance",
			Kind:   "degradation",
			Target: spec.Select("antigen", "", ""),
			Func:   rate.Neg(rate.Linear("kc", rate.Source())),
		}},
	}
	transfer(m, "activation", "state_transition",
		spec.Select("t_cell", "body", "naive"),
		spec.Select("t_cell", "body", "active"),
		rate.Mul(rate.Const("ka"), antigen, rate.Value(rate.Source())))
	return m
}

// NewCrossSpecies is invalid: it links a cell directly to a cytokine.
func NewCrossSpecies() *spec.Model {
	return &spec.Model{
		Name:         "cross-species",
		Compartments: []spec.Compartment{{Name: "tumor"}},
		Elements: []spec.Element{
			{Name: "car_t", Kind: "tx_cell", Scope: spec.PerCompartment, States: []string{"resting", "active"}},
			{Name: "il2", Kind: "cytokine", Scope: spec.PerCompartment},
		},
		Constants: []spec.Constant{{Name: "ks", Value: 1}},
		Relationships: []spec.Relationship{{
			Name:   "secretion",
			Source: spec.Select("car_t", "tumor", "active"),
			Target: spec.Select("il2", "tumor", ""),
			Func:   rate.Linear("ks", rate.Source()),
		}},
	}
}
