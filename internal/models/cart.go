package models

import (
	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/spec"
)

var carFlags = []string{"activated", "exhausted"}

// CAR-T state names.
var (
	CARResting   = spec.BinaryState(carFlags)
	CARActive    = spec.BinaryState(carFlags, "activated")
	CARExhausted = spec.BinaryState(carFlags, "activated", "exhausted")
)

// NewCARTherapy is a two-compartment CAR-T cell therapy model: cells are
// activated by tumor antigen, proliferate on IL-2, kill tumor cells, become
// exhausted and migrate between tumor and blood.
func NewCARTherapy() *spec.Model {
	m := &spec.Model{
		Name: "cart",
		Compartments: []spec.Compartment{
			{Name: "tumor", Adjacent: []string{"blood"}},
			{Name: "blood"},
		},
		Elements: []spec.Element{
			{Name: "car_t", Kind: "tx_cell", Scope: spec.PerCompartment, States: spec.BinaryStates(carFlags...)},
			{Name: "tumor_cell", Kind: "cell", Scope: spec.PerCompartment, Compartments: []string{"tumor"}},
			{Name: "il2", Kind: "cytokine", Scope: spec.PerCompartment},
		},
		Constants: []spec.Constant{
			{Name: "k_act", Value: 0.8, Description: "maximal activation rate"},
			{Name: "tumor_50", Value: 1e3, Description: "tumor burden at half-maximal activation"},
			{Name: "k_exh", Value: 0.05, Description: "maximal exhaustion rate"},
			{Name: "k_prolif", Value: 0.6, Description: "maximal proliferation rate"},
			{Name: "il2_50", Value: 5, Description: "IL-2 at half-maximal proliferation"},
			{Name: "k_death", Value: 0.1, Description: "CAR-T death rate"},
			{Name: "k_mig", Value: 0.05, Description: "migration rate"},
			{Name: "k_kill", Value: 1e-3, Description: "killing rate per active CAR-T cell"},
			{Name: "r_tumor", Value: 0.2, Description: "tumor growth rate"},
			{Name: "k_tumor", Value: 1e5, Description: "tumor carrying capacity"},
			{Name: "k_sec", Value: 0.01, Description: "IL-2 secretion per active cell"},
			{Name: "k_diff", Value: 0.3, Description: "IL-2 diffusion rate"},
			{Name: "k_deg", Value: 0.5, Description: "IL-2 degradation rate"},
		},
	}

	tumor := rate.Value(rate.Entity("tumor_cell", "tumor", ""))
	stimulation := func(k string) rate.Func {
		return rate.Call("hill", tumor, rate.Lit(0), rate.Const(k), rate.Const("tumor_50"), rate.Lit(1))
	}

	transfer(m, "activation", "state_transition",
		spec.Select("car_t", "tumor", CARResting),
		spec.Select("car_t", "tumor", CARActive),
		rate.Mul(stimulation("k_act"), rate.Value(rate.Source())))
	transfer(m, "exhaustion", "state_transition",
		spec.Select("car_t", "tumor", CARActive),
		spec.Select("car_t", "tumor", CARExhausted),
		rate.Mul(stimulation("k_exh"), rate.Value(rate.Source())))
	exchange(m, "migration", "migration", "car_t", rate.Linear("k_mig", rate.Source()))
	exchange(m, "il2_diffusion", "diffusion", "il2", rate.Linear("k_diff", rate.Source()))

	m.Terms = append(m.Terms,
		spec.Term{
			Name:   "proliferation",
			Kind:   "proliferation",
			Target: spec.Select("car_t", spec.Any, CARActive),
			Func: rate.Mul(
				rate.Call("hill", rate.Value(rate.Local("il2", "")), rate.Lit(0), rate.Const("k_prolif"), rate.Const("il2_50"), rate.Lit(1)),
				rate.Value(rate.Source()),
			),
		},
		spec.Term{
			Name:   "car_death",
			Kind:   "death",
			Target: spec.Select("car_t", spec.Any, spec.Any),
			Func:   rate.Neg(rate.Linear("k_death", rate.Source())),
		},
		spec.Term{
			Name:   "tumor_growth",
			Kind:   "proliferation",
			Target: spec.Select("tumor_cell", "tumor", ""),
			Func: rate.Mul(
				rate.Const("r_tumor"),
				rate.Value(rate.Source()),
				rate.Sub(rate.Lit(1), rate.Div(rate.Value(rate.Source()), rate.Const("k_tumor"))),
			),
		},
		spec.Term{
			Name:   "killing",
			Kind:   "killing",
			Target: spec.Select("tumor_cell", "tumor", ""),
			Func: rate.Neg(rate.Mul(
				rate.Const("k_kill"),
				rate.Value(rate.Source()),
				rate.Value(rate.Entity("car_t", rate.SourceRef, CARActive)),
			)),
		},
		spec.Term{
			Name:   "il2_secretion",
			Kind:   "secretion",
			Target: spec.Select("il2", spec.Any, ""),
			Func:   rate.Mul(rate.Const("k_sec"), rate.Value(rate.Entity("car_t", rate.SourceRef, CARActive))),
		},
		spec.Term{
			Name:   "il2_degradation",
			Kind:   "degradation",
			Target: spec.Select("il2", spec.Any, ""),
			Func:   rate.Neg(rate.Linear("k_deg", rate.Source())),
		},
	)
	return m
}

// CARInitial is a typical dose: resting CAR-T cells infused into blood with
// an established tumor.
func CARInitial() map[string]float64 {
	return map[string]float64{
		"[car_t].[blood].[" + CARResting + "]": 1e3,
		"[tumor_cell].[tumor].[-]":             1e4,
	}
}
