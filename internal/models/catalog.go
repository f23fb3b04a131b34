package models

import (
	"sort"

	"github.com/san-kum/celltx/internal/spec"
)

// Entry is a built-in model with its default initial magnitudes.
type Entry struct {
	Description string
	New         func() *spec.Model
	Initial     map[string]float64
	// Prehistory supplies magnitudes assumed before t = 0, by identity.
	Prehistory map[string]float64
}

var catalog = map[string]Entry{
	"decay": {
		Description: "drug A converts to B at constant rate",
		New:         NewDecay,
		Initial:     map[string]float64{"[drug].[body].[A]": 100},
	},
	"diffusion": {
		Description: "cytokine diffuses between tumor and circulation",
		New:         NewDiffusion,
		Initial:     map[string]float64{"[il6].[tumor].[-]": 50, "[il6].[circulation].[-]": 10},
	},
	"delayed": {
		Description: "T cell activation driven by antigen level two time units earlier",
		New:         NewDelayedActivation,
		Initial:     map[string]float64{"[t_cell].[body].[naive]": 100, "[antigen].[-].[-]": 10},
		Prehistory:  map[string]float64{"[antigen].[-].[-]": 0},
	},
	"cart": {
		Description: "CAR-T therapy across tumor and blood",
		New:         NewCARTherapy,
		Initial:     CARInitial(),
	},
}

func Lookup(name string) (Entry, bool) {
	e, ok := catalog[name]
	return e, ok
}

func Names() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
