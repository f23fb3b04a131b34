package models

import (
	"fmt"

	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/spec"
)

// transfer declares an edge template moving fn from source to target, and a
// matching loss term on the source so the pair conserves magnitude. The loss
// term binds $source to the entity it drains, so fn must not read $target.
func transfer(m *spec.Model, name, kind string, src, tgt spec.Selector, fn rate.Func) {
	mustBeSourceRelative(name, fn)
	m.Relationships = append(m.Relationships, spec.Relationship{
		Name:   name,
		Kind:   kind,
		Source: src,
		Target: tgt,
		Func:   fn,
	})
	m.Terms = append(m.Terms, spec.Term{
		Name:   name + "_loss",
		Kind:   kind,
		Target: src,
		Func:   rate.Neg(fn),
	})
}

// exchange moves fn between every pair of adjacent compartments in both
// directions, for each state of element. A compartment with n neighbours
// loses n times fn.
func exchange(m *spec.Model, name, kind, element string, fn rate.Func) {
	mustBeSourceRelative(name, fn)
	m.Relationships = append(m.Relationships, spec.Relationship{
		Name:    name,
		Kind:    kind,
		Source:  spec.Select(element, spec.Any, spec.Any),
		Target:  spec.Select(element, spec.Any, spec.Any),
		Pairing: spec.Pairing{Adjacent: true, SameState: true},
		Func:    fn,
	})
	el, _ := m.Element(element)
	for _, c := range m.ElementCompartments(el) {
		n := 0
		for _, adj := range m.Neighbors(c) {
			if present(m, el, adj) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		m.Terms = append(m.Terms, spec.Term{
			Name:   name + "_loss_" + c,
			Kind:   kind,
			Target: spec.Select(element, c, spec.Any),
			Func:   rate.Neg(rate.Mul(rate.Lit(float64(n)), fn)),
		})
	}
}

func mustBeSourceRelative(name string, fn rate.Func) {
	if fn.References(rate.TargetRef) {
		panic(fmt.Sprintf("models: %s: conserving flow cannot reference %s", name, rate.TargetRef))
	}
}

func present(m *spec.Model, el spec.Element, comp string) bool {
	for _, c := range m.ElementCompartments(el) {
		if c == comp {
			return true
		}
	}
	return false
}
