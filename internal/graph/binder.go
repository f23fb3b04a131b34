package graph

import (
	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/spec"
)

// binder resolves function references against one edge (src, tgt) or one
// term (src == tgt).
type binder struct {
	bs    *buildState
	owner string
	src   int
	tgt   int
}

var _ rate.Binder = (*binder)(nil)

func (b *binder) Helpers() *rate.Registry { return b.bs.helpers }

func (b *binder) BindConst(name string) (int, error) {
	i, ok := b.bs.g.paramIndex[name]
	if !ok {
		return -1, structural(KindUndeclared, b.owner, "constant %q", name)
	}
	return i, nil
}

func (b *binder) BindRef(r rate.Ref) (int, error) {
	switch r.Element {
	case rate.SourceRef:
		return b.src, nil
	case rate.TargetRef:
		return b.tgt, nil
	}

	m := b.bs.model
	el, ok := m.Element(r.Element)
	if !ok {
		return -1, structural(KindUndeclared, b.owner, "element %q in function", r.Element)
	}

	comp := b.placeholder(r.Compartment, func(id EntityID) string { return id.Compartment })
	if el.Scope == spec.Global {
		if comp != "" && r.Compartment != rate.SourceRef && r.Compartment != rate.TargetRef {
			return -1, structural(KindScope, b.owner, "global element %q has no compartment %q", el.Name, comp)
		}
		comp = ""
	} else if err := checkCompartment(m, el, comp, b.owner); err != nil {
		return -1, err
	}

	state := b.placeholder(r.State, func(id EntityID) string { return id.State })
	if len(el.States) == 0 && (r.State == rate.SourceRef || r.State == rate.TargetRef) {
		state = ""
	}
	if err := checkState(el, state, b.owner); err != nil {
		return -1, err
	}

	i, ok := b.bs.g.index[EntityID{Element: el.Name, Compartment: comp, State: state}]
	if !ok {
		return -1, structural(KindScope, b.owner, "no entity %s", rate.Entity(el.Name, comp, state))
	}
	return i, nil
}

func (b *binder) placeholder(v string, field func(EntityID) string) string {
	switch v {
	case rate.SourceRef:
		return field(b.bs.g.entities[b.src].ID)
	case rate.TargetRef:
		return field(b.bs.g.entities[b.tgt].ID)
	}
	return v
}
