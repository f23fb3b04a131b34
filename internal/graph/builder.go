package graph

import (
	"errors"
	"fmt"

	"github.com/san-kum/celltx/internal/rate"
	"github.com/san-kum/celltx/internal/spec"
)

type Builder struct {
	helpers *rate.Registry
}

type BuildOption func(*Builder)

// WithHelpers replaces the builtin helper registry.
func WithHelpers(r *rate.Registry) BuildOption {
	return func(b *Builder) { b.helpers = r }
}

func NewBuilder(opts ...BuildOption) *Builder {
	b := &Builder{helpers: rate.NewRegistry()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build builds a graph with the builtin helpers.
func Build(m *spec.Model) (*Graph, error) {
	return NewBuilder().Build(m)
}

// Build validates m and produces its graph. Any inconsistency yields a
// *StructuralError and no graph. m is not modified.
func (b *Builder) Build(m *spec.Model) (*Graph, error) {
	if m == nil {
		return nil, structural(KindUndeclared, "", "nil model")
	}
	if err := checkDeclarations(m); err != nil {
		return nil, err
	}

	bs := &buildState{
		model:   m,
		helpers: b.helpers,
		g: &Graph{
			name:       m.Name,
			index:      make(map[EntityID]int),
			paramIndex: make(map[string]int),
		},
	}
	bs.enumerate()
	for _, c := range m.Constants {
		bs.g.paramIndex[c.Name] = len(bs.g.params)
		bs.g.params = append(bs.g.params, Param{Name: c.Name, Value: c.Value, Description: c.Description})
	}
	for _, rel := range m.Relationships {
		if err := bs.expandRelationship(rel); err != nil {
			return nil, err
		}
	}
	for _, term := range m.Terms {
		if err := bs.expandTerm(term); err != nil {
			return nil, err
		}
	}
	bs.link()
	return bs.g, nil
}

type buildState struct {
	model   *spec.Model
	helpers *rate.Registry
	g       *Graph
}

func (bs *buildState) enumerate() {
	for _, el := range bs.model.Elements {
		for _, c := range bs.model.ElementCompartments(el) {
			for _, s := range spec.ElementStates(el) {
				id := EntityID{Element: el.Name, Compartment: c, State: s}
				bs.g.index[id] = len(bs.g.entities)
				bs.g.entities = append(bs.g.entities, Entity{Index: len(bs.g.entities), ID: id, Kind: el.Kind})
			}
		}
	}
}

func (bs *buildState) link() {
	g := bs.g
	n := len(g.entities)
	g.inEdges = make([][]int, n)
	g.outEdges = make([][]int, n)
	g.termsOf = make([][]int, n)
	for _, e := range g.edges {
		g.inEdges[e.Target] = append(g.inEdges[e.Target], e.Index)
		g.outEdges[e.Source] = append(g.outEdges[e.Source], e.Index)
	}
	for _, t := range g.terms {
		g.termsOf[t.Entity] = append(g.termsOf[t.Entity], t.Index)
	}
}

func (bs *buildState) expandRelationship(rel spec.Relationship) error {
	srcs, err := bs.expand(rel.Source, rel.Name)
	if err != nil {
		return err
	}
	tgts, err := bs.expand(rel.Target, rel.Name)
	if err != nil {
		return err
	}
	if len(srcs) == 0 || len(tgts) == 0 {
		return nil
	}
	if rel.Source.Element != rel.Target.Element {
		s, t := bs.g.entities[srcs[0]].ID, bs.g.entities[tgts[0]].ID
		return &StructuralError{
			Kind:         KindCrossSpecies,
			Relationship: rel.Name,
			Source:       &s,
			Target:       &t,
			Detail:       "edges may only connect entities of the same element",
		}
	}

	for _, si := range srcs {
		for _, ti := range tgts {
			src, tgt := bs.g.entities[si].ID, bs.g.entities[ti].ID
			if si == ti {
				if rel.Source.Concrete() && rel.Target.Concrete() {
					return &StructuralError{Kind: KindSelfLoop, Relationship: rel.Name, Source: &src, Target: &tgt,
						Detail: "use a term for contributions to a single entity"}
				}
				continue
			}
			if !bs.paired(rel.Pairing, src, tgt) {
				continue
			}
			label := fmt.Sprintf("%s %s -> %s", rel.Name, src, tgt)
			prog, err := bs.compile(rel.Func, label, rel.Name, si, ti)
			if err != nil {
				return err
			}
			bs.g.edges = append(bs.g.edges, Edge{
				Index:        len(bs.g.edges),
				Relationship: rel.Name,
				Kind:         rel.Kind,
				Source:       si,
				Target:       ti,
				Fn:           prog,
			})
		}
	}
	return nil
}

func (bs *buildState) expandTerm(term spec.Term) error {
	targets, err := bs.expand(term.Target, term.Name)
	if err != nil {
		return err
	}
	for _, i := range targets {
		label := fmt.Sprintf("%s %s", term.Name, bs.g.entities[i].ID)
		prog, err := bs.compile(term.Func, label, term.Name, i, i)
		if err != nil {
			return err
		}
		bs.g.terms = append(bs.g.terms, Term{
			Index:  len(bs.g.terms),
			Name:   term.Name,
			Kind:   term.Kind,
			Entity: i,
			Fn:     prog,
		})
	}
	return nil
}

func (bs *buildState) paired(p spec.Pairing, src, tgt EntityID) bool {
	if p.SameCompartment && src.Compartment != tgt.Compartment {
		return false
	}
	if p.SameState && src.State != tgt.State {
		return false
	}
	if p.Adjacent && !bs.model.Adjacent(src.Compartment, tgt.Compartment) {
		return false
	}
	return true
}

func (bs *buildState) compile(fn rate.Func, label, owner string, src, tgt int) (*rate.Program, error) {
	bd := &binder{bs: bs, owner: owner, src: src, tgt: tgt}
	prog, err := rate.Compile(fn, label, bd)
	if err == nil {
		return prog, nil
	}
	var se *StructuralError
	if errors.As(err, &se) {
		return nil, se
	}
	s, t := bs.g.entities[src].ID, bs.g.entities[tgt].ID
	return nil, &StructuralError{Kind: KindInvalidFunction, Relationship: owner, Source: &s, Target: &t, Detail: err.Error()}
}

// expand returns the entity indices matched by sel in ascending order.
func (bs *buildState) expand(sel spec.Selector, owner string) ([]int, error) {
	m := bs.model
	el, ok := m.Element(sel.Element)
	if !ok {
		return nil, structural(KindUndeclared, owner, "element %q", sel.Element)
	}

	var comps []string
	switch {
	case sel.Compartment == spec.Any:
		comps = m.ElementCompartments(el)
	case el.Scope == spec.Global:
		if sel.Compartment != "" {
			return nil, structural(KindScope, owner, "global element %q has no compartment %q", el.Name, sel.Compartment)
		}
		comps = []string{""}
	default:
		if err := checkCompartment(m, el, sel.Compartment, owner); err != nil {
			return nil, err
		}
		comps = []string{sel.Compartment}
	}

	var states []string
	if sel.State == spec.Any {
		states = spec.ElementStates(el)
	} else {
		if err := checkState(el, sel.State, owner); err != nil {
			return nil, err
		}
		states = []string{sel.State}
	}

	var out []int
	for _, c := range comps {
		for _, s := range states {
			if i, ok := bs.g.index[EntityID{Element: el.Name, Compartment: c, State: s}]; ok {
				out = append(out, i)
			}
		}
	}
	return out, nil
}

func checkCompartment(m *spec.Model, el spec.Element, comp, owner string) error {
	if comp == "" {
		return structural(KindScope, owner, "element %q is per-compartment and needs a compartment", el.Name)
	}
	if _, ok := m.Compartment(comp); !ok {
		return structural(KindUndeclared, owner, "compartment %q", comp)
	}
	for _, c := range m.ElementCompartments(el) {
		if c == comp {
			return nil
		}
	}
	return structural(KindScope, owner, "element %q is not present in compartment %q", el.Name, comp)
}

func checkState(el spec.Element, state, owner string) error {
	if len(el.States) == 0 {
		if state != "" {
			return structural(KindUndeclared, owner, "element %q has no states, got %q", el.Name, state)
		}
		return nil
	}
	for _, s := range el.States {
		if s == state {
			return nil
		}
	}
	return structural(KindUndeclared, owner, "state %q of element %q", state, el.Name)
}

func checkDeclarations(m *spec.Model) error {
	comps := make(map[string]bool)
	for _, c := range m.Compartments {
		if !validName(c.Name) {
			return structural(KindInvalidName, "", "compartment %q", c.Name)
		}
		if comps[c.Name] {
			return structural(KindDuplicate, "", "compartment %q", c.Name)
		}
		comps[c.Name] = true
	}
	for _, c := range m.Compartments {
		for _, adj := range c.Adjacent {
			if !comps[adj] {
				return structural(KindUndeclared, "", "compartment %q adjacent to %q", adj, c.Name)
			}
		}
	}

	seen := make(map[string]bool)
	for _, c := range m.Constants {
		if !validName(c.Name) {
			return structural(KindInvalidName, "", "constant %q", c.Name)
		}
		if seen[c.Name] {
			return structural(KindDuplicate, "", "constant %q", c.Name)
		}
		seen[c.Name] = true
	}

	seen = make(map[string]bool)
	for _, el := range m.Elements {
		if err := checkElement(el, comps); err != nil {
			return err
		}
		if seen[el.Name] {
			return structural(KindDuplicate, "", "element %q", el.Name)
		}
		seen[el.Name] = true
	}

	seen = make(map[string]bool)
	for _, r := range m.Relationships {
		if r.Name == "" {
			return structural(KindInvalidName, "", "relationship without a name")
		}
		if seen[r.Name] {
			return structural(KindDuplicate, r.Name, "relationship declared twice")
		}
		seen[r.Name] = true
	}
	seen = make(map[string]bool)
	for _, t := range m.Terms {
		if t.Name == "" {
			return structural(KindInvalidName, "", "term without a name")
		}
		if seen[t.Name] {
			return structural(KindDuplicate, t.Name, "term declared twice")
		}
		seen[t.Name] = true
	}
	return nil
}

func checkElement(el spec.Element, comps map[string]bool) error {
	if !validName(el.Name) {
		return structural(KindInvalidName, "", "element %q", el.Name)
	}
	switch el.Scope {
	case spec.Global:
		if len(el.Compartments) > 0 {
			return structural(KindScope, "", "global element %q lists compartments", el.Name)
		}
	case spec.PerCompartment:
	default:
		return structural(KindScope, "", "element %q has unknown scope %q", el.Name, el.Scope)
	}

	states := make(map[string]bool)
	for _, s := range el.States {
		if !validName(s) {
			return structural(KindInvalidName, "", "state %q of element %q", s, el.Name)
		}
		if states[s] {
			return structural(KindDuplicate, "", "state %q of element %q", s, el.Name)
		}
		states[s] = true
	}

	listed := make(map[string]bool)
	for _, c := range el.Compartments {
		if !comps[c] {
			return structural(KindUndeclared, "", "compartment %q of element %q", c, el.Name)
		}
		if listed[c] {
			return structural(KindDuplicate, "", "compartment %q of element %q", c, el.Name)
		}
		listed[c] = true
	}
	return nil
}
