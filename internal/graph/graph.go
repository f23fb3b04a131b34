// Package graph turns a declarative model into an immutable directed graph
// of entities and rate-carrying edges.
//
// Entities are enumerated element by element in declaration order, then by
// compartment, then by state. Edges follow relationship declaration order,
// then source index, then target index. The same model always yields the
// same indices, which fixes the layout of the state vector.
package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/celltx/internal/rate"
)

// Edge contributes Fn to the derivative of Target. Source loses nothing
// unless the model declares a matching term.
type Edge struct {
	Index        int
	Relationship string
	Kind         string
	Source       int
	Target       int
	Fn           *rate.Program
}

// Term adds Fn directly to the derivative of Entity.
type Term struct {
	Index  int
	Name   string
	Kind   string
	Entity int
	Fn     *rate.Program
}

// Param is a named constant bound to a slot of the parameter vector.
type Param struct {
	Name        string
	Value       float64
	Description string
}

type Graph struct {
	name       string
	entities   []Entity
	index      map[EntityID]int
	edges      []Edge
	terms      []Term
	params     []Param
	paramIndex map[string]int
	inEdges    [][]int
	outEdges   [][]int
	termsOf    [][]int
}

func (g *Graph) Name() string { return g.name }

// Len is the number of entities, which is the state vector dimension.
func (g *Graph) Len() int { return len(g.entities) }

func (g *Graph) Entities() []Entity {
	out := make([]Entity, len(g.entities))
	copy(out, g.entities)
	return out
}

func (g *Graph) Entity(i int) Entity { return g.entities[i] }

// Lookup returns the index of id.
func (g *Graph) Lookup(id EntityID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Labels returns every entity identity string in index order.
func (g *Graph) Labels() []string {
	out := make([]string, len(g.entities))
	for i, e := range g.entities {
		out[i] = e.ID.String()
	}
	return out
}

func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *Graph) Edge(i int) Edge { return g.edges[i] }

func (g *Graph) NumEdges() int { return len(g.edges) }

func (g *Graph) Terms() []Term {
	out := make([]Term, len(g.terms))
	copy(out, g.terms)
	return out
}

func (g *Graph) Term(i int) Term { return g.terms[i] }

func (g *Graph) NumTerms() int { return len(g.terms) }

// InEdges returns the indices of edges targeting entity i in ascending order.
// The slice is shared; callers must not modify it.
func (g *Graph) InEdges(i int) []int { return g.inEdges[i] }

// OutEdges returns the indices of edges leaving entity i in ascending order.
func (g *Graph) OutEdges(i int) []int { return g.outEdges[i] }

// TermsOf returns the indices of terms attached to entity i.
func (g *Graph) TermsOf(i int) []int { return g.termsOf[i] }

// HasHistory reports whether any edge or term reads past magnitudes.
func (g *Graph) HasHistory() bool {
	for _, e := range g.edges {
		if e.Fn.HasHistory() {
			return true
		}
	}
	for _, t := range g.terms {
		if t.Fn.HasHistory() {
			return true
		}
	}
	return false
}

// MaxLag is the longest delay or window width read by any edge or term.
func (g *Graph) MaxLag() float64 {
	lag := 0.0
	for _, e := range g.edges {
		lag = math.Max(lag, e.Fn.MaxLag())
	}
	for _, t := range g.terms {
		lag = math.Max(lag, t.Fn.MaxLag())
	}
	return lag
}

func (g *Graph) Params() []Param {
	out := make([]Param, len(g.params))
	copy(out, g.params)
	return out
}

func (g *Graph) ParamIndex(name string) (int, bool) {
	i, ok := g.paramIndex[name]
	return i, ok
}

// ParamVector returns the declared constant values with overrides applied.
// Overriding an undeclared constant is an error.
func (g *Graph) ParamVector(overrides map[string]float64) ([]float64, error) {
	out := make([]float64, len(g.params))
	for i, p := range g.params {
		out[i] = p.Value
	}
	for _, name := range sortedKeys(overrides) {
		i, ok := g.paramIndex[name]
		if !ok {
			return nil, fmt.Errorf("graph: unknown constant %q", name)
		}
		out[i] = overrides[name]
	}
	return out, nil
}

// InitialState builds a state vector from identity strings. Unlisted
// entities start at zero; magnitudes must be non-negative.
func (g *Graph) InitialState(values map[string]float64) ([]float64, error) {
	x := make([]float64, len(g.entities))
	for _, key := range sortedKeys(values) {
		id, err := ParseEntityID(key)
		if err != nil {
			return nil, err
		}
		i, ok := g.index[id]
		if !ok {
			return nil, fmt.Errorf("graph: unknown entity %s", key)
		}
		v := values[key]
		if v < 0 {
			return nil, fmt.Errorf("graph: negative initial magnitude %g for %s", v, key)
		}
		x[i] = v
	}
	return x, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
