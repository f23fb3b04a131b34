// Package spec holds the declarative description of a cell therapy model:
// compartments, elements with internal states, constants, relationships and
// local terms. A Model is read-only once handed to the graph builder.
package spec

import (
	"fmt"
	"strings"

	"github.com/san-kum/celltx/internal/rate"
)

type Scope string

const (
	Global         Scope = "global"
	PerCompartment Scope = "compartment"
)

// Any matches every compartment or state in a Selector.
const Any = "*"

type Compartment struct {
	Name     string   `yaml:"name"`
	Adjacent []string `yaml:"adjacent,omitempty"`
}

// Element is a species. An empty States list means the element has no
// internal state. Compartments optionally restricts a per-compartment
// element to a subset of the model's compartments.
type Element struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind,omitempty"`
	Scope        Scope    `yaml:"scope"`
	States       []string `yaml:"states,omitempty"`
	Compartments []string `yaml:"compartments,omitempty"`
}

type Constant struct {
	Name        string  `yaml:"name"`
	Value       float64 `yaml:"value"`
	Description string  `yaml:"description,omitempty"`
}

// Selector picks entities of one element. Compartment and State accept Any;
// empty means global or stateless.
type Selector struct {
	Element     string `yaml:"element"`
	Compartment string `yaml:"compartment,omitempty"`
	State       string `yaml:"state,omitempty"`
}

func Select(element, compartment, state string) Selector {
	return Selector{Element: element, Compartment: compartment, State: state}
}

// Concrete reports whether the selector names exactly one entity.
func (s Selector) Concrete() bool {
	return s.Compartment != Any && s.State != Any
}

func (s Selector) String() string {
	c, st := s.Compartment, s.State
	if c == "" {
		c = "-"
	}
	if st == "" {
		st = "-"
	}
	return fmt.Sprintf("[%s].[%s].[%s]", s.Element, c, st)
}

// Pairing constrains which (source, target) combinations of a relationship
// become edges.
type Pairing struct {
	SameCompartment bool `yaml:"same_compartment,omitempty"`
	SameState       bool `yaml:"same_state,omitempty"`
	Adjacent        bool `yaml:"adjacent,omitempty"`
}

// Relationship is an edge template.
type Relationship struct {
	Name    string    `yaml:"name"`
	Kind    string    `yaml:"kind,omitempty"`
	Source  Selector  `yaml:"source"`
	Target  Selector  `yaml:"target"`
	Pairing Pairing   `yaml:"pairing,omitempty"`
	Func    rate.Func `yaml:"func"`
}

// Term contributes Func directly to the derivative of every matched entity:
// growth, death, degradation and external forcing.
type Term struct {
	Name   string    `yaml:"name"`
	Kind   string    `yaml:"kind,omitempty"`
	Target Selector  `yaml:"target"`
	Func   rate.Func `yaml:"func"`
}

type Model struct {
	Name          string         `yaml:"name"`
	Compartments  []Compartment  `yaml:"compartments"`
	Elements      []Element      `yaml:"elements"`
	Constants     []Constant     `yaml:"constants,omitempty"`
	Relationships []Relationship `yaml:"relationships,omitempty"`
	Terms         []Term         `yaml:"terms,omitempty"`
}

func (m *Model) Compartment(name string) (Compartment, bool) {
	for _, c := range m.Compartments {
		if c.Name == name {
			return c, true
		}
	}
	return Compartment{}, false
}

func (m *Model) Element(name string) (Element, bool) {
	for _, e := range m.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

func (m *Model) Constant(name string) (Constant, bool) {
	for _, c := range m.Constants {
		if c.Name == name {
			return c, true
		}
	}
	return Constant{}, false
}

// Adjacent reports whether a and b are linked. Links are undirected: a link
// declared on either compartment counts.
func (m *Model) Adjacent(a, b string) bool {
	for _, c := range m.Compartments {
		for _, adj := range c.Adjacent {
			if (c.Name == a && adj == b) || (c.Name == b && adj == a) {
				return true
			}
		}
	}
	return false
}

// Neighbors lists the compartments adjacent to name in declaration order.
func (m *Model) Neighbors(name string) []string {
	var out []string
	for _, c := range m.Compartments {
		if c.Name != name && m.Adjacent(name, c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// ElementCompartments returns the compartments an element exists in; a
// single empty name for global elements.
func (m *Model) ElementCompartments(e Element) []string {
	if e.Scope == Global {
		return []string{""}
	}
	if len(e.Compartments) > 0 {
		return e.Compartments
	}
	out := make([]string, len(m.Compartments))
	for i, c := range m.Compartments {
		out[i] = c.Name
	}
	return out
}

// ElementStates returns the state space of an element; a single empty
// state for stateless elements.
func ElementStates(e Element) []string {
	if len(e.States) == 0 {
		return []string{""}
	}
	return e.States
}

// BinaryStates enumerates every combination of the named binary flags, all
// flags off first, the last flag varying fastest.
func BinaryStates(flags ...string) []string {
	n := len(flags)
	out := make([]string, 0, 1<<n)
	for i := 0; i < 1<<n; i++ {
		parts := make([]string, n)
		for j, f := range flags {
			bit := (i >> (n - 1 - j)) & 1
			parts[j] = fmt.Sprintf("%s=%d", f, bit)
		}
		out = append(out, strings.Join(parts, ","))
	}
	return out
}

// BinaryState names the state with exactly the given flags set.
func BinaryState(flags []string, on ...string) string {
	set := make(map[string]bool, len(on))
	for _, f := range on {
		set[f] = true
	}
	parts := make([]string, len(flags))
	for j, f := range flags {
		bit := 0
		if set[f] {
			bit = 1
		}
		parts[j] = fmt.Sprintf("%s=%d", f, bit)
	}
	return strings.Join(parts, ",")
}
