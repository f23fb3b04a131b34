package rate

import (
	"fmt"
	"math"
)

// Binder resolves the free variables of a function when it is attached to
// a concrete edge.
type Binder interface {
	BindRef(ref Ref) (int, error)
	BindConst(name string) (int, error)
	Helpers() *Registry
}

// Program is a Func with every reference resolved to an index.
type Program struct {
	label string
	src   Func
	root  node
	refs  []int
}

type node struct {
	op     Op
	value  float64
	index  int
	ref    string
	lag    float64
	def    float64
	hasDef bool
	helper Helper
	args   []node
}

// Compile validates f and binds it. label identifies the owner (usually an
// edge) in evaluation errors.
func Compile(f Func, label string, b Binder) (*Program, error) {
	if err := f.Validate(b.Helpers()); err != nil {
		return nil, err
	}
	p := &Program{label: label, src: f}
	root, err := p.bind(f, b)
	if err != nil {
		return nil, err
	}
	p.root = root
	return p, nil
}

func (p *Program) bind(f Func, b Binder) (node, error) {
	n := node{op: f.Op, value: f.Value, lag: f.Lag, index: -1}
	switch f.Op {
	case OpConst:
		idx, err := b.BindConst(f.Name)
		if err != nil {
			return n, err
		}
		n.index = idx
		n.ref = f.Name
	case OpValue, OpDelay, OpWindow:
		idx, err := b.BindRef(*f.Ref)
		if err != nil {
			return n, err
		}
		n.index = idx
		n.ref = f.Ref.String()
		if f.Default != nil {
			n.def, n.hasDef = *f.Default, true
		}
		p.refs = append(p.refs, idx)
	case OpCall:
		h, ok := b.Helpers().Lookup(f.Name)
		if !ok {
			return n, fmt.Errorf("call: unknown helper %q", f.Name)
		}
		n.helper = h
	}
	if len(f.Args) > 0 {
		n.args = make([]node, len(f.Args))
		for i, a := range f.Args {
			child, err := p.bind(a, b)
			if err != nil {
				return n, err
			}
			n.args[i] = child
		}
	}
	return n, nil
}

func (p *Program) Label() string { return p.label }

// Func returns the descriptor the program was compiled from.
func (p *Program) Func() Func { return p.src }

// Refs lists the entity indices read by the program, in reference order.
func (p *Program) Refs() []int {
	out := make([]int, len(p.refs))
	copy(out, p.refs)
	return out
}

// HasHistory reports whether the program reads past magnitudes.
func (p *Program) HasHistory() bool {
	return hasHistory(p.root)
}

func hasHistory(n node) bool {
	if n.op == OpDelay || n.op == OpWindow {
		return true
	}
	for _, a := range n.args {
		if hasHistory(a) {
			return true
		}
	}
	return false
}

// MaxLag is the longest delay or window width the program reads.
func (p *Program) MaxLag() float64 {
	return maxLag(p.root)
}

func maxLag(n node) float64 {
	lag := 0.0
	if n.op == OpDelay || n.op == OpWindow {
		lag = n.lag
	}
	for _, a := range n.args {
		lag = math.Max(lag, maxLag(a))
	}
	return lag
}

func (p *Program) String() string { return p.src.String() }
