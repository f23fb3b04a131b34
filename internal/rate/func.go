package rate

import (
	"fmt"
	"strconv"
	"strings"
)

type Op string

const (
	OpLit    Op = "lit"
	OpConst  Op = "const"
	OpValue  Op = "value"
	OpDelay  Op = "delay"
	OpWindow Op = "window"
	OpTime   Op = "time"
	OpAdd    Op = "add"
	OpSub    Op = "sub"
	OpMul    Op = "mul"
	OpDiv    Op = "div"
	OpNeg    Op = "neg"
	OpPow    Op = "pow"
	OpCall   Op = "call"
)

// Placeholders usable in a Ref. They resolve against the endpoints of the
// edge (or the entity of a term) the function is bound to.
const (
	SourceRef = "$source"
	TargetRef = "$target"
)

// Ref addresses an entity from inside a function. Element may be a
// placeholder, in which case Compartment and State are ignored.
type Ref struct {
	Element     string `yaml:"element" json:"element"`
	Compartment string `yaml:"compartment,omitempty" json:"compartment,omitempty"`
	State       string `yaml:"state,omitempty" json:"state,omitempty"`
}

func Source() Ref { return Ref{Element: SourceRef} }
func Target() Ref { return Ref{Element: TargetRef} }

// Entity references an element by name. Empty compartment or state means
// global or stateless respectively.
func Entity(element, compartment, state string) Ref {
	return Ref{Element: element, Compartment: compartment, State: state}
}

// Local references an element in the same compartment as the edge source.
func Local(element, state string) Ref {
	return Ref{Element: element, Compartment: SourceRef, State: state}
}

func (r Ref) String() string {
	if r.Element == SourceRef || r.Element == TargetRef {
		return r.Element
	}
	c, s := r.Compartment, r.State
	if c == "" {
		c = "-"
	}
	if s == "" {
		s = "-"
	}
	return fmt.Sprintf("[%s].[%s].[%s]", r.Element, c, s)
}

// Func is a node of an edge function expression tree.
type Func struct {
	Op      Op       `yaml:"op" json:"op"`
	Value   float64  `yaml:"value,omitempty" json:"value,omitempty"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Ref     *Ref     `yaml:"ref,omitempty" json:"ref,omitempty"`
	Lag     float64  `yaml:"lag,omitempty" json:"lag,omitempty"`
	Default *float64 `yaml:"default,omitempty" json:"default,omitempty"`
	Args    []Func   `yaml:"args,omitempty" json:"args,omitempty"`
}

func Lit(v float64) Func     { return Func{Op: OpLit, Value: v} }
func Const(name string) Func { return Func{Op: OpConst, Name: name} }
func Value(ref Ref) Func     { return Func{Op: OpValue, Ref: &ref} }
func Time() Func             { return Func{Op: OpTime} }
func Add(args ...Func) Func  { return Func{Op: OpAdd, Args: args} }
func Mul(args ...Func) Func  { return Func{Op: OpMul, Args: args} }
func Sub(a, b Func) Func     { return Func{Op: OpSub, Args: []Func{a, b}} }
func Div(a, b Func) Func     { return Func{Op: OpDiv, Args: []Func{a, b}} }
func Pow(a, b Func) Func     { return Func{Op: OpPow, Args: []Func{a, b}} }
func Neg(a Func) Func        { return Func{Op: OpNeg, Args: []Func{a}} }
func Delay(ref Ref, lag float64) Func {
	return Func{Op: OpDelay, Ref: &ref, Lag: lag}
}

// DelayOr is Delay with an explicit value for times before the first
// recorded sample.
func DelayOr(ref Ref, lag, prehistory float64) Func {
	f := Delay(ref, lag)
	f.Default = &prehistory
	return f
}

// Window averages the referenced magnitude over the trailing width.
func Window(ref Ref, width float64) Func {
	return Func{Op: OpWindow, Ref: &ref, Lag: width}
}

func Call(helper string, args ...Func) Func {
	return Func{Op: OpCall, Name: helper, Args: args}
}

// Linear is the common constant-rate form k * magnitude(ref).
func Linear(k string, ref Ref) Func {
	return Mul(Const(k), Value(ref))
}

// References reports whether any reference in f names placeholder, either as
// the element or as the compartment.
func (f Func) References(placeholder string) bool {
	if f.Ref != nil && (f.Ref.Element == placeholder || f.Ref.Compartment == placeholder) {
		return true
	}
	for _, a := range f.Args {
		if a.References(placeholder) {
			return true
		}
	}
	return false
}

// Validate checks arity and required fields. Helper names are checked
// against reg when it is non-nil.
func (f Func) Validate(reg *Registry) error {
	switch f.Op {
	case OpLit, OpTime:
		return nil
	case OpConst:
		if f.Name == "" {
			return fmt.Errorf("const: missing name")
		}
		return nil
	case OpValue, OpDelay, OpWindow:
		if f.Ref == nil || f.Ref.Element == "" {
			return fmt.Errorf("%s: missing entity reference", f.Op)
		}
		if f.Op == OpDelay && f.Lag < 0 {
			return fmt.Errorf("delay: negative lag %g", f.Lag)
		}
		if f.Op == OpWindow && f.Lag <= 0 {
			return fmt.Errorf("window: width must be positive, got %g", f.Lag)
		}
		return nil
	case OpAdd, OpMul:
		if len(f.Args) == 0 {
			return fmt.Errorf("%s: needs at least one argument", f.Op)
		}
	case OpSub, OpDiv, OpPow:
		if len(f.Args) != 2 {
			return fmt.Errorf("%s: needs 2 arguments, got %d", f.Op, len(f.Args))
		}
	case OpNeg:
		if len(f.Args) != 1 {
			return fmt.Errorf("neg: needs 1 argument, got %d", len(f.Args))
		}
	case OpCall:
		if reg != nil {
			h, ok := reg.Lookup(f.Name)
			if !ok {
				return fmt.Errorf("call: unknown helper %q", f.Name)
			}
			if h.Arity != len(f.Args) {
				return fmt.Errorf("call %s: needs %d arguments, got %d", f.Name, h.Arity, len(f.Args))
			}
		}
	default:
		return fmt.Errorf("unknown op %q", f.Op)
	}
	for i, a := range f.Args {
		if err := a.Validate(reg); err != nil {
			return fmt.Errorf("%s arg %d: %w", f.Op, i, err)
		}
	}
	return nil
}

// Refs returns every entity reference in the tree, depth first.
func (f Func) Refs() []Ref {
	var out []Ref
	if f.Ref != nil {
		out = append(out, *f.Ref)
	}
	for _, a := range f.Args {
		out = append(out, a.Refs()...)
	}
	return out
}

// Consts returns every constant name in the tree, depth first.
func (f Func) Consts() []string {
	var out []string
	if f.Op == OpConst {
		out = append(out, f.Name)
	}
	for _, a := range f.Args {
		out = append(out, a.Consts()...)
	}
	return out
}

func (f Func) String() string {
	switch f.Op {
	case OpLit:
		return strconv.FormatFloat(f.Value, 'g', -1, 64)
	case OpConst:
		return f.Name
	case OpTime:
		return "t"
	case OpValue:
		return f.Ref.String()
	case OpDelay:
		return fmt.Sprintf("%s(t-%g)", f.Ref, f.Lag)
	case OpWindow:
		return fmt.Sprintf("mean(%s, %g)", f.Ref, f.Lag)
	case OpNeg:
		return "-" + f.Args[0].String()
	case OpCall:
		return fmt.Sprintf("%s(%s)", f.Name, joinArgs(f.Args, ", "))
	case OpAdd:
		return "(" + joinArgs(f.Args, " + ") + ")"
	case OpSub:
		return "(" + joinArgs(f.Args, " - ") + ")"
	case OpMul:
		return joinArgs(f.Args, "*")
	case OpDiv:
		return joinArgs(f.Args, "/")
	case OpPow:
		return joinArgs(f.Args, "^")
	}
	return string(f.Op)
}

func joinArgs(args []Func, sep string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, sep)
}
