package rate

import (
	"fmt"
	"math"
	"sort"
)

// Helper is a pure function of its arguments. Fn reports an argument
// outside the helper's domain with a *Violation.
type Helper struct {
	Name  string
	Arity int
	Fn    func(args []float64) (float64, error)
}

// Violation is returned by helpers for out-of-domain input. The evaluator
// turns it into a DomainError carrying the edge and time.
type Violation struct {
	Arg    int
	Value  float64
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("argument %d = %g: %s", v.Arg, v.Value, v.Reason)
}

type Registry struct {
	helpers map[string]Helper
}

// NewRegistry returns a registry holding the builtin helpers.
func NewRegistry() *Registry {
	r := &Registry{helpers: make(map[string]Helper)}
	for _, h := range builtins {
		r.helpers[h.Name] = h
	}
	return r
}

func (r *Registry) Register(h Helper) error {
	if h.Name == "" || h.Fn == nil {
		return fmt.Errorf("rate: helper needs a name and a function")
	}
	if _, ok := r.helpers[h.Name]; ok {
		return fmt.Errorf("rate: helper %q already registered", h.Name)
	}
	r.helpers[h.Name] = h
	return nil
}

func (r *Registry) Lookup(name string) (Helper, bool) {
	h, ok := r.helpers[name]
	return h, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.helpers))
	for n := range r.helpers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var builtins = []Helper{
	{Name: "hill", Arity: 5, Fn: hill},
	{Name: "sigmoid", Arity: 3, Fn: sigmoid},
	{Name: "step", Arity: 2, Fn: step},
	{Name: "mm", Arity: 3, Fn: michaelisMenten},
	{Name: "exp", Arity: 1, Fn: func(a []float64) (float64, error) { return math.Exp(a[0]), nil }},
	{Name: "log", Arity: 1, Fn: logHelper},
	{Name: "min", Arity: 2, Fn: func(a []float64) (float64, error) { return math.Min(a[0], a[1]), nil }},
	{Name: "max", Arity: 2, Fn: func(a []float64) (float64, error) { return math.Max(a[0], a[1]), nil }},
}

// hill(x, kmin, kmax, x50, n) = kmin + (kmax-kmin) / (1 + (x50/x)^n)
func hill(a []float64) (float64, error) {
	x, kmin, kmax, x50, n := a[0], a[1], a[2], a[3], a[4]
	if x < 0 {
		return 0, &Violation{Arg: 0, Value: x, Reason: "hill input must be non-negative"}
	}
	if x50 <= 0 {
		return 0, &Violation{Arg: 3, Value: x50, Reason: "half-max must be positive"}
	}
	if x == 0 {
		return kmin, nil
	}
	return kmin + (kmax-kmin)/(1+math.Pow(x50/x, n)), nil
}

func sigmoid(a []float64) (float64, error) {
	x, x50, slope := a[0], a[1], a[2]
	return 1 / (1 + math.Exp(-slope*(x-x50))), nil
}

func step(a []float64) (float64, error) {
	if a[0] >= a[1] {
		return 1, nil
	}
	return 0, nil
}

func michaelisMenten(a []float64) (float64, error) {
	x, vmax, km := a[0], a[1], a[2]
	if x < 0 {
		return 0, &Violation{Arg: 0, Value: x, Reason: "substrate must be non-negative"}
	}
	if km+x == 0 {
		return 0, &Violation{Arg: 2, Value: km, Reason: "km + x must be non-zero"}
	}
	return vmax * x / (km + x), nil
}

func logHelper(a []float64) (float64, error) {
	if a[0] <= 0 {
		return 0, &Violation{Arg: 0, Value: a[0], Reason: "log input must be positive"}
	}
	return math.Log(a[0]), nil
}
