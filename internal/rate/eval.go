package rate

import (
	"errors"
	"math"

	"github.com/san-kum/celltx/internal/history"
)

// History is the read side of a history store.
type History interface {
	Lookup(entity int, t float64) (float64, error)
	Average(entity int, from, to float64) (float64, error)
}

// Evaluate computes the program at time t. x is the current state vector and
// params the parameter vector; neither is modified.
func Evaluate(p *Program, t float64, x, params []float64, h History) (float64, error) {
	e := evaluator{p: p, t: t, x: x, params: params, h: h}
	return e.eval(&p.root)
}

type evaluator struct {
	p      *Program
	t      float64
	x      []float64
	params []float64
	h      History
}

func (e *evaluator) eval(n *node) (float64, error) {
	switch n.op {
	case OpLit:
		return n.value, nil
	case OpTime:
		return e.t, nil
	case OpConst:
		if n.index < 0 || n.index >= len(e.params) {
			return 0, e.unbound(n.ref)
		}
		return e.params[n.index], nil
	case OpValue:
		if n.index < 0 || n.index >= len(e.x) {
			return 0, e.unbound(n.ref)
		}
		return e.x[n.index], nil
	case OpDelay:
		return e.delayed(n)
	case OpWindow:
		return e.windowed(n)
	case OpNeg:
		v, err := e.eval(&n.args[0])
		return -v, err
	case OpAdd:
		sum := 0.0
		for i := range n.args {
			v, err := e.eval(&n.args[i])
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	case OpMul:
		prod := 1.0
		for i := range n.args {
			v, err := e.eval(&n.args[i])
			if err != nil {
				return 0, err
			}
			prod *= v
		}
		return prod, nil
	}

	args, err := e.evalArgs(n)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case OpSub:
		return args[0] - args[1], nil
	case OpDiv:
		if args[1] == 0 {
			return 0, e.domain("div", 1, args[1], "division by zero")
		}
		return args[0] / args[1], nil
	case OpPow:
		if args[0] == 0 && args[1] < 0 {
			return 0, e.domain("pow", 0, args[0], "zero base with negative exponent")
		}
		v := math.Pow(args[0], args[1])
		if math.IsNaN(v) {
			return 0, e.domain("pow", 0, args[0], "negative base with fractional exponent")
		}
		if math.IsInf(v, 0) {
			return 0, e.domain("pow", 1, args[1], "result overflows")
		}
		return v, nil
	case OpCall:
		v, err := n.helper.Fn(args)
		if err != nil {
			var viol *Violation
			if errors.As(err, &viol) {
				return 0, e.domain(n.helper.Name, viol.Arg, viol.Value, viol.Reason)
			}
			return 0, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			first := math.NaN()
			if len(args) > 0 {
				first = args[0]
			}
			return 0, e.domain(n.helper.Name, 0, first, "result is not finite")
		}
		return v, nil
	}
	return 0, e.unbound(string(n.op))
}

func (e *evaluator) evalArgs(n *node) ([]float64, error) {
	args := make([]float64, len(n.args))
	for i := range n.args {
		v, err := e.eval(&n.args[i])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (e *evaluator) delayed(n *node) (float64, error) {
	if n.index < 0 || n.index >= len(e.x) {
		return 0, e.unbound(n.ref)
	}
	if n.lag == 0 {
		return e.x[n.index], nil
	}
	if e.h == nil {
		return 0, ErrNoHistory
	}
	v, err := e.h.Lookup(n.index, e.t-n.lag)
	if err != nil && n.hasDef && errors.Is(err, history.ErrOutOfRange) {
		return n.def, nil
	}
	return v, err
}

func (e *evaluator) windowed(n *node) (float64, error) {
	if n.index < 0 || n.index >= len(e.x) {
		return 0, e.unbound(n.ref)
	}
	if e.h == nil {
		return 0, ErrNoHistory
	}
	v, err := e.h.Average(n.index, e.t-n.lag, e.t)
	if err != nil && n.hasDef && errors.Is(err, history.ErrOutOfRange) {
		return n.def, nil
	}
	return v, err
}

func (e *evaluator) unbound(ref string) error {
	return &UnboundVariableError{Label: e.p.label, Ref: ref, Time: e.t}
}

func (e *evaluator) domain(helper string, arg int, value float64, reason string) error {
	return &DomainError{Label: e.p.label, Helper: helper, Arg: arg, Value: value, Reason: reason, Time: e.t}
}
