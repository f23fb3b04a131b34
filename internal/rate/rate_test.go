package rate

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/san-kum/celltx/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinder resolves $source to 0, $target to 1 and named elements by a
// fixed table.
type fakeBinder struct {
	entities map[string]int
	consts   map[string]int
	reg      *Registry
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{
		entities: map[string]int{"drug": 2},
		consts:   map[string]int{"k": 0, "kmax": 1},
		reg:      NewRegistry(),
	}
}

func (b *fakeBinder) BindRef(r Ref) (int, error) {
	switch r.Element {
	case SourceRef:
		return 0, nil
	case TargetRef:
		return 1, nil
	}
	if i, ok := b.entities[r.Element]; ok {
		return i, nil
	}
	return -1, fmt.Errorf("undeclared element %q", r.Element)
}

func (b *fakeBinder) BindConst(name string) (int, error) {
	if i, ok := b.consts[name]; ok {
		return i, nil
	}
	return -1, fmt.Errorf("undeclared constant %q", name)
}

func (b *fakeBinder) Helpers() *Registry { return b.reg }

func mustCompile(t *testing.T, f Func) *Program {
	t.Helper()
	p, err := Compile(f, "edge", newFakeBinder())
	require.NoError(t, err)
	return p
}

func TestEvaluateExpressions(t *testing.T) {
	x := []float64{4, 2, 9}
	params := []float64{0.5, 3}

	tests := []struct {
		name string
		fn   Func
		want float64
	}{
		{"linear", Linear("k", Source()), 2},
		{"literal", Lit(1.5), 1.5},
		{"time", Time(), 10},
		{"sum", Add(Value(Source()), Value(Target()), Lit(1)), 7},
		{"difference", Sub(Value(Source()), Value(Target())), 2},
		{"ratio", Div(Value(Entity("drug", "", "")), Value(Source())), 2.25},
		{"power", Pow(Value(Target()), Lit(3)), 8},
		{"negation", Neg(Const("kmax")), -3},
		{"hill at half max", Call("hill", Value(Source()), Lit(0), Const("kmax"), Lit(4), Lit(2)), 1.5},
		{"min", Call("min", Value(Source()), Value(Target())), 2},
		{"step above threshold", Call("step", Value(Source()), Lit(4)), 1},
		{"michaelis menten", Call("mm", Value(Source()), Lit(10), Lit(4)), 5},
		{"zero-lag delay", Delay(Source(), 0), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustCompile(t, tt.fn)
			got, err := Evaluate(p, 10, x, params, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestEvaluateDoesNotMutateInputs(t *testing.T) {
	x := []float64{4, 2, 9}
	params := []float64{0.5, 3}
	p := mustCompile(t, Mul(Const("k"), Value(Source()), Value(Target())))

	_, err := Evaluate(p, 0, x, params, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 2, 9}, x)
	assert.Equal(t, []float64{0.5, 3}, params)
}

func TestHillDomain(t *testing.T) {
	p := mustCompile(t, Call("hill", Value(Source()), Lit(0), Lit(1), Lit(1), Lit(2)))

	v, err := Evaluate(p, 0, []float64{0, 0, 0}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = Evaluate(p, 2.5, []float64{-1, 0, 0}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDomain))

	var de *DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "hill", de.Helper)
	assert.Equal(t, 0, de.Arg)
	assert.Equal(t, -1.0, de.Value)
	assert.Equal(t, "edge", de.Label)
	assert.Equal(t, 2.5, de.Time)
}

func TestDivisionByZero(t *testing.T) {
	p := mustCompile(t, Div(Lit(1), Value(Target())))
	_, err := Evaluate(p, 0, []float64{1, 0, 0}, nil, nil)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestNonFiniteResultsAreDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		fn     Func
		helper string
		value  float64
	}{
		{"zero base negative exponent", Pow(Value(Target()), Lit(-1)), "pow", 0},
		{"power overflow", Pow(Lit(10), Lit(400)), "pow", 400},
		{"negative base fractional exponent", Pow(Lit(-2), Lit(0.5)), "pow", -2},
		{"exp overflow", Call("exp", Lit(1000)), "exp", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustCompile(t, tt.fn)
			_, err := Evaluate(p, 1, []float64{1, 0, 0}, nil, nil)
			require.ErrorIs(t, err, ErrDomain)

			var de *DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.helper, de.Helper)
			assert.Equal(t, tt.value, de.Value)
		})
	}
}

func TestUnboundConstant(t *testing.T) {
	p := mustCompile(t, Const("kmax"))
	_, err := Evaluate(p, 1, nil, []float64{0.1}, nil)
	require.Error(t, err)

	var ue *UnboundVariableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "kmax", ue.Ref)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestCompileRejects(t *testing.T) {
	tests := []struct {
		name string
		fn   Func
	}{
		{"unknown helper", Call("gompertz", Lit(1))},
		{"wrong arity", Call("hill", Lit(1))},
		{"negative lag", Delay(Source(), -1)},
		{"empty window", Window(Source(), 0)},
		{"unknown op", Func{Op: "sqrt"}},
		{"undeclared constant", Const("kd")},
		{"undeclared element", Value(Entity("il2", "", ""))},
		{"missing reference", Func{Op: OpValue}},
		{"sub arity", Func{Op: OpSub, Args: []Func{Lit(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.fn, "edge", newFakeBinder())
			assert.Error(t, err)
		})
	}
}

func TestDelayReadsHistory(t *testing.T) {
	h := history.New([]string{"s", "t", "drug"})
	require.NoError(t, h.RecordState(0, []float64{1, 0, 0}))
	require.NoError(t, h.RecordState(1, []float64{3, 0, 0}))
	require.NoError(t, h.RecordState(2, []float64{5, 0, 0}))

	p := mustCompile(t, Delay(Source(), 1.5))
	assert.True(t, p.HasHistory())

	v, err := Evaluate(p, 2, []float64{5, 0, 0}, nil, h)
	require.NoError(t, err)
	assert.InDelta(t, 2, v, 1e-12)

	w := mustCompile(t, Window(Source(), 2))
	v, err = Evaluate(w, 2, []float64{5, 0, 0}, nil, h)
	require.NoError(t, err)
	assert.InDelta(t, 3, v, 1e-12)
}

func TestDelayBeforeFirstSample(t *testing.T) {
	h := history.New([]string{"s", "t", "drug"})
	require.NoError(t, h.RecordState(0, []float64{1, 0, 0}))

	p := mustCompile(t, Delay(Source(), 2))
	_, err := Evaluate(p, 1, []float64{1, 0, 0}, nil, h)
	assert.ErrorIs(t, err, history.ErrOutOfRange)

	q := mustCompile(t, DelayOr(Source(), 2, 0.25))
	v, err := Evaluate(q, 1, []float64{1, 0, 0}, nil, h)
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	_, err = Evaluate(p, 1, []float64{1, 0, 0}, nil, nil)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestProgramRefs(t *testing.T) {
	p := mustCompile(t, Add(Value(Target()), Delay(Entity("drug", "", ""), 1), Value(Source())))
	assert.Equal(t, []int{1, 2, 0}, p.Refs())

	refs := p.Refs()
	refs[0] = 99
	assert.Equal(t, 1, p.Refs()[0])
	assert.Equal(t, "edge", p.Label())
}

func TestReferences(t *testing.T) {
	f := Mul(Const("k"), Sub(Value(Source()), Delay(Target(), 1)))
	assert.True(t, f.References(SourceRef))
	assert.True(t, f.References(TargetRef))
	assert.False(t, Linear("k", Source()).References(TargetRef))
	assert.True(t, Value(Local("il2", "")).References(SourceRef))
}

func TestMaxLag(t *testing.T) {
	p := mustCompile(t, Add(Delay(Source(), 2), Window(Source(), 3.5), Value(Source())))
	assert.Equal(t, 3.5, p.MaxLag())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Contains(t, reg.Names(), "hill")

	err := reg.Register(Helper{Name: "cube", Arity: 1, Fn: func(a []float64) (float64, error) {
		return math.Pow(a[0], 3), nil
	}})
	require.NoError(t, err)
	assert.Error(t, reg.Register(Helper{Name: "cube", Arity: 1, Fn: func([]float64) (float64, error) { return 0, nil }}))
	assert.Error(t, reg.Register(Helper{Name: "nofn"}))

	h, ok := reg.Lookup("cube")
	require.True(t, ok)
	v, _ := h.Fn([]float64{2})
	assert.Equal(t, 8.0, v)
}

func TestFuncString(t *testing.T) {
	f := Add(Linear("k", Source()), Call("hill", Value(Local("il2", "")), Lit(0), Lit(1), Lit(5), Lit(2)))
	assert.Equal(t, "(k*$source + hill([il2].[$source].[-], 0, 1, 5, 2))", f.String())
	assert.Equal(t, []string{"k"}, f.Consts())
	assert.Len(t, f.Refs(), 2)
}
