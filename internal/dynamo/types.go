package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Sum is the total magnitude, summed in index order.
func (s State) Sum() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum
}

// Negatives returns the indices of components below zero.
func (s State) Negatives() []int {
	var out []int
	for i, v := range s {
		if v < 0 {
			out = append(out, i)
		}
	}
	return out
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// System is a derivative function. Derive must not modify x.
type System interface {
	Derive(x State, t float64) (State, error)
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, t, dt float64) (State, error)
}

// AdaptiveIntegrator returns the next state and the suggested next step.
// A step whose error estimate exceeds tol yields ErrStepRejected together
// with a smaller suggested step and a nil state.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, t, dt, tol float64) (State, float64, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, t float64)
}

// NegativityPolicy decides what happens when a magnitude drops below zero.
type NegativityPolicy string

const (
	NegativityAllow  NegativityPolicy = "allow"
	NegativityClamp  NegativityPolicy = "clamp"
	NegativityReject NegativityPolicy = "reject"
)

func ParseNegativityPolicy(s string) (NegativityPolicy, error) {
	switch p := NegativityPolicy(s); p {
	case NegativityAllow, NegativityClamp, NegativityReject:
		return p, nil
	case "":
		return NegativityClamp, nil
	}
	return "", fmt.Errorf("dynamo: unknown negativity policy %q", s)
}

type Config struct {
	Dt         float64
	Duration   float64
	Tolerance  float64
	MaxDt      float64
	MinDt      float64
	Adaptive   bool
	Negativity NegativityPolicy
}

func DefaultConfig() Config {
	return Config{
		Dt:         0.01,
		Duration:   10.0,
		Tolerance:  1e-6,
		MaxDt:      0.1,
		MinDt:      1e-8,
		Adaptive:   false,
		Negativity: NegativityClamp,
	}
}

func (c Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrParameterBounds, c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrParameterBounds, c.Duration)
	}
	if c.Adaptive {
		if c.Tolerance <= 0 {
			return fmt.Errorf("%w: tolerance must be positive for adaptive stepping", ErrParameterBounds)
		}
		if c.MinDt <= 0 || c.MaxDt < c.MinDt {
			return fmt.Errorf("%w: need 0 < min_dt <= max_dt, got %g and %g", ErrParameterBounds, c.MinDt, c.MaxDt)
		}
	}
	if _, err := ParseNegativityPolicy(string(c.Negativity)); err != nil {
		return err
	}
	return nil
}
