package rate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbound is matched by every UnboundVariableError.
	ErrUnbound = errors.New("rate: unbound variable")

	// ErrDomain is matched by every DomainError.
	ErrDomain = errors.New("rate: argument outside helper domain")

	// ErrNoHistory is returned when a history-dependent function is
	// evaluated without a history.
	ErrNoHistory = errors.New("rate: history lookup without history store")
)

// UnboundVariableError reports a reference that does not resolve to an
// entity or parameter of the current graph.
type UnboundVariableError struct {
	Label string
	Ref   string
	Time  float64
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("rate: unbound variable %s in %s at t=%g", e.Ref, e.Label, e.Time)
}

func (e *UnboundVariableError) Unwrap() error { return ErrUnbound }

// DomainError reports an out-of-domain helper argument. Values are never
// clamped to make the call succeed.
type DomainError struct {
	Label  string
	Helper string
	Arg    int
	Value  float64
	Reason string
	Time   float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("rate: %s argument %d = %g in %s at t=%g: %s", e.Helper, e.Arg, e.Value, e.Label, e.Time, e.Reason)
}

func (e *DomainError) Unwrap() error { return ErrDomain }
