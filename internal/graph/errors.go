package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStructural is matched by every StructuralError.
var ErrStructural = errors.New("graph: structural error")

type StructuralKind string

const (
	KindUndeclared      StructuralKind = "undeclared"
	KindScope           StructuralKind = "scope"
	KindCrossSpecies    StructuralKind = "cross_species"
	KindSelfLoop        StructuralKind = "self_loop"
	KindDuplicate       StructuralKind = "duplicate"
	KindInvalidName     StructuralKind = "invalid_name"
	KindInvalidFunction StructuralKind = "invalid_function"
)

// StructuralError rejects a model at build time. Source and Target are set
// when the problem involves a concrete pair of entities.
type StructuralError struct {
	Kind         StructuralKind
	Relationship string
	Source       *EntityID
	Target       *EntityID
	Detail       string
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph: %s", e.Kind)
	if e.Relationship != "" {
		fmt.Fprintf(&b, " in %q", e.Relationship)
	}
	if e.Source != nil && e.Target != nil {
		fmt.Fprintf(&b, ": %s -> %s", e.Source, e.Target)
	} else if e.Source != nil {
		fmt.Fprintf(&b, ": %s", e.Source)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	return b.String()
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

func structural(kind StructuralKind, owner, format string, args ...any) *StructuralError {
	return &StructuralError{Kind: kind, Relationship: owner, Detail: fmt.Sprintf(format, args...)}
}
