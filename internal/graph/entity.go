package graph

import (
	"fmt"
	"strings"
)

// Sentinel stands in for the compartment of a global element or the state of
// a stateless one in an entity identity string.
const Sentinel = "-"

// EntityID is the (element, compartment, state) triple naming one quantity.
// Compartment and State are empty for global and stateless elements.
type EntityID struct {
	Element     string
	Compartment string
	State       string
}

// String renders the identity as "[element].[compartment].[state]".
func (id EntityID) String() string {
	c, s := id.Compartment, id.State
	if c == "" {
		c = Sentinel
	}
	if s == "" {
		s = Sentinel
	}
	return "[" + id.Element + "].[" + c + "].[" + s + "]"
}

// ParseEntityID inverts EntityID.String.
func ParseEntityID(s string) (EntityID, error) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return EntityID{}, fmt.Errorf("graph: malformed entity id %q", s)
	}
	parts := strings.Split(s[1:len(s)-1], "].[")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return EntityID{}, fmt.Errorf("graph: malformed entity id %q", s)
	}
	id := EntityID{Element: parts[0], Compartment: parts[1], State: parts[2]}
	if id.Compartment == Sentinel {
		id.Compartment = ""
	}
	if id.State == Sentinel {
		id.State = ""
	}
	return id, nil
}

func validName(name string) bool {
	if name == "" || name == Sentinel || name == "*" || strings.HasPrefix(name, "$") {
		return false
	}
	return !strings.ContainsAny(name, "[] \t\n")
}

// Entity is a node of the graph.
type Entity struct {
	Index int
	ID    EntityID
	Kind  string
}
