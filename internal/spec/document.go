package spec

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads a model from a YAML document.
func LoadDocument(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseDocument decodes a YAML model. Unknown fields are rejected so typos
// in hand-written documents surface before the graph is built.
func ParseDocument(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Model
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	for i := range m.Elements {
		if m.Elements[i].Scope == "" {
			m.Elements[i].Scope = PerCompartment
		}
	}
	return &m, nil
}
