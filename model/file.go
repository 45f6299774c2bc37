package model

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/spandigital/pgtranslate/typemap"
)

// LoadFile reads a YAML model file and builds it.
func LoadFile(path string, reg *typemap.Registry) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	m, err := Parse(data, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse builds a model from YAML. Property types are Go type names known to
// the registry (int32, *string, decimal.Decimal, pgtype.Range[int32], ...).
func Parse(data []byte, reg *typemap.Registry) (*Model, error) {
	var def Definition
	if err := yaml.UnmarshalStrict(data, &def); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return def.Build(reg)
}

// Marshal writes the model in the YAML form Parse reads.
func Marshal(m *Model) ([]byte, error) {
	return yaml.Marshal(m.Definition())
}
