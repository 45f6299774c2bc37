package pgtranslate

import (
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

// Statement is a translated query. Tree is shared with the statement cache
// and must not be modified.
type Statement struct {
	SQL    string
	Tree   sqlast.Statement
	Params []Parameter
	Shape  ResultShape
}

func (s *Statement) clone() *Statement {
	cp := *s
	cp.Params = slices.Clone(s.Params)
	cp.Shape.Slots = slices.Clone(s.Shape.Slots)
	for i := range cp.Shape.Slots {
		cp.Shape.Slots[i].Path = slices.Clone(cp.Shape.Slots[i].Path)
	}
	return &cp
}

// Parameter is one named placeholder of a statement, in order of first use.
type Parameter struct {
	Name    string
	Mapping *typemap.Mapping
}

// ResultShape lists the output columns of a statement in order.
type ResultShape struct {
	Slots []Slot
}

// Slot is one output column and where its value belongs in the result
// element.
type Slot struct {
	// Name is the output column name as projected.
	Name string
	// Path is the member path of the value inside the result element, e.g.
	// [Address Street] or [Customer Name].
	Path    []string
	Mapping *typemap.Mapping
	// Entity names the entity type the column belongs to; empty for scalars.
	Entity string
	// Discriminator marks the synthesized or physical type discriminator.
	Discriminator bool
}

// Names lists the slot names in order.
func (s ResultShape) Names() []string {
	out := make([]string, len(s.Slots))
	for i, sl := range s.Slots {
		out[i] = sl.Name
	}
	return out
}

// NamedArgs binds values to the statement's placeholders. Values without a
// matching placeholder are dropped.
func (s *Statement) NamedArgs(values map[string]any) pgx.NamedArgs {
	args := make(pgx.NamedArgs, len(s.Params))
	for _, p := range s.Params {
		if v, ok := values[p.Name]; ok {
			args[p.Name] = v
		}
	}
	return args
}
