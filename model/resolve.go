package model

import (
	"fmt"

	"github.com/spandigital/pgtranslate/typemap"
)

// Column is one physical column of an entity's row.
type Column struct {
	Name     string
	Mapping  *typemap.Mapping
	Nullable bool
	Table    TableRef
	// Property is the mapped property; nil for discriminators and documents.
	Property *Property
	// Owned is set for table-split owned columns and JSON document columns.
	Owned *Owned
}

// EntityShape is the physical form of one type in a hierarchy.
type EntityShape struct {
	Entity *Entity
	// Table is where rows of exactly this type start: the root table for
	// TPH, the type's own table for TPT and TPC. Abstract TPC types have none.
	Table    TableRef
	Concrete bool
	// Discriminator identifies the type: the TPH discriminator value, or the
	// type name synthesized for TPT and TPC rows.
	Discriminator any
	// Columns lists every column visible on the type: inherited properties
	// first, then owned table-split and document columns.
	Columns []*Column

	byName map[string]*Column
}

// Column finds a column by physical name.
func (s *EntityShape) Column(name string) (*Column, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// PhysicalShape is the resolved storage of a hierarchy.
type PhysicalShape struct {
	Strategy Strategy
	Root     *Entity
	// Discriminator is the TPH discriminator column, nil unless the hierarchy
	// has more than one concrete type.
	Discriminator *Column
	// Types lists the shape of every type in pre-order.
	Types []*EntityShape

	byEntity map[*Entity]*EntityShape
}

// Of returns the shape of e.
func (s *PhysicalShape) Of(e *Entity) *EntityShape { return s.byEntity[e] }

// ConcreteTypes lists the concrete types at or below e, in pre-order.
func (s *PhysicalShape) ConcreteTypes(e *Entity) []*EntityShape {
	var out []*EntityShape
	for _, t := range e.Subtree() {
		if sh := s.byEntity[t]; sh != nil && sh.Concrete {
			out = append(out, sh)
		}
	}
	return out
}

// Resolve computes the physical shape of h: the tables rows live in, the
// discriminator column, and the nullability of every column.
func Resolve(h *Hierarchy) (*PhysicalShape, error) {
	s := &PhysicalShape{Strategy: h.Strategy, Root: h.Root, byEntity: map[*Entity]*EntityShape{}}
	concrete := h.ConcreteTypes()

	switch h.Strategy {
	case StrategyNone, TPH:
		if h.Strategy == TPH && len(concrete) > 1 {
			s.Discriminator = &Column{
				Name:    h.Root.DiscriminatorColumn,
				Mapping: h.DiscriminatorMapping,
				Table:   h.Root.table,
			}
		}
		for _, t := range h.Types {
			sh := newShape(t, t.table)
			sh.Discriminator = t.Discriminator
			for _, tt := range t.Ancestors() {
				common := coversAll(tt, concrete)
				for _, p := range tt.Properties {
					sh.add(&Column{Name: p.column, Mapping: p.mapping, Nullable: p.Nullable || !common, Table: t.table, Property: p})
				}
			}
			addOwned(sh, t, func(owner *Entity) bool { return coversAll(owner, concrete) })
			if s.Discriminator != nil {
				if _, clash := sh.Column(s.Discriminator.Name); clash {
					return nil, fmt.Errorf("%w: discriminator column %q collides with a property", ErrInvalidModel, s.Discriminator.Name)
				}
			}
			s.put(sh)
		}
		if err := checkSharedColumns(s); err != nil {
			return nil, err
		}

	case TPT:
		for _, t := range h.Types {
			sh := newShape(t, t.table)
			sh.Discriminator = t.Name
			for _, tt := range t.Ancestors() {
				for _, p := range tt.Properties {
					table := tt.table
					if isKey(h.Root, p) {
						table = h.Root.table
					}
					sh.add(&Column{Name: p.column, Mapping: p.mapping, Nullable: p.Nullable, Table: table, Property: p})
				}
			}
			addOwned(sh, t, func(*Entity) bool { return true })
			s.put(sh)
		}

	case TPC:
		for _, t := range h.Types {
			sh := newShape(t, t.table)
			sh.Discriminator = t.Name
			for _, p := range t.AllProperties() {
				sh.add(&Column{Name: p.column, Mapping: p.mapping, Nullable: p.Nullable, Table: t.table, Property: p})
			}
			addOwned(sh, t, func(*Entity) bool { return true })
			s.put(sh)
		}

	default:
		return nil, fmt.Errorf("%w: unknown mapping strategy %d", ErrInvalidModel, h.Strategy)
	}

	for _, sh := range s.Types {
		if err := sh.checkDuplicates(); err != nil {
			return nil, fmt.Errorf("%s: %w", sh.Entity.Name, err)
		}
	}
	return s, nil
}

func newShape(e *Entity, table TableRef) *EntityShape {
	return &EntityShape{Entity: e, Table: table, Concrete: e.IsConcrete(), byName: map[string]*Column{}}
}

func (s *PhysicalShape) put(sh *EntityShape) {
	s.Types = append(s.Types, sh)
	s.byEntity[sh.Entity] = sh
}

func (sh *EntityShape) add(c *Column) {
	sh.Columns = append(sh.Columns, c)
	if _, ok := sh.byName[c.Name]; !ok {
		sh.byName[c.Name] = c
	}
}

func (sh *EntityShape) checkDuplicates() error {
	seen := map[string]bool{}
	for _, c := range sh.Columns {
		if seen[c.Name] {
			return fmt.Errorf("%w: column %q is mapped twice", ErrInvalidModel, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// coversAll reports whether every concrete type derives from t, in which
// case columns declared on t keep their nullability under TPH.
func coversAll(t *Entity, concrete []*Entity) bool {
	for _, c := range concrete {
		if !c.IsA(t) {
			return false
		}
	}
	return true
}

func isKey(root *Entity, p *Property) bool {
	for _, k := range root.Key {
		if k == p.Name && p.declaring == root {
			return true
		}
	}
	return false
}

// addOwned appends the columns table-split references and JSON documents
// contribute to the owner's table. Side tables of owned collections are not
// part of the row.
func addOwned(sh *EntityShape, t *Entity, keepsNullability func(*Entity) bool) {
	for _, tt := range t.Ancestors() {
		table := sh.Table
		if t.hierarchy.Strategy == TPT {
			table = tt.table
		}
		for _, o := range tt.Owned {
			addOwnedColumns(sh, o, table, !keepsNullability(tt))
		}
	}
}

func addOwnedColumns(sh *EntityShape, o *Owned, table TableRef, forceNullable bool) {
	switch {
	case o.IsJSON():
		sh.add(&Column{Name: o.jsonColumn, Mapping: o.mapping, Nullable: true, Table: table, Owned: o})
	case o.Collection:
	default:
		for _, p := range o.Properties {
			sh.add(&Column{Name: p.column, Mapping: p.mapping, Nullable: p.Nullable || forceNullable, Table: table, Property: p, Owned: o})
		}
		for _, n := range o.Owned {
			addOwnedColumns(sh, n, table, forceNullable)
		}
	}
}

// checkSharedColumns lets sibling TPH types share a column only when they
// agree on its store type.
func checkSharedColumns(s *PhysicalShape) error {
	types := map[string]*Column{}
	for _, sh := range s.Types {
		for _, c := range sh.Columns {
			prev, ok := types[c.Name]
			if !ok {
				types[c.Name] = c
				continue
			}
			if prev.Mapping != nil && c.Mapping != nil && prev.Mapping.StoreType != c.Mapping.StoreType {
				return fmt.Errorf("%w: column %q is mapped as %s and %s", ErrInvalidModel, c.Name, prev.Mapping.StoreType, c.Mapping.StoreType)
			}
		}
	}
	return nil
}
