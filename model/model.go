// Package model describes entities, their inheritance hierarchies and owned
// sub-documents, and resolves each hierarchy to its physical tables.
//
// A Model is built once (from a Builder or a YAML file) and is immutable
// afterwards; it is safe to share between goroutines.
package model

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spandigital/pgtranslate/typemap"
)

// Strategy is the inheritance mapping strategy of a hierarchy.
type Strategy int

const (
	// StrategyNone marks an entity that takes part in no hierarchy.
	StrategyNone Strategy = iota
	// TPH stores a whole hierarchy in one table with a discriminator column.
	TPH
	// TPT stores each type in its own table, linked by primary key.
	TPT
	// TPC stores each concrete type in its own table with every inherited column.
	TPC
)

func (s Strategy) String() string {
	switch s {
	case TPH:
		return "tph"
	case TPT:
		return "tpt"
	case TPC:
		return "tpc"
	default:
		return ""
	}
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "":
		*s = StrategyNone
	case "tph":
		*s = TPH
	case "tpt":
		*s = TPT
	case "tpc":
		*s = TPC
	default:
		return fmt.Errorf("unknown mapping strategy %q", b)
	}
	return nil
}

// Storage selects how an owned navigation is persisted.
type Storage int

const (
	// TableSplit stores owned references as prefixed columns of the owner's
	// table and owned collections in a side table.
	TableSplit Storage = iota
	// JSON stores the whole owned graph in a single jsonb column.
	JSON
)

func (s Storage) String() string {
	if s == JSON {
		return "json"
	}
	return "table"
}

func (s Storage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Storage) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "", "table":
		*s = TableSplit
	case "json":
		*s = JSON
	default:
		return fmt.Errorf("unknown owned storage %q", b)
	}
	return nil
}

// TableRef names a physical table.
type TableRef struct {
	Schema string
	Name   string
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// IsZero reports whether t names no table.
func (t TableRef) IsZero() bool { return t.Name == "" }

// Property is a scalar value of an entity or owned type.
type Property struct {
	Name        string `json:"name"`
	Column      string `json:"column,omitempty"`
	TypeName    string `json:"type,omitempty"`
	StoreType   string `json:"storeType,omitempty"`
	Nullable    bool   `json:"nullable,omitempty"`
	MaxLength   *int   `json:"maxLength,omitempty"`
	FixedLength bool   `json:"fixedLength,omitempty"`
	Precision   *int   `json:"precision,omitempty"`
	Scale       *int   `json:"scale,omitempty"`
	JSONName    string `json:"jsonName,omitempty"`

	// Type is the Go value type. Model files name it through TypeName.
	Type reflect.Type `json:"-"`

	mapping   *typemap.Mapping
	column    string
	declaring *Entity
}

// Mapping is the resolved store type mapping.
func (p *Property) Mapping() *typemap.Mapping { return p.mapping }

// ColumnName is the physical column, prefixes of table-split owners included.
func (p *Property) ColumnName() string { return p.column }

// JSONKey is the key under which the property is stored in a JSON document.
func (p *Property) JSONKey() string {
	if p.JSONName != "" {
		return p.JSONName
	}
	return p.Name
}

// DeclaringEntity is the entity declaring p, or nil for owned properties.
func (p *Property) DeclaringEntity() *Entity { return p.declaring }

// Navigation relates an entity to another entity through a foreign key.
type Navigation struct {
	Name       string `json:"name"`
	Target     string `json:"target"`
	Collection bool   `json:"collection,omitempty"`
	// ForeignKey lists properties of the dependent: the target for
	// collections, the declaring entity for references.
	ForeignKey []string `json:"foreignKey"`
	// PrincipalKey defaults to the principal's primary key.
	PrincipalKey []string `json:"principalKey,omitempty"`
	// Required references are joined with INNER JOIN.
	Required bool `json:"required,omitempty"`

	source *Entity
	target *Entity
	fk     []*Property
	pk     []*Property
}

// ForeignKeyProperties are the dependent's key-referencing properties,
// positionally paired with PrincipalKeyProperties.
func (n *Navigation) ForeignKeyProperties() []*Property { return n.fk }

func (n *Navigation) PrincipalKeyProperties() []*Property { return n.pk }

// Source is the declaring entity.
func (n *Navigation) Source() *Entity { return n.source }

// TargetEntity is the related entity.
func (n *Navigation) TargetEntity() *Entity { return n.target }

// Principal and Dependent name the key-holding and FK-holding sides.
func (n *Navigation) Principal() *Entity {
	if n.Collection {
		return n.source
	}
	return n.target
}

func (n *Navigation) Dependent() *Entity {
	if n.Collection {
		return n.target
	}
	return n.source
}

// ColumnPair links a parent key column to the referencing child column.
type ColumnPair struct {
	Parent string
	Child  string
}

// Owned is an owned (complex) type reached through a navigation of an
// entity or of another owned type.
type Owned struct {
	Name       string  `json:"name"`
	Type       string  `json:"type,omitempty"`
	Collection bool    `json:"collection,omitempty"`
	Storage    Storage `json:"storage,omitempty"`
	// Column holds the document of a JSON-stored root.
	Column string `json:"column,omitempty"`
	// StoreType is jsonb unless set to json.
	StoreType string `json:"storeType,omitempty"`
	// JSONName is the key inside the parent document for nested JSON owned types.
	JSONName string `json:"jsonName,omitempty"`
	// Table and Schema name the side table of a table-split collection.
	Table  string `json:"table,omitempty"`
	Schema string `json:"schema,omitempty"`
	// ColumnPrefix prefixes table-split reference columns; defaults to Name_.
	ColumnPrefix *string `json:"columnPrefix,omitempty"`
	// Key lists child key properties of a table-split collection; a
	// synthetic ordinal "Id" column is used when empty.
	Key        []string    `json:"key,omitempty"`
	Properties []*Property `json:"properties,omitempty"`
	Owned      []*Owned    `json:"owned,omitempty"`

	owner      *Entity
	parent     *Owned
	path       []string
	table      TableRef
	prefix     string
	keyColumns []string
	fk         []ColumnPair
	ordinal    string
	jsonColumn string
	jsonPath   []string
	mapping    *typemap.Mapping
}

// Owner is the entity at the root of the ownership chain.
func (o *Owned) Owner() *Entity { return o.owner }

// Parent is the enclosing owned type, nil when owned directly by the entity.
func (o *Owned) Parent() *Owned { return o.parent }

// Path lists navigation names from the owning entity down to o.
func (o *Owned) Path() []string { return o.path }

// IsJSON reports whether o lives in a JSON document.
func (o *Owned) IsJSON() bool { return o.Storage == JSON }

// TypeName is the owned type name.
func (o *Owned) TypeName() string {
	if o.Type != "" {
		return o.Type
	}
	return o.Name
}

// TableRef is the table holding o's columns: the side table of a table-split
// collection, otherwise the container's table.
func (o *Owned) TableRef() TableRef { return o.table }

// KeyColumns is the full composite key of a table-split collection's side
// table: every ancestor key component followed by the child key.
func (o *Owned) KeyColumns() []string { return o.keyColumns }

// ForeignKey pairs the container's key columns with the side table columns
// referencing them.
func (o *Owned) ForeignKey() []ColumnPair { return o.fk }

// OrdinalColumn is the synthetic key column, or empty.
func (o *Owned) OrdinalColumn() string { return o.ordinal }

// JSONColumn is the document column of a JSON-stored owned root.
func (o *Owned) JSONColumn() string { return o.jsonColumn }

// JSONPath is the key path of o inside its root document.
func (o *Owned) JSONPath() []string { return o.jsonPath }

// JSONKey is the key under which o is stored in its parent document.
func (o *Owned) JSONKey() string {
	if o.JSONName != "" {
		return o.JSONName
	}
	return o.Name
}

// Mapping is the document column mapping of a JSON root.
func (o *Owned) Mapping() *typemap.Mapping { return o.mapping }

// Property finds a property by name.
func (o *Owned) Property(name string) (*Property, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Navigation finds a nested owned navigation by name.
func (o *Owned) Navigation(name string) (*Owned, bool) {
	for _, n := range o.Owned {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// Entity is a mapped entity type.
type Entity struct {
	Name     string   `json:"name"`
	Table    string   `json:"table,omitempty"`
	Schema   string   `json:"schema,omitempty"`
	Base     string   `json:"base,omitempty"`
	Abstract bool     `json:"abstract,omitempty"`
	Strategy Strategy `json:"strategy,omitempty"`
	// DiscriminatorColumn is declared on TPH roots; defaults to Discriminator.
	DiscriminatorColumn string `json:"discriminatorColumn,omitempty"`
	// Discriminator is this type's discriminator value; defaults to Name.
	Discriminator any           `json:"discriminator,omitempty"`
	Key           []string      `json:"key,omitempty"`
	Properties    []*Property   `json:"properties,omitempty"`
	Navigations   []*Navigation `json:"navigations,omitempty"`
	Owned         []*Owned      `json:"owned,omitempty"`

	base      *Entity
	derived   []*Entity
	hierarchy *Hierarchy
	table     TableRef
}

// BaseType is the direct base entity, or nil.
func (e *Entity) BaseType() *Entity { return e.base }

// Derived lists the direct subtypes in declaration order.
func (e *Entity) Derived() []*Entity { return e.derived }

// Root is the hierarchy root.
func (e *Entity) Root() *Entity {
	r := e
	for r.base != nil {
		r = r.base
	}
	return r
}

// Hierarchy is the hierarchy e belongs to.
func (e *Entity) Hierarchy() *Hierarchy { return e.hierarchy }

// IsConcrete reports whether rows of exactly this type can exist.
func (e *Entity) IsConcrete() bool { return !e.Abstract }

// IsA reports whether e is other or derives from it.
func (e *Entity) IsA(other *Entity) bool {
	for t := e; t != nil; t = t.base {
		if t == other {
			return true
		}
	}
	return false
}

// Ancestors lists e's chain from the root down to e itself.
func (e *Entity) Ancestors() []*Entity {
	var chain []*Entity
	for t := e; t != nil; t = t.base {
		chain = append([]*Entity{t}, chain...)
	}
	return chain
}

// Subtree lists e and every type deriving from it, in pre-order.
func (e *Entity) Subtree() []*Entity {
	out := []*Entity{e}
	for _, d := range e.derived {
		out = append(out, d.Subtree()...)
	}
	return out
}

// AllProperties lists inherited then declared properties.
func (e *Entity) AllProperties() []*Property {
	var out []*Property
	for _, t := range e.Ancestors() {
		out = append(out, t.Properties...)
	}
	return out
}

// Property finds a declared or inherited property.
func (e *Entity) Property(name string) (*Property, bool) {
	for t := e; t != nil; t = t.base {
		for _, p := range t.Properties {
			if p.Name == name {
				return p, true
			}
		}
	}
	return nil, false
}

// KeyProperties returns the primary key properties of the hierarchy root.
func (e *Entity) KeyProperties() []*Property {
	root := e.Root()
	out := make([]*Property, 0, len(root.Key))
	for _, k := range root.Key {
		p, _ := root.Property(k)
		out = append(out, p)
	}
	return out
}

// Navigation finds a declared or inherited entity navigation.
func (e *Entity) Navigation(name string) (*Navigation, bool) {
	for t := e; t != nil; t = t.base {
		for _, n := range t.Navigations {
			if n.Name == name {
				return n, true
			}
		}
	}
	return nil, false
}

// OwnedNavigation finds a declared or inherited owned navigation.
func (e *Entity) OwnedNavigation(name string) (*Owned, bool) {
	for t := e; t != nil; t = t.base {
		for _, o := range t.Owned {
			if o.Name == name {
				return o, true
			}
		}
	}
	return nil, false
}

// AllOwned lists inherited then declared owned navigations.
func (e *Entity) AllOwned() []*Owned {
	var out []*Owned
	for _, t := range e.Ancestors() {
		out = append(out, t.Owned...)
	}
	return out
}

// TableRef is the entity's own table: the root table under TPH, the type's
// table under TPT and TPC (zero for abstract TPC types).
func (e *Entity) TableRef() TableRef { return e.table }

// FindSubtype returns the type called name within e's subtree.
func (e *Entity) FindSubtype(name string) (*Entity, bool) {
	for _, t := range e.Subtree() {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Hierarchy groups the types sharing a root.
type Hierarchy struct {
	Root     *Entity
	Strategy Strategy
	// Types lists every type in pre-order, root first.
	Types []*Entity
	// DiscriminatorMapping types the TPH discriminator column.
	DiscriminatorMapping *typemap.Mapping

	shape *PhysicalShape
}

// Shape is the resolved physical shape.
func (h *Hierarchy) Shape() *PhysicalShape { return h.shape }

// ConcreteTypes lists the concrete types of the hierarchy in pre-order.
func (h *Hierarchy) ConcreteTypes() []*Entity {
	var out []*Entity
	for _, t := range h.Types {
		if t.IsConcrete() {
			out = append(out, t)
		}
	}
	return out
}

// Model is an immutable set of entities bound to a type registry.
type Model struct {
	registry    *typemap.Registry
	entities    []*Entity
	byName      map[string]*Entity
	hierarchies []*Hierarchy
}

// Registry is the type registry the model was built against.
func (m *Model) Registry() *typemap.Registry { return m.registry }

// Entity finds an entity by name.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// Entities lists entities in declaration order.
func (m *Model) Entities() []*Entity { return m.entities }

// Hierarchies lists one hierarchy per root, in declaration order.
func (m *Model) Hierarchies() []*Hierarchy { return m.hierarchies }

// Shape is the physical shape of e's hierarchy.
func (m *Model) Shape(e *Entity) *PhysicalShape { return e.hierarchy.shape }

// Definition returns the declarative form of the model, as written by Marshal.
func (m *Model) Definition() *Definition {
	return &Definition{Entities: m.entities}
}
