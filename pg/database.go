// Package pg reverse-maps a live PostgreSQL schema into a mapping model and
// classifies server errors.
package pg

// DatabaseModel is what a catalog read yields: the selected tables plus the
// database-wide objects they may depend on.
type DatabaseModel struct {
	// Schemas lists every user schema, selected or not.
	Schemas    []string
	Tables     []*Table
	Sequences  []Sequence
	Extensions []Extension
	Enums      []Enum
	Domains    []Domain
}

// Table finds a table by schema and name.
func (d *DatabaseModel) Table(schema, name string) (*Table, bool) {
	for _, t := range d.Tables {
		if t.Schema == schema && t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Domain finds a domain by its name as format_type prints it.
func (d *DatabaseModel) Domain(name string) (Domain, bool) {
	for _, dom := range d.Domains {
		if dom.Name == name || dom.Schema+"."+dom.Name == name {
			return dom, true
		}
	}
	return Domain{}, false
}

// Table is a table, view or materialized view.
type Table struct {
	Schema      string
	Name        string
	Comment     string
	Columns     []*Column
	PrimaryKey  *Key
	UniqueKeys  []*Key
	ForeignKeys []*ForeignKey
	Indexes     []*Index
}

// QualifiedName is schema.name.
func (t *Table) QualifiedName() string { return t.Schema + "." + t.Name }

// Column finds a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

type Column struct {
	Name string
	// StoreType is the type as format_type prints it, facets included:
	// character varying(100), numeric(10,2), integer[].
	StoreType string
	Nullable  bool
	Default   *string
	Identity  bool
	Generated bool
	Comment   string
}

// Key is a primary key or unique constraint.
type Key struct {
	Name    string
	Columns []string
}

type ForeignKey struct {
	Name             string
	Columns          []string
	PrincipalSchema  string
	PrincipalTable   string
	PrincipalColumns []string
	// OnDelete is the pg_constraint.confdeltype action code.
	OnDelete string
}

type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Method  string
	// Predicate is the WHERE clause of a partial index.
	Predicate string
}

type Sequence struct {
	Schema    string
	Name      string
	StoreType string
	Start     int64
	Increment int64
	Min       int64
	Max       int64
	Cycle     bool
}

type Extension struct {
	Name    string
	Schema  string
	Version string
}

type Enum struct {
	Schema string
	Name   string
	Labels []string
}

// Domain is a named constraint over a base type.
type Domain struct {
	Schema   string
	Name     string
	BaseType string
	Nullable bool
	Default  *string
}
