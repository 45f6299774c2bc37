package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/sqlast"
)

// value is what an expression evaluates to during lowering: a scalar SQL
// expression, or a structured value whose columns are produced on demand.
type value interface {
	describe() string
}

func (v *SQLValue) describe() string {
	if v.Mapping == nil {
		return "untyped value"
	}
	return v.Mapping.StoreType + " value"
}

// entityValue is a row of an entity set. Columns are read through col so
// values lifted out of derived tables project only what is used.
type entityValue struct {
	ent   *model.Entity
	shape *model.PhysicalShape
	// types are the concrete types the row may have.
	types []*model.Entity
	col   func(c *model.Column) sqlast.Expr
	// disc yields the type discriminator: the TPH column, a CASE over TPT
	// tables, a per-arm literal under TPC, or a literal for a single type.
	disc func() sqlast.Expr
	// test is a strategy-specific type test, nil when the discriminator is used.
	test func(t *model.Entity) sqlast.Expr
	// scope receives the joins of reference navigations.
	scope *relation
	navs  map[string]*entityValue
	// nullable rows come from an outer join; navigations from them must
	// not be inner joined.
	nullable bool
}

func (ev *entityValue) describe() string { return "entity " + ev.ent.Name }

// visibleTypes lists the types whose members are visible on the row: the static
// type, its ancestors and every subtype.
func (ev *entityValue) visibleTypes() []*model.Entity {
	out := ev.ent.Ancestors()
	return append(out[:len(out)-1:len(out)-1], ev.ent.Subtree()...)
}

func (ev *entityValue) property(name string) (*model.Property, bool) {
	for _, t := range ev.visibleTypes() {
		for _, p := range t.Properties {
			if p.Name == name {
				return p, true
			}
		}
	}
	return nil, false
}

func (ev *entityValue) navigation(name string) (*model.Navigation, bool) {
	for _, t := range ev.visibleTypes() {
		for _, n := range t.Navigations {
			if n.Name == name {
				return n, true
			}
		}
	}
	return nil, false
}

func (ev *entityValue) owned(name string) (*model.Owned, bool) {
	for _, t := range ev.visibleTypes() {
		for _, o := range t.Owned {
			if o.Name == name {
				return o, true
			}
		}
	}
	return nil, false
}

// propertyColumn finds the column p is stored in.
func (ev *entityValue) propertyColumn(p *model.Property) (*model.Column, bool) {
	for _, sh := range ev.shape.Types {
		for _, c := range sh.Columns {
			if c.Property == p {
				return c, true
			}
		}
	}
	return nil, false
}

// columnNamed finds a column by physical name on any type of the hierarchy.
func (ev *entityValue) columnNamed(name string) (*model.Column, bool) {
	for _, sh := range ev.shape.Types {
		if c, ok := sh.Column(name); ok {
			return c, true
		}
	}
	return nil, false
}

// relevant reports whether members declared on t can be non-null for a row
// of one of ev's possible types.
func (ev *entityValue) relevant(t *model.Entity) bool {
	if t == ev.ent || ev.ent.IsA(t) {
		return true
	}
	for _, p := range ev.types {
		if p.IsA(t) {
			return true
		}
	}
	return false
}

// columns lists the row's columns in hierarchy order, deduplicated by name.
func (ev *entityValue) columns() []*model.Column {
	seen := map[string]bool{}
	var out []*model.Column
	for _, t := range ev.visibleTypes() {
		if !ev.relevant(t) {
			continue
		}
		sh := ev.shape.Of(t)
		if sh == nil {
			continue
		}
		for _, c := range sh.Columns {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, c)
		}
	}
	return out
}

// keyColumns are the root key columns.
func (ev *entityValue) keyColumns() []*model.Column {
	var out []*model.Column
	for _, p := range ev.ent.KeyProperties() {
		if c, ok := ev.propertyColumn(p); ok {
			out = append(out, c)
		}
	}
	return out
}

func (ev *entityValue) discriminatorName() string {
	if ev.shape.Discriminator != nil {
		return ev.shape.Discriminator.Name
	}
	return "Discriminator"
}

// narrowed is ev restricted to subtypes of t.
func (ev *entityValue) narrowed(t *model.Entity) *entityValue {
	cp := *ev
	cp.ent = t
	cp.types = nil
	for _, p := range ev.types {
		if p.IsA(t) {
			cp.types = append(cp.types, p)
		}
	}
	cp.navs = nil
	return &cp
}

// ownedValue is an owned type instance. Table-split values and rows of an
// owned collection read columns through row; JSON values reached from their
// owner read paths below doc.
type ownedValue struct {
	o    *model.Owned
	row  func(name string) sqlast.Expr
	doc  func() sqlast.Expr
	path []string
}

func (ov *ownedValue) describe() string { return "owned " + ov.o.TypeName() }

// field is one member of a record.
type field struct {
	name string
	v    value
}

// recordValue is an anonymous record built by a projection.
type recordValue struct {
	fields []field
}

func (r *recordValue) describe() string { return "record" }

func (r *recordValue) field(name string) (value, bool) {
	for _, f := range r.fields {
		if f.name == name {
			return f.v, true
		}
	}
	return nil, false
}

// groupingValue is the element of a grouped relation.
type groupingValue struct {
	key  value
	elem value
}

func (g *groupingValue) describe() string { return "grouping" }

// collectionValue is a collection-valued member not yet used as a source:
// a collection navigation, an owned collection or an array.
type collectionValue struct {
	parent value
	nav    *model.Navigation
	owned  *model.Owned
	array  *SQLValue
}

func (c *collectionValue) describe() string {
	switch {
	case c.nav != nil:
		return "collection " + c.nav.Name
	case c.owned != nil:
		return "owned collection " + c.owned.Name
	}
	return "array"
}

func clonePath(path []string, more ...string) []string {
	out := make([]string, 0, len(path)+len(more))
	out = append(out, path...)
	return append(out, more...)
}
