package model

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/spandigital/pgtranslate/typemap"
)

// Definition is the declarative form of a model, as written in model files.
type Definition struct {
	Entities []*Entity `json:"entities"`
}

// DefaultDiscriminatorColumn names the TPH discriminator when the root does
// not declare one.
const DefaultDiscriminatorColumn = "Discriminator"

// Build resolves every type mapping, validates hierarchies and resolves their
// physical shapes. The model is built from copies of d's entities, so d can
// be built again; a nil registry means typemap.DefaultOptions.
func (d *Definition) Build(reg *typemap.Registry) (*Model, error) {
	if reg == nil {
		reg = typemap.New(typemap.DefaultOptions())
	}
	m := &Model{registry: reg, byName: map[string]*Entity{}}
	for _, decl := range d.Entities {
		if decl == nil || decl.Name == "" {
			return nil, &BuildError{Err: fmt.Errorf("%w: entity without a name", ErrInvalidModel)}
		}
		e := decl.clone()
		if _, dup := m.byName[e.Name]; dup {
			return nil, &BuildError{Entity: e.Name, Err: fmt.Errorf("%w: declared twice", ErrInvalidModel)}
		}
		m.byName[e.Name] = e
		m.entities = append(m.entities, e)
	}

	for _, e := range m.entities {
		if e.Base == "" {
			continue
		}
		base, ok := m.byName[e.Base]
		if !ok {
			return nil, &BuildError{Entity: e.Name, Err: fmt.Errorf("%w: unknown base type %q", ErrInvalidModel, e.Base)}
		}
		e.base = base
		base.derived = append(base.derived, e)
	}
	for _, e := range m.entities {
		seen := map[*Entity]bool{}
		for t := e; t != nil; t = t.base {
			if seen[t] {
				return nil, &BuildError{Entity: e.Name, Err: fmt.Errorf("%w: inheritance cycle", ErrInvalidModel)}
			}
			seen[t] = true
		}
	}

	b := &builder{reg: reg}
	for _, e := range m.entities {
		if e.base != nil {
			continue
		}
		h, err := b.hierarchy(e)
		if err != nil {
			return nil, err
		}
		m.hierarchies = append(m.hierarchies, h)
	}
	for _, e := range m.entities {
		for _, n := range e.Navigations {
			if err := m.linkNavigation(e, n); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// clone copies the declared parts of e. Resolved state is left zero.
func (e *Entity) clone() *Entity {
	cp := *e
	cp.base, cp.derived, cp.hierarchy, cp.table = nil, nil, nil, TableRef{}
	cp.Properties = cloneProperties(e.Properties)
	cp.Navigations = make([]*Navigation, len(e.Navigations))
	for i, n := range e.Navigations {
		c := *n
		c.source, c.target, c.fk, c.pk = nil, nil, nil, nil
		cp.Navigations[i] = &c
	}
	cp.Owned = cloneOwned(e.Owned)
	return &cp
}

func cloneProperties(props []*Property) []*Property {
	out := make([]*Property, len(props))
	for i, p := range props {
		c := *p
		c.mapping, c.column, c.declaring = nil, "", nil
		out[i] = &c
	}
	return out
}

func cloneOwned(owned []*Owned) []*Owned {
	out := make([]*Owned, len(owned))
	for i, o := range owned {
		c := Owned{
			Name:         o.Name,
			Type:         o.Type,
			Collection:   o.Collection,
			Storage:      o.Storage,
			Column:       o.Column,
			StoreType:    o.StoreType,
			JSONName:     o.JSONName,
			Table:        o.Table,
			Schema:       o.Schema,
			ColumnPrefix: o.ColumnPrefix,
			Key:          o.Key,
			Properties:   cloneProperties(o.Properties),
			Owned:        cloneOwned(o.Owned),
		}
		out[i] = &c
	}
	return out
}

type builder struct {
	reg *typemap.Registry
}

func (b *builder) hierarchy(root *Entity) (*Hierarchy, error) {
	h := &Hierarchy{Root: root, Strategy: root.Strategy, Types: root.Subtree()}
	if h.Strategy == StrategyNone && len(h.Types) > 1 {
		h.Strategy = TPH
	}
	if len(root.Key) == 0 {
		return nil, &BuildError{Entity: root.Name, Err: fmt.Errorf("%w: no primary key", ErrInvalidModel)}
	}

	rootTable := TableRef{Schema: root.Schema, Name: tableName(root)}
	for _, t := range h.Types {
		t.hierarchy = h
		if t != root {
			if t.Strategy != StrategyNone && t.Strategy != h.Strategy {
				return nil, &BuildError{Entity: t.Name, Err: fmt.Errorf("%w: strategy %s differs from hierarchy strategy %s", ErrInvalidModel, t.Strategy, h.Strategy)}
			}
			if len(t.Key) > 0 {
				return nil, &BuildError{Entity: t.Name, Err: fmt.Errorf("%w: derived types inherit the root key", ErrInvalidModel)}
			}
		}
		switch h.Strategy {
		case TPT:
			t.table = TableRef{Schema: schemaOr(t.Schema, root.Schema), Name: tableName(t)}
		case TPC:
			t.table = TableRef{}
			if t.IsConcrete() {
				t.table = TableRef{Schema: schemaOr(t.Schema, root.Schema), Name: tableName(t)}
			}
		default:
			t.table = rootTable
		}

		for _, p := range t.Properties {
			if t.base != nil {
				if _, dup := t.base.Property(p.Name); dup {
					return nil, &BuildError{Entity: t.Name, Property: p.Name, Err: fmt.Errorf("%w: hides an inherited property", ErrInvalidModel)}
				}
			}
			if err := b.property(p); err != nil {
				return nil, &BuildError{Entity: t.Name, Property: p.Name, Err: err}
			}
			p.declaring = t
			p.column = p.Column
			if p.column == "" {
				p.column = p.Name
			}
		}
	}

	for _, k := range root.Key {
		p, ok := root.Property(k)
		if !ok {
			return nil, &BuildError{Entity: root.Name, Property: k, Err: fmt.Errorf("%w: key property not declared on the root", ErrInvalidModel)}
		}
		if p.Nullable || (p.Type != nil && p.Type.Kind() == reflect.Pointer) {
			return nil, &BuildError{Entity: root.Name, Property: k, Err: fmt.Errorf("%w: key property is nullable", ErrInvalidModel)}
		}
	}

	for _, t := range h.Types {
		ctr := container{table: t.table}
		for _, k := range root.Key {
			p, _ := root.Property(k)
			ctr.key = append(ctr.key, keyColumn{column: p.column, fk: root.Name + p.Name})
		}
		for _, o := range t.Owned {
			if err := b.owned(o, t, nil, ctr, nil); err != nil {
				return nil, err
			}
		}
	}

	if h.Strategy == TPH {
		if err := b.discriminators(h); err != nil {
			return nil, err
		}
	}
	shape, err := Resolve(h)
	if err != nil {
		return nil, &BuildError{Entity: root.Name, Err: err}
	}
	h.shape = shape
	return h, nil
}

func tableName(e *Entity) string {
	if e.Table != "" {
		return e.Table
	}
	return e.Name
}

func schemaOr(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

func (b *builder) property(p *Property) error {
	if p.Name == "" {
		return fmt.Errorf("%w: property without a name", ErrInvalidModel)
	}
	if p.Type == nil && p.TypeName != "" {
		t, ok := b.reg.TypeByName(p.TypeName)
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownType, p.TypeName)
		}
		p.Type = t
	}
	if p.Type == nil && p.StoreType == "" {
		return fmt.Errorf("%w: neither a type nor a store type", ErrInvalidModel)
	}
	if p.Type != nil && p.Type.Kind() == reflect.Pointer {
		p.Nullable = true
	}
	m, err := b.reg.FindMapping(typemap.Request{
		Type:        p.Type,
		StoreType:   p.StoreType,
		Size:        p.MaxLength,
		Precision:   p.Precision,
		Scale:       p.Scale,
		FixedLength: p.FixedLength,
	})
	if err != nil {
		return err
	}
	p.mapping = m
	if p.Type == nil {
		p.Type = m.Type
	}
	if p.TypeName == "" && p.Type != nil {
		p.TypeName = b.reg.TypeName(p.Type)
	}
	return nil
}

type keyColumn struct {
	column string
	// fk names the column referencing this one from a child side table.
	fk string
}

// container is where owned columns land: a table, a column prefix for
// table-split references, and the key child side tables must reference.
type container struct {
	table  TableRef
	prefix string
	key    []keyColumn
}

// owned resolves o and its nested owned types. path is the accumulated
// navigation path from the owning entity; it is copied, never shared.
func (b *builder) owned(o *Owned, owner *Entity, parent *Owned, ctr container, path []string) error {
	path = append(append([]string(nil), path...), o.Name)
	o.owner, o.parent, o.path = owner, parent, path
	fail := func(prop string, err error) error {
		return &BuildError{Entity: owner.Name, Property: joinPath(path, prop), Err: err}
	}
	if o.Name == "" {
		return fail("", fmt.Errorf("%w: owned navigation without a name", ErrInvalidModel))
	}

	inDocument := parent != nil && parent.IsJSON()
	if inDocument {
		o.Storage = JSON
	}
	nested := ctr
	switch {
	case o.Storage == JSON && !inDocument:
		o.table = ctr.table
		o.jsonColumn = o.Column
		if o.jsonColumn == "" {
			o.jsonColumn = ctr.prefix + o.Name
		}
		store := o.StoreType
		if store == "" {
			store = "jsonb"
		}
		m, err := b.reg.FindMapping(typemap.Request{StoreType: store})
		if err != nil {
			return fail("", err)
		}
		if m.Kind != typemap.KindJSON {
			return fail("", fmt.Errorf("%w: document column must be json or jsonb, not %s", ErrInvalidModel, store))
		}
		o.mapping = m
	case o.Storage == JSON:
		o.table = ctr.table
		o.jsonColumn = parent.jsonColumn
		o.jsonPath = append(append([]string(nil), parent.jsonPath...), o.JSONKey())
		o.mapping = parent.mapping
	case o.Collection:
		o.table = TableRef{Schema: schemaOr(o.Schema, ctr.table.Schema), Name: o.Table}
		if o.table.Name == "" {
			o.table.Name = o.TypeName()
		}
		o.fk, o.keyColumns = nil, nil
		nested = container{table: o.table}
		for _, k := range ctr.key {
			o.fk = append(o.fk, ColumnPair{Parent: k.column, Child: k.fk})
			o.keyColumns = append(o.keyColumns, k.fk)
			nested.key = append(nested.key, keyColumn{column: k.fk, fk: k.fk})
		}
	default:
		o.table = ctr.table
		prefix := o.Name + "_"
		if o.ColumnPrefix != nil {
			prefix = *o.ColumnPrefix
		}
		o.prefix = ctr.prefix + prefix
		nested.prefix = o.prefix
	}

	for _, p := range o.Properties {
		if err := b.property(p); err != nil {
			return fail(p.Name, err)
		}
		p.column = ""
		if !o.IsJSON() {
			p.column = p.Column
			if p.column == "" {
				p.column = o.prefix + p.Name
			}
		}
	}

	if o.Collection && !o.IsJSON() {
		o.ordinal = ""
		if len(o.Key) == 0 {
			if _, clash := o.Property("Id"); clash {
				return fail("Id", fmt.Errorf("%w: declare a key; the synthetic ordinal column would collide", ErrInvalidModel))
			}
			o.ordinal = "Id"
			o.keyColumns = append(o.keyColumns, o.ordinal)
			nested.key = append(nested.key, keyColumn{column: o.ordinal, fk: o.TypeName() + o.ordinal})
		}
		for _, k := range o.Key {
			p, ok := o.Property(k)
			if !ok {
				return fail(k, fmt.Errorf("%w: unknown key property", ErrInvalidModel))
			}
			o.keyColumns = append(o.keyColumns, p.column)
			nested.key = append(nested.key, keyColumn{column: p.column, fk: o.TypeName() + p.Name})
		}
	}

	for _, n := range o.Owned {
		if err := b.owned(n, owner, o, nested, path); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(path []string, leaf string) string {
	if leaf == "" {
		return strings.Join(path, ".")
	}
	return strings.Join(append(append([]string(nil), path...), leaf), ".")
}

// discriminators normalizes discriminator values, checks they are unique
// across concrete types and types the discriminator column.
func (b *builder) discriminators(h *Hierarchy) error {
	if h.Root.DiscriminatorColumn == "" {
		h.Root.DiscriminatorColumn = DefaultDiscriminatorColumn
	}
	seen := map[any]string{}
	var strs, ints int
	for _, t := range h.Types {
		if t.Discriminator == nil {
			t.Discriminator = t.Name
		}
		v, err := normalizeDiscriminator(t.Discriminator)
		if err != nil {
			return &BuildError{Entity: t.Name, Err: err}
		}
		t.Discriminator = v
		if !t.IsConcrete() {
			continue
		}
		if other, dup := seen[v]; dup {
			return &BuildError{Entity: t.Name, Err: fmt.Errorf("%w: discriminator %v already used by %s", ErrInvalidModel, v, other)}
		}
		seen[v] = t.Name
		if _, ok := v.(string); ok {
			strs++
		} else {
			ints++
		}
	}
	if strs > 0 && ints > 0 {
		return &BuildError{Entity: h.Root.Name, Err: fmt.Errorf("%w: discriminator values mix strings and numbers", ErrInvalidModel)}
	}
	t := reflect.TypeFor[string]()
	if ints > 0 {
		t = reflect.TypeFor[int32]()
	}
	m, err := b.reg.FindMapping(typemap.Request{Type: t})
	if err != nil {
		return &BuildError{Entity: h.Root.Name, Property: h.Root.DiscriminatorColumn, Err: err}
	}
	h.DiscriminatorMapping = m
	return nil
}

func normalizeDiscriminator(v any) (any, error) {
	switch d := v.(type) {
	case string:
		return d, nil
	case int:
		return int64(d), nil
	case int32:
		return int64(d), nil
	case int64:
		return d, nil
	case float64:
		if d != math.Trunc(d) {
			return nil, fmt.Errorf("%w: fractional discriminator %v", ErrInvalidModel, d)
		}
		return int64(d), nil
	}
	return nil, fmt.Errorf("%w: discriminator of type %T", ErrInvalidModel, v)
}

func (m *Model) linkNavigation(e *Entity, n *Navigation) error {
	fail := func(err error) error {
		return &BuildError{Entity: e.Name, Property: n.Name, Err: err}
	}
	t, ok := m.byName[n.Target]
	if !ok {
		return fail(fmt.Errorf("%w: unknown navigation target %q", ErrInvalidModel, n.Target))
	}
	n.source, n.target = e, t
	principal := n.PrincipalKey
	if len(principal) == 0 {
		principal = n.Principal().Root().Key
	}
	if len(principal) != len(n.ForeignKey) {
		return fail(fmt.Errorf("%w: foreign key has %d properties, principal key %d", ErrInvalidModel, len(n.ForeignKey), len(principal)))
	}
	n.fk, n.pk = nil, nil
	for i := range principal {
		fk, ok := n.Dependent().Property(n.ForeignKey[i])
		if !ok {
			return fail(fmt.Errorf("%w: unknown foreign key property %q on %s", ErrInvalidModel, n.ForeignKey[i], n.Dependent().Name))
		}
		pk, ok := n.Principal().Property(principal[i])
		if !ok {
			return fail(fmt.Errorf("%w: unknown principal key property %q on %s", ErrInvalidModel, principal[i], n.Principal().Name))
		}
		n.fk = append(n.fk, fk)
		n.pk = append(n.pk, pk)
	}
	// A reference whose foreign key cannot be null always has a target.
	if !n.Collection && !n.Required && len(n.fk) > 0 {
		n.Required = true
		for _, p := range n.fk {
			if p.Nullable {
				n.Required = false
			}
		}
	}
	return nil
}
