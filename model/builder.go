package model

import (
	"reflect"

	"github.com/spandigital/pgtranslate/typemap"
)

// Builder assembles a Definition fluently.
//
//	b := model.NewBuilder()
//	b.Entity("Animal").Table("Animals").Abstract().Strategy(model.TPH).
//		Key("Id").
//		Property("Id", reflect.TypeFor[int32]()).
//		Property("Name", reflect.TypeFor[string](), model.Nullable())
//	b.Entity("Bird").Base("Animal")
//	m, err := b.Build(reg)
type Builder struct {
	def   Definition
	index map[string]*EntityBuilder
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: map[string]*EntityBuilder{}}
}

// Entity returns the builder for name, declaring the entity on first use.
func (b *Builder) Entity(name string) *EntityBuilder {
	if eb, ok := b.index[name]; ok {
		return eb
	}
	e := &Entity{Name: name}
	b.def.Entities = append(b.def.Entities, e)
	eb := &EntityBuilder{e: e}
	b.index[name] = eb
	return eb
}

// Definition returns the accumulated definition.
func (b *Builder) Definition() *Definition { return &b.def }

// Build builds the model; see Definition.Build.
func (b *Builder) Build(reg *typemap.Registry) (*Model, error) {
	return b.def.Build(reg)
}

// PropertyOption adjusts a property declaration.
type PropertyOption func(*Property)

// Nullable allows NULL in the column.
func Nullable() PropertyOption { return func(p *Property) { p.Nullable = true } }

// ColumnName overrides the column name.
func ColumnName(name string) PropertyOption { return func(p *Property) { p.Column = name } }

// StoreType sets an explicit store type, facets and all.
func StoreType(st string) PropertyOption { return func(p *Property) { p.StoreType = st } }

// MaxLength sets the size facet.
func MaxLength(n int) PropertyOption { return func(p *Property) { p.MaxLength = &n } }

// FixedLength sets a fixed size facet.
func FixedLength(n int) PropertyOption {
	return func(p *Property) {
		p.MaxLength = &n
		p.FixedLength = true
	}
}

// Precision sets precision and, optionally, scale.
func Precision(precision int, scale ...int) PropertyOption {
	return func(p *Property) {
		p.Precision = &precision
		if len(scale) > 0 {
			s := scale[0]
			p.Scale = &s
		}
	}
}

// JSONName sets the key used inside JSON documents.
func JSONName(name string) PropertyOption { return func(p *Property) { p.JSONName = name } }

func newProperty(name string, t reflect.Type, opts []PropertyOption) *Property {
	p := &Property{Name: name, Type: t}
	for _, o := range opts {
		o(p)
	}
	return p
}

// EntityBuilder declares one entity.
type EntityBuilder struct {
	e *Entity
}

func (eb *EntityBuilder) Table(name string) *EntityBuilder {
	eb.e.Table = name
	return eb
}

func (eb *EntityBuilder) Schema(name string) *EntityBuilder {
	eb.e.Schema = name
	return eb
}

func (eb *EntityBuilder) Base(name string) *EntityBuilder {
	eb.e.Base = name
	return eb
}

func (eb *EntityBuilder) Abstract() *EntityBuilder {
	eb.e.Abstract = true
	return eb
}

func (eb *EntityBuilder) Strategy(s Strategy) *EntityBuilder {
	eb.e.Strategy = s
	return eb
}

// Discriminator names the TPH discriminator column on the root.
func (eb *EntityBuilder) Discriminator(column string) *EntityBuilder {
	eb.e.DiscriminatorColumn = column
	return eb
}

// DiscriminatorValue sets this type's discriminator value.
func (eb *EntityBuilder) DiscriminatorValue(v any) *EntityBuilder {
	eb.e.Discriminator = v
	return eb
}

func (eb *EntityBuilder) Key(props ...string) *EntityBuilder {
	eb.e.Key = props
	return eb
}

func (eb *EntityBuilder) Property(name string, t reflect.Type, opts ...PropertyOption) *EntityBuilder {
	eb.e.Properties = append(eb.e.Properties, newProperty(name, t, opts))
	return eb
}

// HasMany declares a collection navigation; fk names properties of target.
func (eb *EntityBuilder) HasMany(name, target string, fk ...string) *EntityBuilder {
	eb.e.Navigations = append(eb.e.Navigations, &Navigation{Name: name, Target: target, Collection: true, ForeignKey: fk})
	return eb
}

// HasOne declares a reference navigation; fk names properties of this entity.
func (eb *EntityBuilder) HasOne(name, target string, fk ...string) *EntityBuilder {
	eb.e.Navigations = append(eb.e.Navigations, &Navigation{Name: name, Target: target, ForeignKey: fk})
	return eb
}

// OwnsOne declares an owned reference.
func (eb *EntityBuilder) OwnsOne(name string, storage Storage, fn func(*OwnedBuilder)) *EntityBuilder {
	eb.e.Owned = append(eb.e.Owned, buildOwned(name, false, storage, fn))
	return eb
}

// OwnsMany declares an owned collection.
func (eb *EntityBuilder) OwnsMany(name string, storage Storage, fn func(*OwnedBuilder)) *EntityBuilder {
	eb.e.Owned = append(eb.e.Owned, buildOwned(name, true, storage, fn))
	return eb
}

func buildOwned(name string, collection bool, storage Storage, fn func(*OwnedBuilder)) *Owned {
	o := &Owned{Name: name, Collection: collection, Storage: storage}
	if fn != nil {
		fn(&OwnedBuilder{o: o})
	}
	return o
}

// OwnedBuilder declares an owned type.
type OwnedBuilder struct {
	o *Owned
}

// Type names the owned type; defaults to the navigation name.
func (ob *OwnedBuilder) Type(name string) *OwnedBuilder {
	ob.o.Type = name
	return ob
}

// Column names the document column of a JSON root.
func (ob *OwnedBuilder) Column(name string) *OwnedBuilder {
	ob.o.Column = name
	return ob
}

// StoreType selects json instead of jsonb for a JSON root.
func (ob *OwnedBuilder) StoreType(st string) *OwnedBuilder {
	ob.o.StoreType = st
	return ob
}

// JSONName sets the key inside the parent document.
func (ob *OwnedBuilder) JSONName(name string) *OwnedBuilder {
	ob.o.JSONName = name
	return ob
}

// Table names the side table of a table-split collection.
func (ob *OwnedBuilder) Table(name string) *OwnedBuilder {
	ob.o.Table = name
	return ob
}

// ColumnPrefix overrides the Name_ prefix of table-split reference columns.
func (ob *OwnedBuilder) ColumnPrefix(prefix string) *OwnedBuilder {
	ob.o.ColumnPrefix = &prefix
	return ob
}

// Key declares the child key of a table-split collection.
func (ob *OwnedBuilder) Key(props ...string) *OwnedBuilder {
	ob.o.Key = props
	return ob
}

func (ob *OwnedBuilder) Property(name string, t reflect.Type, opts ...PropertyOption) *OwnedBuilder {
	ob.o.Properties = append(ob.o.Properties, newProperty(name, t, opts))
	return ob
}

// OwnsOne declares a nested owned reference; it inherits JSON storage.
func (ob *OwnedBuilder) OwnsOne(name string, fn func(*OwnedBuilder)) *OwnedBuilder {
	ob.o.Owned = append(ob.o.Owned, buildOwned(name, false, ob.o.Storage, fn))
	return ob
}

// OwnsMany declares a nested owned collection; it inherits JSON storage.
func (ob *OwnedBuilder) OwnsMany(name string, fn func(*OwnedBuilder)) *OwnedBuilder {
	ob.o.Owned = append(ob.o.Owned, buildOwned(name, true, ob.o.Storage, fn))
	return ob
}
