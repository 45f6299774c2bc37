package model_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/test"
	"github.com/spandigital/pgtranslate/typemap"
)

func entity(t *testing.T, m *model.Model, name string) *model.Entity {
	t.Helper()
	e, ok := m.Entity(name)
	require.True(t, ok, "entity %s", name)
	return e
}

func columnNames(sh *model.EntityShape) []string {
	out := make([]string, len(sh.Columns))
	for i, c := range sh.Columns {
		out[i] = c.Name
	}
	return out
}

func TestResolveTPH(t *testing.T) {
	m := test.NewAnimalsModel(model.TPH)
	animal := entity(t, m, "Animal")
	kiwi := entity(t, m, "Kiwi")
	shape := m.Shape(animal)

	assert.Equal(t, model.TPH, shape.Strategy)
	require.NotNil(t, shape.Discriminator)
	assert.Equal(t, "Discriminator", shape.Discriminator.Name)
	assert.Equal(t, "text", shape.Discriminator.Mapping.StoreType)

	ks := shape.Of(kiwi)
	assert.Equal(t, model.TableRef{Name: "Animals"}, ks.Table)
	assert.Equal(t, "Kiwi", ks.Discriminator)
	assert.Equal(t, []string{"Id", "CountryId", "Name", "Species", "IsFlightless", "EagleId", "FoundOn"}, columnNames(ks))

	tests := []struct {
		column       string
		wantNullable bool
		wantStore    string
	}{
		{column: "Id", wantNullable: false, wantStore: "integer"},
		{column: "Name", wantNullable: true, wantStore: "text"},
		{column: "Species", wantNullable: true, wantStore: "character varying(100)"},
		// every concrete type is a bird
		{column: "IsFlightless", wantNullable: false, wantStore: "boolean"},
		{column: "EagleId", wantNullable: true, wantStore: "integer"},
		// eagles have no FoundOn
		{column: "FoundOn", wantNullable: true, wantStore: "text"},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			c, ok := ks.Column(tt.column)
			require.True(t, ok)
			assert.Equal(t, tt.wantNullable, c.Nullable)
			assert.Equal(t, tt.wantStore, c.Mapping.StoreType)
			assert.Equal(t, "Animals", c.Table.Name)
		})
	}

	var concrete []string
	for _, sh := range shape.ConcreteTypes(animal) {
		concrete = append(concrete, sh.Entity.Name)
	}
	assert.Equal(t, []string{"Eagle", "Kiwi"}, concrete)
}

func TestResolveTPHSingleConcreteType(t *testing.T) {
	b := model.NewBuilder()
	b.Entity("Base").Table("Things").Abstract().Key("Id").Property("Id", reflect.TypeFor[int32]())
	b.Entity("Only").Base("Base").Property("Label", reflect.TypeFor[string]())
	m, err := b.Build(test.NewRegistry())
	require.NoError(t, err)

	shape := m.Shape(entity(t, m, "Base"))
	assert.Nil(t, shape.Discriminator)
	c, ok := shape.Of(entity(t, m, "Only")).Column("Label")
	require.True(t, ok)
	assert.False(t, c.Nullable)
}

func TestResolveTPT(t *testing.T) {
	m := test.NewAnimalsModel(model.TPT)
	eagle := entity(t, m, "Eagle")
	shape := m.Shape(eagle)

	assert.Nil(t, shape.Discriminator)
	es := shape.Of(eagle)
	assert.Equal(t, "Eagle", es.Discriminator)
	assert.Equal(t, model.TableRef{Name: "Eagles"}, es.Table)

	tables := map[string]string{}
	for _, c := range es.Columns {
		tables[c.Name] = c.Table.Name
	}
	assert.Equal(t, map[string]string{
		"Id":           "Animals",
		"CountryId":    "Animals",
		"Name":         "Animals",
		"Species":      "Animals",
		"IsFlightless": "Birds",
		"EagleId":      "Birds",
		"Group":        "Eagles",
	}, tables)

	// TPT keeps declared nullability: rows of each table always exist.
	c, _ := es.Column("IsFlightless")
	assert.False(t, c.Nullable)
}

func TestResolveTPC(t *testing.T) {
	m := test.NewAnimalsModel(model.TPC)
	animal := entity(t, m, "Animal")
	bird := entity(t, m, "Bird")
	kiwi := entity(t, m, "Kiwi")
	shape := m.Shape(animal)

	assert.True(t, bird.TableRef().IsZero())
	assert.True(t, animal.TableRef().IsZero())
	ks := shape.Of(kiwi)
	assert.Equal(t, "Kiwis", ks.Table.Name)
	for _, c := range ks.Columns {
		assert.Equal(t, "Kiwis", c.Table.Name, c.Name)
	}
	assert.Equal(t, []string{"Id", "CountryId", "Name", "Species", "IsFlightless", "EagleId", "FoundOn"}, columnNames(ks))

	drinks := test.NewDrinksModel()
	drink := entity(t, drinks, "Drink")
	var tables []string
	for _, sh := range drinks.Shape(drink).ConcreteTypes(drink) {
		tables = append(tables, sh.Table.Name)
	}
	assert.Equal(t, []string{"drinks", "coke", "lilt", "tea"}, tables)
}

func TestOwnedTableSplit(t *testing.T) {
	m := test.NewCustomersModel()
	customer := entity(t, m, "Customer")

	address, ok := customer.OwnedNavigation("Address")
	require.True(t, ok)
	street, ok := address.Property("Street")
	require.True(t, ok)
	assert.Equal(t, "Address_Street", street.ColumnName())
	assert.Equal(t, []string{"Address"}, address.Path())

	shape := m.Shape(customer).Of(customer)
	assert.Equal(t, []string{"Id", "Name", "City", "Address_Street", "Address_Zip"}, columnNames(shape))
	zip, _ := shape.Column("Address_Zip")
	assert.True(t, zip.Nullable)
	assert.Same(t, address, zip.Owned)

	contacts, ok := customer.OwnedNavigation("Contacts")
	require.True(t, ok)
	assert.Equal(t, model.TableRef{Name: "CustomerContacts"}, contacts.TableRef())
	assert.Equal(t, []model.ColumnPair{{Parent: "Id", Child: "CustomerId"}}, contacts.ForeignKey())
	assert.Equal(t, []string{"CustomerId", "Id"}, contacts.KeyColumns())
	assert.Equal(t, "Id", contacts.OrdinalColumn())

	phones, ok := contacts.Navigation("Phones")
	require.True(t, ok)
	assert.Equal(t, model.TableRef{Name: "ContactPhones"}, phones.TableRef())
	assert.Equal(t, []model.ColumnPair{
		{Parent: "CustomerId", Child: "CustomerId"},
		{Parent: "Id", Child: "ContactId"},
	}, phones.ForeignKey())
	assert.Equal(t, []string{"CustomerId", "ContactId", "Id"}, phones.KeyColumns())
	assert.Equal(t, []string{"Contacts", "Phones"}, phones.Path())
	assert.Same(t, contacts, phones.Parent())
	assert.Same(t, customer, phones.Owner())
}

func TestOwnedJSON(t *testing.T) {
	m := test.NewJSONModel()
	e := entity(t, m, "JsonEntity")

	child, ok := e.OwnedNavigation("ChildComplexType")
	require.True(t, ok)
	assert.True(t, child.IsJSON())
	assert.Equal(t, "ChildComplexType", child.JSONColumn())
	assert.Empty(t, child.JSONPath())
	assert.Equal(t, "jsonb", child.Mapping().StoreType)

	nested, ok := child.Navigation("Nested")
	require.True(t, ok)
	assert.True(t, nested.IsJSON())
	assert.Equal(t, "ChildComplexType", nested.JSONColumn())
	assert.Equal(t, []string{"Nested"}, nested.JSONPath())
	p, ok := nested.Property("NestedInt")
	require.True(t, ok)
	assert.Empty(t, p.ColumnName())
	assert.Equal(t, typemap.KindInt, p.Mapping().Kind)

	shape := m.Shape(e).Of(e)
	assert.Equal(t, []string{"Id", "Name", "ChildComplexType", "Collection"}, columnNames(shape))
	doc, _ := shape.Column("Collection")
	assert.True(t, doc.Nullable)
}

func TestNavigations(t *testing.T) {
	m := test.NewCustomersModel()
	customer := entity(t, m, "Customer")
	order := entity(t, m, "Order")

	orders, ok := customer.Navigation("Orders")
	require.True(t, ok)
	assert.Same(t, customer, orders.Principal())
	assert.Same(t, order, orders.Dependent())
	require.Len(t, orders.ForeignKeyProperties(), 1)
	assert.Equal(t, "CustomerId", orders.ForeignKeyProperties()[0].Name)
	assert.Equal(t, "Id", orders.PrincipalKeyProperties()[0].Name)

	ref, ok := order.Navigation("Customer")
	require.True(t, ok)
	assert.Same(t, customer, ref.Principal())
	assert.Same(t, order, ref.Dependent())
	assert.Same(t, customer, ref.TargetEntity())
}

func TestBuildLeavesDefinitionUntouched(t *testing.T) {
	b := model.NewBuilder()
	test.AddCustomers(b)

	first, err := b.Build(test.NewRegistry())
	require.NoError(t, err)
	second, err := b.Build(test.NewRegistry())
	require.NoError(t, err)

	c1, c2 := entity(t, first, "Customer"), entity(t, second, "Customer")
	assert.NotSame(t, c1, c2)
	assert.Same(t, c1, c1.Hierarchy().Root)
	assert.Same(t, c2, c2.Hierarchy().Root)

	for _, m := range []*model.Model{first, second} {
		contacts, ok := entity(t, m, "Customer").OwnedNavigation("Contacts")
		require.True(t, ok)
		assert.Equal(t, []string{"CustomerId", "Id"}, contacts.KeyColumns())
		phones, _ := contacts.Navigation("Phones")
		assert.Equal(t, []string{"CustomerId", "ContactId", "Id"}, phones.KeyColumns())
		ref, _ := entity(t, m, "Order").Navigation("Customer")
		assert.True(t, ref.Required)
	}

	declared := b.Definition().Entities
	assert.Nil(t, declared[0].Owned[1].KeyColumns())
	assert.Nil(t, declared[0].Owned[1].ForeignKey())
	assert.Nil(t, declared[0].Hierarchy())
	assert.False(t, declared[1].Navigations[0].Required)
}

func TestBuildErrors(t *testing.T) {
	tInt := reflect.TypeFor[int32]()
	tString := reflect.TypeFor[string]()

	tests := []struct {
		name    string
		build   func(b *model.Builder)
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown base",
			build:   func(b *model.Builder) { b.Entity("A").Base("Missing").Key("Id").Property("Id", tInt) },
			wantErr: model.ErrInvalidModel,
			wantMsg: `unknown base type "Missing"`,
		},
		{
			name:    "no key",
			build:   func(b *model.Builder) { b.Entity("A").Property("Id", tInt) },
			wantErr: model.ErrInvalidModel,
			wantMsg: "no primary key",
		},
		{
			name: "inheritance cycle",
			build: func(b *model.Builder) {
				b.Entity("A").Base("B")
				b.Entity("B").Base("A")
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "inheritance cycle",
		},
		{
			name: "derived key",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt)
				b.Entity("B").Base("A").Key("Id")
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "derived types inherit the root key",
		},
		{
			name: "hidden property",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt).Property("Name", tString)
				b.Entity("B").Base("A").Property("Name", tString)
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "entity B property Name",
		},
		{
			name:    "nullable key",
			build:   func(b *model.Builder) { b.Entity("A").Key("Id").Property("Id", reflect.TypeFor[*int32]()) },
			wantErr: model.ErrInvalidModel,
			wantMsg: "key property is nullable",
		},
		{
			name: "duplicate discriminator",
			build: func(b *model.Builder) {
				b.Entity("A").Abstract().Key("Id").Property("Id", tInt)
				b.Entity("B").Base("A").DiscriminatorValue("x")
				b.Entity("C").Base("A").DiscriminatorValue("x")
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "already used by B",
		},
		{
			name: "mixed discriminators",
			build: func(b *model.Builder) {
				b.Entity("A").Abstract().Key("Id").Property("Id", tInt)
				b.Entity("B").Base("A").DiscriminatorValue(1)
				b.Entity("C").Base("A").DiscriminatorValue("c")
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "mix strings and numbers",
		},
		{
			name: "discriminator collides with property",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt).Property("Kind", tString).Discriminator("Kind")
				b.Entity("B").Base("A")
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: `discriminator column "Kind"`,
		},
		{
			name: "derived strategy differs",
			build: func(b *model.Builder) {
				b.Entity("A").Strategy(model.TPT).Key("Id").Property("Id", tInt)
				b.Entity("B").Base("A").Strategy(model.TPC)
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "strategy tpc differs",
		},
		{
			name:    "unmappable property",
			build:   func(b *model.Builder) { b.Entity("A").Key("Id").Property("Id", tInt).Property("Bad", reflect.TypeFor[chan int]()) },
			wantErr: typemap.ErrNoMapping,
			wantMsg: "entity A property Bad",
		},
		{
			name: "unknown navigation target",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt).HasMany("Bs", "B", "AId")
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: `unknown navigation target "B"`,
		},
		{
			name: "foreign key arity",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt).HasMany("Bs", "B")
				b.Entity("B").Key("Id").Property("Id", tInt)
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "foreign key has 0 properties",
		},
		{
			name: "document column not json",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt).OwnsOne("Doc", model.JSON, func(ob *model.OwnedBuilder) {
					ob.StoreType("text").Property("X", tInt)
				})
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "must be json or jsonb",
		},
		{
			name: "owned collection ordinal collides",
			build: func(b *model.Builder) {
				b.Entity("A").Key("Id").Property("Id", tInt).OwnsMany("Items", model.TableSplit, func(ob *model.OwnedBuilder) {
					ob.Property("Id", tInt)
				})
			},
			wantErr: model.ErrInvalidModel,
			wantMsg: "entity A property Items.Id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := model.NewBuilder()
			tt.build(b)
			_, err := b.Build(test.NewRegistry())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
			var be *model.BuildError
			assert.ErrorAs(t, err, &be)
		})
	}
}

const animalsYAML = `
entities:
  - name: Animal
    table: Animals
    abstract: true
    strategy: tph
    discriminatorColumn: kind
    key: [Id]
    properties:
      - {name: Id, type: int32}
      - {name: Name, type: "*string"}
      - {name: Seats, type: "pgtype.Range[int32]", column: seats}
    owned:
      - name: Tag
        storage: json
        properties:
          - {name: Label, type: string, jsonName: label}
  - name: Kiwi
    base: Animal
    discriminator: 2
    properties:
      - {name: FoundOn, type: string, maxLength: 50}
  - name: Eagle
    base: Animal
    discriminator: 1
    properties:
      - {name: Group, type: int32}
`

func TestParse(t *testing.T) {
	m, err := model.Parse([]byte(animalsYAML), test.NewRegistry())
	require.NoError(t, err)

	animal := entity(t, m, "Animal")
	kiwi := entity(t, m, "Kiwi")
	shape := m.Shape(animal)
	assert.Equal(t, model.TPH, shape.Strategy)
	require.NotNil(t, shape.Discriminator)
	assert.Equal(t, "kind", shape.Discriminator.Name)
	assert.Equal(t, "integer", shape.Discriminator.Mapping.StoreType)
	assert.Equal(t, int64(2), shape.Of(kiwi).Discriminator)

	seats, ok := animal.Property("Seats")
	require.True(t, ok)
	assert.Equal(t, "int4range", seats.Mapping().StoreType)
	found, _ := kiwi.Property("FoundOn")
	assert.Equal(t, "character varying(50)", found.Mapping().StoreType)
	name, _ := animal.Property("Name")
	assert.True(t, name.Nullable)

	tag, ok := animal.OwnedNavigation("Tag")
	require.True(t, ok)
	label, _ := tag.Property("Label")
	assert.Equal(t, "label", label.JSONKey())

	out, err := model.Marshal(m)
	require.NoError(t, err)
	again, err := model.Parse(out, test.NewRegistry())
	require.NoError(t, err)
	for _, e := range m.Entities() {
		e2 := entity(t, again, e.Name)
		assert.Equal(t, columnNames(m.Shape(e).Of(e)), columnNames(again.Shape(e2).Of(e2)), e.Name)
		assert.Equal(t, m.Shape(e).Of(e).Discriminator, again.Shape(e2).Of(e2).Discriminator, e.Name)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{name: "unknown field", yaml: "entities:\n  - name: A\n    colour: red\n"},
		{name: "unknown strategy", yaml: "entities:\n  - name: A\n    strategy: tpx\n"},
		{name: "unknown type name", yaml: "entities:\n  - name: A\n    key: [Id]\n    properties:\n      - {name: Id, type: widget}\n", wantErr: model.ErrUnknownType},
		{name: "fractional discriminator", yaml: "entities:\n  - name: A\n    key: [Id]\n    abstract: true\n    properties:\n      - {name: Id, type: int32}\n  - name: B\n    base: A\n    discriminator: 1.5\n", wantErr: model.ErrInvalidModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.Parse([]byte(tt.yaml), test.NewRegistry())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
