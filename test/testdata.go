package test

import (
	"net/netip"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/typemap"
)

var (
	tInt32    = reflect.TypeFor[int32]()
	tInt64    = reflect.TypeFor[int64]()
	tString   = reflect.TypeFor[string]()
	tBool     = reflect.TypeFor[bool]()
	tTime     = reflect.TypeFor[time.Time]()
	tDuration = reflect.TypeFor[time.Duration]()
	tDecimal  = reflect.TypeFor[decimal.Decimal]()
)

func NewRegistry() *typemap.Registry {
	return typemap.New(typemap.Options{
		Plugins: []typemap.Plugin{typemap.PgTypes(), typemap.Ranges(), typemap.Spatial(typemap.SpatialOptions{SRID: 4326})},
	})
}

func mustBuild(b *model.Builder) *model.Model {
	m, err := b.Build(NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}

// AddAnimals declares Animal <- Bird <- {Eagle, Kiwi} with Animal and Bird
// abstract, plus the Country owning animals.
func AddAnimals(b *model.Builder, strategy model.Strategy) {
	animal := b.Entity("Animal").Abstract().Strategy(strategy).Key("Id").
		Property("Id", tInt32).
		Property("CountryId", tInt32).
		Property("Name", tString, model.Nullable()).
		Property("Species", tString, model.Nullable(), model.MaxLength(100))
	bird := b.Entity("Bird").Base("Animal").Abstract().
		Property("IsFlightless", tBool).
		Property("EagleId", reflect.TypeFor[*int32]())
	eagle := b.Entity("Eagle").Base("Bird").
		Property("Group", tInt32)
	kiwi := b.Entity("Kiwi").Base("Bird").
		Property("FoundOn", tString)
	switch strategy {
	case model.TPT:
		animal.Table("Animals")
		bird.Table("Birds")
		eagle.Table("Eagles")
		kiwi.Table("Kiwis")
	case model.TPC:
		eagle.Table("Eagles")
		kiwi.Table("Kiwis")
	default:
		animal.Table("Animals")
	}
	b.Entity("Country").Table("Countries").Key("Id").
		Property("Id", tInt32).
		Property("Name", tString).
		HasMany("Animals", "Animal", "CountryId")
}

func NewAnimalsModel(strategy model.Strategy) *model.Model {
	b := model.NewBuilder()
	AddAnimals(b, strategy)
	return mustBuild(b)
}

// NewDrinksModel is a TPC hierarchy whose root is concrete: Drink, Coke,
// Lilt and Tea each have a table with snake_case columns.
func NewDrinksModel() *model.Model {
	b := model.NewBuilder()
	b.Entity("Drink").Table("drinks").Strategy(model.TPC).Key("Id").
		Property("Id", tInt32, model.ColumnName("id")).
		Property("SortIndex", tInt32, model.ColumnName("sort_index"))
	b.Entity("Coke").Base("Drink").Table("coke").
		Property("SugarGrams", tInt32, model.ColumnName("sugar_grams")).
		Property("CaffeineGrams", tInt32, model.ColumnName("caffeine_grams")).
		Property("Carbonation", tInt32, model.ColumnName("carbonation"))
	b.Entity("Lilt").Base("Drink").Table("lilt").
		Property("SugarGrams", tInt32, model.ColumnName("sugar_grams")).
		Property("Carbonation", tInt32, model.ColumnName("carbonation"))
	b.Entity("Tea").Base("Drink").Table("tea").
		Property("HasMilk", tBool, model.ColumnName("has_milk")).
		Property("CaffeineGrams", tInt32, model.ColumnName("caffeine_grams"))
	return mustBuild(b)
}

// AddJSONEntities declares JsonEntity with a JSON-stored reference
// (ChildComplexType, nesting Nested) and a JSON-stored collection.
func AddJSONEntities(b *model.Builder) {
	nested := func(ob *model.OwnedBuilder) {
		ob.Type("NestedType").
			Property("NestedInt", tInt32).
			Property("NestedString", tString, model.Nullable())
	}
	b.Entity("JsonEntity").Table("JsonEntities").Key("Id").
		Property("Id", tInt32).
		Property("Name", tString).
		OwnsOne("ChildComplexType", model.JSON, func(ob *model.OwnedBuilder) {
			ob.Type("ComplexType").
				Property("Name", tString, model.Nullable()).
				Property("Number", tInt32).
				Property("Amount", tDecimal).
				Property("Enabled", tBool).
				Property("Date", tTime).
				OwnsOne("Nested", nested)
		}).
		OwnsMany("Collection", model.JSON, func(ob *model.OwnedBuilder) {
			ob.Type("CollectionItem").
				Property("Name", tString, model.Nullable()).
				Property("Number", tInt32).
				OwnsOne("Nested", nested)
		})
}

func NewJSONModel() *model.Model {
	b := model.NewBuilder()
	AddJSONEntities(b)
	return mustBuild(b)
}

// AddCustomers declares Customer 1-n Order plus table-split owned data:
// an Address reference and a Contacts collection nesting Phones.
func AddCustomers(b *model.Builder) {
	b.Entity("Customer").Table("Customers").Key("Id").
		Property("Id", tInt32).
		Property("Name", tString).
		Property("City", tString, model.Nullable()).
		HasMany("Orders", "Order", "CustomerId").
		OwnsOne("Address", model.TableSplit, func(ob *model.OwnedBuilder) {
			ob.Property("Street", tString).
				Property("Zip", tString, model.Nullable())
		}).
		OwnsMany("Contacts", model.TableSplit, func(ob *model.OwnedBuilder) {
			ob.Type("Contact").Table("CustomerContacts").
				Property("Email", tString).
				OwnsMany("Phones", func(pb *model.OwnedBuilder) {
					pb.Type("Phone").Table("ContactPhones").
						Property("Number", tString)
				})
		})
	b.Entity("Order").Table("Orders").Key("Id").
		Property("Id", tInt32).
		Property("CustomerId", tInt32).
		Property("OrderDate", tTime).
		Property("ShippedDate", reflect.TypeFor[*time.Time]()).
		Property("Total", tDecimal, model.Precision(10, 2)).
		HasOne("Customer", "Customer", "CustomerId")
}

func NewCustomersModel() *model.Model {
	b := model.NewBuilder()
	AddCustomers(b)
	return mustBuild(b)
}

// AddEvents declares an entity exercising temporal, range, array, network
// and spatial columns.
func AddEvents(b *model.Builder) {
	b.Entity("Event").Table("events").Key("Id").
		Property("Id", tInt64, model.ColumnName("id")).
		Property("Title", tString, model.ColumnName("title")).
		Property("StartsAt", tTime, model.ColumnName("starts_at")).
		Property("LocalStart", tTime, model.ColumnName("local_start"), model.StoreType("timestamp")).
		Property("Day", reflect.TypeFor[pgtype.Date](), model.ColumnName("day")).
		Property("Length", tDuration, model.ColumnName("length")).
		Property("During", reflect.TypeFor[pgtype.Range[pgtype.Date]](), model.ColumnName("during")).
		Property("Seats", reflect.TypeFor[pgtype.Range[int32]](), model.ColumnName("seats")).
		Property("Tags", reflect.TypeFor[[]string](), model.ColumnName("tags")).
		Property("Scores", reflect.TypeFor[[]int32](), model.ColumnName("scores")).
		Property("Host", reflect.TypeFor[netip.Addr](), model.ColumnName("host")).
		Property("Network", reflect.TypeFor[netip.Prefix](), model.ColumnName("network")).
		Property("Location", reflect.TypeFor[orb.Point](), model.ColumnName("location")).
		Property("Spot", reflect.TypeFor[pgtype.Point](), model.ColumnName("spot")).
		Property("Rating", reflect.TypeFor[*float64](), model.ColumnName("rating"))
}

func NewEventsModel() *model.Model {
	b := model.NewBuilder()
	AddEvents(b)
	return mustBuild(b)
}

// NewStoreModel combines customers, JSON entities and events in one model.
func NewStoreModel() *model.Model {
	b := model.NewBuilder()
	AddCustomers(b)
	AddJSONEntities(b)
	AddEvents(b)
	return mustBuild(b)
}
