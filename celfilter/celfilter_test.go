package celfilter_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spandigital/pgtranslate"
	"github.com/spandigital/pgtranslate/celfilter"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqltypes"
	"github.com/spandigital/pgtranslate/test"
)

func TestCompile(t *testing.T) {
	m := test.NewStoreModel()
	customers, err := celfilter.NewEnv(m, "Customer", "c")
	require.NoError(t, err)
	orders, err := celfilter.NewEnv(m, "Order", "o", cel.Variable("minTotal", cel.DoubleType))
	require.NoError(t, err)
	events, err := celfilter.NewEnv(m, "Event", "e", cel.Variable("tags", cel.ListType(cel.StringType)))
	require.NoError(t, err)
	jsonEntities, err := celfilter.NewEnv(m, "JsonEntity", "j")
	require.NoError(t, err)

	orderOver := func(total float64) *query.Lambda {
		return query.Fn("o", query.Gt(query.P("o", "Total"), query.C(total)))
	}
	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		env  *cel.Env
		src  string
		want query.Expr
	}{
		{
			name: "equality",
			env:  customers,
			src:  `c.Name == "Ann"`,
			want: query.Eq(query.P("c", "Name"), query.C("Ann")),
		},
		{
			name: "logical operators",
			env:  customers,
			src:  `!(c.Name == "Ann") || c.Id >= 10`,
			want: query.Or(query.Not(query.Eq(query.P("c", "Name"), query.C("Ann"))), query.Ge(query.P("c", "Id"), query.C(int64(10)))),
		},
		{
			name: "starts with",
			env:  customers,
			src:  `c.City.startsWith("B")`,
			want: query.Invoke(query.P("c", "City"), "StartsWith", query.C("B")),
		},
		{
			name: "global matches",
			env:  orders,
			src:  `matches(o.Customer.Name, "^A")`,
			want: query.Invoke(query.P("o", "Customer", "Name"), "IsMatch", query.C("^A")),
		},
		{
			name: "string size",
			env:  customers,
			src:  `size(c.Name) > 3`,
			want: query.Gt(query.P("c", "Name", "Length"), query.C(int64(3))),
		},
		{
			name: "has",
			env:  customers,
			src:  `has(c.City)`,
			want: query.Ne(query.P("c", "City"), query.C(nil)),
		},
		{
			name: "owned member",
			env:  customers,
			src:  `c.Address.Street == "Main"`,
			want: query.Eq(query.P("c", "Address", "Street"), query.C("Main")),
		},
		{
			name: "in list",
			env:  customers,
			src:  `c.Name in ["a", "b"]`,
			want: query.InList(query.P("c", "Name"), query.C("a"), query.C("b")),
		},
		{
			name: "conditional",
			env:  customers,
			src:  `(c.City == "Oslo" ? 1 : 2) == 1`,
			want: query.Eq(
				query.If(query.Eq(query.P("c", "City"), query.C("Oslo")), query.C(int64(1)), query.C(int64(2))),
				query.C(int64(1)),
			),
		},
		{
			name: "exists",
			env:  customers,
			src:  `c.Orders.exists(o, o.Total > 100.0)`,
			want: query.Invoke(query.P("c", "Orders"), "Any", orderOver(100)),
		},
		{
			name: "all",
			env:  customers,
			src:  `c.Orders.all(o, has(o.ShippedDate))`,
			want: query.Invoke(query.P("c", "Orders"), "All", query.Fn("o", query.Ne(query.P("o", "ShippedDate"), query.C(nil)))),
		},
		{
			name: "exists one",
			env:  customers,
			src:  `c.Orders.exists_one(o, o.Total > 5.0)`,
			want: query.Eq(query.Invoke(query.P("c", "Orders"), "Count", orderOver(5)), query.C(int64(1))),
		},
		{
			name: "size of filter",
			env:  customers,
			src:  `size(c.Orders.filter(o, o.Total > 5.0)) >= 2`,
			want: query.Ge(query.Invoke(query.P("c", "Orders"), "Count", orderOver(5)), query.C(int64(2))),
		},
		{
			name: "collection size",
			env:  customers,
			src:  `c.Contacts.size() == 0`,
			want: query.Eq(query.P("c", "Contacts", "Count"), query.C(int64(0))),
		},
		{
			name: "parameter",
			env:  orders,
			src:  `o.Total > minTotal`,
			want: query.Gt(query.P("o", "Total"), query.Param{Name: "minTotal", Type: reflect.TypeFor[float64]()}),
		},
		{
			name: "zero based month",
			env:  orders,
			src:  `o.OrderDate.getMonth() == 0`,
			want: query.Eq(query.Minus(query.P("o", "OrderDate", "Month"), query.C(int64(1))), query.C(int64(0))),
		},
		{
			name: "timestamp constant",
			env:  orders,
			src:  `o.OrderDate > timestamp("2024-01-02T00:00:00Z")`,
			want: query.Gt(query.P("o", "OrderDate"), query.C(jan2)),
		},
		{
			name: "duration on the left",
			env:  orders,
			src:  `duration("1d") + o.OrderDate < timestamp("2024-01-02T00:00:00Z")`,
			want: query.Lt(query.Plus(query.P("o", "OrderDate"), query.C(24*time.Hour)), query.C(jan2)),
		},
		{
			name: "sunday is zero",
			env:  events,
			src:  `e.StartsAt.getDayOfWeek() == 0`,
			want: query.Eq(
				query.Binary{Op: query.OpMod, Left: query.P("e", "StartsAt", "DayOfWeek"), Right: query.C(int64(7))},
				query.C(int64(0)),
			),
		},
		{
			name: "date constant",
			env:  events,
			src:  `e.Day >= date("2024-01-02")`,
			want: query.Ge(query.P("e", "Day"), query.C(pgtype.Date{Time: jan2, Valid: true})),
		},
		{
			name: "array comprehension",
			env:  events,
			src:  `e.Tags.exists(t, t == "x")`,
			want: query.Invoke(query.P("e", "Tags"), "Any", query.Fn("t", query.Eq(query.V("t"), query.C("x")))),
		},
		{
			name: "in array",
			env:  events,
			src:  `"x" in e.Tags`,
			want: query.InArray(query.C("x"), query.P("e", "Tags")),
		},
		{
			name: "in array parameter",
			env:  events,
			src:  `e.Title in tags`,
			want: query.InArray(query.P("e", "Title"), query.Param{Name: "tags", Type: reflect.TypeFor[[]string]()}),
		},
		{
			name: "array index",
			env:  events,
			src:  `e.Tags[0] == "a"`,
			want: query.Eq(query.Invoke(query.P("e", "Tags"), "ElementAt", query.C(int64(0))), query.C("a")),
		},
		{
			name: "range contains",
			env:  events,
			src:  `e.Seats.contains(3)`,
			want: query.Invoke(query.P("e", "Seats"), "Contains", query.C(int64(3))),
		},
		{
			name: "range bound",
			env:  events,
			src:  `e.Seats.lower() > 1`,
			want: query.Gt(query.P("e", "Seats", "LowerBound"), query.C(int64(1))),
		},
		{
			name: "json document path",
			env:  jsonEntities,
			src:  `j.ChildComplexType.Nested.NestedInt == 58`,
			want: query.Eq(query.P("j", "ChildComplexType", "Nested", "NestedInt"), query.C(int64(58))),
		},
		{
			name: "json collection",
			env:  jsonEntities,
			src:  `j.Collection.exists(i, i.Number == 1)`,
			want: query.Invoke(query.P("j", "Collection"), "Any", query.Fn("i", query.Eq(query.P("i", "Number"), query.C(int64(1))))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := celfilter.Compile(tt.env, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	m := test.NewStoreModel()
	customers, err := celfilter.NewEnv(m, "Customer", "c")
	require.NoError(t, err)
	orders, err := celfilter.NewEnv(m, "Order", "o")
	require.NoError(t, err)

	tests := []struct {
		name        string
		env         *cel.Env
		src         string
		unsupported bool
	}{
		{name: "unknown field", env: customers, src: `c.Bogus == 1`},
		{name: "map outside of size", env: customers, src: `c.Orders.map(o, o.Total).size() > 0`, unsupported: true},
		{name: "time zone argument", env: orders, src: `o.OrderDate.getHours("UTC") == 1`, unsupported: true},
		{name: "non-constant duration", env: customers, src: `duration(c.Name) > duration("1h")`, unsupported: true},
		{name: "list concatenation", env: customers, src: `size([c.Name] + ["a"]) == 2`, unsupported: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := celfilter.Compile(tt.env, tt.src)
			require.Error(t, err)
			if tt.unsupported {
				assert.ErrorIs(t, err, celfilter.ErrUnsupported)
			}
		})
	}
}

func TestNewEnvUnknownEntity(t *testing.T) {
	_, err := celfilter.NewEnv(test.NewCustomersModel(), "Invoice", "i")
	require.Error(t, err)
}

func TestFilterRequiresBoolean(t *testing.T) {
	env, err := celfilter.NewEnv(test.NewCustomersModel(), "Customer", "c")
	require.NoError(t, err)
	_, err = celfilter.Filter(env, "c", `c.Name`)
	require.Error(t, err)
}

func TestFilterTranslates(t *testing.T) {
	m := test.NewStoreModel()
	tests := []struct {
		name   string
		entity string
		src    string
		opts   []cel.EnvOption
		want   []string
	}{
		{
			name:   "collection predicate with parameter",
			entity: "Customer",
			src:    `c.Orders.exists(o, o.Total > minTotal)`,
			opts:   []cel.EnvOption{cel.Variable("minTotal", cel.DoubleType)},
			want:   []string{"WHERE EXISTS (", `FROM "Orders" AS o`, "@minTotal"},
		},
		{
			name:   "reference navigation",
			entity: "Order",
			src:    `o.Customer.Name.startsWith("A")`,
			want:   []string{`INNER JOIN "Customers" AS c ON o."CustomerId" = c."Id"`, `WHERE c."Name" LIKE 'A%'`},
		},
		{
			name:   "json path",
			entity: "JsonEntity",
			src:    `j.ChildComplexType.Nested.NestedInt == 58`,
			want:   []string{`WHERE (CAST(j."ChildComplexType" #>> '{Nested,NestedInt}' AS integer)) = 58`},
		},
		{
			name:   "range and date",
			entity: "Event",
			src:    `e.Seats.contains(3) && e.Day >= date("2024-01-02")`,
			want:   []string{"e.seats @> 3", "e.day >= DATE '2024-01-02'"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			variable := map[string]string{"Customer": "c", "Order": "o", "JsonEntity": "j", "Event": "e"}[tt.entity]
			env, err := celfilter.NewEnv(m, tt.entity, variable, tt.opts...)
			require.NoError(t, err)
			pred, err := celfilter.Filter(env, variable, tt.src)
			require.NoError(t, err)
			st, err := pgtranslate.New(m).Translate(query.From(tt.entity).Where(pred))
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, st.SQL, w)
			}
		})
	}
}

func TestDeclarations(t *testing.T) {
	env, err := cel.NewEnv(
		sqltypes.Declarations(),
		cel.Variable("d", sqltypes.Date),
		cel.Variable("r", sqltypes.Range(cel.IntType)),
	)
	require.NoError(t, err)
	for _, src := range []string{
		`d > date("2024-01-01")`,
		`d.getFullYear() == 2024`,
		`r.contains(1) && !r.isEmpty()`,
		`r.upper() - r.lower() > 2`,
	} {
		ast, iss := env.Compile(src)
		require.NoError(t, iss.Err(), src)
		assert.True(t, ast.OutputType().IsExactType(cel.BoolType), src)
	}
}
