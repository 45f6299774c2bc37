package pgtranslate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/test"
)

func TestFunctionTranslations(t *testing.T) {
	e := func(path ...string) query.Expr { return query.P("e", path...) }
	tests := []struct {
		name string
		expr query.Expr
		want string
	}{
		// date and time
		{name: "year", expr: e("StartsAt", "Year"), want: "date_part('year', e.starts_at)::int"},
		{name: "second truncates", expr: e("StartsAt", "Second"), want: "floor(date_part('second', e.starts_at))::int"},
		{name: "millisecond", expr: e("StartsAt", "Millisecond"), want: "floor(date_part('millisecond', e.starts_at))::int % 1000"},
		{
			name: "iso day of week",
			expr: e("StartsAt", "DayOfWeek"),
			want: "CASE WHEN floor(date_part('dow', e.starts_at))::int = 0 THEN 7 ELSE floor(date_part('dow', e.starts_at))::int END",
		},
		{name: "date of timestamp", expr: e("StartsAt", "Date"), want: "date_trunc('day', e.starts_at)"},
		{name: "add days", expr: query.Invoke(e("StartsAt"), "AddDays", query.C(3)), want: "e.starts_at + make_interval(days => 3)"},
		{name: "add days to date", expr: query.Invoke(e("Day"), "AddDays", query.C(3)), want: "e.day + 3"},
		{name: "add months to date", expr: query.Invoke(e("Day"), "AddMonths", query.C(1)), want: "(e.day + make_interval(months => 1))::date"},
		{name: "utc now", expr: query.Static("UtcNow"), want: "now()"},

		// intervals
		{name: "total hours", expr: e("Length", "TotalHours"), want: "date_part('epoch', e.length) / 3600.0"},
		{name: "total seconds", expr: e("Length", "TotalSeconds"), want: "date_part('epoch', e.length)"},
		{name: "interval days", expr: e("Length", "Days"), want: "date_part('day', justify_hours(e.length))::int"},
		{name: "interval hours", expr: e("Length", "Hours"), want: "date_part('hour', justify_hours(e.length))::int"},
		{name: "interval minutes", expr: e("Length", "Minutes"), want: "date_part('minute', e.length)::int"},

		// strings
		{name: "contains", expr: query.Invoke(e("Title"), "Contains", query.C("x")), want: "strpos(e.title, 'x') > 0"},
		{name: "starts with constant", expr: query.Invoke(e("Title"), "StartsWith", query.C("ab")), want: "e.title LIKE 'ab%'"},
		{name: "index of", expr: query.Invoke(e("Title"), "IndexOf", query.C("x")), want: "strpos(e.title, 'x') - 1"},
		{name: "substring", expr: query.Invoke(e("Title"), "Substring", query.C(1), query.C(3)), want: "substr(e.title, 1 + 1, 3)"},
		{name: "length", expr: e("Title", "Length"), want: "length(e.title)::int"},
		{name: "upper", expr: query.Invoke(e("Title"), "ToUpper"), want: "upper(e.title)"},

		// arrays, ranges and networks
		{name: "array contains", expr: query.Invoke(e("Tags"), "Contains", query.C("a")), want: "'a' = ANY (e.tags)"},
		{name: "array length", expr: e("Scores", "Length"), want: "cardinality(e.scores)"},
		{name: "range lower bound", expr: e("Seats", "LowerBound"), want: "lower(e.seats)"},
		{name: "range is empty", expr: e("Seats", "IsEmpty"), want: "isempty(e.seats)"},
		{name: "network contains host", expr: query.Invoke(e("Network"), "Contains", e("Host")), want: "e.network >> e.host"},

		// math
		{name: "round float to digits", expr: query.Static("Round", e("Rating"), query.C(2)), want: "round(e.rating::numeric, 2)::double precision"},
		{name: "greatest", expr: query.Static("Max", e("Rating"), query.C(1.5)), want: "GREATEST(e.rating, 1.5)"},
	}
	m := test.NewEventsModel()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := mustTranslate(t, m, query.From("Event").Select(query.Fn("e", tt.expr)))
			assert.Equal(t, "SELECT "+tt.want+" AS \"Value\"\nFROM events AS e", st.SQL)
		})
	}
}

func TestMethodTranslatorsComeFirst(t *testing.T) {
	soundex := MethodTranslatorFunc(func(method string, target *SQLValue, args []*SQLValue) (*SQLValue, error) {
		if method != "Soundex" || target == nil {
			return nil, nil
		}
		return &SQLValue{Expr: sqlast.Call("soundex", target.Expr), Mapping: target.Mapping}, nil
	})
	m := test.NewEventsModel()
	q := query.From("Event").Where(query.Fn("e", query.Eq(
		query.Invoke(query.P("e", "Title"), "Soundex"),
		query.C("A123"),
	)))

	_, err := New(m).Translate(q)
	require.ErrorIs(t, err, ErrUntranslatable)

	st := mustTranslate(t, m, q, WithFunctions(soundex))
	assert.Contains(t, st.SQL, "WHERE soundex(e.title) = 'A123'")
}
