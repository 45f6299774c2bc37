package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprPrecedence(t *testing.T) {
	a := Col("a", "x")
	b := Col("a", "y")
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{
			name: "or inside and",
			expr: And(Bin(a, "=", Literal("1")), Or(Bin(b, "=", Literal("2")), Bin(b, "=", Literal("3")))),
			want: "a.x = 1 AND (a.y = 2 OR a.y = 3)",
		},
		{
			name: "and chain stays flat",
			expr: And(Bin(a, "=", Literal("1")), Bin(b, "=", Literal("2")), IsNull{Expr: a, Not: true}),
			want: "a.x = 1 AND a.y = 2 AND a.x IS NOT NULL",
		},
		{
			name: "subtraction right operand",
			expr: Bin(a, "-", Bin(b, "-", Literal("1"))),
			want: "a.x - (a.y - 1)",
		},
		{
			name: "addition under multiplication",
			expr: Bin(Bin(a, "+", b), "*", Literal("2")),
			want: "(a.x + a.y) * 2",
		},
		{
			name: "cast operator on binary",
			expr: Cast{Expr: Bin(a, "+", b), Type: "bigint"},
			want: "(a.x + a.y)::bigint",
		},
		{
			name: "cast function",
			expr: Paren{Expr: Cast{Expr: Bin(Col("j", "Doc"), "#>>", Literal("'{Nested,NestedInt}'")), Type: "integer", Function: true}},
			want: "(CAST(j.\"Doc\" #>> '{Nested,NestedInt}' AS integer))",
		},
		{
			name: "json operator under comparison",
			expr: Bin(Bin(Col("j", "doc"), "->>", Literal("'name'")), "=", Literal("'x'")),
			want: "j.doc ->> 'name' = 'x'",
		},
		{
			name: "not",
			expr: Not{Expr: Col("a", "IsFlightless")},
			want: `NOT (a."IsFlightless")`,
		},
		{
			name: "case",
			expr: Case{
				Whens: []When{{Cond: Bin(a, "=", Literal("0")), Result: Literal("7")}},
				Else:  a,
			},
			want: "CASE WHEN a.x = 0 THEN 7 ELSE a.x END",
		},
		{
			name: "in list",
			expr: In{Expr: Col("a", "Discriminator"), List: []Expr{Literal("'Eagle'"), Literal("'Kiwi'")}},
			want: `a."Discriminator" IN ('Eagle', 'Kiwi')`,
		},
		{
			name: "any array",
			expr: AnyArray{Left: Param{Name: "p"}, Op: "=", Array: Col("a", "tags")},
			want: "@p = ANY (a.tags)",
		},
		{
			name: "named argument",
			expr: Bin(a, "+", Call("make_interval", NamedArg{Name: "days", Expr: Literal("3")})),
			want: "a.x + make_interval(days => 3)",
		},
		{
			name: "negated column",
			expr: Neg{Expr: Bin(a, "+", b)},
			want: "-(a.x + a.y)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.SQL())
		})
	}
}

func TestSelectSQL(t *testing.T) {
	inner := &Select{
		Columns: []Projection{{Expr: Col("o", "OrderDate"), Alias: "OrderDate"}},
		From:    Table{Name: "Orders", Alias: "o"},
		Where:   Bin(Col("c", "Id"), "=", Col("o", "CustomerId")),
		OrderBy: []Ordering{{Expr: Col("o", "OrderDate")}},
		Limit:   Literal("1"),
	}
	outer := &Select{
		Columns: []Projection{
			{Expr: Col("c", "Name"), Alias: "Name"},
			{Expr: Col("o0", "OrderDate"), Alias: "FirstOrder"},
		},
		From: Table{Name: "Customers", Alias: "c"},
		Joins: []Join{
			{Kind: LeftJoin, Lateral: true, Source: Derived{Query: inner, Alias: "o0"}},
		},
	}
	want := `SELECT c."Name", o0."OrderDate" AS "FirstOrder"
FROM "Customers" AS c
LEFT JOIN LATERAL (
    SELECT o."OrderDate"
    FROM "Orders" AS o
    WHERE c."Id" = o."CustomerId"
    ORDER BY o."OrderDate" NULLS FIRST
    LIMIT 1
) AS o0 ON TRUE`
	assert.Equal(t, want, outer.SQL())
	assert.Equal(t, []string{"c", "o0"}, outer.TableAliases())
	assert.Equal(t, []string{"Name", "FirstOrder"}, outer.OutputNames())
}

func TestOrderingPinsNulls(t *testing.T) {
	tests := []struct {
		name string
		o    Ordering
		want string
	}{
		{name: "ascending default", o: Ordering{Expr: Col("a", "n")}, want: "a.n NULLS FIRST"},
		{name: "descending default", o: Ordering{Expr: Col("a", "n"), Desc: true}, want: "a.n DESC NULLS LAST"},
		{name: "ascending nulls last", o: Ordering{Expr: Col("a", "n"), Nulls: NullsLast}, want: "a.n NULLS LAST"},
		{name: "descending nulls first", o: Ordering{Expr: Col("a", "n"), Desc: true, Nulls: NullsFirst}, want: "a.n DESC NULLS FIRST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.o.SQL())
		})
	}
}

func TestSetOpSQL(t *testing.T) {
	arm := func(table, alias string) *Select {
		return &Select{
			Columns: []Projection{{Expr: Col(alias, "id"), Alias: "id"}, {Expr: Literal("'" + table + "'"), Alias: "Discriminator"}},
			From:    Table{Name: table, Alias: alias},
		}
	}
	union := &SetOp{Kind: UnionAll, Left: &SetOp{Kind: UnionAll, Left: arm("coke", "c"), Right: arm("lilt", "l")}, Right: arm("tea", "t")}
	want := `SELECT c.id, 'coke' AS "Discriminator"
FROM coke AS c
UNION ALL
SELECT l.id, 'lilt' AS "Discriminator"
FROM lilt AS l
UNION ALL
SELECT t.id, 'tea' AS "Discriminator"
FROM tea AS t`
	assert.Equal(t, want, union.SQL())
	require.Len(t, union.Arms(), 3)

	mixed := &SetOp{Kind: Except, Left: &SetOp{Kind: Union, Left: arm("coke", "c"), Right: arm("lilt", "l")}, Right: arm("tea", "t")}
	assert.Contains(t, mixed.SQL(), "(\n    SELECT c.id")
}

func TestTableExprs(t *testing.T) {
	rf := RowsFrom{
		Func:       Call("jsonb_to_recordset", Col("j", "OwnedCollection")),
		Columns:    []ColumnDef{{Name: "Id", Type: "integer"}, {Name: "name", Type: "text"}},
		Ordinality: true,
		Alias:      "o",
	}
	assert.Equal(t, `ROWS FROM (jsonb_to_recordset(j."OwnedCollection") AS ("Id" integer, name text)) WITH ORDINALITY AS o`, rf.TableSQL())

	ft := FuncTable{Func: Call("unnest", Col("a", "tags")), Alias: "t", ColumnAliases: []string{"value"}}
	assert.Equal(t, "unnest(a.tags) AS t(value)", ft.TableSQL())

	j := Join{Kind: CrossJoin, Lateral: true, Source: rf}
	assert.Equal(t, "CROSS JOIN LATERAL "+rf.TableSQL(), j.SQL())

	ex := Exists{Query: &Select{From: ft, Where: Bin(Col("t", "value"), "=", Literal("'x'"))}}
	assert.Equal(t, "EXISTS (\n    SELECT 1\n    FROM unnest(a.tags) AS t(value)\n    WHERE t.value = 'x'\n)", ex.SQL())
}
