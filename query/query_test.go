package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	q := From("Animal").
		Where(Fn("a", Eq(P("a", "Name"), C("Kiwi")))).
		OrderBy(Fn("a", P("a", "Species"))).
		ThenByDesc(Fn("a", P("a", "Id"))).
		Skip(C(5)).
		Take(C(10))

	page, ok := q.Root().(Page)
	require.True(t, ok)
	assert.Equal(t, C(5), page.Skip)
	assert.Equal(t, C(10), page.Take)

	order, ok := page.Input.(OrderBy)
	require.True(t, ok)
	require.Len(t, order.Keys, 2)
	assert.False(t, order.Keys[0].Desc)
	assert.True(t, order.Keys[1].Desc)

	filter, ok := order.Input.(Filter)
	require.True(t, ok)
	assert.Equal(t, Source{Entity: "Animal"}, filter.Input)
	assert.Equal(t, Binary{Op: OpEq, Left: Member{Target: Var{Name: "a"}, Name: "Name"}, Right: Const{Value: "Kiwi"}}, filter.Pred.Body)
}

func TestBuilderTakeThenSkip(t *testing.T) {
	q := From("Animal").Take(C(10)).Skip(C(5))

	outer, ok := q.Root().(Page)
	require.True(t, ok)
	assert.Nil(t, outer.Take)
	inner, ok := outer.Input.(Page)
	require.True(t, ok)
	assert.Equal(t, C(10), inner.Take)
	assert.Nil(t, inner.Skip)
}

func TestOf(t *testing.T) {
	q := From("Animal")
	assert.Equal(t, q, Of(q))
	assert.Equal(t, Source{Entity: "Kiwi"}, Of(Source{Entity: "Kiwi"}).Root())
}

func TestFingerprint(t *testing.T) {
	byName := func(name Expr) Node {
		return From("Animal").Where(Fn("a", Eq(P("a", "Name"), name)))
	}
	ptr := func(s string) *string { return &s }

	tests := []struct {
		name      string
		a, b      Node
		wantEqual bool
	}{
		{name: "same constant", a: byName(C("Kiwi")), b: byName(C("Kiwi")), wantEqual: true},
		{name: "different constants", a: byName(C("Kiwi")), b: byName(C("Eagle")), wantEqual: false},
		{name: "constant types", a: byName(C(int32(1))), b: byName(C(int64(1))), wantEqual: false},
		{name: "pointer constants", a: byName(C(ptr("Kiwi"))), b: byName(C(ptr("Kiwi"))), wantEqual: true},
		{name: "same parameter", a: byName(Arg[string]("name")), b: byName(Arg[string]("name")), wantEqual: true},
		{name: "parameter names", a: byName(Arg[string]("name")), b: byName(Arg[string]("other")), wantEqual: false},
		{name: "parameter types", a: byName(Arg[string]("name")), b: byName(Arg[int32]("name")), wantEqual: false},
		{name: "parameter versus constant", a: byName(Arg[string]("name")), b: byName(C("name")), wantEqual: false},
		{
			name:      "ordering direction",
			a:         From("Animal").OrderBy(Fn("a", P("a", "Id"))),
			b:         From("Animal").OrderByDesc(Fn("a", P("a", "Id"))),
			wantEqual: false,
		},
		{
			name:      "wrapped and bare nodes",
			a:         From("Animal").Distinct(),
			b:         Distinct{Input: Source{Entity: "Animal"}},
			wantEqual: true,
		},
		{
			name:      "subquery mode",
			a:         From("Country").Select(Fn("c", Over(P("c", "Animals")).Any())),
			b:         From("Country").Select(Fn("c", Over(P("c", "Animals")).Count())),
			wantEqual: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, fb := Fingerprint(tt.a), Fingerprint(tt.b)
			if tt.wantEqual {
				assert.Equal(t, fa, fb)
			} else {
				assert.NotEqual(t, fa, fb)
			}
		})
	}
}

func TestFingerprintParameterValuesExcluded(t *testing.T) {
	q := From("Event").Where(Fn("e", Invoke(Arg[string]("during"), "Contains", P("e", "Day"))))
	assert.Equal(t, `Filter(Source("Event"),\e.@during:string.Contains($e.Day))`, Fingerprint(q))
}
