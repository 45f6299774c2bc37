package sqlast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		name  string
		ident string
		want  string
	}{
		{name: "lowercase", ident: "animals", want: "animals"},
		{name: "underscore and digits", ident: "sugar_grams2", want: "sugar_grams2"},
		{name: "dollar after first char", ident: "a$b", want: "a$b"},
		{name: "leading underscore", ident: "_id", want: "_id"},
		{name: "uppercase", ident: "IsFlightless", want: `"IsFlightless"`},
		{name: "leading digit", ident: "1st", want: `"1st"`},
		{name: "space", ident: "my table", want: `"my table"`},
		{name: "embedded quote", ident: `a"b`, want: `"a""b"`},
		{name: "reserved word", ident: "order", want: `"order"`},
		{name: "reserved user", ident: "user", want: `"user"`},
		{name: "dot", ident: "db.2", want: `"db.2"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdent(tt.ident))
		})
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, "public.animals", QuoteQualified("public", "animals"))
	assert.Equal(t, `"Zoo"."Animals"`, QuoteQualified("Zoo", "Animals"))
	assert.Equal(t, `"Animals"`, QuoteQualified("", "Animals"))
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Kiwi", want: "'Kiwi'"},
		{in: "it's", want: "'it''s'"},
		{in: `a\b`, want: `E'a\\b'`},
		{in: "", want: "''"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteString(tt.in))
		})
	}
}

func TestTextArray(t *testing.T) {
	tests := []struct {
		name  string
		elems []string
		want  string
	}{
		{name: "simple path", elems: []string{"Nested", "NestedInt"}, want: "'{Nested,NestedInt}'"},
		{name: "index", elems: []string{"Items", "0"}, want: "'{Items,0}'"},
		{name: "comma needs quoting", elems: []string{"a,b"}, want: `'{"a,b"}'`},
		{name: "space needs quoting", elems: []string{"first name"}, want: `'{"first name"}'`},
		{name: "null word", elems: []string{"NULL"}, want: `'{"NULL"}'`},
		{name: "single quote doubled", elems: []string{"o'k"}, want: `'{o''k}'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextArray(tt.elems))
		})
	}
}
