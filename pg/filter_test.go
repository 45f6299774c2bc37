package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		schemas []string
		tables  []string
		want    Filter
	}{
		{
			name:    "plain schema",
			schemas: []string{"public"},
			want:    Filter{Schemas: []string{"public"}},
		},
		{
			name:    "quoted schema keeps case",
			schemas: []string{`"MySchema"`},
			want:    Filter{Schemas: []string{"MySchema"}},
		},
		{
			name:   "unqualified table",
			tables: []string{"orders"},
			want:   Filter{Tables: []TableName{{Name: "orders"}}},
		},
		{
			name:   "qualified table",
			tables: []string{"db2.Table"},
			want:   Filter{Tables: []TableName{{Schema: "db2", Name: "Table"}}},
		},
		{
			name:   "quoted parts with dots",
			tables: []string{`"db.2"."Tab.le"`},
			want:   Filter{Tables: []TableName{{Schema: "db.2", Name: "Tab.le"}}},
		},
		{
			name:   "escaped quote",
			tables: []string{`"a""b"`},
			want:   Filter{Tables: []TableName{{Name: `a"b`}}},
		},
		{
			name:   "empty quoted name",
			tables: []string{`s.""`},
			want:   Filter{Tables: []TableName{{Schema: "s", Name: ""}}},
		},
		{
			name:   "empty selector is ignored",
			tables: []string{""},
			want:   Filter{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilter(tt.schemas, tt.tables))
		})
	}
}

func TestFilterIncludes(t *testing.T) {
	f := ParseFilter([]string{"sales"}, []string{"public.customers", "audit_log"})
	tests := []struct {
		schema, table string
		want          bool
	}{
		{"sales", "anything", true},
		{"public", "customers", true},
		{"other", "customers", false},
		{"public", "orders", false},
		{"archive", "audit_log", true},
	}
	for _, tt := range tests {
		t.Run(tt.schema+"."+tt.table, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Includes(tt.schema, tt.table))
		})
	}
	assert.True(t, Filter{}.Includes("any", "table"))
}

func TestTableNameString(t *testing.T) {
	assert.Equal(t, "orders", TableName{Name: "orders"}.String())
	assert.Equal(t, "sales.orders", TableName{Schema: "sales", Name: "orders"}.String())
}
