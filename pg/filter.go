package pg

import "strings"

// TableName is a possibly schema-qualified table selector. An empty Schema
// matches the table in any schema.
type TableName struct {
	Schema string
	Name   string
}

func (t TableName) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Filter selects what a catalog read returns. The zero Filter selects every
// user table.
type Filter struct {
	Schemas []string
	Tables  []TableName
}

// ParseFilter parses schema and table selectors as written on a command
// line. Quoted parts keep their case and may contain dots; a doubled quote
// inside quotes is a literal quote. Unquoted parts are taken verbatim.
//
//	public            -> schema public
//	"MySchema"        -> schema MySchema
//	db2.Table         -> table Table in schema db2
//	"db.2"."Tab.le"   -> table Tab.le in schema db.2
func ParseFilter(schemas, tables []string) Filter {
	var f Filter
	for _, s := range schemas {
		parts := splitQualified(s)
		f.Schemas = append(f.Schemas, strings.Join(parts, "."))
	}
	for _, t := range tables {
		parts := splitQualified(t)
		switch len(parts) {
		case 0:
			continue
		case 1:
			f.Tables = append(f.Tables, TableName{Name: parts[0]})
		default:
			f.Tables = append(f.Tables, TableName{
				Schema: strings.Join(parts[:len(parts)-1], "."),
				Name:   parts[len(parts)-1],
			})
		}
	}
	return f
}

// splitQualified splits on dots outside double quotes and unquotes parts.
func splitQualified(s string) []string {
	var (
		parts  []string
		cur    strings.Builder
		quoted bool
		seen   bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && quoted && i+1 < len(s) && s[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			quoted = !quoted
			seen = true
		case c == '.' && !quoted:
			parts = append(parts, cur.String())
			cur.Reset()
			seen = false
		default:
			cur.WriteByte(c)
			seen = true
		}
	}
	if seen || cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// IsEmpty reports whether f selects everything.
func (f Filter) IsEmpty() bool { return len(f.Schemas) == 0 && len(f.Tables) == 0 }

// Includes reports whether a table is selected: by its schema, or by name.
func (f Filter) Includes(schema, table string) bool {
	if f.IsEmpty() {
		return true
	}
	for _, s := range f.Schemas {
		if s == schema {
			return true
		}
	}
	for _, t := range f.Tables {
		if t.Name == table && (t.Schema == "" || t.Schema == schema) {
			return true
		}
	}
	return false
}
