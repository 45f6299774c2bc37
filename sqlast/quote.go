package sqlast

import (
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// plainIdentifier matches identifiers the server folds to themselves.
var plainIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reserved keywords that cannot appear unquoted as column or table names.
var reserved = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		all analyse analyze and any array as asc asymmetric authorization binary both
		case cast check collate collation column concurrently constraint create cross
		current_catalog current_date current_role current_schema current_time
		current_timestamp current_user default deferrable desc distinct do else end
		except false fetch for foreign freeze from full grant group having ilike in
		initially inner intersect into is isnull join lateral leading left like limit
		localtime localtimestamp natural not notnull null offset on only or order outer
		overlaps placing primary references returning right select session_user similar
		some symmetric table tablesample then to trailing true union unique user using
		variadic verbose when where window with`) {
		reserved[kw] = struct{}{}
	}
}

// NeedsQuoting reports whether name must be double-quoted to survive case folding.
func NeedsQuoting(name string) bool {
	if !plainIdentifier.MatchString(name) {
		return true
	}
	_, ok := reserved[name]
	return ok
}

// QuoteIdent renders name as an identifier, quoting only when required.
func QuoteIdent(name string) string {
	if NeedsQuoting(name) {
		return pq.QuoteIdentifier(name)
	}
	return name
}

// QuoteQualified renders a possibly schema-qualified object name.
func QuoteQualified(schema, name string) string {
	if schema == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// QuoteString renders s as a string literal. Backslashes switch to the
// escape-string form so the literal is independent of
// standard_conforming_strings.
func QuoteString(s string) string {
	return strings.TrimPrefix(pq.QuoteLiteral(s), " ")
}

// TextArray renders elems as a text[] literal body, e.g. '{Nested,NestedInt}'.
func TextArray(elems []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(arrayElement(e))
	}
	b.WriteByte('}')
	return QuoteString(b.String())
}

func arrayElement(e string) string {
	if e == "" || strings.EqualFold(e, "null") || strings.ContainsAny(e, "{},\"\\ \t\n") {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
		return `"` + r.Replace(e) + `"`
	}
	return e
}
