package pgtranslate

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/spandigital/pgtranslate/sqlast"
)

// aliasGenerator hands out table aliases unique across a whole statement:
// the first letter of the table, then that letter with a counter (c, c0, c1).
type aliasGenerator struct {
	used map[string]bool
}

func newAliasGenerator() *aliasGenerator {
	return &aliasGenerator{used: map[string]bool{}}
}

func (g *aliasGenerator) next(hint string) string {
	base := "t"
	if r, _ := utf8.DecodeRuneInString(hint); r != utf8.RuneError && unicode.IsLetter(r) {
		base = string(unicode.ToLower(r))
	}
	if !g.used[base] {
		g.used[base] = true
		return base
	}
	for i := 0; ; i++ {
		a := base + strconv.Itoa(i)
		if !g.used[a] {
			g.used[a] = true
			return a
		}
	}
}

// addColumn appends e to sel's projection under a name unique within sel
// and returns the name used.
func addColumn(sel *sqlast.Select, e sqlast.Expr, name string) string {
	if name == "" {
		name = "c"
	}
	taken := map[string]bool{}
	for _, n := range sel.OutputNames() {
		taken[n] = true
	}
	unique := name
	for i := 0; taken[unique]; i++ {
		unique = name + strconv.Itoa(i)
	}
	alias := unique
	if c, ok := e.(sqlast.Column); ok && c.Name == unique {
		alias = ""
	}
	sel.Columns = append(sel.Columns, sqlast.Projection{Expr: e, Alias: alias})
	return unique
}

// outputName is the name a projection exposes, or empty for an unnamed
// expression.
func outputName(p sqlast.Projection) string {
	if p.Alias != "" {
		return p.Alias
	}
	if c, ok := p.Expr.(sqlast.Column); ok {
		return c.Name
	}
	return ""
}
