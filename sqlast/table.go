package sqlast

import (
	"strings"
)

// TableExpr is anything that can appear in FROM or JOIN.
type TableExpr interface {
	TableSQL() string
	TableAlias() string
}

// Table is a physical table with an alias.
type Table struct {
	Schema string
	Name   string
	Alias  string
}

func (t Table) TableSQL() string {
	s := QuoteQualified(t.Schema, t.Name)
	if t.Alias != "" {
		s += " AS " + QuoteIdent(t.Alias)
	}
	return s
}

func (t Table) TableAlias() string { return t.Alias }

// Derived is a parenthesised subquery in FROM or JOIN.
type Derived struct {
	Query Statement
	Alias string
}

func (d Derived) TableSQL() string {
	return "(\n" + indent(d.Query.SQL()) + "\n) AS " + QuoteIdent(d.Alias)
}

func (d Derived) TableAlias() string { return d.Alias }

// ColumnDef is one entry of a column definition list.
type ColumnDef struct {
	Name string
	Type string
}

// RowsFrom renders ROWS FROM (fn(...) AS (col type, ...)) [WITH ORDINALITY] AS alias.
// It is the only form that allows a column definition list together with
// WITH ORDINALITY for record-returning functions such as jsonb_to_recordset.
type RowsFrom struct {
	Func       Func
	Columns    []ColumnDef
	Ordinality bool
	Alias      string
}

func (r RowsFrom) TableSQL() string {
	defs := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		defs[i] = QuoteIdent(c.Name) + " " + c.Type
	}
	var b strings.Builder
	b.WriteString("ROWS FROM (")
	b.WriteString(r.Func.SQL())
	b.WriteString(" AS (")
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString("))")
	if r.Ordinality {
		b.WriteString(" WITH ORDINALITY")
	}
	b.WriteString(" AS ")
	b.WriteString(QuoteIdent(r.Alias))
	return b.String()
}

func (r RowsFrom) TableAlias() string { return r.Alias }

// FuncTable is a set-returning function in FROM, e.g. unnest(x) WITH ORDINALITY AS u(value, ordinality).
type FuncTable struct {
	Func          Func
	Ordinality    bool
	Alias         string
	ColumnAliases []string
}

func (f FuncTable) TableSQL() string {
	s := f.Func.SQL()
	if f.Ordinality {
		s += " WITH ORDINALITY"
	}
	s += " AS " + QuoteIdent(f.Alias)
	if len(f.ColumnAliases) > 0 {
		names := make([]string, len(f.ColumnAliases))
		for i, n := range f.ColumnAliases {
			names[i] = QuoteIdent(n)
		}
		s += "(" + strings.Join(names, ", ") + ")"
	}
	return s
}

func (f FuncTable) TableAlias() string { return f.Alias }

// JoinKind selects the join keyword.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	CrossJoin
)

func (k JoinKind) String() string {
	switch k {
	case LeftJoin:
		return "LEFT JOIN"
	case CrossJoin:
		return "CROSS JOIN"
	default:
		return "INNER JOIN"
	}
}

// Join is one JOIN clause. Lateral joins without a predicate join ON TRUE
// unless they are cross joins.
type Join struct {
	Kind    JoinKind
	Lateral bool
	Source  TableExpr
	On      Expr
}

func (j Join) SQL() string {
	s := j.Kind.String()
	if j.Lateral {
		s += " LATERAL"
	}
	s += " " + j.Source.TableSQL()
	if j.Kind == CrossJoin {
		return s
	}
	on := j.On
	if on == nil {
		on = True
	}
	return s + " ON " + on.SQL()
}
