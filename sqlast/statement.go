package sqlast

import (
	"strings"
)

// Statement is a complete query: a SELECT or a set operation over SELECTs.
type Statement interface {
	SQL() string
	statementNode()
}

// Projection is one SELECT list entry.
type Projection struct {
	Expr  Expr
	Alias string
}

func (p Projection) SQL() string {
	if p.Alias == "" {
		return p.Expr.SQL()
	}
	if c, ok := p.Expr.(Column); ok && c.Name == p.Alias {
		return c.SQL()
	}
	return p.Expr.SQL() + " AS " + QuoteIdent(p.Alias)
}

// NullsOrder pins NULL placement in ORDER BY.
type NullsOrder int

const (
	// NullsDefault resolves to NULLS FIRST ascending and NULLS LAST descending,
	// the order in which a null compares below every value.
	NullsDefault NullsOrder = iota
	NullsFirst
	NullsLast
)

// Ordering is one ORDER BY key. The NULLS clause is always rendered.
type Ordering struct {
	Expr  Expr
	Desc  bool
	Nulls NullsOrder
}

func (o Ordering) SQL() string {
	s := o.Expr.SQL()
	if o.Desc {
		s += " DESC"
	}
	nulls := o.Nulls
	if nulls == NullsDefault {
		nulls = NullsFirst
		if o.Desc {
			nulls = NullsLast
		}
	}
	if nulls == NullsFirst {
		return s + " NULLS FIRST"
	}
	return s + " NULLS LAST"
}

// Select is a single SELECT statement.
type Select struct {
	Distinct bool
	Columns  []Projection
	From     TableExpr
	Joins    []Join
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []Ordering
	Limit    Expr
	Offset   Expr
}

func (*Select) statementNode() {}

func (s *Select) SQL() string {
	lines := make([]string, 0, 8)

	head := "SELECT "
	if s.Distinct {
		head += "DISTINCT "
	}
	if len(s.Columns) == 0 {
		head += "1"
	} else {
		cols := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = c.SQL()
		}
		head += strings.Join(cols, ", ")
	}
	lines = append(lines, head)

	if s.From != nil {
		lines = append(lines, "FROM "+s.From.TableSQL())
	}
	for _, j := range s.Joins {
		lines = append(lines, j.SQL())
	}
	if s.Where != nil {
		lines = append(lines, "WHERE "+s.Where.SQL())
	}
	if len(s.GroupBy) > 0 {
		lines = append(lines, "GROUP BY "+joinExprs(s.GroupBy, ", "))
	}
	if s.Having != nil {
		lines = append(lines, "HAVING "+s.Having.SQL())
	}
	if len(s.OrderBy) > 0 {
		keys := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			keys[i] = o.SQL()
		}
		lines = append(lines, "ORDER BY "+strings.Join(keys, ", "))
	}
	switch {
	case s.Limit != nil && s.Offset != nil:
		lines = append(lines, "LIMIT "+s.Limit.SQL()+" OFFSET "+s.Offset.SQL())
	case s.Limit != nil:
		lines = append(lines, "LIMIT "+s.Limit.SQL())
	case s.Offset != nil:
		lines = append(lines, "OFFSET "+s.Offset.SQL())
	}
	return strings.Join(lines, "\n")
}

// TableAliases lists the aliases introduced directly in this SELECT's scope.
func (s *Select) TableAliases() []string {
	var out []string
	if s.From != nil && s.From.TableAlias() != "" {
		out = append(out, s.From.TableAlias())
	}
	for _, j := range s.Joins {
		if a := j.Source.TableAlias(); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// OutputNames lists the names the SELECT list exposes to an enclosing query.
func (s *Select) OutputNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		switch {
		case c.Alias != "":
			out[i] = c.Alias
		default:
			if col, ok := c.Expr.(Column); ok {
				out[i] = col.Name
			}
		}
	}
	return out
}

// SetOpKind is the set operator joining two statements.
type SetOpKind int

const (
	UnionAll SetOpKind = iota
	Union
	Intersect
	Except
)

func (k SetOpKind) String() string {
	switch k {
	case Union:
		return "UNION"
	case Intersect:
		return "INTERSECT"
	case Except:
		return "EXCEPT"
	default:
		return "UNION ALL"
	}
}

// SetOp combines two statements. Column lists are matched by position.
type SetOp struct {
	Kind  SetOpKind
	Left  Statement
	Right Statement
}

func (*SetOp) statementNode() {}

func (o *SetOp) SQL() string {
	left := o.Left.SQL()
	if l, ok := o.Left.(*SetOp); ok && l.Kind != o.Kind {
		left = "(\n" + indent(left) + "\n)"
	}
	right := o.Right.SQL()
	if _, ok := o.Right.(*SetOp); ok {
		right = "(\n" + indent(right) + "\n)"
	}
	return left + "\n" + o.Kind.String() + "\n" + right
}

// Arms flattens a chain of same-kind set operations into its SELECT arms.
func (o *SetOp) Arms() []Statement {
	var out []Statement
	var walk func(s Statement)
	walk = func(s Statement) {
		if so, ok := s.(*SetOp); ok && so.Kind == o.Kind {
			walk(so.Left)
			walk(so.Right)
			return
		}
		out = append(out, s)
	}
	walk(o)
	return out
}
