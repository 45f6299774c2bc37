// Package sqlast is the PostgreSQL statement tree produced by query lowering.
// Nodes render themselves to SQL text; rendering is deterministic so equal
// trees always produce byte-identical statements.
package sqlast

import (
	"strings"
)

// Expr is implemented by every scalar SQL expression.
type Expr interface {
	SQL() string
}

// Operator precedence levels, lowest binds loosest.
const (
	precOr = iota + 1
	precAnd
	precNot
	precIs
	precCompare
	precLike
	precOther
	precAdd
	precMul
	precExp
	precUnary
	precAtom
)

type precedencer interface {
	precedence() int
}

func precedenceOf(e Expr) int {
	if p, ok := e.(precedencer); ok {
		return p.precedence()
	}
	return precAtom
}

// wrap parenthesises e when it binds looser than the surrounding operator.
func wrap(e Expr, min int) string {
	if precedenceOf(e) < min {
		return "(" + e.SQL() + ")"
	}
	return e.SQL()
}

// Column is an alias-qualified column reference.
type Column struct {
	Table string
	Name  string
}

// Col builds a column reference.
func Col(table, name string) Column {
	return Column{Table: table, Name: name}
}

func (c Column) SQL() string {
	if c.Table == "" {
		return QuoteIdent(c.Name)
	}
	return QuoteIdent(c.Table) + "." + QuoteIdent(c.Name)
}

// Literal is pre-rendered literal text such as 42 or DATE '2020-01-01'.
type Literal string

func (l Literal) SQL() string { return string(l) }

// Common literals.
const (
	Null  = Literal("NULL")
	True  = Literal("TRUE")
	False = Literal("FALSE")
)

// Param is a named placeholder bound at execution time.
type Param struct {
	Name string
}

func (p Param) SQL() string { return "@" + p.Name }

// Raw is SQL text inserted verbatim.
type Raw string

func (r Raw) SQL() string { return string(r) }

// Star renders * or alias.*.
type Star struct {
	Table string
}

func (s Star) SQL() string {
	if s.Table == "" {
		return "*"
	}
	return QuoteIdent(s.Table) + ".*"
}

var opPrecedence = map[string]int{
	"OR": precOr, "AND": precAnd,
	"=": precCompare, "<>": precCompare, "<": precCompare, "<=": precCompare, ">": precCompare, ">=": precCompare,
	"LIKE": precLike, "ILIKE": precLike, "NOT LIKE": precLike, "NOT ILIKE": precLike, "SIMILAR TO": precLike,
	"IS DISTINCT FROM": precIs, "IS NOT DISTINCT FROM": precIs,
	"+": precAdd, "-": precAdd,
	"*": precMul, "/": precMul, "%": precMul,
	"^": precExp,
}

var associative = map[string]bool{"OR": true, "AND": true, "+": true, "*": true, "||": true}

// Binary is an infix operator application. Operators missing from the
// precedence table (->>, @>, ||, <->, ...) share the "any other" level.
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Bin builds a binary expression.
func Bin(left Expr, op string, right Expr) Binary {
	return Binary{Op: op, Left: left, Right: right}
}

func (b Binary) precedence() int {
	if p, ok := opPrecedence[b.Op]; ok {
		return p
	}
	return precOther
}

func (b Binary) SQL() string {
	p := b.precedence()
	rmin := p + 1
	if associative[b.Op] {
		rmin = p
	}
	return wrap(b.Left, p) + " " + b.Op + " " + wrap(b.Right, rmin)
}

// And folds exprs with AND, skipping nils.
func And(exprs ...Expr) Expr {
	return fold("AND", exprs)
}

// Or folds exprs with OR, skipping nils.
func Or(exprs ...Expr) Expr {
	return fold("OR", exprs)
}

func fold(op string, exprs []Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
			continue
		}
		out = Binary{Op: op, Left: out, Right: e}
	}
	return out
}

// Not negates a boolean expression.
type Not struct {
	Expr Expr
}

func (n Not) precedence() int { return precNot }

func (n Not) SQL() string { return "NOT (" + n.Expr.SQL() + ")" }

// Neg is unary minus.
type Neg struct {
	Expr Expr
}

func (n Neg) precedence() int { return precUnary }

func (n Neg) SQL() string { return "-" + wrap(n.Expr, precUnary) }

// IsNull renders IS [NOT] NULL.
type IsNull struct {
	Expr Expr
	Not  bool
}

func (i IsNull) precedence() int { return precIs }

func (i IsNull) SQL() string {
	if i.Not {
		return wrap(i.Expr, precIs+1) + " IS NOT NULL"
	}
	return wrap(i.Expr, precIs+1) + " IS NULL"
}

// Func is a function call.
type Func struct {
	Name     string
	Args     []Expr
	Distinct bool
}

// Call builds a function call.
func Call(name string, args ...Expr) Func {
	return Func{Name: name, Args: args}
}

func (f Func) SQL() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('(')
	if f.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(joinExprs(f.Args, ", "))
	b.WriteByte(')')
	return b.String()
}

// NamedArg is a named function argument, name => value, as make_interval takes.
type NamedArg struct {
	Name string
	Expr Expr
}

func (n NamedArg) SQL() string { return n.Name + " => " + n.Expr.SQL() }

// Cast converts Expr to Type, either as CAST(x AS t) or x::t.
type Cast struct {
	Expr     Expr
	Type     string
	Function bool
}

func (c Cast) precedence() int {
	if c.Function {
		return precAtom
	}
	return precAtom - 1
}

func (c Cast) SQL() string {
	if c.Function {
		return "CAST(" + c.Expr.SQL() + " AS " + c.Type + ")"
	}
	return wrap(c.Expr, precAtom) + "::" + c.Type
}

// Paren forces parentheses around Expr.
type Paren struct {
	Expr Expr
}

func (p Paren) SQL() string { return "(" + p.Expr.SQL() + ")" }

// When is one branch of a CASE.
type When struct {
	Cond   Expr
	Result Expr
}

// Case renders a searched or simple CASE expression.
type Case struct {
	Operand Expr
	Whens   []When
	Else    Expr
}

func (c Case) SQL() string {
	var b strings.Builder
	b.WriteString("CASE")
	if c.Operand != nil {
		b.WriteString(" " + c.Operand.SQL())
	}
	for _, w := range c.Whens {
		b.WriteString(" WHEN " + w.Cond.SQL() + " THEN " + w.Result.SQL())
	}
	if c.Else != nil {
		b.WriteString(" ELSE " + c.Else.SQL())
	}
	b.WriteString(" END")
	return b.String()
}

// In renders x [NOT] IN (a, b, ...).
type In struct {
	Expr Expr
	List []Expr
	Not  bool
}

func (i In) precedence() int { return precLike }

func (i In) SQL() string {
	kw := " IN ("
	if i.Not {
		kw = " NOT IN ("
	}
	return wrap(i.Expr, precLike+1) + kw + joinExprs(i.List, ", ") + ")"
}

// AnyArray renders x op ANY (array).
type AnyArray struct {
	Left  Expr
	Op    string
	Array Expr
	All   bool
}

func (a AnyArray) precedence() int { return precCompare }

func (a AnyArray) SQL() string {
	kw := " ANY ("
	if a.All {
		kw = " ALL ("
	}
	return wrap(a.Left, precCompare+1) + " " + a.Op + kw + a.Array.SQL() + ")"
}

// ArrayCtor renders ARRAY[...].
type ArrayCtor struct {
	Elems []Expr
}

func (a ArrayCtor) SQL() string { return "ARRAY[" + joinExprs(a.Elems, ",") + "]" }

// Index renders array subscripting, x[i].
type Index struct {
	Expr  Expr
	Index Expr
}

func (i Index) SQL() string { return "(" + i.Expr.SQL() + ")[" + i.Index.SQL() + "]" }

// Exists renders [NOT] EXISTS (subquery).
type Exists struct {
	Query Statement
	Not   bool
}

func (e Exists) SQL() string {
	kw := "EXISTS ("
	if e.Not {
		kw = "NOT EXISTS ("
	}
	return kw + "\n" + indent(e.Query.SQL()) + "\n)"
}

// Subquery is a scalar subquery.
type Subquery struct {
	Query Statement
}

func (s Subquery) SQL() string { return "(\n" + indent(s.Query.SQL()) + "\n)" }

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.SQL()
	}
	return strings.Join(parts, sep)
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "    " + l
		}
	}
	return strings.Join(lines, "\n")
}
