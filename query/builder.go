package query

import (
	"reflect"
)

// Query wraps a Node with fluent operators. It is itself a Node.
type Query struct {
	root Node
}

func (Query) node() {}

// Of wraps an existing node.
func Of(n Node) Query {
	if q, ok := n.(Query); ok {
		return q
	}
	return Query{root: n}
}

// Root is the wrapped node.
func (q Query) Root() Node { return q.root }

// From starts a query over an entity set.
func From(entity string) Query { return Query{root: Source{Entity: entity}} }

// Over starts a query over a collection-valued expression.
func Over(collection Expr) Query { return Query{root: Source{Of: collection}} }

func (q Query) Where(pred *Lambda) Query {
	return Query{root: Filter{Input: q.root, Pred: pred}}
}

func (q Query) Select(selector *Lambda) Query {
	return Query{root: Project{Input: q.root, Selector: selector}}
}

func (q Query) OfType(entity string) Query {
	return Query{root: OfType{Input: q.root, Entity: entity}}
}

func (q Query) OrderBy(key *Lambda) Query {
	return Query{root: OrderBy{Input: q.root, Keys: []SortKey{{Key: key}}}}
}

func (q Query) OrderByDesc(key *Lambda) Query {
	return Query{root: OrderBy{Input: q.root, Keys: []SortKey{{Key: key, Desc: true}}}}
}

// ThenBy adds a key to the ordering q ends with.
func (q Query) ThenBy(key *Lambda) Query { return q.thenBy(key, false) }

func (q Query) ThenByDesc(key *Lambda) Query { return q.thenBy(key, true) }

func (q Query) thenBy(key *Lambda, desc bool) Query {
	o, ok := q.root.(OrderBy)
	if !ok {
		return Query{root: OrderBy{Input: q.root, Keys: []SortKey{{Key: key, Desc: desc}}}}
	}
	keys := append(append([]SortKey(nil), o.Keys...), SortKey{Key: key, Desc: desc})
	return Query{root: OrderBy{Input: o.Input, Keys: keys}}
}

// Skip drops the first n elements.
func (q Query) Skip(n Expr) Query {
	return Query{root: Page{Input: q.root, Skip: n}}
}

// Take keeps at most n elements. Take directly after Skip shares its Page.
func (q Query) Take(n Expr) Query {
	if p, ok := q.root.(Page); ok && p.Take == nil {
		p.Take = n
		return Query{root: p}
	}
	return Query{root: Page{Input: q.root, Take: n}}
}

func (q Query) Distinct() Query { return Query{root: Distinct{Input: q.root}} }

func (q Query) GroupBy(key *Lambda) Query {
	return Query{root: GroupBy{Input: q.root, Key: key}}
}

// SelectMany flattens collection; result may be nil.
func (q Query) SelectMany(collection, result *Lambda) Query {
	return Query{root: SelectMany{Input: q.root, Collection: collection, Result: result}}
}

// Join inner-joins other on equal keys; result may be nil.
func (q Query) Join(other Query, leftKey, rightKey, result *Lambda) Query {
	return Query{root: Join{Kind: InnerJoin, Left: q.root, Right: other.root, LeftKey: leftKey, RightKey: rightKey, Result: result}}
}

// LeftJoin keeps left elements without a match; the right element is null.
func (q Query) LeftJoin(other Query, leftKey, rightKey, result *Lambda) Query {
	return Query{root: Join{Kind: LeftJoin, Left: q.root, Right: other.root, LeftKey: leftKey, RightKey: rightKey, Result: result}}
}

func (q Query) Concat(other Query) Query    { return q.setOp(Concat, other) }
func (q Query) Union(other Query) Query     { return q.setOp(Union, other) }
func (q Query) Intersect(other Query) Query { return q.setOp(Intersect, other) }
func (q Query) Except(other Query) Query    { return q.setOp(Except, other) }

func (q Query) setOp(kind SetKind, other Query) Query {
	return Query{root: SetOperation{Kind: kind, Left: q.root, Right: other.root}}
}

// First yields the first element or null.
func (q Query) First() Expr { return Subquery{Query: q.root, Mode: First} }

// Any yields whether q has elements.
func (q Query) Any() Expr { return Subquery{Query: q.root, Mode: Exists} }

// Count yields the number of elements of q.
func (q Query) Count() Expr { return Subquery{Query: q.root, Mode: Count} }

func (q Query) Sum(selector *Lambda) Expr     { return q.aggregate("Sum", selector) }
func (q Query) Min(selector *Lambda) Expr     { return q.aggregate("Min", selector) }
func (q Query) Max(selector *Lambda) Expr     { return q.aggregate("Max", selector) }
func (q Query) Average(selector *Lambda) Expr { return q.aggregate("Average", selector) }

func (q Query) aggregate(fn string, selector *Lambda) Expr {
	return Subquery{Query: q.root, Mode: Aggregate, Aggregate: fn, Selector: selector}
}

// V references a lambda parameter.
func V(name string) Var { return Var{Name: name} }

// P reads a member path starting at variable v: P("a", "Address", "City").
func P(v string, path ...string) Expr {
	return M(Var{Name: v}, path...)
}

// M reads a member path starting at target.
func M(target Expr, path ...string) Expr {
	e := target
	for _, name := range path {
		e = Member{Target: e, Name: name}
	}
	return e
}

// C is a constant of v's dynamic type.
func C(v any) Const { return Const{Value: v} }

// Arg is a parameter of type T.
func Arg[T any](name string) Param { return Param{Name: name, Type: reflect.TypeFor[T]()} }

// Fn is a one-parameter lambda.
func Fn(param string, body Expr) *Lambda { return &Lambda{Params: []string{param}, Body: body} }

// Fn2 is a two-parameter lambda.
func Fn2(a, b string, body Expr) *Lambda { return &Lambda{Params: []string{a, b}, Body: body} }

// Eq and the other operator helpers build Binary nodes.
func Eq(l, r Expr) Expr    { return Binary{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Expr) Expr    { return Binary{Op: OpNe, Left: l, Right: r} }
func Lt(l, r Expr) Expr    { return Binary{Op: OpLt, Left: l, Right: r} }
func Le(l, r Expr) Expr    { return Binary{Op: OpLe, Left: l, Right: r} }
func Gt(l, r Expr) Expr    { return Binary{Op: OpGt, Left: l, Right: r} }
func Ge(l, r Expr) Expr    { return Binary{Op: OpGe, Left: l, Right: r} }
func Plus(l, r Expr) Expr  { return Binary{Op: OpAdd, Left: l, Right: r} }
func Minus(l, r Expr) Expr { return Binary{Op: OpSub, Left: l, Right: r} }
func Times(l, r Expr) Expr { return Binary{Op: OpMul, Left: l, Right: r} }

// IfNull yields l unless it is null, then r.
func IfNull(l, r Expr) Expr { return Binary{Op: OpCoalesce, Left: l, Right: r} }

// And folds exprs with &&.
func And(exprs ...Expr) Expr { return fold(OpAnd, exprs) }

// Or folds exprs with ||.
func Or(exprs ...Expr) Expr { return fold(OpOr, exprs) }

func fold(op BinaryOp, exprs []Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if out == nil {
			out = e
			continue
		}
		out = Binary{Op: op, Left: out, Right: e}
	}
	return out
}

func Not(e Expr) Expr { return Unary{Op: OpNot, Operand: e} }

func Neg(e Expr) Expr { return Unary{Op: OpNegate, Operand: e} }

// Is tests e against entity type and its subtypes.
func Is(e Expr, entity string) Expr { return TypeIs{Operand: e, Entity: entity} }

// IsExactly tests e against exactly entity.
func IsExactly(e Expr, entity string) Expr { return TypeIs{Operand: e, Entity: entity, Exact: true} }

// If is a conditional expression.
func If(test, then, els Expr) Expr { return Conditional{Test: test, Then: then, Else: els} }

// Invoke calls method on target.
func Invoke(target Expr, method string, args ...Expr) Expr {
	return Call{Method: method, Target: target, Args: args}
}

// Static calls a static function.
func Static(fn string, args ...Expr) Expr { return Call{Method: fn, Args: args} }

// InList tests v against a list of values.
func InList(v Expr, list ...Expr) Expr { return In{Value: v, List: list} }

// InArray tests v against an array-valued expression.
func InArray(v, array Expr) Expr { return In{Value: v, Collection: array} }

// As casts e to the store type of T.
func As[T any](e Expr) Expr { return Cast{Operand: e, Type: reflect.TypeFor[T]()} }

// Record builds an anonymous record.
func Record(fields ...Field) Expr { return New{Fields: fields} }

// F is a record field.
func F(name string, value Expr) Field { return Field{Name: name, Value: value} }
