package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

func (l *lowerer) visitSubquery(s query.Subquery) (value, error) {
	rel, err := l.node(s.Query)
	if err != nil {
		return nil, err
	}
	switch s.Mode {
	case query.First:
		return l.firstLateral(rel, s)
	case query.Exists:
		return l.exists(rel, false), nil
	case query.Count:
		return l.count(rel), nil
	case query.Aggregate:
		return l.aggregateOver(rel, s.Aggregate, s.Selector, s)
	}
	return nil, invalidf("unknown subquery mode %d", s.Mode)
}

func (l *lowerer) exists(rel *relation, not bool) *SQLValue {
	if !rel.grouped && !rel.distinct {
		rel.sel.Columns = nil
	}
	if !rel.paged {
		rel.sel.OrderBy = nil
	}
	return &SQLValue{Expr: sqlast.Exists{Query: rel.sel, Not: not}, Mapping: l.t.types.boolean}
}

// opaque selects from r as a derived table without exposing its element.
func (l *lowerer) opaque(r *relation) *sqlast.Select {
	if !r.paged {
		r.sel.OrderBy = nil
	}
	if !r.distinct {
		r.sel.Columns = nil
	}
	return &sqlast.Select{From: sqlast.Derived{Query: r.sel, Alias: l.aliases.next(hintOf(r.sel))}}
}

func (l *lowerer) count(rel *relation) *SQLValue {
	sel := rel.sel
	if rel.paged || rel.distinct || rel.grouped {
		sel = l.opaque(rel)
	}
	sel.OrderBy = nil
	sel.Columns = []sqlast.Projection{{Expr: countAll()}}
	return &SQLValue{Expr: sqlast.Subquery{Query: sel}, Mapping: l.t.types.int32}
}

func countAll() sqlast.Expr {
	return intCast(sqlast.Call("count", sqlast.Star{}))
}

// aggregateOver folds selector over the rows of rel into a scalar
// subquery.
func (l *lowerer) aggregateOver(rel *relation, fn string, selector *query.Lambda, origin query.Expr) (*SQLValue, error) {
	if rel.grouped {
		return nil, untranslatable(origin, "%s over groups", fn)
	}
	var err error
	if rel.paged || rel.distinct {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	x, err := l.selectScalar(rel, selector, origin)
	if err != nil {
		return nil, err
	}
	agg, err := l.aggregate(fn, x, origin)
	if err != nil {
		return nil, err
	}
	rel.sel.OrderBy = nil
	rel.sel.Columns = []sqlast.Projection{{Expr: agg.Expr}}
	return &SQLValue{Expr: sqlast.Subquery{Query: rel.sel}, Mapping: agg.Mapping}, nil
}

// selectScalar applies selector to the element of rel, or takes the
// element itself when selector is nil.
func (l *lowerer) selectScalar(rel *relation, selector *query.Lambda, origin query.Expr) (*SQLValue, error) {
	if selector != nil {
		return l.applyScalar(selector, rel, rel.elem)
	}
	x, ok := rel.elem.(*SQLValue)
	if !ok {
		return nil, untranslatable(origin, "%s is not a scalar", rel.elem.describe())
	}
	return x, nil
}

// aggregate applies an aggregate function. Sums of an empty set are zero;
// integer sums keep the operand's type and integer averages are computed in
// double precision.
func (l *lowerer) aggregate(fn string, x *SQLValue, origin query.Expr) (*SQLValue, error) {
	m := x.Mapping
	kind := typemap.KindUnknown
	if m != nil {
		kind = m.Kind
	}
	switch fn {
	case "Sum":
		if m != nil && !kind.IsNumeric() && kind != typemap.KindInterval {
			return nil, untranslatable(origin, "Sum of %s", m.StoreType)
		}
		var e sqlast.Expr = sqlast.Call("COALESCE", sqlast.Call("sum", x.Expr), sqlast.Literal("0"))
		if kind == typemap.KindInterval {
			e = sqlast.Call("COALESCE", sqlast.Call("sum", x.Expr), sqlast.Literal("INTERVAL '0'"))
		}
		if kind == typemap.KindInt {
			e = sqlast.Cast{Expr: e, Type: m.StoreType}
		}
		return &SQLValue{Expr: e, Mapping: m}, nil
	case "Average":
		switch kind {
		case typemap.KindInt:
			return &SQLValue{Expr: sqlast.Call("avg", sqlast.Cast{Expr: x.Expr, Type: "double precision"}), Mapping: l.t.types.float64}, nil
		case typemap.KindFloat, typemap.KindNumeric, typemap.KindInterval, typemap.KindUnknown:
			return &SQLValue{Expr: sqlast.Call("avg", x.Expr), Mapping: m}, nil
		}
		return nil, untranslatable(origin, "Average of %s", m.StoreType)
	case "Min", "Max":
		name := "min"
		if fn == "Max" {
			name = "max"
		}
		return &SQLValue{Expr: sqlast.Call(name, x.Expr), Mapping: m}, nil
	}
	return nil, untranslatable(origin, "unknown aggregate %s", fn)
}

// firstLateral joins the first row of rel laterally into the enclosing
// query and reads it from there.
func (l *lowerer) firstLateral(rel *relation, origin query.Expr) (value, error) {
	scope := l.scope
	if scope == nil {
		return nil, untranslatable(origin, "First outside of a query")
	}
	if scope.grouped {
		return nil, untranslatable(origin, "First inside a grouped query")
	}
	var err error
	if rel.sel.Limit != nil || rel.grouped {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	rel.sel.Limit = sqlast.Literal("1")
	rel.paged = true
	alias := l.aliases.next(hintOf(rel.sel))
	d := &derived{l: l, sel: rel.sel, alias: alias, frozen: rel.distinct}
	scope.sel.Joins = append(scope.sel.Joins, sqlast.Join{
		Kind:    sqlast.LeftJoin,
		Lateral: true,
		Source:  sqlast.Derived{Query: rel.sel, Alias: alias},
	})
	v, err := l.lift(rel.elem, d, "", scope)
	if err != nil {
		return nil, err
	}
	if ev, ok := v.(*entityValue); ok {
		ev.nullable = true
	}
	return v, nil
}

// reference follows a reference navigation with a join into the row's
// scope. Repeated reads share the join.
func (l *lowerer) reference(ev *entityValue, n *model.Navigation, origin query.Expr) (*entityValue, error) {
	if target, ok := ev.navs[n.Name]; ok {
		return target, nil
	}
	scope := ev.scope
	if scope == nil {
		return nil, untranslatable(origin, "navigation %s outside of a query", n.Name)
	}
	if scope.grouped {
		return nil, untranslatable(origin, "navigation %s of a grouped row", n.Name)
	}
	target := n.TargetEntity()
	src, err := l.entitySource(target, concreteTypes(target))
	if err != nil {
		return nil, err
	}
	kind := sqlast.LeftJoin
	if n.Required && !ev.nullable {
		kind = sqlast.InnerJoin
	}
	on := src.where
	fk, pk := n.ForeignKeyProperties(), n.PrincipalKeyProperties()
	for i := range fk {
		fc, ok := ev.propertyColumn(fk[i])
		if !ok {
			return nil, invalidf("%s has no column for %s", ev.ent.Name, fk[i].Name)
		}
		pc, ok := src.ev.propertyColumn(pk[i])
		if !ok {
			return nil, invalidf("%s has no column for %s", target.Name, pk[i].Name)
		}
		on = and(on, sqlast.Bin(ev.col(fc), "=", src.ev.col(pc)))
	}
	scope.sel.Joins = append(scope.sel.Joins, sqlast.Join{Kind: kind, Source: src.from, On: on})
	for _, j := range src.joins {
		if kind == sqlast.LeftJoin && j.Kind == sqlast.InnerJoin {
			j.Kind = sqlast.LeftJoin
		}
		scope.sel.Joins = append(scope.sel.Joins, j)
	}
	src.ev.scope = scope
	src.ev.nullable = kind == sqlast.LeftJoin
	if ev.navs == nil {
		ev.navs = map[string]*entityValue{}
	}
	ev.navs[n.Name] = src.ev
	return src.ev, nil
}

// groupingCall translates aggregates of a group: Count, LongCount, Sum,
// Min, Max and Average.
func (l *lowerer) groupingCall(g *groupingValue, c query.Call) (*SQLValue, error) {
	lam, err := lambdaArg(c)
	if err != nil {
		return nil, err
	}
	switch c.Method {
	case "Count", "LongCount":
		var arg sqlast.Expr = sqlast.Star{}
		if lam != nil {
			p, err := l.applyScalar(lam, nil, g.elem)
			if err != nil {
				return nil, err
			}
			arg = sqlast.Case{Whens: []sqlast.When{{Cond: p.Expr, Result: sqlast.Literal("1")}}}
		}
		if c.Method == "LongCount" {
			return &SQLValue{Expr: sqlast.Call("count", arg), Mapping: l.t.types.int64}, nil
		}
		return &SQLValue{Expr: intCast(sqlast.Call("count", arg)), Mapping: l.t.types.int32}, nil
	case "Sum", "Min", "Max", "Average":
		var x *SQLValue
		if lam != nil {
			if x, err = l.applyScalar(lam, nil, g.elem); err != nil {
				return nil, err
			}
		} else if x, _ = g.elem.(*SQLValue); x == nil {
			return nil, untranslatable(c, "%s of %s", c.Method, g.elem.describe())
		}
		return l.aggregate(c.Method, x, c)
	}
	return nil, untranslatable(c, "grouping method %s", c.Method)
}

// collectionCall translates operators applied directly to a collection
// member: Any, All, Count, LongCount and the aggregates.
func (l *lowerer) collectionCall(coll *collectionValue, c query.Call) (*SQLValue, error) {
	lam, err := lambdaArg(c)
	if err != nil {
		return nil, err
	}
	switch c.Method {
	case "Any", "All", "Count", "LongCount", "Sum", "Min", "Max", "Average":
	default:
		return nil, untranslatable(c, "method %s of %s", c.Method, coll.describe())
	}
	rel, err := l.collectionRelation(coll)
	if err != nil {
		return nil, err
	}
	filter := func(negate bool) error {
		if lam == nil {
			return nil
		}
		p, err := l.applyScalar(lam, rel, rel.elem)
		if err != nil {
			return err
		}
		e := p.Expr
		if negate {
			e = sqlast.Not{Expr: e}
		}
		rel.sel.Where = and(rel.sel.Where, e)
		return nil
	}
	switch c.Method {
	case "Any":
		if err := filter(false); err != nil {
			return nil, err
		}
		return l.exists(rel, false), nil
	case "All":
		if lam == nil {
			return nil, invalidf("All requires a predicate")
		}
		if err := filter(true); err != nil {
			return nil, err
		}
		return l.exists(rel, true), nil
	case "Count", "LongCount":
		if err := filter(false); err != nil {
			return nil, err
		}
		v := l.count(rel)
		if c.Method == "LongCount" {
			sel := v.Expr.(sqlast.Subquery).Query.(*sqlast.Select)
			sel.Columns = []sqlast.Projection{{Expr: sqlast.Call("count", sqlast.Star{})}}
			v.Mapping = l.t.types.int64
		}
		return v, nil
	}
	return l.aggregateOver(rel, c.Method, lam, c)
}

// lambdaArg returns the single optional lambda argument of c.
func lambdaArg(c query.Call) (*query.Lambda, error) {
	switch len(c.Args) {
	case 0:
		return nil, nil
	case 1:
		if lam, ok := c.Args[0].(*query.Lambda); ok {
			return lam, nil
		}
	}
	return nil, invalidf("%s takes an optional lambda argument", c.Method)
}
