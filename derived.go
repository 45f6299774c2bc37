package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/sqlast"
)

// derived is a subquery used as a table. Expressions of the inner scope
// are exposed outside by adding them to its projection.
type derived struct {
	l     *lowerer
	sel   *sqlast.Select
	alias string
	// frozen projections (DISTINCT, set operation arms) cannot grow.
	frozen bool
}

// lift exposes e through the derived table and returns the outer reference.
func (d *derived) lift(e sqlast.Expr, name string) sqlast.Expr {
	text := e.SQL()
	for _, p := range d.sel.Columns {
		if p.Expr.SQL() == text {
			if n := outputName(p); n != "" {
				return sqlast.Col(d.alias, n)
			}
		}
	}
	if d.frozen {
		d.l.fail(&TranslationError{Expr: text, Reason: "is not part of the distinct projection"})
		return sqlast.Null
	}
	return sqlast.Col(d.alias, addColumn(d.sel, e, name))
}

// lift re-expresses v for a relation selecting from d. Scalars are lifted
// now; entity and owned columns are lifted when first read.
func (l *lowerer) lift(v value, d *derived, name string, scope *relation) (value, error) {
	switch v := v.(type) {
	case *SQLValue:
		return &SQLValue{Expr: d.lift(v.Expr, nameOf(v.Expr, name)), Mapping: v.Mapping}, nil

	case *entityValue:
		inner := v
		out := *v
		out.col = func(c *model.Column) sqlast.Expr { return d.lift(inner.col(c), c.Name) }
		out.disc = func() sqlast.Expr { return d.lift(inner.disc(), inner.discriminatorName()) }
		if inner.test != nil {
			out.test = func(t *model.Entity) sqlast.Expr { return d.lift(inner.test(t), "Is"+t.Name) }
		}
		out.scope = scope
		out.navs = map[string]*entityValue{}
		return &out, nil

	case *ownedValue:
		inner := v
		out := &ownedValue{o: v.o, path: v.path}
		if inner.row != nil {
			out.row = func(n string) sqlast.Expr { return d.lift(inner.row(n), n) }
		}
		if inner.doc != nil {
			out.doc = func() sqlast.Expr { return d.lift(inner.doc(), inner.o.JSONColumn()) }
		}
		return out, nil

	case *recordValue:
		out := &recordValue{fields: make([]field, len(v.fields))}
		for i, f := range v.fields {
			lv, err := l.lift(f.v, d, f.name, scope)
			if err != nil {
				return nil, err
			}
			out.fields[i] = field{name: f.name, v: lv}
		}
		return out, nil

	case *collectionValue:
		out := *v
		if v.array != nil {
			a, err := l.lift(v.array, d, name, scope)
			if err != nil {
				return nil, err
			}
			out.array = a.(*SQLValue)
			return &out, nil
		}
		p, err := l.lift(v.parent, d, name, scope)
		if err != nil {
			return nil, err
		}
		out.parent = p
		return &out, nil
	}
	return nil, &TranslationError{Expr: v.describe(), Reason: "cannot be read outside its subquery"}
}
