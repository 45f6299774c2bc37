package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

// jsonObject navigates doc along path, keeping the json type.
func jsonObject(doc sqlast.Expr, path []string) sqlast.Expr {
	switch len(path) {
	case 0:
		return doc
	case 1:
		return sqlast.Bin(doc, "->", sqlast.Literal(sqlast.QuoteString(path[0])))
	}
	return sqlast.Bin(doc, "#>", sqlast.Literal(sqlast.TextArray(path)))
}

// jsonScalar extracts the value at path as text and casts it to m's store
// type: (CAST(doc #>> '{a,b}' AS integer)).
func jsonScalar(doc sqlast.Expr, path []string, m *typemap.Mapping) sqlast.Expr {
	if m != nil && m.Kind == typemap.KindJSON {
		return jsonObject(doc, path)
	}
	var e sqlast.Expr
	if len(path) == 1 {
		e = sqlast.Bin(doc, "->>", sqlast.Literal(sqlast.QuoteString(path[0])))
	} else {
		e = sqlast.Bin(doc, "#>>", sqlast.Literal(sqlast.TextArray(path)))
	}
	if m == nil || m.Kind == typemap.KindText {
		return e
	}
	return sqlast.Paren{Expr: sqlast.Cast{Expr: e, Type: m.StoreType, Function: true}}
}

// documentMapping is the mapping of the document o lives in.
func (l *lowerer) documentMapping(o *model.Owned) *typemap.Mapping {
	for o.Parent() != nil {
		o = o.Parent()
	}
	if m := o.Mapping(); m != nil {
		return m
	}
	return l.t.types.jsonb
}

// recordsetFunc expands a JSON array of objects into rows.
func recordsetFunc(m *typemap.Mapping) string {
	if m != nil && m.Base == "json" {
		return "json_to_recordset"
	}
	return "jsonb_to_recordset"
}

// recordsetColumns is the column definition list of a recordset over the
// elements of the owned collection o.
func (l *lowerer) recordsetColumns(o *model.Owned) []sqlast.ColumnDef {
	doc := l.documentMapping(o)
	var out []sqlast.ColumnDef
	for _, p := range o.Properties {
		st := "text"
		if m := p.Mapping(); m != nil {
			st = m.StoreType
		}
		out = append(out, sqlast.ColumnDef{Name: p.JSONKey(), Type: st})
	}
	for _, n := range o.Owned {
		out = append(out, sqlast.ColumnDef{Name: n.JSONKey(), Type: doc.StoreType})
	}
	return out
}

// ownedColumnName names a flattened owned property.
func ownedColumnName(o *model.Owned, p *model.Property) string {
	if o.IsJSON() {
		return p.JSONKey()
	}
	return p.ColumnName()
}

// ownedOf is the value of owned navigation o of ev.
func (l *lowerer) ownedOf(ev *entityValue, o *model.Owned) value {
	if o.Collection {
		return &collectionValue{parent: ev, owned: o}
	}
	if o.IsJSON() {
		return &ownedValue{o: o, doc: func() sqlast.Expr {
			c, ok := ev.columnNamed(o.JSONColumn())
			if !ok {
				l.fail(invalidf("%s has no document column %q", ev.ent.Name, o.JSONColumn()))
				return sqlast.Null
			}
			return ev.col(c)
		}}
	}
	return &ownedValue{o: o, row: func(name string) sqlast.Expr {
		c, ok := ev.columnNamed(name)
		if !ok {
			l.fail(invalidf("%s has no column %q", ev.ent.Name, name))
			return sqlast.Null
		}
		return ev.col(c)
	}}
}

// ownedProperty reads property p of ov.
func (l *lowerer) ownedProperty(ov *ownedValue, p *model.Property) sqlast.Expr {
	switch {
	case ov.doc != nil:
		return jsonScalar(ov.doc(), clonePath(ov.path, p.JSONKey()), p.Mapping())
	case ov.o.IsJSON():
		return ov.row(p.JSONKey())
	}
	return ov.row(p.ColumnName())
}

// nestedOwned is the value of a nested owned reference n of ov.
func (l *lowerer) nestedOwned(ov *ownedValue, n *model.Owned) *ownedValue {
	switch {
	case ov.doc != nil:
		return &ownedValue{o: n, doc: ov.doc, path: clonePath(ov.path, n.JSONKey())}
	case ov.o.IsJSON():
		row := ov.row
		return &ownedValue{o: n, doc: func() sqlast.Expr { return row(n.JSONKey()) }}
	}
	return &ownedValue{o: n, row: ov.row}
}

// ownedMember reads member name of ov: a property, a nested owned reference
// or an owned collection.
func (l *lowerer) ownedMember(ov *ownedValue, name string) (value, bool) {
	if p, ok := ov.o.Property(name); ok {
		return &SQLValue{Expr: l.ownedProperty(ov, p), Mapping: p.Mapping()}, true
	}
	if n, ok := ov.o.Navigation(name); ok {
		if n.Collection {
			return &collectionValue{parent: ov, owned: n}, true
		}
		return l.nestedOwned(ov, n), true
	}
	return nil, false
}

// ownedIsNull tests whether ov is absent: a null document node, or all
// its table-split columns null.
func (l *lowerer) ownedIsNull(ov *ownedValue, not bool) sqlast.Expr {
	if ov.doc != nil {
		return sqlast.IsNull{Expr: jsonObject(ov.doc(), ov.path), Not: not}
	}
	var e sqlast.Expr
	for _, p := range ov.o.Properties {
		e = and(e, sqlast.IsNull{Expr: l.ownedProperty(ov, p)})
	}
	if e == nil {
		return sqlast.False
	}
	if not {
		return sqlast.Not{Expr: e}
	}
	return e
}
