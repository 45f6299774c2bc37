package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
)

// joinable is a collection ready to be joined or selected from. on
// correlates its rows with the parent.
type joinable struct {
	from    sqlast.TableExpr
	on      sqlast.Expr
	lateral bool
	elem    value
}

func (l *lowerer) collectionJoinable(c *collectionValue) (*joinable, error) {
	switch {
	case c.array != nil:
		alias := l.aliases.next("unnest")
		var el = c.array.Mapping.Element
		return &joinable{
			from:    sqlast.FuncTable{Func: sqlast.Call("unnest", c.array.Expr), Alias: alias, ColumnAliases: []string{"value"}},
			lateral: true,
			elem:    &SQLValue{Expr: sqlast.Col(alias, "value"), Mapping: el},
		}, nil
	case c.nav != nil:
		return l.navigationJoinable(c)
	case c.owned != nil && c.owned.IsJSON():
		return l.jsonCollectionJoinable(c)
	case c.owned != nil:
		return l.splitCollectionJoinable(c)
	}
	return nil, invalidf("empty collection value")
}

func (l *lowerer) navigationJoinable(c *collectionValue) (*joinable, error) {
	parent, ok := c.parent.(*entityValue)
	if !ok {
		return nil, &TranslationError{Expr: c.describe(), Reason: "navigation of " + c.parent.describe()}
	}
	target := c.nav.TargetEntity()
	rel, err := l.entitySet(target, concreteTypes(target))
	if err != nil {
		return nil, err
	}
	j := &joinable{from: rel.sel.From, elem: rel.elem}
	if len(rel.sel.Joins) > 0 {
		// Chained tables join inside a derived table so the correlation
		// below can be the only join condition.
		alias := l.aliases.next(hintOf(rel.sel))
		d := &derived{l: l, sel: rel.sel, alias: alias}
		if j.elem, err = l.lift(rel.elem, d, "", nil); err != nil {
			return nil, err
		}
		j.from = sqlast.Derived{Query: rel.sel, Alias: alias}
	} else {
		j.on = rel.sel.Where
	}
	child := j.elem.(*entityValue)
	pk, fk := c.nav.PrincipalKeyProperties(), c.nav.ForeignKeyProperties()
	for i := range fk {
		pc, ok := parent.propertyColumn(pk[i])
		if !ok {
			return nil, invalidf("%s has no column for %s", parent.ent.Name, pk[i].Name)
		}
		fc, ok := child.propertyColumn(fk[i])
		if !ok {
			return nil, invalidf("%s has no column for %s", child.ent.Name, fk[i].Name)
		}
		j.on = and(j.on, sqlast.Bin(parent.col(pc), "=", child.col(fc)))
	}
	return j, nil
}

// documentOf is the JSON document holding the owned collection o below
// parent.
func (l *lowerer) documentOf(parent value, o *model.Owned) (sqlast.Expr, error) {
	switch p := parent.(type) {
	case *entityValue:
		c, ok := p.columnNamed(o.JSONColumn())
		if !ok {
			return nil, invalidf("%s has no document column %q", p.ent.Name, o.JSONColumn())
		}
		return p.col(c), nil
	case *ownedValue:
		if p.doc != nil {
			return jsonObject(p.doc(), clonePath(p.path, o.JSONKey())), nil
		}
		return p.row(o.JSONKey()), nil
	}
	return nil, &TranslationError{Expr: o.Name, Reason: "owned collection of " + parent.describe()}
}

func (l *lowerer) jsonCollectionJoinable(c *collectionValue) (*joinable, error) {
	doc, err := l.documentOf(c.parent, c.owned)
	if err != nil {
		return nil, err
	}
	alias := l.aliases.next(c.owned.Name)
	return &joinable{
		from: sqlast.RowsFrom{
			Func:       sqlast.Call(recordsetFunc(l.documentMapping(c.owned)), doc),
			Columns:    l.recordsetColumns(c.owned),
			Ordinality: true,
			Alias:      alias,
		},
		lateral: true,
		elem:    &ownedValue{o: c.owned, row: func(name string) sqlast.Expr { return sqlast.Col(alias, name) }},
	}, nil
}

// splitCollectionJoinable reads a table-split owned collection from its
// side table, keyed by the container's key columns.
func (l *lowerer) splitCollectionJoinable(c *collectionValue) (*joinable, error) {
	var parentColumn func(string) sqlast.Expr
	switch p := c.parent.(type) {
	case *entityValue:
		parentColumn = func(name string) sqlast.Expr {
			col, ok := p.columnNamed(name)
			if !ok {
				l.fail(invalidf("%s has no column %q", p.ent.Name, name))
				return sqlast.Null
			}
			return p.col(col)
		}
	case *ownedValue:
		if p.row == nil {
			return nil, &TranslationError{Expr: c.owned.Name, Reason: "table-split collection inside a JSON document"}
		}
		parentColumn = p.row
	default:
		return nil, &TranslationError{Expr: c.owned.Name, Reason: "owned collection of " + c.parent.describe()}
	}
	table := c.owned.TableRef()
	alias := l.aliases.next(table.Name)
	j := &joinable{
		from: tableOf(table, alias),
		elem: &ownedValue{o: c.owned, row: func(name string) sqlast.Expr { return sqlast.Col(alias, name) }},
	}
	for _, pair := range c.owned.ForeignKey() {
		j.on = and(j.on, sqlast.Bin(parentColumn(pair.Parent), "=", sqlast.Col(alias, pair.Child)))
	}
	return j, nil
}

// collectionRelation selects the elements of c, correlated with its parent.
func (l *lowerer) collectionRelation(c *collectionValue) (*relation, error) {
	j, err := l.collectionJoinable(c)
	if err != nil {
		return nil, err
	}
	rel := &relation{sel: &sqlast.Select{From: j.from, Where: j.on}, elem: j.elem}
	setScope(j.elem, rel)
	return rel, nil
}

func setScope(v value, rel *relation) {
	if ev, ok := v.(*entityValue); ok {
		ev.scope = rel
	}
}

func (l *lowerer) visitSelectMany(n query.SelectMany) (*relation, error) {
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.grouped {
		return nil, untranslatableNode(n, "SelectMany over groups")
	}
	if rel.paged || rel.distinct {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	v, err := l.apply(n.Collection, rel, rel.elem)
	if err != nil {
		return nil, err
	}
	coll, ok := asCollection(v)
	if !ok {
		return nil, untranslatableNode(n, "%s is not a collection", v.describe())
	}
	j, err := l.collectionJoinable(coll)
	if err != nil {
		return nil, err
	}
	join := sqlast.Join{Kind: sqlast.InnerJoin, Lateral: j.lateral, Source: j.from, On: j.on}
	if j.on == nil {
		join.Kind = sqlast.CrossJoin
	}
	rel.sel.Joins = append(rel.sel.Joins, join)
	setScope(j.elem, rel)
	if n.Result == nil {
		rel.elem = j.elem
		return rel, nil
	}
	out, err := l.apply(n.Result, rel, rel.elem, j.elem)
	if err != nil {
		return nil, err
	}
	rel.elem = out
	return rel, nil
}

// mergeable relations are plain reads whose FROM can join directly into
// another SELECT.
func mergeable(r *relation) bool {
	s := r.sel
	return !r.paged && !r.distinct && !r.grouped && len(s.OrderBy) == 0 && len(s.Joins) == 0 && len(s.Columns) == 0
}

func (l *lowerer) visitJoin(n query.Join) (*relation, error) {
	left, err := l.node(n.Left)
	if err != nil {
		return nil, err
	}
	if left.paged || left.distinct || left.grouped {
		if left, err = l.wrap(left); err != nil {
			return nil, err
		}
	}
	right, err := l.node(n.Right)
	if err != nil {
		return nil, err
	}
	if right.grouped {
		return nil, untranslatableNode(n, "join with groups")
	}
	lk, err := l.apply(n.LeftKey, left, left.elem)
	if err != nil {
		return nil, err
	}
	rk, err := l.apply(n.RightKey, right, right.elem)
	if err != nil {
		return nil, err
	}
	kind := sqlast.InnerJoin
	if n.Kind == query.LeftJoin {
		kind = sqlast.LeftJoin
	}

	var elem value
	if mergeable(right) {
		src := right.sel
		// Navigations of the right element now join into the left SELECT.
		right.sel = left.sel
		eq, err := l.equateKeys(lk, rk, n.LeftKey.Body)
		if err != nil {
			return nil, err
		}
		left.sel.Joins = append(left.sel.Joins, sqlast.Join{Kind: kind, Source: src.From, On: and(eq, src.Where)})
		elem = right.elem
	} else {
		alias := l.aliases.next(hintOf(right.sel))
		d := &derived{l: l, sel: right.sel, alias: alias, frozen: right.distinct}
		if !right.paged {
			right.sel.OrderBy = nil
		}
		lifted, err := l.lift(rk, d, "Key", left)
		if err != nil {
			return nil, err
		}
		if elem, err = l.lift(right.elem, d, "", left); err != nil {
			return nil, err
		}
		eq, err := l.equateKeys(lk, lifted, n.LeftKey.Body)
		if err != nil {
			return nil, err
		}
		left.sel.Joins = append(left.sel.Joins, sqlast.Join{Kind: kind, Source: sqlast.Derived{Query: right.sel, Alias: alias}, On: eq})
	}
	if ev, ok := elem.(*entityValue); ok && kind == sqlast.LeftJoin {
		ev.nullable = true
	}
	setScope(elem, left)
	if n.Result == nil {
		left.elem = elem
		return left, nil
	}
	out, err := l.apply(n.Result, left, left.elem, elem)
	if err != nil {
		return nil, err
	}
	left.elem = out
	return left, nil
}

// equateKeys compares join keys: scalars directly, records field by field
// and entities by primary key.
func (l *lowerer) equateKeys(a, b value, origin query.Expr) (sqlast.Expr, error) {
	ae, err := l.sortExprs(a, origin)
	if err != nil {
		return nil, err
	}
	be, err := l.sortExprs(b, origin)
	if err != nil {
		return nil, err
	}
	if len(ae) != len(be) || len(ae) == 0 {
		return nil, untranslatable(origin, "join keys have different shapes")
	}
	var eq sqlast.Expr
	for i := range ae {
		eq = and(eq, sqlast.Bin(ae[i], "=", be[i]))
	}
	return eq, nil
}

func (l *lowerer) visitSetOperation(n query.SetOperation) (*relation, error) {
	left, err := l.node(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.node(n.Right)
	if err != nil {
		return nil, err
	}
	if err := l.alignElements(n, left, right); err != nil {
		return nil, err
	}
	for _, r := range []**relation{&left, &right} {
		if (*r).paged || (*r).distinct || (*r).grouped || len((*r).sel.OrderBy) > 0 {
			if *r, err = l.wrap(*r); err != nil {
				return nil, err
			}
		}
	}
	lcols, err := l.flatten(left.elem, nil, true)
	if err != nil {
		return nil, err
	}
	rcols, err := l.flatten(right.elem, nil, true)
	if err != nil {
		return nil, err
	}
	if len(lcols) != len(rcols) {
		return nil, untranslatableNode(n, "%s arms project %d and %d columns", n.Kind, len(lcols), len(rcols))
	}
	for i, lc := range lcols {
		if lc.expr == sqlast.Null && rcols[i].mapping != nil {
			lcols[i].expr, lcols[i].mapping = nullOf(rcols[i].mapping), rcols[i].mapping
		}
	}
	left.sel.Columns = nil
	lcols = l.project(left.sel, lcols)
	right.sel.Columns = nil
	for i, rc := range rcols {
		e := rc.expr
		lm, rm := lcols[i].mapping, rc.mapping
		if lm != nil && rm != nil && lm.StoreType != rm.StoreType {
			e = sqlast.Cast{Expr: e, Type: lm.StoreType}
		} else if e == sqlast.Null && lm != nil {
			e = nullOf(lm)
		}
		right.sel.Columns = append(right.sel.Columns, sqlast.Projection{Expr: e, Alias: lcols[i].name})
	}

	kind := sqlast.UnionAll
	switch n.Kind {
	case query.Union:
		kind = sqlast.Union
	case query.Intersect:
		kind = sqlast.Intersect
	case query.Except:
		kind = sqlast.Except
	}
	alias := l.aliases.next("union")
	out := &relation{sel: &sqlast.Select{From: sqlast.Derived{
		Query: &sqlast.SetOp{Kind: kind, Left: left.sel, Right: right.sel},
		Alias: alias,
	}}}
	d := &derived{l: l, sel: left.sel, alias: alias, frozen: true}
	if out.elem, _, err = l.rebind(left.elem, lcols, d, out); err != nil {
		return nil, err
	}
	return out, nil
}

// rebind re-expresses v over a set operation's output. Scalars take the
// column at their position, so arms that project the same expression twice
// keep both columns apart.
func (l *lowerer) rebind(v value, cols []flatColumn, d *derived, scope *relation) (value, []flatColumn, error) {
	switch v := v.(type) {
	case *SQLValue:
		if len(cols) == 0 {
			return nil, nil, invalidf("set operation projects fewer columns than its element")
		}
		return &SQLValue{Expr: sqlast.Col(d.alias, cols[0].name), Mapping: cols[0].mapping}, cols[1:], nil
	case *recordValue:
		out := &recordValue{fields: make([]field, len(v.fields))}
		for i, f := range v.fields {
			fv, rest, err := l.rebind(f.v, cols, d, scope)
			if err != nil {
				return nil, nil, err
			}
			out.fields[i] = field{name: f.name, v: fv}
			cols = rest
		}
		return out, cols, nil
	}
	flat, err := l.flatten(v, nil, true)
	if err != nil {
		return nil, nil, err
	}
	if len(flat) > len(cols) {
		return nil, nil, invalidf("set operation projects fewer columns than its element")
	}
	lv, err := l.lift(v, d, "", scope)
	return lv, cols[len(flat):], err
}

// alignElements widens entity arms of a set operation to the union of
// their possible types so both project the same columns.
func (l *lowerer) alignElements(n query.SetOperation, left, right *relation) error {
	le, lok := left.elem.(*entityValue)
	re, rok := right.elem.(*entityValue)
	switch {
	case !lok && !rok:
		return nil
	case lok != rok:
		return untranslatableNode(n, "%s of %s and %s", n.Kind, left.elem.describe(), right.elem.describe())
	case le.ent != re.ent:
		return untranslatableNode(n, "%s of %s and %s", n.Kind, le.ent.Name, re.ent.Name)
	}
	var types []*model.Entity
	for _, t := range concreteTypes(le.ent) {
		if containsEntity(le.types, t) || containsEntity(re.types, t) {
			types = append(types, t)
		}
	}
	lw, rw := *le, *re
	lw.types, rw.types = types, types
	left.elem, right.elem = &lw, &rw
	return nil
}
