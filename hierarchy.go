package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

// entitySource is the FROM entry, extra joins and restriction that yield
// the rows of an entity set.
type entitySource struct {
	from  sqlast.TableExpr
	joins []sqlast.Join
	where sqlast.Expr
	ev    *entityValue
}

// concreteTypes lists the concrete types at or below e.
func concreteTypes(e *model.Entity) []*model.Entity {
	var out []*model.Entity
	for _, t := range e.Subtree() {
		if t.IsConcrete() {
			out = append(out, t)
		}
	}
	return out
}

func containsEntity(types []*model.Entity, e *model.Entity) bool {
	for _, t := range types {
		if t == e {
			return true
		}
	}
	return false
}

// entitySet is a relation over the rows of ent whose concrete type is one
// of types.
func (l *lowerer) entitySet(ent *model.Entity, types []*model.Entity) (*relation, error) {
	src, err := l.entitySource(ent, types)
	if err != nil {
		return nil, err
	}
	rel := &relation{sel: &sqlast.Select{From: src.from, Joins: src.joins, Where: src.where}, elem: src.ev}
	src.ev.scope = rel
	return rel, nil
}

func (l *lowerer) entitySource(ent *model.Entity, types []*model.Entity) (*entitySource, error) {
	h := ent.Hierarchy()
	if h == nil || h.Shape() == nil {
		return nil, invalidf("entity %s has no resolved hierarchy", ent.Name)
	}
	switch h.Strategy {
	case model.TPT:
		return l.tptSource(ent, types), nil
	case model.TPC:
		return l.tpcSource(ent, types), nil
	}
	return l.tphSource(ent, types), nil
}

func tableOf(t model.TableRef, alias string) sqlast.Table {
	return sqlast.Table{Schema: t.Schema, Name: t.Name, Alias: alias}
}

func (l *lowerer) tphSource(ent *model.Entity, types []*model.Entity) *entitySource {
	sh := ent.Hierarchy().Shape()
	table := sh.Root.TableRef()
	alias := l.aliases.next(table.Name)
	ev := &entityValue{
		ent:   ent,
		shape: sh,
		types: types,
		col:   func(c *model.Column) sqlast.Expr { return sqlast.Col(alias, c.Name) },
	}
	src := &entitySource{from: tableOf(table, alias), ev: ev}
	all := ent.Hierarchy().ConcreteTypes()
	if sh.Discriminator != nil {
		disc := sqlast.Col(alias, sh.Discriminator.Name)
		ev.disc = func() sqlast.Expr { return disc }
		if len(types) < len(all) {
			src.where = l.discriminatorIn(ev, disc, types)
		}
		return src
	}
	ev.disc = l.singleTypeDiscriminator(ev)
	if len(types) == 0 {
		src.where = sqlast.False
	}
	return src
}

// tptSource joins the root table to every table of ent's chain: ancestors
// with INNER JOIN, subtypes with LEFT JOIN.
func (l *lowerer) tptSource(ent *model.Entity, types []*model.Entity) *entitySource {
	sh := ent.Hierarchy().Shape()
	root := sh.Root
	aliases := map[model.TableRef]string{}
	tableAlias := map[*model.Entity]string{}
	rootAlias := l.aliases.next(root.TableRef().Name)
	aliases[root.TableRef()] = rootAlias
	tableAlias[root] = rootAlias

	var keys []string
	for _, p := range root.KeyProperties() {
		keys = append(keys, p.ColumnName())
	}
	on := func(alias string) sqlast.Expr {
		var e sqlast.Expr
		for _, k := range keys {
			e = and(e, sqlast.Bin(sqlast.Col(rootAlias, k), "=", sqlast.Col(alias, k)))
		}
		return e
	}

	src := &entitySource{from: tableOf(root.TableRef(), rootAlias)}
	join := func(t *model.Entity, kind sqlast.JoinKind) {
		alias := l.aliases.next(t.TableRef().Name)
		aliases[t.TableRef()] = alias
		tableAlias[t] = alias
		src.joins = append(src.joins, sqlast.Join{Kind: kind, Source: tableOf(t.TableRef(), alias), On: on(alias)})
	}
	for _, a := range ent.Ancestors()[1:] {
		join(a, sqlast.InnerJoin)
	}
	for _, d := range ent.Subtree()[1:] {
		join(d, sqlast.LeftJoin)
	}

	ev := &entityValue{
		ent:   ent,
		shape: sh,
		types: types,
		col: func(c *model.Column) sqlast.Expr {
			alias, ok := aliases[c.Table]
			if !ok {
				return nullOf(c.Mapping)
			}
			return sqlast.Col(alias, c.Name)
		},
	}
	present := func(t *model.Entity) sqlast.Expr {
		return sqlast.IsNull{Expr: sqlast.Col(tableAlias[t], keys[0]), Not: true}
	}
	ev.test = func(t *model.Entity) sqlast.Expr {
		switch {
		case ent.IsA(t):
			return sqlast.True
		case t.IsA(ent):
			return present(t)
		}
		return sqlast.False
	}
	if len(types) <= 1 {
		ev.disc = l.singleTypeDiscriminator(ev)
	} else {
		ev.disc = func() sqlast.Expr {
			subtree := ent.Subtree()
			c := sqlast.Case{}
			for i := len(subtree) - 1; i >= 0; i-- {
				t := subtree[i]
				if !containsEntity(types, t) {
					continue
				}
				if t == ent {
					c.Else = l.typeLiteral(ev, t)
					continue
				}
				c.Whens = append(c.Whens, sqlast.When{Cond: present(t), Result: l.typeLiteral(ev, t)})
			}
			return c
		}
	}
	if len(types) == 0 {
		src.where = sqlast.False
	}
	src.ev = ev
	return src
}

// tpcSource reads a single concrete table directly and unions several.
func (l *lowerer) tpcSource(ent *model.Entity, types []*model.Entity) *entitySource {
	sh := ent.Hierarchy().Shape()
	var arms []*model.EntityShape
	for _, s := range sh.ConcreteTypes(ent) {
		if containsEntity(types, s.Entity) {
			arms = append(arms, s)
		}
	}
	ev := &entityValue{ent: ent, shape: sh, types: types}
	if len(arms) == 1 {
		arm := arms[0]
		alias := l.aliases.next(arm.Table.Name)
		ev.col = func(c *model.Column) sqlast.Expr {
			if _, ok := arm.Column(c.Name); ok {
				return sqlast.Col(alias, c.Name)
			}
			return nullOf(c.Mapping)
		}
		ev.disc = l.singleTypeDiscriminator(ev)
		return &entitySource{from: tableOf(arm.Table, alias), ev: ev}
	}

	u := l.newUnion(ev, arms)
	ev.col = func(c *model.Column) sqlast.Expr { return u.column(c.Name, c.Mapping) }
	ev.disc = u.discriminator
	return &entitySource{from: sqlast.Derived{Query: u.statement(), Alias: u.alias}, ev: ev}
}

// union is a UNION ALL over the tables of several TPC types. Arms start
// with empty projections; columns are added to every arm when first read,
// padded with typed NULLs where an arm lacks them.
type union struct {
	l        *lowerer
	ev       *entityValue
	alias    string
	arms     []unionArm
	lifted   map[string]bool
	discName string
}

type unionArm struct {
	sel   *sqlast.Select
	shape *model.EntityShape
	alias string
}

func (l *lowerer) newUnion(ev *entityValue, shapes []*model.EntityShape) *union {
	u := &union{l: l, ev: ev, lifted: map[string]bool{}, discName: "Discriminator"}
	for _, sh := range shapes {
		alias := l.aliases.next(sh.Table.Name)
		u.arms = append(u.arms, unionArm{sel: &sqlast.Select{From: tableOf(sh.Table, alias)}, shape: sh, alias: alias})
		if _, clash := sh.Column(u.discName); clash {
			u.discName = "Discriminator0"
		}
	}
	if len(u.arms) == 0 {
		// No concrete type: a single row source that yields nothing.
		u.arms = []unionArm{{sel: &sqlast.Select{Where: sqlast.False}}}
	}
	u.alias = l.aliases.next("union")
	return u
}

func (u *union) statement() sqlast.Statement {
	var st sqlast.Statement = u.arms[0].sel
	for _, arm := range u.arms[1:] {
		st = &sqlast.SetOp{Kind: sqlast.UnionAll, Left: st, Right: arm.sel}
	}
	return st
}

func (u *union) column(name string, m *typemap.Mapping) sqlast.Expr {
	if !u.lifted[name] {
		u.lifted[name] = true
		for _, arm := range u.arms {
			var e sqlast.Expr = nullOf(m)
			if arm.shape != nil {
				if _, ok := arm.shape.Column(name); ok {
					e = sqlast.Col(arm.alias, name)
				}
			}
			arm.sel.Columns = append(arm.sel.Columns, sqlast.Projection{Expr: e, Alias: name})
		}
	}
	return sqlast.Col(u.alias, name)
}

func (u *union) discriminator() sqlast.Expr {
	if !u.lifted[u.discName] {
		u.lifted[u.discName] = true
		for _, arm := range u.arms {
			e := sqlast.Expr(nullOf(u.l.t.types.text))
			if arm.shape != nil {
				e = u.l.typeLiteral(u.ev, arm.shape.Entity)
			}
			arm.sel.Columns = append(arm.sel.Columns, sqlast.Projection{Expr: e, Alias: u.discName})
		}
	}
	return sqlast.Col(u.alias, u.discName)
}

// nullOf is NULL typed as m's store type.
func nullOf(m *typemap.Mapping) sqlast.Expr {
	if m == nil {
		return sqlast.Null
	}
	return sqlast.Cast{Expr: sqlast.Null, Type: m.StoreType}
}

func (l *lowerer) singleTypeDiscriminator(ev *entityValue) func() sqlast.Expr {
	return func() sqlast.Expr {
		if len(ev.types) == 0 {
			return nullOf(l.discriminatorMapping(ev))
		}
		return l.typeLiteral(ev, ev.types[0])
	}
}

// discriminatorMapping types discriminator values: the declared TPH column
// mapping, otherwise text holding the type name.
func (l *lowerer) discriminatorMapping(ev *entityValue) *typemap.Mapping {
	if ev.shape.Strategy == model.TPH || ev.shape.Strategy == model.StrategyNone {
		if m := ev.ent.Hierarchy().DiscriminatorMapping; m != nil {
			return m
		}
	}
	return l.t.types.text
}

// typeLiteral is the discriminator value of t.
func (l *lowerer) typeLiteral(ev *entityValue, t *model.Entity) sqlast.Expr {
	var v any = t.Name
	if sh := ev.shape.Of(t); sh != nil && sh.Discriminator != nil {
		v = sh.Discriminator
	}
	m := l.discriminatorMapping(ev)
	lit, err := m.Literal(v)
	if err != nil {
		l.fail(err)
		return sqlast.Null
	}
	return sqlast.Literal(lit)
}

// discriminatorIn tests disc against the discriminator values of types.
func (l *lowerer) discriminatorIn(ev *entityValue, disc sqlast.Expr, types []*model.Entity) sqlast.Expr {
	switch len(types) {
	case 0:
		return sqlast.False
	case 1:
		return sqlast.Bin(disc, "=", l.typeLiteral(ev, types[0]))
	}
	list := make([]sqlast.Expr, len(types))
	for i, t := range types {
		list[i] = l.typeLiteral(ev, t)
	}
	return sqlast.In{Expr: disc, List: list}
}

// typeIs tests whether the row is a t (exactly t when exact). Tests that
// every possible type passes fold to TRUE, tests none passes to FALSE.
func (l *lowerer) typeIs(ev *entityValue, t *model.Entity, exact bool) sqlast.Expr {
	var match []*model.Entity
	for _, p := range ev.types {
		if p == t || (!exact && p.IsA(t)) {
			match = append(match, p)
		}
	}
	switch len(match) {
	case 0:
		return sqlast.False
	case len(ev.types):
		return sqlast.True
	}
	if !exact && ev.test != nil {
		return ev.test(t)
	}
	return l.discriminatorIn(ev, ev.disc(), match)
}

// prunedSource handles a filter that only tests the type of a bare entity
// set. Under TPH and TPC the set itself is restricted: a discriminator
// predicate, or only the matching union arms. TPT keeps its joins and
// filters normally.
func (l *lowerer) prunedSource(n query.Filter) (*relation, bool, error) {
	name, ok := sourceEntity(n.Input)
	if !ok || n.Pred == nil || len(n.Pred.Params) != 1 {
		return nil, false, nil
	}
	ent, err := l.entity(name)
	if err != nil {
		return nil, false, err
	}
	if ent.Hierarchy() == nil || ent.Hierarchy().Strategy == model.TPT {
		return nil, false, nil
	}
	match, ok := l.typeFilter(n.Pred.Body, n.Pred.Params[0], ent)
	if !ok {
		return nil, false, nil
	}
	var types []*model.Entity
	for _, t := range concreteTypes(ent) {
		if match(t) {
			types = append(types, t)
		}
	}
	rel, err := l.entitySet(ent, types)
	return rel, true, err
}

// typeFilter recognizes predicates built only from type tests of param,
// combined with || and &&.
func (l *lowerer) typeFilter(e query.Expr, param string, ent *model.Entity) (func(*model.Entity) bool, bool) {
	switch e := e.(type) {
	case query.TypeIs:
		v, ok := e.Operand.(query.Var)
		if !ok || v.Name != param {
			return nil, false
		}
		t, ok := l.t.model.Entity(e.Entity)
		if !ok || t.Root() != ent.Root() {
			return nil, false
		}
		return func(c *model.Entity) bool { return c == t || (!e.Exact && c.IsA(t)) }, true
	case query.Binary:
		if e.Op != query.OpOr && e.Op != query.OpAnd {
			return nil, false
		}
		a, ok := l.typeFilter(e.Left, param, ent)
		if !ok {
			return nil, false
		}
		b, ok := l.typeFilter(e.Right, param, ent)
		if !ok {
			return nil, false
		}
		if e.Op == query.OpOr {
			return func(c *model.Entity) bool { return a(c) || b(c) }, true
		}
		return func(c *model.Entity) bool { return a(c) && b(c) }, true
	case query.Unary:
		if e.Op != query.OpNot {
			return nil, false
		}
		a, ok := l.typeFilter(e.Operand, param, ent)
		if !ok {
			return nil, false
		}
		return func(c *model.Entity) bool { return !a(c) }, true
	}
	return nil, false
}
