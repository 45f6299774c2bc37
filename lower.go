package pgtranslate

import (
	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

// relation is a SELECT under construction and the element each of its rows
// stands for. The projection stays empty until the relation is finished,
// made distinct or wrapped; values are lifted into it as they are used.
type relation struct {
	sel      *sqlast.Select
	elem     value
	distinct bool
	paged    bool
	grouped  bool
	// flat is the fixed projection of a distinct relation.
	flat []flatColumn
}

type env struct {
	name   string
	v      value
	parent *env
}

func (e *env) lookup(name string) (value, bool) {
	for ; e != nil; e = e.parent {
		if e.name == name {
			return e.v, true
		}
	}
	return nil, false
}

type lowerer struct {
	t       *Translator
	aliases *aliasGenerator
	params  []Parameter
	env     *env
	// scope is the relation the current lambda is evaluated against; First
	// subqueries join laterally into it.
	scope *relation
	// err records the first failure of a deferred column read.
	err error
}

func newLowerer(t *Translator) *lowerer {
	return &lowerer{t: t, aliases: newAliasGenerator()}
}

func (l *lowerer) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *lowerer) node(n query.Node) (*relation, error) {
	switch n := n.(type) {
	case query.Query:
		return l.node(n.Root())
	case query.Source:
		return l.visitSource(n)
	case query.Filter:
		return l.visitFilter(n)
	case query.Project:
		return l.visitProject(n)
	case query.OfType:
		return l.visitOfType(n)
	case query.OrderBy:
		return l.visitOrderBy(n)
	case query.Page:
		return l.visitPage(n)
	case query.Distinct:
		return l.visitDistinct(n)
	case query.GroupBy:
		return l.visitGroupBy(n)
	case query.Join:
		return l.visitJoin(n)
	case query.SelectMany:
		return l.visitSelectMany(n)
	case query.SetOperation:
		return l.visitSetOperation(n)
	case nil:
		return nil, invalidf("missing query node")
	}
	return nil, invalidf("unsupported query node %T", n)
}

func (l *lowerer) entity(name string) (*model.Entity, error) {
	e, ok := l.t.model.Entity(name)
	if !ok {
		return nil, invalidf("unknown entity %q", name)
	}
	return e, nil
}

// apply evaluates lam with its parameters bound to args, against scope.
func (l *lowerer) apply(lam *query.Lambda, scope *relation, args ...value) (value, error) {
	if lam == nil {
		return nil, invalidf("missing lambda")
	}
	if len(lam.Params) != len(args) {
		return nil, invalidf("lambda %s takes %d parameters, got %d", query.Format(lam), len(lam.Params), len(args))
	}
	savedEnv, savedScope := l.env, l.scope
	defer func() { l.env, l.scope = savedEnv, savedScope }()
	for i, p := range lam.Params {
		l.env = &env{name: p, v: args[i], parent: l.env}
	}
	if scope != nil {
		l.scope = scope
	}
	return l.expr(lam.Body)
}

func (l *lowerer) applyScalar(lam *query.Lambda, scope *relation, args ...value) (*SQLValue, error) {
	v, err := l.apply(lam, scope, args...)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*SQLValue)
	if !ok {
		return nil, untranslatable(lam, "%s is not a scalar", v.describe())
	}
	return s, nil
}

func (l *lowerer) visitSource(n query.Source) (*relation, error) {
	if n.Of != nil {
		v, err := l.expr(n.Of)
		if err != nil {
			return nil, err
		}
		coll, ok := asCollection(v)
		if !ok {
			return nil, untranslatable(n.Of, "%s is not a collection", v.describe())
		}
		return l.collectionRelation(coll)
	}
	ent, err := l.entity(n.Entity)
	if err != nil {
		return nil, err
	}
	return l.entitySet(ent, concreteTypes(ent))
}

func (l *lowerer) visitFilter(n query.Filter) (*relation, error) {
	if rel, ok, err := l.prunedSource(n); ok || err != nil {
		return rel, err
	}
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.paged || rel.distinct {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	pred, err := l.applyScalar(n.Pred, rel, rel.elem)
	if err != nil {
		return nil, err
	}
	if rel.grouped {
		rel.sel.Having = and(rel.sel.Having, pred.Expr)
	} else {
		rel.sel.Where = and(rel.sel.Where, pred.Expr)
	}
	return rel, nil
}

func (l *lowerer) visitProject(n query.Project) (*relation, error) {
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.distinct {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	v, err := l.apply(n.Selector, rel, rel.elem)
	if err != nil {
		return nil, err
	}
	rel.elem = v
	return rel, nil
}

func (l *lowerer) visitOfType(n query.OfType) (*relation, error) {
	t, err := l.entity(n.Entity)
	if err != nil {
		return nil, err
	}
	if src, ok := sourceEntity(n.Input); ok {
		ent, err := l.entity(src)
		if err != nil {
			return nil, err
		}
		if t.Root() != ent.Root() {
			return nil, untranslatableNode(n, "%s is not in the hierarchy of %s", t.Name, ent.Name)
		}
		if t.IsA(ent) {
			return l.entitySet(t, concreteTypes(t))
		}
		// A supertype of the source narrows nothing.
		return l.entitySet(ent, concreteTypes(ent))
	}
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.paged || rel.distinct {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	ev, ok := rel.elem.(*entityValue)
	if !ok {
		return nil, untranslatableNode(n, "OfType over %s", rel.elem.describe())
	}
	if t.Root() != ev.ent.Root() {
		return nil, untranslatableNode(n, "%s is not in the hierarchy of %s", t.Name, ev.ent.Name)
	}
	if !t.IsA(ev.ent) {
		return rel, nil
	}
	rel.sel.Where = and(rel.sel.Where, l.typeIs(ev, t, false))
	narrowed := ev.narrowed(t)
	narrowed.scope = rel
	rel.elem = narrowed
	return rel, nil
}

func (l *lowerer) visitOrderBy(n query.OrderBy) (*relation, error) {
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.paged || rel.distinct {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	var orderings []sqlast.Ordering
	for _, k := range n.Keys {
		v, err := l.apply(k.Key, rel, rel.elem)
		if err != nil {
			return nil, err
		}
		exprs, err := l.sortExprs(v, k.Key)
		if err != nil {
			return nil, err
		}
		for _, e := range exprs {
			orderings = append(orderings, sqlast.Ordering{Expr: e, Desc: k.Desc})
		}
	}
	rel.sel.OrderBy = orderings
	return rel, nil
}

// sortExprs expands a sort key into scalar expressions: records by field,
// entities by key.
func (l *lowerer) sortExprs(v value, origin query.Expr) ([]sqlast.Expr, error) {
	switch v := v.(type) {
	case *SQLValue:
		return []sqlast.Expr{v.Expr}, nil
	case *entityValue:
		var out []sqlast.Expr
		for _, c := range v.keyColumns() {
			out = append(out, v.col(c))
		}
		return out, nil
	case *recordValue:
		var out []sqlast.Expr
		for _, f := range v.fields {
			exprs, err := l.sortExprs(f.v, origin)
			if err != nil {
				return nil, err
			}
			out = append(out, exprs...)
		}
		return out, nil
	}
	return nil, untranslatable(origin, "cannot order by %s", v.describe())
}

func (l *lowerer) visitPage(n query.Page) (*relation, error) {
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if (n.Take != nil && rel.sel.Limit != nil) || (n.Skip != nil && (rel.sel.Offset != nil || rel.sel.Limit != nil)) {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	if n.Skip != nil {
		v, err := l.scalarHint(n.Skip, l.t.types.int32)
		if err != nil {
			return nil, err
		}
		rel.sel.Offset = v.Expr
	}
	if n.Take != nil {
		v, err := l.scalarHint(n.Take, l.t.types.int32)
		if err != nil {
			return nil, err
		}
		rel.sel.Limit = v.Expr
	}
	rel.paged = true
	return rel, nil
}

func (l *lowerer) visitDistinct(n query.Distinct) (*relation, error) {
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.paged {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	if rel.distinct {
		return rel, nil
	}
	cols, err := l.flatten(rel.elem, nil, false)
	if err != nil {
		return nil, err
	}
	rel.sel.OrderBy = nil
	rel.sel.Columns = nil
	rel.flat = l.project(rel.sel, cols)
	rel.sel.Distinct = true
	rel.distinct = true
	return rel, nil
}

func (l *lowerer) visitGroupBy(n query.GroupBy) (*relation, error) {
	rel, err := l.node(n.Input)
	if err != nil {
		return nil, err
	}
	if rel.paged || rel.distinct || rel.grouped {
		if rel, err = l.wrap(rel); err != nil {
			return nil, err
		}
	}
	key, err := l.apply(n.Key, rel, rel.elem)
	if err != nil {
		return nil, err
	}
	cols, err := l.flatten(key, nil, false)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		rel.sel.GroupBy = append(rel.sel.GroupBy, c.expr)
	}
	rel.sel.OrderBy = nil
	rel.elem = &groupingValue{key: key, elem: rel.elem}
	rel.grouped = true
	return rel, nil
}

// wrap turns r into a derived table and returns a relation selecting from
// it. Orderings move outward; the inner ordering is kept only when it
// decides which rows a LIMIT or OFFSET keeps.
func (l *lowerer) wrap(r *relation) (*relation, error) {
	alias := l.aliases.next(hintOf(r.sel))
	d := &derived{l: l, sel: r.sel, alias: alias, frozen: r.distinct}
	out := &relation{sel: &sqlast.Select{From: sqlast.Derived{Query: r.sel, Alias: alias}}}
	for _, o := range r.sel.OrderBy {
		out.sel.OrderBy = append(out.sel.OrderBy, sqlast.Ordering{Expr: d.lift(o.Expr, nameOf(o.Expr, "")), Desc: o.Desc, Nulls: o.Nulls})
	}
	if !r.paged {
		r.sel.OrderBy = nil
	}
	elem, err := l.lift(r.elem, d, "", out)
	if err != nil {
		return nil, err
	}
	out.elem = elem
	return out, nil
}

// hintOf is the alias hint for a derived table over sel.
func hintOf(sel *sqlast.Select) string {
	if sel.From != nil {
		return sel.From.TableAlias()
	}
	return "s"
}

// flatColumn is one scalar of a flattened value.
type flatColumn struct {
	name    string
	path    []string
	expr    sqlast.Expr
	mapping *typemap.Mapping
	entity  string
	disc    bool
}

// flatten expands v into its scalar columns. Owned values on their own are
// rejected when tracking and owned is set.
func (l *lowerer) flatten(v value, path []string, owned bool) ([]flatColumn, error) {
	switch v := v.(type) {
	case *SQLValue:
		name := nameOf(v.Expr, "Value")
		if len(path) > 0 {
			name = path[len(path)-1]
		}
		return []flatColumn{{name: name, path: path, expr: v.Expr, mapping: v.Mapping}}, nil

	case *entityValue:
		var out []flatColumn
		for _, c := range v.columns() {
			out = append(out, flatColumn{
				name:    c.Name,
				path:    clonePath(path, columnPath(c)...),
				expr:    v.col(c),
				mapping: c.Mapping,
				entity:  v.ent.Name,
			})
		}
		if len(v.types) > 1 {
			out = append(out, flatColumn{
				name:    v.discriminatorName(),
				path:    clonePath(path, v.discriminatorName()),
				expr:    v.disc(),
				mapping: l.discriminatorMapping(v),
				entity:  v.ent.Name,
				disc:    true,
			})
		}
		return out, nil

	case *ownedValue:
		if owned && l.t.tracking {
			return nil, ErrOwnedWithoutOwner
		}
		return l.flattenOwned(v, path)

	case *recordValue:
		var out []flatColumn
		for _, f := range v.fields {
			cols, err := l.flatten(f.v, clonePath(path, f.name), owned)
			if err != nil {
				return nil, err
			}
			out = append(out, cols...)
		}
		return out, nil
	}
	return nil, &TranslationError{Expr: v.describe(), Reason: "cannot be projected"}
}

func (l *lowerer) flattenOwned(v *ownedValue, path []string) ([]flatColumn, error) {
	o := v.o
	if v.doc != nil {
		return []flatColumn{{
			name:    o.Name,
			path:    path,
			expr:    jsonObject(v.doc(), v.path),
			mapping: l.documentMapping(o),
		}}, nil
	}
	var out []flatColumn
	for _, p := range o.Properties {
		out = append(out, flatColumn{
			name:    ownedColumnName(o, p),
			path:    clonePath(path, p.Name),
			expr:    l.ownedProperty(v, p),
			mapping: p.Mapping(),
		})
	}
	for _, n := range o.Owned {
		if n.Collection {
			continue
		}
		cols, err := l.flattenOwned(l.nestedOwned(v, n), clonePath(path, n.Name))
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}

// project appends cols to sel under unique names and returns them renamed.
func (l *lowerer) project(sel *sqlast.Select, cols []flatColumn) []flatColumn {
	out := make([]flatColumn, len(cols))
	for i, c := range cols {
		c.name = addColumn(sel, c.expr, c.name)
		out[i] = c
	}
	return out
}

// finish projects the relation's element and describes the result shape.
func (l *lowerer) finish(r *relation) (*sqlast.Select, ResultShape, error) {
	cols := r.flat
	if !r.distinct {
		flat, err := l.flatten(r.elem, nil, true)
		if err != nil {
			return nil, ResultShape{}, err
		}
		r.sel.Columns = nil
		cols = l.project(r.sel, flat)
	}
	shape := ResultShape{Slots: make([]Slot, len(cols))}
	for i, c := range cols {
		shape.Slots[i] = Slot{Name: c.name, Path: c.path, Mapping: c.mapping, Entity: c.entity, Discriminator: c.disc}
	}
	return r.sel, shape, nil
}

// columnPath is the member path of an entity column.
func columnPath(c *model.Column) []string {
	switch {
	case c.Owned != nil && c.Property != nil:
		return clonePath(c.Owned.Path(), c.Property.Name)
	case c.Owned != nil:
		return c.Owned.Path()
	case c.Property != nil:
		return []string{c.Property.Name}
	}
	return []string{c.Name}
}

// nameOf keeps a column's own name, otherwise fallback.
func nameOf(e sqlast.Expr, fallback string) string {
	if c, ok := e.(sqlast.Column); ok {
		return c.Name
	}
	if fallback == "" {
		return "c"
	}
	return fallback
}

// sourceEntity reports the entity of a bare entity-set source.
func sourceEntity(n query.Node) (string, bool) {
	if q, ok := n.(query.Query); ok {
		n = q.Root()
	}
	if s, ok := n.(query.Source); ok && s.Of == nil {
		return s.Entity, true
	}
	return "", false
}

func asCollection(v value) (*collectionValue, bool) {
	switch v := v.(type) {
	case *collectionValue:
		return v, true
	case *SQLValue:
		if v.Mapping != nil && v.Mapping.Kind == typemap.KindArray {
			return &collectionValue{array: v}, true
		}
	}
	return nil, false
}

// and conjoins predicates, folding constant TRUE and FALSE.
func and(a, b sqlast.Expr) sqlast.Expr {
	switch {
	case a == nil || a == sqlast.True:
		return b
	case b == nil || b == sqlast.True:
		return a
	case a == sqlast.False || b == sqlast.False:
		return sqlast.False
	}
	return sqlast.And(a, b)
}

// or disjoins predicates, folding constant TRUE and FALSE.
func or(a, b sqlast.Expr) sqlast.Expr {
	switch {
	case a == sqlast.True || b == sqlast.True:
		return sqlast.True
	case a == nil || a == sqlast.False:
		return b
	case b == nil || b == sqlast.False:
		return a
	}
	return sqlast.Or(a, b)
}
