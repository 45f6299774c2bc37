package pgtranslate

import (
	"reflect"
	"regexp"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

var paramName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (l *lowerer) expr(e query.Expr) (value, error) {
	return l.exprHint(e, nil)
}

// exprHint lowers e. hint is the mapping of the value e is compared with or
// assigned to; literals and parameters take it on when compatible.
func (l *lowerer) exprHint(e query.Expr, hint *typemap.Mapping) (value, error) {
	switch e := e.(type) {
	case query.Var:
		v, ok := l.env.lookup(e.Name)
		if !ok {
			return nil, invalidf("unbound variable %q", e.Name)
		}
		return v, nil
	case query.Member:
		return l.visitMember(e)
	case query.Const:
		return l.visitConst(e, hint)
	case query.Param:
		return l.visitParam(e, hint)
	case query.Binary:
		return l.visitBinary(e)
	case query.Unary:
		return l.visitUnary(e)
	case query.Call:
		return l.visitCall(e)
	case query.TypeIs:
		return l.visitTypeIs(e)
	case query.Conditional:
		return l.visitConditional(e, hint)
	case *query.Lambda:
		return nil, untranslatable(e, "lambda outside of a query operator")
	case query.Subquery:
		return l.visitSubquery(e)
	case query.In:
		return l.visitIn(e)
	case query.Cast:
		return l.visitCast(e)
	case query.New:
		return l.visitNew(e)
	case nil:
		return nil, invalidf("missing expression")
	}
	return nil, invalidf("unsupported expression %T", e)
}

func (l *lowerer) scalar(e query.Expr) (*SQLValue, error) {
	return l.scalarHint(e, nil)
}

func (l *lowerer) scalarHint(e query.Expr, hint *typemap.Mapping) (*SQLValue, error) {
	v, err := l.exprHint(e, hint)
	if err != nil {
		return nil, err
	}
	s, ok := v.(*SQLValue)
	if !ok {
		return nil, untranslatable(e, "%s is not a scalar", v.describe())
	}
	return s, nil
}

// store resolves a store type name, or nil.
func (l *lowerer) store(storeType string) *typemap.Mapping {
	m, err := l.t.registry.FindMapping(typemap.Request{StoreType: storeType})
	if err != nil {
		return nil
	}
	return m
}

func (l *lowerer) visitConst(c query.Const, hint *typemap.Mapping) (*SQLValue, error) {
	rt := c.Type
	if rt == nil && c.Value != nil {
		rt = reflect.TypeOf(c.Value)
	}
	own := l.t.mappingOf(rt)
	if c.Value == nil {
		if hint != nil {
			return &SQLValue{Expr: sqlast.Null, Mapping: hint}, nil
		}
		return &SQLValue{Expr: sqlast.Null, Mapping: own}, nil
	}
	m := own
	if hint != nil && (own == nil || own.Kind == hint.Kind || sameTemporal(own, hint)) {
		m = hint
	}
	if m == nil {
		return nil, untranslatable(c, "no store type for %T", c.Value)
	}
	lit, err := m.Literal(c.Value)
	if err != nil && own != nil && m != own {
		m = own
		lit, err = own.Literal(c.Value)
	}
	if err != nil {
		return nil, untranslatable(c, "%v", err)
	}
	return &SQLValue{Expr: sqlast.Literal(lit), Mapping: m}, nil
}

// visitParam binds a named parameter. Store types the driver cannot infer
// from the Go value get an explicit cast.
func (l *lowerer) visitParam(p query.Param, hint *typemap.Mapping) (*SQLValue, error) {
	if !paramName.MatchString(p.Name) {
		return nil, invalidf("invalid parameter name %q", p.Name)
	}
	m := hint
	if own := l.t.mappingOf(p.Type); own != nil && (hint == nil || hint.Kind != own.Kind) {
		m = own
	}
	known := false
	for _, existing := range l.params {
		if existing.Name == p.Name {
			known = true
			break
		}
	}
	if !known {
		l.params = append(l.params, Parameter{Name: p.Name, Mapping: m})
	}
	var e sqlast.Expr = sqlast.Param{Name: p.Name}
	if m != nil {
		switch m.Kind {
		case typemap.KindRange, typemap.KindMultirange, typemap.KindJSON, typemap.KindHstore, typemap.KindEnum, typemap.KindComposite:
			e = sqlast.Cast{Expr: e, Type: m.StoreType}
		}
	}
	return &SQLValue{Expr: e, Mapping: m}, nil
}

func (l *lowerer) visitMember(m query.Member) (value, error) {
	target, err := l.expr(m.Target)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *entityValue:
		return l.entityMember(t, m)
	case *ownedValue:
		if v, ok := l.ownedMember(t, m.Name); ok {
			return v, nil
		}
		return nil, invalidf("owned type %s has no member %q", t.o.TypeName(), m.Name)
	case *recordValue:
		if v, ok := t.field(m.Name); ok {
			return v, nil
		}
		return nil, invalidf("record has no field %q", m.Name)
	case *groupingValue:
		if m.Name == "Key" {
			return t.key, nil
		}
		return nil, untranslatable(m, "grouping member %s", m.Name)
	case *collectionValue:
		switch m.Name {
		case "Count", "Length":
			if t.array != nil {
				return l.scalarMember(t.array, m)
			}
			return l.collectionCall(t, query.Call{Method: "Count", Target: m.Target})
		}
		return nil, untranslatable(m, "member %s of %s", m.Name, t.describe())
	case *SQLValue:
		return l.scalarMember(t, m)
	}
	return nil, untranslatable(m, "member of %s", target.describe())
}

func (l *lowerer) entityMember(ev *entityValue, m query.Member) (value, error) {
	if p, ok := ev.property(m.Name); ok {
		c, ok := ev.propertyColumn(p)
		if !ok {
			return nil, invalidf("%s.%s has no column", ev.ent.Name, p.Name)
		}
		return &SQLValue{Expr: ev.col(c), Mapping: p.Mapping()}, nil
	}
	if n, ok := ev.navigation(m.Name); ok {
		if n.Collection {
			return &collectionValue{parent: ev, nav: n}, nil
		}
		return l.reference(ev, n, m)
	}
	if o, ok := ev.owned(m.Name); ok {
		return l.ownedOf(ev, o), nil
	}
	return nil, invalidf("%s has no member %q", ev.ent.Name, m.Name)
}

// isLiteral reports whether e is a constant or parameter, which take their
// store type from the other operand.
func isLiteral(e query.Expr) bool {
	switch e.(type) {
	case query.Const, query.Param:
		return true
	}
	return false
}

func isNullConst(e query.Expr) bool {
	c, ok := e.(query.Const)
	return ok && c.Value == nil
}

// operands lowers both sides of a binary operator, the literal side last.
func (l *lowerer) operands(a, b query.Expr) (*SQLValue, *SQLValue, error) {
	if isLiteral(a) && !isLiteral(b) {
		y, err := l.scalar(b)
		if err != nil {
			return nil, nil, err
		}
		x, err := l.scalarHint(a, y.Mapping)
		return x, y, err
	}
	x, err := l.scalar(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := l.scalarHint(b, x.Mapping)
	return x, y, err
}

func (l *lowerer) boolean(e sqlast.Expr) *SQLValue {
	return &SQLValue{Expr: e, Mapping: l.t.types.boolean}
}

func (l *lowerer) visitBinary(e query.Binary) (value, error) {
	switch e.Op {
	case query.OpAnd, query.OpOr:
		x, err := l.scalar(e.Left)
		if err != nil {
			return nil, err
		}
		y, err := l.scalar(e.Right)
		if err != nil {
			return nil, err
		}
		if e.Op == query.OpAnd {
			return l.boolean(and(x.Expr, y.Expr)), nil
		}
		return l.boolean(or(x.Expr, y.Expr)), nil
	case query.OpEq, query.OpNe:
		return l.equality(e)
	case query.OpLt, query.OpLe, query.OpGt, query.OpGe:
		x, y, err := l.operands(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Bin(x.Expr, comparisonOps[e.Op], y.Expr)), nil
	case query.OpCoalesce:
		x, y, err := l.operands(e.Left, e.Right)
		if err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Call("COALESCE", x.Expr, y.Expr), Mapping: firstMapping(x, y)}, nil
	}
	return l.arithmetic(e)
}

var comparisonOps = map[query.BinaryOp]string{
	query.OpEq: "=", query.OpNe: "<>",
	query.OpLt: "<", query.OpLe: "<=", query.OpGt: ">", query.OpGe: ">=",
}

func firstMapping(vs ...*SQLValue) *typemap.Mapping {
	for _, v := range vs {
		if v.Mapping != nil {
			return v.Mapping
		}
	}
	return nil
}

// equality compares with relational null semantics: a comparison with a
// null operand is unknown, except against a null literal, which becomes
// IS [NOT] NULL.
func (l *lowerer) equality(e query.Binary) (value, error) {
	ne := e.Op == query.OpNe
	if isNullConst(e.Left) || isNullConst(e.Right) {
		other := e.Left
		if isNullConst(e.Left) {
			other = e.Right
		}
		if isNullConst(other) {
			return l.boolean(sqlast.Literal(boolLiteral(!ne))), nil
		}
		v, err := l.expr(other)
		if err != nil {
			return nil, err
		}
		return l.isNull(v, ne, other)
	}
	var x, y *SQLValue
	if !isLiteral(e.Left) && !isLiteral(e.Right) {
		a, err := l.expr(e.Left)
		if err != nil {
			return nil, err
		}
		b, err := l.expr(e.Right)
		if err != nil {
			return nil, err
		}
		ae, aok := a.(*entityValue)
		be, bok := b.(*entityValue)
		if aok && bok {
			return l.entityEquality(ae, be, ne, e)
		}
		var xok, yok bool
		x, xok = a.(*SQLValue)
		y, yok = b.(*SQLValue)
		if !xok || !yok {
			return nil, untranslatable(e, "comparison of %s and %s", a.describe(), b.describe())
		}
	} else {
		var err error
		if x, y, err = l.operands(e.Left, e.Right); err != nil {
			return nil, err
		}
	}
	if x.Mapping != nil && x.Mapping.Kind == typemap.KindBool || y.Mapping != nil && y.Mapping.Kind == typemap.KindBool {
		switch {
		case y.Expr == sqlast.True || y.Expr == sqlast.False:
			return l.boolean(truth(x.Expr, (y.Expr == sqlast.True) != ne)), nil
		case x.Expr == sqlast.True || x.Expr == sqlast.False:
			return l.boolean(truth(y.Expr, (x.Expr == sqlast.True) != ne)), nil
		}
	}
	return l.boolean(sqlast.Bin(x.Expr, comparisonOps[e.Op], y.Expr)), nil
}

func boolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// truth is e when want is true, otherwise NOT e.
func truth(e sqlast.Expr, want bool) sqlast.Expr {
	if want {
		return e
	}
	return negate(e)
}

// negate folds constants and double negation.
func negate(e sqlast.Expr) sqlast.Expr {
	switch e {
	case sqlast.True:
		return sqlast.False
	case sqlast.False:
		return sqlast.True
	}
	switch n := e.(type) {
	case sqlast.Not:
		return n.Expr
	case sqlast.IsNull:
		return sqlast.IsNull{Expr: n.Expr, Not: !n.Not}
	case sqlast.Exists:
		return sqlast.Exists{Query: n.Query, Not: !n.Not}
	}
	return sqlast.Not{Expr: e}
}

func (l *lowerer) isNull(v value, not bool, origin query.Expr) (value, error) {
	switch v := v.(type) {
	case *SQLValue:
		return l.boolean(sqlast.IsNull{Expr: v.Expr, Not: not}), nil
	case *entityValue:
		keys := v.keyColumns()
		if len(keys) == 0 {
			return nil, untranslatable(origin, "null test of keyless %s", v.ent.Name)
		}
		return l.boolean(sqlast.IsNull{Expr: v.col(keys[0]), Not: not}), nil
	case *ownedValue:
		return l.boolean(l.ownedIsNull(v, not)), nil
	}
	return nil, untranslatable(origin, "null test of %s", v.describe())
}

// entityEquality compares entities by key. Rows of different TPC tables
// may share key values, so such sets cannot be compared by key.
func (l *lowerer) entityEquality(a, b *entityValue, ne bool, origin query.Expr) (value, error) {
	if a.ent.Root() != b.ent.Root() {
		return l.boolean(sqlast.Literal(boolLiteral(ne))), nil
	}
	for _, ev := range []*entityValue{a, b} {
		if ev.shape.Strategy == model.TPC && len(ev.types) > 1 {
			return nil, untranslatable(origin, "key comparison across the tables of %s", ev.ent.Name)
		}
	}
	ak, bk := a.keyColumns(), b.keyColumns()
	if len(ak) == 0 || len(ak) != len(bk) {
		return nil, untranslatable(origin, "comparison of keyless %s", a.ent.Name)
	}
	var eq sqlast.Expr
	for i := range ak {
		eq = and(eq, sqlast.Bin(a.col(ak[i]), "=", b.col(bk[i])))
	}
	return l.boolean(truth(eq, !ne)), nil
}

func (l *lowerer) arithmetic(e query.Binary) (value, error) {
	x, y, err := l.operands(e.Left, e.Right)
	if err != nil {
		return nil, err
	}
	xk, yk := kindOf(x), kindOf(y)
	switch e.Op {
	case query.OpAdd:
		switch {
		case xk == typemap.KindText || yk == typemap.KindText:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "||", y.Expr), Mapping: l.t.types.text}, nil
		case xk == typemap.KindDate && yk == typemap.KindInterval:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "+", y.Expr), Mapping: l.store("timestamp without time zone")}, nil
		case xk.IsTemporal() && yk == typemap.KindInterval:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "+", y.Expr), Mapping: x.Mapping}, nil
		}
	case query.OpSub:
		switch {
		case xk == typemap.KindDate && yk == typemap.KindDate:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "-", y.Expr), Mapping: l.t.types.int32}, nil
		case (xk == typemap.KindTimestamp || xk == typemap.KindTimestampTz) && xk == yk:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "-", y.Expr), Mapping: l.t.types.interval}, nil
		case xk == typemap.KindDate && yk == typemap.KindInterval:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "-", y.Expr), Mapping: l.store("timestamp without time zone")}, nil
		case xk.IsTemporal() && yk == typemap.KindInterval:
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "-", y.Expr), Mapping: x.Mapping}, nil
		}
	}
	op := map[query.BinaryOp]string{query.OpAdd: "+", query.OpSub: "-", query.OpMul: "*", query.OpDiv: "/", query.OpMod: "%"}[e.Op]
	if op == "" {
		return nil, untranslatable(e, "operator %s", e.Op)
	}
	for _, k := range []typemap.Kind{xk, yk} {
		if k != typemap.KindUnknown && !k.IsNumeric() && k != typemap.KindInterval {
			return nil, untranslatable(e, "operator %s on %s", e.Op, k)
		}
	}
	return &SQLValue{Expr: sqlast.Bin(x.Expr, op, y.Expr), Mapping: widest(x, y)}, nil
}

// sameTemporal reports whether a time.Time constant may take the store type
// of the column it is compared with: date, timestamp or timestamptz.
func sameTemporal(own, hint *typemap.Mapping) bool {
	return own.Type == hint.Type && own.Kind.IsTemporal() && hint.Kind.IsTemporal()
}

func kindOf(v *SQLValue) typemap.Kind {
	if v.Mapping == nil {
		return typemap.KindUnknown
	}
	return v.Mapping.Kind
}

// widest picks the result mapping of numeric arithmetic.
func widest(x, y *SQLValue) *typemap.Mapping {
	rank := func(v *SQLValue) int {
		switch kindOf(v) {
		case typemap.KindFloat:
			return 3
		case typemap.KindNumeric:
			return 2
		case typemap.KindInt:
			return 1
		}
		return 0
	}
	if rank(y) > rank(x) {
		return y.Mapping
	}
	return firstMapping(x, y)
}

func (l *lowerer) visitUnary(e query.Unary) (value, error) {
	x, err := l.scalar(e.Operand)
	if err != nil {
		return nil, err
	}
	if e.Op == query.OpNot {
		return l.boolean(negate(x.Expr)), nil
	}
	return &SQLValue{Expr: sqlast.Neg{Expr: x.Expr}, Mapping: x.Mapping}, nil
}

func (l *lowerer) visitTypeIs(e query.TypeIs) (value, error) {
	v, err := l.expr(e.Operand)
	if err != nil {
		return nil, err
	}
	ev, ok := v.(*entityValue)
	if !ok {
		return nil, untranslatable(e, "type test of %s", v.describe())
	}
	t, err := l.entity(e.Entity)
	if err != nil {
		return nil, err
	}
	if t.Root() != ev.ent.Root() {
		return l.boolean(sqlast.False), nil
	}
	return l.boolean(l.typeIs(ev, t, e.Exact)), nil
}

func (l *lowerer) visitConditional(e query.Conditional, hint *typemap.Mapping) (value, error) {
	test, err := l.scalar(e.Test)
	if err != nil {
		return nil, err
	}
	var then, els *SQLValue
	if isLiteral(e.Then) && !isLiteral(e.Else) {
		if els, err = l.scalarHint(e.Else, hint); err != nil {
			return nil, err
		}
		if then, err = l.scalarHint(e.Then, els.Mapping); err != nil {
			return nil, err
		}
	} else {
		if then, err = l.scalarHint(e.Then, hint); err != nil {
			return nil, err
		}
		h := then.Mapping
		if h == nil {
			h = hint
		}
		if els, err = l.scalarHint(e.Else, h); err != nil {
			return nil, err
		}
	}
	switch test.Expr {
	case sqlast.True:
		return then, nil
	case sqlast.False:
		return els, nil
	}
	return &SQLValue{
		Expr:    sqlast.Case{Whens: []sqlast.When{{Cond: test.Expr, Result: then.Expr}}, Else: els.Expr},
		Mapping: firstMapping(then, els),
	}, nil
}

func (l *lowerer) visitIn(e query.In) (value, error) {
	if e.Collection != nil {
		arr, err := l.scalar(e.Collection)
		if err != nil {
			return nil, err
		}
		if kindOf(arr) != typemap.KindArray {
			return nil, untranslatable(e, "membership in %s", arr.describe())
		}
		v, err := l.scalarHint(e.Value, arr.Mapping.Element)
		if err != nil {
			return nil, err
		}
		return l.boolean(sqlast.AnyArray{Left: v.Expr, Op: "=", Array: arr.Expr}), nil
	}
	if len(e.List) == 0 {
		return l.boolean(sqlast.False), nil
	}
	v, err := l.scalar(e.Value)
	if err != nil {
		return nil, err
	}
	var list []sqlast.Expr
	hasNull := false
	for _, item := range e.List {
		if isNullConst(item) {
			hasNull = true
			continue
		}
		x, err := l.scalarHint(item, v.Mapping)
		if err != nil {
			return nil, err
		}
		list = append(list, x.Expr)
	}
	var out sqlast.Expr
	switch len(list) {
	case 0:
	case 1:
		out = sqlast.Bin(v.Expr, "=", list[0])
	default:
		out = sqlast.In{Expr: v.Expr, List: list}
	}
	if hasNull {
		out = or(out, sqlast.IsNull{Expr: v.Expr})
	}
	return l.boolean(out), nil
}

func (l *lowerer) visitCast(e query.Cast) (value, error) {
	m := l.t.mappingOf(e.Type)
	if m == nil {
		return nil, untranslatable(e, "no store type for %v", e.Type)
	}
	x, err := l.scalarHint(e.Operand, m)
	if err != nil {
		return nil, err
	}
	if x.Mapping != nil && x.Mapping.StoreType == m.StoreType {
		return &SQLValue{Expr: x.Expr, Mapping: m}, nil
	}
	return &SQLValue{Expr: sqlast.Cast{Expr: x.Expr, Type: m.StoreType}, Mapping: m}, nil
}

func (l *lowerer) visitNew(e query.New) (value, error) {
	rec := &recordValue{}
	for _, f := range e.Fields {
		if _, dup := rec.field(f.Name); dup {
			return nil, invalidf("duplicate record field %q", f.Name)
		}
		v, err := l.expr(f.Value)
		if err != nil {
			return nil, err
		}
		rec.fields = append(rec.fields, field{name: f.Name, v: v})
	}
	return rec, nil
}
