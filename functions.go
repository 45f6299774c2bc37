package pgtranslate

import (
	"strings"

	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

func (l *lowerer) visitCall(c query.Call) (value, error) {
	if c.Target == nil {
		return l.staticCall(c)
	}
	target, err := l.expr(c.Target)
	if err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *groupingValue:
		return l.groupingCall(t, c)
	case *collectionValue:
		if t.array != nil && !hasLambda(c) {
			return l.methodCall(t.array, c)
		}
		return l.collectionCall(t, c)
	case *SQLValue:
		if kindOf(t) == typemap.KindArray && (hasLambda(c) || c.Method == "All") {
			return l.collectionCall(&collectionValue{array: t}, c)
		}
		return l.methodCall(t, c)
	}
	return nil, untranslatable(c, "method %s of %s", c.Method, target.describe())
}

func hasLambda(c query.Call) bool {
	for _, a := range c.Args {
		if _, ok := a.(*query.Lambda); ok {
			return true
		}
	}
	return false
}

// argHint is the mapping arguments of a method on target are lowered
// against: the element type of containers, otherwise the target's own.
func argHint(target *SQLValue) *typemap.Mapping {
	if target == nil || target.Mapping == nil {
		return nil
	}
	switch target.Mapping.Kind {
	case typemap.KindArray, typemap.KindRange, typemap.KindMultirange:
		return target.Mapping.Element
	}
	return target.Mapping
}

func (l *lowerer) arguments(c query.Call, hint *typemap.Mapping) ([]*SQLValue, error) {
	args := make([]*SQLValue, len(c.Args))
	for i, a := range c.Args {
		if _, ok := a.(*query.Lambda); ok {
			return nil, untranslatable(c, "lambda argument to %s", c.Method)
		}
		v, err := l.scalarHint(a, hint)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func arity(c query.Call, args []*SQLValue, counts ...int) error {
	for _, n := range counts {
		if len(args) == n {
			return nil
		}
	}
	return invalidf("%s called with %d arguments", c.Method, len(args))
}

func exprsOf(vs []*SQLValue) []sqlast.Expr {
	out := make([]sqlast.Expr, len(vs))
	for i, v := range vs {
		out[i] = v.Expr
	}
	return out
}

// custom consults the registered method translators.
func (l *lowerer) custom(method string, target *SQLValue, args []*SQLValue) (*SQLValue, error) {
	for _, f := range l.t.functions {
		v, err := f.TranslateMethod(method, target, args)
		if err != nil || v != nil {
			return v, err
		}
	}
	return nil, nil
}

func (l *lowerer) methodCall(target *SQLValue, c query.Call) (value, error) {
	args, err := l.arguments(c, argHint(target))
	if err != nil {
		return nil, err
	}
	if v, err := l.custom(c.Method, target, args); err != nil || v != nil {
		return v, err
	}
	var v *SQLValue
	switch kindOf(target) {
	case typemap.KindText:
		v, err = l.stringMethod(target, c, args)
	case typemap.KindTimestamp, typemap.KindTimestampTz, typemap.KindDate:
		v, err = l.timestampMethod(target, c, args)
	case typemap.KindRange, typemap.KindMultirange:
		v, err = l.rangeMethod(target, c, args)
	case typemap.KindArray:
		v, err = l.arrayMethod(target, c, args)
	case typemap.KindJSON:
		v, err = l.jsonMethod(target, c, args)
	case typemap.KindNetwork:
		v, err = l.networkMethod(target, c, args)
	case typemap.KindSpatial:
		v, err = l.spatialMethod(target, c, args)
	case typemap.KindGeometric:
		if c.Method == "Distance" && len(args) == 1 {
			v = &SQLValue{Expr: sqlast.Bin(target.Expr, "<->", args[0].Expr), Mapping: l.t.types.float64}
		}
	}
	if err != nil {
		return nil, err
	}
	if v == nil && c.Method == "ToString" && len(args) == 0 {
		v = &SQLValue{Expr: sqlast.Cast{Expr: target.Expr, Type: "text"}, Mapping: l.t.types.text}
	}
	if v == nil {
		return nil, untranslatable(c, "method %s of %s", c.Method, target.describe())
	}
	return v, nil
}

// scalarMember translates computed members of scalars such as string
// Length, date parts and range bounds.
func (l *lowerer) scalarMember(x *SQLValue, m query.Member) (value, error) {
	if v, err := l.custom(m.Name, x, nil); err != nil || v != nil {
		return v, err
	}
	switch m.Name {
	case "HasValue":
		return l.boolean(sqlast.IsNull{Expr: x.Expr, Not: true}), nil
	case "Value":
		return x, nil
	}
	var v *SQLValue
	switch kindOf(x) {
	case typemap.KindText:
		if m.Name == "Length" {
			v = &SQLValue{Expr: intCast(sqlast.Call("length", x.Expr)), Mapping: l.t.types.int32}
		}
	case typemap.KindTimestamp, typemap.KindTimestampTz, typemap.KindDate, typemap.KindTime:
		v = l.timestampMember(x, m.Name)
	case typemap.KindInterval:
		v = l.intervalMember(x, m.Name)
	case typemap.KindRange, typemap.KindMultirange:
		v = l.rangeMember(x, m.Name)
	case typemap.KindArray:
		if m.Name == "Length" || m.Name == "Count" {
			v = &SQLValue{Expr: sqlast.Call("cardinality", x.Expr), Mapping: l.t.types.int32}
		}
	}
	if v == nil {
		return nil, untranslatable(m, "member %s of %s", m.Name, x.describe())
	}
	return v, nil
}

func intCast(e sqlast.Expr) sqlast.Expr {
	return sqlast.Cast{Expr: e, Type: "int"}
}

func plusOne(e sqlast.Expr) sqlast.Expr {
	return sqlast.Bin(e, "+", sqlast.Literal("1"))
}

// likeEscape escapes LIKE wildcards with the default backslash escape.
var likeEscape = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func constString(e query.Expr) (string, bool) {
	c, ok := e.(query.Const)
	if !ok {
		return "", false
	}
	s, ok := c.Value.(string)
	return s, ok
}

func (l *lowerer) stringMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	text := func(e sqlast.Expr) *SQLValue { return &SQLValue{Expr: e, Mapping: x.Mapping} }
	switch c.Method {
	case "ToUpper":
		return text(sqlast.Call("upper", x.Expr)), arity(c, args, 0)
	case "ToLower":
		return text(sqlast.Call("lower", x.Expr)), arity(c, args, 0)
	case "Trim", "TrimStart", "TrimEnd":
		name := map[string]string{"Trim": "btrim", "TrimStart": "ltrim", "TrimEnd": "rtrim"}[c.Method]
		return text(sqlast.Call(name, append([]sqlast.Expr{x.Expr}, exprsOf(args)...)...)), arity(c, args, 0, 1)
	case "Contains":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Bin(sqlast.Call("strpos", x.Expr, args[0].Expr), ">", sqlast.Literal("0"))), nil
	case "StartsWith", "EndsWith":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		if s, ok := constString(c.Args[0]); ok {
			pattern := likeEscape.Replace(s) + "%"
			if c.Method == "EndsWith" {
				pattern = "%" + likeEscape.Replace(s)
			}
			return l.boolean(sqlast.Bin(x.Expr, "LIKE", sqlast.Literal(sqlast.QuoteString(pattern)))), nil
		}
		side := "left"
		if c.Method == "EndsWith" {
			side = "right"
		}
		return l.boolean(sqlast.Bin(sqlast.Call(side, x.Expr, sqlast.Call("length", args[0].Expr)), "=", args[0].Expr)), nil
	case "Substring":
		if err := arity(c, args, 1, 2); err != nil {
			return nil, err
		}
		call := []sqlast.Expr{x.Expr, plusOne(args[0].Expr)}
		if len(args) == 2 {
			call = append(call, args[1].Expr)
		}
		return text(sqlast.Call("substr", call...)), nil
	case "IndexOf":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Bin(sqlast.Call("strpos", x.Expr, args[0].Expr), "-", sqlast.Literal("1")), Mapping: l.t.types.int32}, nil
	case "Replace":
		if err := arity(c, args, 2); err != nil {
			return nil, err
		}
		return text(sqlast.Call("replace", x.Expr, args[0].Expr, args[1].Expr)), nil
	case "Matches", "IsMatch":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Bin(x.Expr, "~", args[0].Expr)), nil
	case "Like", "ILike":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Bin(x.Expr, strings.ToUpper(c.Method), args[0].Expr)), nil
	}
	return nil, nil
}

func (l *lowerer) arrayMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	switch c.Method {
	case "Contains":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.AnyArray{Left: args[0].Expr, Op: "=", Array: x.Expr}), nil
	case "ElementAt":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Index{Expr: x.Expr, Index: plusOne(args[0].Expr)}, Mapping: x.Mapping.Element}, nil
	case "Any":
		return l.boolean(sqlast.Bin(sqlast.Call("cardinality", x.Expr), ">", sqlast.Literal("0"))), arity(c, args, 0)
	case "Count", "Length":
		return &SQLValue{Expr: sqlast.Call("cardinality", x.Expr), Mapping: l.t.types.int32}, arity(c, args, 0)
	}
	return nil, nil
}

func (l *lowerer) jsonMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	switch c.Method {
	case "JsonContains", "JsonContained":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		op := "@>"
		if c.Method == "JsonContained" {
			op = "<@"
		}
		return l.boolean(sqlast.Bin(x.Expr, op, args[0].Expr)), nil
	case "JsonExists":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Bin(x.Expr, "?", args[0].Expr)), nil
	case "JsonExistAny", "JsonExistAll":
		if len(args) == 0 {
			return nil, invalidf("%s requires keys", c.Method)
		}
		op := "?|"
		if c.Method == "JsonExistAll" {
			op = "?&"
		}
		var keys sqlast.Expr
		if len(args) == 1 && kindOf(args[0]) == typemap.KindArray {
			keys = args[0].Expr
		} else {
			keys = sqlast.ArrayCtor{Elems: exprsOf(args)}
		}
		return l.boolean(sqlast.Bin(x.Expr, op, keys)), nil
	case "JsonTypeof":
		name := "jsonb_typeof"
		if x.Mapping.Base == "json" {
			name = "json_typeof"
		}
		return &SQLValue{Expr: sqlast.Call(name, x.Expr), Mapping: l.t.types.text}, arity(c, args, 0)
	}
	return nil, nil
}

var networkOps = map[string]string{
	"ContainedBy":           "<<",
	"ContainedByOrEqual":    "<<=",
	"Contains":              ">>",
	"ContainsOrEqual":       ">>=",
	"ContainsOrContainedBy": "&&",
}

func (l *lowerer) networkMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	if op, ok := networkOps[c.Method]; ok {
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Bin(x.Expr, op, args[0].Expr)), nil
	}
	switch c.Method {
	case "Family":
		return &SQLValue{Expr: sqlast.Call("family", x.Expr), Mapping: l.t.types.int32}, arity(c, args, 0)
	case "MaskLength":
		return &SQLValue{Expr: sqlast.Call("masklen", x.Expr), Mapping: l.t.types.int32}, arity(c, args, 0)
	}
	return nil, nil
}

var spatialPredicates = map[string]string{
	"Within":     "ST_Within",
	"Intersects": "ST_Intersects",
	"Contains":   "ST_Contains",
	"Covers":     "ST_Covers",
	"Touches":    "ST_Touches",
}

func (l *lowerer) spatialMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	if fn, ok := spatialPredicates[c.Method]; ok {
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Call(fn, x.Expr, args[0].Expr)), nil
	}
	switch c.Method {
	case "Distance":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Call("ST_Distance", x.Expr, args[0].Expr), Mapping: l.t.types.float64}, nil
	case "DistanceKnn":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Bin(x.Expr, "<->", args[0].Expr), Mapping: l.t.types.float64}, nil
	case "IsWithinDistance":
		if err := arity(c, args, 2); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Call("ST_DWithin", x.Expr, args[0].Expr, args[1].Expr)), nil
	}
	return nil, nil
}

// staticCall translates target-less functions: math, clock and pattern
// helpers.
func (l *lowerer) staticCall(c query.Call) (value, error) {
	// Literal arguments take the type of the first computed one.
	args := make([]*SQLValue, len(c.Args))
	var hint *typemap.Mapping
	for i, a := range c.Args {
		if isLiteral(a) {
			continue
		}
		v, err := l.scalar(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
		if hint == nil {
			hint = v.Mapping
		}
	}
	for i, a := range c.Args {
		if args[i] != nil {
			continue
		}
		v, err := l.scalarHint(a, hint)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if v, err := l.custom(c.Method, nil, args); err != nil || v != nil {
		return v, err
	}
	same := func(name string) (*SQLValue, error) {
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Call(name, args[0].Expr), Mapping: args[0].Mapping}, nil
	}
	switch c.Method {
	case "Abs":
		return same("abs")
	case "Ceiling":
		return same("ceiling")
	case "Floor":
		return same("floor")
	case "Truncate":
		return same("trunc")
	case "Round":
		if err := arity(c, args, 1, 2); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return &SQLValue{Expr: sqlast.Call("round", args[0].Expr), Mapping: args[0].Mapping}, nil
		}
		if kindOf(args[0]) == typemap.KindFloat {
			// round(x, n) is only defined for numeric.
			e := sqlast.Call("round", sqlast.Cast{Expr: args[0].Expr, Type: "numeric"}, args[1].Expr)
			return &SQLValue{Expr: sqlast.Cast{Expr: e, Type: args[0].Mapping.StoreType}, Mapping: args[0].Mapping}, nil
		}
		return &SQLValue{Expr: sqlast.Call("round", args[0].Expr, args[1].Expr), Mapping: args[0].Mapping}, nil
	case "Sqrt":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Call("sqrt", args[0].Expr), Mapping: l.t.types.float64}, nil
	case "Power":
		if err := arity(c, args, 2); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Call("power", args[0].Expr, args[1].Expr), Mapping: l.t.types.float64}, nil
	case "Sign":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: intCast(sqlast.Call("sign", args[0].Expr)), Mapping: l.t.types.int32}, nil
	case "Max", "Min":
		if len(args) < 2 {
			return nil, invalidf("%s takes at least two arguments", c.Method)
		}
		name := "GREATEST"
		if c.Method == "Min" {
			name = "LEAST"
		}
		return &SQLValue{Expr: sqlast.Call(name, exprsOf(args)...), Mapping: firstMapping(args...)}, nil
	case "UtcNow":
		return &SQLValue{Expr: sqlast.Call("now"), Mapping: l.store("timestamp with time zone")}, arity(c, args, 0)
	case "Now":
		return &SQLValue{
			Expr:    sqlast.Cast{Expr: sqlast.Call("now"), Type: "timestamp without time zone"},
			Mapping: l.store("timestamp without time zone"),
		}, arity(c, args, 0)
	case "Today":
		return &SQLValue{Expr: sqlast.Raw("CURRENT_DATE"), Mapping: l.store("date")}, arity(c, args, 0)
	case "IsNullOrEmpty":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return l.boolean(sqlast.Or(sqlast.IsNull{Expr: args[0].Expr}, sqlast.Bin(args[0].Expr, "=", sqlast.Literal("''")))), nil
	}
	return nil, untranslatable(c, "function %s", c.Method)
}
