// Package celfilter compiles CEL predicates written against a model entity
// into query expressions.
//
// The entity is declared as a CEL object type whose fields are its
// properties, navigations and owned types. Identifiers other than the entity
// variable and comprehension variables become query parameters, so
//
//	env, _ := celfilter.NewEnv(m, "Order", "o", cel.Variable("min", cel.DoubleType))
//	pred, _ := celfilter.Filter(env, "o", `o.Total > min && o.Customer.Name.startsWith("A")`)
//	q := query.From("Order").Where(pred)
//
// binds min per execution.
package celfilter

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqltypes"
)

// ErrUnsupported reports a checked expression with no query equivalent.
var ErrUnsupported = errors.New("celfilter: unsupported expression")

// NewEnv returns an environment declaring variable as an entity. opts
// typically declare parameters with cel.Variable.
func NewEnv(m *model.Model, entity, variable string, opts ...cel.EnvOption) (*cel.Env, error) {
	if _, ok := m.Entity(entity); !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	base := []cel.EnvOption{
		cel.CustomTypeProvider(&modelProvider{m: m}),
		sqltypes.Declarations(),
		cel.Variable(variable, cel.ObjectType(entity)),
	}
	return cel.NewEnv(append(base, opts...)...)
}

// Compile parses and checks src and converts it to an expression.
func Compile(env *cel.Env, src string) (query.Expr, error) {
	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	return Convert(ast)
}

// Filter compiles a boolean src into a predicate over variable.
func Filter(env *cel.Env, variable, src string) (*query.Lambda, error) {
	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q yields %s, not bool", src, ast.OutputType())
	}
	body, err := Convert(ast)
	if err != nil {
		return nil, err
	}
	return query.Fn(variable, body), nil
}

// Convert converts a checked CEL AST to a query expression.
func Convert(ast *cel.Ast) (query.Expr, error) {
	checkedExpr, err := cel.AstToCheckedExpr(ast)
	if err != nil {
		return nil, err
	}
	con := &converter{
		typeMap: checkedExpr.GetTypeMap(),
		bound:   map[string]int{},
	}
	return con.visit(checkedExpr.GetExpr())
}

type converter struct {
	typeMap map[int64]*exprpb.Type
	// bound counts the comprehension variables in scope.
	bound map[string]int
}

func (con *converter) getType(expr *exprpb.Expr) *exprpb.Type {
	return con.typeMap[expr.GetId()]
}

func (con *converter) visit(expr *exprpb.Expr) (query.Expr, error) {
	switch expr.GetExprKind().(type) {
	case *exprpb.Expr_CallExpr:
		return con.visitCall(expr)
	case *exprpb.Expr_ComprehensionExpr:
		return con.visitComprehension(expr)
	case *exprpb.Expr_ConstExpr:
		return visitConst(expr)
	case *exprpb.Expr_IdentExpr:
		return con.visitIdent(expr)
	case *exprpb.Expr_SelectExpr:
		return con.visitSelect(expr)
	case *exprpb.Expr_ListExpr:
		return nil, fmt.Errorf("%w: list outside of in", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupported, expr)
}

func (con *converter) visitCall(expr *exprpb.Expr) (query.Expr, error) {
	c := expr.GetCallExpr()
	fun := c.GetFunction()
	args := c.GetArgs()
	switch fun {
	case operators.Conditional:
		return con.visitCallConditional(args)
	case operators.Index:
		return con.visitCallIndex(args)
	case operators.LogicalNot, operators.Negate:
		return con.visitCallUnary(fun, args[0])
	case operators.In, operators.OldIn:
		return con.visitCallIn(args[0], args[1])
	}
	if op, ok := binaryOperators[fun]; ok {
		return con.visitCallBinary(op, args[0], args[1])
	}
	return con.visitCallFunc(c)
}

func (con *converter) visitCallConditional(args []*exprpb.Expr) (query.Expr, error) {
	parts := make([]query.Expr, 3)
	for i, a := range args {
		e, err := con.visit(a)
		if err != nil {
			return nil, err
		}
		parts[i] = e
	}
	return query.If(parts[0], parts[1], parts[2]), nil
}

func (con *converter) visitCallIndex(args []*exprpb.Expr) (query.Expr, error) {
	if !isListType(con.getType(args[0])) || isObjectList(con.getType(args[0])) {
		return nil, fmt.Errorf("%w: index of %v", ErrUnsupported, con.getType(args[0]))
	}
	x, err := con.visit(args[0])
	if err != nil {
		return nil, err
	}
	i, err := con.visit(args[1])
	if err != nil {
		return nil, err
	}
	return query.Invoke(x, "ElementAt", i), nil
}

func (con *converter) visitCallUnary(fun string, arg *exprpb.Expr) (query.Expr, error) {
	x, err := con.visit(arg)
	if err != nil {
		return nil, err
	}
	if fun == operators.LogicalNot {
		return query.Not(x), nil
	}
	return query.Neg(x), nil
}

func (con *converter) visitCallBinary(op query.BinaryOp, lhs, rhs *exprpb.Expr) (query.Expr, error) {
	lt, rt := con.getType(lhs), con.getType(rhs)
	if (op == query.OpAdd || op == query.OpSub) &&
		(isTimestampRelatedType(lt) && isDurationType(rt) || isDurationType(lt) && isTimestampRelatedType(rt)) {
		return con.callTimestampOperation(op, lhs, rhs)
	}
	if op == query.OpAdd && isListType(lt) {
		return nil, fmt.Errorf("%w: list concatenation", ErrUnsupported)
	}
	l, err := con.visit(lhs)
	if err != nil {
		return nil, err
	}
	r, err := con.visit(rhs)
	if err != nil {
		return nil, err
	}
	return query.Binary{Op: op, Left: l, Right: r}, nil
}

// visitCallIn translates membership in a list literal or in an array.
func (con *converter) visitCallIn(elem, list *exprpb.Expr) (query.Expr, error) {
	x, err := con.visit(elem)
	if err != nil {
		return nil, err
	}
	if l := list.GetListExpr(); l != nil {
		items := make([]query.Expr, len(l.GetElements()))
		for i, e := range l.GetElements() {
			if items[i], err = con.visit(e); err != nil {
				return nil, err
			}
		}
		return query.InList(x, items...), nil
	}
	if typ := con.getType(list); isMapType(typ) || isObjectList(typ) {
		return nil, fmt.Errorf("%w: in of %v", ErrUnsupported, typ)
	}
	arr, err := con.visit(list)
	if err != nil {
		return nil, err
	}
	return query.InArray(x, arr), nil
}

func (con *converter) visitCallFunc(c *exprpb.Expr_Call) (query.Expr, error) {
	fun := c.GetFunction()
	target := c.GetTarget()
	args := c.GetArgs()
	// size and matches are also global functions.
	if target == nil && len(args) > 0 && (fun == overloads.Size || fun == overloads.Matches) {
		target, args = args[0], args[1:]
	}
	switch fun {
	case overloads.Size:
		return con.callSize(target)
	case overloads.TypeConvertDuration:
		return callDuration(args[0])
	case overloads.TypeConvertTimestamp:
		return callTimestampFromString(args[0])
	case "date":
		return con.callDate(args[0])
	case overloads.TypeConvertInt, overloads.TypeConvertDouble, overloads.TypeConvertString:
		return con.callConversion(fun, args[0])
	}
	if target == nil {
		return nil, fmt.Errorf("%w: function %s", ErrUnsupported, fun)
	}
	if _, ok := timestampAccessors[fun]; ok || fun == overloads.TimeGetDayOfWeek {
		return con.callTimestampAccessor(fun, target, args)
	}
	if isRangeType(con.getType(target)) {
		if method, ok := rangeFunctions[fun]; ok {
			return con.callMethod(target, method, args)
		}
	}
	if method, ok := stringMethods[fun]; ok && isStringType(con.getType(target)) {
		return con.callMethod(target, method, args)
	}
	return nil, fmt.Errorf("%w: function %s", ErrUnsupported, fun)
}

// callMethod invokes method on target, or reads it as a member when there
// are no arguments.
func (con *converter) callMethod(target *exprpb.Expr, method string, args []*exprpb.Expr) (query.Expr, error) {
	x, err := con.visit(target)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return query.M(x, method), nil
	}
	in := make([]query.Expr, len(args))
	for i, a := range args {
		if in[i], err = con.visit(a); err != nil {
			return nil, err
		}
	}
	return query.Invoke(x, method, in...), nil
}

// callSize counts the characters of a string or the elements of a list.
func (con *converter) callSize(target *exprpb.Expr) (query.Expr, error) {
	if e, ok, err := con.countFiltered(target); ok || err != nil {
		return e, err
	}
	typ := con.getType(target)
	member := "Length"
	switch {
	case isObjectList(typ):
		member = "Count"
	case isStringType(typ), isListType(typ):
	default:
		return nil, fmt.Errorf("%w: size of %v", ErrUnsupported, typ)
	}
	x, err := con.visit(target)
	if err != nil {
		return nil, err
	}
	return query.M(x, member), nil
}

func (con *converter) callConversion(fun string, arg *exprpb.Expr) (query.Expr, error) {
	x, err := con.visit(arg)
	if err != nil {
		return nil, err
	}
	switch fun {
	case overloads.TypeConvertInt:
		return query.As[int64](x), nil
	case overloads.TypeConvertDouble:
		return query.As[float64](x), nil
	}
	return query.As[string](x), nil
}

func visitConst(expr *exprpb.Expr) (query.Expr, error) {
	switch c := expr.GetConstExpr().GetConstantKind().(type) {
	case *exprpb.Constant_BoolValue:
		return query.C(c.BoolValue), nil
	case *exprpb.Constant_Int64Value:
		return query.C(c.Int64Value), nil
	case *exprpb.Constant_Uint64Value:
		if c.Uint64Value > math.MaxInt64 {
			return nil, fmt.Errorf("%w: unsigned constant %d overflows bigint", ErrUnsupported, c.Uint64Value)
		}
		return query.C(int64(c.Uint64Value)), nil
	case *exprpb.Constant_DoubleValue:
		return query.C(c.DoubleValue), nil
	case *exprpb.Constant_StringValue:
		return query.C(c.StringValue), nil
	case *exprpb.Constant_BytesValue:
		return query.C(c.BytesValue), nil
	case *exprpb.Constant_NullValue:
		return query.C(nil), nil
	}
	return nil, fmt.Errorf("%w: constant %v", ErrUnsupported, expr.GetConstExpr())
}

// visitIdent reads the entity variable or a comprehension variable, and
// turns any other identifier into a parameter.
func (con *converter) visitIdent(expr *exprpb.Expr) (query.Expr, error) {
	name := expr.GetIdentExpr().GetName()
	typ := con.getType(expr)
	if con.bound[name] > 0 || typ.GetMessageType() != "" {
		return query.V(name), nil
	}
	rt, err := paramType(typ)
	if err != nil {
		return nil, err
	}
	return query.Param{Name: name, Type: rt}, nil
}

// visitSelect reads a field, or tests it for null under has().
func (con *converter) visitSelect(expr *exprpb.Expr) (query.Expr, error) {
	sel := expr.GetSelectExpr()
	if isMapType(con.getType(sel.GetOperand())) {
		return nil, fmt.Errorf("%w: map field %s", ErrUnsupported, sel.GetField())
	}
	operand, err := con.visit(sel.GetOperand())
	if err != nil {
		return nil, err
	}
	m := query.M(operand, sel.GetField())
	if sel.GetTestOnly() {
		return query.Ne(m, query.C(nil)), nil
	}
	return m, nil
}
