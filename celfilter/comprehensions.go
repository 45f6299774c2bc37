package celfilter

import (
	"fmt"

	"github.com/google/cel-go/common/operators"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/spandigital/pgtranslate/query"
)

// ComprehensionType is the macro a comprehension was expanded from.
type ComprehensionType int

const (
	ComprehensionAll ComprehensionType = iota
	ComprehensionExists
	ComprehensionExistsOne
	ComprehensionMap
	ComprehensionFilter
	ComprehensionUnknown
)

func (ct ComprehensionType) String() string {
	switch ct {
	case ComprehensionAll:
		return "all"
	case ComprehensionExists:
		return "exists"
	case ComprehensionExistsOne:
		return "exists_one"
	case ComprehensionMap:
		return "map"
	case ComprehensionFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// ComprehensionInfo holds what the macro expansion of a comprehension
// took apart.
type ComprehensionInfo struct {
	Type      ComprehensionType
	IterVar   string
	AccuVar   string
	IsTwoVar  bool
	Predicate *exprpb.Expr
	Transform *exprpb.Expr
}

// identifyComprehension recognises the macro behind a comprehension by
// the shape of its accumulator and loop step.
func identifyComprehension(comp *exprpb.Expr_Comprehension) (*ComprehensionInfo, error) {
	info := &ComprehensionInfo{
		IterVar:  comp.GetIterVar(),
		AccuVar:  comp.GetAccuVar(),
		IsTwoVar: comp.GetIterVar2() != "",
	}
	init, step, accu := comp.GetAccuInit(), comp.GetLoopStep(), comp.GetAccuVar()
	call := step.GetCallExpr()

	switch {
	// all: accu = true, step = accu && predicate
	case isBool(init, true) && isAccuCall(call, operators.LogicalAnd, accu):
		info.Type = ComprehensionAll
		info.Predicate = otherArg(call, accu)
	// exists: accu = false, step = accu || predicate
	case isBool(init, false) && isAccuCall(call, operators.LogicalOr, accu):
		info.Type = ComprehensionExists
		info.Predicate = otherArg(call, accu)
	// exists_one: accu = 0, step = predicate ? accu + 1 : accu, result = accu == 1
	case isIntZero(init) && call.GetFunction() == operators.Conditional && len(call.GetArgs()) == 3 &&
		comp.GetResult().GetCallExpr().GetFunction() == operators.Equals:
		info.Type = ComprehensionExistsOne
		info.Predicate = call.GetArgs()[0]
	// map: accu = [], step = accu + [transform]
	case isEmptyList(init) && isAccuCall(call, operators.Add, accu):
		info.Type = ComprehensionMap
		info.Transform = appended(call)
	// filter: accu = [], step = predicate ? accu + [iterVar] : accu
	case isEmptyList(init) && call.GetFunction() == operators.Conditional && len(call.GetArgs()) == 3:
		then := call.GetArgs()[1].GetCallExpr()
		elem := appended(then)
		if elem.GetIdentExpr().GetName() == info.IterVar {
			info.Type = ComprehensionFilter
		} else {
			info.Type = ComprehensionMap
			info.Transform = elem
		}
		info.Predicate = call.GetArgs()[0]
	default:
		info.Type = ComprehensionUnknown
		return info, fmt.Errorf("%w: unrecognized comprehension pattern", ErrUnsupported)
	}
	return info, nil
}

func isBool(expr *exprpb.Expr, want bool) bool {
	v, ok := expr.GetConstExpr().GetConstantKind().(*exprpb.Constant_BoolValue)
	return ok && v.BoolValue == want
}

func isIntZero(expr *exprpb.Expr) bool {
	v, ok := expr.GetConstExpr().GetConstantKind().(*exprpb.Constant_Int64Value)
	return ok && v.Int64Value == 0
}

func isEmptyList(expr *exprpb.Expr) bool {
	l := expr.GetListExpr()
	return l != nil && len(l.GetElements()) == 0
}

// isAccuCall reports whether call applies fun to the accumulator.
func isAccuCall(call *exprpb.Expr_Call, fun, accu string) bool {
	if call.GetFunction() != fun {
		return false
	}
	for _, arg := range call.GetArgs() {
		if arg.GetIdentExpr().GetName() == accu {
			return true
		}
	}
	return false
}

func otherArg(call *exprpb.Expr_Call, accu string) *exprpb.Expr {
	for _, arg := range call.GetArgs() {
		if arg.GetIdentExpr().GetName() != accu {
			return arg
		}
	}
	return nil
}

// appended is the element of the single-element list in accu + [elem].
func appended(call *exprpb.Expr_Call) *exprpb.Expr {
	for _, arg := range call.GetArgs() {
		if l := arg.GetListExpr(); l != nil && len(l.GetElements()) == 1 {
			return l.GetElements()[0]
		}
	}
	return nil
}

// visitComprehension translates all, exists and exists_one over a
// collection into Any, All and a count of matches.
func (con *converter) visitComprehension(expr *exprpb.Expr) (query.Expr, error) {
	comp := expr.GetComprehensionExpr()
	info, err := identifyComprehension(comp)
	if err != nil {
		return nil, err
	}
	switch info.Type {
	case ComprehensionAll, ComprehensionExists, ComprehensionExistsOne:
	default:
		return nil, fmt.Errorf("%w: %s outside of size()", ErrUnsupported, info.Type)
	}
	coll, pred, err := con.comprehensionParts(comp, info)
	if err != nil {
		return nil, err
	}
	switch info.Type {
	case ComprehensionAll:
		return query.Invoke(coll, "All", pred), nil
	case ComprehensionExists:
		return query.Invoke(coll, "Any", pred), nil
	}
	return query.Eq(query.Invoke(coll, "Count", pred), query.C(int64(1))), nil
}

// countFiltered translates size(list.filter(x, p)) to a count of matches.
func (con *converter) countFiltered(expr *exprpb.Expr) (query.Expr, bool, error) {
	comp := expr.GetComprehensionExpr()
	if comp == nil {
		return nil, false, nil
	}
	info, err := identifyComprehension(comp)
	if err != nil || info.Type != ComprehensionFilter {
		return nil, false, err
	}
	coll, pred, err := con.comprehensionParts(comp, info)
	if err != nil {
		return nil, true, err
	}
	return query.Invoke(coll, "Count", pred), true, nil
}

// comprehensionParts translates the iterated collection and the predicate,
// the latter as a lambda over the iteration variable.
func (con *converter) comprehensionParts(comp *exprpb.Expr_Comprehension, info *ComprehensionInfo) (query.Expr, *query.Lambda, error) {
	if info.IsTwoVar {
		return nil, nil, fmt.Errorf("%w: two-variable %s", ErrUnsupported, info.Type)
	}
	if !isListType(con.getType(comp.GetIterRange())) {
		return nil, nil, fmt.Errorf("%w: %s over a map", ErrUnsupported, info.Type)
	}
	coll, err := con.visit(comp.GetIterRange())
	if err != nil {
		return nil, nil, err
	}
	con.bound[info.IterVar]++
	defer func() { con.bound[info.IterVar]-- }()
	body, err := con.visit(info.Predicate)
	if err != nil {
		return nil, nil, err
	}
	return coll, query.Fn(info.IterVar, body), nil
}
