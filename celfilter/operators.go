package celfilter

import (
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"

	"github.com/spandigital/pgtranslate/query"
)

// binaryOperators maps CEL binary operators to query operators.
var binaryOperators = map[string]query.BinaryOp{
	operators.Equals:        query.OpEq,
	operators.NotEquals:     query.OpNe,
	operators.Less:          query.OpLt,
	operators.LessEquals:    query.OpLe,
	operators.Greater:       query.OpGt,
	operators.GreaterEquals: query.OpGe,
	operators.LogicalAnd:    query.OpAnd,
	operators.LogicalOr:     query.OpOr,
	operators.Add:           query.OpAdd,
	operators.Subtract:      query.OpSub,
	operators.Multiply:      query.OpMul,
	operators.Divide:        query.OpDiv,
	operators.Modulo:        query.OpMod,
}

// stringMethods maps CEL string functions to translated methods.
var stringMethods = map[string]string{
	overloads.StartsWith: "StartsWith",
	overloads.EndsWith:   "EndsWith",
	overloads.Contains:   "Contains",
	overloads.Matches:    "IsMatch",
}

// rangeFunctions maps the range declarations of sqltypes to range members
// and methods.
var rangeFunctions = map[string]string{
	"contains": "Contains",
	"overlaps": "Overlaps",
	"lower":    "LowerBound",
	"upper":    "UpperBound",
	"isEmpty":  "IsEmpty",
}
