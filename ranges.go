package pgtranslate

import (
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
)

var rangePredicates = map[string]string{
	"Contains":             "@>",
	"ContainedBy":          "<@",
	"Overlaps":             "&&",
	"IsStrictlyLeftOf":     "<<",
	"IsStrictlyRightOf":    ">>",
	"DoesNotExtendRightOf": "&<",
	"DoesNotExtendLeftOf":  "&>",
	"IsAdjacentTo":         "-|-",
}

var rangeOperators = map[string]string{
	"Union":     "+",
	"Intersect": "*",
	"Except":    "-",
}

func (l *lowerer) rangeMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	op, predicate := rangePredicates[c.Method]
	if !predicate {
		op = rangeOperators[c.Method]
	}
	switch {
	case op != "":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		e := sqlast.Bin(x.Expr, op, args[0].Expr)
		if predicate {
			return l.boolean(e), nil
		}
		return &SQLValue{Expr: e, Mapping: x.Mapping}, nil
	case c.Method == "Merge":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Call("range_merge", x.Expr, args[0].Expr), Mapping: x.Mapping}, nil
	}
	return nil, nil
}

var rangeFlags = map[string]string{
	"IsEmpty":               "isempty",
	"LowerBoundIsInclusive": "lower_inc",
	"UpperBoundIsInclusive": "upper_inc",
	"LowerBoundInfinite":    "lower_inf",
	"UpperBoundInfinite":    "upper_inf",
}

func (l *lowerer) rangeMember(x *SQLValue, name string) *SQLValue {
	if fn, ok := rangeFlags[name]; ok {
		return l.boolean(sqlast.Call(fn, x.Expr))
	}
	switch name {
	case "LowerBound":
		return &SQLValue{Expr: sqlast.Call("lower", x.Expr), Mapping: x.Mapping.Element}
	case "UpperBound":
		return &SQLValue{Expr: sqlast.Call("upper", x.Expr), Mapping: x.Mapping.Element}
	}
	return nil
}
