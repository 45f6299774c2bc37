// Package sqltypes declares the PostgreSQL value types CEL has no native
// type for, together with the functions and operators that apply to them.
package sqltypes

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
)

// Opaque type names as they appear in checked expressions.
const (
	DateName  = "DATE"
	TimeName  = "TIME"
	RangeName = "RANGE"
)

var (
	// Date is a calendar date.
	Date = cel.OpaqueType(DateName)
	// Time is a time of day without a date.
	Time = cel.OpaqueType(TimeName)
)

// Range is a range over element values.
func Range(elem *cel.Type) *cel.Type { return cel.OpaqueType(RangeName, elem) }

// Declarations declares the date() constructor, ordering of dates and times,
// their accessors and the range functions.
func Declarations() cel.EnvOption {
	t := cel.TypeParamType("T")
	rng := Range(t)
	opts := []cel.EnvOption{
		cel.Function("date",
			cel.Overload("date_string", []*cel.Type{cel.StringType}, Date),
			cel.Overload("date_timestamp", []*cel.Type{cel.TimestampType}, Date)),
		cel.Function("contains",
			cel.MemberOverload("range_contains_value", []*cel.Type{rng, t}, cel.BoolType)),
		cel.Function("overlaps",
			cel.MemberOverload("range_overlaps_range", []*cel.Type{rng, rng}, cel.BoolType)),
		cel.Function("lower",
			cel.MemberOverload("range_lower", []*cel.Type{rng}, t)),
		cel.Function("upper",
			cel.MemberOverload("range_upper", []*cel.Type{rng}, t)),
		cel.Function("isEmpty",
			cel.MemberOverload("range_is_empty", []*cel.Type{rng}, cel.BoolType)),
	}
	ordering := map[string]string{
		operators.Less:          "less",
		operators.LessEquals:    "less_equals",
		operators.Greater:       "greater",
		operators.GreaterEquals: "greater_equals",
	}
	for op, id := range ordering {
		opts = append(opts, cel.Function(op,
			cel.Overload(id+"_date", []*cel.Type{Date, Date}, cel.BoolType),
			cel.Overload(id+"_time", []*cel.Type{Time, Time}, cel.BoolType)))
	}
	for _, fn := range []string{"getFullYear", "getMonth", "getDate", "getDayOfMonth", "getDayOfWeek", "getDayOfYear"} {
		opts = append(opts, cel.Function(fn,
			cel.MemberOverload("date_"+fn, []*cel.Type{Date}, cel.IntType)))
	}
	for _, fn := range []string{"getHours", "getMinutes", "getSeconds"} {
		opts = append(opts, cel.Function(fn,
			cel.MemberOverload("time_"+fn, []*cel.Type{Time}, cel.IntType)))
	}
	return cel.Lib(library(opts))
}

type library []cel.EnvOption

func (l library) CompileOptions() []cel.EnvOption { return l }

func (library) ProgramOptions() []cel.ProgramOption { return nil }
