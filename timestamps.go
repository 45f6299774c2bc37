package pgtranslate

import (
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

func datePart(field string, x sqlast.Expr) sqlast.Expr {
	return sqlast.Call("date_part", sqlast.Literal(sqlast.QuoteString(field)), x)
}

// wholePart truncates a fractional part (seconds carry microseconds) before
// the integer cast, which would otherwise round.
func wholePart(field string, x sqlast.Expr) sqlast.Expr {
	return intCast(sqlast.Call("floor", datePart(field, x)))
}

var dateParts = map[string]string{
	"Year":      "year",
	"Month":     "month",
	"Day":       "day",
	"Hour":      "hour",
	"Minute":    "minute",
	"DayOfYear": "doy",
}

func (l *lowerer) timestampMember(x *SQLValue, name string) *SQLValue {
	integer := func(e sqlast.Expr) *SQLValue { return &SQLValue{Expr: e, Mapping: l.t.types.int32} }
	if field, ok := dateParts[name]; ok {
		return integer(intCast(datePart(field, x.Expr)))
	}
	switch name {
	case "Second":
		return integer(wholePart("second", x.Expr))
	case "Millisecond":
		return integer(sqlast.Bin(wholePart("millisecond", x.Expr), "%", sqlast.Literal("1000")))
	case "DayOfWeek":
		// ISO numbering: Monday is 1 and Sunday 7.
		dow := wholePart("dow", x.Expr)
		return integer(sqlast.Case{
			Whens: []sqlast.When{{Cond: sqlast.Bin(dow, "=", sqlast.Literal("0")), Result: sqlast.Literal("7")}},
			Else:  dow,
		})
	case "Date":
		if kindOf(x) == typemap.KindDate {
			return x
		}
		return &SQLValue{Expr: sqlast.Call("date_trunc", sqlast.Literal("'day'"), x.Expr), Mapping: x.Mapping}
	case "TimeOfDay":
		return &SQLValue{Expr: sqlast.Cast{Expr: x.Expr, Type: "time without time zone"}, Mapping: l.store("time without time zone")}
	}
	return nil
}

var intervalUnits = map[string]string{
	"AddYears":   "years",
	"AddMonths":  "months",
	"AddDays":    "days",
	"AddHours":   "hours",
	"AddMinutes": "mins",
	"AddSeconds": "secs",
}

func (l *lowerer) timestampMethod(x *SQLValue, c query.Call, args []*SQLValue) (*SQLValue, error) {
	date := kindOf(x) == typemap.KindDate
	if unit, ok := intervalUnits[c.Method]; ok || c.Method == "AddMilliseconds" {
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		n := args[0].Expr
		if date && c.Method == "AddDays" {
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "+", n), Mapping: x.Mapping}, nil
		}
		if c.Method == "AddMilliseconds" {
			unit = "secs"
			n = sqlast.Bin(sqlast.Cast{Expr: n, Type: "double precision"}, "/", sqlast.Literal("1000"))
		}
		e := sqlast.Expr(sqlast.Bin(x.Expr, "+", sqlast.Call("make_interval", sqlast.NamedArg{Name: unit, Expr: n})))
		if date {
			e = sqlast.Cast{Expr: e, Type: x.Mapping.StoreType}
		}
		return &SQLValue{Expr: e, Mapping: x.Mapping}, nil
	}
	switch c.Method {
	case "Add":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		return &SQLValue{Expr: sqlast.Bin(x.Expr, "+", args[0].Expr), Mapping: x.Mapping}, nil
	case "Subtract":
		if err := arity(c, args, 1); err != nil {
			return nil, err
		}
		if kindOf(args[0]) == typemap.KindInterval {
			return &SQLValue{Expr: sqlast.Bin(x.Expr, "-", args[0].Expr), Mapping: x.Mapping}, nil
		}
		m := l.t.types.interval
		if date {
			m = l.t.types.int32
		}
		return &SQLValue{Expr: sqlast.Bin(x.Expr, "-", args[0].Expr), Mapping: m}, nil
	}
	return nil, nil
}

// intervalTotals divide the epoch of an interval, in seconds, by the unit.
var intervalTotals = map[string]string{
	"TotalDays":         "86400.0",
	"TotalHours":        "3600.0",
	"TotalMinutes":      "60.0",
	"TotalSeconds":      "",
	"TotalMilliseconds": "0.001",
}

func (l *lowerer) intervalMember(x *SQLValue, name string) *SQLValue {
	if div, ok := intervalTotals[name]; ok {
		e := datePart("epoch", x.Expr)
		if div != "" {
			e = sqlast.Bin(e, "/", sqlast.Literal(div))
		}
		return &SQLValue{Expr: e, Mapping: l.t.types.float64}
	}
	integer := func(e sqlast.Expr) *SQLValue { return &SQLValue{Expr: e, Mapping: l.t.types.int32} }
	switch name {
	// Whole days and the remaining hours; 36 hours is 1 day and 12 hours.
	case "Days":
		return integer(intCast(datePart("day", sqlast.Call("justify_hours", x.Expr))))
	case "Hours":
		return integer(intCast(datePart("hour", sqlast.Call("justify_hours", x.Expr))))
	case "Minutes":
		return integer(intCast(datePart("minute", x.Expr)))
	case "Seconds":
		return integer(wholePart("second", x.Expr))
	case "Milliseconds":
		return integer(sqlast.Bin(wholePart("millisecond", x.Expr), "%", sqlast.Literal("1000")))
	}
	return nil
}
