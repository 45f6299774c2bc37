package celfilter

import (
	"fmt"
	"time"

	"github.com/google/cel-go/common/overloads"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/xhit/go-str2duration/v2"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqltypes"
)

// isTimestampRelatedType reports whether typ is a timestamp, a date or a
// time of day.
func isTimestampRelatedType(typ *exprpb.Type) bool {
	switch typ.GetAbstractType().GetName() {
	case sqltypes.DateName, sqltypes.TimeName:
		return true
	}
	return typ.GetWellKnown() == exprpb.Type_TIMESTAMP
}

func isDurationType(typ *exprpb.Type) bool {
	return typ.GetWellKnown() == exprpb.Type_DURATION
}

// accessor describes a CEL timestamp accessor as a member of the value.
// CEL counts months, days of the month and days of the year from zero.
type accessor struct {
	member   string
	fromZero bool
}

var timestampAccessors = map[string]accessor{
	overloads.TimeGetFullYear:     {member: "Year"},
	overloads.TimeGetMonth:        {member: "Month", fromZero: true},
	overloads.TimeGetDate:         {member: "Day"},
	overloads.TimeGetDayOfMonth:   {member: "Day", fromZero: true},
	overloads.TimeGetDayOfYear:    {member: "DayOfYear", fromZero: true},
	overloads.TimeGetHours:        {member: "Hour"},
	overloads.TimeGetMinutes:      {member: "Minute"},
	overloads.TimeGetSeconds:      {member: "Second"},
	overloads.TimeGetMilliseconds: {member: "Millisecond"},
}

// callTimestampAccessor translates getFullYear and the other accessors.
func (con *converter) callTimestampAccessor(fun string, target *exprpb.Expr, args []*exprpb.Expr) (query.Expr, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%w: %s with a time zone", ErrUnsupported, fun)
	}
	x, err := con.visit(target)
	if err != nil {
		return nil, err
	}
	if fun == overloads.TimeGetDayOfWeek {
		// ISO numbering has Sunday as 7; CEL has it as 0.
		return query.Binary{Op: query.OpMod, Left: query.M(x, "DayOfWeek"), Right: query.C(int64(7))}, nil
	}
	a, ok := timestampAccessors[fun]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, fun)
	}
	e := query.M(x, a.member)
	if a.fromZero {
		e = query.Minus(e, query.C(int64(1)))
	}
	return e, nil
}

// callTimestampOperation adds or subtracts a duration, keeping the
// temporal operand on the left.
func (con *converter) callTimestampOperation(op query.BinaryOp, lhs, rhs *exprpb.Expr) (query.Expr, error) {
	if isDurationType(con.getType(lhs)) {
		if op == query.OpSub {
			return nil, fmt.Errorf("%w: duration minus timestamp", ErrUnsupported)
		}
		lhs, rhs = rhs, lhs
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

// constantString is the string literal argument of a conversion.
func constantString(fun string, arg *exprpb.Expr) (string, error) {
	if !isStringLiteral(arg) {
		return "", fmt.Errorf("%w: %s of a non-constant value", ErrUnsupported, fun)
	}
	return arg.GetConstExpr().GetStringValue(), nil
}

// callDuration converts duration("90m") and the day and week units of
// str2duration to a constant interval.
func callDuration(arg *exprpb.Expr) (query.Expr, error) {
	s, err := constantString(overloads.TypeConvertDuration, arg)
	if err != nil {
		return nil, err
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return query.C(d), nil
}

// callTimestampFromString converts timestamp("2024-01-02T03:04:05Z").
func callTimestampFromString(arg *exprpb.Expr) (query.Expr, error) {
	if v, ok := arg.GetConstExpr().GetConstantKind().(*exprpb.Constant_Int64Value); ok {
		return query.C(time.Unix(v.Int64Value, 0).UTC()), nil
	}
	s, err := constantString(overloads.TypeConvertTimestamp, arg)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return query.C(t), nil
}

// callDate converts date("2024-01-02"), or truncates a timestamp to its
// date.
func (con *converter) callDate(arg *exprpb.Expr) (query.Expr, error) {
	if !isStringLiteral(arg) {
		x, err := con.visit(arg)
		if err != nil {
			return nil, err
		}
		return query.M(x, "Date"), nil
	}
	s := arg.GetConstExpr().GetStringValue()
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return query.C(pgtype.Date{Time: t, Valid: true}), nil
}
