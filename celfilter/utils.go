package celfilter

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/spandigital/pgtranslate/sqltypes"
)

func isMapType(typ *exprpb.Type) bool {
	_, ok := typ.GetTypeKind().(*exprpb.Type_MapType_)
	return ok
}

func isListType(typ *exprpb.Type) bool {
	_, ok := typ.GetTypeKind().(*exprpb.Type_ListType_)
	return ok
}

// isObjectList reports whether typ lists entities or owned types, which
// translate to collections rather than arrays.
func isObjectList(typ *exprpb.Type) bool {
	return typ.GetListType().GetElemType().GetMessageType() != ""
}

func isStringType(typ *exprpb.Type) bool {
	return typ.GetPrimitive() == exprpb.Type_STRING
}

func isRangeType(typ *exprpb.Type) bool {
	return typ.GetAbstractType().GetName() == sqltypes.RangeName
}

func isStringLiteral(node *exprpb.Expr) bool {
	_, ok := node.GetConstExpr().GetConstantKind().(*exprpb.Constant_StringValue)
	return ok
}

// paramType is the Go type a parameter of the checked CEL type binds as.
func paramType(typ *exprpb.Type) (reflect.Type, error) {
	switch typ.GetPrimitive() {
	case exprpb.Type_BOOL:
		return reflect.TypeFor[bool](), nil
	case exprpb.Type_INT64, exprpb.Type_UINT64:
		return reflect.TypeFor[int64](), nil
	case exprpb.Type_DOUBLE:
		return reflect.TypeFor[float64](), nil
	case exprpb.Type_STRING:
		return reflect.TypeFor[string](), nil
	case exprpb.Type_BYTES:
		return reflect.TypeFor[[]byte](), nil
	}
	switch typ.GetWellKnown() {
	case exprpb.Type_TIMESTAMP:
		return reflect.TypeFor[time.Time](), nil
	case exprpb.Type_DURATION:
		return reflect.TypeFor[time.Duration](), nil
	}
	switch typ.GetAbstractType().GetName() {
	case sqltypes.DateName:
		return reflect.TypeFor[pgtype.Date](), nil
	case sqltypes.TimeName:
		return reflect.TypeFor[pgtype.Time](), nil
	}
	if isListType(typ) {
		elem, err := paramType(typ.GetListType().GetElemType())
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	}
	return nil, fmt.Errorf("%w: parameter of type %v", ErrUnsupported, typ)
}
