package typemap

import (
	"fmt"
	"reflect"

	"github.com/spandigital/pgtranslate/sqlast"
)

// Kind groups store types by the operators and functions that apply to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindBool
	KindInt
	KindFloat
	KindNumeric
	KindText
	KindBytes
	KindTimestamp
	KindTimestampTz
	KindDate
	KindTime
	KindInterval
	KindUUID
	KindJSON
	KindNetwork
	KindMacAddr
	KindArray
	KindRange
	KindMultirange
	KindEnum
	KindComposite
	KindGeometric
	KindSpatial
	KindBits
	KindHstore
)

var kindNames = [...]string{
	"unknown", "bool", "int", "float", "numeric", "text", "bytes", "timestamp",
	"timestamptz", "date", "time", "interval", "uuid", "json", "network", "macaddr",
	"array", "range", "multirange", "enum", "composite", "geometric", "spatial", "bits", "hstore",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsTemporal reports whether values of this kind carry calendar or clock components.
func (k Kind) IsTemporal() bool {
	switch k {
	case KindTimestamp, KindTimestampTz, KindDate, KindTime:
		return true
	}
	return false
}

// IsNumeric reports whether arithmetic applies.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat || k == KindNumeric
}

type literalStyle int

const (
	styleBare literalStyle = iota
	styleQuoted
	stylePrefix
	styleCast
	styleCustom
)

// Mapping binds a Go type to a PostgreSQL store type. Mappings are immutable;
// facet application and array wrapping return copies.
type Mapping struct {
	// StoreType is the full store type, facets included: numeric(10,2), integer[].
	StoreType string
	// Base is the store type without facets or array suffix.
	Base      string
	Type      reflect.Type
	Kind      Kind
	Size      *int
	Precision *int
	Scale     *int
	// Element is set for arrays, ranges and multiranges.
	Element *Mapping

	style   literalStyle
	prefix  string
	text    func(v any) (string, error)
	literal func(m *Mapping, v any) (string, error)
}

func (m *Mapping) String() string {
	if m.Type == nil {
		return m.StoreType
	}
	return m.StoreType + " <-> " + m.Type.String()
}

// IsArray reports whether the mapping is an array of Element.
func (m *Mapping) IsArray() bool { return m.Kind == KindArray }

// Literal renders v as a SQL literal in this mapping's store type.
func (m *Mapping) Literal(v any) (string, error) {
	v, ok := deref(v)
	if !ok {
		return "NULL", nil
	}
	if m.style == styleCustom {
		return m.literal(m, v)
	}
	text, err := m.text(v)
	if err != nil {
		return "", fmt.Errorf("%s literal: %w", m.StoreType, err)
	}
	switch m.style {
	case styleQuoted:
		return sqlast.QuoteString(text), nil
	case stylePrefix:
		return m.prefix + " " + sqlast.QuoteString(text), nil
	case styleCast:
		return sqlast.QuoteString(text) + "::" + m.StoreType, nil
	default:
		return text, nil
	}
}

// Text renders v in the server's text input format, without quoting.
// Range and multirange literals embed their bounds in this form.
func (m *Mapping) Text(v any) (string, error) {
	v, ok := deref(v)
	if !ok {
		return "", fmt.Errorf("%s: null has no text form", m.StoreType)
	}
	if m.text == nil {
		return "", fmt.Errorf("%s: no text form", m.StoreType)
	}
	return m.text(v)
}

// GenerateSQLLiteral renders v using m, or NULL when v is nil.
func GenerateSQLLiteral(m *Mapping, v any) (string, error) {
	if m == nil {
		if _, ok := deref(v); ok {
			return "", fmt.Errorf("%w: literal %T without mapping", ErrNoMapping, v)
		}
		return "NULL", nil
	}
	return m.Literal(v)
}

func (m *Mapping) clone() *Mapping {
	c := *m
	return &c
}

// deref unwraps pointers and interfaces. It reports false for nil values and
// for structs whose Valid field is false (pgtype values, sql.Null*).
func deref(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName("Valid"); f.IsValid() && f.Kind() == reflect.Bool && !f.Bool() {
			return nil, false
		}
	}
	return rv.Interface(), true
}
