package typemap

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// UserRange declares a user-defined range type over Subtype, such as
// CREATE TYPE floatrange AS RANGE (subtype = double precision).
type UserRange struct {
	StoreType string
	// Type is the pgtype.Range[T] instantiation.
	Type reflect.Type
}

type rangesPlugin struct {
	builtin map[string]reflect.Type
	user    []UserRange
}

// rangeForSubtype names the built-in range over each subtype store type.
var rangeForSubtype = map[string]string{
	"integer":                     "int4range",
	"bigint":                      "int8range",
	"numeric":                     "numrange",
	"date":                        "daterange",
	"timestamp without time zone": "tsrange",
	"timestamp with time zone":    "tstzrange",
}

// Ranges maps pgtype.Range[T] and pgtype.Multirange[pgtype.Range[T]] to the
// built-in range and multirange types, plus any user-defined ranges.
func Ranges(user ...UserRange) Plugin {
	return &rangesPlugin{
		builtin: map[string]reflect.Type{
			"int4range": reflect.TypeFor[pgtype.Range[int32]](),
			"int8range": reflect.TypeFor[pgtype.Range[int64]](),
			"numrange":  reflect.TypeFor[pgtype.Range[decimal.Decimal]](),
			"daterange": reflect.TypeFor[pgtype.Range[pgtype.Date]](),
			"tsrange":   reflect.TypeFor[pgtype.Range[pgtype.Timestamp]](),
			"tstzrange": reflect.TypeFor[pgtype.Range[pgtype.Timestamptz]](),

			"int4multirange": reflect.TypeFor[pgtype.Multirange[pgtype.Range[int32]]](),
			"int8multirange": reflect.TypeFor[pgtype.Multirange[pgtype.Range[int64]]](),
			"nummultirange":  reflect.TypeFor[pgtype.Multirange[pgtype.Range[decimal.Decimal]]](),
			"datemultirange": reflect.TypeFor[pgtype.Multirange[pgtype.Range[pgtype.Date]]](),
			"tsmultirange":   reflect.TypeFor[pgtype.Multirange[pgtype.Range[pgtype.Timestamp]]](),
			"tstzmultirange": reflect.TypeFor[pgtype.Multirange[pgtype.Range[pgtype.Timestamptz]]](),
		},
		user: user,
	}
}

func (p *rangesPlugin) Name() string { return "ranges" }

func (p *rangesPlugin) Types() map[string]reflect.Type {
	out := map[string]reflect.Type{
		"pgtype.Range[time.Time]":                    reflect.TypeFor[pgtype.Range[time.Time]](),
		"pgtype.Multirange[pgtype.Range[time.Time]]": reflect.TypeFor[pgtype.Multirange[pgtype.Range[time.Time]]](),
	}
	for store, sub := range map[string]string{
		"int4": "int32", "int8": "int64", "num": "decimal.Decimal",
		"date": "pgtype.Date", "ts": "pgtype.Timestamp", "tstz": "pgtype.Timestamptz",
	} {
		out["pgtype.Range["+sub+"]"] = p.builtin[store+"range"]
		out["pgtype.Multirange[pgtype.Range["+sub+"]]"] = p.builtin[store+"multirange"]
	}
	for _, u := range p.user {
		out[u.StoreType] = u.Type
	}
	return out
}

func (p *rangesPlugin) TryResolve(r *Registry, req Request) *Mapping {
	if req.StoreType != "" {
		st := parseStoreType(req.StoreType)
		if st.array > 0 {
			return nil
		}
		t := p.typeForStore(st.base)
		if t == nil {
			return nil
		}
		if req.Type != nil && req.Type != t {
			// Range[time.Time] is stored as tsrange or tstzrange.
			if !isRange(req.Type) {
				return nil
			}
			t = req.Type
		}
		return p.build(r, t, st.base)
	}
	if req.Type == nil {
		return nil
	}
	switch {
	case isMultirange(req.Type):
		el := p.build(r, req.Type.Elem(), "")
		if el == nil {
			return nil
		}
		return multirangeOf(el, req.Type)
	case isRange(req.Type):
		return p.build(r, req.Type, "")
	}
	return nil
}

func (p *rangesPlugin) typeForStore(base string) reflect.Type {
	if t, ok := p.builtin[base]; ok {
		return t
	}
	for _, u := range p.user {
		if u.StoreType == base {
			return u.Type
		}
	}
	return nil
}

// build maps a Range[T] type; store is the requested store name or empty to
// derive it from the subtype.
func (p *rangesPlugin) build(r *Registry, t reflect.Type, store string) *Mapping {
	if isMultirange(t) {
		el := p.build(r, t.Elem(), strings.Replace(store, "multirange", "range", 1))
		if el == nil {
			return nil
		}
		return multirangeOf(el, t)
	}
	f, ok := t.FieldByName("Lower")
	if !ok {
		return nil
	}
	sub := r.resolve(Request{Type: f.Type})
	if sub == nil {
		return nil
	}
	if store == "" {
		for _, u := range p.user {
			if u.Type == t {
				store = u.StoreType
			}
		}
	}
	if store == "" {
		store = rangeForSubtype[sub.Base]
	}
	if store == "" {
		return nil
	}
	switch store {
	case "daterange":
		sub = r.resolve(Request{Type: f.Type, StoreType: "date"})
	case "tsrange":
		sub = r.resolve(Request{Type: f.Type, StoreType: "timestamp without time zone"})
	case "tstzrange":
		sub = r.resolve(Request{Type: f.Type, StoreType: "timestamp with time zone"})
	}
	if sub == nil {
		return nil
	}
	return &Mapping{
		StoreType: store,
		Base:      store,
		Type:      t,
		Kind:      KindRange,
		Element:   sub,
		style:     styleCast,
		text:      rangeText(sub),
	}
}

func multirangeOf(el *Mapping, t reflect.Type) *Mapping {
	store := strings.Replace(el.StoreType, "range", "multirange", 1)
	return &Mapping{
		StoreType: store,
		Base:      store,
		Type:      t,
		Kind:      KindMultirange,
		Element:   el,
		style:     styleCast,
		text: func(v any) (string, error) {
			rv := reflect.ValueOf(v)
			parts := make([]string, rv.Len())
			for i := range parts {
				s, err := el.text(rv.Index(i).Interface())
				if err != nil {
					return "", err
				}
				parts[i] = s
			}
			return "{" + strings.Join(parts, ", ") + "}", nil
		},
	}
}

func isRange(t reflect.Type) bool {
	return t.PkgPath() == "github.com/jackc/pgx/v5/pgtype" && strings.HasPrefix(t.Name(), "Range[")
}

func isMultirange(t reflect.Type) bool {
	return t.PkgPath() == "github.com/jackc/pgx/v5/pgtype" && strings.HasPrefix(t.Name(), "Multirange[")
}

// rangeText renders [lower,upper) with bound values in the subtype's text
// form, double-quoted when they contain range punctuation.
func rangeText(sub *Mapping) func(any) (string, error) {
	return func(v any) (string, error) {
		rv := reflect.ValueOf(v)
		lowerType := pgtype.BoundType(rv.FieldByName("LowerType").Uint())
		upperType := pgtype.BoundType(rv.FieldByName("UpperType").Uint())
		if lowerType == pgtype.Empty || upperType == pgtype.Empty {
			return "empty", nil
		}
		var b strings.Builder
		if lowerType == pgtype.Inclusive {
			b.WriteByte('[')
		} else {
			b.WriteByte('(')
		}
		if lowerType != pgtype.Unbounded {
			s, err := boundText(sub, rv.FieldByName("Lower").Interface())
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		b.WriteByte(',')
		if upperType != pgtype.Unbounded {
			s, err := boundText(sub, rv.FieldByName("Upper").Interface())
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		if upperType == pgtype.Inclusive {
			b.WriteByte(']')
		} else {
			b.WriteByte(')')
		}
		return b.String(), nil
	}
}

func boundText(sub *Mapping, v any) (string, error) {
	s, err := sub.Text(v)
	if err != nil {
		return "", fmt.Errorf("range bound: %w", err)
	}
	if s == "" || strings.ContainsAny(s, `()[],"\ `) {
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
		return `"` + r.Replace(s) + `"`, nil
	}
	return s, nil
}
