package typemap

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func bare(store string, t reflect.Type, kind Kind, text func(any) (string, error)) *Mapping {
	return &Mapping{StoreType: store, Base: store, Type: t, Kind: kind, style: styleBare, text: text}
}

func quoted(store string, t reflect.Type, kind Kind, text func(any) (string, error)) *Mapping {
	return &Mapping{StoreType: store, Base: store, Type: t, Kind: kind, style: styleQuoted, text: text}
}

func prefixed(store, prefix string, t reflect.Type, kind Kind, text func(any) (string, error)) *Mapping {
	return &Mapping{StoreType: store, Base: store, Type: t, Kind: kind, style: stylePrefix, prefix: prefix, text: text}
}

func casted(store string, t reflect.Type, kind Kind, text func(any) (string, error)) *Mapping {
	return &Mapping{StoreType: store, Base: store, Type: t, Kind: kind, style: styleCast, text: text}
}

func custom(store string, t reflect.Type, kind Kind, text func(any) (string, error), lit func(*Mapping, any) (string, error)) *Mapping {
	return &Mapping{StoreType: store, Base: store, Type: t, Kind: kind, style: styleCustom, text: text, literal: lit}
}

func (r *Registry) registerCore() {
	var (
		tBool     = reflect.TypeFor[bool]()
		tInt16    = reflect.TypeFor[int16]()
		tInt32    = reflect.TypeFor[int32]()
		tInt64    = reflect.TypeFor[int64]()
		tInt      = reflect.TypeFor[int]()
		tFloat32  = reflect.TypeFor[float32]()
		tFloat64  = reflect.TypeFor[float64]()
		tString   = reflect.TypeFor[string]()
		tBytes    = reflect.TypeFor[[]byte]()
		tTime     = reflect.TypeFor[time.Time]()
		tDuration = reflect.TypeFor[time.Duration]()
		tDecimal  = reflect.TypeFor[decimal.Decimal]()
		tUUID     = reflect.TypeFor[uuid.UUID]()
		tAddr     = reflect.TypeFor[netip.Addr]()
		tPrefix   = reflect.TypeFor[netip.Prefix]()
		tMAC      = reflect.TypeFor[net.HardwareAddr]()
		tJSON     = reflect.TypeFor[json.RawMessage]()
		tHstore   = reflect.TypeFor[map[string]string]()
	)

	r.add(custom("boolean", tBool, KindBool, boolText, boolLiteral), true)
	r.add(bare("smallint", tInt16, KindInt, intText), true)
	r.add(bare("integer", tInt32, KindInt, intText), true)
	r.add(bare("bigint", tInt64, KindInt, intText), true)
	r.add(bare("bigint", tInt, KindInt, intText), true)
	r.add(custom("real", tFloat32, KindFloat, floatText, floatLiteral), true)
	r.add(custom("double precision", tFloat64, KindFloat, floatText, floatLiteral), true)
	r.add(bare("numeric", tDecimal, KindNumeric, numericText), true)

	r.add(quoted("text", tString, KindText, stringText), true)
	r.add(quoted("character varying", tString, KindText, stringText), false)
	r.add(quoted("character", tString, KindText, stringText), false)
	r.add(quoted("citext", tString, KindText, stringText), false)
	r.add(quoted("name", tString, KindText, stringText), false)
	r.add(casted("bytea", tBytes, KindBytes, bytesText), true)

	tz := prefixed("timestamp with time zone", "TIMESTAMPTZ", tTime, KindTimestampTz, timestamptzText)
	ntz := prefixed("timestamp without time zone", "TIMESTAMP", tTime, KindTimestamp, timestampText)
	r.add(tz, !r.legacy)
	r.add(ntz, r.legacy)
	r.add(prefixed("date", "DATE", tTime, KindDate, dateText), false)
	r.add(prefixed("interval", "INTERVAL", tDuration, KindInterval, intervalText), true)

	r.add(casted("uuid", tUUID, KindUUID, uuidText), true)
	r.add(prefixed("inet", "INET", tAddr, KindNetwork, inetText), true)
	r.add(prefixed("cidr", "CIDR", tPrefix, KindNetwork, inetText), true)
	r.add(prefixed("macaddr", "MACADDR", tMAC, KindMacAddr, macText), true)
	r.add(casted("jsonb", tJSON, KindJSON, jsonText), true)
	r.add(casted("json", tJSON, KindJSON, jsonText), false)
	r.add(casted("hstore", tHstore, KindHstore, hstoreText), true)

	for name, t := range map[string]reflect.Type{
		"bool": tBool, "int16": tInt16, "int32": tInt32, "int64": tInt64, "int": tInt,
		"float32": tFloat32, "float64": tFloat64, "string": tString, "[]byte": tBytes,
		"time.Time": tTime, "time.Duration": tDuration, "decimal.Decimal": tDecimal,
		"uuid.UUID": tUUID, "netip.Addr": tAddr, "netip.Prefix": tPrefix,
		"net.HardwareAddr": tMAC, "json.RawMessage": tJSON, "map[string]string": tHstore,
	} {
		r.name(name, t)
	}
}

func (r *Registry) registerEnum(e Enum) {
	labels := e.Labels
	text := func(v any) (string, error) {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String:
			return rv.String(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i := rv.Int()
			if i < 0 || int(i) >= len(labels) {
				return "", fmt.Errorf("enum %s has no label %d", e.StoreType, i)
			}
			return labels[i], nil
		}
		if s, ok := v.(fmt.Stringer); ok {
			return s.String(), nil
		}
		return "", fmt.Errorf("enum %s literal from %T", e.StoreType, v)
	}
	r.add(casted(e.StoreType, e.Type, KindEnum, text), true)
	r.name(e.StoreType, e.Type)
	if n := e.Type.Name(); n != "" {
		r.name(n, e.Type)
	}
}

func (r *Registry) registerComposite(c Composite) {
	t := c.Type
	fields := make([]*Mapping, t.NumField())
	for i := range fields {
		m := r.resolve(Request{Type: t.Field(i).Type})
		if m == nil {
			// Left unresolved; FindMapping on the composite fails cleanly below.
			return
		}
		fields[i] = m
	}
	lit := func(m *Mapping, v any) (string, error) {
		rv := reflect.ValueOf(v)
		parts := make([]string, len(fields))
		for i, fm := range fields {
			s, err := fm.Literal(rv.Field(i).Interface())
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "ROW(" + strings.Join(parts, ", ") + ")::" + m.StoreType, nil
	}
	r.add(custom(c.StoreType, t, KindComposite, nil, lit), true)
	r.name(c.StoreType, t)
	if n := t.Name(); n != "" {
		r.name(n, t)
	}
}
