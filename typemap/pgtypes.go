package typemap

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

type pgTypesPlugin struct {
	byType  map[reflect.Type]*Mapping
	byStore map[string]*Mapping
}

// PgTypes maps the pgx pgtype value types: calendar types that keep
// infinity and date-only / time-only distinctions, intervals with months and
// days, geometric types and bit strings.
func PgTypes() Plugin {
	p := &pgTypesPlugin{byType: map[reflect.Type]*Mapping{}, byStore: map[string]*Mapping{}}
	for _, m := range []*Mapping{
		prefixed("date", "DATE", reflect.TypeFor[pgtype.Date](), KindDate, dateText),
		prefixed("time without time zone", "TIME", reflect.TypeFor[pgtype.Time](), KindTime, timeText),
		prefixed("timestamp without time zone", "TIMESTAMP", reflect.TypeFor[pgtype.Timestamp](), KindTimestamp, timestampText),
		prefixed("timestamp with time zone", "TIMESTAMPTZ", reflect.TypeFor[pgtype.Timestamptz](), KindTimestampTz, timestamptzText),
		prefixed("interval", "INTERVAL", reflect.TypeFor[pgtype.Interval](), KindInterval, intervalText),
		prefixed("point", "POINT", reflect.TypeFor[pgtype.Point](), KindGeometric, pointText),
		prefixed("box", "BOX", reflect.TypeFor[pgtype.Box](), KindGeometric, boxText),
		prefixed("lseg", "LSEG", reflect.TypeFor[pgtype.Lseg](), KindGeometric, lsegText),
		prefixed("circle", "CIRCLE", reflect.TypeFor[pgtype.Circle](), KindGeometric, circleText),
		prefixed("line", "LINE", reflect.TypeFor[pgtype.Line](), KindGeometric, lineText),
		prefixed("path", "PATH", reflect.TypeFor[pgtype.Path](), KindGeometric, pathText),
		prefixed("polygon", "POLYGON", reflect.TypeFor[pgtype.Polygon](), KindGeometric, polygonText),
		custom("bit varying", reflect.TypeFor[pgtype.Bits](), KindBits, bitsText, bitsLiteral),
	} {
		p.byType[m.Type] = m
		if _, ok := p.byStore[m.Base]; !ok {
			p.byStore[m.Base] = m
		}
	}
	// bit(n) shares the Go type with bit varying.
	p.byStore["bit"] = custom("bit", reflect.TypeFor[pgtype.Bits](), KindBits, bitsText, bitsLiteral)
	return p
}

func (p *pgTypesPlugin) Name() string { return "pgtypes" }

func (p *pgTypesPlugin) TryResolve(_ *Registry, req Request) *Mapping {
	if req.StoreType != "" {
		st := parseStoreType(req.StoreType)
		if st.array > 0 {
			return nil
		}
		m, ok := p.byStore[st.base]
		if !ok {
			// timestamp, interval and date are also core store types; match on Go type.
			m, ok = p.byType[req.Type]
			if !ok || m.Base != st.base {
				return nil
			}
		}
		if req.Type != nil && m.Type != req.Type {
			if alt, ok := p.byType[req.Type]; ok && alt.Base == st.base {
				m = alt
			} else {
				return nil
			}
		}
		return applyFacets(m, st.facets, req)
	}
	if m, ok := p.byType[req.Type]; ok {
		return applyHints(nil, m, req)
	}
	return nil
}

func (p *pgTypesPlugin) Types() map[string]reflect.Type {
	out := make(map[string]reflect.Type, len(p.byType))
	for t := range p.byType {
		out["pgtype."+t.Name()] = t
	}
	return out
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func vec(v pgtype.Vec2) string {
	return "(" + fmtFloat(v.X) + "," + fmtFloat(v.Y) + ")"
}

func vecs(vs []pgtype.Vec2) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = vec(v)
	}
	return strings.Join(parts, ",")
}

func pointText(v any) (string, error) {
	p, ok := v.(pgtype.Point)
	if !ok {
		return "", fmt.Errorf("point literal from %T", v)
	}
	return vec(p.P), nil
}

func boxText(v any) (string, error) {
	b, ok := v.(pgtype.Box)
	if !ok {
		return "", fmt.Errorf("box literal from %T", v)
	}
	return vec(b.P[0]) + "," + vec(b.P[1]), nil
}

func lsegText(v any) (string, error) {
	l, ok := v.(pgtype.Lseg)
	if !ok {
		return "", fmt.Errorf("lseg literal from %T", v)
	}
	return "[" + vec(l.P[0]) + "," + vec(l.P[1]) + "]", nil
}

func circleText(v any) (string, error) {
	c, ok := v.(pgtype.Circle)
	if !ok {
		return "", fmt.Errorf("circle literal from %T", v)
	}
	return "<" + vec(c.P) + "," + fmtFloat(c.R) + ">", nil
}

func lineText(v any) (string, error) {
	l, ok := v.(pgtype.Line)
	if !ok {
		return "", fmt.Errorf("line literal from %T", v)
	}
	return "{" + fmtFloat(l.A) + "," + fmtFloat(l.B) + "," + fmtFloat(l.C) + "}", nil
}

func pathText(v any) (string, error) {
	p, ok := v.(pgtype.Path)
	if !ok {
		return "", fmt.Errorf("path literal from %T", v)
	}
	if p.Closed {
		return "(" + vecs(p.P) + ")", nil
	}
	return "[" + vecs(p.P) + "]", nil
}

func polygonText(v any) (string, error) {
	p, ok := v.(pgtype.Polygon)
	if !ok {
		return "", fmt.Errorf("polygon literal from %T", v)
	}
	return "(" + vecs(p.P) + ")", nil
}

func bitsText(v any) (string, error) {
	b, ok := v.(pgtype.Bits)
	if !ok {
		return "", fmt.Errorf("bit string literal from %T", v)
	}
	var sb strings.Builder
	for i := int32(0); i < b.Len; i++ {
		if b.Bytes[i/8]&(0x80>>(i%8)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String(), nil
}

func bitsLiteral(_ *Mapping, v any) (string, error) {
	s, err := bitsText(v)
	if err != nil {
		return "", err
	}
	return "B'" + s + "'", nil
}
