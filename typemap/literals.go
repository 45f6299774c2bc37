package typemap

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const (
	timestampLayout   = "2006-01-02T15:04:05.999999"
	timestamptzLayout = "2006-01-02T15:04:05.999999Z07:00"
	dateLayout        = "2006-01-02"
)

func boolLiteral(_ *Mapping, v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Bool {
			return "", fmt.Errorf("boolean literal from %T", v)
		}
		b = rv.Bool()
	}
	if b {
		return "TRUE", nil
	}
	return "FALSE", nil
}

func boolText(v any) (string, error) {
	s, err := boolLiteral(nil, v)
	return strings.ToLower(s), err
}

func intText(v any) (string, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return "", fmt.Errorf("integer literal from fractional %v", f)
		}
		return strconv.FormatInt(int64(f), 10), nil
	}
	return "", fmt.Errorf("integer literal from %T", v)
}

func floatValue(v any) (float64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32:
		// Format through the 32-bit representation so 1.1 stays 1.1.
		f, _ := strconv.ParseFloat(strconv.FormatFloat(rv.Float(), 'g', -1, 32), 64)
		return f, nil
	case reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("float literal from %T", v)
}

func floatText(v any) (string, error) {
	f, err := floatValue(v)
	if err != nil {
		return "", err
	}
	switch {
	case math.IsNaN(f):
		return "NaN", nil
	case math.IsInf(f, 1):
		return "Infinity", nil
	case math.IsInf(f, -1):
		return "-Infinity", nil
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}

// floatLiteral renders doubles bare and reals with an explicit cast.
// Non-finite values are always quoted and cast.
func floatLiteral(m *Mapping, v any) (string, error) {
	s, err := floatText(v)
	if err != nil {
		return "", err
	}
	if s == "NaN" || strings.HasSuffix(s, "Infinity") {
		return "'" + s + "'::" + m.StoreType, nil
	}
	if m.Base == "real" {
		return s + "::real", nil
	}
	return s, nil
}

func numericText(v any) (string, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d.String(), nil
	case decimal.NullDecimal:
		return d.Decimal.String(), nil
	case string:
		p, err := decimal.NewFromString(d)
		if err != nil {
			return "", err
		}
		return p.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return decimal.NewFromFloat(rv.Float()).String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	}
	return "", fmt.Errorf("numeric literal from %T", v)
}

func stringText(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case []byte:
		return string(s), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", fmt.Errorf("text literal from %T", v)
}

func bytesText(v any) (string, error) {
	b, ok := v.([]byte)
	if !ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.Uint8 {
			return "", fmt.Errorf("bytea literal from %T", v)
		}
		b = rv.Bytes()
	}
	return `\x` + hex.EncodeToString(b), nil
}

func infinity(im pgtype.InfinityModifier) (string, bool) {
	switch im {
	case pgtype.Infinity:
		return "infinity", true
	case pgtype.NegativeInfinity:
		return "-infinity", true
	}
	return "", false
}

func timestamptzText(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(timestamptzLayout), nil
	case pgtype.Timestamptz:
		if s, ok := infinity(t.InfinityModifier); ok {
			return s, nil
		}
		return t.Time.Format(timestamptzLayout), nil
	}
	return "", fmt.Errorf("timestamptz literal from %T", v)
}

func timestampText(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(timestampLayout), nil
	case pgtype.Timestamp:
		if s, ok := infinity(t.InfinityModifier); ok {
			return s, nil
		}
		return t.Time.Format(timestampLayout), nil
	}
	return "", fmt.Errorf("timestamp literal from %T", v)
}

func dateText(v any) (string, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(dateLayout), nil
	case pgtype.Date:
		if s, ok := infinity(t.InfinityModifier); ok {
			return s, nil
		}
		return t.Time.Format(dateLayout), nil
	}
	return "", fmt.Errorf("date literal from %T", v)
}

func timeText(v any) (string, error) {
	var us int64
	switch t := v.(type) {
	case pgtype.Time:
		us = t.Microseconds
	case time.Duration:
		us = t.Microseconds()
	case time.Time:
		return t.Format("15:04:05.999999"), nil
	default:
		return "", fmt.Errorf("time literal from %T", v)
	}
	return clock(us), nil
}

// clock formats a microsecond count as [-]HH:MM:SS[.ffffff].
func clock(us int64) string {
	sign := ""
	if us < 0 {
		sign = "-"
		us = -us
	}
	h := us / int64(time.Hour/time.Microsecond)
	us -= h * int64(time.Hour/time.Microsecond)
	m := us / int64(time.Minute/time.Microsecond)
	us -= m * int64(time.Minute/time.Microsecond)
	s := us / 1_000_000
	frac := us % 1_000_000
	out := fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
	if frac != 0 {
		out += strings.TrimRight(fmt.Sprintf(".%06d", frac), "0")
	}
	return out
}

func intervalText(v any) (string, error) {
	switch d := v.(type) {
	case time.Duration:
		us := d.Microseconds()
		day := int64(24 * time.Hour / time.Microsecond)
		days := us / day
		rest := us - days*day
		if days == 0 {
			return clock(rest), nil
		}
		return fmt.Sprintf("%d %s", days, clock(rest)), nil
	case pgtype.Interval:
		var parts []string
		if d.Months != 0 {
			parts = append(parts, fmt.Sprintf("%d mons", d.Months))
		}
		if d.Days != 0 {
			parts = append(parts, fmt.Sprintf("%d days", d.Days))
		}
		if d.Microseconds != 0 || len(parts) == 0 {
			parts = append(parts, clock(d.Microseconds))
		}
		return strings.Join(parts, " "), nil
	}
	return "", fmt.Errorf("interval literal from %T", v)
}

func uuidText(v any) (string, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u.String(), nil
	case [16]byte:
		return uuid.UUID(u).String(), nil
	case string:
		p, err := uuid.Parse(u)
		if err != nil {
			return "", err
		}
		return p.String(), nil
	}
	return "", fmt.Errorf("uuid literal from %T", v)
}

func inetText(v any) (string, error) {
	switch a := v.(type) {
	case netip.Addr:
		return a.String(), nil
	case netip.Prefix:
		return a.String(), nil
	case net.IP:
		return a.String(), nil
	case *net.IPNet:
		return a.String(), nil
	}
	return "", fmt.Errorf("network literal from %T", v)
}

func macText(v any) (string, error) {
	if a, ok := v.(net.HardwareAddr); ok {
		return a.String(), nil
	}
	return "", fmt.Errorf("macaddr literal from %T", v)
}

func jsonText(v any) (string, error) {
	switch j := v.(type) {
	case json.RawMessage:
		return string(j), nil
	case []byte:
		return string(j), nil
	case string:
		return j, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func hstoreText(v any) (string, error) {
	m, ok := v.(map[string]string)
	if !ok {
		return "", fmt.Errorf("hstore literal from %T", v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = `"` + esc.Replace(k) + `"=>"` + esc.Replace(m[k]) + `"`
	}
	return strings.Join(parts, ", "), nil
}

// arrayLiteral renders ARRAY[...]::element[] from element literals.
func arrayLiteral(m *Mapping, v any) (string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return "", fmt.Errorf("array literal from %T", v)
	}
	elems := make([]string, rv.Len())
	for i := range elems {
		s, err := m.Element.Literal(rv.Index(i).Interface())
		if err != nil {
			return "", err
		}
		elems[i] = s
	}
	return "ARRAY[" + strings.Join(elems, ",") + "]::" + m.StoreType, nil
}
