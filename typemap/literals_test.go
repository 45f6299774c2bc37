package typemap

import (
	"encoding/json"
	"math"
	"net"
	"net/netip"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	Street string
	Number int32
}

func TestGenerateSQLLiteral(t *testing.T) {
	reg := New(Options{
		Plugins:    []Plugin{PgTypes(), Ranges(), Spatial(SpatialOptions{SRID: 4326})},
		Enums:      []Enum{{Type: reflect.TypeFor[mood](), StoreType: "mood"}, {Type: reflect.TypeFor[priority](), StoreType: "priority", Labels: []string{"low", "high"}}},
		Composites: []Composite{{Type: reflect.TypeFor[address](), StoreType: "address"}},
	})
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	mac, _ := net.ParseMAC("08:00:2b:01:02:03")
	var nilInt *int32

	tests := []struct {
		name  string
		req   Request
		value any
		want  string
	}{
		{name: "null", req: Request{Type: reflect.TypeFor[int32]()}, value: nil, want: "NULL"},
		{name: "typed nil pointer", req: Request{Type: reflect.TypeFor[*int32]()}, value: nilInt, want: "NULL"},
		{name: "invalid pgtype value", req: Request{Type: reflect.TypeFor[pgtype.Date]()}, value: pgtype.Date{}, want: "NULL"},
		{name: "bool", req: Request{Type: reflect.TypeFor[bool]()}, value: true, want: "TRUE"},
		{name: "int", req: Request{Type: reflect.TypeFor[int32]()}, value: int32(58), want: "58"},
		{name: "int from untyped constant", req: Request{Type: reflect.TypeFor[int64]()}, value: 7, want: "7"},
		{name: "negative smallint", req: Request{Type: reflect.TypeFor[int16]()}, value: int16(-3), want: "-3"},
		{name: "double", req: Request{Type: reflect.TypeFor[float64]()}, value: 1.5, want: "1.5"},
		{name: "whole double keeps a decimal point", req: Request{Type: reflect.TypeFor[float64]()}, value: 3.0, want: "3.0"},
		{name: "real", req: Request{Type: reflect.TypeFor[float32]()}, value: float32(1.1), want: "1.1::real"},
		{name: "nan", req: Request{Type: reflect.TypeFor[float64]()}, value: math.NaN(), want: "'NaN'::double precision"},
		{name: "negative infinity", req: Request{Type: reflect.TypeFor[float64]()}, value: math.Inf(-1), want: "'-Infinity'::double precision"},
		{name: "numeric", req: Request{Type: reflect.TypeFor[decimal.Decimal]()}, value: decimal.RequireFromString("12.345"), want: "12.345"},
		{name: "text", req: Request{Type: reflect.TypeFor[string]()}, value: "it's", want: "'it''s'"},
		{name: "text with backslash", req: Request{Type: reflect.TypeFor[string]()}, value: `C:\tmp`, want: `E'C:\\tmp'`},
		{name: "bytea", req: Request{Type: reflect.TypeFor[[]byte]()}, value: []byte{0xde, 0xad, 0xbe, 0xef}, want: `E'\\xdeadbeef'::bytea`},
		{name: "timestamptz", req: Request{Type: reflect.TypeFor[time.Time]()}, value: ts, want: "TIMESTAMPTZ '2020-01-02T03:04:05Z'"},
		{name: "timestamptz with offset and fraction", req: Request{Type: reflect.TypeFor[time.Time]()}, value: time.Date(2020, 1, 2, 3, 4, 5, 123456000, time.FixedZone("", 2*3600)), want: "TIMESTAMPTZ '2020-01-02T03:04:05.123456+02:00'"},
		{name: "timestamp", req: Request{StoreType: "timestamp"}, value: ts, want: "TIMESTAMP '2020-01-02T03:04:05'"},
		{name: "timestamp infinity", req: Request{Type: reflect.TypeFor[pgtype.Timestamp]()}, value: pgtype.Timestamp{InfinityModifier: pgtype.Infinity, Valid: true}, want: "TIMESTAMP 'infinity'"},
		{name: "date", req: Request{StoreType: "date"}, value: ts, want: "DATE '2020-01-02'"},
		{name: "pgtype date", req: Request{Type: reflect.TypeFor[pgtype.Date]()}, value: pgtype.Date{Time: ts, Valid: true}, want: "DATE '2020-01-02'"},
		{name: "time", req: Request{Type: reflect.TypeFor[pgtype.Time]()}, value: pgtype.Time{Microseconds: (3*3600+4*60+5)*1_000_000 + 500_000, Valid: true}, want: "TIME '03:04:05.5'"},
		{name: "interval", req: Request{Type: reflect.TypeFor[time.Duration]()}, value: 26*time.Hour + 3*time.Minute + 4*time.Second, want: "INTERVAL '1 02:03:04'"},
		{name: "short interval", req: Request{Type: reflect.TypeFor[time.Duration]()}, value: 90 * time.Second, want: "INTERVAL '00:01:30'"},
		{name: "negative interval", req: Request{Type: reflect.TypeFor[time.Duration]()}, value: -(25 * time.Hour), want: "INTERVAL '-1 -01:00:00'"},
		{name: "pgtype interval", req: Request{Type: reflect.TypeFor[pgtype.Interval]()}, value: pgtype.Interval{Months: 14, Days: 3, Microseconds: 3_600_000_000, Valid: true}, want: "INTERVAL '14 mons 3 days 01:00:00'"},
		{name: "uuid", req: Request{Type: reflect.TypeFor[uuid.UUID]()}, value: uuid.MustParse("8f7331d6-cde9-44fb-8611-81fff686f280"), want: "'8f7331d6-cde9-44fb-8611-81fff686f280'::uuid"},
		{name: "inet", req: Request{Type: reflect.TypeFor[netip.Addr]()}, value: netip.MustParseAddr("192.168.1.1"), want: "INET '192.168.1.1'"},
		{name: "cidr", req: Request{Type: reflect.TypeFor[netip.Prefix]()}, value: netip.MustParsePrefix("10.0.0.0/8"), want: "CIDR '10.0.0.0/8'"},
		{name: "macaddr", req: Request{Type: reflect.TypeFor[net.HardwareAddr]()}, value: mac, want: "MACADDR '08:00:2b:01:02:03'"},
		{name: "jsonb", req: Request{Type: reflect.TypeFor[json.RawMessage]()}, value: json.RawMessage(`{"a":1}`), want: `'{"a":1}'::jsonb`},
		{name: "hstore", req: Request{Type: reflect.TypeFor[map[string]string]()}, value: map[string]string{"b": "2", "a": `x"y`}, want: `E'"a"=>"x\\"y", "b"=>"2"'::hstore`},
		{name: "int array", req: Request{Type: reflect.TypeFor[[]int32]()}, value: []int32{1, 2, 3}, want: "ARRAY[1,2,3]::integer[]"},
		{name: "empty text array", req: Request{Type: reflect.TypeFor[[]string]()}, value: []string{}, want: "ARRAY[]::text[]"},
		{name: "date array", req: Request{Type: reflect.TypeFor[[]pgtype.Date]()}, value: []pgtype.Date{{Time: ts, Valid: true}}, want: "ARRAY[DATE '2020-01-02']::date[]"},
		{name: "int range", req: Request{Type: reflect.TypeFor[pgtype.Range[int32]]()}, value: pgtype.Range[int32]{Lower: 1, Upper: 10, LowerType: pgtype.Inclusive, UpperType: pgtype.Exclusive, Valid: true}, want: "'[1,10)'::int4range"},
		{name: "unbounded range", req: Request{Type: reflect.TypeFor[pgtype.Range[int64]]()}, value: pgtype.Range[int64]{Upper: 10, LowerType: pgtype.Unbounded, UpperType: pgtype.Inclusive, Valid: true}, want: "'(,10]'::int8range"},
		{name: "empty range", req: Request{Type: reflect.TypeFor[pgtype.Range[int32]]()}, value: pgtype.Range[int32]{LowerType: pgtype.Empty, UpperType: pgtype.Empty, Valid: true}, want: "'empty'::int4range"},
		{name: "date range", req: Request{Type: reflect.TypeFor[pgtype.Range[pgtype.Date]]()}, value: pgtype.Range[pgtype.Date]{Lower: pgtype.Date{Time: ts, Valid: true}, Upper: pgtype.Date{Time: ts.AddDate(0, 1, 0), Valid: true}, LowerType: pgtype.Inclusive, UpperType: pgtype.Exclusive, Valid: true}, want: "'[2020-01-02,2020-02-02)'::daterange"},
		{name: "multirange", req: Request{Type: reflect.TypeFor[pgtype.Multirange[pgtype.Range[int32]]]()}, value: pgtype.Multirange[pgtype.Range[int32]]{
			{Lower: 1, Upper: 3, LowerType: pgtype.Inclusive, UpperType: pgtype.Exclusive, Valid: true},
			{Lower: 5, Upper: 7, LowerType: pgtype.Inclusive, UpperType: pgtype.Exclusive, Valid: true},
		}, want: "'{[1,3), [5,7)}'::int4multirange"},
		{name: "string enum", req: Request{Type: reflect.TypeFor[mood]()}, value: mood("happy"), want: "'happy'::mood"},
		{name: "int enum", req: Request{Type: reflect.TypeFor[priority]()}, value: priority(1), want: "'high'::priority"},
		{name: "composite", req: Request{Type: reflect.TypeFor[address]()}, value: address{Street: "Main", Number: 5}, want: "ROW('Main', 5)::address"},
		{name: "point", req: Request{Type: reflect.TypeFor[pgtype.Point]()}, value: pgtype.Point{P: pgtype.Vec2{X: 1.5, Y: 2}, Valid: true}, want: "POINT '(1.5,2)'"},
		{name: "box", req: Request{Type: reflect.TypeFor[pgtype.Box]()}, value: pgtype.Box{P: [2]pgtype.Vec2{{X: 3, Y: 4}, {X: 1, Y: 2}}, Valid: true}, want: "BOX '(3,4),(1,2)'"},
		{name: "circle", req: Request{Type: reflect.TypeFor[pgtype.Circle]()}, value: pgtype.Circle{P: pgtype.Vec2{X: 1, Y: 2}, R: 3, Valid: true}, want: "CIRCLE '<(1,2),3>'"},
		{name: "open path", req: Request{Type: reflect.TypeFor[pgtype.Path]()}, value: pgtype.Path{P: []pgtype.Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}}, Valid: true}, want: "PATH '[(0,0),(1,1)]'"},
		{name: "bits", req: Request{Type: reflect.TypeFor[pgtype.Bits]()}, value: pgtype.Bits{Bytes: []byte{0xa0}, Len: 3, Valid: true}, want: "B'101'"},
		{name: "geometry", req: Request{Type: reflect.TypeFor[orb.LineString]()}, value: orb.LineString{{32, 43}, {23, 55}}, want: "ST_GeomFromText('LINESTRING(32 43,23 55)', 4326)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := reg.FindMapping(tt.req)
			require.NoError(t, err)
			got, err := GenerateSQLLiteral(m, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateSQLLiteralErrors(t *testing.T) {
	reg := New(DefaultOptions())
	m, err := reg.FindMapping(Request{Type: reflect.TypeFor[int32]()})
	require.NoError(t, err)

	_, err = m.Literal("not a number")
	assert.Error(t, err)

	_, err = m.Literal(1.5)
	assert.Error(t, err)

	_, err = GenerateSQLLiteral(nil, 3)
	assert.ErrorIs(t, err, ErrNoMapping)

	s, err := GenerateSQLLiteral(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "NULL", s)
}
