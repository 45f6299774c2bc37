package typemap

import (
	"fmt"
	"reflect"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/spandigital/pgtranslate/sqlast"
)

// SpatialOptions configure the PostGIS plugin.
type SpatialOptions struct {
	// SRID is attached to literals when non-zero.
	SRID int
	// Geography maps to the geography type instead of geometry.
	Geography bool
}

type spatialPlugin struct {
	opts  SpatialOptions
	types map[string]reflect.Type
}

// Spatial maps paulmach/orb geometries to PostGIS geometry or geography.
func Spatial(opts SpatialOptions) Plugin {
	return &spatialPlugin{
		opts: opts,
		types: map[string]reflect.Type{
			"orb.Point":           reflect.TypeFor[orb.Point](),
			"orb.MultiPoint":      reflect.TypeFor[orb.MultiPoint](),
			"orb.LineString":      reflect.TypeFor[orb.LineString](),
			"orb.MultiLineString": reflect.TypeFor[orb.MultiLineString](),
			"orb.Polygon":         reflect.TypeFor[orb.Polygon](),
			"orb.MultiPolygon":    reflect.TypeFor[orb.MultiPolygon](),
			"orb.Collection":      reflect.TypeFor[orb.Collection](),
			"orb.Geometry":        reflect.TypeFor[orb.Geometry](),
		},
	}
}

func (p *spatialPlugin) Name() string { return "spatial" }

func (p *spatialPlugin) Types() map[string]reflect.Type { return p.types }

func (p *spatialPlugin) store() string {
	if p.opts.Geography {
		return "geography"
	}
	return "geometry"
}

func (p *spatialPlugin) TryResolve(_ *Registry, req Request) *Mapping {
	if req.StoreType != "" {
		st := parseStoreType(req.StoreType)
		if st.array > 0 || (st.base != "geometry" && st.base != "geography") {
			return nil
		}
		t := req.Type
		if t == nil {
			t = reflect.TypeFor[orb.Geometry]()
		}
		if !p.known(t) {
			return nil
		}
		m := p.mapping(t)
		m.StoreType, m.Base = req.StoreType, st.base
		return m
	}
	if req.Type == nil || !p.known(req.Type) {
		return nil
	}
	return p.mapping(req.Type)
}

func (p *spatialPlugin) known(t reflect.Type) bool {
	for _, k := range p.types {
		if k == t {
			return true
		}
	}
	return false
}

func (p *spatialPlugin) mapping(t reflect.Type) *Mapping {
	return custom(p.store(), t, KindSpatial, geometryText, p.literal)
}

func geometryText(v any) (string, error) {
	g, ok := v.(orb.Geometry)
	if !ok {
		return "", fmt.Errorf("geometry literal from %T", v)
	}
	return wkt.MarshalString(g), nil
}

func (p *spatialPlugin) literal(m *Mapping, v any) (string, error) {
	text, err := geometryText(v)
	if err != nil {
		return "", err
	}
	fn := "ST_GeomFromText"
	if m.Base == "geography" {
		fn = "ST_GeogFromText"
	}
	if p.opts.SRID != 0 && fn == "ST_GeomFromText" {
		return fmt.Sprintf("%s(%s, %d)", fn, sqlast.QuoteString(text), p.opts.SRID), nil
	}
	return fn + "(" + sqlast.QuoteString(text) + ")", nil
}
