// Package typemap maps Go value types to PostgreSQL store types and renders
// values of those types as SQL literals.
package typemap

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoMapping is returned when neither the core registry nor any plugin can
// map a Go type / store type combination.
var ErrNoMapping = errors.New("no type mapping")

// Request describes what to resolve. Either Type or StoreType (or both) is set.
type Request struct {
	Type        reflect.Type
	StoreType   string
	Size        *int
	Precision   *int
	Scale       *int
	FixedLength bool
}

func (r Request) String() string {
	var parts []string
	if r.Type != nil {
		parts = append(parts, "type "+r.Type.String())
	}
	if r.StoreType != "" {
		parts = append(parts, "store type "+strconv.Quote(r.StoreType))
	}
	return strings.Join(parts, ", ")
}

// Plugin extends the registry. Plugins are consulted in registration order
// when the core registry has no match; the first non-nil result wins.
type Plugin interface {
	Name() string
	TryResolve(r *Registry, req Request) *Mapping
	// Types names the Go types the plugin understands, for model files.
	Types() map[string]reflect.Type
}

// Enum maps a Go type (string- or integer-kinded) to a PostgreSQL enum.
// Integer-kinded enums index into Labels.
type Enum struct {
	Type      reflect.Type
	StoreType string
	Labels    []string
}

// Composite maps a Go struct to a PostgreSQL composite type; fields map in
// declaration order.
type Composite struct {
	Type      reflect.Type
	StoreType string
}

// Options configure a Registry.
type Options struct {
	// LegacyTimestamp maps time.Time to timestamp without time zone.
	LegacyTimestamp bool
	Plugins         []Plugin
	Enums           []Enum
	Composites      []Composite
}

// DefaultOptions enables the pgtype and range plugins.
func DefaultOptions() Options {
	return Options{Plugins: []Plugin{PgTypes(), Ranges()}}
}

// Registry resolves mappings. It is immutable after New and safe for
// concurrent use.
type Registry struct {
	legacy    bool
	byType    map[reflect.Type]*Mapping
	byStore   map[string][]*Mapping
	plugins   []Plugin
	names     map[string]reflect.Type
	typeNames map[reflect.Type]string
}

// New builds a registry.
func New(opts Options) *Registry {
	r := &Registry{
		legacy:    opts.LegacyTimestamp,
		byType:    make(map[reflect.Type]*Mapping),
		byStore:   make(map[string][]*Mapping),
		plugins:   opts.Plugins,
		names:     make(map[string]reflect.Type),
		typeNames: make(map[reflect.Type]string),
	}
	r.registerCore()
	for _, p := range opts.Plugins {
		for name, t := range p.Types() {
			r.name(name, t)
		}
	}
	for _, e := range opts.Enums {
		r.registerEnum(e)
	}
	for _, c := range opts.Composites {
		r.registerComposite(c)
	}
	return r
}

// LegacyTimestamp reports the timestamp mode the registry was built with.
func (r *Registry) LegacyTimestamp() bool { return r.legacy }

// add registers m for its Go type (when clrDefault) and for its store type.
// The first mapping registered for a store type is that store type's default.
func (r *Registry) add(m *Mapping, clrDefault bool) {
	if clrDefault && m.Type != nil {
		r.byType[m.Type] = m
	}
	r.byStore[m.Base] = append(r.byStore[m.Base], m)
}

func (r *Registry) name(name string, t reflect.Type) {
	r.names[name] = t
	if _, ok := r.typeNames[t]; !ok {
		r.typeNames[t] = name
	}
}

// TypeByName resolves a Go type name as written in model files: int32,
// *string, []time.Time, pgtype.Range[int32], enum and composite names.
func (r *Registry) TypeByName(name string) (reflect.Type, bool) {
	name = strings.TrimSpace(name)
	switch {
	case strings.HasPrefix(name, "*"):
		t, ok := r.TypeByName(name[1:])
		if !ok {
			return nil, false
		}
		return reflect.PointerTo(t), true
	case strings.HasPrefix(name, "[]") && name != "[]byte":
		t, ok := r.TypeByName(name[2:])
		if !ok {
			return nil, false
		}
		return reflect.SliceOf(t), true
	}
	t, ok := r.names[name]
	return t, ok
}

// TypeName is the inverse of TypeByName.
func (r *Registry) TypeName(t reflect.Type) string {
	if n, ok := r.typeNames[t]; ok {
		return n
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + r.TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + r.TypeName(t.Elem())
	}
	return t.String()
}

// FindMapping resolves req. Resolution order: exact store type (validated
// against the Go type when both are given), Go type with facet hints,
// plugins in order, then array element recursion. Unknown store types with a
// known Go type keep the unknown name verbatim.
func (r *Registry) FindMapping(req Request) (*Mapping, error) {
	if m := r.resolve(req); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w for %s", ErrNoMapping, req)
}

func (r *Registry) resolve(req Request) *Mapping {
	if req.Type != nil && req.Type.Kind() == reflect.Pointer {
		req.Type = req.Type.Elem()
	}

	if req.StoreType != "" {
		st := parseStoreType(req.StoreType)
		if st.array > 0 {
			return r.resolveArrayStore(req, st)
		}
		if m := r.byStoreType(st.base, req.Type); m != nil {
			return applyFacets(m, st.facets, req)
		}
		if m := r.tryPlugins(req); m != nil {
			return m
		}
		if req.Type == nil || len(r.byStore[st.base]) > 0 {
			return nil
		}
		// Domain or alias: map structurally, keep the name.
		m := r.resolve(Request{Type: req.Type, Size: req.Size, Precision: req.Precision, Scale: req.Scale})
		if m == nil {
			return nil
		}
		m = m.clone()
		m.StoreType = req.StoreType
		m.Base = req.StoreType
		return m
	}

	if req.Type == nil {
		return nil
	}
	if m, ok := r.byType[req.Type]; ok {
		return applyHints(r, m, req)
	}
	if m := r.tryPlugins(req); m != nil {
		return m
	}
	if req.Type.Kind() == reflect.Slice || req.Type.Kind() == reflect.Array {
		el := r.resolve(Request{Type: req.Type.Elem()})
		if el == nil || el.IsArray() {
			return nil
		}
		return ArrayOf(el, req.Type)
	}
	return nil
}

func (r *Registry) byStoreType(base string, t reflect.Type) *Mapping {
	candidates := r.byStore[base]
	if len(candidates) == 0 {
		return nil
	}
	if t == nil {
		return candidates[0]
	}
	for _, m := range candidates {
		if m.Type == t {
			return m
		}
	}
	// Store type known but the Go type does not match any of its mappings.
	return nil
}

func (r *Registry) resolveArrayStore(req Request, st storeType) *Mapping {
	var elemType reflect.Type
	if req.Type != nil {
		if req.Type.Kind() != reflect.Slice && req.Type.Kind() != reflect.Array {
			return nil
		}
		elemType = req.Type.Elem()
	}
	elemStore := st.raw
	for i := 0; i < st.array; i++ {
		elemStore = strings.TrimSuffix(strings.TrimSpace(elemStore), "[]")
	}
	el := r.resolve(Request{Type: elemType, StoreType: elemStore})
	if el == nil {
		return nil
	}
	t := req.Type
	if t == nil {
		t = reflect.SliceOf(el.Type)
	}
	return ArrayOf(el, t)
}

func (r *Registry) tryPlugins(req Request) *Mapping {
	for _, p := range r.plugins {
		if m := p.TryResolve(r, req); m != nil {
			return m
		}
	}
	return nil
}

// ArrayOf wraps el in an array mapping for Go type t.
func ArrayOf(el *Mapping, t reflect.Type) *Mapping {
	return &Mapping{
		StoreType: el.StoreType + "[]",
		Base:      el.Base + "[]",
		Type:      t,
		Kind:      KindArray,
		Element:   el,
		style:     styleCustom,
		literal:   arrayLiteral,
	}
}

type storeType struct {
	raw    string
	base   string
	facets []int
	array  int
}

var facetPattern = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

var storeAliases = map[string]string{
	"int2":        "smallint",
	"smallserial": "smallint",
	"int":         "integer",
	"int4":        "integer",
	"serial":      "integer",
	"int8":        "bigint",
	"bigserial":   "bigint",
	"float4":      "real",
	"float8":      "double precision",
	"float":       "double precision",
	"bool":        "boolean",
	"varchar":     "character varying",
	"char":        "character",
	"bpchar":      "character",
	"decimal":     "numeric",
	"timestamptz": "timestamp with time zone",
	"timestamp":   "timestamp without time zone",
	"timetz":      "time with time zone",
	"time":        "time without time zone",
	"varbit":      "bit varying",
}

// parseStoreType normalises a store type name: aliases resolved, facets
// extracted, array suffixes counted. timestamp(3) with time zone has its
// facet in the middle.
func parseStoreType(s string) storeType {
	st := storeType{raw: s}
	t := strings.ToLower(strings.TrimSpace(s))
	for strings.HasSuffix(t, "[]") {
		st.array++
		t = strings.TrimSpace(strings.TrimSuffix(t, "[]"))
	}
	if loc := facetPattern.FindStringSubmatchIndex(t); loc != nil {
		for _, g := range [][2]int{{loc[2], loc[3]}, {loc[4], loc[5]}} {
			if g[0] >= 0 {
				n, _ := strconv.Atoi(t[g[0]:g[1]])
				st.facets = append(st.facets, n)
			}
		}
		t = strings.TrimSpace(t[:loc[0]] + t[loc[1]:])
		t = strings.Join(strings.Fields(t), " ")
	}
	if a, ok := storeAliases[t]; ok {
		t = a
	}
	st.base = t
	return st
}

// applyFacets copies m with facets parsed from the store type name.
func applyFacets(m *Mapping, facets []int, req Request) *Mapping {
	if len(facets) == 0 {
		return applyHints(nil, m, Request{Size: req.Size, Precision: req.Precision, Scale: req.Scale})
	}
	c := m.clone()
	switch c.Base {
	case "numeric":
		p := facets[0]
		c.Precision = &p
		if len(facets) > 1 {
			s := facets[1]
			c.Scale = &s
		}
	case "timestamp with time zone", "timestamp without time zone", "time without time zone", "time with time zone", "interval":
		p := facets[0]
		c.Precision = &p
	default:
		n := facets[0]
		c.Size = &n
	}
	c.StoreType = facetedName(c)
	return c
}

// applyHints selects a parameterised store type from size/precision/scale hints.
func applyHints(r *Registry, m *Mapping, req Request) *Mapping {
	if req.Size == nil && req.Precision == nil && req.Scale == nil && !req.FixedLength {
		return m
	}
	c := m.clone()
	if c.Kind == KindText && r != nil && (req.Size != nil || req.FixedLength) {
		base := "character varying"
		if req.FixedLength {
			base = "character"
		}
		if alt := r.byStoreType(base, c.Type); alt != nil {
			c = alt.clone()
		}
	}
	switch c.Kind {
	case KindText, KindBits:
		c.Size = req.Size
	case KindNumeric:
		c.Precision = req.Precision
		c.Scale = req.Scale
	case KindTimestamp, KindTimestampTz, KindTime, KindInterval:
		c.Precision = req.Precision
	}
	c.StoreType = facetedName(c)
	return c
}

func facetedName(m *Mapping) string {
	switch m.Base {
	case "numeric":
		switch {
		case m.Precision != nil && m.Scale != nil:
			return fmt.Sprintf("numeric(%d,%d)", *m.Precision, *m.Scale)
		case m.Precision != nil:
			return fmt.Sprintf("numeric(%d)", *m.Precision)
		}
	case "timestamp with time zone", "timestamp without time zone", "time with time zone", "time without time zone":
		if m.Precision != nil {
			head, tail, _ := strings.Cut(m.Base, " ")
			return fmt.Sprintf("%s(%d) %s", head, *m.Precision, tail)
		}
	case "interval":
		if m.Precision != nil {
			return fmt.Sprintf("interval(%d)", *m.Precision)
		}
	default:
		if m.Size != nil {
			return fmt.Sprintf("%s(%d)", m.Base, *m.Size)
		}
	}
	return m.Base
}
