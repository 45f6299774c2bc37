// Package pgtranslate lowers logical queries over a mapping model into
// PostgreSQL statements.
package pgtranslate

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"time"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/query"
	"github.com/spandigital/pgtranslate/sqlast"
	"github.com/spandigital/pgtranslate/typemap"
)

// SQLValue is a translated scalar and the mapping of its store type.
type SQLValue struct {
	Expr    sqlast.Expr
	Mapping *typemap.Mapping
}

// MethodTranslator extends the function table. It is consulted before the
// built-in translations and returns nil, nil to decline a call.
type MethodTranslator interface {
	TranslateMethod(method string, target *SQLValue, args []*SQLValue) (*SQLValue, error)
}

// MethodTranslatorFunc adapts a function to MethodTranslator.
type MethodTranslatorFunc func(method string, target *SQLValue, args []*SQLValue) (*SQLValue, error)

func (f MethodTranslatorFunc) TranslateMethod(method string, target *SQLValue, args []*SQLValue) (*SQLValue, error) {
	return f(method, target, args)
}

// Translator translates queries against one model. It is safe for
// concurrent use.
type Translator struct {
	model     *model.Model
	registry  *typemap.Registry
	logger    *slog.Logger
	tracking  bool
	functions []MethodTranslator
	cache     *statementCache
	types     coreMappings
}

type coreMappings struct {
	boolean  *typemap.Mapping
	int32    *typemap.Mapping
	int64    *typemap.Mapping
	float64  *typemap.Mapping
	text     *typemap.Mapping
	interval *typemap.Mapping
	jsonb    *typemap.Mapping
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger used for cache and translation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Translator) {
		t.logger = logger
	}
}

// WithCache sets the number of statements cached; zero disables caching.
func WithCache(size int) Option {
	return func(t *Translator) {
		t.cache = newStatementCache(size)
	}
}

// WithTracking makes queries materialize tracked entities. Owned types can
// then only be projected together with their owner.
func WithTracking(enabled bool) Option {
	return func(t *Translator) {
		t.tracking = enabled
	}
}

// WithFunctions registers additional method translators.
func WithFunctions(fns ...MethodTranslator) Option {
	return func(t *Translator) {
		t.functions = append(t.functions, fns...)
	}
}

// New creates a translator for m.
func New(m *model.Model, opts ...Option) *Translator {
	t := &Translator{
		model:    m,
		registry: m.Registry(),
		logger:   slog.New(slog.DiscardHandler),
		cache:    newStatementCache(DefaultCacheSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.types = coreMappings{
		boolean:  t.mappingOf(reflect.TypeFor[bool]()),
		int32:    t.mappingOf(reflect.TypeFor[int32]()),
		int64:    t.mappingOf(reflect.TypeFor[int64]()),
		float64:  t.mappingOf(reflect.TypeFor[float64]()),
		text:     t.mappingOf(reflect.TypeFor[string]()),
		interval: t.mappingOf(reflect.TypeFor[time.Duration]()),
		jsonb:    t.mappingOf(reflect.TypeFor[json.RawMessage]()),
	}
	return t
}

// Model is the model queries are translated against.
func (t *Translator) Model() *model.Model { return t.model }

// Translate lowers q to a statement. Queries with the same fingerprint are
// translated once while they stay in the cache; every caller gets its own
// copy of the cached statement.
func (t *Translator) Translate(q query.Node) (*Statement, error) {
	if q == nil {
		return nil, invalidf("nil query")
	}
	key := query.Fingerprint(q)
	if st, ok := t.cache.get(key); ok {
		t.logger.Debug("statement cache hit", "fingerprint", key)
		return st.clone(), nil
	}
	st, err := t.translate(q)
	if err != nil {
		t.logger.Debug("translation failed", "fingerprint", key, "error", err)
		return nil, err
	}
	t.cache.put(key, st)
	t.logger.Debug("statement cache miss", "fingerprint", key, "cached", t.cache.len())
	return st.clone(), nil
}

func (t *Translator) translate(q query.Node) (*Statement, error) {
	l := newLowerer(t)
	rel, err := l.node(q)
	if err != nil {
		return nil, err
	}
	sel, shape, err := l.finish(rel)
	if err != nil {
		return nil, err
	}
	if l.err != nil {
		return nil, l.err
	}
	return &Statement{SQL: sel.SQL(), Tree: sel, Params: l.params, Shape: shape}, nil
}

// mappingOf resolves the default mapping of a Go type, or nil.
func (t *Translator) mappingOf(rt reflect.Type) *typemap.Mapping {
	if rt == nil {
		return nil
	}
	m, err := t.registry.FindMapping(typemap.Request{Type: rt})
	if err != nil {
		return nil
	}
	return m
}
