package pg

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spandigital/pgtranslate/model"
	"github.com/spandigital/pgtranslate/typemap"
)

// WarningKind classifies a scaffolding anomaly.
type WarningKind int

const (
	MissingSchema WarningKind = iota
	MissingTable
	MissingPrincipal
	UnmappedColumn
	NoPrimaryKey
)

func (k WarningKind) String() string {
	switch k {
	case MissingSchema:
		return "missing_schema"
	case MissingTable:
		return "missing_table"
	case MissingPrincipal:
		return "missing_principal"
	case UnmappedColumn:
		return "unmapped_column"
	case NoPrimaryKey:
		return "no_primary_key"
	default:
		return "unknown"
	}
}

// Warning reports something the scaffolder could not map. The object it
// names is left out of the model.
type Warning struct {
	Kind      WarningKind
	Schema    string
	Table     string
	Principal string
	Column    string
	Message   string
}

// Result is the outcome of a scaffold.
type Result struct {
	Database *DatabaseModel
	Model    *model.Model
	Warnings []Warning
}

// Scaffolder reverse-maps a database into a mapping model.
type Scaffolder struct {
	catalog  Catalog
	registry *typemap.Registry
	logger   *slog.Logger
}

type Option func(*Scaffolder)

// WithLogger sets the logger warnings are written to.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scaffolder) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry sets the registry store types are resolved with.
func WithRegistry(reg *typemap.Registry) Option {
	return func(s *Scaffolder) {
		if reg != nil {
			s.registry = reg
		}
	}
}

func NewScaffolder(c Catalog, opts ...Option) *Scaffolder {
	s := &Scaffolder{
		catalog:  c,
		registry: typemap.New(typemap.DefaultOptions()),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scaffold reads the tables f selects and maps each keyed table to an
// entity, with reference and collection navigations for its foreign keys.
func (s *Scaffolder) Scaffold(ctx context.Context, f Filter) (*Result, error) {
	db, err := s.catalog.ReadDatabase(ctx, f)
	if err != nil {
		return nil, err
	}
	sc := &scaffold{s: s, db: db, res: &Result{Database: db}, entities: map[*Table]*model.Entity{}}
	sc.checkFilter(f)

	names := entityNames(db.Tables)
	var def model.Definition
	for _, t := range db.Tables {
		if e := sc.entity(t, names[t]); e != nil {
			sc.entities[t] = e
			def.Entities = append(def.Entities, e)
		}
	}
	for _, t := range db.Tables {
		if _, ok := sc.entities[t]; ok {
			sc.navigations(t)
		}
	}

	m, err := def.Build(s.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build scaffolded model: %w", err)
	}
	sc.res.Model = m
	s.logger.Info("scaffolded model",
		slog.Int("tables", len(db.Tables)),
		slog.Int("entities", len(def.Entities)),
		slog.Int("warnings", len(sc.res.Warnings)))
	return sc.res, nil
}

type scaffold struct {
	s        *Scaffolder
	db       *DatabaseModel
	res      *Result
	entities map[*Table]*model.Entity
	// columns maps each table's column names to property names.
	columns map[*Table]map[string]string
}

func (sc *scaffold) warn(w Warning) {
	sc.res.Warnings = append(sc.res.Warnings, w)
	attrs := []any{slog.String("kind", w.Kind.String()), slog.String("schema", w.Schema), slog.String("table", w.Table)}
	if w.Principal != "" {
		attrs = append(attrs, slog.String("principal", w.Principal))
	}
	if w.Column != "" {
		attrs = append(attrs, slog.String("column", w.Column))
	}
	sc.s.logger.Warn(w.Message, attrs...)
}

func (sc *scaffold) checkFilter(f Filter) {
	for _, schema := range f.Schemas {
		if !slices.Contains(sc.db.Schemas, schema) {
			sc.warn(Warning{Kind: MissingSchema, Schema: schema, Message: "schema not found"})
		}
	}
	for _, tn := range f.Tables {
		found := slices.ContainsFunc(sc.db.Tables, func(t *Table) bool {
			return t.Name == tn.Name && (tn.Schema == "" || t.Schema == tn.Schema)
		})
		if !found {
			sc.warn(Warning{Kind: MissingTable, Schema: tn.Schema, Table: tn.Name, Message: "table not found"})
		}
	}
}

func (sc *scaffold) entity(t *Table, name string) *model.Entity {
	key := t.PrimaryKey
	if key == nil && len(t.UniqueKeys) > 0 {
		key = t.UniqueKeys[0]
	}
	if key == nil {
		sc.warn(Warning{Kind: NoPrimaryKey, Schema: t.Schema, Table: t.Name, Message: "table has no primary key"})
		return nil
	}

	e := &model.Entity{Name: name, Table: t.Name}
	if t.Schema != "public" {
		e.Schema = t.Schema
	}
	props := map[string]string{}
	taken := map[string]bool{}
	for _, c := range t.Columns {
		p, ok := sc.property(t, c)
		if !ok {
			continue
		}
		p.Name = unique(p.Name, taken)
		if p.Name != c.Name {
			p.Column = c.Name
		}
		props[c.Name] = p.Name
		e.Properties = append(e.Properties, p)
	}
	for _, col := range key.Columns {
		prop, ok := props[col]
		if !ok {
			sc.warn(Warning{Kind: NoPrimaryKey, Schema: t.Schema, Table: t.Name, Column: col, Message: "key column has no mapping"})
			return nil
		}
		e.Key = append(e.Key, prop)
	}
	if sc.columns == nil {
		sc.columns = map[*Table]map[string]string{}
	}
	sc.columns[t] = props
	return e
}

var stringType = reflect.TypeOf("")

func (sc *scaffold) property(t *Table, c *Column) (*model.Property, bool) {
	p := &model.Property{Name: memberName(c.Name), StoreType: c.StoreType, Nullable: c.Nullable}
	if dom, ok := sc.db.Domain(c.StoreType); ok {
		p.StoreType = dom.BaseType
		p.Nullable = p.Nullable && dom.Nullable
	}
	if _, err := sc.s.registry.FindMapping(typemap.Request{StoreType: p.StoreType}); err == nil {
		return p, true
	}
	if sc.isEnum(p.StoreType) {
		p.Type = stringType
		return p, true
	}
	sc.warn(Warning{
		Kind:    UnmappedColumn,
		Schema:  t.Schema,
		Table:   t.Name,
		Column:  c.Name,
		Message: fmt.Sprintf("no mapping for store type %q", c.StoreType),
	})
	return nil, false
}

// isEnum reports whether storeType names an enum. Enum properties map to
// strings carrying the enum's store type.
func (sc *scaffold) isEnum(name string) bool {
	return slices.ContainsFunc(sc.db.Enums, func(e Enum) bool {
		return e.Name == name || e.Schema+"."+e.Name == name
	})
}

// navigations adds, for each foreign key of t, a reference on t and a
// collection on the principal.
func (sc *scaffold) navigations(t *Table) {
	dep := sc.entities[t]
	for _, fk := range t.ForeignKeys {
		principal := fk.PrincipalSchema + "." + fk.PrincipalTable
		pt, ok := sc.db.Table(fk.PrincipalSchema, fk.PrincipalTable)
		if !ok {
			sc.warn(Warning{Kind: MissingPrincipal, Schema: t.Schema, Table: t.Name, Principal: principal,
				Message: fmt.Sprintf("foreign key %s references a table that was not selected", fk.Name)})
			continue
		}
		pe, ok := sc.entities[pt]
		if !ok {
			sc.warn(Warning{Kind: MissingPrincipal, Schema: t.Schema, Table: t.Name, Principal: principal,
				Message: fmt.Sprintf("foreign key %s references a table that was not mapped", fk.Name)})
			continue
		}
		fkProps, ok := mapColumns(sc.columns[t], fk.Columns)
		if !ok {
			sc.warn(Warning{Kind: UnmappedColumn, Schema: t.Schema, Table: t.Name, Principal: principal,
				Message: fmt.Sprintf("foreign key %s uses an unmapped column", fk.Name)})
			continue
		}
		pkProps, ok := mapColumns(sc.columns[pt], fk.PrincipalColumns)
		if !ok {
			sc.warn(Warning{Kind: UnmappedColumn, Schema: t.Schema, Table: t.Name, Principal: principal,
				Message: fmt.Sprintf("foreign key %s references an unmapped column", fk.Name)})
			continue
		}
		if slices.Equal(pkProps, pe.Key) {
			pkProps = nil
		}

		refName := pe.Name
		if len(fkProps) == 1 {
			if n := strings.TrimSuffix(fkProps[0], "Id"); n != "" && n != fkProps[0] {
				refName = n
			}
		}
		dep.Navigations = append(dep.Navigations, &model.Navigation{
			Name:         navigationName(dep, refName),
			Target:       pe.Name,
			ForeignKey:   fkProps,
			PrincipalKey: pkProps,
		})
		pe.Navigations = append(pe.Navigations, &model.Navigation{
			Name:         navigationName(pe, dep.Name),
			Target:       dep.Name,
			Collection:   true,
			ForeignKey:   fkProps,
			PrincipalKey: pkProps,
		})
	}
}

func mapColumns(props map[string]string, cols []string) ([]string, bool) {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		p, ok := props[c]
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, len(out) > 0
}

// navigationName avoids the names of e's members, first with a
// Navigation suffix, then with a counter.
func navigationName(e *model.Entity, name string) string {
	taken := map[string]bool{}
	for _, p := range e.Properties {
		taken[p.Name] = true
	}
	for _, n := range e.Navigations {
		taken[n.Name] = true
	}
	if taken[name] {
		name += "Navigation"
	}
	return unique(name, taken)
}

// unique returns name, or name with the lowest free counter appended, and
// marks the result taken.
func unique(name string, taken map[string]bool) string {
	out := name
	for i := 1; taken[out]; i++ {
		out = fmt.Sprintf("%s%d", name, i)
	}
	taken[out] = true
	return out
}

// entityNames names each table's entity. Tables in public claim bare
// names first; a table whose name is taken gets a schema prefix.
func entityNames(tables []*Table) map[*Table]string {
	names := make(map[*Table]string, len(tables))
	taken := map[string]bool{}
	assign := func(public bool) {
		for _, t := range tables {
			if (t.Schema == "public") != public {
				continue
			}
			name := memberName(t.Name)
			if taken[name] {
				name = memberName(t.Schema) + name
			}
			names[t] = unique(name, taken)
		}
	}
	assign(true)
	assign(false)
	return names
}

// memberName converts a snake_case identifier to PascalCase. Identifiers
// that already mix case are kept as they are.
func memberName(ident string) string {
	if isMixedCase(ident) && !strings.ContainsAny(ident, "_- ") {
		return ident
	}
	parts := strings.FieldsFunc(ident, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	title := cases.Title(language.English)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(title.String(p))
	}
	name := b.String()
	if name == "" {
		return "Column"
	}
	if r := []rune(name)[0]; !unicode.IsLetter(r) {
		name = "C" + name
	}
	return name
}

func isMixedCase(s string) bool {
	var upper, lower bool
	for _, r := range s {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
	}
	return upper && lower
}
