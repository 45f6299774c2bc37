package pg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Catalog reads the structure of a database.
type Catalog interface {
	ReadDatabase(ctx context.Context, f Filter) (*DatabaseModel, error)
}

// PoolCatalog reads pg_catalog through a connection pool.
type PoolCatalog struct {
	pool   *pgxpool.Pool
	owned  bool
	logger *slog.Logger
}

// NewCatalog connects to the database at dsn. Close releases the pool.
func NewCatalog(ctx context.Context, dsn string, logger *slog.Logger) (*PoolCatalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	c := NewPoolCatalog(pool, logger)
	c.owned = true
	return c, nil
}

// NewPoolCatalog reads through an existing pool, which the caller keeps
// ownership of.
func NewPoolCatalog(pool *pgxpool.Pool, logger *slog.Logger) *PoolCatalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PoolCatalog{pool: pool, logger: logger}
}

// Close closes the pool if NewCatalog opened it.
func (c *PoolCatalog) Close() {
	if c.owned {
		c.pool.Close()
	}
}

const userSchemas = `n.nspname NOT IN ('pg_catalog', 'information_schema')
	AND n.nspname NOT LIKE 'pg_toast%' AND n.nspname NOT LIKE 'pg_temp%'`

const relations = `c.relkind IN ('r', 'p', 'v', 'm', 'f') AND NOT c.relispartition`

var (
	schemasQuery = `
		SELECT n.nspname
		FROM pg_namespace n
		WHERE ` + userSchemas + `
		ORDER BY n.nspname`

	tablesQuery = `
		SELECT n.nspname::text, c.relname::text, coalesce(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE ` + relations + ` AND ` + userSchemas + `
		ORDER BY n.nspname, c.relname`

	columnsQuery = `
		SELECT n.nspname, c.relname, a.attname,
			format_type(a.atttypid, a.atttypmod),
			NOT a.attnotnull,
			pg_get_expr(d.adbin, d.adrelid),
			a.attidentity <> '',
			a.attgenerated <> '',
			coalesce(col_description(c.oid, a.attnum), '')
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE a.attnum > 0 AND NOT a.attisdropped
			AND ` + relations + ` AND ` + userSchemas + `
		ORDER BY n.nspname, c.relname, a.attnum`

	constraintsQuery = `
		SELECT n.nspname, c.relname, con.conname, con.contype::text,
			ARRAY(
				SELECT a.attname::text
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord),
			coalesce(fn.nspname, ''), coalesce(fc.relname, ''),
			ARRAY(
				SELECT a.attname::text
				FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord),
			con.confdeltype::text
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class fc ON fc.oid = con.confrelid
		LEFT JOIN pg_namespace fn ON fn.oid = fc.relnamespace
		WHERE con.contype IN ('p', 'f', 'u') AND ` + userSchemas + `
		ORDER BY n.nspname, c.relname, con.conname`

	indexesQuery = `
		SELECT n.nspname, t.relname, i.relname, ix.indisunique, am.amname,
			ARRAY(
				SELECT coalesce(a.attname::text, pg_get_indexdef(ix.indexrelid, k.ord::int, true))
				FROM unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
				LEFT JOIN pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = k.attnum
				ORDER BY k.ord),
			coalesce(pg_get_expr(ix.indpred, ix.indrelid), '')
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		WHERE NOT ix.indisprimary AND ` + userSchemas + `
		ORDER BY n.nspname, t.relname, i.relname`

	sequencesQuery = `
		SELECT schemaname::text, sequencename::text, data_type::text,
			coalesce(start_value, 1), increment_by, min_value, max_value, cycle
		FROM pg_sequences
		ORDER BY schemaname, sequencename`

	extensionsQuery = `
		SELECT e.extname, n.nspname, e.extversion
		FROM pg_extension e
		JOIN pg_namespace n ON n.oid = e.extnamespace
		ORDER BY e.extname`

	enumsQuery = `
		SELECT n.nspname, t.typname, array_agg(e.enumlabel::text ORDER BY e.enumsortorder)
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE ` + userSchemas + `
		GROUP BY n.nspname, t.typname
		ORDER BY n.nspname, t.typname`

	domainsQuery = `
		SELECT n.nspname, t.typname, format_type(t.typbasetype, t.typtypmod),
			NOT t.typnotnull, t.typdefault
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'd' AND ` + userSchemas + `
		ORDER BY n.nspname, t.typname`
)

type tableRow struct {
	Schema, Name, Comment string
}

type columnRow struct {
	Schema    string
	Table     string
	Name      string
	StoreType string
	Nullable  bool
	Default   *string
	Identity  bool
	Generated bool
	Comment   string
}

type constraintRow struct {
	Schema           string
	Table            string
	Name             string
	Type             string
	Columns          []string
	PrincipalSchema  string
	PrincipalTable   string
	PrincipalColumns []string
	OnDelete         string
}

type indexRow struct {
	Schema, Table, Name string
	Unique              bool
	Method              string
	Columns             []string
	Predicate           string
}

// ReadDatabase reads every catalog section concurrently and assembles the
// tables f selects.
func (c *PoolCatalog) ReadDatabase(ctx context.Context, f Filter) (*DatabaseModel, error) {
	var (
		db          DatabaseModel
		tables      []tableRow
		columns     []columnRow
		constraints []constraintRow
		indexes     []indexRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		db.Schemas, err = read(gctx, c.pool, "schemas", schemasQuery, pgx.RowTo[string])
		return err
	})
	g.Go(func() (err error) {
		tables, err = read(gctx, c.pool, "tables", tablesQuery, pgx.RowToStructByPos[tableRow])
		return err
	})
	g.Go(func() (err error) {
		columns, err = read(gctx, c.pool, "columns", columnsQuery, pgx.RowToStructByPos[columnRow])
		return err
	})
	g.Go(func() (err error) {
		constraints, err = read(gctx, c.pool, "constraints", constraintsQuery, pgx.RowToStructByPos[constraintRow])
		return err
	})
	g.Go(func() (err error) {
		indexes, err = read(gctx, c.pool, "indexes", indexesQuery, pgx.RowToStructByPos[indexRow])
		return err
	})
	g.Go(func() (err error) {
		db.Sequences, err = read(gctx, c.pool, "sequences", sequencesQuery, pgx.RowToStructByPos[Sequence])
		return err
	})
	g.Go(func() (err error) {
		db.Extensions, err = read(gctx, c.pool, "extensions", extensionsQuery, pgx.RowToStructByPos[Extension])
		return err
	})
	g.Go(func() (err error) {
		db.Enums, err = read(gctx, c.pool, "enums", enumsQuery, pgx.RowToStructByPos[Enum])
		return err
	})
	g.Go(func() (err error) {
		db.Domains, err = read(gctx, c.pool, "domains", domainsQuery, pgx.RowToStructByPos[Domain])
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byName := map[TableName]*Table{}
	for _, r := range tables {
		if !f.Includes(r.Schema, r.Name) {
			continue
		}
		t := &Table{Schema: r.Schema, Name: r.Name, Comment: r.Comment}
		byName[TableName{r.Schema, r.Name}] = t
		db.Tables = append(db.Tables, t)
	}
	for _, r := range columns {
		t, ok := byName[TableName{r.Schema, r.Table}]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, &Column{
			Name:      r.Name,
			StoreType: r.StoreType,
			Nullable:  r.Nullable,
			Default:   r.Default,
			Identity:  r.Identity,
			Generated: r.Generated,
			Comment:   r.Comment,
		})
	}
	for _, r := range constraints {
		t, ok := byName[TableName{r.Schema, r.Table}]
		if !ok {
			continue
		}
		switch r.Type {
		case "p":
			t.PrimaryKey = &Key{Name: r.Name, Columns: r.Columns}
		case "u":
			t.UniqueKeys = append(t.UniqueKeys, &Key{Name: r.Name, Columns: r.Columns})
		case "f":
			t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{
				Name:             r.Name,
				Columns:          r.Columns,
				PrincipalSchema:  r.PrincipalSchema,
				PrincipalTable:   r.PrincipalTable,
				PrincipalColumns: r.PrincipalColumns,
				OnDelete:         r.OnDelete,
			})
		}
	}
	for _, r := range indexes {
		t, ok := byName[TableName{r.Schema, r.Table}]
		if !ok {
			continue
		}
		t.Indexes = append(t.Indexes, &Index{
			Name:      r.Name,
			Columns:   r.Columns,
			Unique:    r.Unique,
			Method:    r.Method,
			Predicate: r.Predicate,
		})
	}
	c.logger.Debug("read database",
		slog.Int("schemas", len(db.Schemas)),
		slog.Int("tables", len(db.Tables)),
		slog.Int("enums", len(db.Enums)),
		slog.Int("domains", len(db.Domains)))
	return &db, nil
}

func read[T any](ctx context.Context, pool *pgxpool.Pool, section, sql string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", section, err)
	}
	out, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", section, err)
	}
	return out, nil
}
