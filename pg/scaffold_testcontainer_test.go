package pg_test

import (
	"context"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spandigital/pgtranslate"
	"github.com/spandigital/pgtranslate/pg"
	"github.com/spandigital/pgtranslate/query"
)

const storeSchema = `
CREATE TYPE order_status AS ENUM ('open', 'shipped', 'cancelled');
CREATE DOMAIN email AS varchar(320) CHECK (VALUE LIKE '%@%');
CREATE SCHEMA archive;

CREATE TABLE customers (
	id integer GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	full_name varchar(100) NOT NULL,
	contact email,
	created_at timestamptz NOT NULL DEFAULT now()
);
COMMENT ON TABLE customers IS 'people who order';

CREATE TABLE orders (
	id bigserial PRIMARY KEY,
	customer_id integer NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	status order_status NOT NULL DEFAULT 'open',
	total numeric(10,2) NOT NULL,
	tags text[],
	search tsvector
);
CREATE INDEX orders_open_idx ON orders (customer_id) WHERE status = 'open';
CREATE UNIQUE INDEX orders_lower_tags_idx ON orders (id, lower(tags[1]));

CREATE TABLE archive.orders (order_no integer PRIMARY KEY, note text);
CREATE TABLE audit_log (message text);

CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100;

INSERT INTO customers (full_name, contact) VALUES ('Ada', 'ada@example.com'), ('Bob', NULL);
INSERT INTO orders (customer_id, status, total, tags) VALUES
	(1, 'open', 150.00, '{rush}'),
	(1, 'shipped', 20.00, NULL),
	(2, 'open', 99.50, '{gift,rush}');
`

func startPostgres(t *testing.T) (context.Context, string, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Second*60),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, storeSchema)
	require.NoError(t, err)
	return ctx, connStr, pool
}

func TestScaffoldLiveDatabase(t *testing.T) {
	ctx, connStr, pool := startPostgres(t)

	catalog, err := pg.NewCatalog(ctx, connStr, nil)
	require.NoError(t, err)
	defer catalog.Close()

	res, err := pg.NewScaffolder(catalog).Scaffold(ctx, pg.Filter{})
	require.NoError(t, err)

	db := res.Database
	assert.Contains(t, db.Schemas, "archive")
	assert.Contains(t, db.Enums, pg.Enum{Schema: "public", Name: "order_status", Labels: []string{"open", "shipped", "cancelled"}})
	require.Len(t, db.Domains, 1)
	assert.Equal(t, "character varying(320)", db.Domains[0].BaseType)
	assert.NotEmpty(t, db.Sequences)
	assert.True(t, slices.ContainsFunc(db.Extensions, func(e pg.Extension) bool {
		return e.Name == "plpgsql" && e.Schema == "pg_catalog"
	}))

	customers, ok := db.Table("public", "customers")
	require.True(t, ok)
	assert.Equal(t, "people who order", customers.Comment)
	id, ok := customers.Column("id")
	require.True(t, ok)
	assert.True(t, id.Identity)
	assert.False(t, id.Nullable)

	orders, ok := db.Table("public", "orders")
	require.True(t, ok)
	require.Len(t, orders.ForeignKeys, 1)
	fk := orders.ForeignKeys[0]
	assert.Equal(t, []string{"customer_id"}, fk.Columns)
	assert.Equal(t, "customers", fk.PrincipalTable)
	assert.Equal(t, []string{"id"}, fk.PrincipalColumns)
	assert.Equal(t, "c", fk.OnDelete)
	require.Len(t, orders.Indexes, 2)
	assert.Equal(t, "orders_lower_tags_idx", orders.Indexes[0].Name)
	assert.True(t, orders.Indexes[0].Unique)
	assert.Equal(t, "id", orders.Indexes[0].Columns[0])
	assert.Equal(t, "orders_open_idx", orders.Indexes[1].Name)
	assert.Equal(t, "btree", orders.Indexes[1].Method)
	assert.Contains(t, orders.Indexes[1].Predicate, "'open'::order_status")

	kinds := map[pg.WarningKind][]string{}
	for _, w := range res.Warnings {
		kinds[w.Kind] = append(kinds[w.Kind], w.Table)
	}
	assert.ElementsMatch(t, []string{"audit_log", "big_orders"}, kinds[pg.NoPrimaryKey])
	assert.Equal(t, []string{"orders"}, kinds[pg.UnmappedColumn])

	m := res.Model
	_, ok = m.Entity("ArchiveOrders")
	assert.True(t, ok)

	st, err := pgtranslate.New(m).Translate(
		query.From("Orders").
			Where(query.Fn("o", query.And(
				query.Invoke(query.P("o", "Customer", "FullName"), "StartsWith", query.C("A")),
				query.Gt(query.P("o", "Total"), query.Param{Name: "min", Type: reflect.TypeFor[float64]()}),
			))).
			OrderBy(query.Fn("o", query.P("o", "Id"))),
	)
	require.NoError(t, err)

	rows, err := pool.Query(ctx, st.SQL, st.NamedArgs(map[string]any{"min": 100.0}))
	require.NoError(t, err)
	var n int
	for rows.Next() {
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 1, n)
}

func TestScaffoldLiveFilter(t *testing.T) {
	ctx, connStr, _ := startPostgres(t)

	catalog, err := pg.NewCatalog(ctx, connStr, nil)
	require.NoError(t, err)
	defer catalog.Close()

	f := pg.ParseFilter([]string{"nope"}, []string{"archive.orders", "public.orders"})
	res, err := pg.NewScaffolder(catalog).Scaffold(ctx, f)
	require.NoError(t, err)

	require.Len(t, res.Database.Tables, 2)
	var kinds []pg.WarningKind
	for _, w := range res.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, pg.MissingSchema)
	assert.Contains(t, kinds, pg.MissingPrincipal)
	assert.NotContains(t, kinds, pg.MissingTable)
}

func TestAmbiguousColumnOnServer(t *testing.T) {
	ctx, _, pool := startPostgres(t)

	_, err := pool.Exec(ctx, `SELECT id FROM customers JOIN orders ON orders.customer_id = customers.id`)
	require.Error(t, err)
	assert.True(t, pg.IsAmbiguousColumn(err))

	_, err = pool.Exec(ctx, `SELECT nope FROM customers`)
	assert.ErrorIs(t, pg.ClassifyError(err), pg.ErrUndefinedColumn)
}
