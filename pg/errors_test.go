package pg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "pgx ambiguous column",
			err:  &pgconn.PgError{Code: "42702", Message: `column reference "Id" is ambiguous`},
			want: ErrAmbiguousColumn,
		},
		{
			name: "wrapped pgx undefined column",
			err:  fmt.Errorf("query failed: %w", &pgconn.PgError{Code: "42703", Message: "column x does not exist"}),
			want: ErrUndefinedColumn,
		},
		{
			name: "lib/pq undefined table",
			err:  &pq.Error{Code: "42P01", Message: `relation "nope" does not exist`},
			want: ErrUndefinedTable,
		},
		{
			name: "lib/pq undefined function",
			err:  &pq.Error{Code: "42883", Message: "function f() does not exist"},
			want: ErrUndefinedFunc,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)

			var se *ServerError
			require.ErrorAs(t, got, &se)
			assert.Contains(t, se.Error(), "SQLSTATE "+se.Code)
			assert.Same(t, got, ClassifyError(got))
		})
	}
}

func TestClassifyErrorPassesThrough(t *testing.T) {
	assert.NoError(t, ClassifyError(nil))

	plain := errors.New("connection refused")
	assert.Same(t, plain, ClassifyError(plain))

	unique := &pgconn.PgError{Code: "23505"}
	assert.Equal(t, error(unique), ClassifyError(unique))
}

func TestIsAmbiguousColumn(t *testing.T) {
	assert.True(t, IsAmbiguousColumn(&pgconn.PgError{Code: "42702"}))
	assert.True(t, IsAmbiguousColumn(fmt.Errorf("wrapped: %w", &pq.Error{Code: "42702"})))
	assert.False(t, IsAmbiguousColumn(&pgconn.PgError{Code: "42703"}))
	assert.False(t, IsAmbiguousColumn(nil))
}
