package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes the classifier recognises.
const (
	pgAmbiguousColumn  = "42702"
	pgUndefinedColumn  = "42703"
	pgUndefinedTable   = "42P01"
	pgUndefinedFunc    = "42883"
	pgDatatypeMismatch = "42804"
)

var (
	// ErrAmbiguousColumn means a column reference matched more than one
	// range variable, typically a projection naming two same-named columns.
	ErrAmbiguousColumn = errors.New("ambiguous column")
	ErrUndefinedColumn = errors.New("undefined column")
	ErrUndefinedTable  = errors.New("undefined table")
	ErrUndefinedFunc   = errors.New("undefined function")
	ErrTypeMismatch    = errors.New("datatype mismatch")
)

var kinds = map[string]error{
	pgAmbiguousColumn:  ErrAmbiguousColumn,
	pgUndefinedColumn:  ErrUndefinedColumn,
	pgUndefinedTable:   ErrUndefinedTable,
	pgUndefinedFunc:    ErrUndefinedFunc,
	pgDatatypeMismatch: ErrTypeMismatch,
}

// ServerError is a server error with a recognised SQLSTATE. It matches both
// its kind sentinel and the driver error under errors.Is and errors.As.
type ServerError struct {
	Code    string
	Message string
	Kind    error
	Err     error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%v: %s (SQLSTATE %s)", e.Kind, e.Message, e.Code)
}

func (e *ServerError) Unwrap() []error { return []error{e.Kind, e.Err} }

// ClassifyError wraps a pgx or lib/pq server error whose SQLSTATE is
// recognised in a *ServerError. Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var se *ServerError
	if errors.As(err, &se) {
		return err
	}
	code, msg := sqlState(err)
	kind, ok := kinds[code]
	if !ok {
		return err
	}
	return &ServerError{Code: code, Message: msg, Kind: kind, Err: err}
}

// IsAmbiguousColumn reports whether err is, or classifies as, an
// ambiguous-column server error.
func IsAmbiguousColumn(err error) bool {
	return errors.Is(ClassifyError(err), ErrAmbiguousColumn)
}

func sqlState(err error) (code, msg string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Message
	}
	return "", ""
}
