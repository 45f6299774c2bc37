package pgtranslate

import (
	"errors"
	"fmt"

	"github.com/spandigital/pgtranslate/query"
)

var (
	// ErrUntranslatable is wrapped by every TranslationError. Callers may
	// evaluate such queries client-side or report them; no SQL is returned.
	ErrUntranslatable = errors.New("untranslatable expression")
	// ErrOwnedWithoutOwner is returned when a tracking query materializes an
	// owned type on its own.
	ErrOwnedWithoutOwner = errors.New("owned type cannot be materialized without its owner")
	// ErrInvalidQuery reports a malformed logical tree: unknown entities,
	// members or variables, or a bad parameter name.
	ErrInvalidQuery = errors.New("invalid query")
)

// TranslationError is returned when an expression has no SQL translation.
type TranslationError struct {
	Expr   string
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("cannot translate %s: %s", e.Expr, e.Reason)
}

func (e *TranslationError) Unwrap() error { return ErrUntranslatable }

// IsUntranslatable reports whether err is a translation failure.
func IsUntranslatable(err error) bool {
	return errors.Is(err, ErrUntranslatable)
}

func untranslatable(e query.Expr, format string, args ...any) error {
	return &TranslationError{Expr: query.Format(e), Reason: fmt.Sprintf(format, args...)}
}

func untranslatableNode(n query.Node, format string, args ...any) error {
	return &TranslationError{Expr: query.Fingerprint(n), Reason: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
