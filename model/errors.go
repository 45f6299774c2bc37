package model

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidModel is wrapped by every structural validation failure.
	ErrInvalidModel = errors.New("invalid model")
	// ErrUnknownType is returned when a model file names a Go type the
	// registry does not know.
	ErrUnknownType = errors.New("unknown type name")
)

// BuildError locates a model-build failure.
type BuildError struct {
	Entity   string
	Property string
	Err      error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString("model")
	if e.Entity != "" {
		b.WriteString(": entity " + e.Entity)
	}
	if e.Property != "" {
		b.WriteString(" property " + e.Property)
	}
	b.WriteString(": " + e.Err.Error())
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }
