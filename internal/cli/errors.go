// Package cli holds the configuration, logging and exit handling shared by
// the pgtranslate commands.
package cli

import (
	"errors"
	"fmt"
	"os"
)

// ExitCode classifies a failed command for the calling shell.
type ExitCode int

const (
	ExitGeneral ExitCode = iota + 1
	ExitConfig
	ExitModel
	ExitDatabase
	ExitTranslate
)

// Failure is a command error and the code the process exits with.
type Failure struct {
	Code ExitCode
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Op
	}
	return f.Op + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail reports that op failed with err.
func Fail(code ExitCode, op string, err error) error {
	return &Failure{Code: code, Op: op, Err: err}
}

// CodeOf is 0 for nil, the code of the outermost Failure in err's chain,
// or ExitGeneral.
func CodeOf(err error) ExitCode {
	if err == nil {
		return 0
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ExitGeneral
}

// Exit prints err and terminates the process with its code.
func Exit(err error) {
	fmt.Fprintln(os.Stderr, "pgtranslate:", err)
	os.Exit(int(CodeOf(err)))
}
