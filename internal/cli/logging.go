package cli

import (
	"io"
	"log/slog"
)

// LogLevel maps the -v count and --quiet to a level: warnings by default,
// info with -v, debug with -vv, errors only when quiet.
func LogLevel(verbose int, quiet bool) slog.Level {
	switch {
	case quiet:
		return slog.LevelError
	case verbose >= 2:
		return slog.LevelDebug
	case verbose == 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// NewLogger writes text records at the level LogLevel picks.
func NewLogger(w io.Writer, verbose int, quiet bool) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: LogLevel(verbose, quiet)}))
}
