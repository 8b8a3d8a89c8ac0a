package app

import (
	"io"
	"log/slog"
)

// newLogger builds the service logger without touching the global default,
// so every App instance logs independently. The level and format strings are
// validated by the CLI layer; anything unrecognised lands on info/text.
func newLogger(level, format string, outW io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
