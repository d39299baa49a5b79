// Package log centralizes zerolog setup for every long-running
// FundForge component (archive eviction, backfill, fan-out, engine
// loop): a single console-or-JSON writer, a component field convention,
// and level parsing from configuration.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w (os.Stderr when nil) at the
// given level, human-readable when pretty is true and JSON otherwise.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component name,
// the convention every package in this repository uses for its own
// logger (archive, backfill, fanout, engine, ...).
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
