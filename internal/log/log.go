// Package log provides the logging infrastructure for the assistant.
//
// Loggers are injected, never looked up globally: every component takes
// a log.Logger in its constructor and may add context via With().
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is a type alias for *slog.Logger so components depend on the
// standard library type directly.
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON enables JSON output. Default: false (text).
	JSON bool

	// AddSource adds source file positions to entries.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
// Stderr keeps stdout free for MCP stdio transport (JSON-RPC only).
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Tests only.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
