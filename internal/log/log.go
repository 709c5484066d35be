// Package log provides the logging infrastructure for tapd.
//
// It is a thin factory around log/slog. Components never reach for a
// package-level logger: every constructor takes a *slog.Logger and adds
// its own context via With(), so tests can capture or discard output.
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug, JSON: true})
//	srv := api.NewServer(cfg, svc, logger.With("component", "api"))
//
// In tests, use log.NewNop() or log.NewWithWriter(&buf, log.Config{}).
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config defines logger options.
type Config struct {
	// Level is the minimum level to emit. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output from text to JSON records.
	JSON bool

	// AddSource attaches source file:line to every record.
	AddSource bool
}

// New creates a logger writing to stderr.
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests use this to capture
// output in a bytes.Buffer.
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
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

// NewNop creates a logger that discards everything. Test-only: production
// callers should always wire New or NewWithWriter so operational problems
// stay visible.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a configuration string to a slog.Level.
// Unknown values fall back to Info so a typo in the config file never
// silences the daemon.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
