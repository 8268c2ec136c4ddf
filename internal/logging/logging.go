// Package logging configures the process-wide structured logger used by
// every CodexLens component. Components never build their own global
// logger; they log through slog.Default(), which Setup replaces. No
// component takes a logger as a parameter.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config controls how the process logger is constructed.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// JSON forces JSON output even on a TTY. When false, a text handler
	// is used for interactive terminals and JSON for anything else.
	JSON bool
	// Output is the destination writer; defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the info-level, text-on-TTY default.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// Setup builds a *slog.Logger from cfg and installs it as slog.Default(),
// mirroring the teacher's logging.Setup contract.
func Setup(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.JSON || !isTTY(out) {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
