package observability

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrUnknownLevel reports a log level name outside debug/info/warn/error.
var ErrUnknownLevel = errors.New("unknown log level")

// Config selects how the logger is built.
type Config struct {
	// Output receives log records; nil means stderr.
	Output io.Writer
	// Service names the emitting binary.
	Service string
	// Command is the subcommand being run, empty to omit.
	Command string
	// Level is the minimum record level.
	Level slog.Level
	// JSON switches from text to JSON records.
	JSON bool
}

// NewLogger builds the CLI logger: a text or JSON slog handler wrapped in a
// TracingHandler so records carry span context when one is active.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.Level}

	var inner slog.Handler
	if cfg.JSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	} else {
		inner = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.Service, cfg.Command))
}

// ParseLevel maps a config level name onto its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}
