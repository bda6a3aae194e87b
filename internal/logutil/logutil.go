package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hurttlocker/papertopics/internal/config"
)

// Options selects level, format and destination. A nil Writer means stderr.
type Options struct {
	Level     string
	Format    string
	AddSource bool
	Writer    io.Writer
}

// LoggerFromConfig builds a logger from resolved logging.level,
// logging.format and logging.add_source.
func LoggerFromConfig(cfg config.ResolvedConfig) (*slog.Logger, error) {
	addSource, err := cfg.LogSourceValue()
	if err != nil {
		return nil, err
	}
	return New(Options{Level: cfg.LogLevel.Value, Format: cfg.LogFormat.Value, AddSource: addSource})
}

// New builds a text or JSON slog logger.
func New(o Options) (*slog.Logger, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: o.AddSource,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", o.Format)
	}

	return slog.New(h), nil
}

// ParseLevel maps a logging.level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}
