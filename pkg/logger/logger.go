// Package logger builds slog loggers from environment configuration.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls logger construction.
type Config struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`      // debug, info, warn, error
	Format  string `env:"LOG_FORMAT" envDefault:"json"`    // json or text
	Service string `env:"LOG_SERVICE" envDefault:"billing"`
}

// New returns a slog.Logger writing to w according to cfg. Every record
// carries a static "service" attribute so aggregated logs stay attributable.
func New(cfg Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("logger: invalid format %q: must be json or text", cfg.Format)
	}

	log := slog.New(h)
	if cfg.Service != "" {
		log = log.With(slog.String("service", cfg.Service))
	}
	return log, nil
}

// MustNew is New for startup paths where a broken logger config should
// prevent the process from starting.
func MustNew(cfg Config, w io.Writer) *slog.Logger {
	log, err := New(cfg, w)
	if err != nil {
		panic(err)
	}
	return log
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logger: invalid level %q", s)
	}
}
