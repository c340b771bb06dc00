// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Config selects the handler and level.
type Config struct {
	Debug  bool      // Log at debug level, including conversion tracing
	Format string    // "text" (default) or "json"
	Output io.Writer // Defaults to os.Stderr
}

// Setup builds a logger from cfg, installs it as the slog default and
// returns it.
func Setup(cfg Config) (*slog.Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler
	switch cfg.Format {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}

	l := slog.New(h)
	slog.SetDefault(l)

	l.Debug("logger.initialized", "format", cfg.Format, "debug", cfg.Debug)
	return l, nil
}
