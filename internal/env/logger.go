package environment

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"subtracker/internal/config"
)

const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// initLogger builds the process logger. Every record carries the service
// name and env.
func initLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := parseLogLevel(cfg.Logger.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Logger.Format)
	if format == "" {
		format = logFormatJSON
		if cfg.Env == "local" {
			format = logFormatText
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.Logger.AddSource,
	}

	var handler slog.Handler
	switch format {
	case logFormatText:
		handler = slog.NewTextHandler(w, opts)
	case logFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Logger.Format)
	}

	return slog.New(handler).With(
		slog.String("service", "subtracker"),
		slog.String("env", cfg.Env),
	), nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
