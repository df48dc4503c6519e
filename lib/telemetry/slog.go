package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

func ParseLevel(level string) slog.Level {
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

// NewLogger builds a JSON logger with RFC3339 timestamps when json is set,
// otherwise a colored console logger.
func NewLogger(out io.Writer, level string, json bool) *slog.Logger {
	lvl := ParseLevel(level)
	if json {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					if t, ok := a.Value.Any().(time.Time); ok {
						a.Value = slog.StringValue(t.Format(time.RFC3339))
					}
				}
				return a
			},
		}))
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

// InitSlog installs the process-wide default logger on stderr.
func InitSlog(level string, json bool) *slog.Logger {
	logger := NewLogger(os.Stderr, level, json)
	slog.SetDefault(logger)
	return logger
}
