// Package logging builds the slog loggers of the command line and the server.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

const appName = "tilemosaic"

// ParseLevel maps a level name to a slog level, INFO for unknown names.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w. format is "json" or "text".
func New(level, format string, w io.Writer) *slog.Logger {
	programLevel := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     programLevel,
		AddSource: programLevel <= slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts).WithAttrs([]slog.Attr{slog.String("app", appName)})
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
