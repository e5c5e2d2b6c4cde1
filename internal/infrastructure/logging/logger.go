// Package logging builds the process logger. Callers derive component loggers
// from it instead of using a package-level global.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a timestamped logger writing to w. Unknown levels fall back to
// info; any format other than json is rendered for a terminal.
func New(w io.Writer, level string, format string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if strings.ToLower(strings.TrimSpace(format)) != FormatJSON {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func WithComponent(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func WithChain(logger zerolog.Logger, chain string) zerolog.Logger {
	return logger.With().Str("chain", chain).Logger()
}

// Fields flattens application error details into a log event.
func Fields(event *zerolog.Event, details map[string]any) *zerolog.Event {
	for key, value := range details {
		event = event.Interface(key, value)
	}
	return event
}
