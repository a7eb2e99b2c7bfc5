// Package logx adapts zerolog to the wsagent.Logger interface.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger writes key-value pairs as zerolog fields.
type Logger struct {
	zl zerolog.Logger
}

// New returns a human-readable logger on stderr at the given level.
// The level string is tolerant of case and common synonyms.
func New(level string) *Logger {
	return NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}, level)
}

// NewWithWriter returns a logger writing JSON lines to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{zl: zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debug(msg string, args ...any) { l.zl.Debug().Fields(args).Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.zl.Info().Fields(args).Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.zl.Warn().Fields(args).Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { l.zl.Error().Fields(args).Msg(msg) }

// parseLevel converts a string to a zerolog level.
// Accepts: all, debug, info, warn, warning, error, fatal, none.
// Unknown values default to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
