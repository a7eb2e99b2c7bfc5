package wsagent

import "log/slog"

// Logger is the interface for structured logging.
// It is compatible with *slog.Logger; logx provides a zerolog implementation.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// clientArgs returns the key-value pairs identifying a connection in logs.
func clientArgs(agent *Agent, client ClientInfo, args ...any) []any {
	return append([]any{
		"agent", agent.URL(),
		"conn_id", client.ConnID,
		"remote_addr", client.RemoteAddr,
	}, args...)
}
