package wsagent

import (
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

func (a ErrorAction) String() string {
	if a == Continue {
		return "continue"
	}
	return "disconnect"
}

// options holds the configuration for a connection.
type options struct {
	logger  Logger
	metrics *Metrics

	// onError is called when a handler fails with an error that has no
	// reply, or when a reply cannot be framed.
	// Returns Disconnect to close the connection, Continue to keep serving.
	onError func(error) ErrorAction

	bufferSize    int           // size of buffered channel
	maxReadLength int64         // maximum size of a single message
	idleTimeout   time.Duration // read deadline; 0 disables it
	writeTimeout  time.Duration // per-frame write deadline; 0 disables it
}

// Option is a function that configures connection options.
type Option func(*options)

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more frames to be queued before Send reports ErrBufferFull.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// IdleTimeoutOption returns an Option that closes the connection when no
// frame arrives for the given duration. Zero disables the timeout.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// WriteTimeoutOption returns an Option that bounds the time spent writing one frame.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// MessageMaxSize returns an Option that sets the maximum size of an inbound frame.
// Larger frames close the connection with StatusMessageTooBig.
func MessageMaxSize(size int64) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records connection metrics into m.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
