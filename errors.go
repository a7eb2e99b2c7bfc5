package wsagent

import (
	"fmt"

	"github.com/pkg/errors"
)

// Reply codes carried in outbound frames.
const (
	// StatusOK marks a successful reply.
	StatusOK = 0
	// StatusBadFrame answers a frame that could not be parsed or routed.
	StatusBadFrame = 100
	// StatusClientDenied reports an incompatible frame type preference.
	StatusClientDenied = 101
	// StatusAgentError is the usual code for handler failures.
	StatusAgentError = 102
	// StatusInternalError answers an unexpected server failure.
	StatusInternalError = 103
)

// WebsocketError is an error that can be reported back to the client.
type WebsocketError interface {
	error
	// Code is the reply code.
	Code() int
	// ReplyError is the message sent to the client. Empty means no reply.
	ReplyError() string
}

// BadFrameKind classifies a rejected frame.
type BadFrameKind int

const (
	// BadFrameMalformed means the frame metadata is structurally invalid.
	BadFrameMalformed BadFrameKind = iota
	// BadFrameNotRoutable means no acceptor id could be parsed.
	BadFrameNotRoutable
	// BadFrameUnknownAcceptor means the acceptor id is not registered.
	BadFrameUnknownAcceptor
	// BadFrameTypeMismatch means the frame type is not allowed here.
	BadFrameTypeMismatch
	// BadFrameMarshal means the payload could not be decoded.
	BadFrameMarshal
)

// String returns a short snake_case name, used as a metrics label.
func (k BadFrameKind) String() string {
	switch k {
	case BadFrameMalformed:
		return "malformed"
	case BadFrameNotRoutable:
		return "not_routable"
	case BadFrameUnknownAcceptor:
		return "unknown_acceptor"
	case BadFrameTypeMismatch:
		return "type_mismatch"
	case BadFrameMarshal:
		return "marshal"
	default:
		return "unknown"
	}
}

// BadFrameError rejects a single inbound frame. The connection stays open.
type BadFrameError struct {
	Kind  BadFrameKind
	msg   string
	cause error
}

func badFrame(kind BadFrameKind, format string, args ...any) *BadFrameError {
	return &BadFrameError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func badFrameWrap(kind BadFrameKind, cause error, format string, args ...any) *BadFrameError {
	return &BadFrameError{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *BadFrameError) Error() string {
	if e.cause != nil {
		return "bad frame: " + e.msg + ": " + e.cause.Error()
	}
	return "bad frame: " + e.msg
}

// Unwrap returns the decode or parse error, if any.
func (e *BadFrameError) Unwrap() error { return e.cause }

// Code returns StatusBadFrame.
func (e *BadFrameError) Code() int { return StatusBadFrame }

// ReplyError returns the message without the wrapped cause.
func (e *BadFrameError) ReplyError() string { return e.msg }

// ClientDeniedError is returned at handshake when the client frame type
// preference is incompatible with the agent.
type ClientDeniedError struct {
	Client    ClientFrameType
	Supported FrameType
}

func denyClient(client ClientFrameType, supported FrameType) *ClientDeniedError {
	return &ClientDeniedError{Client: client, Supported: supported}
}

func (e *ClientDeniedError) Error() string {
	return fmt.Sprintf("unsupported type: client=%s supported=%s", e.Client, e.Supported)
}

// Code returns StatusClientDenied.
func (e *ClientDeniedError) Code() int { return StatusClientDenied }

// ReplyError returns the same text as Error.
func (e *ClientDeniedError) ReplyError() string { return e.Error() }

// AgentError lets a handler reply with an error code and message.
type AgentError struct {
	code int
	msg  string
}

// NewAgentError returns an error replied to the client as code and msg.
func NewAgentError(code int, msg string) *AgentError {
	return &AgentError{code: code, msg: msg}
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.code, e.msg)
}

// Code returns the code the handler chose.
func (e *AgentError) Code() int { return e.code }

// ReplyError returns the handler's message.
func (e *AgentError) ReplyError() string { return e.msg }

// ConfigError reports an invalid agent or server configuration.
type ConfigError struct {
	msg   string
	cause error
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.cause != nil {
		return "websocket config: " + e.msg + ": " + e.cause.Error()
	}
	return "websocket config: " + e.msg
}

// Unwrap returns the underlying error, if any.
func (e *ConfigError) Unwrap() error { return e.cause }

// Errors returned by converters.
var (
	// ErrNotInitialized is returned when a converter is used before the handshake.
	ErrNotInitialized = errors.New("converter is not initialized")
)

// AsWebsocketError returns err as a WebsocketError if it, or anything it wraps, is one.
func AsWebsocketError(err error) (WebsocketError, bool) {
	var wsErr WebsocketError
	if errors.As(err, &wsErr) {
		return wsErr, true
	}
	return nil, false
}
