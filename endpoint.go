package wsagent

import (
	"context"
	"reflect"

	"github.com/Zereker/wsagent/meta"
)

// Lifecycle is notified before the websocket handshake of a connection.
// Returning an error rejects the connection.
type Lifecycle interface {
	OnBeforeHandshake(client ClientInfo) error
}

type noLifecycle struct{}

func (noLifecycle) OnBeforeHandshake(ClientInfo) error { return nil }

// CallResult is the outcome of dispatching one inbound frame.
type CallResult struct {
	// Value is the handler result. Nil means nothing to send back.
	Value any
	// Context is set once the frame was routed, even when the handler failed.
	Context *RequestContext
}

// AgentEndpoint dispatches the frames of one connection to an agent.
// An endpoint is created per connection and is not safe for concurrent use.
type AgentEndpoint interface {
	// ProcessIncoming routes frame to its acceptor and calls it.
	ProcessIncoming(ctx context.Context, frame Frame, client ClientInfo) (CallResult, error)
	// ProcessOutgoing turns a handler result into a reply frame.
	// A nil frame means the endpoint has no reply protocol.
	ProcessOutgoing(result any, ctx BaseContext) (Frame, error)
	// ProcessError frames an error reply. A nil frame means no reply.
	ProcessError(code int, message string, ctx BaseContext) (Frame, error)
	Agent() *Agent
	Lifecycle() Lifecycle
}

// ClassBasedEndpoint routes whole frames by their Go type. Handlers answer
// through the returned value or out of band through a Sender.
type ClassBasedEndpoint struct {
	agent     *Agent
	acceptors map[reflect.Type]*Acceptor
}

// NewClassBasedEndpoint returns an endpoint over acceptors keyed by frame type.
func NewClassBasedEndpoint(agent *Agent, acceptors map[reflect.Type]*Acceptor) *ClassBasedEndpoint {
	return &ClassBasedEndpoint{agent: agent, acceptors: acceptors}
}

func (e *ClassBasedEndpoint) ProcessIncoming(ctx context.Context, frame Frame, client ClientInfo) (CallResult, error) {
	acceptor, ok := e.acceptors[reflect.TypeOf(frame)]
	if !ok {
		return CallResult{}, badFrame(BadFrameTypeMismatch, "agent %s doesn't accept %T", e.agent.URL(), frame)
	}
	rc := NewRequestContext(meta.NoID, frame, client)
	value, err := acceptor.Call(ctx, frame, rc, false)
	return CallResult{Value: value, Context: rc}, err
}

func (e *ClassBasedEndpoint) ProcessOutgoing(any, BaseContext) (Frame, error) { return nil, nil }

func (e *ClassBasedEndpoint) ProcessError(int, string, BaseContext) (Frame, error) { return nil, nil }

func (e *ClassBasedEndpoint) Agent() *Agent        { return e.agent }
func (e *ClassBasedEndpoint) Lifecycle() Lifecycle { return noLifecycle{} }

// ConverterEndpoint parses frames and frames replies through a FrameConverter.
type ConverterEndpoint struct {
	agent     *Agent
	converter *FrameConverter
}

// NewConverterEndpoint returns an endpoint backed by converter.
func NewConverterEndpoint(agent *Agent, converter *FrameConverter) *ConverterEndpoint {
	return &ConverterEndpoint{agent: agent, converter: converter}
}

func (e *ConverterEndpoint) ProcessIncoming(ctx context.Context, frame Frame, _ ClientInfo) (CallResult, error) {
	in, err := e.converter.ToMessage(frame)
	if err != nil {
		return CallResult{}, err
	}
	value, err := in.Acceptor.Call(ctx, in.Payload, in.Context, e.converter.PeekFrameType(in.Context))
	return CallResult{Value: value, Context: in.Context}, err
}

func (e *ConverterEndpoint) ProcessOutgoing(result any, ctx BaseContext) (Frame, error) {
	return e.converter.ToFrame(StatusOK, result, ctx)
}

func (e *ConverterEndpoint) ProcessError(code int, message string, ctx BaseContext) (Frame, error) {
	return e.converter.ToFrame(code, message, ctx)
}

func (e *ConverterEndpoint) Agent() *Agent              { return e.agent }
func (e *ConverterEndpoint) Lifecycle() Lifecycle       { return e.converter }
func (e *ConverterEndpoint) Converter() *FrameConverter { return e.converter }
