package wsagent

import (
	"context"
	"time"
)

// Sender pushes frames to a connection outside the request/reply flow.
//
// Send never blocks and returns ErrBufferFull under backpressure.
// SendBlocking and SendTimeout wait for buffer space.
type Sender interface {
	Send(frame Frame) error
	SendBlocking(ctx context.Context, frame Frame) error
	SendTimeout(frame Frame, timeout time.Duration) error
	// Close closes the connection.
	Close() error
}

// MessageSender sends values framed by the connection's converter, as if
// they were replies with the given code to ctx. Use EmptyTextContext or
// EmptyBinaryContext for messages that answer no request.
type MessageSender interface {
	Sender
	SendMessage(code int, message any, ctx BaseContext) error
	SendMessageBlocking(c context.Context, code int, message any, ctx BaseContext) error
}

// messageSender adapts a Conn whose endpoint has a converter.
type messageSender struct {
	*Conn
	converter *FrameConverter
}

var _ MessageSender = messageSender{}

func (s messageSender) SendMessage(code int, message any, ctx BaseContext) error {
	frame, err := s.converter.ToFrame(code, message, ctx)
	if err != nil {
		return err
	}
	return s.Send(frame)
}

func (s messageSender) SendMessageBlocking(c context.Context, code int, message any, ctx BaseContext) error {
	frame, err := s.converter.ToFrame(code, message, ctx)
	if err != nil {
		return err
	}
	return s.SendBlocking(c, frame)
}

// senderFor returns the Sender handed to agent hooks for conn.
func senderFor(conn *Conn) Sender {
	if ce, ok := conn.endpoint.(*ConverterEndpoint); ok {
		return messageSender{Conn: conn, converter: ce.Converter()}
	}
	return conn
}
