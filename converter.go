package wsagent

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Zereker/wsagent/marshal"
	"github.com/Zereker/wsagent/meta"
)

// Incoming is an inbound frame resolved to its acceptor.
type Incoming struct {
	Acceptor *Acceptor
	// Payload is the original frame for frame acceptors, or the decoded message.
	Payload  any
	Context  *RequestContext
}

// FrameConverter turns frames into acceptor calls and replies into frames,
// using a FrameMetadata for the envelope and a Marshaller for the payload.
//
// A converter belongs to a single connection: OnBeforeHandshake fixes the
// negotiated frame type once, before any frame is processed. The acceptors
// map is only read and may be shared between converters.
type FrameConverter struct {
	marshaller marshal.Marshaller
	metadata   meta.FrameMetadata
	acceptors  map[string]*Acceptor
	supported  FrameType

	client   ClientInfo
	concrete ConcreteFrameType
}

// NewFrameConverter returns a converter over acceptors keyed by acceptor id.
func NewFrameConverter(m marshal.Marshaller, md meta.FrameMetadata, acceptors map[string]*Acceptor, supported FrameType) *FrameConverter {
	return &FrameConverter{
		marshaller: m,
		metadata:   md,
		acceptors:  acceptors,
		supported:  supported,
	}
}

// OnBeforeHandshake resolves the connection frame type for client.
func (c *FrameConverter) OnBeforeHandshake(client ClientInfo) error {
	concrete, err := ResolveFrameType(client.PreferredType, c.supported)
	if err != nil {
		return err
	}
	c.client = client
	c.concrete = concrete
	return nil
}

// ConcreteType returns the negotiated frame type, zero before the handshake.
func (c *FrameConverter) ConcreteType() ConcreteFrameType {
	return c.concrete
}

// ToMessage parses frame and resolves its acceptor and payload.
// Every failure is a *BadFrameError, except ErrNotInitialized.
func (c *FrameConverter) ToMessage(frame Frame) (Incoming, error) {
	if c.concrete == 0 {
		return Incoming{}, ErrNotInitialized
	}
	if c.concrete == ConcreteText && !frame.IsText() {
		return Incoming{}, badFrame(BadFrameTypeMismatch, "unsupported frame received: %T, expected text", frame)
	}
	if c.concrete == ConcreteBinary && frame.IsText() {
		return Incoming{}, badFrame(BadFrameTypeMismatch, "unsupported frame received: %T, expected binary", frame)
	}

	parsed, err := c.metadata.Parse(frame.Body())
	if err != nil {
		return Incoming{}, badFrameWrap(BadFrameMalformed, err, "failed to parse frame metadata")
	}
	if !parsed.Routable() {
		return Incoming{}, badFrame(BadFrameNotRoutable, "failed to parse acceptor id")
	}
	acceptor, ok := c.acceptors[string(parsed.AcceptorID)]
	if !ok {
		return Incoming{}, badFrame(BadFrameUnknownAcceptor, "acceptor not found: %q", parsed.AcceptorID)
	}

	rc := NewRequestContext(parsed.RequestID, frame, c.client)
	if acceptor.AcceptsFrame() {
		if !acceptor.Accepts(frame) {
			return Incoming{}, badFrame(BadFrameTypeMismatch, "acceptor %q doesn't expect %T", acceptor.ID(), frame)
		}
		return Incoming{Acceptor: acceptor, Payload: frame, Context: rc}, nil
	}

	payload, err := acceptor.Decode(c.marshaller, parsed.Content)
	if err != nil {
		return Incoming{}, badFrameWrap(BadFrameMarshal, err, "failed to decode %s payload", acceptor.Type())
	}
	return Incoming{Acceptor: acceptor, Payload: payload, Context: rc}, nil
}

// PeekFrameType reports whether the reply to ctx goes out as a text frame.
func (c *FrameConverter) PeekFrameType(ctx BaseContext) bool {
	return c.concrete == ConcreteText || (c.concrete == ConcreteBoth && ctx.IsTextRequest())
}

// ToFrame marshals message and wraps it in a reply frame for ctx.
func (c *FrameConverter) ToFrame(code int, message any, ctx BaseContext) (Frame, error) {
	if c.concrete == 0 {
		return nil, ErrNotInitialized
	}
	content, err := c.marshaller.Marshal(message)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %T", message)
	}
	payload := c.metadata.Compose(ctx.RequestID(), code, content)
	return frameOf(payload, c.PeekFrameType(ctx)), nil
}

func (c *FrameConverter) String() string {
	return fmt.Sprintf("FrameConverter[marshaller=%v, metadata=%v, acceptors=%d, frameType=%s]",
		c.marshaller, c.metadata, len(c.acceptors), c.supported)
}
