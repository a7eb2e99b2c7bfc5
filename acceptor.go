package wsagent

import (
	"context"
	"fmt"
	"reflect"

	"github.com/pkg/errors"

	"github.com/Zereker/wsagent/marshal"
)

// Acceptor is one handler bound to an acceptor id or to a frame type.
//
// Acceptors are built with On, Consume, OnFrame and HandleFrame. The
// payload type is captured by the generic constructor, so dispatch needs no
// reflection beyond naming the type in errors.
type Acceptor struct {
	id           string
	version      string
	typ          reflect.Type
	acceptsFrame bool
	void         bool

	matches func(Frame) bool
	decode  func(m marshal.Marshaller, content []byte) (any, error)
	invoke  func(ctx context.Context, payload any, rc *RequestContext) (any, error)
}

// On binds fn to id. Frame content is unmarshalled into T before the call
// and the returned value is marshalled into the reply.
func On[T any](id string, fn func(ctx context.Context, msg T, rc *RequestContext) (any, error)) *Acceptor {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	return &Acceptor{
		id:  id,
		typ: typ,
		decode: func(m marshal.Marshaller, content []byte) (any, error) {
			var v T
			if err := m.Unmarshal(content, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		invoke: func(ctx context.Context, payload any, rc *RequestContext) (any, error) {
			msg, ok := payload.(T)
			if !ok {
				return nil, errors.Errorf("acceptor %q expects %s, got %T", id, typ, payload)
			}
			return fn(ctx, msg, rc)
		},
	}
}

// Consume binds fn to id like On, for handlers that never reply.
func Consume[T any](id string, fn func(ctx context.Context, msg T, rc *RequestContext) error) *Acceptor {
	a := On(id, func(ctx context.Context, msg T, rc *RequestContext) (any, error) {
		return nil, fn(ctx, msg, rc)
	})
	a.void = true
	return a
}

// OnFrame binds fn to id and hands it the raw frame, bypassing payload
// marshalling. Frames that are not of type F are rejected.
func OnFrame[F Frame](id string, fn func(ctx context.Context, frame F, rc *RequestContext) (any, error)) *Acceptor {
	typ := reflect.TypeOf((*F)(nil)).Elem()
	return &Acceptor{
		id:           id,
		typ:          typ,
		acceptsFrame: true,
		matches: func(frame Frame) bool {
			_, ok := frame.(F)
			return ok
		},
		invoke: func(ctx context.Context, payload any, rc *RequestContext) (any, error) {
			frame, ok := payload.(F)
			if !ok {
				return nil, errors.Errorf("acceptor %q expects %s, got %T", id, typ, payload)
			}
			return fn(ctx, frame, rc)
		},
	}
}

// HandleFrame binds fn to every frame of type F on a frame agent (see NewFrameAgent).
func HandleFrame[F Frame](fn func(ctx context.Context, frame F, rc *RequestContext) (any, error)) *Acceptor {
	return OnFrame("", fn)
}

// WithVersion sets the API version of the acceptor.
func (a *Acceptor) WithVersion(version string) *Acceptor {
	a.version = version
	return a
}

func (a *Acceptor) ID() string         { return a.id }
func (a *Acceptor) Version() string    { return a.version }
func (a *Acceptor) Type() reflect.Type { return a.typ }
func (a *Acceptor) AcceptsFrame() bool { return a.acceptsFrame }
func (a *Acceptor) IsVoid() bool       { return a.void }

// Accepts reports whether a frame acceptor can receive frame.
func (a *Acceptor) Accepts(frame Frame) bool {
	return a.matches != nil && a.matches(frame)
}

// Decode unmarshals frame content into the acceptor payload type.
func (a *Acceptor) Decode(m marshal.Marshaller, content []byte) (any, error) {
	if a.decode == nil {
		return nil, errors.Errorf("acceptor %q does not decode payloads", a.id)
	}
	return a.decode(m, content)
}

// Call invokes the handler. When forceRenderAsString is set, a byte slice
// result is converted to a string so it goes out as UTF-8 text. Other
// results are left to the marshaller whatever the frame type.
func (a *Acceptor) Call(ctx context.Context, payload any, rc *RequestContext, forceRenderAsString bool) (any, error) {
	result, err := a.invoke(ctx, payload, rc)
	if err != nil {
		return nil, err
	}
	if a.void || result == nil {
		return nil, nil
	}
	if b, ok := result.([]byte); ok && forceRenderAsString {
		return string(b), nil
	}
	return result, nil
}

func (a *Acceptor) String() string {
	if a.id == "" {
		return fmt.Sprintf("Acceptor[%s]", a.typ)
	}
	return fmt.Sprintf("Acceptor[%s@%s -> %s]", a.id, a.version, a.typ)
}
