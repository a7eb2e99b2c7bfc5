package wsagent

import (
	"context"
	"errors"
	"testing"

	"github.com/Zereker/wsagent/meta"
)

func newFrameAgent(t *testing.T) *Agent {
	t.Helper()

	agent, err := NewFrameAgent("/frames",
		HandleFrame(func(ctx context.Context, frame TextFrame, rc *RequestContext) (any, error) {
			return "text:" + string(frame.Data), nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return agent
}

func TestClassBasedEndpoint_Dispatch(t *testing.T) {
	endpoint := newFrameAgent(t).Endpoint()
	client := ClientInfo{ConnID: "c1"}

	result, err := endpoint.ProcessIncoming(context.Background(), Text("hi"), client)
	if err != nil {
		t.Fatalf("ProcessIncoming failed: %v", err)
	}
	if result.Value != "text:hi" {
		t.Errorf("Value = %v", result.Value)
	}
	if result.Context.RequestID() != meta.NoID || result.Context.Client().ConnID != "c1" {
		t.Errorf("unexpected context: %+v", result.Context)
	}

	frame, err := endpoint.ProcessOutgoing(result.Value, result.Context)
	if frame != nil || err != nil {
		t.Errorf("ProcessOutgoing = %v, %v, want nil, nil", frame, err)
	}
	frame, err = endpoint.ProcessError(StatusBadFrame, "bad", result.Context)
	if frame != nil || err != nil {
		t.Errorf("ProcessError = %v, %v, want nil, nil", frame, err)
	}
	if err := endpoint.Lifecycle().OnBeforeHandshake(ClientInfo{PreferredType: ClientBinary}); err != nil {
		t.Errorf("frame agents accept every client: %v", err)
	}
}

func TestClassBasedEndpoint_UnmatchedType(t *testing.T) {
	endpoint := newFrameAgent(t).Endpoint()

	_, err := endpoint.ProcessIncoming(context.Background(), Binary([]byte{1}), ClientInfo{})
	var bad *BadFrameError
	if !errors.As(err, &bad) || bad.Kind != BadFrameTypeMismatch {
		t.Fatalf("error = %v, want type mismatch", err)
	}
}

func TestConverterEndpoint(t *testing.T) {
	upper := On("upper", func(ctx context.Context, msg string, rc *RequestContext) (any, error) {
		if msg == "" {
			return nil, NewAgentError(StatusAgentError, "empty")
		}
		return []byte(msg + "!"), nil
	})
	agent, err := NewAgent("/ws", DefaultProtocol(), upper)
	if err != nil {
		t.Fatal(err)
	}

	endpoint := agent.Endpoint()
	if err := endpoint.Lifecycle().OnBeforeHandshake(ClientInfo{PreferredType: ClientText}); err != nil {
		t.Fatal(err)
	}

	result, err := endpoint.ProcessIncoming(context.Background(), Text(`upper 7 "hi"`), ClientInfo{})
	if err != nil {
		t.Fatalf("ProcessIncoming failed: %v", err)
	}
	if result.Value != "hi!" {
		t.Errorf("text clients get byte results as strings, got %#v", result.Value)
	}

	frame, err := endpoint.ProcessOutgoing(result.Value, result.Context)
	if err != nil {
		t.Fatal(err)
	}
	if !frame.IsText() || string(frame.Body()) != `7 0 "hi!"` {
		t.Errorf("reply = %v %q", frame.IsText(), frame.Body())
	}

	result, err = endpoint.ProcessIncoming(context.Background(), Text(`upper 8 ""`), ClientInfo{})
	wsErr, ok := AsWebsocketError(err)
	if !ok || wsErr.Code() != StatusAgentError {
		t.Fatalf("error = %v, want agent error", err)
	}
	if result.Context == nil || result.Context.RequestID() != 8 {
		t.Fatalf("handler errors keep the request context: %+v", result)
	}

	frame, err = endpoint.ProcessError(wsErr.Code(), wsErr.ReplyError(), result.Context)
	if err != nil {
		t.Fatal(err)
	}
	if string(frame.Body()) != `8 102 "empty"` {
		t.Errorf("error reply = %q", frame.Body())
	}
}

type stamp struct {
	At int `json:"at"`
}

func (stamp) String() string { return "stamp" }

func TestConverterEndpoint_SamePayloadForBothFrameTypes(t *testing.T) {
	protocol := DefaultProtocol()
	protocol.Frames = AllowBoth
	agent, err := NewAgent("/ws", protocol,
		On("stamp", func(ctx context.Context, msg string, rc *RequestContext) (any, error) {
			return stamp{At: 1}, nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	endpoint := agent.Endpoint()
	if err := endpoint.Lifecycle().OnBeforeHandshake(ClientInfo{}); err != nil {
		t.Fatal(err)
	}

	for _, frame := range []Frame{Text(`stamp 1 ""`), Binary([]byte(`stamp 1 ""`))} {
		result, err := endpoint.ProcessIncoming(context.Background(), frame, ClientInfo{})
		if err != nil {
			t.Fatalf("ProcessIncoming(%v) failed: %v", frame, err)
		}
		reply, err := endpoint.ProcessOutgoing(result.Value, result.Context)
		if err != nil {
			t.Fatal(err)
		}
		if reply.IsText() != frame.IsText() {
			t.Errorf("reply IsText = %v, want %v", reply.IsText(), frame.IsText())
		}
		if string(reply.Body()) != `1 0 {"at":1}` {
			t.Errorf("reply to %v = %q", frame, reply.Body())
		}
	}
}
