package wsagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Zereker/wsagent/marshal"
	"github.com/Zereker/wsagent/meta"
)

func expectConfigError(t *testing.T, err error, contains string) {
	t.Helper()

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigError", err)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Errorf("error %q does not mention %q", err, contains)
	}
}

func TestNewAgent(t *testing.T) {
	agent, err := NewAgent("/ws", DefaultProtocol(), stringAcceptor("foo"), stringAcceptor("longer"))
	if err != nil {
		t.Fatalf("NewAgent failed: %v", err)
	}

	if agent.URL() != "/ws" {
		t.Errorf("URL = %s", agent.URL())
	}
	if agent.AcceptsFrames() {
		t.Error("id based agent should not accept frames")
	}
	acceptors := agent.Acceptors()
	if len(acceptors) != 2 || acceptors[0].ID() != "foo" || acceptors[1].ID() != "longer" {
		t.Errorf("Acceptors = %v", acceptors)
	}
	for _, a := range acceptors {
		if a.Version() != DefaultAPIVersion {
			t.Errorf("%s version = %q, want default", a.ID(), a.Version())
		}
	}
	if _, ok := agent.Acceptor("foo"); !ok {
		t.Error("Acceptor(foo) not found")
	}
	if _, ok := agent.Endpoint().(*ConverterEndpoint); !ok {
		t.Errorf("Endpoint = %T, want *ConverterEndpoint", agent.Endpoint())
	}

	// separator formats are sized with the longest id
	md := agent.Metadata()
	parsed, err := md.Parse([]byte("longer 1 x"))
	if err != nil || string(parsed.AcceptorID) != "longer" {
		t.Errorf("Parse = %+v, %v", parsed, err)
	}
	parsed, _ = md.Parse([]byte("longerthanany 1 x"))
	if parsed.Routable() {
		t.Error("ids longer than the longest acceptor id must not be routable")
	}
}

func TestNewAgent_Validation(t *testing.T) {
	protocol := DefaultProtocol()

	tests := []struct {
		name      string
		url       string
		acceptors []*Acceptor
		contains  string
	}{
		{"no acceptors", "/ws", nil, "no acceptors"},
		{"relative url", "ws", []*Acceptor{stringAcceptor("foo")}, "must start with"},
		{"url variable", "/ws/{id}", []*Acceptor{stringAcceptor("foo")}, "variables"},
		{"empty id", "/ws", []*Acceptor{stringAcceptor("")}, "empty"},
		{"illegal id", "/ws", []*Acceptor{stringAcceptor("foo bar")}, "illegal chars"},
		{"long id", "/ws", []*Acceptor{stringAcceptor(strings.Repeat("a", meta.MaxIDSize+1))}, "longer than"},
		{"illegal version", "/ws", []*Acceptor{stringAcceptor("foo").WithVersion("V1")}, "version"},
		{"duplicate id", "/ws", []*Acceptor{stringAcceptor("foo"), stringAcceptor("foo")}, "not unique"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAgent(tt.url, protocol, tt.acceptors...)
			expectConfigError(t, err, tt.contains)
		})
	}
}

func TestNewAgent_MetadataSelection(t *testing.T) {
	foo := func() *Acceptor { return stringAcceptor("foo") }

	tests := []struct {
		kind MetadataKind
		want any
	}{
		{MetaText, &meta.TextSeparator{}},
		{"", &meta.TextSeparator{}},
		{MetaBinary, &meta.BinarySeparator{}},
		{MetaFixed, &meta.BinaryFixedSize{}},
		{MetaJSON, meta.JSON{}},
	}
	for _, tt := range tests {
		p := DefaultProtocol()
		p.Metadata = tt.kind
		agent, err := NewAgent("/ws", p, foo())
		if err != nil {
			t.Fatalf("%s: %v", tt.kind, err)
		}
		if got, want := fmt.Sprintf("%T", agent.Metadata()), fmt.Sprintf("%T", tt.want); got != want {
			t.Errorf("%s: metadata = %s, want %s", tt.kind, got, want)
		}
	}

	p := DefaultProtocol()
	p.Metadata = MetaFixed
	agent, err := NewAgent("/ws", p, foo())
	if err != nil {
		t.Fatal(err)
	}
	if size := agent.Metadata().(*meta.BinaryFixedSize).Size(); size != 3 {
		t.Errorf("fixed size = %d, want 3", size)
	}

	p.Metadata = "xml"
	_, err = NewAgent("/ws", p, foo())
	expectConfigError(t, err, "unknown metadata")
}

func TestNewAgent_FixedSizeNeedsEqualIDs(t *testing.T) {
	p := DefaultProtocol()
	p.Metadata = MetaFixed

	_, err := NewAgent("/ws", p, stringAcceptor("foo"), stringAcceptor("long"))
	expectConfigError(t, err, "same length")
}

func TestNewAgent_CustomSeparators(t *testing.T) {
	p := DefaultProtocol()
	p.TextSeparator = ':'
	agent, err := NewAgent("/ws", p, stringAcceptor("foo"))
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := agent.Metadata().Parse([]byte("foo:1:x y"))
	if err != nil || string(parsed.AcceptorID) != "foo" || string(parsed.Content) != "x y" {
		t.Errorf("Parse = %+v, %v", parsed, err)
	}
}

func TestNewAgent_CustomMetadata(t *testing.T) {
	p := DefaultProtocol()
	p.Custom = &countingMetadata{}
	agent, err := NewAgent("/ws", p, stringAcceptor("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if agent.Metadata() != p.Custom {
		t.Error("custom metadata not used")
	}
}

func TestNewAgent_UnknownMarshal(t *testing.T) {
	p := DefaultProtocol()
	p.Marshal = marshal.Kind("protobuf")
	_, err := NewAgent("/ws", p, stringAcceptor("foo"))
	expectConfigError(t, err, "protobuf")
}

func TestNewAgent_ProtocolVersion(t *testing.T) {
	p := DefaultProtocol()
	p.Version = "2.0"
	agent, err := NewAgent("/ws", p, stringAcceptor("foo"), stringAcceptor("bar").WithVersion("3.1"))
	if err != nil {
		t.Fatal(err)
	}
	foo, _ := agent.Acceptor("foo")
	bar, _ := agent.Acceptor("bar")
	if foo.Version() != "2.0" || bar.Version() != "3.1" {
		t.Errorf("versions = %q, %q", foo.Version(), bar.Version())
	}
}

func TestNewAgent_SharedAcceptorVersion(t *testing.T) {
	shared := stringAcceptor("foo")

	v1 := DefaultProtocol()
	v1.Version = "1.0"
	first, err := NewAgent("/v1", v1, shared)
	if err != nil {
		t.Fatal(err)
	}
	v2 := DefaultProtocol()
	v2.Version = "2.0"
	second, err := NewAgent("/v2", v2, shared)
	if err != nil {
		t.Fatal(err)
	}

	a1, _ := first.Acceptor("foo")
	a2, _ := second.Acceptor("foo")
	if a1.Version() != "1.0" || a2.Version() != "2.0" {
		t.Errorf("versions = %q, %q, want 1.0, 2.0", a1.Version(), a2.Version())
	}
	if shared.Version() != "" {
		t.Errorf("shared acceptor version = %q, want it untouched", shared.Version())
	}
}

func TestNewFrameAgent(t *testing.T) {
	txt := HandleFrame(func(ctx context.Context, frame TextFrame, rc *RequestContext) (any, error) {
		return nil, nil
	})
	bin := HandleFrame(func(ctx context.Context, frame BinaryFrame, rc *RequestContext) (any, error) {
		return nil, nil
	})

	agent, err := NewFrameAgent("/frames", txt, bin)
	if err != nil {
		t.Fatalf("NewFrameAgent failed: %v", err)
	}
	if !agent.AcceptsFrames() {
		t.Error("frame agent should accept frames")
	}
	if len(agent.Acceptors()) != 2 {
		t.Errorf("Acceptors = %v", agent.Acceptors())
	}
	if _, ok := agent.Endpoint().(*ClassBasedEndpoint); !ok {
		t.Errorf("Endpoint = %T, want *ClassBasedEndpoint", agent.Endpoint())
	}
}

func TestNewFrameAgent_Validation(t *testing.T) {
	txt := func() *Acceptor {
		return HandleFrame(func(ctx context.Context, frame TextFrame, rc *RequestContext) (any, error) {
			return nil, nil
		})
	}
	anyFrame := HandleFrame(func(ctx context.Context, frame Frame, rc *RequestContext) (any, error) {
		return nil, nil
	})

	_, err := NewFrameAgent("/frames")
	expectConfigError(t, err, "no acceptors")

	_, err = NewFrameAgent("/frames", stringAcceptor("foo"))
	expectConfigError(t, err, "frames only")

	_, err = NewFrameAgent("/frames", anyFrame)
	expectConfigError(t, err, "concrete")

	_, err = NewFrameAgent("/frames", txt(), txt())
	expectConfigError(t, err, "multiple acceptors")
}

func TestParseMetadataKind(t *testing.T) {
	for _, in := range []string{"text", "BINARY", " fixed ", "json"} {
		if _, err := ParseMetadataKind(in); err != nil {
			t.Errorf("ParseMetadataKind(%q) failed: %v", in, err)
		}
	}
	if kind, err := ParseMetadataKind(""); err != nil || kind != MetaText {
		t.Errorf("ParseMetadataKind(\"\") = %s, %v", kind, err)
	}
	if _, err := ParseMetadataKind("xml"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestAgent_Hooks(t *testing.T) {
	agent, err := NewAgent("/ws", DefaultProtocol(), stringAcceptor("foo"))
	if err != nil {
		t.Fatal(err)
	}

	var events []string
	agent.OnConnect(func(ctx context.Context, client ClientInfo, sender Sender) {
		events = append(events, "connect:"+client.ConnID)
	}).OnDisconnect(func(client ClientInfo) {
		events = append(events, "disconnect:"+client.ConnID)
	})

	client := ClientInfo{ConnID: "c1"}
	agent.connected(context.Background(), client, nil)
	agent.disconnected(client)

	if strings.Join(events, ",") != "connect:c1,disconnect:c1" {
		t.Errorf("events = %v", events)
	}
}
