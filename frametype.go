package wsagent

import (
	"strings"

	"github.com/pkg/errors"
)

// FrameType is the frame type an agent supports on the server side.
type FrameType int

const (
	// TextOnly accepts and produces text frames only.
	TextOnly FrameType = iota
	// BinaryOnly accepts and produces binary frames only.
	BinaryOnly
	// FromClient follows the preference the client declared at handshake.
	FromClient
	// AllowBoth accepts both and replies in the type of each request.
	AllowBoth
)

var frameTypeNames = map[FrameType]string{
	TextOnly:   "text_only",
	BinaryOnly: "binary_only",
	FromClient: "from_client",
	AllowBoth:  "allow_both",
}

// String returns the name ParseFrameType accepts.
func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseFrameType parses the names printed by FrameType.String. Dashes are
// accepted in place of underscores.
func ParseFrameType(s string) (FrameType, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for t, name := range frameTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown frame type: %q", s)
}

// ClientFrameType is the frame type a client declared or was inferred to prefer.
type ClientFrameType int

const (
	// ClientAny means the client has no preference. It is the zero value.
	ClientAny ClientFrameType = iota
	// ClientText asks for text frames.
	ClientText
	// ClientBinary asks for binary frames.
	ClientBinary
	// ClientBoth means the client sends and reads both frame types.
	ClientBoth
)

// String returns the name ParseClientFrameType accepts.
func (t ClientFrameType) String() string {
	switch t {
	case ClientAny:
		return "any"
	case ClientText:
		return "text"
	case ClientBinary:
		return "binary"
	case ClientBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseClientFrameType parses a client preference. An empty string means ClientAny.
func ParseClientFrameType(s string) (ClientFrameType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return ClientAny, nil
	case "text":
		return ClientText, nil
	case "binary":
		return ClientBinary, nil
	case "both":
		return ClientBoth, nil
	default:
		return ClientAny, errors.Errorf("unknown client frame type: %q", s)
	}
}

// ConcreteFrameType is the frame type negotiated for one connection.
type ConcreteFrameType int

// The zero ConcreteFrameType means the handshake has not happened yet.
const (
	// ConcreteText restricts the connection to text frames.
	ConcreteText ConcreteFrameType = iota + 1
	// ConcreteBinary restricts the connection to binary frames.
	ConcreteBinary
	// ConcreteBoth accepts both and replies in the type of each request.
	ConcreteBoth
)

func (t ConcreteFrameType) String() string {
	switch t {
	case ConcreteText:
		return "text"
	case ConcreteBinary:
		return "binary"
	case ConcreteBoth:
		return "both"
	default:
		return "unresolved"
	}
}

// ResolveFrameType negotiates the connection frame type from the client
// preference and the type the agent supports. It returns a
// *ClientDeniedError when the two are incompatible.
func ResolveFrameType(client ClientFrameType, supported FrameType) (ConcreteFrameType, error) {
	switch supported {
	case TextOnly:
		if client != ClientText && client != ClientAny {
			return 0, denyClient(client, supported)
		}
		return ConcreteText, nil
	case BinaryOnly:
		if client != ClientBinary && client != ClientAny {
			return 0, denyClient(client, supported)
		}
		return ConcreteBinary, nil
	case FromClient:
		switch client {
		case ClientText:
			return ConcreteText, nil
		case ClientBinary:
			return ConcreteBinary, nil
		default:
			return ConcreteBoth, nil
		}
	case AllowBoth:
		return ConcreteBoth, nil
	default:
		return 0, errors.Errorf("unknown supported frame type: %d", supported)
	}
}
