package wsagent

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Zereker/wsagent/meta"
)

// FrameTypeParam is the query parameter a client uses to declare its frame type preference.
const FrameTypeParam = "frames"

// ClientInfo describes the client of one connection. It is fixed at handshake.
type ClientInfo struct {
	ConnID        string
	RemoteAddr    string
	Version       string
	PreferredType ClientFrameType
}

// ClientInfoFromRequest builds the ClientInfo for an upgrade request.
// The preference is read from the FrameTypeParam query parameter.
func ClientInfoFromRequest(r *http.Request) (ClientInfo, error) {
	q := r.URL.Query()
	preferred, err := ParseClientFrameType(q.Get(FrameTypeParam))
	if err != nil {
		return ClientInfo{}, err
	}
	return ClientInfo{
		ConnID:        uuid.NewString(),
		RemoteAddr:    r.RemoteAddr,
		Version:       q.Get("v"),
		PreferredType: preferred,
	}, nil
}

// BaseContext is the part of a request context needed to frame a reply.
type BaseContext interface {
	RequestID() int64
	IsTextRequest() bool
}

// RequestContext carries per-frame correlation data. It is created once
// per inbound frame and is immutable.
type RequestContext struct {
	requestID int64
	frame     Frame
	client    ClientInfo
}

// NewRequestContext returns the context for frame.
func NewRequestContext(requestID int64, frame Frame, client ClientInfo) *RequestContext {
	return &RequestContext{requestID: requestID, frame: frame, client: client}
}

// RequestID returns the id parsed from the frame metadata, or meta.NoID.
func (c *RequestContext) RequestID() int64 { return c.requestID }

// Frame returns the inbound frame.
func (c *RequestContext) Frame() Frame { return c.frame }

// Client returns the connection's client.
func (c *RequestContext) Client() ClientInfo { return c.client }

// IsTextRequest reports whether the request came in a text frame.
func (c *RequestContext) IsTextRequest() bool {
	return c.frame != nil && c.frame.IsText()
}

// IsBinaryRequest reports whether the request came in a binary frame.
func (c *RequestContext) IsBinaryRequest() bool {
	return c.frame != nil && !c.frame.IsText()
}

// EmptyContext is a BaseContext with no originating frame, used for
// out-of-band messages and errors raised outside any request.
type EmptyContext struct {
	ID   int64
	Text bool
}

// Contexts for messages not tied to any request.
var (
	EmptyTextContext   = EmptyContext{ID: meta.NoID, Text: true}
	EmptyBinaryContext = EmptyContext{ID: meta.NoID, Text: false}
)

// RequestID returns c.ID.
func (c EmptyContext) RequestID() int64 { return c.ID }

// IsTextRequest returns c.Text.
func (c EmptyContext) IsTextRequest() bool { return c.Text }
