// Package meta implements the wire formats that embed an acceptor id,
// a request id and a payload in a single websocket frame.
//
// A FrameMetadata parses inbound frames and composes outbound ones. Every
// strategy here also implements ClientCodec, the mirror image used by peers:
// a client encodes requests the server can Parse and decodes the replies the
// server Composes.
package meta

import (
	"bytes"

	"github.com/pkg/errors"
)

const (
	// NoID is the request id of a frame whose id could not be determined.
	NoID int64 = -1

	// MaxIDSize is the longest acceptor id any strategy will search for.
	MaxIDSize = 64

	// DefaultSeparator separates the metadata fields in separator formats.
	DefaultSeparator byte = ' '

	// maxNumberLength fits the decimal form of any int64, sign included.
	maxNumberLength = 20

	requestIDSize = 8
)

// ErrMalformed is returned by Parse when the frame is not even structurally
// valid for the format, as opposed to merely not routable.
var ErrMalformed = errors.New("malformed frame metadata")

// Parsed is the result of parsing frame metadata.
//
// A routable result has a non-nil AcceptorID. A non-routable result always
// has a nil AcceptorID, RequestID equal to NoID and the original content.
type Parsed struct {
	AcceptorID []byte
	RequestID  int64
	Content    []byte
}

// Routable reports whether an acceptor id was found.
func (p Parsed) Routable() bool {
	return p.AcceptorID != nil
}

func notParsed(content []byte) Parsed {
	return Parsed{RequestID: NoID, Content: content}
}

// FrameMetadata is a server-side wire format.
type FrameMetadata interface {
	// Parse extracts the acceptor id, request id and payload from an inbound frame.
	// It returns an error only when the frame is malformed beyond routing.
	Parse(content []byte) (Parsed, error)
	// Compose builds an outbound frame payload.
	Compose(requestID int64, code int, content []byte) []byte
}

// Reply is an outbound frame as seen by the peer.
type Reply struct {
	RequestID int64
	Code      int
	Content   []byte
}

// ClientCodec is the peer side of a FrameMetadata.
type ClientCodec interface {
	// EncodeRequest builds a frame the matching FrameMetadata parses back.
	EncodeRequest(acceptorID []byte, requestID int64, content []byte) []byte
	// DecodeReply splits a composed frame. It returns false if the frame does not match the format.
	DecodeReply(frame []byte) (Reply, bool)
}

// Codec is implemented by every strategy in this package.
type Codec interface {
	FrameMetadata
	ClientCodec
}

// indexWithin returns the index of sep in the first limit bytes of b, or -1.
func indexWithin(b []byte, sep byte, limit int) int {
	if limit > len(b) {
		limit = len(b)
	}
	return bytes.IndexByte(b[:limit], sep)
}
