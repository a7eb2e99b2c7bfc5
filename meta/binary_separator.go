package meta

import (
	"encoding/binary"
	"fmt"
)

// BinarySeparator is a binary format whose fields are split by a one-byte separator.
//
//	request: [acceptor id][sep][8 bytes request id][sep][content]
//	reply:   [8 bytes request id][sep][1 byte code][sep][content]
//
// The acceptor id must be non-empty and found within the first maxIDSize bytes.
type BinarySeparator struct {
	separator byte
	maxIDSize int
}

var _ Codec = (*BinarySeparator)(nil)

// NewBinarySeparator returns the format using separator and ids of at most maxIDSize bytes.
// A maxIDSize outside (0, MaxIDSize] is clamped to MaxIDSize.
func NewBinarySeparator(separator byte, maxIDSize int) *BinarySeparator {
	if maxIDSize <= 0 || maxIDSize > MaxIDSize {
		maxIDSize = MaxIDSize
	}
	return &BinarySeparator{separator: separator, maxIDSize: maxIDSize}
}

// DefaultBinarySeparator uses DefaultSeparator and MaxIDSize.
func DefaultBinarySeparator() *BinarySeparator {
	return NewBinarySeparator(DefaultSeparator, MaxIDSize)
}

// Parse implements FrameMetadata.
func (m *BinarySeparator) Parse(content []byte) (Parsed, error) {
	idEnd := indexWithin(content, m.separator, m.maxIDSize+1)
	if idEnd <= 0 {
		return notParsed(content), nil
	}

	start := idEnd + 1
	end := start + requestIDSize
	if len(content) <= end || content[end] != m.separator {
		return notParsed(content), nil
	}

	return Parsed{
		AcceptorID: content[:idEnd],
		RequestID:  int64(binary.BigEndian.Uint64(content[start:end])),
		Content:    content[end+1:],
	}, nil
}

// Compose implements FrameMetadata.
func (m *BinarySeparator) Compose(requestID int64, code int, content []byte) []byte {
	out := make([]byte, 0, requestIDSize+3+len(content))
	out = binary.BigEndian.AppendUint64(out, uint64(requestID))
	out = append(out, m.separator, byte(code), m.separator)
	return append(out, content...)
}

// EncodeRequest implements ClientCodec.
func (m *BinarySeparator) EncodeRequest(acceptorID []byte, requestID int64, content []byte) []byte {
	out := make([]byte, 0, len(acceptorID)+requestIDSize+2+len(content))
	out = append(out, acceptorID...)
	out = append(out, m.separator)
	out = binary.BigEndian.AppendUint64(out, uint64(requestID))
	out = append(out, m.separator)
	return append(out, content...)
}

// DecodeReply implements ClientCodec.
func (m *BinarySeparator) DecodeReply(frame []byte) (Reply, bool) {
	if len(frame) < requestIDSize+3 || frame[requestIDSize] != m.separator || frame[requestIDSize+2] != m.separator {
		return Reply{}, false
	}
	return Reply{
		RequestID: int64(binary.BigEndian.Uint64(frame)),
		Code:      int(frame[requestIDSize+1]),
		Content:   frame[requestIDSize+3:],
	}, true
}

func (m *BinarySeparator) String() string {
	return fmt.Sprintf("BinarySeparator[separator=%q, maxIDSize=%d]", m.separator, m.maxIDSize)
}
