package meta

import (
	"encoding/binary"
	"fmt"
)

// BinaryFixedSize is a binary format with fixed-width acceptor ids and no separators.
//
//	request: [size bytes acceptor id][8 bytes request id][content]
//	reply:   [8 bytes request id][1 byte code][content]
//
// Request ids are big-endian.
type BinaryFixedSize struct {
	size int
}

var _ Codec = (*BinaryFixedSize)(nil)

// NewBinaryFixedSize returns the format for acceptor ids of exactly size bytes.
func NewBinaryFixedSize(size int) *BinaryFixedSize {
	return &BinaryFixedSize{size: size}
}

// Size returns the acceptor id width.
func (m *BinaryFixedSize) Size() int {
	return m.size
}

// Parse implements FrameMetadata.
func (m *BinaryFixedSize) Parse(content []byte) (Parsed, error) {
	if m.size <= 0 || len(content) < m.size+requestIDSize {
		return notParsed(content), nil
	}
	return Parsed{
		AcceptorID: content[:m.size],
		RequestID:  int64(binary.BigEndian.Uint64(content[m.size:])),
		Content:    content[m.size+requestIDSize:],
	}, nil
}

// Compose implements FrameMetadata.
func (m *BinaryFixedSize) Compose(requestID int64, code int, content []byte) []byte {
	out := make([]byte, 0, requestIDSize+1+len(content))
	out = binary.BigEndian.AppendUint64(out, uint64(requestID))
	out = append(out, byte(code))
	return append(out, content...)
}

// EncodeRequest implements ClientCodec. The acceptor id is truncated or
// zero-padded to the configured size.
func (m *BinaryFixedSize) EncodeRequest(acceptorID []byte, requestID int64, content []byte) []byte {
	out := make([]byte, m.size, m.size+requestIDSize+len(content))
	copy(out, acceptorID)
	out = binary.BigEndian.AppendUint64(out, uint64(requestID))
	return append(out, content...)
}

// DecodeReply implements ClientCodec.
func (m *BinaryFixedSize) DecodeReply(frame []byte) (Reply, bool) {
	if len(frame) < requestIDSize+1 {
		return Reply{}, false
	}
	return Reply{
		RequestID: int64(binary.BigEndian.Uint64(frame)),
		Code:      int(frame[requestIDSize]),
		Content:   frame[requestIDSize+1:],
	}, true
}

func (m *BinaryFixedSize) String() string {
	return fmt.Sprintf("BinaryFixedSize[size=%d]", m.size)
}
