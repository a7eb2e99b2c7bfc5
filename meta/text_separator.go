package meta

import (
	"fmt"
	"strconv"
)

// TextSeparator is a text format whose fields are split by a one-byte separator.
//
//	request: [acceptor id][sep][decimal request id][sep][content]
//	reply:   [decimal request id][sep][decimal code][sep][content]
//
// A request id that is not a valid decimal int64 parses as NoID; the frame
// itself stays routable.
type TextSeparator struct {
	separator byte
	maxIDSize int
}

var _ Codec = (*TextSeparator)(nil)

// NewTextSeparator returns the format using separator and ids of at most maxIDSize bytes.
// A maxIDSize outside (0, MaxIDSize] is clamped to MaxIDSize.
func NewTextSeparator(separator byte, maxIDSize int) *TextSeparator {
	if maxIDSize <= 0 || maxIDSize > MaxIDSize {
		maxIDSize = MaxIDSize
	}
	return &TextSeparator{separator: separator, maxIDSize: maxIDSize}
}

// DefaultTextSeparator uses DefaultSeparator and MaxIDSize.
func DefaultTextSeparator() *TextSeparator {
	return NewTextSeparator(DefaultSeparator, MaxIDSize)
}

// Parse implements FrameMetadata.
func (m *TextSeparator) Parse(content []byte) (Parsed, error) {
	idEnd := indexWithin(content, m.separator, m.maxIDSize+1)
	if idEnd <= 0 {
		return notParsed(content), nil
	}

	rest := content[idEnd+1:]
	numEnd := indexWithin(rest, m.separator, maxNumberLength+1)
	if numEnd < 0 {
		return notParsed(content), nil
	}

	return Parsed{
		AcceptorID: content[:idEnd],
		RequestID:  parseNumber(rest[:numEnd]),
		Content:    rest[numEnd+1:],
	}, nil
}

// Compose implements FrameMetadata.
func (m *TextSeparator) Compose(requestID int64, code int, content []byte) []byte {
	out := make([]byte, 0, maxNumberLength+6+len(content))
	out = strconv.AppendInt(out, requestID, 10)
	out = append(out, m.separator)
	out = strconv.AppendInt(out, int64(code), 10)
	out = append(out, m.separator)
	return append(out, content...)
}

// EncodeRequest implements ClientCodec.
func (m *TextSeparator) EncodeRequest(acceptorID []byte, requestID int64, content []byte) []byte {
	out := make([]byte, 0, len(acceptorID)+maxNumberLength+2+len(content))
	out = append(out, acceptorID...)
	out = append(out, m.separator)
	out = strconv.AppendInt(out, requestID, 10)
	out = append(out, m.separator)
	return append(out, content...)
}

// DecodeReply implements ClientCodec.
func (m *TextSeparator) DecodeReply(frame []byte) (Reply, bool) {
	idEnd := indexWithin(frame, m.separator, maxNumberLength+1)
	if idEnd <= 0 {
		return Reply{}, false
	}
	rest := frame[idEnd+1:]
	codeEnd := indexWithin(rest, m.separator, maxNumberLength+1)
	if codeEnd <= 0 {
		return Reply{}, false
	}

	requestID, err := strconv.ParseInt(string(frame[:idEnd]), 10, 64)
	if err != nil {
		return Reply{}, false
	}
	code, err := strconv.Atoi(string(rest[:codeEnd]))
	if err != nil {
		return Reply{}, false
	}
	return Reply{RequestID: requestID, Code: code, Content: rest[codeEnd+1:]}, true
}

func (m *TextSeparator) String() string {
	return fmt.Sprintf("TextSeparator[separator=%q, maxIDSize=%d]", m.separator, m.maxIDSize)
}

func parseNumber(b []byte) int64 {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return NoID
	}
	return n
}
