package wsagent

import "strconv"

// Frame is a websocket data frame.
type Frame interface {
	// Length returns the length of the frame payload.
	Length() int
	// Body returns the raw frame payload.
	Body() []byte
	// IsText reports whether this is a text frame.
	IsText() bool
}

// TextFrame is a websocket text frame. Data should be valid UTF-8.
type TextFrame struct {
	Data []byte
}

// Text returns a text frame holding s.
func Text(s string) TextFrame {
	return TextFrame{Data: []byte(s)}
}

// Length returns the payload length in bytes.
func (f TextFrame) Length() int { return len(f.Data) }

// Body returns the payload.
func (f TextFrame) Body() []byte { return f.Data }

// IsText always reports true.
func (f TextFrame) IsText() bool { return true }

// String returns the payload as text.
func (f TextFrame) String() string {
	return "TextFrame(" + string(f.Data) + ")"
}

// BinaryFrame is a websocket binary frame.
type BinaryFrame struct {
	Data []byte
}

// Binary returns a binary frame holding b.
func Binary(b []byte) BinaryFrame {
	return BinaryFrame{Data: b}
}

// Length returns the payload length in bytes.
func (f BinaryFrame) Length() int { return len(f.Data) }

// Body returns the payload.
func (f BinaryFrame) Body() []byte { return f.Data }

// IsText always reports false.
func (f BinaryFrame) IsText() bool { return false }

// String returns the payload size. The bytes are not printed.
func (f BinaryFrame) String() string {
	return "BinaryFrame(" + strconv.Itoa(len(f.Data)) + " bytes)"
}

// frameOf wraps payload in a text or binary frame.
func frameOf(payload []byte, text bool) Frame {
	if text {
		return TextFrame{Data: payload}
	}
	return BinaryFrame{Data: payload}
}
