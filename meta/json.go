package meta

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// JSON is an envelope format carrying the metadata as JSON object fields.
//
//	request: {"on": "<acceptor id>", "id": <request id>, "data": "<content>"}
//	reply:   {"id": <request id>, "code": <code>, "data": "<content>"}
//
// Extra request fields are ignored. A request whose fields are missing or of
// the wrong JSON type, or whose id is not integral, is not routable. A frame
// that is not valid JSON is rejected with ErrMalformed.
type JSON struct{}

var _ Codec = JSON{}

type jsonReply struct {
	ID   int64  `json:"id"`
	Code int    `json:"code"`
	Data string `json:"data"`
}

type jsonRequest struct {
	On   string `json:"on"`
	ID   int64  `json:"id"`
	Data string `json:"data"`
}

// Parse implements FrameMetadata.
func (JSON) Parse(content []byte) (Parsed, error) {
	if !gjson.ValidBytes(content) {
		return Parsed{}, errors.Wrap(ErrMalformed, "invalid json")
	}

	root := gjson.ParseBytes(content)
	if !root.IsObject() {
		return notParsed(content), nil
	}

	on, id, data := root.Get("on"), root.Get("id"), root.Get("data")
	if on.Type != gjson.String || on.Str == "" || id.Type != gjson.Number || data.Type != gjson.String {
		return notParsed(content), nil
	}
	// ids must be integral; 123.0 is accepted, 123.5 is not
	if id.Num != float64(id.Int()) {
		return notParsed(content), nil
	}

	return Parsed{
		AcceptorID: []byte(on.Str),
		RequestID:  id.Int(),
		Content:    []byte(data.Str),
	}, nil
}

// Compose implements FrameMetadata.
func (JSON) Compose(requestID int64, code int, content []byte) []byte {
	return encodeJSON(jsonReply{ID: requestID, Code: code, Data: string(content)})
}

// EncodeRequest implements ClientCodec.
func (JSON) EncodeRequest(acceptorID []byte, requestID int64, content []byte) []byte {
	return encodeJSON(jsonRequest{On: string(acceptorID), ID: requestID, Data: string(content)})
}

// DecodeReply implements ClientCodec.
func (JSON) DecodeReply(frame []byte) (Reply, bool) {
	if !gjson.ValidBytes(frame) {
		return Reply{}, false
	}
	root := gjson.ParseBytes(frame)
	id, code, data := root.Get("id"), root.Get("code"), root.Get("data")
	if id.Type != gjson.Number || code.Type != gjson.Number || data.Type != gjson.String {
		return Reply{}, false
	}
	return Reply{RequestID: id.Int(), Code: int(code.Int()), Content: []byte(data.Str)}, true
}

func (JSON) String() string {
	return "JSON"
}

// encodeJSON marshals v without HTML escaping and without the trailing newline.
func encodeJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// The envelopes hold only strings and integers, so encoding cannot fail.
	_ = enc.Encode(v)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
