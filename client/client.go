// Package client is a websocket client for wsagent servers. It encodes
// requests with a meta.ClientCodec and correlates replies by request id.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Zereker/wsagent/marshal"
	"github.com/Zereker/wsagent/meta"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client closed")

// CallError is an error reply from the server.
type CallError struct {
	Code    int
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call failed with code %d: %s", e.Code, e.Message)
}

// HandshakeError is returned by Dial when the server refused the upgrade.
type HandshakeError struct {
	StatusCode int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake refused: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client sends requests to one agent and waits for the replies.
type Client struct {
	conn       *websocket.Conn
	codec      meta.ClientCodec
	marshaller marshal.Marshaller
	text       bool
	onPush     func(meta.Reply)

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[int64]chan meta.Reply
	err     error
	done    chan struct{}

	nextID atomic.Int64
}

type settings struct {
	marshaller marshal.Marshaller
	text       *bool
	frames     string
	onPush     func(meta.Reply)
	header     http.Header
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*settings)

// WithMarshaller sets the payload marshaller. The default is JSON.
func WithMarshaller(m marshal.Marshaller) Option {
	return func(s *settings) {
		s.marshaller = m
	}
}

// WithTextFrames selects text or binary request frames. By default text
// frames are used for meta.TextSeparator and meta.JSON, binary otherwise.
func WithTextFrames(text bool) Option {
	return func(s *settings) {
		s.text = &text
	}
}

// WithFramePreference declares the client frame type at handshake:
// text, binary, both or any.
func WithFramePreference(frames string) Option {
	return func(s *settings) {
		s.frames = frames
	}
}

// WithPushHandler receives replies that answer no pending call, such as
// messages pushed by the agent and errors about unparseable frames.
// The handler runs on the read loop and must not block.
func WithPushHandler(fn func(meta.Reply)) Option {
	return func(s *settings) {
		s.onPush = fn
	}
}

// WithHeader adds HTTP headers to the upgrade request.
func WithHeader(h http.Header) Option {
	return func(s *settings) {
		s.header = h
	}
}

// Dial connects to the agent at rawURL.
func Dial(ctx context.Context, rawURL string, codec meta.ClientCodec, opts ...Option) (*Client, error) {
	s := settings{marshaller: marshal.JSON{}, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	if s.frames != "" {
		q := u.Query()
		q.Set("frames", s.frames)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), s.header)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, &HandshakeError{StatusCode: resp.StatusCode}
		}
		return nil, errors.Wrap(err, "websocket dial")
	}

	text := defaultTextFrames(codec)
	if s.text != nil {
		text = *s.text
	}
	c := &Client{
		conn:       conn,
		codec:      codec,
		marshaller: s.marshaller,
		text:       text,
		onPush:     s.onPush,
		pending:    make(map[int64]chan meta.Reply),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func defaultTextFrames(codec meta.ClientCodec) bool {
	switch codec.(type) {
	case *meta.TextSeparator, meta.JSON:
		return true
	default:
		return false
	}
}

// Call sends request to acceptorID and decodes the reply into response,
// which may be nil. An error reply is returned as a *CallError.
func (c *Client) Call(ctx context.Context, acceptorID string, request, response any) error {
	content, err := c.marshaller.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	id := c.nextID.Add(1)
	ch := make(chan meta.Reply, 1)
	if err := c.register(id, ch); err != nil {
		return err
	}
	defer c.unregister(id)

	if err := c.write(c.codec.EncodeRequest([]byte(acceptorID), id, content)); err != nil {
		return err
	}

	select {
	case reply := <-ch:
		return c.decode(reply, response)
	case <-c.done:
		return c.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send sends request to acceptorID without waiting for a reply.
func (c *Client) Send(acceptorID string, request any) error {
	content, err := c.marshaller.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	return c.write(c.codec.EncodeRequest([]byte(acceptorID), c.nextID.Add(1), content))
}

// WriteRaw writes a frame as is, bypassing the codec.
func (c *Client) WriteRaw(text bool, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType(text), data)
}

func (c *Client) write(data []byte) error {
	select {
	case <-c.done:
		return c.closeErr()
	default:
	}
	return c.WriteRaw(c.text, data)
}

func (c *Client) decode(reply meta.Reply, response any) error {
	if reply.Code != 0 {
		var msg string
		if err := c.marshaller.Unmarshal(reply.Content, &msg); err != nil {
			msg = string(reply.Content)
		}
		return &CallError{Code: reply.Code, Message: msg}
	}
	if response == nil {
		return nil
	}
	return errors.Wrap(c.marshaller.Unmarshal(reply.Content, response), "unmarshal reply")
}

func (c *Client) register(id int64, ch chan meta.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.pending[id] = ch
	return nil
}

func (c *Client) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		reply, ok := c.codec.DecodeReply(data)
		if !ok {
			continue
		}

		c.mu.Lock()
		ch, pending := c.pending[reply.RequestID]
		c.mu.Unlock()

		switch {
		case pending:
			select {
			case ch <- reply:
			default:
			}
		case c.onPush != nil:
			c.onPush(reply)
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = ErrClosed
	}
	c.err = err
	close(c.done)
}

// Done is closed once the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	closeErr := c.conn.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return errors.Wrap(err, "close message")
	}
	return closeErr
}

func messageType(text bool) int {
	if text {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}
