// Package wsagent serves websocket agents: sets of handlers addressed by
// an acceptor id embedded in each frame. Frames are parsed by a
// meta.FrameMetadata, payloads decoded by a marshal.Marshaller, and replies
// framed the same way and correlated by request id.
package wsagent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/wsagent/meta"
)

// Errors returned by connection operations.
var (
	// ErrInvalidEndpoint is returned when no endpoint is provided.
	ErrInvalidEndpoint = errors.New("invalid agent endpoint")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// ErrBufferFull is returned when the send buffer is full and cannot accept more frames.
// This error indicates backpressure - the client is not consuming frames fast enough.
// Recommended handling strategies:
//   - Drop the frame (for non-critical data like progress updates)
//   - Use SendBlocking or SendTimeout to wait for buffer space
//   - Implement application-level flow control
var ErrBufferFull = errors.New("send buffer full")

// Default configuration values.
const (
	// defaultBufferSize is the default size of the frame channel buffer.
	defaultBufferSize = 16
	// defaultMaxPackageLength is the default maximum size of a single frame (1MB).
	defaultMaxPackageLength = 1024 * 1024
)

// Conn serves one websocket connection for an agent.
// Inbound frames are processed one at a time, in order, by the read loop.
// Replies and frames pushed through Send are written by the write loop.
type Conn struct {
	ws       *websocket.Conn
	endpoint AgentEndpoint
	agent    *Agent
	client   ClientInfo
	logger   Logger

	opts options

	sendMsg chan Frame
	closed  atomic.Bool

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc
}

// NewConn wraps an accepted websocket connection.
// The endpoint must already have completed its handshake for client.
func NewConn(ws *websocket.Conn, endpoint AgentEndpoint, client ClientInfo, opt ...Option) (*Conn, error) {
	if endpoint == nil {
		return nil, ErrInvalidEndpoint
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	ws.SetReadLimit(opts.maxReadLength)
	return &Conn{
		ws:       ws,
		endpoint: endpoint,
		agent:    endpoint.Agent(),
		client:   client,
		logger:   opts.logger,
		opts:     opts,
		sendMsg:  make(chan Frame, opts.bufferSize),
	}, nil
}

// checkOptions sets default values for connection options.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.idleTimeout < 0 {
		opts.idleTimeout = 0
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Continue }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// Run starts the connection's read and write loops and the agent's
// OnConnect hooks. It blocks until the client disconnects, an
// unrecoverable error occurs or the context is canceled.
// The connection is closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", clientArgs(c.agent, c.client)...)
	c.logger.Debug("connection options", clientArgs(c.agent, c.client,
		"frame_type", c.agent.Protocol().Frames.String(),
		"buffer_size", c.opts.bufferSize,
		"max_read_length", c.opts.maxReadLength,
		"idle_timeout", c.opts.idleTimeout)...)
	c.opts.metrics.connOpened(c.agent.URL())
	defer c.opts.metrics.connClosed(c.agent.URL())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	if c.closed.Load() {
		cancel()
	}
	c.mu.Unlock()

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	c.agent.connected(child, c.client, senderFor(c))

	err := group.Wait()
	c.closeConn(err)
	c.agent.disconnected(c.client)

	if isNormalClose(err) {
		c.logger.Info("connection closed", clientArgs(c.agent, c.client)...)
		return nil
	}
	c.logger.Info("connection closed with error", clientArgs(c.agent, c.client, "error", err)...)
	return err
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Client returns the client of the connection.
func (c *Conn) Client() ClientInfo {
	return c.client
}

// Send queues frame without blocking (fire-and-forget).
//
// Returns:
//   - nil: frame was successfully queued (not yet sent)
//   - ErrBufferFull: send buffer is full, frame was NOT queued
//   - ErrConnectionClosed: connection is closed
//
// For guaranteed delivery, use SendBlocking or SendTimeout instead.
func (c *Conn) Send(frame Frame) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendBlocking queues frame, blocking until there is buffer space or the
// context is canceled.
//
// Returns:
//   - nil: frame was successfully queued
//   - context.Canceled or context.DeadlineExceeded: context was canceled
//   - ErrConnectionClosed: connection is closed
func (c *Conn) SendBlocking(ctx context.Context, frame Frame) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTimeout queues frame, waiting at most timeout for buffer space.
//
// Returns:
//   - nil: frame was successfully queued
//   - ErrBufferFull: timeout expired before frame could be queued
//   - ErrConnectionClosed: connection is closed
func (c *Conn) SendTimeout(frame Frame, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- frame:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// readLoop reads frames and dispatches them to the endpoint one by one.
// Returns when the context is canceled or the websocket fails.
// Frames exceeding maxReadLength close the connection.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		frame, err := c.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("read error", clientArgs(c.agent, c.client, "error", err)...)
			return err
		}

		c.opts.metrics.frameIn(c.agent.URL(), frame)
		if err := c.handle(ctx, frame); err != nil {
			return err
		}
	}
}

func (c *Conn) read(ctx context.Context) (Frame, error) {
	if c.opts.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.idleTimeout)
		defer cancel()
	}
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, err
	}
	return frameOf(data, typ == websocket.MessageText), nil
}

// handle runs one frame through the endpoint and queues the reply, if any.
// Only errors that must close the connection are returned.
func (c *Conn) handle(ctx context.Context, frame Frame) error {
	start := time.Now()
	result, err := c.endpoint.ProcessIncoming(ctx, frame, c.client)
	if result.Context != nil {
		c.opts.metrics.observe(c.agent.URL(), time.Since(start))
	}
	if err != nil {
		return c.handleError(ctx, err, frame, result.Context)
	}

	if result.Value == nil {
		return nil
	}

	outgoing, err := c.endpoint.ProcessOutgoing(result.Value, result.Context)
	if err != nil {
		return c.handleError(ctx, err, frame, result.Context)
	}
	if outgoing == nil {
		outgoing = mapInstance(result.Value)
		if outgoing == nil {
			c.logger.Warn("agent returned unexpected object", clientArgs(c.agent, c.client, "type", fmt.Sprintf("%T", result.Value))...)
			return nil
		}
	}
	return c.reply(ctx, outgoing)
}

// handleError replies to errors the client can be told about and hands
// the others to the onError callback.
func (c *Conn) handleError(ctx context.Context, err error, frame Frame, rc *RequestContext) error {
	wsErr, ok := AsWebsocketError(err)
	if !ok {
		c.opts.metrics.failed(c.agent.URL(), "handler")
		c.logger.Error("unexpected failure", clientArgs(c.agent, c.client, "error", err)...)
		if c.opts.onError(err) == Disconnect {
			return err
		}
		return nil
	}

	var badFrame *BadFrameError
	if errors.As(err, &badFrame) {
		c.opts.metrics.failed(c.agent.URL(), badFrame.Kind.String())
	} else {
		c.opts.metrics.failed(c.agent.URL(), "agent")
	}
	c.logger.Warn("websocket error", clientArgs(c.agent, c.client, "code", wsErr.Code(), "error", err)...)

	replyError := wsErr.ReplyError()
	if replyError == "" {
		return nil
	}

	var bc BaseContext = EmptyContext{ID: meta.NoID, Text: frame.IsText()}
	if rc != nil {
		bc = rc
	}
	outgoing, ferr := c.endpoint.ProcessError(wsErr.Code(), replyError, bc)
	if ferr != nil {
		c.logger.Error("failed to frame error reply", clientArgs(c.agent, c.client, "error", ferr)...)
		if c.opts.onError(ferr) == Disconnect {
			return ferr
		}
		return nil
	}
	if outgoing == nil {
		return nil
	}
	return c.reply(ctx, outgoing)
}

// reply queues a frame produced by the read loop. It waits for buffer
// space so that replies are never dropped.
func (c *Conn) reply(ctx context.Context, frame Frame) error {
	select {
	case c.sendMsg <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop continuously sends frames from the send channel to the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-c.sendMsg:
			if err := c.write(ctx, frame); err != nil {
				return err
			}
		}
	}
}

// write sends frame with the configured write deadline.
func (c *Conn) write(ctx context.Context, frame Frame) error {
	if c.opts.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.writeTimeout)
		defer cancel()
	}

	typ := websocket.MessageBinary
	if frame.IsText() {
		typ = websocket.MessageText
	}
	if err := c.ws.Write(ctx, typ, frame.Body()); err != nil {
		c.logger.Debug("write error", clientArgs(c.agent, c.client, "error", err)...)
		return err
	}
	c.opts.metrics.frameOut(c.agent.URL(), frame)
	return nil
}

// closeConn marks the connection as closed and closes the websocket with
// a status matching err.
func (c *Conn) closeConn(err error) {
	if c.closed.Swap(true) {
		return
	}
	switch {
	case isNormalClose(err):
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	case websocket.CloseStatus(err) != -1:
		// closing handshake already done by the peer
		_ = c.ws.CloseNow()
	default:
		_ = c.ws.Close(websocket.StatusInternalError, "server error")
	}
}

// isNormalClose reports whether err ends the connection without failure.
func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// mapInstance turns results of agents without a reply protocol into frames.
func mapInstance(v any) Frame {
	switch t := v.(type) {
	case Frame:
		return t
	case string:
		return Text(t)
	case []byte:
		return Binary(t)
	default:
		return nil
	}
}
