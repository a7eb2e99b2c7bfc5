package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/wsagent/meta"
)

// stubServer answers requests framed with codec:
// echo replies with the content, fail replies with code 102, push sends an
// unsolicited frame before the reply and silent never replies.
type stubServer struct {
	*httptest.Server

	mu          sync.Mutex
	frames      string
	messageType int
}

func newStubServer(t *testing.T, codec meta.Codec) *stubServer {
	t.Helper()

	s := &stubServer{}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.frames = r.URL.Query().Get("frames")
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messageType = typ
			s.mu.Unlock()

			p, err := codec.Parse(data)
			if err != nil || !p.Routable() {
				continue
			}
			var out [][]byte
			switch string(p.AcceptorID) {
			case "echo":
				out = append(out, codec.Compose(p.RequestID, 0, p.Content))
			case "fail":
				out = append(out, codec.Compose(p.RequestID, 102, []byte(`"bad input"`)))
			case "push":
				out = append(out,
					codec.Compose(meta.NoID, 0, []byte(`"pushed"`)),
					codec.Compose(p.RequestID, 0, p.Content))
			}
			for _, frame := range out {
				if err := conn.WriteMessage(typ, frame); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *stubServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *stubServer) lastMessageType() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageType
}

func dial(t *testing.T, s *stubServer, codec meta.ClientCodec, opts ...Option) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, s.url(), codec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCall(t *testing.T) {
	codecs := map[string]meta.Codec{
		"text":   meta.DefaultTextSeparator(),
		"binary": meta.DefaultBinarySeparator(),
		"fixed":  meta.NewBinaryFixedSize(4),
		"json":   meta.JSON{},
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			s := newStubServer(t, codec)
			c := dial(t, s, codec)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var got map[string]int
			require.NoError(t, c.Call(ctx, "echo", map[string]int{"a": 1}, &got))
			assert.Equal(t, map[string]int{"a": 1}, got)

			err := c.Call(ctx, "fail", "x", nil)
			var callErr *CallError
			require.ErrorAs(t, err, &callErr)
			assert.Equal(t, 102, callErr.Code)
			assert.Equal(t, "bad input", callErr.Message)
		})
	}
}

func TestDefaultFrameTypes(t *testing.T) {
	codec := meta.DefaultBinarySeparator()
	s := newStubServer(t, codec)
	c := dial(t, s, codec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Call(ctx, "echo", "b", nil))
	assert.Equal(t, websocket.BinaryMessage, s.lastMessageType())

	text := dial(t, s, codec, WithTextFrames(true))
	require.NoError(t, text.Call(ctx, "echo", "t", nil))
	assert.Equal(t, websocket.TextMessage, s.lastMessageType())
}

func TestPushHandler(t *testing.T) {
	codec := meta.DefaultTextSeparator()
	s := newStubServer(t, codec)

	pushes := make(chan meta.Reply, 1)
	c := dial(t, s, codec, WithPushHandler(func(r meta.Reply) {
		pushes <- r
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got string
	require.NoError(t, c.Call(ctx, "push", "reply", &got))
	assert.Equal(t, "reply", got)

	select {
	case r := <-pushes:
		assert.Equal(t, meta.NoID, r.RequestID)
		assert.Equal(t, `"pushed"`, string(r.Content))
	case <-time.After(5 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestCall_ContextTimeout(t *testing.T) {
	codec := meta.DefaultTextSeparator()
	s := newStubServer(t, codec)
	c := dial(t, s, codec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Call(ctx, "silent", "x", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_MarshalError(t *testing.T) {
	codec := meta.DefaultTextSeparator()
	s := newStubServer(t, codec)
	c := dial(t, s, codec)

	err := c.Call(context.Background(), "echo", make(chan int), nil)
	assert.Error(t, err)
}

func TestDial_FramePreference(t *testing.T) {
	codec := meta.DefaultTextSeparator()
	s := newStubServer(t, codec)
	c := dial(t, s, codec, WithFramePreference("binary"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Call(ctx, "echo", "x", nil))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, "binary", s.frames)
}

func TestDial_HandshakeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusNotAcceptable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), meta.JSON{})
	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
	assert.Equal(t, http.StatusNotAcceptable, hsErr.StatusCode)
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "ws://[::1", meta.JSON{})
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	codec := meta.DefaultTextSeparator()
	s := newStubServer(t, codec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, s.url(), codec)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed")
	}
	assert.Error(t, c.Call(ctx, "echo", "x", nil))
	assert.Error(t, c.Send("echo", "x"))
}
