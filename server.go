package wsagent

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// Server serves registered agents over websockets, each at its own URL.
type Server struct {
	listener        net.Listener
	httpServer      *http.Server
	router          chi.Router
	logger          Logger
	shutdownTimeout time.Duration
	metrics         *Metrics
	metricsPath     string
	originPatterns  []string
	connOptions     []Option

	mu          sync.Mutex
	agents      map[string]*Agent
	conns       map[*Conn]struct{}
	serving     bool
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and its connections.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server will wait up to this duration
// before closing the remaining connections. This gives clients time to
// finish and disconnect. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// ServerMetricsOption exposes prometheus metrics at path.
// An empty path disables the endpoint.
func ServerMetricsOption(path string) ServerOption {
	return func(s *Server) {
		s.metricsPath = path
	}
}

// ServerOriginPatternsOption sets the hosts allowed to open cross-origin
// websockets. See websocket.AcceptOptions.
func ServerOriginPatternsOption(patterns ...string) ServerOption {
	return func(s *Server) {
		s.originPatterns = patterns
	}
}

// ServerConnOption sets options applied to every connection.
func ServerConnOption(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOptions = append(s.connOptions, opts...)
	}
}

// New creates a new server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr string, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener:    listener,
		router:      chi.NewRouter(),
		logger:      slog.Default(),
		agents:      make(map[string]*Agent),
		conns:       make(map[*Conn]struct{}),
		shutdownNow: make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metricsPath != "" {
		s.metrics = NewMetrics()
		s.router.Handle(s.metricsPath, s.metrics.Handler())
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Register serves agent at its URL. URLs must be unique per server.
// Agents must be registered before Serve is called.
func (s *Server) Register(agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return configErrorf("agent %s registered after the server started", agent)
	}
	if existing, ok := s.agents[agent.URL()]; ok {
		return configErrorf("websocket URL %s used by multiple agents: %s and %s", agent.URL(), agent, existing)
	}
	s.agents[agent.URL()] = agent
	s.router.Get(agent.URL(), s.serveAgent(agent))

	s.logger.Info("registering websocket agent", "url", agent.URL(),
		"frame_type", agent.Protocol().Frames.String(),
		"acceptors", len(agent.Acceptors()))
	return nil
}

// Handle registers an additional HTTP handler on the server router.
// Like Register, it must be called before Serve.
func (s *Server) Handle(pattern string, handler http.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return configErrorf("handler %s registered after the server started", pattern)
	}
	s.router.Handle(pattern, handler)
	return nil
}

// Handler returns the HTTP handler serving all registered agents.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server metrics, nil unless ServerMetricsOption is set.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// serveAgent negotiates the frame type, upgrades the request and runs
// the connection until it ends.
func (s *Server) serveAgent(agent *Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := ClientInfoFromRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		endpoint := agent.Endpoint()
		if err := endpoint.Lifecycle().OnBeforeHandshake(client); err != nil {
			var denied *ClientDeniedError
			if errors.As(err, &denied) {
				s.metrics.failed(agent.URL(), "client_denied")
				s.logger.Warn("client denied", clientArgs(agent, client, "error", err)...)
				http.Error(w, denied.Error(), http.StatusNotAcceptable)
				return
			}
			s.logger.Error("handshake failed", clientArgs(agent, client, "error", err)...)
			http.Error(w, "handshake failed", http.StatusInternalServerError)
			return
		}

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
		if err != nil {
			s.logger.Debug("upgrade failed", clientArgs(agent, client, "error", err)...)
			return
		}

		opts := append([]Option{LoggerOption(s.logger), MetricsOption(s.metrics)}, s.connOptions...)
		conn, err := NewConn(ws, endpoint, client, opts...)
		if err != nil {
			_ = ws.Close(websocket.StatusInternalError, "server error")
			return
		}
		if !s.track(conn) {
			_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer s.untrack(conn)

		_ = conn.Run(r.Context())
	}
}

func (s *Server) track(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// closeConns closes every open connection.
func (s *Server) closeConns() {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Serve accepts HTTP requests and upgrades those addressed to agents.
// It blocks until the context is canceled or an unrecoverable error occurs.
// If ServerShutdownTimeoutOption is set, the server waits up to the specified
// duration before closing the open connections, allowing clients to finish.
// Call Close() to bypass the timeout and shut down immediately.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.serving = true
	s.mu.Unlock()

	s.logger.Info("server started", "addr", s.listener.Addr())

	// Start a goroutine to handle context cancellation
	go func() {
		<-ctx.Done()

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
				// Timeout expired, proceed with shutdown
			case <-s.shutdownNow:
				// Close() was called, skip remaining timeout
				s.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		s.closeConns()
		_ = s.httpServer.Close()
	}()

	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Info("server stopped", "addr", s.listener.Addr())
		return ctx.Err()
	}
	s.logger.Error("serve error", "error", err)
	return err
}

// Close stops the server and closes every open connection.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
func (s *Server) Close() error {
	// Signal to bypass any pending shutdown timeout
	select {
	case s.shutdownNow <- struct{}{}:
	default:
		// Channel already has a signal
	}

	s.closeConns()
	err := s.httpServer.Close()
	_ = s.listener.Close() // not tracked by httpServer until Serve runs
	return err
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
