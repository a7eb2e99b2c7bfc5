package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Zereker/wsagent"
	"github.com/Zereker/wsagent/config"
	"github.com/Zereker/wsagent/logx"
)

type primitive struct {
	I int     `json:"i" yaml:"i"`
	S string  `json:"s" yaml:"s"`
	F float64 `json:"f" yaml:"f"`
}

// hub tracks the senders of the echo agent's connections.
type hub struct {
	sync.RWMutex
	senders map[string]wsagent.MessageSender
}

func newHub() *hub {
	return &hub{senders: make(map[string]wsagent.MessageSender)}
}

func (h *hub) add(ctx context.Context, client wsagent.ClientInfo, sender wsagent.Sender) {
	ms, ok := sender.(wsagent.MessageSender)
	if !ok {
		return
	}
	h.Lock()
	h.senders[client.ConnID] = ms
	h.Unlock()

	_ = ms.SendMessage(wsagent.StatusOK, "welcome "+client.ConnID, wsagent.EmptyTextContext)
}

func (h *hub) remove(client wsagent.ClientInfo) {
	h.Lock()
	defer h.Unlock()

	delete(h.senders, client.ConnID)
}

func (h *hub) broadcast(msg string) int {
	h.RLock()
	defer h.RUnlock()

	sent := 0
	for _, s := range h.senders {
		if s.SendMessage(wsagent.StatusOK, msg, wsagent.EmptyTextContext) == nil {
			sent++
		}
	}
	return sent
}

func echoAgent(protocol wsagent.Protocol, h *hub) (*wsagent.Agent, error) {
	agent, err := wsagent.NewAgent("/ws/echo", protocol,
		wsagent.On("primitive", func(ctx context.Context, msg primitive, rc *wsagent.RequestContext) (any, error) {
			return msg, nil
		}),
		wsagent.On("upper", func(ctx context.Context, msg string, rc *wsagent.RequestContext) (any, error) {
			if msg == "" {
				return nil, wsagent.NewAgentError(wsagent.StatusAgentError, "empty message")
			}
			return strings.ToUpper(msg), nil
		}),
		wsagent.On("broadcast", func(ctx context.Context, msg string, rc *wsagent.RequestContext) (any, error) {
			return h.broadcast(msg), nil
		}),
		wsagent.Consume("log", func(ctx context.Context, msg map[string]any, rc *wsagent.RequestContext) error {
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return agent.OnConnect(h.add).OnDisconnect(h.remove), nil
}

func frameAgent() (*wsagent.Agent, error) {
	return wsagent.NewFrameAgent("/ws/frames",
		wsagent.HandleFrame(func(ctx context.Context, frame wsagent.TextFrame, rc *wsagent.RequestContext) (any, error) {
			return frame, nil
		}),
		wsagent.HandleFrame(func(ctx context.Context, frame wsagent.BinaryFrame, rc *wsagent.RequestContext) (any, error) {
			return frame.Data, nil
		}),
	)
}

func main() {
	configFile := flag.String("config", os.Getenv("WSAGENT_CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	settings, err := config.Load(*configFile)
	if err != nil {
		logx.New("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logx.New(settings.LogLevel)

	protocol, err := settings.WS.Protocol()
	if err != nil {
		logger.Error("invalid protocol", "error", err)
		os.Exit(1)
	}

	server, err := wsagent.New(settings.Listen, settings.ServerOptions(logger)...)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	echo, err := echoAgent(protocol, newHub())
	if err != nil {
		logger.Error("invalid agent", "error", err)
		os.Exit(1)
	}
	frames, err := frameAgent()
	if err != nil {
		logger.Error("invalid agent", "error", err)
		os.Exit(1)
	}
	for _, agent := range []*wsagent.Agent{echo, frames} {
		if err := server.Register(agent); err != nil {
			logger.Error("failed to register agent", "error", err)
			os.Exit(1)
		}
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down server...")
		cancel()
	}()

	logger.Info("server start", "addr", server.Addr().String())
	if err := server.Serve(ctx); err != nil && err != context.Canceled {
		logger.Error("server error", "error", err)
	}
}
