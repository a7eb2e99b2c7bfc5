package wsagent

import (
	"log/slog"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	// Verify it's the slog default
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// mockLogger records log calls. It is safe for concurrent use.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *mockLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

// find returns the first entry logged with msg.
func (l *mockLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func TestLogger_CustomImplementation(t *testing.T) {
	mock := &mockLogger{}
	var logger Logger = mock

	logger.Debug("test debug", "key1", "value1")
	logger.Info("test info", "key2", "value2")
	logger.Warn("test warn", "key3", "value3")
	logger.Error("test error", "key4", "value4")

	for _, want := range []string{"test debug", "test info", "test warn", "test error"} {
		if _, ok := mock.find(want); !ok {
			t.Errorf("%q not logged", want)
		}
	}
	if e, _ := mock.find("test warn"); e.level != "warn" || e.args[1] != "value3" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestClientArgs(t *testing.T) {
	agent, err := NewAgent("/ws", DefaultProtocol(), stringAcceptor("foo"))
	if err != nil {
		t.Fatal(err)
	}
	client := ClientInfo{ConnID: "c1", RemoteAddr: "127.0.0.1:1234"}

	args := clientArgs(agent, client, "code", 100)
	want := []any{"agent", "/ws", "conn_id", "c1", "remote_addr", "127.0.0.1:1234", "code", 100}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], want[i])
		}
	}
}
