package multilang

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

	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// mockLogger records every call; it is shared by the package's tests.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *mockLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (l *mockLogger) last(level string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].level == level {
			return l.entries[i], true
		}
	}
	return logEntry{}, false
}

// arg returns the value logged under key.
func (e logEntry) arg(key string) (any, bool) {
	for i := 0; i+1 < len(e.args); i += 2 {
		if e.args[i] == key {
			return e.args[i+1], true
		}
	}
	return nil, false
}

func TestMockLogger_Records(t *testing.T) {
	logger := &mockLogger{}
	var _ Logger = logger

	logger.Debug("test debug", "key1", "value1")
	logger.Warn("test warn", "key2", "value2")
	logger.Warn("test warn again")

	if got := logger.count("warn"); got != 2 {
		t.Errorf("warn count = %d, want 2", got)
	}
	entry, ok := logger.last("debug")
	if !ok {
		t.Fatal("no debug entry")
	}
	if v, _ := entry.arg("key1"); v != "value1" {
		t.Errorf("key1 = %v, want value1", v)
	}
}
