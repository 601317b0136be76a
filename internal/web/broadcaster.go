package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a message to all subscribed clients as JSON:
// {"t":"...","l":"info","msg":"..."}. Slow clients miss messages.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	data, err := json.Marshal(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// levelTags maps the debug logger's line tags to event levels.
var levelTags = []struct{ tag, level string }{
	{"[ERROR]", "error"},
	{"[INFO]", "info"},
	{"[LIVE]", "live"},
	{"[VERBOSE]", "verbose"},
	{"[TRACE]", "trace"},
	{"[GPIO]", "trace"},
}

// splitLevel strips the logger prefix and timestamp from a debug line and
// returns its level and message.
func splitLevel(line string) (level, msg string) {
	for _, lt := range levelTags {
		if i := strings.Index(line, lt.tag); i >= 0 {
			return lt.level, strings.TrimSpace(line[i+len(lt.tag):])
		}
	}
	return "info", line
}

// BroadcastWriter returns an io.Writer for debug.SetOutput; every
// non-empty line written is broadcast with the level of its tag.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w.b.Broadcast(splitLevel(line))
	}
	return len(p), nil
}
