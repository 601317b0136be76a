package link

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

// ErrNoData is returned by Read when nothing arrived within the read timeout.
var ErrNoData = errors.New("no data")

// ErrConnectionClosed is returned when reading from a closed WebSocket connection.
var ErrConnectionClosed = errors.New("websocket connection closed")

// PasswordEnv names the environment variable holding the WebSocket password.
const PasswordEnv = "SKYGO_PASSWORD"

// WebSocketConnection carries frames over binary or text WebSocket messages.
// A reader goroutine pumps messages into a channel so Read can time out
// without corrupting the connection state.
type WebSocketConnection struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	incoming    chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	buf         []byte
	err         error
	writeMu     sync.Mutex
}

func newWebSocketConnection(conn *websocket.Conn, readTimeout time.Duration) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:        conn,
		readTimeout: readTimeout,
		incoming:    make(chan []byte, 16),
		done:        make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *WebSocketConnection) pump() {
	defer close(w.incoming)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
			continue
		}
		select {
		case w.incoming <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}
	if w.err != nil {
		return 0, w.err
	}

	var timeout <-chan time.Time
	if w.readTimeout > 0 {
		t := time.NewTimer(w.readTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case data, ok := <-w.incoming:
		if !ok {
			w.err = ErrConnectionClosed
			return 0, w.err
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-timeout:
		return 0, ErrNoData
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.conn.Close()
}

// OpenWebSocket dials a ws:// or wss:// endpoint with optional HTTP Basic auth.
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool, readTimeout time.Duration) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return newWebSocketConnection(conn, readTimeout), nil
}

// GetPassword reads the WebSocket password from PasswordEnv or prompts
// for it without echo.
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}
	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
