package link

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Conn is a Transport that can be closed.
type Conn interface {
	Transport
	io.Closer
}

// Endpoint selects and configures the link transport. URL wins over Port.
type Endpoint struct {
	Port        string
	Baud        int
	URL         string
	Username    string
	NoSSLVerify bool
	ReadTimeout time.Duration
}

// Open opens either a WebSocket or a serial connection and returns a
// human-readable description of it.
func Open(e Endpoint) (Conn, string, error) {
	if e.URL != "" {
		password := ""
		if e.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		conn, err := OpenWebSocket(e.URL, e.Username, password, e.NoSSLVerify, e.ReadTimeout)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", e.URL), nil
	}

	if e.Port != "" {
		conn, err := OpenSerial(e.Port, e.Baud, e.ReadTimeout)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", e.Port, e.Baud), nil
	}

	return nil, "", errors.New("either a serial port or a websocket url must be configured")
}
