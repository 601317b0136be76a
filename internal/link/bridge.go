package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
)

// IdleInterval is how long after the last send the link counts as idle.
const IdleInterval = 20 * time.Second

const readChunkSize = 128

// Transport is the byte stream under the bridge. Read may return 0 bytes
// when nothing arrived within its own short timeout.
type Transport interface {
	io.Reader
	io.Writer
}

// Bridge reassembles frames from a byte stream and queues decoded messages.
// It is not safe for concurrent use; the controller loop owns it.
type Bridge struct {
	transport Transport
	partial   []byte
	inbound   []frame.Message
	chunk     []byte
	stats     Statistics
	lastSend  time.Time
	sent      bool
	now       func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// NewBridge creates a bridge over t.
func NewBridge(t Transport, opts ...Option) *Bridge {
	b := &Bridge{
		transport: t,
		chunk:     make([]byte, readChunkSize),
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	b.stats.StartTime = b.now()
	return b
}

// Feed runs one batch of bytes through the reassembly state machine and
// returns how many messages were decoded and queued.
func (b *Bridge) Feed(chunk []byte) int {
	decoded := 0
	b.stats.BytesReceived += uint64(len(chunk))

	for len(chunk) > 0 {
		if len(b.partial) == 0 {
			start := bytes.IndexByte(chunk, frame.StartByte)
			if start < 0 {
				b.stats.BytesDiscarded += uint64(len(chunk))
				return decoded
			}
			b.stats.BytesDiscarded += uint64(start)
			chunk = chunk[start:]
		}

		end := bytes.IndexByte(chunk, frame.EndByte)
		if end < 0 {
			b.partial = append(b.partial, chunk...)
			return decoded
		}

		b.partial = append(b.partial, chunk[:end+1]...)
		chunk = chunk[end+1:]
		raw := string(b.partial)
		b.partial = b.partial[:0]

		msg, err := frame.Decode(raw)
		if err != nil {
			b.stats.recordDrop(err)
			debug.Verbose("link: dropped frame %q: %v", raw, err)
			continue
		}
		debug.Frame("rx", raw)
		b.inbound = append(b.inbound, msg)
		b.stats.FramesDecoded++
		decoded++
	}
	return decoded
}

// Poll reads from the transport for up to window, feeding every chunk.
// It returns early once messages are queued and the line has gone quiet,
// or when ctx is done.
func (b *Bridge) Poll(ctx context.Context, window time.Duration) error {
	deadline := b.now().Add(window)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := b.transport.Read(b.chunk)
		if n > 0 {
			b.Feed(b.chunk[:n])
		}
		if err != nil && !isTimeout(err) {
			return fmt.Errorf("link read: %w", err)
		}
		if n == 0 && len(b.inbound) > 0 {
			return nil
		}
		if !b.now().Before(deadline) {
			return nil
		}
	}
}

// Send encodes m and writes it to the transport.
func (b *Bridge) Send(m frame.Message) error {
	text := frame.Encode(m)
	if _, err := io.WriteString(b.transport, text); err != nil {
		return fmt.Errorf("link write %s: %w", m.Kind, err)
	}
	debug.Frame("tx", text)
	b.lastSend = b.now()
	b.sent = true
	b.stats.FramesSent++
	return nil
}

// ReadyToSend reports whether the link has been idle for IdleInterval.
// It is a heuristic, not a delivery guarantee.
func (b *Bridge) ReadyToSend() bool {
	return !b.sent || b.now().Sub(b.lastSend) >= IdleInterval
}

// Next pops the oldest queued message.
func (b *Bridge) Next() (frame.Message, bool) {
	if len(b.inbound) == 0 {
		return frame.Message{}, false
	}
	m := b.inbound[0]
	b.inbound[0] = frame.Message{}
	b.inbound = b.inbound[1:]
	return m, true
}

// Pending returns the number of queued messages.
func (b *Bridge) Pending() int {
	return len(b.inbound)
}

// Buffered returns the length of the partial frame held between reads.
func (b *Bridge) Buffered() int {
	return len(b.partial)
}

// Stats returns a copy of the link counters.
func (b *Bridge) Stats() Statistics {
	return b.stats
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, ErrNoData) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
