package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cjeanneret/SkyGo/internal/link"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    frame.Message
		wantErr bool
	}{
		{"name only", "device-init", frame.NewMessage(frame.KindDeviceInit), false},
		{"name with fields", "instructions,1,m42-a,1", frame.NewMessage(frame.KindInstructions, "1", "m42-a", "1"), false},
		{"number", "1,1", frame.Ack(), false},
		{"wire frame", "$1,1,0F86;", frame.Ack(), false},
		{"bad wire frame", "$1,1,0000;", frame.Message{}, true},
		{"unknown kind", "bogus,1", frame.Message{}, true},
		{"kind out of range", "11,1", frame.Message{}, true},
		{"terminator in field", "response,1;", frame.Message{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseInput(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInput(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseInput(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm
}

func TestModel_SubmitQueuesFrame(t *testing.T) {
	out := make(chan frame.Message, 1)
	m := New("/dev/null", out)
	m.input.SetValue("response,1")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case got := <-out:
		if !got.Equal(frame.Ack()) {
			t.Errorf("queued %v, want ack", got)
		}
	default:
		t.Fatal("nothing queued")
	}
	if m.input.Value() != "" {
		t.Errorf("prompt not cleared: %q", m.input.Value())
	}
}

func TestModel_SubmitInvalidLogsError(t *testing.T) {
	out := make(chan frame.Message, 1)
	m := New("", out)
	m.input.SetValue("nope")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(out) != 0 {
		t.Error("invalid input was queued")
	}
	if len(m.log) != 1 || !m.log[0].isError {
		t.Fatalf("log = %+v, want one error entry", m.log)
	}
	if m.input.Value() != "nope" {
		t.Error("prompt should keep the rejected text")
	}
}

func TestModel_SubmitQueueFull(t *testing.T) {
	out := make(chan frame.Message)
	m := New("", out)
	m.input.SetValue("device-init")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.log) != 1 || !strings.Contains(m.log[0].text, "queue full") {
		t.Fatalf("log = %+v", m.log)
	}
}

func TestModel_FramesAndStats(t *testing.T) {
	m := New("serial /dev/ttyAMA0", make(chan frame.Message, 1))
	m = update(t, m, frameMsg{m: frame.NewMessage(frame.KindInstructions, "1", "m42-a", "1")})
	m = update(t, m, sentMsg{m: frame.Ack()})
	m = update(t, m, sentMsg{m: frame.Nack(), err: errors.New("write failed")})
	m = update(t, m, statsMsg(link.Statistics{FramesDecoded: 7, ChecksumMismatches: 2}))

	if len(m.log) != 3 {
		t.Fatalf("log has %d entries, want 3", len(m.log))
	}
	if m.log[1].text != "$1,1,0F86;" {
		t.Errorf("tx entry = %q", m.log[1].text)
	}
	if !m.log[2].isError {
		t.Error("failed send should be an error entry")
	}
	if m.stats.FramesDecoded != 7 {
		t.Errorf("stats not applied: %+v", m.stats)
	}

	view := m.View()
	for _, want := range []string{"LINK MONITOR", "serial /dev/ttyAMA0", "send>"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_LogIsBounded(t *testing.T) {
	m := New("", make(chan frame.Message, 1))
	for i := 0; i < maxLogEntries+20; i++ {
		m.add("rx", "x", false)
	}
	if len(m.log) != maxLogEntries {
		t.Errorf("log has %d entries, want %d", len(m.log), maxLogEntries)
	}
}

func TestModel_LinkLost(t *testing.T) {
	m := New("", make(chan frame.Message, 1))
	m = update(t, m, linkErrMsg{err: io.EOF})
	if m.lost == nil {
		t.Fatal("lost not recorded")
	}
	if !strings.Contains(m.View(), "link lost") {
		t.Error("view does not report the lost link")
	}
}

func TestModel_Quit(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		m := New("", make(chan frame.Message, 1))
		next, cmd := m.Update(tea.KeyMsg{Type: key})
		if cmd == nil {
			t.Fatalf("key %v: no command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %v: command is not quit", key)
		}
		if !next.(Model).quitting {
			t.Errorf("key %v: quitting not set", key)
		}
	}
}

func TestModel_WindowSize(t *testing.T) {
	m := New("", make(chan frame.Message, 1))
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.view.Width != 116 || m.view.Height != 28 {
		t.Errorf("viewport = %dx%d, want 116x28", m.view.Width, m.view.Height)
	}
	m = update(t, m, tea.WindowSizeMsg{Width: 40, Height: 10})
	if m.view.Height != 5 {
		t.Errorf("viewport height = %d, want floor of 5", m.view.Height)
	}
}

type fakeLink struct {
	polls   int
	failAt  int
	pending []frame.Message
	sent    []frame.Message
	stats   link.Statistics
}

func (f *fakeLink) Poll(ctx context.Context, window time.Duration) error {
	f.polls++
	if f.polls >= f.failAt {
		return io.EOF
	}
	return nil
}

func (f *fakeLink) Next() (frame.Message, bool) {
	if len(f.pending) == 0 {
		return frame.Message{}, false
	}
	m := f.pending[0]
	f.pending = f.pending[1:]
	return m, true
}

func (f *fakeLink) Send(m frame.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeLink) Stats() link.Statistics { return f.stats }

func TestPump(t *testing.T) {
	l := &fakeLink{
		failAt:  2,
		pending: []frame.Message{frame.Ack(), frame.Nack()},
		stats:   link.Statistics{FramesDecoded: 2},
	}
	out := make(chan frame.Message, 2)
	out <- frame.NewMessage(frame.KindDeviceInit)

	var got []tea.Msg
	pump(context.Background(), l, out, func(m tea.Msg) { got = append(got, m) })

	if len(l.sent) != 1 || l.sent[0].Kind != frame.KindDeviceInit {
		t.Errorf("sent = %v", l.sent)
	}
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5: %#v", len(got), got)
	}
	if _, ok := got[0].(sentMsg); !ok {
		t.Errorf("got[0] = %T, want sentMsg", got[0])
	}
	if fm, ok := got[1].(frameMsg); !ok || !fm.m.IsAck() {
		t.Errorf("got[1] = %#v, want ack frame", got[1])
	}
	if _, ok := got[3].(statsMsg); !ok {
		t.Errorf("got[3] = %T, want statsMsg", got[3])
	}
	if e, ok := got[4].(linkErrMsg); !ok || !errors.Is(e.err, io.EOF) {
		t.Errorf("got[4] = %#v, want link error", got[4])
	}
}

func TestPump_CancelIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := &fakeLink{failAt: 1}
	var got []tea.Msg
	pump(ctx, l, nil, func(m tea.Msg) { got = append(got, m) })
	if len(got) != 0 {
		t.Errorf("got %v after cancel, want nothing", got)
	}
}
