// Package tui is a terminal monitor for the link: decoded frames, drop
// counters and a prompt to send frames to the peer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cjeanneret/SkyGo/internal/link"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
)

const (
	pollWindow    = 200 * time.Millisecond
	maxLogEntries = 500
)

// Link is what the monitor needs from the bridge.
type Link interface {
	Poll(ctx context.Context, window time.Duration) error
	Next() (frame.Message, bool)
	Send(m frame.Message) error
	Stats() link.Statistics
}

type logEntry struct {
	at      time.Time
	dir     string
	text    string
	isError bool
}

type frameMsg struct{ m frame.Message }
type sentMsg struct {
	m   frame.Message
	err error
}
type statsMsg link.Statistics
type linkErrMsg struct{ err error }

// Model is the bubbletea model of the monitor.
type Model struct {
	label    string
	out      chan<- frame.Message
	stats    link.Statistics
	log      []logEntry
	view     viewport.Model
	input    textinput.Model
	width    int
	lost     error
	quitting bool
}

// New builds a monitor model. Frames typed at the prompt are written to out.
func New(label string, out chan<- frame.Message) Model {
	in := textinput.New()
	in.Placeholder = "kind,field,... (e.g. device-init or instructions,1,m42-a,1)"
	in.Prompt = "send> "
	in.CharLimit = 256
	in.Focus()
	return Model{
		label: label,
		out:   out,
		view:  viewport.New(80, 16),
		input: in,
		width: 80,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.view.Width = msg.Width - 4
		m.view.Height = max(msg.Height-12, 5)
		m.refresh()

	case frameMsg:
		m.add("rx", fmt.Sprintf("%-16s %s", msg.m.Kind, strings.Join(msg.m.Fields, " ")), false)

	case sentMsg:
		if msg.err != nil {
			m.add("tx", fmt.Sprintf("%s: %v", msg.m, msg.err), true)
		} else {
			m.add("tx", frame.Encode(msg.m), false)
		}

	case statsMsg:
		m.stats = link.Statistics(msg)

	case linkErrMsg:
		m.lost = msg.err
		m.add("--", "link lost: "+msg.err.Error(), true)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit parses the prompt and queues the frame for sending.
func (m *Model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return
	}
	msg, err := ParseInput(text)
	if err != nil {
		m.add("tx", err.Error(), true)
		return
	}
	select {
	case m.out <- msg:
		m.input.SetValue("")
	default:
		m.add("tx", "send queue full", true)
	}
}

func (m *Model) add(dir, text string, isError bool) {
	m.log = append(m.log, logEntry{at: time.Now(), dir: dir, text: text, isError: isError})
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
	m.refresh()
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m *Model) refresh() {
	var b strings.Builder
	for _, e := range m.log {
		text := e.text
		if e.isError {
			text = errorStyle.Render(text)
		}
		fmt.Fprintf(&b, "%s %s %s\n", headerStyle.Render(e.at.Format("15:04:05.000")), e.dir, text)
	}
	m.view.SetContent(b.String())
	m.view.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return "Closing link...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SKYGO - LINK MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(m.label + " | Enter sends, PgUp/PgDn scroll, Esc quits"))
	s.WriteString("\n\n")

	st := m.stats
	stats := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n%s %s   %s %s   %s %s",
		labelStyle.Render("Rx bytes:"), valueStyle.Render(fmt.Sprint(st.BytesReceived)),
		labelStyle.Render("Decoded:"), valueStyle.Render(fmt.Sprint(st.FramesDecoded)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprint(st.FramesSent)),
		labelStyle.Render("Discarded:"), valueStyle.Render(fmt.Sprint(st.BytesDiscarded)),
		labelStyle.Render("CRC:"), countStyle(st.ChecksumMismatches+st.ChecksumFormat),
		labelStyle.Render("Malformed:"), countStyle(st.MalformedFrames+st.TooFewFields),
		labelStyle.Render("Unknown kind:"), countStyle(st.UnknownTypes),
	)
	s.WriteString(boxStyle.Render(stats))
	s.WriteString("\n")
	if m.lost != nil {
		s.WriteString(errorStyle.Render("link lost: " + m.lost.Error()))
		s.WriteString("\n")
	}
	s.WriteString(boxStyle.Width(max(m.width-2, 20)).Render(m.view.View()))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	return s.String()
}

func countStyle(n uint64) string {
	if n > 0 {
		return errorStyle.Render(fmt.Sprint(n))
	}
	return valueStyle.Render("0")
}

// ParseInput reads "kind,field,..." where kind is a name or a number.
// A complete wire frame starting with '$' is decoded instead.
func ParseInput(text string) (frame.Message, error) {
	if strings.HasPrefix(text, "$") {
		return frame.Decode(text)
	}
	parts := strings.Split(text, ",")
	kind, err := frame.ParseKind(parts[0])
	if err != nil {
		return frame.Message{}, err
	}
	fields := parts[1:]
	for _, f := range fields {
		if strings.ContainsRune(f, ';') {
			return frame.Message{}, fmt.Errorf("field %q contains ';'", f)
		}
	}
	return frame.NewMessage(kind, fields...), nil
}

// pump polls the link, forwards decoded frames and counters to send, and
// writes queued frames between polls. It returns when ctx ends or the link
// fails.
func pump(ctx context.Context, l Link, out <-chan frame.Message, send func(tea.Msg)) {
	for {
		for queued := true; queued; {
			select {
			case m := <-out:
				send(sentMsg{m: m, err: l.Send(m)})
			default:
				queued = false
			}
		}
		if err := l.Poll(ctx, pollWindow); err != nil {
			if ctx.Err() == nil {
				send(linkErrMsg{err: err})
			}
			return
		}
		for {
			m, ok := l.Next()
			if !ok {
				break
			}
			send(frameMsg{m: m})
		}
		send(statsMsg(l.Stats()))
	}
}

// Run shows the monitor until the user quits or ctx ends.
func Run(ctx context.Context, l Link, label string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan frame.Message, 8)
	p := tea.NewProgram(New(label, out), tea.WithAltScreen(), tea.WithContext(ctx))
	go pump(ctx, l, out, p.Send)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
