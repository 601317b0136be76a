package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
	"github.com/cjeanneret/SkyGo/internal/logic/capture"
	"github.com/cjeanneret/SkyGo/internal/logic/celestial"
)

// Adding a message kind breaks this line until handle covers it.
var _ = [1]struct{}{}[frame.NumKinds-10]

// MaxTargetID is the highest target id an instruction may name.
const MaxTargetID = 99

func (c *Controller) commProcess() (State, error) {
	next := StateSleep
	for len(c.inbound) > 0 {
		m := c.inbound[0]
		c.inbound[0] = frame.Message{}
		c.inbound = c.inbound[1:]
		s, err := c.handle(m)
		if err != nil {
			return StateCommProcess, err
		}
		if s != StateSleep {
			next = s
		}
	}
	c.skipSleepOnce = true
	return next, nil
}

// handle processes one inbound message. It returns the state the capture
// response asks for, or StateSleep.
func (c *Controller) handle(m frame.Message) (State, error) {
	switch m.Kind {
	case frame.KindResponse:
		return c.handleResponse(m), nil
	case frame.KindDateTime:
		c.handleDateTime(m)
	case frame.KindDeviceInit:
		debug.Live("device init from link peer")
		if err := c.link.Send(frame.Ack()); err != nil {
			return StateSleep, err
		}
	case frame.KindInstructions:
		c.instructions = append(c.instructions, m)
	case frame.KindDiagnostics:
		debug.Live("peer diagnostics: %s", strings.Join(m.Fields, " "))
	case frame.KindPictureRequest,
		frame.KindCommandStatus,
		frame.KindWiFi,
		frame.KindServer,
		frame.KindAPI:
		debug.Verbose("ignoring %s", m)
	default:
		debug.Verbose("ignoring message of unknown kind %d", m.Kind)
	}
	return StateSleep, nil
}

func (c *Controller) handleResponse(m frame.Message) State {
	if !c.awaitingCapture {
		debug.Verbose("response %s with no capture pending", m)
		return StateSleep
	}
	id := c.activeID()
	c.finishActive()
	if m.IsAck() {
		debug.Info("Capture %s done", id)
		return StateMotorOff
	}
	debug.Info("Capture %s refused by camera", id)
	return StateCommRead
}

// handleDateTime accepts unix seconds or RFC 3339.
func (c *Controller) handleDateTime(m frame.Message) {
	raw := m.Field(0)
	var t time.Time
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t = time.Unix(secs, 0).UTC()
	} else if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		t = parsed
	} else {
		debug.Verbose("bad datetime %q", raw)
		return
	}
	c.clock.Set(t)
}

func (c *Controller) instrProcess() (State, error) {
	m := c.instructions[0]
	c.instructions[0] = frame.Message{}
	c.instructions = c.instructions[1:]
	c.skipSleepOnce = true

	cmd, err := c.resolve(m)
	if err != nil {
		debug.Verbose("instruction %s discarded: %v", m, err)
		return StateSleep, nil
	}
	c.schedule.Insert(cmd)
	c.remember(cmd)
	c.rearm()
	debug.Info("Scheduled %s", cmd)
	return StateSleep, nil
}

// Instruction is a parsed Instructions message.
type Instruction struct {
	TargetID      int
	CaptureID     string
	PositionIndex int
}

// ParseInstruction validates the three instruction fields: target id,
// capture id and position index.
func ParseInstruction(m frame.Message) (Instruction, error) {
	if m.Kind != frame.KindInstructions {
		return Instruction{}, fmt.Errorf("kind %s is not instructions", m.Kind)
	}
	if len(m.Fields) != 3 {
		return Instruction{}, fmt.Errorf("want 3 fields, got %d", len(m.Fields))
	}
	target, err := strconv.Atoi(m.Fields[0])
	if err != nil || target < 1 || target > MaxTargetID {
		return Instruction{}, fmt.Errorf("target id %q not in [1, %d]", m.Fields[0], MaxTargetID)
	}
	id := m.Fields[1]
	if id == "" || strings.ContainsAny(id, ",;") {
		return Instruction{}, fmt.Errorf("bad capture id %q", id)
	}
	index, err := strconv.Atoi(m.Fields[2])
	if err != nil || index < 1 || index > celestial.MaxPositionIndex {
		return Instruction{}, fmt.Errorf("position index %q not in [1, %d]", m.Fields[2], celestial.MaxPositionIndex)
	}
	return Instruction{TargetID: target, CaptureID: id, PositionIndex: index}, nil
}

func (c *Controller) resolve(m frame.Message) (capture.Command, error) {
	in, err := ParseInstruction(m)
	if err != nil {
		return capture.Command{}, err
	}
	if c.schedule.Has(in.CaptureID) || (c.active != nil && c.active.CaptureID == in.CaptureID) {
		return capture.Command{}, fmt.Errorf("capture id %q already scheduled", in.CaptureID)
	}
	aim, fire, err := c.resolver.AimFor(in.TargetID, in.PositionIndex, c.position.CurrentFix(), c.clock.Now())
	if err != nil {
		return capture.Command{}, err
	}
	return capture.Command{
		TargetID:      in.TargetID,
		CaptureID:     in.CaptureID,
		PositionIndex: in.PositionIndex,
		Azimuth:       aim.Azimuth,
		Altitude:      aim.Altitude,
		FireTime:      fire,
	}, nil
}
