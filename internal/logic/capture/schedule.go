// Package capture holds the scheduled captures waiting for their fire time.
package capture

import (
	"fmt"
	"sort"
	"time"
)

// Command is one scheduled capture. Azimuth and Altitude are radians,
// resolved for FireTime.
type Command struct {
	TargetID      int       `json:"target_id"`
	CaptureID     string    `json:"capture_id"`
	PositionIndex int       `json:"position_index"`
	Azimuth       float64   `json:"azimuth"`
	Altitude      float64   `json:"altitude"`
	FireTime      time.Time `json:"fire_time"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s (target %d, slot %d) at %s",
		c.CaptureID, c.TargetID, c.PositionIndex, c.FireTime.UTC().Format(time.RFC3339))
}

// Schedule keeps commands ordered by fire time. Commands sharing a fire
// time keep their insertion order. The zero value is an empty schedule.
type Schedule struct {
	cmds []Command
}

// Insert adds c at its place in fire-time order.
func (s *Schedule) Insert(c Command) {
	i := sort.Search(len(s.cmds), func(i int) bool {
		return s.cmds[i].FireTime.After(c.FireTime)
	})
	s.cmds = append(s.cmds, Command{})
	copy(s.cmds[i+1:], s.cmds[i:])
	s.cmds[i] = c
}

// Next returns the earliest command without removing it.
func (s *Schedule) Next() (Command, bool) {
	if len(s.cmds) == 0 {
		return Command{}, false
	}
	return s.cmds[0], true
}

// Pop removes and returns the earliest command.
func (s *Schedule) Pop() (Command, bool) {
	c, ok := s.Next()
	if ok {
		s.cmds = s.cmds[1:]
	}
	return c, ok
}

// Remove deletes the command with the given capture id.
func (s *Schedule) Remove(captureID string) bool {
	for i, c := range s.cmds {
		if c.CaptureID == captureID {
			s.cmds = append(s.cmds[:i], s.cmds[i+1:]...)
			return true
		}
	}
	return false
}

// Has reports whether a command with this capture id is scheduled.
func (s *Schedule) Has(captureID string) bool {
	for _, c := range s.cmds {
		if c.CaptureID == captureID {
			return true
		}
	}
	return false
}

func (s *Schedule) Len() int { return len(s.cmds) }

// Commands returns a copy of the schedule in fire-time order.
func (s *Schedule) Commands() []Command {
	out := make([]Command, len(s.cmds))
	copy(out, s.cmds)
	return out
}
