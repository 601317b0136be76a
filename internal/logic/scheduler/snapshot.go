package scheduler

import (
	"time"

	"github.com/cjeanneret/SkyGo/internal/logic/capture"
	"github.com/cjeanneret/SkyGo/internal/logic/geometry"
)

// Snapshot is the controller status published after every Step. Azimuth
// and Altitude are the mount position in degrees.
type Snapshot struct {
	State           string            `json:"state"`
	Calibrated      bool              `json:"calibrated"`
	Calibrating     bool              `json:"calibrating"`
	Running         bool              `json:"running"`
	AwaitingCapture bool              `json:"awaiting_capture"`
	Azimuth         float64           `json:"azimuth"`
	Altitude        float64           `json:"altitude"`
	Active          *capture.Command  `json:"active,omitempty"`
	Queue           []capture.Command `json:"queue"`
	ClockSynced     bool              `json:"clock_synced"`
	Time            time.Time         `json:"time"`
}

// Snapshot returns the latest published status. Safe for concurrent use.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.snap
	s.Queue = append([]capture.Command(nil), c.snap.Queue...)
	if s.Active != nil {
		a := *s.Active
		s.Active = &a
	}
	return s
}

func (c *Controller) publish() {
	az, alt := c.mount.Position()
	s := Snapshot{
		State:           c.state.String(),
		Calibrated:      c.mount.IsCalibrated(),
		Calibrating:     c.mount.IsCalibrating(),
		Running:         c.mount.IsRunning(),
		AwaitingCapture: c.awaitingCapture,
		Azimuth:         geometry.Degrees(az),
		Altitude:        geometry.Degrees(alt),
		Queue:           c.schedule.Commands(),
		ClockSynced:     c.clock.IsSynced(),
		Time:            c.clock.Now(),
	}
	if c.active != nil {
		a := *c.active
		s.Active = &a
	}
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}
