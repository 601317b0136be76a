package scheduler

import (
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/logic/capture"
	"github.com/cjeanneret/SkyGo/internal/storage/cmdlog"
)

func toRecord(c capture.Command) cmdlog.Record {
	return cmdlog.Record{
		CaptureID:     c.CaptureID,
		TargetID:      c.TargetID,
		PositionIndex: c.PositionIndex,
		Azimuth:       c.Azimuth,
		Altitude:      c.Altitude,
		FireUnixMilli: c.FireTime.UnixMilli(),
	}
}

func fromRecord(r cmdlog.Record) capture.Command {
	return capture.Command{
		TargetID:      r.TargetID,
		CaptureID:     r.CaptureID,
		PositionIndex: r.PositionIndex,
		Azimuth:       r.Azimuth,
		Altitude:      r.Altitude,
		FireTime:      r.FireTime(),
	}
}

// A command log write failure is logged, the in-memory schedule stays
// authoritative.
func (c *Controller) remember(cmd capture.Command) {
	if c.log == nil {
		return
	}
	if err := c.log.Store(toRecord(cmd)); err != nil {
		debug.Error(err)
	}
}

func (c *Controller) forget(captureID string) {
	if c.log == nil {
		return
	}
	if err := c.log.Delete(captureID); err != nil {
		debug.Error(err)
	}
}

// replay loads the command log into the schedule once. Commands whose
// fire time passed while the mount was down are deleted.
func (c *Controller) replay(now time.Time) {
	if c.replayed || c.log == nil {
		c.replayed = true
		return
	}
	c.replayed = true
	for _, r := range c.log.All() {
		cmd := fromRecord(r)
		if cmd.FireTime.Before(now) {
			debug.Info("Capture %s missed while down, dropped", cmd.CaptureID)
			c.forget(cmd.CaptureID)
			continue
		}
		if c.schedule.Has(cmd.CaptureID) {
			continue
		}
		c.schedule.Insert(cmd)
	}
	c.rearm()
	if n := c.schedule.Len(); n > 0 {
		debug.Info("Restored %d scheduled capture(s) from command log", n)
	}
}
