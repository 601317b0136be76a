package scheduler

import (
	"context"
	"fmt"

	"github.com/cjeanneret/SkyGo/internal/debug"
)

// Init services the link until the mount has a position fix and a synced
// clock, for at most the configured number of attempts. Instructions that
// arrive meanwhile stay queued. On success the command log is replayed.
func (c *Controller) Init(ctx context.Context) error {
	debug.Section("Scheduler init")
	for attempt := 1; attempt <= c.cfg.InitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.link.Poll(ctx, c.cfg.ReadWindow); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		for {
			m, ok := c.link.Next()
			if !ok {
				break
			}
			if _, err := c.handle(m); err != nil {
				return fmt.Errorf("init: %w", err)
			}
		}

		fix := c.position.CurrentFix()
		synced := c.clock.IsSynced()
		debug.Step(attempt, fmt.Sprintf("fix %s, clock synced %t", fix, synced))
		if fix.Valid && synced {
			c.replay(c.clock.Now())
			c.publish()
			debug.Info("Init done after %d attempt(s): %s", attempt, fix)
			return nil
		}
	}
	return fmt.Errorf("%w (%d attempts)", ErrInitTimeout, c.cfg.InitAttempts)
}
