package stepper

import (
	"fmt"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
)

// halfStep is the coil pattern for each of the 8 phases (A, B, C, D).
var halfStep = [PhaseCount][4]gpio.Level{
	{gpio.High, gpio.Low, gpio.Low, gpio.Low},
	{gpio.High, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.High},
	{gpio.Low, gpio.Low, gpio.Low, gpio.High},
	{gpio.High, gpio.Low, gpio.Low, gpio.High},
}

// phaseOf maps a coil pattern back to its phase. ok is false for a pattern
// outside the table; released reports all coils off.
func phaseOf(levels [4]gpio.Level) (phase int, released, ok bool) {
	if levels == [4]gpio.Level{} {
		return 0, true, false
	}
	for i, p := range halfStep {
		if p == levels {
			return i, false, true
		}
	}
	return 0, false, false
}

// CoilSequencer drives a unipolar stepper (28BYJ-48 on a ULN2003 board)
// through four coil pins in half-step mode.
type CoilSequencer struct {
	*engine
	gpio gpio.Driver
	pins [4]int
}

// NewCoilSequencer configures pins as outputs and starts the step loop.
func NewCoilSequencer(g gpio.Driver, pins [4]int, fifoDepth int) (*CoilSequencer, error) {
	for _, p := range pins {
		if err := g.SetupPin(p, gpio.Output); err != nil {
			return nil, gpio.Fault("setup", p, err)
		}
	}
	c := &CoilSequencer{gpio: g, pins: pins}
	c.engine = newEngine(fifoDepth, c.energize)
	return c, nil
}

func (c *CoilSequencer) energize(_ Direction, phase int) error {
	for i, p := range c.pins {
		if err := c.gpio.WritePin(p, halfStep[phase][i]); err != nil {
			return gpio.Fault("write", p, err)
		}
	}
	return nil
}

func (c *CoilSequencer) Load(dir Direction, phase int) error {
	if err := c.engine.load(dir, phase); err != nil {
		return err
	}
	debug.Trace("coil %v: load %s phase %d", c.pins, dir, mod(phase, PhaseCount))
	return nil
}

func (c *CoilSequencer) SetRate(stepsPerSecond float64) { c.engine.setRate(stepsPerSecond) }
func (c *CoilSequencer) Push(steps int) error           { return c.engine.push(steps) }
func (c *CoilSequencer) Enable()                        { c.engine.enable() }
func (c *CoilSequencer) Disable() Snapshot              { return c.engine.disable() }
func (c *CoilSequencer) Busy() bool                     { return c.engine.busy() }
func (c *CoilSequencer) Err() error                     { return c.engine.fault() }

// Phase reads the four coil pins. With all coils released it falls back to
// the last phase issued.
func (c *CoilSequencer) Phase() (int, error) {
	var levels [4]gpio.Level
	for i, p := range c.pins {
		l, err := c.gpio.ReadPin(p)
		if err != nil {
			return 0, gpio.Fault("read", p, err)
		}
		levels[i] = l
	}
	phase, released, ok := phaseOf(levels)
	if released {
		return c.engine.trackedPhase(), nil
	}
	if !ok {
		return 0, gpio.Fault("read", c.pins[0], fmt.Errorf("coil pattern %v matches no phase", levels))
	}
	return phase, nil
}

func (c *CoilSequencer) Release() error {
	c.engine.disable()
	for _, p := range c.pins {
		if err := c.gpio.WritePin(p, gpio.Low); err != nil {
			return gpio.Fault("write", p, err)
		}
	}
	return nil
}

func (c *CoilSequencer) Close() error {
	c.engine.close()
	return c.Release()
}
