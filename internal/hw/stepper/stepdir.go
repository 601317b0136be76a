package stepper

import (
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
)

// StepDirConfig holds the pins of an A4988-class step/dir driver.
type StepDirConfig struct {
	StepPin    int
	DirPin     int
	EnablePin  int           // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	PulseWidth time.Duration // STEP high time. Defaults to 2µs.
}

// StepDirSequencer runs the fifo through a step/dir driver. The driver
// keeps its own microstep index, so Phase reports the counted phase.
type StepDirSequencer struct {
	*engine
	gpio gpio.Driver
	cfg  StepDirConfig
}

// NewStepDirSequencer configures the driver pins and starts the step loop.
func NewStepDirSequencer(g gpio.Driver, cfg StepDirConfig, fifoDepth int) (*StepDirSequencer, error) {
	if cfg.PulseWidth <= 0 {
		cfg.PulseWidth = 2 * time.Microsecond
	}
	for _, p := range []int{cfg.StepPin, cfg.DirPin} {
		if err := g.SetupPin(p, gpio.Output); err != nil {
			return nil, gpio.Fault("setup", p, err)
		}
	}
	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, gpio.Fault("setup", cfg.EnablePin, err)
		}
		if err := g.WritePin(cfg.EnablePin, gpio.Low); err != nil {
			return nil, gpio.Fault("write", cfg.EnablePin, err)
		}
	}
	s := &StepDirSequencer{gpio: g, cfg: cfg}
	s.engine = newEngine(fifoDepth, s.pulse)
	return s, nil
}

func (s *StepDirSequencer) pulse(_ Direction, _ int) error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return gpio.Fault("write", s.cfg.StepPin, err)
	}
	time.Sleep(s.cfg.PulseWidth)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return gpio.Fault("write", s.cfg.StepPin, err)
	}
	return nil
}

// Load sets the DIR line (HIGH = clockwise) and re-enables the driver.
func (s *StepDirSequencer) Load(dir Direction, phase int) error {
	if err := s.engine.load(dir, phase); err != nil {
		return err
	}
	level := gpio.High
	if dir == CounterClockwise {
		level = gpio.Low
	}
	debug.Trace("step/dir %d: load %s", s.cfg.StepPin, dir)
	if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
		return gpio.Fault("write", s.cfg.DirPin, err)
	}
	return s.energize(true)
}

func (s *StepDirSequencer) SetRate(stepsPerSecond float64) { s.engine.setRate(stepsPerSecond) }
func (s *StepDirSequencer) Push(steps int) error           { return s.engine.push(steps) }
func (s *StepDirSequencer) Enable()                        { s.engine.enable() }
func (s *StepDirSequencer) Disable() Snapshot              { return s.engine.disable() }
func (s *StepDirSequencer) Busy() bool                     { return s.engine.busy() }
func (s *StepDirSequencer) Err() error                     { return s.engine.fault() }
func (s *StepDirSequencer) Phase() (int, error)            { return s.engine.trackedPhase(), nil }

// Release turns off the driver (ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *StepDirSequencer) Release() error {
	s.engine.disable()
	return s.energize(false)
}

func (s *StepDirSequencer) energize(on bool) error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	level := gpio.High
	if on {
		level = gpio.Low
	}
	if err := s.gpio.WritePin(s.cfg.EnablePin, level); err != nil {
		return gpio.Fault("write", s.cfg.EnablePin, err)
	}
	return nil
}

func (s *StepDirSequencer) Close() error {
	s.engine.close()
	return s.Release()
}
