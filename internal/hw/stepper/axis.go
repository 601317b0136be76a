package stepper

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
)

// HomingOvershoot is the homing travel in revolutions. It guarantees the
// index sensor is crossed from any starting position.
const HomingOvershoot = 1.25

var (
	// ErrNoSensor is returned by Calibrate on an axis without index sensor.
	ErrNoSensor = errors.New("axis has no index sensor")
	// ErrInvalidSpeed is returned for a non-positive rpm.
	ErrInvalidSpeed = errors.New("speed must be positive")
)

// Config describes one mount axis.
type Config struct {
	Name        string
	StepsPerRev int
	RPM         float64
	// Direction is the nominal rotation restored after homing.
	Direction Direction
	// HomingDirection is the sense of the overshoot motion.
	HomingDirection Direction
	// SensorPin is the optical index sensor input. 0 = none.
	SensorPin int
	// HomingEdge qualifies the sensor edge that marks position zero.
	HomingEdge gpio.Edge
	FIFODepth  int
}

// Axis is one stepper-driven axis of the mount. Position and phase are
// updated optimistically on Turn and reconciled on Stop.
type Axis struct {
	cfg  Config
	seq  Sequencer
	gpio gpio.Driver

	mu        sync.Mutex
	position  int
	phase     int
	direction Direction
	rpm       float64
	// memory holds the signed size of the latest pushed blocks, oldest first.
	memory []int

	calibrated  atomic.Bool
	calibrating atomic.Bool
}

// NewAxis loads the sequencer in the nominal direction and, when the axis
// has an index sensor, registers its edge handler on the driver.
func NewAxis(g gpio.Driver, seq Sequencer, cfg Config) (*Axis, error) {
	if cfg.StepsPerRev <= 0 {
		return nil, fmt.Errorf("axis %s: steps per revolution must be positive", cfg.Name)
	}
	if cfg.Direction == 0 {
		cfg.Direction = Clockwise
	}
	if cfg.HomingDirection == 0 {
		cfg.HomingDirection = cfg.Direction
	}
	if cfg.HomingEdge == gpio.EdgeNone {
		cfg.HomingEdge = gpio.EdgeFalling
	}
	if cfg.FIFODepth <= 0 {
		cfg.FIFODepth = DefaultFIFODepth
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 10
	}

	a := &Axis{
		cfg:       cfg,
		seq:       seq,
		gpio:      g,
		direction: cfg.Direction,
		rpm:       cfg.RPM,
	}

	phase, err := seq.Phase()
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", cfg.Name, err)
	}
	a.phase = phase
	if err := seq.Load(a.direction, a.phase); err != nil {
		return nil, fmt.Errorf("axis %s: load: %w", cfg.Name, gpio.Fault("load", -1, err))
	}
	seq.SetRate(a.stepRate())

	if cfg.SensorPin > 0 {
		if err := g.SetupPin(cfg.SensorPin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("axis %s: sensor: %w", cfg.Name, err)
		}
		// Both edges are armed; onSensorEdge filters for the qualifying one.
		if err := g.WatchEdge(cfg.SensorPin, gpio.EdgeBoth, a.onSensorEdge); err != nil {
			return nil, fmt.Errorf("axis %s: sensor: %w", cfg.Name, err)
		}
	}
	return a, nil
}

// Name returns the configured axis name.
func (a *Axis) Name() string { return a.cfg.Name }

// StepsPerRev returns the step count of one full turn.
func (a *Axis) StepsPerRev() int { return a.cfg.StepsPerRev }

func (a *Axis) stepRate() float64 {
	return a.rpm * float64(a.cfg.StepsPerRev) / 60
}

// Turn queues |steps| pulses. Positive steps move clockwise. A direction
// change is only allowed while the axis is idle.
func (a *Axis) Turn(steps int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turnLocked(steps)
}

func (a *Axis) turnLocked(steps int) error {
	if steps == 0 {
		return nil
	}
	want := Clockwise
	if steps < 0 {
		want = CounterClockwise
	}
	if want != a.direction {
		if err := a.setDirectionLocked(want); err != nil {
			return err
		}
	}

	n := steps
	if n < 0 {
		n = -n
	}
	if err := a.seq.Push(n); err != nil {
		return fmt.Errorf("axis %s: turn %d: %w", a.cfg.Name, steps, err)
	}
	a.seq.Enable()

	a.position = mod(a.position+steps, a.cfg.StepsPerRev)
	a.phase = mod(a.phase+steps, PhaseCount)
	a.memory = append(a.memory, steps)
	if len(a.memory) > a.cfg.FIFODepth {
		a.memory = a.memory[len(a.memory)-a.cfg.FIFODepth:]
	}
	debug.Move(a.cfg.Name, n, want.String())
	return nil
}

// StepsTo returns the signed shortest step delta from the current position
// to target radians.
func (a *Axis) StepsTo(target float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stepsToLocked(target)
}

func (a *Axis) stepsToLocked(target float64) int {
	spr := a.cfg.StepsPerRev
	goal := mod(int(math.Round(target*float64(spr)/(2*math.Pi))), spr)
	delta := goal - a.position
	if delta > spr/2 {
		delta -= spr
	} else if delta < -spr/2 {
		delta += spr
	}
	return delta
}

// TurnTo moves along the shortest path to target radians.
func (a *Axis) TurnTo(target float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turnLocked(a.stepsToLocked(target))
}

// Stop halts the sequencer and removes the steps it never executed from the
// position counter. The phase is re-read from the coils.
func (a *Axis) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked()
}

func (a *Axis) stopLocked() error {
	snap := a.seq.Disable()

	unexecuted := snap.Remaining * a.direction.Sign()
	queued := snap.Queued
	if queued > len(a.memory) {
		queued = len(a.memory)
	}
	for _, s := range a.memory[len(a.memory)-queued:] {
		unexecuted += s
	}
	a.position = mod(a.position-unexecuted, a.cfg.StepsPerRev)
	a.memory = a.memory[:0]

	// Load flushes the FIFO and must run even when the phase read fails.
	phase, phaseErr := a.seq.Phase()
	if phaseErr != nil {
		phase = mod(a.phase-unexecuted, PhaseCount)
	}
	a.phase = phase
	if unexecuted != 0 {
		debug.Verbose("axis %s: stop reversed %d unexecuted steps", a.cfg.Name, unexecuted)
	}
	var loadErr error
	if err := a.seq.Load(a.direction, a.phase); err != nil {
		loadErr = gpio.Fault("load", -1, err)
	}
	if err := errors.Join(phaseErr, loadErr); err != nil {
		return fmt.Errorf("axis %s: stop: %w", a.cfg.Name, err)
	}
	return nil
}

// SetSpeed changes the step rate. Safe while running.
func (a *Axis) SetSpeed(rpm float64) error {
	if rpm <= 0 || math.IsNaN(rpm) || math.IsInf(rpm, 0) {
		return ErrInvalidSpeed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rpm = rpm
	a.seq.SetRate(a.stepRate())
	return nil
}

// Speed returns the current rpm.
func (a *Axis) Speed() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rpm
}

// SetDirection reprograms the sequencer. The axis must be stopped first.
func (a *Axis) SetDirection(d Direction) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setDirectionLocked(d)
}

func (a *Axis) setDirectionLocked(d Direction) error {
	if d == a.direction {
		return nil
	}
	if a.seq.Busy() {
		return fmt.Errorf("axis %s: set direction: %w", a.cfg.Name, ErrRunning)
	}
	if err := a.seq.Load(d, a.phase); err != nil {
		return fmt.Errorf("axis %s: set direction: %w", a.cfg.Name, gpio.Fault("load", -1, err))
	}
	a.direction = d
	a.memory = a.memory[:0]
	return nil
}

// Direction returns the current rotation sense.
func (a *Axis) Direction() Direction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.direction
}

// Calibrate starts homing: a long overshoot toward the index sensor. The
// sensor edge handler completes it. Calling it while homing is a no-op.
func (a *Axis) Calibrate() error {
	if a.cfg.SensorPin <= 0 {
		return fmt.Errorf("axis %s: %w", a.cfg.Name, ErrNoSensor)
	}
	if !a.calibrating.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.calibrated.Store(false)
	if err := a.stopLocked(); err != nil {
		a.calibrating.Store(false)
		return err
	}
	if err := a.setDirectionLocked(a.cfg.HomingDirection); err != nil {
		a.calibrating.Store(false)
		return err
	}
	overshoot := int(math.Ceil(HomingOvershoot * float64(a.cfg.StepsPerRev)))
	if err := a.turnLocked(overshoot * a.cfg.HomingDirection.Sign()); err != nil {
		a.calibrating.Store(false)
		return err
	}
	debug.Info("Axis %s: homing (%s, %d steps)", a.cfg.Name, a.cfg.HomingDirection, overshoot)
	return nil
}

// onSensorEdge runs on the GPIO watcher goroutine.
func (a *Axis) onSensorEdge(pin int, edge gpio.Edge) {
	if edge&a.cfg.HomingEdge == 0 || !a.calibrating.Load() {
		debug.Trace("axis %s: sensor %s edge on pin %d ignored", a.cfg.Name, edge, pin)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.calibrating.Load() {
		return
	}
	if err := a.stopLocked(); err != nil {
		debug.Error(err)
	}
	a.position = 0
	if err := a.setDirectionLocked(a.cfg.Direction); err != nil {
		debug.Error(err)
	}
	a.calibrated.Store(true)
	a.calibrating.Store(false)
	debug.Info("Axis %s: calibrated at index sensor", a.cfg.Name)
}

// HomingStalled reports an axis still homing whose overshoot ended without
// a sensor edge.
func (a *Axis) HomingStalled() bool {
	return a.calibrating.Load() && !a.seq.Busy()
}

// AbortHoming stops a homing run without marking the axis calibrated.
func (a *Axis) AbortHoming() error {
	if !a.calibrating.Load() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.stopLocked()
	if derr := a.setDirectionLocked(a.cfg.Direction); err == nil {
		err = derr
	}
	a.calibrating.Store(false)
	return err
}

// PositionSteps returns the step position in [0, StepsPerRev).
func (a *Axis) PositionSteps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// PositionRadians returns the position as an angle in [0, 2π).
func (a *Axis) PositionRadians() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.position) * 2 * math.Pi / float64(a.cfg.StepsPerRev)
}

// Phase returns the tracked coil phase.
func (a *Axis) Phase() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// IsRunning reports pending or in-flight steps.
func (a *Axis) IsRunning() bool { return a.seq.Busy() }

func (a *Axis) IsCalibrated() bool  { return a.calibrated.Load() }
func (a *Axis) IsCalibrating() bool { return a.calibrating.Load() }

// Fault returns a hardware error raised by the sequencer while stepping.
func (a *Axis) Fault() error {
	if err := a.seq.Err(); err != nil {
		return fmt.Errorf("axis %s: %w", a.cfg.Name, gpio.Fault("step", -1, err))
	}
	return nil
}

// PowerOff stops the axis, de-energizes the coils and clears calibration.
func (a *Axis) PowerOff() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calibrated.Store(false)
	a.calibrating.Store(false)
	if err := a.stopLocked(); err != nil {
		return err
	}
	if err := a.seq.Release(); err != nil {
		return fmt.Errorf("axis %s: power off: %w", a.cfg.Name, err)
	}
	return nil
}

// Close powers off and stops the sequencer.
func (a *Axis) Close() error {
	if a.cfg.SensorPin > 0 {
		_ = a.gpio.UnwatchEdge(a.cfg.SensorPin)
	}
	if err := a.PowerOff(); err != nil {
		return err
	}
	return a.seq.Close()
}
