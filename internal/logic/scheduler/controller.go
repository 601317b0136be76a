// Package scheduler runs the mount's main loop: it services the link,
// schedules captures and drives the mount and the camera through them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/hw/camera"
	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
	"github.com/cjeanneret/SkyGo/internal/hw/gps"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
	"github.com/cjeanneret/SkyGo/internal/logic/capture"
	"github.com/cjeanneret/SkyGo/internal/logic/geometry"
	"github.com/cjeanneret/SkyGo/internal/storage/cmdlog"
)

var (
	ErrInitTimeout   = errors.New("init: no position fix and synced clock within attempt budget")
	ErrBadTransition = errors.New("transition not in table")
)

// Link is the framed connection to the link peer.
type Link interface {
	Poll(ctx context.Context, window time.Duration) error
	Next() (frame.Message, bool)
	Send(m frame.Message) error
	ReadyToSend() bool
}

// Clock is the real-time clock with its wake alarm.
type Clock interface {
	Now() time.Time
	Set(t time.Time)
	IsSynced() bool
	ArmAlarm(t time.Time)
	AlarmIsRinging() bool
	ClearAlarm()
}

// PositionSource reports where the mount stands.
type PositionSource interface {
	CurrentFix() gps.Fix
}

// Resolver turns a target and slot into an aim and a fire time.
type Resolver interface {
	AimFor(targetID, positionIndex int, fix gps.Fix, now time.Time) (geometry.Horizontal, time.Time, error)
}

// Mount is the two-axis mount.
type Mount interface {
	Aim(az, alt float64) error
	Position() (az, alt float64)
	IsRunning() bool
	IsCalibrated() bool
	IsCalibrating() bool
	Calibrate() error
	CheckHoming() error
	Stop() error
	PowerOff() error
	Fault() error
}

// CommandLog mirrors the schedule across restarts.
type CommandLog interface {
	Store(r cmdlog.Record) error
	Delete(captureID string) error
	All() []cmdlog.Record
}

// Deps are the collaborators a Controller drives. Log may be nil.
type Deps struct {
	Link     Link
	Clock    Clock
	Position PositionSource
	Resolver Resolver
	Mount    Mount
	Camera   camera.Camera
	Log      CommandLog
}

// Config holds the loop timings.
type Config struct {
	// ReadWindow bounds one COMM_READ poll.
	ReadWindow time.Duration
	// CaptureTimeout is how long to wait for the capture response before
	// treating it as received and powering the mount off.
	CaptureTimeout time.Duration
	// MotorTimeout bounds one aim. On expiry the axes are stopped and the
	// command is dropped.
	MotorTimeout time.Duration
	InitAttempts int
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeSource replaces the monotonic time used for timeouts, for tests.
// Wall time always comes from the Clock.
func WithTimeSource(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the scheduler state machine. Step and Run must be called
// from a single goroutine; Snapshot may be called from any.
type Controller struct {
	link     Link
	clock    Clock
	position PositionSource
	resolver Resolver
	mount    Mount
	camera   camera.Camera
	log      CommandLog
	cfg      Config
	now      func() time.Time

	state State
	prev  State

	inbound      []frame.Message
	instructions []frame.Message
	schedule     capture.Schedule
	active       *capture.Command

	awaitingCapture   bool
	skipSleepOnce     bool
	motorCheckPending bool
	captureSent       time.Time
	motorStarted      time.Time
	replayed          bool

	mu        sync.RWMutex
	snap      Snapshot
	submitted []frame.Message
}

// New builds a controller in COMM_READ.
func New(d Deps, cfg Config, opts ...Option) (*Controller, error) {
	switch {
	case d.Link == nil:
		return nil, errors.New("scheduler: link is required")
	case d.Clock == nil:
		return nil, errors.New("scheduler: clock is required")
	case d.Position == nil:
		return nil, errors.New("scheduler: position source is required")
	case d.Resolver == nil:
		return nil, errors.New("scheduler: resolver is required")
	case d.Mount == nil:
		return nil, errors.New("scheduler: mount is required")
	case d.Camera == nil:
		return nil, errors.New("scheduler: camera is required")
	}
	if cfg.ReadWindow <= 0 {
		cfg.ReadWindow = 200 * time.Millisecond
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 60 * time.Second
	}
	if cfg.MotorTimeout <= 0 {
		cfg.MotorTimeout = 120 * time.Second
	}
	if cfg.InitAttempts <= 0 {
		cfg.InitAttempts = 10
	}
	c := &Controller{
		link:     d.Link,
		clock:    d.Clock,
		position: d.Position,
		resolver: d.Resolver,
		mount:    d.Mount,
		camera:   d.Camera,
		log:      d.Log,
		cfg:      cfg,
		now:      time.Now,
		state:    StateCommRead,
		prev:     StateCommRead,
	}
	for _, o := range opts {
		o(c)
	}
	c.publish()
	return c, nil
}

// Submit queues m as if it had arrived on the link. Safe for concurrent
// use; the message is picked up by the next COMM_READ.
func (c *Controller) Submit(m frame.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, m)
}

// State returns the state the next Step will run.
func (c *Controller) State() State { return c.state }

// Step runs the current state, and its successor when the two share a
// tick, and returns the state the next Step will run. A returned error is
// a hardware or link fault.
func (c *Controller) Step(ctx context.Context) (State, error) {
	for {
		from := c.state
		next, err := c.run(ctx, from)
		if err != nil {
			c.publish()
			return from, fmt.Errorf("%s: %w", from, err)
		}
		if !allowed(from, next) {
			return from, fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, next)
		}
		debug.State(from, next)
		c.prev, c.state = from, next
		if !sameTick[from] {
			break
		}
	}
	if err := c.mount.Fault(); err != nil {
		c.publish()
		return c.state, fmt.Errorf("mount: %w", err)
	}
	c.publish()
	return c.state, nil
}

// Run steps the controller until ctx is done or a fault occurs.
func (c *Controller) Run(ctx context.Context) error {
	debug.Info("Scheduler running (%d command(s) queued)", c.schedule.Len())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (c *Controller) run(ctx context.Context, s State) (State, error) {
	switch s {
	case StateSleep:
		return c.sleep(), nil
	case StateCommRead:
		return c.commRead(ctx)
	case StateCheckQueues:
		return c.checkQueues()
	case StateCommProcess:
		return c.commProcess()
	case StateInstrProcess:
		return c.instrProcess()
	case StateMotorCalibrate:
		return c.motorCalibrate()
	case StateMotorControl:
		return c.motorControl()
	case StateMotorWait:
		return c.motorWait()
	case StateCameraExecute:
		return c.cameraExecute()
	case StateMotorOff:
		return c.motorOff()
	}
	return s, fmt.Errorf("unknown state %d", int(s))
}

func (c *Controller) sleep() State {
	if c.skipSleepOnce {
		c.skipSleepOnce = false
		return StateCommRead
	}
	if c.clock.AlarmIsRinging() {
		c.clock.ClearAlarm()
		debug.Info("Alarm ringing: homing mount")
		return StateMotorCalibrate
	}
	return StateCommRead
}

func (c *Controller) commRead(ctx context.Context) (State, error) {
	if c.link.ReadyToSend() {
		if err := c.link.Send(c.heartbeat()); err != nil {
			return StateCommRead, err
		}
	}
	if err := c.link.Poll(ctx, c.cfg.ReadWindow); err != nil {
		return StateCommRead, err
	}
	c.mu.Lock()
	c.inbound = append(c.inbound, c.submitted...)
	c.submitted = nil
	c.mu.Unlock()
	for {
		m, ok := c.link.Next()
		if !ok {
			break
		}
		c.inbound = append(c.inbound, m)
	}
	return StateCheckQueues, nil
}

// heartbeat reports the state that led into COMM_READ, whether the mount
// is calibrated and how many captures are queued.
func (c *Controller) heartbeat() frame.Message {
	calibrated := "0"
	if c.mount.IsCalibrated() {
		calibrated = "1"
	}
	return frame.NewMessage(frame.KindDiagnostics,
		c.prev.String(), calibrated, fmt.Sprint(c.schedule.Len()))
}

func (c *Controller) checkQueues() (State, error) {
	if c.mount.IsCalibrating() {
		if err := c.mount.CheckHoming(); err != nil {
			if err := c.homingFailed(err); err != nil {
				return StateCheckQueues, err
			}
		}
	}
	if c.awaitingCapture && c.now().Sub(c.captureSent) >= c.cfg.CaptureTimeout {
		debug.Info("Capture %s: no response after %v, powering off", c.activeID(), c.cfg.CaptureTimeout)
		c.finishActive()
		return StateMotorOff, nil
	}

	switch {
	case len(c.inbound) > 0:
		return StateCommProcess, nil
	case len(c.instructions) > 0:
		return StateInstrProcess, nil
	case c.motorCheckPending:
		return StateMotorWait, nil
	case c.awaitingCapture || c.mount.IsCalibrating():
		return StateCommRead, nil
	case c.mount.IsCalibrated():
		return StateMotorControl, nil
	}
	return StateSleep, nil
}

// homingFailed powers the mount off and drops the capture the homing was
// for. Only hardware faults are returned.
func (c *Controller) homingFailed(cause error) error {
	debug.Error(cause)
	if err := c.mount.PowerOff(); err != nil {
		return err
	}
	if next, ok := c.schedule.Next(); ok && !next.FireTime.After(c.clock.Now()) {
		c.schedule.Pop()
		c.forget(next.CaptureID)
		debug.Info("Capture %s dropped: homing failed", next.CaptureID)
		c.rearm()
	}
	return nil
}

func (c *Controller) motorCalibrate() (State, error) {
	if err := c.mount.Calibrate(); err != nil {
		return StateMotorCalibrate, err
	}
	return StateCommRead, nil
}

// motorControl aims at the earliest command once it is due. A calibrated
// mount with nothing due is powered off; the alarm homes it again.
func (c *Controller) motorControl() (State, error) {
	head, ok := c.schedule.Next()
	if !ok || head.FireTime.After(c.clock.Now()) {
		debug.Verbose("mount calibrated with nothing due, powering off")
		return StateMotorOff, nil
	}
	next, _ := c.schedule.Pop()
	c.forget(next.CaptureID)
	c.rearm()

	if err := c.mount.Aim(next.Azimuth, next.Altitude); err != nil {
		if fault := c.mount.Fault(); fault != nil {
			return StateMotorControl, fault
		}
		debug.Info("Capture %s dropped: %v", next.CaptureID, err)
		return StateCommRead, nil
	}
	debug.Live("Aiming for %s", next)
	c.active = &next
	c.motorCheckPending = true
	c.motorStarted = c.now()
	return StateMotorWait, nil
}

func (c *Controller) motorWait() (State, error) {
	if c.mount.IsRunning() {
		if c.now().Sub(c.motorStarted) < c.cfg.MotorTimeout {
			return StateCommRead, nil
		}
		debug.Info("Capture %s dropped: mount still moving after %v", c.activeID(), c.cfg.MotorTimeout)
		c.motorCheckPending = false
		c.active = nil
		if err := errors.Join(c.mount.Stop(), c.mount.PowerOff()); err != nil {
			return StateMotorWait, err
		}
		return StateCommRead, nil
	}
	c.motorCheckPending = false
	return StateCameraExecute, nil
}

func (c *Controller) cameraExecute() (State, error) {
	if c.active == nil {
		return StateCommRead, nil
	}
	id := c.active.CaptureID
	debug.Shot(id)
	resp, err := c.camera.Capture(camera.NewRequest(id))
	if err != nil && gpio.IsFault(err) {
		return StateCameraExecute, fmt.Errorf("capture %s: %w", id, err)
	}
	if err != nil {
		// Same outcome as a nack: the capture is abandoned, the mount stays homed.
		debug.Info("Capture %s dropped: %v", id, err)
		c.finishActive()
		return StateCommRead, nil
	}
	c.awaitingCapture = true
	c.captureSent = c.now()
	if resp != nil {
		c.inbound = append(c.inbound, *resp)
	}
	return StateCommRead, nil
}

func (c *Controller) motorOff() (State, error) {
	c.awaitingCapture = false
	if err := c.mount.PowerOff(); err != nil {
		return StateMotorOff, err
	}
	return StateSleep, nil
}

// finishActive ends the capture in flight.
func (c *Controller) finishActive() {
	c.awaitingCapture = false
	c.active = nil
}

func (c *Controller) activeID() string {
	if c.active == nil {
		return "-"
	}
	return c.active.CaptureID
}

// rearm points the alarm at the earliest scheduled command.
func (c *Controller) rearm() {
	next, ok := c.schedule.Next()
	if !ok {
		c.clock.ClearAlarm()
		return
	}
	c.clock.ArmAlarm(next.FireTime)
}
