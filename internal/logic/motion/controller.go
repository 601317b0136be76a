package motion

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/cjeanneret/SkyGo/internal/logic/geometry"
)

var (
	ErrBelowHorizon  = errors.New("altitude below horizon")
	ErrNotCalibrated = errors.New("mount not calibrated")
	ErrHomingFailed  = errors.New("homing ended without index sensor edge")
)

// Axis is what the mount needs from one stepper axis.
type Axis interface {
	Name() string
	StepsPerRev() int
	StepsTo(rad float64) int
	TurnTo(rad float64) error
	SetSpeed(rpm float64) error
	Stop() error
	Calibrate() error
	PowerOff() error
	PositionRadians() float64
	IsRunning() bool
	IsCalibrated() bool
	IsCalibrating() bool
	HomingStalled() bool
	AbortHoming() error
	Fault() error
}

// Config holds the mount alignment and speed limits.
type Config struct {
	// HeadingCorrection is added to every azimuth (mechanical zero to true
	// north), radians.
	HeadingCorrection float64
	VerticalRPM       float64
	MinRPM            float64
	MaxRPM            float64
}

// Controller aims the two-axis mount. The horizontal axis only sweeps
// [0, π]; the other half of the sky is reached through the zenith.
type Controller struct {
	horizontal Axis
	vertical   Axis
	cfg        Config
}

func NewController(horizontal, vertical Axis, cfg Config) *Controller {
	if cfg.VerticalRPM <= 0 {
		cfg.VerticalRPM = 10
	}
	if cfg.MinRPM <= 0 {
		cfg.MinRPM = 1
	}
	if cfg.MaxRPM < cfg.MinRPM {
		cfg.MaxRPM = math.Max(cfg.MinRPM, 15)
	}
	return &Controller{
		horizontal: horizontal,
		vertical:   vertical,
		cfg:        cfg,
	}
}

// Mechanical maps a sky direction to axis angles. ok is false below the
// horizon.
func (c *Controller) Mechanical(az, alt float64) (h, v float64, ok bool) {
	if math.IsNaN(alt) || alt < 0 || alt > math.Pi {
		return 0, 0, false
	}
	h = geometry.Normalize(az + c.cfg.HeadingCorrection)
	v = alt
	if h > math.Pi {
		// Same unit sky vector, reached over the zenith.
		h -= math.Pi
		v = math.Pi - alt
	}
	return h, v, true
}

// Aim points the mount at azimuth/altitude (radians). Both axes are given
// speeds that make them arrive together.
func (c *Controller) Aim(az, alt float64) error {
	h, v, ok := c.Mechanical(az, alt)
	if !ok {
		return fmt.Errorf("aim alt=%.4f: %w", alt, ErrBelowHorizon)
	}
	if !c.IsCalibrated() {
		return ErrNotCalibrated
	}

	hRPM := c.horizontalRPM(h, v)
	if err := c.vertical.SetSpeed(c.cfg.VerticalRPM); err != nil {
		return fmt.Errorf("aim: %w", err)
	}
	if err := c.horizontal.SetSpeed(hRPM); err != nil {
		return fmt.Errorf("aim: %w", err)
	}

	debug.Verbose("aim az=%.2f° alt=%.2f° -> h=%.2f° v=%.2f° (h %.2f rpm, v %.2f rpm)",
		geometry.Degrees(az), geometry.Degrees(alt), geometry.Degrees(h), geometry.Degrees(v),
		hRPM, c.cfg.VerticalRPM)

	if err := c.horizontal.TurnTo(h); err != nil {
		return fmt.Errorf("aim %s: %w", c.horizontal.Name(), err)
	}
	if err := c.vertical.TurnTo(v); err != nil {
		return fmt.Errorf("aim %s: %w", c.vertical.Name(), err)
	}
	return nil
}

// horizontalRPM scales the vertical rate by the ratio of angular distances
// to go, clamped to the configured range.
func (c *Controller) horizontalRPM(h, v float64) float64 {
	hTurns := math.Abs(float64(c.horizontal.StepsTo(h))) / float64(c.horizontal.StepsPerRev())
	vTurns := math.Abs(float64(c.vertical.StepsTo(v))) / float64(c.vertical.StepsPerRev())

	rpm := c.cfg.VerticalRPM
	if vTurns > 0 && hTurns > 0 {
		rpm = c.cfg.VerticalRPM * hTurns / vTurns
	}
	return math.Max(c.cfg.MinRPM, math.Min(c.cfg.MaxRPM, rpm))
}

// Position returns the sky direction the mount points at.
func (c *Controller) Position() (az, alt float64) {
	h := c.horizontal.PositionRadians()
	v := c.vertical.PositionRadians()
	if v > math.Pi/2 && v <= math.Pi {
		h += math.Pi
		v = math.Pi - v
	}
	return geometry.Normalize(h - c.cfg.HeadingCorrection), v
}

func (c *Controller) IsRunning() bool {
	return c.horizontal.IsRunning() || c.vertical.IsRunning()
}

func (c *Controller) IsCalibrated() bool {
	return c.horizontal.IsCalibrated() && c.vertical.IsCalibrated()
}

func (c *Controller) IsCalibrating() bool {
	return c.horizontal.IsCalibrating() || c.vertical.IsCalibrating()
}

// Calibrate starts homing on both axes.
func (c *Controller) Calibrate() error {
	debug.Info("Mount: homing both axes")
	if err := c.horizontal.Calibrate(); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	if err := c.vertical.Calibrate(); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	return nil
}

// CheckHoming aborts homing when an axis ran its overshoot without
// finding the index.
func (c *Controller) CheckHoming() error {
	var stalled []string
	for _, a := range []Axis{c.horizontal, c.vertical} {
		if a.HomingStalled() {
			stalled = append(stalled, a.Name())
		}
	}
	if len(stalled) == 0 {
		return nil
	}
	for _, a := range []Axis{c.horizontal, c.vertical} {
		if err := a.AbortHoming(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%v: %w", stalled, ErrHomingFailed)
}

// Stop halts both axes.
func (c *Controller) Stop() error {
	return errors.Join(c.horizontal.Stop(), c.vertical.Stop())
}

// PowerOff releases both axes. The mount must be recalibrated before the
// next Aim.
func (c *Controller) PowerOff() error {
	debug.Live("Mount: power off")
	return errors.Join(c.horizontal.PowerOff(), c.vertical.PowerOff())
}

// Fault returns the first hardware fault raised by an axis.
func (c *Controller) Fault() error {
	if err := c.horizontal.Fault(); err != nil {
		return err
	}
	return c.vertical.Fault()
}
