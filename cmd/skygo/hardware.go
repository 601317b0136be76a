package main

import (
	"fmt"

	"github.com/cjeanneret/SkyGo/internal/config"
	"github.com/cjeanneret/SkyGo/internal/hw/camera"
	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
	"github.com/cjeanneret/SkyGo/internal/hw/stepper"
	"github.com/cjeanneret/SkyGo/internal/logic/celestial"
	"github.com/cjeanneret/SkyGo/internal/logic/motion"
	"github.com/cjeanneret/SkyGo/internal/web"
)

// newAxis builds the sequencer selected by a.Driver and the axis on top of it.
func newAxis(g gpio.Driver, name string, a config.AxisConfig) (*stepper.Axis, error) {
	dir, ok := stepper.ParseDirection(a.Direction)
	if !ok {
		return nil, fmt.Errorf("%s: bad direction %q", name, a.Direction)
	}
	homing, ok := stepper.ParseDirection(a.HomingDirection)
	if !ok {
		return nil, fmt.Errorf("%s: bad homing direction %q", name, a.HomingDirection)
	}
	edge, err := gpio.ParseEdge(a.HomingEdge)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	var seq stepper.Sequencer
	switch a.Driver {
	case "coil":
		if len(a.CoilPins) != 4 {
			return nil, fmt.Errorf("%s: coil driver needs 4 pins, got %d", name, len(a.CoilPins))
		}
		var pins [4]int
		copy(pins[:], a.CoilPins)
		coil, err := stepper.NewCoilSequencer(g, pins, a.FIFODepth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		seq = coil
	case "stepdir":
		sd, err := stepper.NewStepDirSequencer(g, stepper.StepDirConfig{
			StepPin:   a.StepPin,
			DirPin:    a.DirPin,
			EnablePin: a.EnablePin,
		}, a.FIFODepth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		seq = sd
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q", name, a.Driver)
	}

	return stepper.NewAxis(g, seq, stepper.Config{
		Name:            name,
		StepsPerRev:     a.StepsPerRev,
		RPM:             a.RPM,
		Direction:       dir,
		HomingDirection: homing,
		SensorPin:       a.SensorPin,
		HomingEdge:      edge,
		FIFODepth:       a.FIFODepth,
	})
}

// newMount builds both axes and the mount controller on top of them.
func newMount(g gpio.Driver, cfg *config.Config) (*motion.Controller, []*stepper.Axis, error) {
	h, err := newAxis(g, "horizontal", cfg.HorizontalAxis)
	if err != nil {
		return nil, nil, err
	}
	v, err := newAxis(g, "vertical", cfg.VerticalAxis)
	if err != nil {
		_ = h.Close()
		return nil, nil, err
	}
	mount := motion.NewController(h, v, motion.Config{
		HeadingCorrection: cfg.HeadingCorrection(),
		VerticalRPM:       cfg.Mount.VerticalRPM,
		MinRPM:            cfg.Mount.MinRPM,
		MaxRPM:            cfg.Mount.MaxRPM,
	})
	return mount, []*stepper.Axis{h, v}, nil
}

// newCameraFromConfig selects a camera implementation based on configuration.
// The link camera sends picture requests through s.
func newCameraFromConfig(g gpio.Driver, s camera.Sender, cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case "link":
		return camera.NewLink(s), nil
	case "nikon_d90_gpio":
		cam, err := camera.NewNikonD90GPIO(
			g,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
		)
		if err != nil {
			return nil, err
		}
		return cam, nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// catalogTargets returns the configured targets, or the built-in catalog
// when the config lists none.
func catalogTargets(cfg *config.Config) []celestial.Target {
	if len(cfg.Targets) == 0 {
		return celestial.DefaultTargets
	}
	out := make([]celestial.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		out = append(out, celestial.Target{ID: t.ID, Name: t.Name, RA: t.RADeg, Dec: t.DecDeg})
	}
	return out
}

// webSettings summarizes the configuration for GET /config.
func webSettings(cfg *config.Config, catalog *celestial.Catalog) web.Settings {
	s := web.Settings{
		Latitude:             cfg.Site.Latitude,
		Longitude:            cfg.Site.Longitude,
		HeadingCorrectionDeg: cfg.Mount.HeadingCorrectionDeg,
		VerticalRPM:          cfg.Mount.VerticalRPM,
		MinRPM:               cfg.Mount.MinRPM,
		MaxRPM:               cfg.Mount.MaxRPM,
		SlotInterval:         cfg.SlotInterval().String(),
		Camera:               cfg.Camera.Type,
	}
	for _, t := range catalog.Targets() {
		s.Targets = append(s.Targets, web.TargetInfo{ID: t.ID, Name: t.Name, RADeg: t.RA, DecDeg: t.Dec})
	}
	return s
}
