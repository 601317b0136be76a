package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// LinkConfig selects the transport to the link peer. URL wins over Port.
type LinkConfig struct {
	Port          string `yaml:"port"`            // e.g., "/dev/ttyAMA0"
	Baud          int    `yaml:"baud"`            // serial speed (default 115200)
	URL           string `yaml:"url"`             // websocket bridge, e.g. "wss://host/link"
	Username      string `yaml:"username"`        // HTTP Basic auth user for URL
	NoSSLVerify   bool   `yaml:"no_ssl_verify"`   // skip TLS verification for URL
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // single read block
	ReadWindowMs  int    `yaml:"read_window_ms"`  // COMM_READ window
}

// AxisConfig holds the configuration for one mount axis.
type AxisConfig struct {
	Driver          string  `yaml:"driver"`    // "coil" (ULN2003 half-step) or "stepdir" (A4988)
	CoilPins        []int   `yaml:"coil_pins"` // 4 BCM pins, coil order A B C D
	StepPin         int     `yaml:"step_pin"`
	DirPin          int     `yaml:"dir_pin"`
	EnablePin       int     `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev     int     `yaml:"steps_per_rev"`
	RPM             float64 `yaml:"rpm"`
	Direction       string  `yaml:"direction"`        // nominal: "cw" or "ccw"
	HomingDirection string  `yaml:"homing_direction"` // "cw" or "ccw"
	SensorPin       int     `yaml:"sensor_pin"`       // optical index sensor
	HomingEdge      string  `yaml:"homing_edge"`      // "falling", "rising" or "both"
	FIFODepth       int     `yaml:"fifo_depth"`
}

// MountConfig holds alignment and speed limits of the two-axis mount.
type MountConfig struct {
	HeadingCorrectionDeg float64 `yaml:"heading_correction_deg"` // mechanical zero to true north
	VerticalRPM          float64 `yaml:"vertical_rpm"`
	MinRPM               float64 `yaml:"min_rpm"`
	MaxRPM               float64 `yaml:"max_rpm"`
}

// CameraConfig describes how to communicate with the camera.
// Type selects a concrete implementation ("link" or "nikon_d90_gpio").
type CameraConfig struct {
	Type           string `yaml:"type"`             // e.g., "nikon_d90_gpio"
	FocusPin       int    `yaml:"focus_pin"`        // GPIO pin for FOCUS line
	ShutterPin     int    `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line
	FocusDelayMs   int    `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int    `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	// Note: GND is physically connected to Raspberry Pi ground
}

// SiteConfig is the observer position used when no GPS is fitted.
type SiteConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// ClockConfig controls real-time clock sync.
type ClockConfig struct {
	TrustSystem bool `yaml:"trust_system"` // system time is already disciplined (NTP/RTC)
}

// ScheduleConfig holds controller timing.
type ScheduleConfig struct {
	SlotIntervalS   int `yaml:"slot_interval_s"`   // fire time = now + index × interval
	CaptureTimeoutS int `yaml:"capture_timeout_s"` // wait for capture response
	MotorTimeoutS   int `yaml:"motor_timeout_s"`   // wait for mount arrival
	InitAttempts    int `yaml:"init_attempts"`
	InitRetryS      int `yaml:"init_retry_s"` // back-off before retrying startup
}

// TargetConfig is a catalog entry. RA and Dec in degrees (J2000).
type TargetConfig struct {
	ID     int     `yaml:"id"`
	Name   string  `yaml:"name"`
	RADeg  float64 `yaml:"ra_deg"`
	DecDeg float64 `yaml:"dec_deg"`
}

// StorageConfig locates the durable command log. Empty disables it.
type StorageConfig struct {
	CommandLog string `yaml:"command_log"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Link           LinkConfig     `yaml:"link"`
	HorizontalAxis AxisConfig     `yaml:"horizontal_axis"`
	VerticalAxis   AxisConfig     `yaml:"vertical_axis"`
	Mount          MountConfig    `yaml:"mount"`
	Camera         CameraConfig   `yaml:"camera"`
	Site           SiteConfig     `yaml:"site"`
	Clock          ClockConfig    `yaml:"clock"`
	Schedule       ScheduleConfig `yaml:"schedule"`
	Targets        []TargetConfig `yaml:"targets,omitempty"` // optional, replaces the built-in catalog
	Storage        StorageConfig  `yaml:"storage"`
	Defaults       DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only a .yaml file directly inside a configs/
// directory, with no parent traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not traverse parent directories", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Link.Baud <= 0 {
		c.Link.Baud = 115200
	}
	if c.Link.ReadTimeoutMs <= 0 {
		c.Link.ReadTimeoutMs = 50
	}
	if c.Link.ReadWindowMs <= 0 {
		c.Link.ReadWindowMs = 200
	}

	for _, a := range []*AxisConfig{&c.HorizontalAxis, &c.VerticalAxis} {
		if a.Driver == "" {
			a.Driver = "coil"
		}
		if a.StepsPerRev <= 0 {
			a.StepsPerRev = 4096 // 28BYJ-48 in half-step
		}
		if a.RPM <= 0 {
			a.RPM = 10
		}
		if a.Direction == "" {
			a.Direction = "cw"
		}
		if a.HomingDirection == "" {
			a.HomingDirection = a.Direction
		}
		if a.HomingEdge == "" {
			a.HomingEdge = "falling"
		}
		if a.FIFODepth <= 0 {
			a.FIFODepth = 8
		}
	}

	if c.Mount.VerticalRPM <= 0 {
		c.Mount.VerticalRPM = 10
	}
	if c.Mount.MinRPM <= 0 {
		c.Mount.MinRPM = 1
	}
	if c.Mount.MaxRPM <= 0 {
		c.Mount.MaxRPM = 15
	}

	if c.Camera.Type == "" {
		c.Camera.Type = "link"
	}
	// Default values for camera delays
	if c.Camera.FocusDelayMs <= 0 {
		c.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.Camera.ShutterDelayMs <= 0 {
		c.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}

	if c.Schedule.SlotIntervalS <= 0 {
		c.Schedule.SlotIntervalS = 600
	}
	if c.Schedule.CaptureTimeoutS <= 0 {
		c.Schedule.CaptureTimeoutS = 60
	}
	if c.Schedule.MotorTimeoutS <= 0 {
		c.Schedule.MotorTimeoutS = 120
	}
	if c.Schedule.InitAttempts <= 0 {
		c.Schedule.InitAttempts = 10
	}
	if c.Schedule.InitRetryS <= 0 {
		c.Schedule.InitRetryS = 30
	}
}

func (c *Config) validate() error {
	if c.Link.Port == "" && c.Link.URL == "" {
		return errors.New("link.port or link.url is required")
	}
	if err := c.HorizontalAxis.validate("horizontal_axis"); err != nil {
		return err
	}
	if err := c.VerticalAxis.validate("vertical_axis"); err != nil {
		return err
	}
	if c.Mount.MinRPM > c.Mount.MaxRPM {
		return fmt.Errorf("mount.min_rpm (%.2f) must be <= mount.max_rpm (%.2f)", c.Mount.MinRPM, c.Mount.MaxRPM)
	}
	switch c.Camera.Type {
	case "link":
	case "nikon_d90_gpio":
		if c.Camera.FocusPin <= 0 || c.Camera.ShutterPin <= 0 {
			return errors.New("camera.focus_pin and camera.shutter_pin are required for nikon_d90_gpio")
		}
	default:
		return fmt.Errorf("camera.type %q unknown (want link or nikon_d90_gpio)", c.Camera.Type)
	}
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		return fmt.Errorf("site.latitude must be between -90 and 90, got %.4f", c.Site.Latitude)
	}
	if c.Site.Longitude < -180 || c.Site.Longitude > 180 {
		return fmt.Errorf("site.longitude must be between -180 and 180, got %.4f", c.Site.Longitude)
	}
	seen := make(map[int]bool)
	for _, t := range c.Targets {
		if t.ID < 1 || t.ID > 99 {
			return fmt.Errorf("target %q: id %d must be between 1 and 99", t.Name, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("target id %d listed twice", t.ID)
		}
		seen[t.ID] = true
		if t.DecDeg < -90 || t.DecDeg > 90 {
			return fmt.Errorf("target %d: dec_deg must be between -90 and 90", t.ID)
		}
	}
	return c.checkPins()
}

func (a *AxisConfig) validate(name string) error {
	switch a.Driver {
	case "coil":
		if len(a.CoilPins) != 4 {
			return fmt.Errorf("%s.coil_pins must list 4 pins, got %d", name, len(a.CoilPins))
		}
	case "stepdir":
		if a.StepPin <= 0 || a.DirPin <= 0 {
			return fmt.Errorf("%s.step_pin and %s.dir_pin are required for stepdir", name, name)
		}
	default:
		return fmt.Errorf("%s.driver %q unknown (want coil or stepdir)", name, a.Driver)
	}
	for field, v := range map[string]string{"direction": a.Direction, "homing_direction": a.HomingDirection} {
		if v != "cw" && v != "ccw" {
			return fmt.Errorf("%s.%s must be cw or ccw, got %q", name, field, v)
		}
	}
	switch a.HomingEdge {
	case "falling", "rising", "both":
	default:
		return fmt.Errorf("%s.homing_edge must be falling, rising or both, got %q", name, a.HomingEdge)
	}
	if a.SensorPin <= 0 {
		return fmt.Errorf("%s.sensor_pin is required for homing", name)
	}
	return nil
}

func (a *AxisConfig) pins() []int {
	var p []int
	if a.Driver == "coil" {
		p = append(p, a.CoilPins...)
	} else {
		p = append(p, a.StepPin, a.DirPin)
		if a.EnablePin > 0 {
			p = append(p, a.EnablePin)
		}
	}
	return append(p, a.SensorPin)
}

// checkPins rejects a BCM pin assigned twice.
func (c *Config) checkPins() error {
	owner := make(map[int]string)
	claim := func(who string, pins ...int) error {
		for _, p := range pins {
			if p <= 0 {
				continue
			}
			if prev, ok := owner[p]; ok {
				return fmt.Errorf("pin %d used by both %s and %s", p, prev, who)
			}
			owner[p] = who
		}
		return nil
	}
	if err := claim("horizontal_axis", c.HorizontalAxis.pins()...); err != nil {
		return err
	}
	if err := claim("vertical_axis", c.VerticalAxis.pins()...); err != nil {
		return err
	}
	if c.Camera.Type == "nikon_d90_gpio" {
		return claim("camera", c.Camera.FocusPin, c.Camera.ShutterPin)
	}
	return nil
}

// ReadTimeout returns the single read block of the transport.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Link.ReadTimeoutMs) * time.Millisecond
}

// ReadWindow returns how long one COMM_READ pass listens.
func (c *Config) ReadWindow() time.Duration {
	return time.Duration(c.Link.ReadWindowMs) * time.Millisecond
}

// HeadingCorrection returns the azimuth offset in radians.
func (c *Config) HeadingCorrection() float64 {
	return c.Mount.HeadingCorrectionDeg * math.Pi / 180
}

// SlotInterval returns the spacing between position indexes.
func (c *Config) SlotInterval() time.Duration {
	return time.Duration(c.Schedule.SlotIntervalS) * time.Second
}

// CaptureTimeout returns how long to wait for a capture response.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Schedule.CaptureTimeoutS) * time.Second
}

// MotorTimeout returns how long to wait for the mount to arrive.
func (c *Config) MotorTimeout() time.Duration {
	return time.Duration(c.Schedule.MotorTimeoutS) * time.Second
}

// InitRetry returns the back-off between startup attempts.
func (c *Config) InitRetry() time.Duration {
	return time.Duration(c.Schedule.InitRetryS) * time.Second
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}
