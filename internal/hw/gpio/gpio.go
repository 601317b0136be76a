package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/SkyGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullUp
)

// Edge selects signal transitions for edge detection.
type Edge int

const (
	EdgeNone    Edge = 0
	EdgeRising  Edge = 1 << 0
	EdgeFalling Edge = 1 << 1
	EdgeBoth         = EdgeRising | EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// ParseEdge maps "rising", "falling" or "both" to an Edge.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both":
		return EdgeBoth, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge %q (want rising, falling or both)", s)
}

// EdgeHandler runs when a watched edge is seen. While it runs, further
// edges on the same pin are dropped.
type EdgeHandler func(pin int, edge Edge)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// WatchEdge arms edge detection on an input pin. Only one handler may
	// be registered per pin.
	WatchEdge(pin int, edge Edge, handler EdgeHandler) error
	UnwatchEdge(pin int) error
	Close() error
}

// ErrPinInUse is returned when a second handler is registered on a pin.
var ErrPinInUse = errors.New("pin in use")

// ErrUnknownPin is returned for pin numbers outside the board range.
var ErrUnknownPin = errors.New("unknown pin")

// FaultError reports a hardware failure. It is not recoverable by retrying
// the same operation and is kept distinct from ordinary errors.
type FaultError struct {
	Op  string
	Pin int
	Err error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("hardware fault: %s pin %d: %v", e.Op, e.Pin, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Fault wraps err as a hardware fault. A nil err stays nil.
func Fault(op string, pin int, err error) error {
	if err == nil {
		return nil
	}
	var f *FaultError
	if errors.As(err, &f) {
		return err
	}
	return &FaultError{Op: op, Pin: pin, Err: err}
}

// IsFault reports whether err is (or wraps) a hardware fault.
func IsFault(err error) bool {
	var f *FaultError
	return errors.As(err, &f)
}

// MockDriver is a test implementation that logs actions and remembers pin
// levels, so output pins read back what was written. Use SetInput to drive
// an input pin and fire its edge handler. The zero value is ready to use.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	irq    irqTable
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if err := checkPin(pin); err != nil {
		return Fault("setup", pin, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	if _, ok := m.levels[pin]; !ok {
		m.levels[pin] = mode == InputPullUp
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	if err := checkPin(pin); err != nil {
		return Fault("write", pin, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	if err := checkPin(pin); err != nil {
		return Low, Fault("read", pin, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) WatchEdge(pin int, edge Edge, handler EdgeHandler) error {
	debug.GPIO("WatchEdge", pin, edge)
	if err := checkPin(pin); err != nil {
		return Fault("watch", pin, err)
	}
	return m.irq.register(pin, edge, handler)
}

func (m *MockDriver) UnwatchEdge(pin int) error {
	debug.GPIO("UnwatchEdge", pin, nil)
	m.irq.unregister(pin)
	return nil
}

// SetInput changes the level seen on pin and dispatches the resulting edge,
// if any, synchronously on the caller's goroutine.
func (m *MockDriver) SetInput(pin int, level Level) {
	m.mu.Lock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	prev := m.levels[pin]
	m.levels[pin] = level
	m.mu.Unlock()

	if prev == level {
		return
	}
	edge := EdgeRising
	if level == Low {
		edge = EdgeFalling
	}
	m.irq.dispatch(pin, edge)
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.irq.clear()
	return nil
}

func checkPin(pin int) error {
	if pin < 0 || pin >= MaxPins {
		return fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	return nil
}
