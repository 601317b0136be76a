package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// edgePollInterval is how often armed pins are checked for a latched edge.
const edgePollInterval = 200 * time.Microsecond

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	mu    sync.Mutex
	pins  map[int]rpio.Pin
	irq   irqTable
	stops map[int]chan struct{}
	wg    sync.WaitGroup
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, Fault("open", -1, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err))
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:  make(map[int]rpio.Pin),
		stops: make(map[int]chan struct{}),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if err := checkPin(pin); err != nil {
		return Fault("setup", pin, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupLocked(pin, mode)
}

func (r *RPiDriver) setupLocked(pin int, mode PinMode) error {
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) pin(pin int, mode PinMode) (rpio.Pin, error) {
	if err := checkPin(pin); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[pin]
	if !ok {
		if err := r.setupLocked(pin, mode); err != nil {
			return 0, err
		}
		p = r.pins[pin]
	}
	return p, nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, err := r.pin(pin, Output)
	if err != nil {
		return Fault("write", pin, err)
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, err := r.pin(pin, Input)
	if err != nil {
		return Low, Fault("read", pin, err)
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// WatchEdge arms the BCM edge-detect latch for pin and polls it from a
// dedicated goroutine. The level read after the latch fires tells which
// edge was seen.
func (r *RPiDriver) WatchEdge(pin int, edge Edge, handler EdgeHandler) error {
	debug.GPIO("WatchEdge", pin, edge)

	p, err := r.pin(pin, Input)
	if err != nil {
		return Fault("watch", pin, err)
	}
	if err := r.irq.register(pin, edge, handler); err != nil {
		return err
	}

	var detect rpio.Edge
	switch edge {
	case EdgeRising:
		detect = rpio.RiseEdge
	case EdgeFalling:
		detect = rpio.FallEdge
	default:
		detect = rpio.AnyEdge
	}
	p.Detect(detect)
	p.EdgeDetected() // clear any stale latch

	stop := make(chan struct{})
	r.mu.Lock()
	r.stops[pin] = stop
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pollEdges(pin, p, stop)
	return nil
}

func (r *RPiDriver) pollEdges(pin int, p rpio.Pin, stop <-chan struct{}) {
	defer r.wg.Done()
	ticker := time.NewTicker(edgePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !p.EdgeDetected() {
			continue
		}
		seen := EdgeFalling
		if p.Read() == rpio.High {
			seen = EdgeRising
		}
		r.irq.dispatch(pin, seen)
	}
}

func (r *RPiDriver) UnwatchEdge(pin int) error {
	debug.GPIO("UnwatchEdge", pin, nil)

	r.mu.Lock()
	stop, ok := r.stops[pin]
	delete(r.stops, pin)
	p, armed := r.pins[pin]
	r.mu.Unlock()

	if ok {
		close(stop)
	}
	if armed {
		p.Detect(rpio.NoEdge)
	}
	r.irq.unregister(pin)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	r.mu.Lock()
	for pin, stop := range r.stops {
		close(stop)
		delete(r.stops, pin)
	}
	r.mu.Unlock()
	r.wg.Wait()

	r.mu.Lock()
	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Detect(rpio.NoEdge)
		p.Input()
	}
	r.mu.Unlock()
	r.irq.clear()

	return rpio.Close()
}
