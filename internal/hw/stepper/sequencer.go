package stepper

import (
	"errors"
	"sync"
	"time"
)

// Direction is the rotation sense of an axis. Clockwise increases the
// step position.
type Direction int

const (
	Clockwise        Direction = 1
	CounterClockwise Direction = -1
)

func (d Direction) String() string {
	if d == CounterClockwise {
		return "counterclockwise"
	}
	return "clockwise"
}

// Sign returns +1 or -1.
func (d Direction) Sign() int {
	if d == CounterClockwise {
		return -1
	}
	return 1
}

// ParseDirection accepts "cw"/"clockwise" and "ccw"/"counterclockwise".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "cw", "clockwise":
		return Clockwise, true
	case "ccw", "counterclockwise":
		return CounterClockwise, true
	}
	return 0, false
}

// PhaseCount is the length of the half-step coil sequence.
const PhaseCount = 8

// DefaultFIFODepth matches the block queue of the hardware sequencer.
const DefaultFIFODepth = 8

var (
	// ErrFIFOFull is returned by Push when the block queue has no room.
	ErrFIFOFull = errors.New("sequencer fifo full")
	// ErrRunning is returned when an operation requires a halted sequencer.
	ErrRunning = errors.New("sequencer running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sequencer closed")
)

// Snapshot describes the work a halted sequencer never executed.
type Snapshot struct {
	Queued    int // blocks still in the fifo, not yet pulled
	Remaining int // steps left in the block being executed
}

// Sequencer is the hardware step engine behind an Axis. It executes blocks
// of step pulses from a fifo, in one direction, at a fixed rate.
type Sequencer interface {
	// Load programs direction and starting coil phase. It clears the fifo
	// and leaves the sequencer halted at its first instruction.
	Load(dir Direction, phase int) error
	// SetRate is safe while running.
	SetRate(stepsPerSecond float64)
	// Push queues a block of steps (> 0).
	Push(steps int) error
	Enable()
	// Disable halts execution and reports unexecuted work.
	Disable() Snapshot
	// Phase reads the coil phase back from the hardware.
	Phase() (int, error)
	Busy() bool
	// Release de-energizes the motor.
	Release() error
	// Err reports a fault raised while stepping, if any.
	Err() error
	Close() error
}

// engine runs the fifo of step blocks on its own goroutine. Concrete
// sequencers supply the per-step output through step, which is called with
// mu held so Disable observes an exact count.
type engine struct {
	mu       sync.Mutex
	dir      Direction
	phase    int
	enabled  bool
	fifo     []int
	depth    int
	current  int
	interval time.Duration
	executed int64
	err      error
	closed   bool

	step func(dir Direction, phase int) error

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newEngine(depth int, step func(Direction, int) error) *engine {
	if depth <= 0 {
		depth = DefaultFIFODepth
	}
	e := &engine{
		dir:      Clockwise,
		depth:    depth,
		interval: time.Millisecond,
		step:     step,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *engine) run() {
	defer close(e.done)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.mu.Lock()
		if e.ready() {
			e.tick()
			d := e.interval
			e.mu.Unlock()
			timer.Reset(d)
			select {
			case <-e.quit:
				return
			case <-timer.C:
			}
			continue
		}
		e.mu.Unlock()

		select {
		case <-e.quit:
			return
		case <-e.wake:
		}
	}
}

// ready reports whether a step can be issued, pulling the next block from
// the fifo into current when needed.
func (e *engine) ready() bool {
	if !e.enabled || e.err != nil {
		return false
	}
	if e.current == 0 && len(e.fifo) > 0 {
		e.current = e.fifo[0]
		e.fifo = e.fifo[1:]
	}
	return e.current > 0
}

func (e *engine) tick() {
	next := mod(e.phase+e.dir.Sign(), PhaseCount)
	if err := e.step(e.dir, next); err != nil {
		e.err = err
		e.enabled = false
		return
	}
	e.phase = next
	e.current--
	e.executed += int64(e.dir.Sign())
}

func (e *engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *engine) load(dir Direction, phase int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.enabled && (e.current > 0 || len(e.fifo) > 0) {
		return ErrRunning
	}
	e.enabled = false
	e.dir = dir
	e.phase = mod(phase, PhaseCount)
	e.fifo = e.fifo[:0]
	e.current = 0
	e.err = nil
	return nil
}

func (e *engine) setRate(stepsPerSecond float64) {
	if stepsPerSecond <= 0 {
		return
	}
	e.mu.Lock()
	e.interval = time.Duration(float64(time.Second) / stepsPerSecond)
	if e.interval <= 0 {
		e.interval = time.Microsecond
	}
	e.mu.Unlock()
	e.signal()
}

func (e *engine) push(steps int) error {
	if steps <= 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if len(e.fifo) >= e.depth {
		return ErrFIFOFull
	}
	e.fifo = append(e.fifo, steps)
	e.signal()
	return nil
}

func (e *engine) enable() {
	e.mu.Lock()
	e.enabled = !e.closed
	e.mu.Unlock()
	e.signal()
}

func (e *engine) disable() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	return Snapshot{Queued: len(e.fifo), Remaining: e.current}
}

func (e *engine) busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled && e.err == nil && (e.current > 0 || len(e.fifo) > 0)
}

func (e *engine) trackedPhase() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *engine) fault() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Executed returns the signed number of steps issued since creation.
func (e *engine) Executed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executed
}

func (e *engine) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.enabled = false
	e.mu.Unlock()
	close(e.quit)
	<-e.done
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
