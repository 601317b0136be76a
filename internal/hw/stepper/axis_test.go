package stepper

import (
	"errors"
	"math"
	"testing"

	"github.com/cjeanneret/SkyGo/internal/hw/gpio"
)

// fakeSequencer executes steps only when the test calls run.
type fakeSequencer struct {
	dir      Direction
	phase    int
	enabled  bool
	fifo     []int
	current  int
	rate     float64
	loads    int
	released bool
	err      error
	phaseErr error
}

func (f *fakeSequencer) Load(dir Direction, phase int) error {
	f.dir = dir
	f.phase = mod(phase, PhaseCount)
	f.fifo = nil
	f.current = 0
	f.enabled = false
	f.loads++
	return nil
}

func (f *fakeSequencer) SetRate(r float64) { f.rate = r }

func (f *fakeSequencer) Push(steps int) error {
	if len(f.fifo) >= DefaultFIFODepth {
		return ErrFIFOFull
	}
	f.fifo = append(f.fifo, steps)
	return nil
}

func (f *fakeSequencer) Enable() { f.enabled = true }

func (f *fakeSequencer) Disable() Snapshot {
	f.enabled = false
	return Snapshot{Queued: len(f.fifo), Remaining: f.current}
}

func (f *fakeSequencer) Phase() (int, error) { return f.phase, f.phaseErr }

func (f *fakeSequencer) Busy() bool {
	return f.enabled && (f.current > 0 || len(f.fifo) > 0)
}

func (f *fakeSequencer) Release() error {
	f.released = true
	return nil
}

func (f *fakeSequencer) Err() error   { return f.err }
func (f *fakeSequencer) Close() error { return nil }

// run executes up to n steps the way the hardware would.
func (f *fakeSequencer) run(n int) {
	for i := 0; i < n && f.enabled; i++ {
		if f.current == 0 {
			if len(f.fifo) == 0 {
				return
			}
			f.current, f.fifo = f.fifo[0], f.fifo[1:]
		}
		f.current--
		f.phase = mod(f.phase+f.dir.Sign(), PhaseCount)
	}
}

func newTestAxis(t *testing.T, cfg Config) (*Axis, *fakeSequencer, *gpio.MockDriver) {
	t.Helper()
	if cfg.StepsPerRev == 0 {
		cfg.StepsPerRev = 4096
	}
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	drv := &gpio.MockDriver{}
	seq := &fakeSequencer{}
	a, err := NewAxis(drv, seq, cfg)
	if err != nil {
		t.Fatalf("NewAxis: %v", err)
	}
	return a, seq, drv
}

func TestAxis_PositionClosureAfterCompletion(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{})

	if err := a.Turn(100); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	seq.run(1000)
	if a.IsRunning() {
		t.Fatal("axis still running after all steps executed")
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.PositionSteps(); got != 100 {
		t.Errorf("position = %d, want 100", got)
	}
	if got := a.Phase(); got != 100%PhaseCount {
		t.Errorf("phase = %d, want %d", got, 100%PhaseCount)
	}
}

func TestAxis_StopRightAfterTurnLeavesPositionUnchanged(t *testing.T) {
	a, _, _ := newTestAxis(t, Config{})
	if err := a.Turn(250); err != nil {
		t.Fatal(err)
	}
	if got := a.PositionSteps(); got != 250 {
		t.Fatalf("optimistic position = %d, want 250", got)
	}
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := a.PositionSteps(); got != 0 {
		t.Errorf("position after immediate stop = %d, want 0", got)
	}
	if got := a.Phase(); got != 0 {
		t.Errorf("phase after immediate stop = %d, want 0", got)
	}
}

func TestAxis_StopFlushesFIFOWhenPhaseUnreadable(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{})
	if err := a.Turn(100); err != nil {
		t.Fatal(err)
	}
	if err := a.Turn(50); err != nil {
		t.Fatal(err)
	}
	seq.run(30)

	readErr := errors.New("coil readback failed")
	seq.phaseErr = readErr
	if err := a.Stop(); !errors.Is(err, readErr) {
		t.Fatalf("Stop error = %v, want %v", err, readErr)
	}
	if len(seq.fifo) != 0 || seq.current != 0 {
		t.Errorf("fifo = %v current = %d after stop, want empty", seq.fifo, seq.current)
	}
	if got := a.PositionSteps(); got != 30 {
		t.Errorf("position = %d, want 30", got)
	}
	if got := a.Phase(); got != 30%PhaseCount {
		t.Errorf("phase = %d, want %d", got, 30%PhaseCount)
	}

	seq.phaseErr = nil
	if err := a.Turn(10); err != nil {
		t.Fatal(err)
	}
	seq.run(1000)
	if err := a.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := a.PositionSteps(); got != 40 {
		t.Errorf("position after next turn = %d, want 40", got)
	}
}

func TestAxis_StopReconcilesPartialMotion(t *testing.T) {
	tests := []struct {
		name     string
		turns    []int
		executed int
		want     int
	}{
		{"inside first block", []int{100, 50}, 30, 30},
		{"inside second block", []int{100, 50}, 120, 120},
		{"three blocks", []int{10, 10, 10}, 25, 25},
		{"all done", []int{40, 60}, 100, 100},
		{"backward", []int{-40}, 15, 4096 - 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, seq, _ := newTestAxis(t, Config{})
			for _, s := range tt.turns {
				if err := a.Turn(s); err != nil {
					t.Fatalf("Turn(%d): %v", s, err)
				}
			}
			seq.run(tt.executed)
			if err := a.Stop(); err != nil {
				t.Fatal(err)
			}
			if got := a.PositionSteps(); got != tt.want {
				t.Errorf("position = %d, want %d", got, tt.want)
			}
			if got, want := a.Phase(), seq.phase; got != want {
				t.Errorf("phase = %d, want %d (coils)", got, want)
			}
			if seq.Busy() {
				t.Error("sequencer should be halted after Stop")
			}
		})
	}
}

func TestAxis_DirectionChangeWhileRunning(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{})
	if err := a.Turn(10); err != nil {
		t.Fatal(err)
	}
	err := a.Turn(-5)
	if !errors.Is(err, ErrRunning) {
		t.Fatalf("Turn(-5) while running: err = %v, want ErrRunning", err)
	}

	seq.run(10)
	if err := a.Turn(-5); err != nil {
		t.Fatalf("Turn(-5) when idle: %v", err)
	}
	if a.Direction() != CounterClockwise {
		t.Errorf("direction = %v, want counterclockwise", a.Direction())
	}
	if got := a.PositionSteps(); got != 5 {
		t.Errorf("position = %d, want 5", got)
	}
}

func TestAxis_TurnToShortestPath(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{StepsPerRev: 4096})

	if got := a.StepsTo(3 * math.Pi / 2); got != -1024 {
		t.Errorf("StepsTo(3π/2) = %d, want -1024", got)
	}
	if err := a.TurnTo(3 * math.Pi / 2); err != nil {
		t.Fatal(err)
	}
	seq.run(5000)
	if got := a.PositionSteps(); got != 3072 {
		t.Errorf("position = %d, want 3072", got)
	}
	if got := a.StepsTo(0); got != 1024 {
		t.Errorf("StepsTo(0) from 3072 = %d, want 1024", got)
	}
}

func TestAxis_PositionRadians(t *testing.T) {
	a, _, _ := newTestAxis(t, Config{StepsPerRev: 4096})
	if err := a.Turn(1024); err != nil {
		t.Fatal(err)
	}
	if got := a.PositionRadians(); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Errorf("PositionRadians = %v, want π/2", got)
	}
}

func TestAxis_SetSpeed(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{StepsPerRev: 4096})
	if err := a.SetSpeed(15); err != nil {
		t.Fatal(err)
	}
	if want := 15.0 * 4096 / 60; seq.rate != want {
		t.Errorf("rate = %v, want %v", seq.rate, want)
	}
	for _, rpm := range []float64{0, -3, math.NaN()} {
		if err := a.SetSpeed(rpm); !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("SetSpeed(%v) err = %v, want ErrInvalidSpeed", rpm, err)
		}
	}
}

func TestAxis_HomingOnFallingEdge(t *testing.T) {
	a, seq, drv := newTestAxis(t, Config{
		SensorPin:       22,
		Direction:       Clockwise,
		HomingDirection: CounterClockwise,
	})
	if err := a.Turn(300); err != nil {
		t.Fatal(err)
	}
	seq.run(300)

	if err := a.Calibrate(); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if !a.IsCalibrating() || a.IsCalibrated() {
		t.Fatal("axis should be calibrating")
	}
	if a.Direction() != CounterClockwise {
		t.Errorf("homing direction = %v", a.Direction())
	}
	if want := int(math.Ceil(HomingOvershoot * 4096)); len(seq.fifo) != 1 || seq.fifo[0] != want {
		t.Fatalf("overshoot fifo = %v, want [%d]", seq.fifo, want)
	}

	loads := seq.loads
	if err := a.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if seq.loads != loads || len(seq.fifo) != 1 {
		t.Error("second Calibrate while homing should be a no-op")
	}

	seq.run(700)
	drv.SetInput(22, gpio.Low) // falling edge

	if !a.IsCalibrated() || a.IsCalibrating() {
		t.Fatalf("calibrated=%v calibrating=%v after edge", a.IsCalibrated(), a.IsCalibrating())
	}
	if a.IsRunning() {
		t.Error("axis should stop at the index")
	}
	if got := a.PositionSteps(); got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
	if a.Direction() != Clockwise {
		t.Errorf("direction = %v, want nominal clockwise", a.Direction())
	}
}

func TestAxis_HomingIgnoresNonQualifyingEdge(t *testing.T) {
	a, _, drv := newTestAxis(t, Config{SensorPin: 23, HomingEdge: gpio.EdgeRising})
	if err := a.Calibrate(); err != nil {
		t.Fatal(err)
	}
	drv.SetInput(23, gpio.Low)
	if !a.IsCalibrating() {
		t.Fatal("falling edge should not complete rising-edge homing")
	}
	drv.SetInput(23, gpio.High)
	if !a.IsCalibrated() {
		t.Error("rising edge should complete homing")
	}
}

func TestAxis_EdgeOutsideHomingIgnored(t *testing.T) {
	a, seq, drv := newTestAxis(t, Config{SensorPin: 24})
	if err := a.Turn(50); err != nil {
		t.Fatal(err)
	}
	drv.SetInput(24, gpio.Low)
	if a.IsCalibrated() {
		t.Error("edge without homing should not calibrate")
	}
	if !seq.Busy() {
		t.Error("edge without homing should not stop the axis")
	}
}

func TestAxis_HomingStalledAndAbort(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{SensorPin: 25})
	if err := a.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if a.HomingStalled() {
		t.Fatal("homing should not be stalled while moving")
	}
	seq.run(10000)
	if !a.HomingStalled() {
		t.Fatal("homing should be stalled after overshoot without edge")
	}
	if err := a.AbortHoming(); err != nil {
		t.Fatal(err)
	}
	if a.IsCalibrating() || a.IsCalibrated() {
		t.Error("abort should leave the axis uncalibrated and idle")
	}
}

func TestAxis_SensorPinInUse(t *testing.T) {
	drv := &gpio.MockDriver{}
	if _, err := NewAxis(drv, &fakeSequencer{}, Config{Name: "h", StepsPerRev: 200, SensorPin: 4}); err != nil {
		t.Fatal(err)
	}
	_, err := NewAxis(drv, &fakeSequencer{}, Config{Name: "v", StepsPerRev: 200, SensorPin: 4})
	if !errors.Is(err, gpio.ErrPinInUse) {
		t.Errorf("second axis on pin 4: err = %v, want ErrPinInUse", err)
	}
}

func TestAxis_CalibrateWithoutSensor(t *testing.T) {
	a, _, _ := newTestAxis(t, Config{})
	if err := a.Calibrate(); !errors.Is(err, ErrNoSensor) {
		t.Errorf("err = %v, want ErrNoSensor", err)
	}
}

func TestAxis_PowerOff(t *testing.T) {
	a, seq, drv := newTestAxis(t, Config{SensorPin: 26})
	_ = a.Calibrate()
	drv.SetInput(26, gpio.Low)
	if !a.IsCalibrated() {
		t.Fatal("setup: axis should be calibrated")
	}
	_ = a.Turn(40)

	if err := a.PowerOff(); err != nil {
		t.Fatal(err)
	}
	if a.IsCalibrated() || a.IsRunning() {
		t.Error("PowerOff should clear calibration and stop")
	}
	if !seq.released {
		t.Error("PowerOff should release the coils")
	}
}

func TestAxis_FaultIsHardwareFault(t *testing.T) {
	a, seq, _ := newTestAxis(t, Config{})
	if a.Fault() != nil {
		t.Fatal("no fault expected")
	}
	seq.err = errors.New("coil write failed")
	if err := a.Fault(); !gpio.IsFault(err) {
		t.Errorf("Fault() = %v, want hardware fault", err)
	}
}
