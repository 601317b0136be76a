package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/SkyGo/internal/hw/gps"
	"github.com/cjeanneret/SkyGo/internal/link/frame"
	"github.com/cjeanneret/SkyGo/internal/logic/geometry"
	"github.com/cjeanneret/SkyGo/internal/storage/cmdlog"
)

var t0 = time.Date(2026, 3, 21, 22, 0, 0, 0, time.UTC)

type fakeLink struct {
	pending []frame.Message
	sent    []frame.Message
	ready   bool
	polls   int
	pollErr error
	sendErr error
}

func (l *fakeLink) Poll(ctx context.Context, window time.Duration) error {
	l.polls++
	return l.pollErr
}

func (l *fakeLink) Next() (frame.Message, bool) {
	if len(l.pending) == 0 {
		return frame.Message{}, false
	}
	m := l.pending[0]
	l.pending = l.pending[1:]
	return m, true
}

func (l *fakeLink) Send(m frame.Message) error {
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, m)
	return nil
}

func (l *fakeLink) ReadyToSend() bool { return l.ready }

func (l *fakeLink) deliver(ms ...frame.Message) { l.pending = append(l.pending, ms...) }

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	synced bool
	alarm  time.Time
	armed  bool
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	c.synced = true
}

func (c *fakeClock) IsSynced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

func (c *fakeClock) ArmAlarm(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alarm, c.armed = t, true
}

func (c *fakeClock) AlarmIsRinging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed && !c.now.Before(c.alarm)
}

func (c *fakeClock) ClearAlarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alarm, c.armed = time.Time{}, false
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakePosition struct{ fix gps.Fix }

func (p *fakePosition) CurrentFix() gps.Fix { return p.fix }

// fakeResolver fires target n at now + n seconds.
type fakeResolver struct {
	err   error
	calls int
}

func (r *fakeResolver) AimFor(targetID, positionIndex int, fix gps.Fix, now time.Time) (geometry.Horizontal, time.Time, error) {
	r.calls++
	if r.err != nil {
		return geometry.Horizontal{}, time.Time{}, r.err
	}
	return geometry.Horizontal{Azimuth: 1, Altitude: 0.5}, now.Add(time.Duration(targetID) * time.Second), nil
}

type fakeMount struct {
	mu          sync.Mutex
	calibrated  bool
	calibrating bool
	running     bool
	runOnAim    bool
	homingErr   error
	aimErr      error
	fault       error
	aims        [][2]float64
	calibrates  int
	stops       int
	powerOffs   int
}

func (m *fakeMount) Aim(az, alt float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aimErr != nil {
		return m.aimErr
	}
	m.aims = append(m.aims, [2]float64{az, alt})
	m.running = m.runOnAim
	return nil
}

func (m *fakeMount) Position() (az, alt float64) { return 0, 0 }

func (m *fakeMount) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *fakeMount) IsCalibrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calibrated
}

func (m *fakeMount) IsCalibrating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calibrating
}

func (m *fakeMount) Calibrate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibrates++
	m.calibrated = true
	return nil
}

func (m *fakeMount) CheckHoming() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.homingErr != nil {
		m.calibrating = false
	}
	return m.homingErr
}

func (m *fakeMount) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.running = false
	return nil
}

func (m *fakeMount) PowerOff() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerOffs++
	m.calibrated = false
	m.calibrating = false
	return nil
}

func (m *fakeMount) Fault() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fault
}

type fakeCamera struct {
	requests []frame.Message
	resp     *frame.Message
	err      error
}

func (c *fakeCamera) Capture(req frame.Message) (*frame.Message, error) {
	c.requests = append(c.requests, req)
	return c.resp, c.err
}

type fakeLog struct {
	records map[string]cmdlog.Record
	deleted []string
}

func newFakeLog(rs ...cmdlog.Record) *fakeLog {
	l := &fakeLog{records: make(map[string]cmdlog.Record)}
	for _, r := range rs {
		l.records[r.CaptureID] = r
	}
	return l
}

func (l *fakeLog) Store(r cmdlog.Record) error {
	l.records[r.CaptureID] = r
	return nil
}

func (l *fakeLog) Delete(id string) error {
	delete(l.records, id)
	l.deleted = append(l.deleted, id)
	return nil
}

func (l *fakeLog) All() []cmdlog.Record {
	var out []cmdlog.Record
	for _, r := range l.records {
		out = append(out, r)
	}
	return out
}

type monotonic struct{ t time.Time }

func (m *monotonic) now() time.Time          { return m.t }
func (m *monotonic) advance(d time.Duration) { m.t = m.t.Add(d) }

type rig struct {
	c        *Controller
	link     *fakeLink
	clock    *fakeClock
	position *fakePosition
	resolver *fakeResolver
	mount    *fakeMount
	camera   *fakeCamera
	log      *fakeLog
	mono     *monotonic
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		link:     &fakeLink{},
		clock:    &fakeClock{now: t0, synced: true},
		position: &fakePosition{fix: gps.Fix{Lat: 46.2, Lon: 6.1, Valid: true}},
		resolver: &fakeResolver{},
		mount:    &fakeMount{},
		camera:   &fakeCamera{},
		log:      newFakeLog(),
		mono:     &monotonic{t: t0},
	}
	c, err := New(Deps{
		Link:     r.link,
		Clock:    r.clock,
		Position: r.position,
		Resolver: r.resolver,
		Mount:    r.mount,
		Camera:   r.camera,
		Log:      r.log,
	}, Config{ReadWindow: time.Millisecond, InitAttempts: 3}, WithTimeSource(r.mono.now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.c = c
	return r
}

func (r *rig) step(t *testing.T) State {
	t.Helper()
	s, err := r.c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	return s
}

// steps runs n Steps and returns the states they ended in.
func (r *rig) steps(t *testing.T, n int) []State {
	t.Helper()
	out := make([]State, n)
	for i := range out {
		out[i] = r.step(t)
	}
	return out
}

func instruction(target, id, index string) frame.Message {
	return frame.NewMessage(frame.KindInstructions, target, id, index)
}
