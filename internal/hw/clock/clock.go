// Package clock provides the real-time clock with a single wake alarm
// used by the scheduler.
package clock

import (
	"sync"
	"time"

	"github.com/cjeanneret/SkyGo/internal/debug"
)

// Soft keeps wall time as an offset over the system clock. It counts as
// synced once Set has been called, or from the start with trustSystem.
type Soft struct {
	mu     sync.Mutex
	system func() time.Time
	offset time.Duration
	synced bool
	alarm  time.Time
	armed  bool
}

// Option configures a Soft clock.
type Option func(*Soft)

// WithTimeSource replaces the system clock, for tests.
func WithTimeSource(now func() time.Time) Option {
	return func(s *Soft) { s.system = now }
}

// NewSoft returns a clock. trustSystem marks it synced immediately, for
// boards whose system time is disciplined by NTP or an RTC hat.
func NewSoft(trustSystem bool, opts ...Option) *Soft {
	s := &Soft{system: time.Now, synced: trustSystem}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Soft) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *Soft) nowLocked() time.Time {
	return s.system().Add(s.offset).UTC()
}

// Set adjusts the clock to t and marks it synced.
func (s *Soft) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = t.Sub(s.system())
	s.synced = true
	debug.Live("clock set to %s (offset %v)", t.UTC().Format(time.RFC3339), s.offset)
}

func (s *Soft) IsSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// ArmAlarm replaces any armed alarm with one ringing at t.
func (s *Soft) ArmAlarm(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarm = t
	s.armed = true
	debug.Verbose("alarm armed for %s", t.UTC().Format(time.RFC3339))
}

// AlarmIsRinging reports an armed alarm whose time has come.
func (s *Soft) AlarmIsRinging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed && !s.nowLocked().Before(s.alarm)
}

func (s *Soft) ClearAlarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	s.alarm = time.Time{}
}

// Alarm returns the armed alarm time.
func (s *Soft) Alarm() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarm, s.armed
}
