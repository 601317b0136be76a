package capture

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 21, 22, 0, 0, 0, time.UTC)

func cmd(id string, offset time.Duration) Command {
	return Command{TargetID: 1, CaptureID: id, PositionIndex: 1, FireTime: t0.Add(offset)}
}

func ids(s *Schedule) []string {
	var out []string
	for _, c := range s.Commands() {
		out = append(out, c.CaptureID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsert_KeepsFireTimeOrder(t *testing.T) {
	var s Schedule
	s.Insert(cmd("five", 5*time.Second))
	s.Insert(cmd("one", 1*time.Second))
	s.Insert(cmd("three", 3*time.Second))

	if got, want := ids(&s), []string{"one", "three", "five"}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	next, ok := s.Next()
	if !ok || !next.FireTime.Equal(t0.Add(time.Second)) {
		t.Errorf("Next = %v, %v; want T+1s", next, ok)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestInsert_EqualTimesKeepInsertionOrder(t *testing.T) {
	var s Schedule
	s.Insert(cmd("a", time.Minute))
	s.Insert(cmd("b", time.Minute))
	s.Insert(cmd("early", 0))
	s.Insert(cmd("c", time.Minute))

	if got, want := ids(&s), []string{"early", "a", "b", "c"}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestPop(t *testing.T) {
	var s Schedule
	if _, ok := s.Pop(); ok {
		t.Fatal("Pop on empty schedule should report false")
	}
	s.Insert(cmd("b", 2*time.Second))
	s.Insert(cmd("a", time.Second))

	c, ok := s.Pop()
	if !ok || c.CaptureID != "a" {
		t.Errorf("Pop = %v, %v; want a", c, ok)
	}
	c, _ = s.Pop()
	if c.CaptureID != "b" {
		t.Errorf("second Pop = %s, want b", c.CaptureID)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after popping everything", s.Len())
	}
}

func TestRemoveAndHas(t *testing.T) {
	var s Schedule
	s.Insert(cmd("a", time.Second))
	s.Insert(cmd("b", 2*time.Second))
	s.Insert(cmd("c", 3*time.Second))

	if !s.Has("b") {
		t.Error("Has(b) = false")
	}
	if !s.Remove("b") {
		t.Error("Remove(b) = false")
	}
	if s.Has("b") || s.Remove("b") {
		t.Error("b still present after Remove")
	}
	if got, want := ids(&s), []string{"a", "c"}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestCommands_ReturnsCopy(t *testing.T) {
	var s Schedule
	s.Insert(cmd("a", time.Second))
	cp := s.Commands()
	cp[0].CaptureID = "changed"
	if c, _ := s.Next(); c.CaptureID != "a" {
		t.Errorf("schedule modified through Commands copy: %s", c.CaptureID)
	}
}

func TestCommandString(t *testing.T) {
	got := cmd("x1", 0).String()
	want := "x1 (target 1, slot 1) at 2026-03-21T22:00:00Z"
	if got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}
