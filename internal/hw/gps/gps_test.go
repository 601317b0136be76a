package gps

import "testing"

func TestNewStatic(t *testing.T) {
	s, err := NewStatic(46.2, 6.15)
	if err != nil {
		t.Fatal(err)
	}
	fix := s.CurrentFix()
	if !fix.Valid || fix.Lat != 46.2 || fix.Lon != 6.15 {
		t.Errorf("fix = %+v", fix)
	}
	if fix.String() != "46.20000,6.15000" {
		t.Errorf("String() = %q", fix.String())
	}
}

func TestNewStatic_OutOfRange(t *testing.T) {
	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -181}} {
		if _, err := NewStatic(c[0], c[1]); err == nil {
			t.Errorf("NewStatic(%v, %v) should fail", c[0], c[1])
		}
	}
}

func TestFix_NoFixString(t *testing.T) {
	if (Fix{}).String() != "no fix" {
		t.Error("zero Fix should print as no fix")
	}
}
