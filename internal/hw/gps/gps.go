// Package gps supplies the observer position.
package gps

import "fmt"

// Fix is a position on the WGS84 ellipsoid, in degrees.
type Fix struct {
	Lat   float64
	Lon   float64
	Valid bool
}

func (f Fix) String() string {
	if !f.Valid {
		return "no fix"
	}
	return fmt.Sprintf("%.5f,%.5f", f.Lat, f.Lon)
}

// Static reports a fixed, configured position.
type Static struct {
	fix Fix
}

// NewStatic validates lat/lon ranges.
func NewStatic(lat, lon float64) (*Static, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return &Static{fix: Fix{Lat: lat, Lon: lon, Valid: true}}, nil
}

// CurrentFix returns the configured position.
func (s *Static) CurrentFix() Fix { return s.fix }
