package geometry

import (
	"math"
	"time"
)

const (
	unixEpochJD = 2440587.5
	j2000JD     = 2451545.0
)

// Equatorial coordinates: right ascension and declination.
type Equatorial struct {
	RA  float64
	Dec float64
}

// Horizontal coordinates: azimuth from north through east, altitude above
// the horizon.
type Horizontal struct {
	Azimuth  float64
	Altitude float64
}

// JulianDate returns the Julian date of t.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + unixEpochJD
}

// GMST returns Greenwich mean sidereal time as an angle.
func GMST(t time.Time) float64 {
	d := JulianDate(t) - j2000JD
	hours := 18.697374558 + 24.06570982441908*d
	return Normalize(hours * math.Pi / 12)
}

// LST returns local sidereal time at east longitude lonDeg.
func LST(t time.Time, lonDeg float64) float64 {
	return Normalize(GMST(t) + Radians(lonDeg))
}

// ToHorizontal converts eq for an observer at latDeg/lonDeg at time t.
// Refraction and nutation are ignored.
func ToHorizontal(eq Equatorial, latDeg, lonDeg float64, t time.Time) Horizontal {
	lat := Radians(latDeg)
	ha := LST(t, lonDeg) - eq.RA

	sinAlt := math.Sin(eq.Dec)*math.Sin(lat) + math.Cos(eq.Dec)*math.Cos(lat)*math.Cos(ha)
	alt := math.Asin(math.Max(-1, math.Min(1, sinAlt)))

	y := -math.Cos(eq.Dec) * math.Sin(ha)
	x := math.Sin(eq.Dec)*math.Cos(lat) - math.Cos(eq.Dec)*math.Sin(lat)*math.Cos(ha)
	az := 0.0
	if x != 0 || y != 0 {
		az = Normalize(math.Atan2(y, x))
	}
	return Horizontal{Azimuth: az, Altitude: alt}
}
