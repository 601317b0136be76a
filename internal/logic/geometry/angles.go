// Package geometry holds the angle arithmetic shared by the mount and the
// target resolver. All angles are radians unless a name says otherwise.
package geometry

import "math"

// TwoPi is one full turn.
const TwoPi = 2 * math.Pi

// Normalize wraps a into [0, 2π).
func Normalize(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	if a >= TwoPi {
		a = 0
	}
	return a
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Delta returns the signed shortest rotation from a to b, in (-π, π].
func Delta(a, b float64) float64 {
	d := Normalize(b - a)
	if d > math.Pi {
		d -= TwoPi
	}
	return d
}
