package kinematics

import "math"

// NormalizeAngle maps r radians into (-π, π].
func NormalizeAngle(r float64) float64 {
	if r > 2*math.Pi || r < -2*math.Pi {
		r = math.Remainder(r, 2*math.Pi)
	}
	if r > math.Pi {
		r -= 2 * math.Pi
	} else if r <= -math.Pi {
		r += 2 * math.Pi
	}
	return r
}

// Degrees converts radians to degrees.
func Degrees(r float64) float64 {
	return r * 180 / math.Pi
}

// Radians converts degrees to radians.
func Radians(d float64) float64 {
	return d * math.Pi / 180
}
