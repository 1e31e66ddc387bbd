package drive

import "math"

// DefaultBangBangThreshold is the error (rev/s) above which the
// bang-bang variant saturates.
const DefaultBangBangThreshold = 0.5

// PID is a discrete PID controller. It's not safe for concurrent use,
// each wheel owns one and updates it once per tick.
type PID struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`

	Setpoint float64 `yaml:"-"`
	// ILimit bounds the integral to ±ILimit.
	ILimit float64 `yaml:"i_limit"`
	// OutLimit bounds the output to ±OutLimit.
	OutLimit float64 `yaml:"out_limit"`
	// DT is the update period in seconds.
	DT float64 `yaml:"-"`
	// Threshold of the bang-bang variant.
	Threshold float64 `yaml:"threshold"`

	lastError float64
	integral  float64
}

// Reset clears the accumulated state.
func (p *PID) Reset() {
	p.lastError, p.integral = 0, 0
}

// Integral returns the current integral term state.
func (p *PID) Integral() float64 {
	return p.integral
}

// Correction runs one step and returns the signed output bounded by
// ±OutLimit.
func (p *PID) Correction(feedback float64) float64 {
	err := p.Setpoint - feedback
	var derivative float64
	if p.DT > 0 {
		p.integral = clamp(p.integral+err*p.DT, -p.ILimit, p.ILimit)
		derivative = (err - p.lastError) / p.DT
	}
	p.lastError = err
	out := p.Kp*err + p.Ki*p.integral + p.Kd*derivative
	return clamp(out, -p.OutLimit, p.OutLimit)
}

// Update runs one step and returns the output as a non-negative
// magnitude, direction is carried separately.
func (p *PID) Update(feedback float64) float64 {
	return math.Max(0, p.Correction(feedback))
}

// BangBangCorrection saturates to ±OutLimit without integrating when
// the error exceeds Threshold, otherwise it's Correction.
func (p *PID) BangBangCorrection(feedback float64) float64 {
	err := p.Setpoint - feedback
	if threshold := p.Threshold; threshold > 0 && math.Abs(err) > threshold {
		p.lastError = err
		if err > 0 {
			return p.OutLimit
		}
		return -p.OutLimit
	}
	return p.Correction(feedback)
}

// UpdateBangBang is the magnitude form of BangBangCorrection.
func (p *PID) UpdateBangBang(feedback float64) float64 {
	return math.Max(0, p.BangBangCorrection(feedback))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
