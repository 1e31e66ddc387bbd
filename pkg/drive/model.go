package drive

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Linear is duty = K*speed + B.
type Linear struct {
	K float64 `yaml:"k"`
	B float64 `yaml:"b"`
}

// Duty evaluates the line.
func (l Linear) Duty(speed float64) float64 {
	return l.K*speed + l.B
}

// FeedforwardModel maps a target speed to open loop duty, calibrated
// separately per direction.
type FeedforwardModel struct {
	Forward  Linear `yaml:"forward"`
	Backward Linear `yaml:"backward"`
}

// Calibrated models of the stock motors.
var (
	DefaultLeftModel = FeedforwardModel{
		Forward:  Linear{K: 0.2781, B: 0.0233},
		Backward: Linear{K: 0.2549, B: 0.0306},
	}
	DefaultRightModel = FeedforwardModel{
		Forward:  Linear{K: 0.2542, B: 0.0612},
		Backward: Linear{K: 0.2829, B: 0.0359},
	}
)

// Duty returns the unclamped feedforward duty, 0 when stopped.
func (m FeedforwardModel) Duty(dir Direction, speed float64) float64 {
	switch dir {
	case Forward:
		return m.Forward.Duty(speed)
	case Backward:
		return m.Backward.Duty(speed)
	}
	return 0
}

// Errors of FitLinear.
var (
	ErrTooFewSamples = errors.New("at least 2 samples required")
	ErrDegenerate    = errors.New("samples have no speed variation")
)

// FitLinear fits duty = K*speed + B by least squares from measured
// steady state samples.
func FitLinear(speeds, duties []float64) (Linear, error) {
	if len(speeds) != len(duties) {
		return Linear{}, errors.New("speeds and duties length mismatch")
	}
	if len(speeds) < 2 {
		return Linear{}, ErrTooFewSamples
	}
	if floats.Max(speeds)-floats.Min(speeds) < 1e-9 {
		return Linear{}, ErrDegenerate
	}
	b, k := stat.LinearRegression(speeds, duties, nil, false)
	if math.IsNaN(k) || math.IsNaN(b) {
		return Linear{}, ErrDegenerate
	}
	return Linear{K: k, B: b}, nil
}
