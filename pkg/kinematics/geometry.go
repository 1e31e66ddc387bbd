// Package kinematics holds the robot geometry and the differential
// drive conversions between body and wheel speeds.
package kinematics

import (
	"fmt"
	"math"
	"sync"
)

// Geometry defines the physical parameters of the robot.
type Geometry struct {
	// WheelRadius in meters.
	WheelRadius float64 `yaml:"wheel_radius"`
	// WheelBase is the distance between wheels in meters.
	WheelBase float64 `yaml:"wheel_base"`
	// GearRatio is motor revolutions per wheel revolution.
	GearRatio float64 `yaml:"gear_ratio"`
	// EncoderPPR is encoder pulses per motor revolution.
	EncoderPPR float64 `yaml:"ppr"`
}

// Defaults
const (
	DefaultGearRatio  float64 = 56
	DefaultEncoderPPR float64 = 11
)

// DefaultGeometry has the motor parameters but no chassis dimensions,
// which must come from configuration.
var DefaultGeometry = Geometry{
	GearRatio:  DefaultGearRatio,
	EncoderPPR: DefaultEncoderPPR,
}

// ConfigError reports invalid geometry.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Reason
	}
	return fmt.Sprintf("invalid config %s=%v: %s", e.Field, e.Value, e.Reason)
}

// ErrNotConfigured is returned when geometry is needed before it is
// configured.
var ErrNotConfigured = &ConfigError{Reason: "geometry not configured"}

// Validate checks the geometry is usable.
func (g Geometry) Validate() error {
	if !(g.WheelRadius > 0) || math.IsInf(g.WheelRadius, 0) {
		return &ConfigError{Field: "wheel_radius", Value: g.WheelRadius, Reason: "must be positive"}
	}
	if !(g.WheelBase > 0) || math.IsInf(g.WheelBase, 0) {
		return &ConfigError{Field: "wheel_base", Value: g.WheelBase, Reason: "must be positive"}
	}
	if !(g.GearRatio > 0) {
		return &ConfigError{Field: "gear_ratio", Value: g.GearRatio, Reason: "must be positive"}
	}
	if !(g.EncoderPPR > 0) {
		return &ConfigError{Field: "ppr", Value: g.EncoderPPR, Reason: "must be positive"}
	}
	return nil
}

// PulsesPerWheelRev is the number of encoder pulses per output wheel
// revolution.
func (g Geometry) PulsesPerWheelRev() float64 {
	return g.EncoderPPR * g.GearRatio
}

// RevsToLinear converts wheel rev/s to m/s.
func (g Geometry) RevsToLinear(revs float64) float64 {
	return revs * 2 * math.Pi * g.WheelRadius
}

// LinearToRevs converts m/s to wheel rev/s.
func (g Geometry) LinearToRevs(speed float64) float64 {
	return speed / (2 * math.Pi * g.WheelRadius)
}

// BodyToWheels converts body linear speed v (m/s) and angular
// speed w (rad/s) into left and right wheel linear speeds.
func (g Geometry) BodyToWheels(v, w float64) (left, right float64) {
	half := w * g.WheelBase / 2
	return v - half, v + half
}

// WheelsToBody converts wheel linear speeds into body speeds.
func (g Geometry) WheelsToBody(left, right float64) (v, w float64) {
	return (left + right) / 2, (right - left) / g.WheelBase
}

// GeometryStore guards the geometry shared by the protocol handler,
// the speed estimators and odometry.
type GeometryStore struct {
	lock       sync.RWMutex
	geometry   Geometry
	configured bool
}

// NewGeometryStore creates a store with DefaultGeometry, unconfigured.
func NewGeometryStore() *GeometryStore {
	return &GeometryStore{geometry: DefaultGeometry}
}

// Get returns the geometry and whether it's configured.
func (s *GeometryStore) Get() (Geometry, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.geometry, s.configured
}

// Configured tells if a valid geometry was applied.
func (s *GeometryStore) Configured() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.configured
}

// Configure validates and applies g. Zero GearRatio or EncoderPPR keep
// the current values. On error nothing changes.
func (s *GeometryStore) Configure(g Geometry) (Geometry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if g.GearRatio == 0 {
		g.GearRatio = s.geometry.GearRatio
	}
	if g.EncoderPPR == 0 {
		g.EncoderPPR = s.geometry.EncoderPPR
	}
	if err := g.Validate(); err != nil {
		return s.geometry, err
	}
	s.geometry, s.configured = g, true
	return g, nil
}
