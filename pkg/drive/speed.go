package drive

import (
	"sync/atomic"
	"time"

	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/kinematics"
)

// WheelSpeedSample is the latest speed estimation of a wheel.
type WheelSpeedSample struct {
	// Speed in wheel rev/s, unsigned.
	Speed     float64
	Delta     uint32
	ElapsedMs int64
}

// DeltaSource provides pulses counted since last call.
type DeltaSource interface {
	GetAndResetDelta() uint32
}

// GeometrySource provides the current geometry.
type GeometrySource interface {
	Get() (kinematics.Geometry, bool)
}

// SpeedEstimator converts pulse deltas into wheel speed. Tick is called
// by the control loop only; Sample can be read from anywhere.
type SpeedEstimator struct {
	Counter  DeltaSource
	Geometry GeometrySource

	lastTick time.Time
	sample   atomic.Pointer[WheelSpeedSample]
}

// NewSpeedEstimator creates a SpeedEstimator.
func NewSpeedEstimator(counter DeltaSource, geometry GeometrySource) *SpeedEstimator {
	e := &SpeedEstimator{Counter: counter, Geometry: geometry}
	e.sample.Store(&WheelSpeedSample{})
	return e
}

// Sample returns the latest published sample.
func (e *SpeedEstimator) Sample() WheelSpeedSample {
	if s := e.sample.Load(); s != nil {
		return *s
	}
	return WheelSpeedSample{}
}

// Tick consumes pulses counted since the last tick and publishes a new
// sample. The first tick only establishes the time base. When no time
// elapsed the previous speed is kept.
func (e *SpeedEstimator) Tick(now time.Time) WheelSpeedSample {
	delta := e.Counter.GetAndResetDelta()
	prev := e.Sample()
	sample := WheelSpeedSample{Speed: prev.Speed, Delta: delta}
	if !e.lastTick.IsZero() {
		elapsed := now.Sub(e.lastTick)
		sample.ElapsedMs = elapsed.Milliseconds()
		if elapsed > 0 {
			geometry, _ := e.Geometry.Get()
			if ppr := geometry.PulsesPerWheelRev(); ppr > 0 {
				sample.Speed = float64(delta) / ppr / elapsed.Seconds()
			}
		}
	}
	if e.lastTick.IsZero() || now.After(e.lastTick) {
		e.lastTick = now
	}
	e.sample.Store(&sample)
	return sample
}

// Reset drops pending pulses and the time base.
func (e *SpeedEstimator) Reset() {
	e.Counter.GetAndResetDelta()
	e.lastTick = time.Time{}
	e.sample.Store(&WheelSpeedSample{})
}

// Control implements framework.Controller.
func (e *SpeedEstimator) Control(cc fx.ControlContext) error {
	e.Tick(cc.Time())
	return nil
}
