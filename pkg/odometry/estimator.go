// Package odometry integrates wheel speeds into a 2D pose.
package odometry

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robotalks/diffdrive/pkg/kinematics"
)

// Pose is the estimated robot state in the odometry frame.
type Pose struct {
	X, Y float64
	// Theta is the heading in radians, within (-π, π].
	Theta float64
	// V is linear speed (m/s), W angular speed (rad/s).
	V, W float64
	// TimestampMs is milliseconds since the estimator started.
	TimestampMs int64
}

// String implements fmt.Stringer.
func (p Pose) String() string {
	return fmt.Sprintf("x=%.3f y=%.3f θ=%.3f(%.1f°) v=%.2f w=%.2f t=%d",
		p.X, p.Y, p.Theta, kinematics.Degrees(p.Theta), p.V, p.W, p.TimestampMs)
}

// Estimator owns the pose. All access is under one lock, readers
// always get a consistent copy.
type Estimator struct {
	Geometry *kinematics.GeometryStore
	// Now is the clock, time.Now if nil.
	Now func() time.Time

	lock  sync.Mutex
	pose  Pose
	start time.Time
}

// NewEstimator creates an Estimator. now is the clock, time.Now if nil.
func NewEstimator(geometry *kinematics.GeometryStore, now func() time.Time) *Estimator {
	e := &Estimator{Geometry: geometry, Now: now}
	e.start = e.now()
	return e
}

func (e *Estimator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Update integrates left and right wheel linear speeds (m/s) over dt
// seconds using the midpoint heading. It's a no-op when geometry is not
// configured or dt is not positive.
func (e *Estimator) Update(left, right, dt float64) bool {
	if !(dt > 0) {
		return false
	}
	geometry, configured := e.Geometry.Get()
	if !configured {
		return false
	}
	v, w := geometry.WheelsToBody(left, right)
	now := e.now()

	e.lock.Lock()
	defer e.lock.Unlock()
	mid := e.pose.Theta + w*dt/2
	e.pose.X += v * math.Cos(mid) * dt
	e.pose.Y += v * math.Sin(mid) * dt
	e.pose.Theta = kinematics.NormalizeAngle(e.pose.Theta + w*dt)
	e.pose.V, e.pose.W = v, w
	e.pose.TimestampMs = now.Sub(e.start).Milliseconds()
	return true
}

// State returns a snapshot of the pose.
func (e *Estimator) State() Pose {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.pose
}

// Reset moves the pose back to origin, keeping the time base.
func (e *Estimator) Reset() {
	now := e.now()
	e.lock.Lock()
	e.pose = Pose{TimestampMs: now.Sub(e.start).Milliseconds()}
	e.lock.Unlock()
}
