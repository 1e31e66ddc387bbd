package odometry

import (
	"time"

	"github.com/robotalks/diffdrive/pkg/drive"
	fx "github.com/robotalks/diffdrive/pkg/framework"
)

// SampleSource provides the latest speed sample of a wheel.
type SampleSource interface {
	Sample() drive.WheelSpeedSample
}

// StatusSource provides the drive status of a wheel.
type StatusSource interface {
	Status() drive.Status
}

// WheelFeed is the odometry input of one wheel.
type WheelFeed struct {
	Speed  SampleSource
	Status StatusSource

	sign float64
}

// signedSpeed returns wheel rev/s signed by the direction the wheel was
// last driven in. After a stop the wheel keeps coasting that way.
func (f *WheelFeed) signedSpeed() float64 {
	if dir := f.Status.Status().Direction; dir != drive.Stop {
		f.sign = dir.Sign()
	}
	return f.sign * f.Speed.Sample().Speed
}

// Integrator feeds the Estimator from the wheel speed estimators once
// per control loop iteration.
type Integrator struct {
	Estimator *Estimator
	Wheels    [2]*WheelFeed

	last time.Time
}

// Control implements framework.Controller.
func (i *Integrator) Control(cc fx.ControlContext) error {
	i.Step(cc.Time())
	return nil
}

// Step integrates since the previous step.
func (i *Integrator) Step(now time.Time) {
	if i.last.IsZero() {
		i.last = now
		return
	}
	dt := now.Sub(i.last).Seconds()
	if dt <= 0 {
		return
	}
	i.last = now
	geometry, _ := i.Estimator.Geometry.Get()
	left := geometry.RevsToLinear(i.Wheels[drive.Left].signedSpeed())
	right := geometry.RevsToLinear(i.Wheels[drive.Right].signedSpeed())
	i.Estimator.Update(left, right, dt)
}
