package drive

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/diffdrive/pkg/framework"
)

// FeedbackMode selects the closed loop correction added to feedforward.
type FeedbackMode int

// Feedback modes.
const (
	FeedbackOff FeedbackMode = iota
	FeedbackPID
	FeedbackBangBang
)

var feedbackModeNames = []string{"off", "pid", "bangbang"}

// String implements fmt.Stringer.
func (m FeedbackMode) String() string {
	if m >= 0 && int(m) < len(feedbackModeNames) {
		return feedbackModeNames[m]
	}
	return fmt.Sprintf("FeedbackMode(%d)", int(m))
}

// ParseFeedbackMode parses the name of a FeedbackMode.
func ParseFeedbackMode(s string) (FeedbackMode, error) {
	for n, name := range feedbackModeNames {
		if strings.EqualFold(s, name) {
			return FeedbackMode(n), nil
		}
	}
	return FeedbackOff, fmt.Errorf("unknown feedback mode %q, expect one of %v", s, feedbackModeNames)
}

// ControllerState is the state of a VelocityController.
type ControllerState int

// Controller states.
const (
	// Idle means never driven since start.
	Idle ControllerState = iota
	Driving
	// Stopped means halted after driving.
	Stopped
)

// String implements fmt.Stringer.
func (s ControllerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Driving:
		return "driving"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("ControllerState(%d)", int(s))
}

// Status is the published state of a wheel.
type Status struct {
	State     ControllerState
	Target    Target
	Direction Direction
	Duty      float64
	// Measured is the latest estimated speed (rev/s, unsigned).
	Measured float64
}

// VelocityController closes the speed loop of one wheel.
type VelocityController struct {
	Wheel     Wheel
	Targets   *TargetStore
	Estimator *SpeedEstimator
	Model     FeedforwardModel
	PID       PID
	Mode      FeedbackMode
	StopMode  StopMode
	Motor     Actuator
	// Period is the control period, used as PID dt.
	Period time.Duration

	state         ControllerState
	lastDir       Direction
	badTarget     Target
	motorDisabled bool
	status        atomic.Pointer[Status]
}

// Status returns the latest published status.
func (c *VelocityController) Status() Status {
	if st := c.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

// Control implements framework.Controller.
func (c *VelocityController) Control(fx.ControlContext) error {
	return c.Step()
}

// Step runs one control iteration.
func (c *VelocityController) Step() error {
	target := c.Targets.Get(c.Wheel)
	measured := c.Estimator.Sample().Speed
	if !target.Direction.Valid() {
		if target != c.badTarget {
			glog.Errorf("wheel %s: invalid direction %d ignored", c.Wheel, int(target.Direction))
			c.badTarget = target
		}
		st := c.Status()
		st.Measured = measured
		c.status.Store(&st)
		return nil
	}
	c.badTarget = Target{}

	if target.Idle() {
		return c.halt(target, measured)
	}

	if target.Direction != c.lastDir {
		c.PID.Reset()
	}
	duty := c.Model.Duty(target.Direction, target.Speed)
	c.PID.Setpoint, c.PID.DT = target.Speed, c.Period.Seconds()
	switch c.Mode {
	case FeedbackPID:
		duty += c.PID.Correction(measured)
	case FeedbackBangBang:
		duty += c.PID.BangBangCorrection(measured)
	}
	duty = clamp(duty, 0, 1)

	if ok, err := c.actuate(c.Motor.Drive(target.Direction, duty)); !ok {
		return err
	}
	if c.state != Driving {
		glog.V(2).Infof("wheel %s: %s -> %s (%s %.3f rev/s)", c.Wheel, c.state, Driving, target.Direction, target.Speed)
		c.state = Driving
	}
	c.lastDir = target.Direction
	c.status.Store(&Status{
		State:     c.state,
		Target:    target,
		Direction: target.Direction,
		Duty:      duty,
		Measured:  measured,
	})
	return nil
}

func (c *VelocityController) halt(target Target, measured float64) error {
	if c.state == Driving {
		if ok, err := c.actuate(c.Motor.Halt(c.StopMode)); !ok {
			return err
		}
		c.PID.Reset()
		glog.V(2).Infof("wheel %s: %s -> %s", c.Wheel, c.state, Stopped)
		c.state = Stopped
	}
	c.lastDir = Stop
	c.status.Store(&Status{State: c.state, Target: target, Direction: Stop, Measured: measured})
	return nil
}

// actuate tells if the motor accepted the output. ErrMotorDisabled is
// logged once and swallowed.
func (c *VelocityController) actuate(err error) (bool, error) {
	if errors.Is(err, ErrMotorDisabled) {
		if !c.motorDisabled {
			glog.Errorf("wheel %s: %v", c.Wheel, err)
			c.motorDisabled = true
		}
		return false, nil
	}
	return err == nil, err
}
