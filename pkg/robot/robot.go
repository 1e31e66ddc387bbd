package robot

import (
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/encoder"
	"github.com/robotalks/diffdrive/pkg/feedback"
	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/hal"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/odometry"
	"github.com/robotalks/diffdrive/pkg/protocol"
	"github.com/robotalks/diffdrive/pkg/telemetry"
	"github.com/robotalks/diffdrive/pkg/transport"
	"github.com/robotalks/diffdrive/pkg/transport/env"
)

// ErrNotBound is returned when feedback is controlled before an
// endpoint is bound.
var ErrNotBound = errors.New("endpoint not bound")

// Wheel groups the per-wheel pipeline.
type Wheel struct {
	Counter    *encoder.PulseCounter
	Speed      *drive.SpeedEstimator
	Motor      *drive.Motor
	Controller *drive.VelocityController
	Wiring     hal.WheelWiring
}

// Robot owns all state of the motor controller.
type Robot struct {
	Config   *Config
	Board    *hal.Board
	Geometry *kinematics.GeometryStore
	Targets  *drive.TargetStore
	Wheels   [2]*Wheel

	Odometry   *odometry.Estimator
	Integrator *odometry.Integrator
	Handler    *protocol.Handler
	Feedback   *feedback.Scheduler
	Link       transport.Link
	Telemetry  *telemetry.Publisher

	loop fx.LoopControl
}

// New creates a Robot on board. Hardware is untouched until Init.
func New(conf *Config, board *hal.Board) (*Robot, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	mode, _ := drive.ParseFeedbackMode(conf.FeedbackMode)
	r := &Robot{
		Config:   conf,
		Board:    board,
		Geometry: kinematics.NewGeometryStore(),
		Targets:  &drive.TargetStore{},
	}
	if conf.Geometry != nil {
		if _, err := r.Geometry.Configure(*conf.Geometry); err != nil {
			return nil, err
		}
	}
	wirings := [2]hal.WheelWiring{conf.Wiring.Left, conf.Wiring.Right}
	models := [2]drive.FeedforwardModel{conf.Models.Left, conf.Models.Right}
	for n := range r.Wheels {
		w := &Wheel{Counter: &encoder.PulseCounter{}, Wiring: wirings[n]}
		wheel := drive.Wheel(n)
		w.Speed = drive.NewSpeedEstimator(w.Counter, r.Geometry)
		w.Motor = drive.NewMotor(wheel.String(), board, wirings[n], conf.PWMPeriodNs)
		w.Controller = &drive.VelocityController{
			Wheel:     wheel,
			Targets:   r.Targets,
			Estimator: w.Speed,
			Model:     models[n],
			PID:       conf.PID,
			Mode:      mode,
			StopMode:  conf.StopMode(),
			Motor:     w.Motor,
			Period:    conf.ControlPeriod,
		}
		r.Wheels[n] = w
	}
	r.Odometry = odometry.NewEstimator(r.Geometry, nil)
	r.Integrator = &odometry.Integrator{
		Estimator: r.Odometry,
		Wheels: [2]*odometry.WheelFeed{
			{Speed: r.Wheels[drive.Left].Speed, Status: r.Wheels[drive.Left].Controller},
			{Speed: r.Wheels[drive.Right].Speed, Status: r.Wheels[drive.Right].Controller},
		},
	}
	r.Handler = protocol.NewHandler(r.Geometry, r.Targets, r.Odometry, r)
	r.Handler.ResetOdometry = r.ResetOdometry
	return r, nil
}

// Init attaches the encoders and initializes the motors. A failed unit
// stays disabled and the rest keeps working, the failures are returned
// aggregated.
func (r *Robot) Init() error {
	errs := &fx.AggregatedError{}
	for _, w := range r.Wheels {
		if err := encoder.Attach(r.Board.GPIO, w.Wiring.EncoderPin, w.Counter); err != nil {
			glog.Errorf("wheel %s encoder: %v", w.Controller.Wheel, err)
			errs.Add(err)
		}
		if err := w.Motor.Init(); err != nil {
			glog.Errorf("wheel %s motor: %v", w.Controller.Wheel, err)
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// Bind attaches the endpoint. Feedback starts streaming on it once the
// robot is added to the loop.
func (r *Robot) Bind(link transport.Link) {
	r.Link = link
	r.Feedback = feedback.NewScheduler(link, r.Handler)
	r.Feedback.SetInterval(r.Config.FeedbackInterval)
	r.Feedback.Enable(!r.Config.FeedbackDisabled)
	r.Handler.Feedback = r.Feedback
}

// EnableTelemetry mirrors the pose to the broker at TelemetryURL.
func (r *Robot) EnableTelemetry() error {
	id := r.Config.ID
	if id == "" {
		id = env.MachineID()
	}
	pub, err := telemetry.NewPublisher(r.Config.TelemetryURL, id, r.Odometry)
	if err != nil {
		return err
	}
	if r.Config.TelemetryInterval > 0 {
		pub.Interval = r.Config.TelemetryInterval
	}
	r.Telemetry = pub
	glog.Infof("telemetry: %s%s", pub.Queue.TopicPrefix, telemetry.PoseTopic(id))
	return nil
}

// Receive is the transport.ReceiveFunc of the bound endpoint.
func (r *Robot) Receive(frame []byte) {
	// failures are logged by the handler
	r.Handler.HandleFrame(frame)
}

// Unbind is the transport.UnbindFunc of the bound endpoint.
func (r *Robot) Unbind() {
	if r.Config.StopOnUnbind {
		glog.Warning("host unbound, stopping")
		r.Targets.Set(drive.Target{}, drive.Target{})
	}
}

// AddToLoop implements framework.LoopAdder.
func (r *Robot) AddToLoop(loop *fx.Loop) {
	r.loop = loop
	loop.Interval = r.Config.ControlPeriod
	// edges seen while the pins were set up are not motion
	loop.PreRunAt(fx.PrLvSense, fx.ControlFunc(r.resetEncoders))
	for _, w := range r.Wheels {
		loop.AddController(fx.PrLvSense, w.Speed)
		loop.AddController(fx.PrLvControl, w.Controller)
	}
	loop.AddController(fx.PrLvPostProc, r.Integrator)
	if runnable, ok := r.Board.GPIO.(fx.Runnable); ok {
		loop.AddRunnable(fx.NamedRun("board:"+r.Board.Name, runnable))
	}
	if r.Link != nil {
		loop.AddRunnable(fx.NamedRun("endpoint:"+r.Link.Name(), r.Link), fx.NamedRun("feedback", r.Feedback))
	}
	if r.Telemetry != nil {
		loop.AddRunnable(fx.NamedRun("telemetry", r.Telemetry))
	}
}

// WheelStatus implements protocol.WheelStatusSource.
func (r *Robot) WheelStatus() (left, right drive.Status) {
	return r.Wheels[drive.Left].Controller.Status(), r.Wheels[drive.Right].Controller.Status()
}

// EnableFeedback turns the feedback stream on or off.
func (r *Robot) EnableFeedback(on bool) error {
	if r.Feedback == nil {
		return ErrNotBound
	}
	r.Feedback.Enable(on)
	return nil
}

// SetFeedbackInterval changes the feedback period, returns the
// effective one.
func (r *Robot) SetFeedbackInterval(d time.Duration) (time.Duration, error) {
	if r.Feedback == nil {
		return 0, ErrNotBound
	}
	return r.Feedback.SetInterval(d), nil
}

// ResetOdometry moves the pose back to origin. Once in a loop, the
// reset lands after the integration of the next iteration.
func (r *Robot) ResetOdometry() {
	if r.loop == nil {
		r.Odometry.Reset()
		return
	}
	r.loop.PostRunAt(fx.PrLvPostProc, fx.ControlFunc(func(fx.ControlContext) error {
		r.Odometry.Reset()
		return nil
	}))
}

func (r *Robot) resetEncoders(fx.ControlContext) error {
	for _, w := range r.Wheels {
		w.Counter.Reset()
		w.Speed.Reset()
	}
	return nil
}

// WheelInfo is the diagnostic state of a wheel.
type WheelInfo struct {
	Drive      drive.Status
	Speed      drive.WheelSpeedSample
	Pulses     uint32
	MotorReady bool
}

// Status is the diagnostic state of the robot.
type Status struct {
	Geometry   kinematics.Geometry
	Configured bool
	Mode       protocol.Mode
	Pose       odometry.Pose
	Wheels     [2]WheelInfo

	FramesHandled, FramesDropped uint64
	Feedback                     *feedback.Stats
	FeedbackEnabled              bool
	FeedbackInterval             time.Duration
}

// Status collects the diagnostic state.
func (r *Robot) Status() Status {
	st := Status{
		Mode: r.Handler.Mode(),
		Pose: r.Odometry.State(),
	}
	st.Geometry, st.Configured = r.Geometry.Get()
	st.FramesHandled, st.FramesDropped = r.Handler.Stats()
	for n, w := range r.Wheels {
		st.Wheels[n] = WheelInfo{
			Drive:      w.Controller.Status(),
			Speed:      w.Speed.Sample(),
			Pulses:     w.Counter.Count(),
			MotorReady: w.Motor.Ready(),
		}
	}
	if r.Feedback != nil {
		stats := r.Feedback.Stats()
		st.Feedback = &stats
		st.FeedbackEnabled = r.Feedback.Enabled()
		st.FeedbackInterval = r.Feedback.Interval()
	}
	return st
}

// Close stops both motors. The endpoint is released when the loop's
// context is cancelled.
func (r *Robot) Close() error {
	r.Targets.Set(drive.Target{}, drive.Target{})
	errs := &fx.AggregatedError{}
	for _, w := range r.Wheels {
		if !w.Motor.Ready() {
			continue
		}
		if err := w.Motor.Halt(r.Config.StopMode()); err != nil {
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}
