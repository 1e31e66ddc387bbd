package protocol

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/odometry"
)

// Mode is the protocol generation used for feedback.
type Mode int32

// Modes.
const (
	ModeLegacy Mode = iota
	ModeOdometry
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeOdometry {
		return "odometry"
	}
	return "legacy"
}

// WheelStatusSource provides the status of both wheels.
type WheelStatusSource interface {
	WheelStatus() (left, right drive.Status)
}

// FeedbackControl is the feedback stream controlled by FBK frames.
type FeedbackControl interface {
	Enable(bool)
	SetInterval(time.Duration) time.Duration
}

// ErrNoFeedbackControl is returned for FBK frames when no feedback
// stream is attached.
var ErrNoFeedbackControl = errors.New("feedback control not available")

// Encoder encodes one outbound frame.
type Encoder interface {
	Encode(buf []byte) ([]byte, error)
}

// LegacyEncoder encodes per-wheel direction and speed.
type LegacyEncoder struct {
	Wheels WheelStatusSource
}

// Encode implements Encoder.
func (e *LegacyEncoder) Encode(buf []byte) ([]byte, error) {
	left, right := e.Wheels.WheelStatus()
	return AppendLegacyStatus(buf, left, right)
}

// OdometryEncoder encodes the pose. It falls back to Fallback until
// geometry is configured.
type OdometryEncoder struct {
	Odometry *odometry.Estimator
	Fallback Encoder
}

// Encode implements Encoder.
func (e *OdometryEncoder) Encode(buf []byte) ([]byte, error) {
	if !e.Odometry.Geometry.Configured() {
		return e.Fallback.Encode(buf)
	}
	return AppendOdometry(buf, e.Odometry.State())
}

type strategy struct {
	mode    Mode
	encoder Encoder
}

// Handler decodes inbound frames into targets and configuration, and
// encodes feedback frames. HandleFrame is called from the transport
// receive goroutine, Encode from the feedback scheduler.
type Handler struct {
	Geometry *kinematics.GeometryStore
	Targets  *drive.TargetStore
	Odometry *odometry.Estimator
	Feedback FeedbackControl
	// ResetOdometry runs RST, Odometry.Reset by default.
	ResetOdometry func()

	odometryEncoder Encoder
	strategy        atomic.Pointer[strategy]
	handled         atomic.Uint64
	dropped         atomic.Uint64
}

// NewHandler creates a Handler starting in ModeLegacy.
func NewHandler(geometry *kinematics.GeometryStore, targets *drive.TargetStore,
	odom *odometry.Estimator, wheels WheelStatusSource) *Handler {
	legacy := &LegacyEncoder{Wheels: wheels}
	h := &Handler{
		Geometry:        geometry,
		Targets:         targets,
		Odometry:        odom,
		ResetOdometry:   odom.Reset,
		odometryEncoder: &OdometryEncoder{Odometry: odom, Fallback: legacy},
	}
	h.strategy.Store(&strategy{mode: ModeLegacy, encoder: legacy})
	return h
}

// Mode returns the current feedback mode.
func (h *Handler) Mode() Mode {
	return h.strategy.Load().mode
}

// Stats returns the number of applied and dropped frames.
func (h *Handler) Stats() (handled, dropped uint64) {
	return h.handled.Load(), h.dropped.Load()
}

// Encode appends one feedback frame using the current strategy.
func (h *Handler) Encode(buf []byte) ([]byte, error) {
	return h.strategy.Load().encoder.Encode(buf)
}

// HandleFrame decodes and applies one inbound frame. Failures are
// logged with the raw frame and leave all state unchanged.
func (h *Handler) HandleFrame(frame []byte) error {
	cmd, err := Parse(frame)
	if err == nil {
		err = h.Apply(cmd)
	}
	if err != nil {
		h.dropped.Add(1)
		glog.Errorf("drop frame %q: %v", TrimFrame(frame), err)
		return err
	}
	h.handled.Add(1)
	glog.V(2).Infof("RCV %q", TrimFrame(frame))
	return nil
}

// Apply executes a decoded command.
func (h *Handler) Apply(cmd Command) error {
	switch c := cmd.(type) {
	case ConfigCommand:
		g := c.Geometry
		current, _ := h.Geometry.Get()
		if c.Omitted&OptGearRatio != 0 {
			g.GearRatio = current.GearRatio
		}
		if c.Omitted&OptPPR != 0 {
			g.EncoderPPR = current.EncoderPPR
		}
		if err := g.Validate(); err != nil {
			return err
		}
		g, err := h.Geometry.Configure(g)
		if err != nil {
			return err
		}
		glog.Infof("geometry configured: radius=%.4f base=%.4f gear=%.1f ppr=%.0f",
			g.WheelRadius, g.WheelBase, g.GearRatio, g.EncoderPPR)
		h.latch()
	case VelocityCommand:
		g, configured := h.Geometry.Get()
		if !configured {
			return kinematics.ErrNotConfigured
		}
		left, right := g.BodyToWheels(c.V, c.W)
		h.Targets.Set(
			drive.TargetFromSpeed(g.LinearToRevs(left)),
			drive.TargetFromSpeed(g.LinearToRevs(right)))
		h.latch()
	case ResetCommand:
		h.ResetOdometry()
		glog.Info("odometry reset")
	case LegacyCommand:
		h.Targets.Set(c.Left, c.Right)
	case FeedbackCommand:
		if h.Feedback == nil {
			return ErrNoFeedbackControl
		}
		switch c.Action {
		case FeedbackOn:
			h.Feedback.Enable(true)
		case FeedbackOff:
			h.Feedback.Enable(false)
		case FeedbackInterval:
			h.Feedback.SetInterval(c.Interval)
		}
	default:
		return errors.New("unsupported command")
	}
	return nil
}

// latch switches feedback to odometry frames, once and for all.
func (h *Handler) latch() {
	if h.Mode() == ModeOdometry {
		return
	}
	next := &strategy{mode: ModeOdometry, encoder: h.odometryEncoder}
	for {
		cur := h.strategy.Load()
		if cur.mode == ModeOdometry || h.strategy.CompareAndSwap(cur, next) {
			break
		}
	}
	glog.Info("protocol switched to odometry feedback")
}
