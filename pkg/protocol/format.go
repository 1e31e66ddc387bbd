package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/odometry"
)

// ErrFrameTooLong is returned when an encoded frame exceeds MaxFrameSize.
var ErrFrameTooLong = errors.New("frame too long")

func terminate(buf []byte) ([]byte, error) {
	buf = append(buf, 0)
	if len(buf) > MaxFrameSize {
		return nil, ErrFrameTooLong
	}
	return buf, nil
}

// AppendOdometry appends an ODM frame.
func AppendOdometry(buf []byte, p odometry.Pose) ([]byte, error) {
	buf = fmt.Appendf(buf, "%s%.3f,%.3f,%.3f,%.2f,%.2f,%d",
		PrefixOdometry, p.X, p.Y, p.Theta, p.V, p.W, p.TimestampMs)
	return terminate(buf)
}

// MilliRevs converts rev/s to rounded milli-rev/s.
func MilliRevs(revs float64) int {
	return int(math.Round(revs * 1000))
}

// AppendLegacyStatus appends a legacy feedback frame.
func AppendLegacyStatus(buf []byte, left, right drive.Status) ([]byte, error) {
	buf = fmt.Appendf(buf, "%d,%d;%d,%d",
		left.Direction, MilliRevs(left.Measured),
		right.Direction, MilliRevs(right.Measured))
	return terminate(buf)
}

// FormatConfig builds a CFG frame.
func FormatConfig(g kinematics.Geometry) []byte {
	buf := fmt.Appendf(nil, "%s%s=%.4f;%s=%.4f;%s=%.1f;%s=%.0f", PrefixConfig,
		KeyWheelRadius, g.WheelRadius, KeyWheelBase, g.WheelBase,
		KeyGearRatio, g.GearRatio, KeyPPR, g.EncoderPPR)
	return append(buf, 0)
}

// FormatVelocity builds a VEL frame.
func FormatVelocity(v, w float64) []byte {
	return append(fmt.Appendf(nil, "%s%.3f,%.3f", PrefixVelocity, v, w), 0)
}

// FormatReset builds a RST frame.
func FormatReset() []byte {
	return append([]byte(PrefixReset), 0)
}

// FormatFeedback builds a FBK frame.
func FormatFeedback(cmd FeedbackCommand) []byte {
	var payload string
	switch cmd.Action {
	case FeedbackOn:
		payload = "on"
	case FeedbackOff:
		payload = "off"
	default:
		payload = "interval=" + strconv.FormatInt(cmd.Interval.Milliseconds(), 10)
	}
	return append([]byte(PrefixFeedback+payload), 0)
}

// FormatLegacy builds a legacy command frame.
func FormatLegacy(left, right drive.Target) []byte {
	buf := fmt.Appendf(nil, "%d,%.3f;%d,%.3f", left.Direction, left.Speed, right.Direction, right.Speed)
	return append(buf, 0)
}

// Feedback is a decoded outbound frame, OdometryFeedback or
// LegacyFeedback.
type Feedback interface {
	feedback()
}

// OdometryFeedback is a decoded ODM frame.
type OdometryFeedback struct {
	Pose odometry.Pose
}

// WheelFeedback is the legacy status of one wheel.
type WheelFeedback struct {
	Direction drive.Direction
	// SpeedMrs is the speed in milli-rev/s.
	SpeedMrs int
}

// LegacyFeedback is a decoded legacy feedback frame.
type LegacyFeedback struct {
	Left, Right WheelFeedback
}

func (OdometryFeedback) feedback() {}
func (LegacyFeedback) feedback()   {}

// ParseFeedback decodes a frame sent by the controller.
func ParseFeedback(frame []byte) (Feedback, error) {
	text := TrimFrame(frame)
	if strings.HasPrefix(text, PrefixOdometry) {
		fields := strings.Split(text[len(PrefixOdometry):], ",")
		if len(fields) != 6 {
			return nil, &ProtocolError{Frame: text, Reason: "expect 6 ODM fields"}
		}
		var vals [5]float64
		for n := range vals {
			val, err := parseNumber(fields[n])
			if err != nil {
				return nil, &ProtocolError{Frame: text, Reason: "invalid ODM field", Err: err}
			}
			vals[n] = val
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(fields[5]), 10, 64)
		if err != nil {
			return nil, &ProtocolError{Frame: text, Reason: "invalid ODM timestamp", Err: err}
		}
		return OdometryFeedback{Pose: odometry.Pose{
			X: vals[0], Y: vals[1], Theta: vals[2], V: vals[3], W: vals[4], TimestampMs: ts,
		}}, nil
	}

	parts := strings.Split(text, ";")
	if len(parts) != 2 {
		return nil, &ProtocolError{Frame: text, Reason: "expect dir1,mrs1;dir2,mrs2"}
	}
	var fb LegacyFeedback
	for n, wheel := range []*WheelFeedback{&fb.Left, &fb.Right} {
		fields := strings.Split(parts[n], ",")
		if len(fields) != 2 {
			return nil, &ProtocolError{Frame: text, Reason: "expect dir,mrs"}
		}
		dir, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil || !drive.Direction(dir).Valid() {
			return nil, &ProtocolError{Frame: text, Reason: "invalid direction", Err: err}
		}
		mrs, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, &ProtocolError{Frame: text, Reason: "invalid speed", Err: err}
		}
		wheel.Direction, wheel.SpeedMrs = drive.Direction(dir), mrs
	}
	return fb, nil
}
