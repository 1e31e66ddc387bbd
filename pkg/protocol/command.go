// Package protocol implements the text wire protocol between the host
// and the motor controller.
//
// Two generations share the channel. The legacy one carries per-wheel
// direction and speed. The newer one configures geometry (CFG), commands
// body velocity (VEL), resets odometry (RST) and reports pose (ODM).
// Frames are NUL terminated ASCII of at most MaxFrameSize bytes.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
)

// MaxFrameSize is the maximum frame size including the NUL terminator.
const MaxFrameSize = 128

// Frame prefixes.
const (
	PrefixConfig   = "CFG:"
	PrefixVelocity = "VEL:"
	PrefixReset    = "RST:"
	PrefixOdometry = "ODM:"
	PrefixFeedback = "FBK:"
)

// Config keys of CFG frames.
const (
	KeyWheelRadius = "wheel_radius"
	KeyWheelBase   = "wheel_base"
	KeyGearRatio   = "gear_ratio"
	KeyPPR         = "ppr"
)

// Command is a decoded inbound frame, one of ConfigCommand,
// VelocityCommand, ResetCommand, FeedbackCommand or LegacyCommand.
type Command interface {
	command()
}

// ConfigOptional is a set of CFG keys which may be left out.
type ConfigOptional uint8

// Optional CFG keys.
const (
	OptGearRatio ConfigOptional = 1 << iota
	OptPPR
)

// ConfigCommand sets the robot geometry.
type ConfigCommand struct {
	Geometry kinematics.Geometry
	// Omitted lists optional keys absent from the frame, they keep the
	// current values. A key given as zero is invalid.
	Omitted ConfigOptional
}

// VelocityCommand sets body linear (m/s) and angular (rad/s) speed.
type VelocityCommand struct {
	V, W float64
}

// ResetCommand resets odometry.
type ResetCommand struct{}

// FeedbackAction is what a FeedbackCommand does.
type FeedbackAction int

// Feedback actions.
const (
	FeedbackOn FeedbackAction = iota
	FeedbackOff
	FeedbackInterval
)

// FeedbackCommand controls the feedback stream.
type FeedbackCommand struct {
	Action   FeedbackAction
	Interval time.Duration
}

// LegacyCommand sets per wheel targets directly.
type LegacyCommand struct {
	Left, Right drive.Target
}

func (ConfigCommand) command()   {}
func (VelocityCommand) command() {}
func (ResetCommand) command()    {}
func (FeedbackCommand) command() {}
func (LegacyCommand) command()   {}

// ProtocolError reports a frame which can't be decoded.
type ProtocolError struct {
	Frame  string
	Reason string
	Err    error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("bad frame %q: %s", e.Frame, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type parseFunc func(payload string) (Command, error)

var parsers = []struct {
	prefix string
	parse  parseFunc
}{
	{PrefixConfig, parseConfig},
	{PrefixVelocity, parseVelocity},
	{PrefixReset, parseReset},
	{PrefixFeedback, parseFeedback},
}

// TrimFrame returns the text of a frame: up to the first NUL, without
// surrounding whitespace.
func TrimFrame(frame []byte) string {
	if n := bytes.IndexByte(frame, 0); n >= 0 {
		frame = frame[:n]
	}
	return strings.TrimSpace(string(frame))
}

// Parse decodes an inbound frame. Errors are *ProtocolError.
func Parse(frame []byte) (Command, error) {
	text := TrimFrame(frame)
	body := frame
	if n := bytes.IndexByte(frame, 0); n >= 0 {
		body = frame[:n]
	}
	// the terminator is counted whether the transport kept it or not
	if len(body)+1 > MaxFrameSize {
		return nil, &ProtocolError{Frame: text, Reason: fmt.Sprintf("frame exceeds %d bytes", MaxFrameSize)}
	}
	if text == "" {
		return nil, &ProtocolError{Frame: text, Reason: "empty frame"}
	}
	parse, payload, reason := parseFunc(parseLegacy), text, "invalid legacy command"
	for _, p := range parsers {
		if strings.HasPrefix(text, p.prefix) {
			parse, payload = p.parse, text[len(p.prefix):]
			reason = "invalid " + strings.TrimSuffix(p.prefix, ":") + " command"
			break
		}
	}
	cmd, err := parse(payload)
	if err != nil {
		return nil, &ProtocolError{Frame: text, Reason: reason, Err: err}
	}
	return cmd, nil
}

func parseNumber(s string) (float64, error) {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return val, nil
}

func parseConfig(payload string) (Command, error) {
	cmd := ConfigCommand{Omitted: OptGearRatio | OptPPR}
	for _, pair := range strings.Split(payload, ";") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		n := strings.IndexByte(pair, '=')
		if n < 0 {
			return nil, fmt.Errorf("%q is not key=value", pair)
		}
		key := strings.TrimSpace(pair[:n])
		val, err := parseNumber(pair[n+1:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case KeyWheelRadius:
			cmd.Geometry.WheelRadius = val
		case KeyWheelBase:
			cmd.Geometry.WheelBase = val
		case KeyGearRatio:
			cmd.Geometry.GearRatio = val
			cmd.Omitted &^= OptGearRatio
		case KeyPPR:
			cmd.Geometry.EncoderPPR = val
			cmd.Omitted &^= OptPPR
		default:
			return nil, fmt.Errorf("unknown key %q", key)
		}
	}
	return cmd, nil
}

func parseVelocity(payload string) (Command, error) {
	parts := strings.Split(payload, ",")
	if len(parts) > 2 {
		return nil, errors.New("expect v[,w]")
	}
	var cmd VelocityCommand
	var err error
	if cmd.V, err = parseNumber(parts[0]); err != nil {
		return nil, fmt.Errorf("v: %w", err)
	}
	if len(parts) > 1 {
		if cmd.W, err = parseNumber(parts[1]); err != nil {
			return nil, fmt.Errorf("w: %w", err)
		}
	}
	return cmd, nil
}

func parseReset(payload string) (Command, error) {
	if strings.TrimSpace(payload) != "" {
		return nil, fmt.Errorf("unexpected payload %q", payload)
	}
	return ResetCommand{}, nil
}

func parseFeedback(payload string) (Command, error) {
	payload = strings.TrimSpace(payload)
	switch {
	case payload == "on":
		return FeedbackCommand{Action: FeedbackOn}, nil
	case payload == "off":
		return FeedbackCommand{Action: FeedbackOff}, nil
	case strings.HasPrefix(payload, "interval="):
		ms, err := strconv.Atoi(strings.TrimPrefix(payload, "interval="))
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid interval %q", payload)
		}
		return FeedbackCommand{Action: FeedbackInterval, Interval: time.Duration(ms) * time.Millisecond}, nil
	}
	return nil, fmt.Errorf("expect on, off or interval=<ms>, got %q", payload)
}

func parseLegacy(payload string) (Command, error) {
	parts := strings.Split(payload, ";")
	if len(parts) > 2 {
		return nil, errors.New("expect dir1,speed1;dir2,speed2")
	}
	var cmd LegacyCommand
	var err error
	if cmd.Left, err = parseLegacyTarget(parts[0]); err != nil {
		return nil, fmt.Errorf("wheel 1: %w", err)
	}
	if len(parts) > 1 {
		if cmd.Right, err = parseLegacyTarget(parts[1]); err != nil {
			return nil, fmt.Errorf("wheel 2: %w", err)
		}
	}
	return cmd, nil
}

func parseLegacyTarget(s string) (drive.Target, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 2 {
		return drive.Target{}, fmt.Errorf("%q is not dir,speed", s)
	}
	dir, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || !drive.Direction(dir).Valid() {
		return drive.Target{}, fmt.Errorf("invalid direction %q", fields[0])
	}
	speed, err := parseNumber(fields[1])
	if err != nil {
		return drive.Target{}, err
	}
	if speed < 0 {
		return drive.Target{}, fmt.Errorf("negative speed %v", speed)
	}
	return drive.Target{Direction: drive.Direction(dir), Speed: speed}, nil
}
