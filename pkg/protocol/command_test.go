package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name   string
		frame  string
		expect Command
	}{
		{
			name:  "config",
			frame: "CFG:wheel_radius=0.05;wheel_base=0.2;gear_ratio=56;ppr=11\x00",
			expect: ConfigCommand{Geometry: kinematics.Geometry{
				WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11,
			}},
		},
		{
			name:  "config partial with trailing separator",
			frame: "CFG:wheel_base=0.2; wheel_radius = 0.03;",
			expect: ConfigCommand{
				Geometry: kinematics.Geometry{WheelRadius: 0.03, WheelBase: 0.2},
				Omitted:  OptGearRatio | OptPPR,
			},
		},
		{name: "velocity", frame: "VEL:0.5,0.2\x00", expect: VelocityCommand{V: 0.5, W: 0.2}},
		{name: "velocity default w", frame: "VEL:-0.25", expect: VelocityCommand{V: -0.25}},
		{name: "reset", frame: "RST:\x00", expect: ResetCommand{}},
		{name: "feedback on", frame: "FBK:on", expect: FeedbackCommand{Action: FeedbackOn}},
		{name: "feedback off", frame: "FBK:off", expect: FeedbackCommand{Action: FeedbackOff}},
		{
			name:   "feedback interval",
			frame:  "FBK:interval=50",
			expect: FeedbackCommand{Action: FeedbackInterval, Interval: 50 * time.Millisecond},
		},
		{
			name:  "legacy",
			frame: "1,2.0;2,1.5\x00",
			expect: LegacyCommand{
				Left:  drive.Target{Direction: drive.Forward, Speed: 2},
				Right: drive.Target{Direction: drive.Backward, Speed: 1.5},
			},
		},
		{
			name:  "legacy single wheel",
			frame: "2,0.3",
			expect: LegacyCommand{
				Left: drive.Target{Direction: drive.Backward, Speed: 0.3},
			},
		},
		{name: "legacy stop", frame: "0,0;0,0\r\n", expect: LegacyCommand{}},
		{name: "max size", frame: "VEL:1" + strings.Repeat(" ", MaxFrameSize-6) + "\x00", expect: VelocityCommand{V: 1}},
		{name: "max size without terminator", frame: "VEL:1" + strings.Repeat(" ", MaxFrameSize-6), expect: VelocityCommand{V: 1}},
		{
			name:   "stops at NUL",
			frame:  "VEL:1\x00garbage",
			expect: VelocityCommand{V: 1},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse([]byte(tc.frame))
			require.NoError(t, err)
			require.Equal(t, tc.expect, cmd)
		})
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name   string
		frame  string
		reason string
	}{
		{name: "empty", frame: "\x00", reason: "empty frame"},
		{name: "too long", frame: "VEL:" + strings.Repeat("1", MaxFrameSize), reason: "exceeds"},
		{name: "too long without terminator", frame: "VEL:" + strings.Repeat("1", MaxFrameSize-4), reason: "exceeds"},
		{name: "too long with terminator", frame: "VEL:" + strings.Repeat("1", MaxFrameSize-4) + "\x00", reason: "exceeds"},
		{name: "velocity not a number", frame: "VEL:abc", reason: "invalid VEL"},
		{name: "velocity NaN", frame: "VEL:NaN", reason: "invalid VEL"},
		{name: "velocity too many", frame: "VEL:1,2,3", reason: "invalid VEL"},
		{name: "velocity empty", frame: "VEL:", reason: "invalid VEL"},
		{name: "config unknown key", frame: "CFG:wheel_radius=0.05;color=1", reason: "invalid CFG"},
		{name: "config no value", frame: "CFG:wheel_radius", reason: "invalid CFG"},
		{name: "config bad value", frame: "CFG:wheel_radius=big", reason: "invalid CFG"},
		{name: "reset payload", frame: "RST:now", reason: "invalid RST"},
		{name: "feedback bad", frame: "FBK:sometimes", reason: "invalid FBK"},
		{name: "feedback zero interval", frame: "FBK:interval=0", reason: "invalid FBK"},
		{name: "legacy bad direction", frame: "3,1.0;1,1.0", reason: "invalid legacy"},
		{name: "legacy negative speed", frame: "1,-1.0;1,1.0", reason: "invalid legacy"},
		{name: "legacy three wheels", frame: "1,1;1,1;1,1", reason: "invalid legacy"},
		{name: "legacy garbage", frame: "hello", reason: "invalid legacy"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Parse([]byte(tc.frame))
			require.Nil(t, cmd)
			var protoErr *ProtocolError
			require.True(t, errors.As(err, &protoErr))
			require.Contains(t, protoErr.Reason, tc.reason)
		})
	}
}
