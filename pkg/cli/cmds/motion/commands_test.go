package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/odometry"
	"github.com/robotalks/diffdrive/pkg/protocol"
)

func TestParseGeometry(t *testing.T) {
	g, err := ParseGeometry([]string{"0.05", "0.2"})
	require.NoError(t, err)
	require.Equal(t, kinematics.Geometry{WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11}, g)

	g, err = ParseGeometry([]string{"0.05", "0.2", "30", "13"})
	require.NoError(t, err)
	require.Equal(t, 30.0, g.GearRatio)
	require.Equal(t, 13.0, g.EncoderPPR)

	for _, args := range [][]string{{"0.05"}, {"x", "0.2"}, {"0.05", "0.2", "30"}, {"-1", "0.2"}} {
		_, err := ParseGeometry(args)
		require.Error(t, err, args)
	}
}

func TestParseFeedback(t *testing.T) {
	testCases := []struct {
		arg    string
		expect protocol.FeedbackCommand
		err    bool
	}{
		{arg: "on", expect: protocol.FeedbackCommand{Action: protocol.FeedbackOn}},
		{arg: "off", expect: protocol.FeedbackCommand{Action: protocol.FeedbackOff}},
		{arg: "50", expect: protocol.FeedbackCommand{Action: protocol.FeedbackInterval, Interval: 50 * time.Millisecond}},
		{arg: "0", err: true},
		{arg: "fast", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.arg, func(t *testing.T) {
			cmd, err := ParseFeedback(tc.arg)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, cmd)
		})
	}
}

func TestParseWheel(t *testing.T) {
	target, err := ParseWheel("2", "1.5")
	require.NoError(t, err)
	require.Equal(t, drive.Target{Direction: drive.Backward, Speed: 1.5}, target)
	for _, args := range [][2]string{{"3", "1"}, {"1", "-1"}, {"x", "1"}, {"1", "y"}} {
		_, err := ParseWheel(args[0], args[1])
		require.Error(t, err)
	}
}

func TestFormatFeedback(t *testing.T) {
	require.Equal(t, odometry.Pose{X: 1}.String(), FormatFeedback(protocol.OdometryFeedback{Pose: odometry.Pose{X: 1}}))
	require.Equal(t, "L forward 1.500 rev/s  R stop 0.000 rev/s", FormatFeedback(protocol.LegacyFeedback{
		Left: protocol.WheelFeedback{Direction: drive.Forward, SpeedMrs: 1500},
	}))
}

func TestFitModels(t *testing.T) {
	models, err := FitModels([]byte(`
left:
  forward:  [{speed: 1, duty: 0.3}, {speed: 2, duty: 0.5}, {speed: 3, duty: 0.7}]
  backward: [{speed: 1, duty: 0.25}, {speed: 3, duty: 0.65}]
right:
  forward:  [{speed: 0, duty: 0.1}, {speed: 2, duty: 0.6}]
  backward: [{speed: 1, duty: 0.3}, {speed: 2, duty: 0.4}]
`))
	require.NoError(t, err)
	require.InDelta(t, 0.2, models["left"].Forward.K, 1e-9)
	require.InDelta(t, 0.1, models["left"].Forward.B, 1e-9)
	require.InDelta(t, 0.25, models["right"].Forward.K, 1e-9)
	require.InDelta(t, 0.1, models["right"].Forward.B, 1e-9)

	_, err = FitModels([]byte(`
left:
  forward: [{speed: 1, duty: 0.3}]
`))
	require.ErrorIs(t, err, drive.ErrTooFewSamples)
}
