package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/odometry"
	"github.com/robotalks/diffdrive/pkg/transport"
)

func TestClientCommands(t *testing.T) {
	host, device := transport.NewPipe("motor")
	var frames []string
	device.OnReceive(func(frame []byte) { frames = append(frames, string(frame)) })
	c := NewClient(host)

	require.NoError(t, c.Configure(kinematics.Geometry{WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11}))
	require.NoError(t, c.SetVelocity(0.3, 0))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Reset())
	require.NoError(t, c.SetWheels(drive.Target{Direction: drive.Forward, Speed: 1}, drive.Target{}))
	require.NoError(t, c.SetFeedback(FeedbackCommand{Action: FeedbackOff}))
	require.Equal(t, []string{
		"CFG:wheel_radius=0.0500;wheel_base=0.2000;gear_ratio=56.0;ppr=11\x00",
		"VEL:0.300,0.000\x00",
		"VEL:0.000,0.000\x00",
		"RST:\x00",
		"1,1.000;0,0.000\x00",
		"FBK:off\x00",
	}, frames)

	err := c.Configure(kinematics.Geometry{WheelRadius: -1, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11})
	var confErr *kinematics.ConfigError
	require.True(t, errors.As(err, &confErr))
	require.Len(t, frames, 6)
}

func TestClientFeedback(t *testing.T) {
	c := NewClient(nil)
	require.Nil(t, c.Latest())

	var got []Feedback
	unwatch := c.Watch(func(fb Feedback) { got = append(got, fb) })
	c.HandleFrame([]byte("ODM:0.100,0.000,0.000,0.50,0.00,40\x00"))
	c.HandleFrame([]byte("garbage"))
	require.Len(t, got, 1)
	require.Equal(t, OdometryFeedback{Pose: odometry.Pose{X: 0.1, V: 0.5, TimestampMs: 40}}, got[0])
	require.Equal(t, uint64(1), c.Invalid())
	require.Equal(t, got[0], c.Latest().Feedback)

	unwatch()
	c.HandleFrame([]byte("1,100;0,0\x00"))
	require.Len(t, got, 1)
	require.IsType(t, LegacyFeedback{}, c.Latest().Feedback)
}
