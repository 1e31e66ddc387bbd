package protocol

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/odometry"
)

type fakeWheels struct {
	left, right drive.Status
}

func (w *fakeWheels) WheelStatus() (drive.Status, drive.Status) {
	return w.left, w.right
}

type fakeFeedback struct {
	enabled  bool
	interval time.Duration
}

func (f *fakeFeedback) Enable(en bool) { f.enabled = en }

func (f *fakeFeedback) SetInterval(d time.Duration) time.Duration {
	f.interval = d
	return d
}

func newTestHandler() (*Handler, *fakeWheels) {
	geometry := kinematics.NewGeometryStore()
	wheels := &fakeWheels{}
	h := NewHandler(geometry, &drive.TargetStore{}, odometry.NewEstimator(geometry, nil), wheels)
	return h, wheels
}

const testConfigFrame = "CFG:wheel_radius=0.05;wheel_base=0.2;gear_ratio=56;ppr=11\x00"

func encode(t *testing.T, h *Handler) string {
	frame, err := h.Encode(nil)
	require.NoError(t, err)
	require.Equal(t, byte(0), frame[len(frame)-1])
	return string(frame[:len(frame)-1])
}

func TestHandlerConfigRejected(t *testing.T) {
	h, _ := newTestHandler()
	err := h.HandleFrame([]byte("CFG:wheel_radius=0;wheel_base=0.2;gear_ratio=56;ppr=11"))
	var cfgErr *kinematics.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "wheel_radius", cfgErr.Field)
	geometry, configured := h.Geometry.Get()
	require.False(t, configured)
	require.Equal(t, kinematics.DefaultGeometry, geometry)
	require.Equal(t, ModeLegacy, h.Mode())

	_, dropped := h.Stats()
	require.Equal(t, uint64(1), dropped)
}

func TestHandlerConfigOptionalKeys(t *testing.T) {
	prior := kinematics.Geometry{WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 30, EncoderPPR: 7}
	testCases := []struct {
		name   string
		frame  string
		field  string
		expect kinematics.Geometry
	}{
		{
			name:   "omitted keep current",
			frame:  "CFG:wheel_radius=0.04;wheel_base=0.3",
			expect: kinematics.Geometry{WheelRadius: 0.04, WheelBase: 0.3, GearRatio: 30, EncoderPPR: 7},
		},
		{
			name:   "given",
			frame:  "CFG:wheel_radius=0.04;wheel_base=0.3;ppr=13",
			expect: kinematics.Geometry{WheelRadius: 0.04, WheelBase: 0.3, GearRatio: 30, EncoderPPR: 13},
		},
		{name: "zero gear ratio", frame: "CFG:wheel_radius=0.04;wheel_base=0.3;gear_ratio=0", field: "gear_ratio", expect: prior},
		{name: "zero ppr", frame: "CFG:wheel_radius=0.04;wheel_base=0.3;gear_ratio=30;ppr=0", field: "ppr", expect: prior},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler()
			require.NoError(t, h.HandleFrame(FormatConfig(prior)))
			err := h.HandleFrame([]byte(tc.frame))
			if tc.field != "" {
				var cfgErr *kinematics.ConfigError
				require.True(t, errors.As(err, &cfgErr))
				require.Equal(t, tc.field, cfgErr.Field)
			} else {
				require.NoError(t, err)
			}
			geometry, configured := h.Geometry.Get()
			require.True(t, configured)
			require.Equal(t, tc.expect, geometry)
		})
	}
}

func TestHandlerVelocity(t *testing.T) {
	revs := func(speed float64) float64 { return speed / (2 * math.Pi * 0.05) }
	testCases := []struct {
		name        string
		frame       string
		left, right drive.Target
	}{
		{
			name:  "straight",
			frame: "VEL:0.5,0.0",
			left:  drive.Target{Direction: drive.Forward, Speed: revs(0.5)},
			right: drive.Target{Direction: drive.Forward, Speed: revs(0.5)},
		},
		{
			name:  "spin",
			frame: "VEL:0,1.0",
			left:  drive.Target{Direction: drive.Backward, Speed: revs(0.1)},
			right: drive.Target{Direction: drive.Forward, Speed: revs(0.1)},
		},
		{
			name:  "reverse without w",
			frame: "VEL:-0.2",
			left:  drive.Target{Direction: drive.Backward, Speed: revs(0.2)},
			right: drive.Target{Direction: drive.Backward, Speed: revs(0.2)},
		},
		{
			name:  "dead zone",
			frame: "VEL:0.0001,0",
			left:  drive.Target{Direction: drive.Stop},
			right: drive.Target{Direction: drive.Stop},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler()
			require.NoError(t, h.HandleFrame([]byte(testConfigFrame)))
			require.NoError(t, h.HandleFrame([]byte(tc.frame)))
			left, right, _ := h.Targets.Pair()
			require.Equal(t, tc.left.Direction, left.Direction)
			require.InDelta(t, tc.left.Speed, left.Speed, 1e-9)
			require.Equal(t, tc.right.Direction, right.Direction)
			require.InDelta(t, tc.right.Speed, right.Speed, 1e-9)
		})
	}
}

func TestHandlerVelocityRequiresConfig(t *testing.T) {
	h, _ := newTestHandler()
	err := h.HandleFrame([]byte("VEL:0.5"))
	var cfgErr *kinematics.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	_, _, updates := h.Targets.Pair()
	require.Zero(t, updates)
	require.Equal(t, ModeLegacy, h.Mode())
}

func TestHandlerBadVelocityKeepsTargets(t *testing.T) {
	h, _ := newTestHandler()
	require.NoError(t, h.HandleFrame([]byte(testConfigFrame)))
	require.NoError(t, h.HandleFrame([]byte("1,1.0;1,1.0")))
	left, right, updates := h.Targets.Pair()

	err := h.HandleFrame([]byte("VEL:abc"))
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	require.Equal(t, "VEL:abc", protoErr.Frame)

	l2, r2, u2 := h.Targets.Pair()
	require.Equal(t, left, l2)
	require.Equal(t, right, r2)
	require.Equal(t, updates, u2)
}

func TestHandlerStickyMode(t *testing.T) {
	h, wheels := newTestHandler()
	wheels.left = drive.Status{Direction: drive.Forward, Measured: 2.0}
	wheels.right = drive.Status{Direction: drive.Backward, Measured: 1.2346}
	require.Equal(t, "1,2000;2,1235", encode(t, h))

	require.NoError(t, h.HandleFrame([]byte("1,1.0;1,1.0")))
	require.Equal(t, ModeLegacy, h.Mode())

	require.NoError(t, h.HandleFrame([]byte(testConfigFrame)))
	require.Equal(t, ModeOdometry, h.Mode())
	require.True(t, strings.HasPrefix(encode(t, h), PrefixOdometry))

	require.NoError(t, h.HandleFrame([]byte("0,0;0,0")))
	require.Equal(t, ModeOdometry, h.Mode())
	require.True(t, strings.HasPrefix(encode(t, h), PrefixOdometry))

	require.NoError(t, h.HandleFrame([]byte("VEL:0.1")))
	require.Equal(t, ModeOdometry, h.Mode())
}

func TestHandlerReset(t *testing.T) {
	h, _ := newTestHandler()
	require.NoError(t, h.HandleFrame([]byte(testConfigFrame)))
	require.True(t, h.Odometry.Update(1, 1, 1))
	require.NotZero(t, h.Odometry.State().X)
	require.NoError(t, h.HandleFrame([]byte("RST:")))
	p := h.Odometry.State()
	require.Zero(t, p.X)
	require.Zero(t, p.Y)
	require.Zero(t, p.Theta)
}

func TestHandlerFeedbackControl(t *testing.T) {
	h, _ := newTestHandler()
	require.Equal(t, ErrNoFeedbackControl, h.HandleFrame([]byte("FBK:on")))

	fb := &fakeFeedback{}
	h.Feedback = fb
	require.NoError(t, h.HandleFrame([]byte("FBK:on")))
	require.True(t, fb.enabled)
	require.NoError(t, h.HandleFrame([]byte("FBK:interval=50")))
	require.Equal(t, 50*time.Millisecond, fb.interval)
	require.NoError(t, h.HandleFrame([]byte("FBK:off")))
	require.False(t, fb.enabled)
}
