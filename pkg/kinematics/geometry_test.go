package kinematics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyToWheels(t *testing.T) {
	g := Geometry{WheelRadius: 0.05, WheelBase: 0.2}
	testCases := []struct {
		name        string
		v, w        float64
		left, right float64
	}{
		{name: "straight", v: 0.5, w: 0, left: 0.5, right: 0.5},
		{name: "spin", v: 0, w: 1.0, left: -0.1, right: 0.1},
		{name: "arc", v: 0.5, w: 0.2, left: 0.48, right: 0.52},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			left, right := g.BodyToWheels(tc.v, tc.w)
			require.InDelta(t, tc.left, left, 1e-9)
			require.InDelta(t, tc.right, right, 1e-9)
			v, w := g.WheelsToBody(left, right)
			require.InDelta(t, tc.v, v, 1e-9)
			require.InDelta(t, tc.w, w, 1e-9)
		})
	}
}

func TestLinearRevs(t *testing.T) {
	g := Geometry{WheelRadius: 0.05}
	require.InDelta(t, 1/(0.1*math.Pi), g.LinearToRevs(1), 1e-9)
	require.InDelta(t, 1, g.RevsToLinear(g.LinearToRevs(1)), 1e-9)
	require.Equal(t, float64(616), DefaultGeometry.PulsesPerWheelRev())
}

func TestGeometryStoreConfigure(t *testing.T) {
	testCases := []struct {
		name   string
		geom   Geometry
		field  string
		expect Geometry
	}{
		{
			name:   "valid with defaults",
			geom:   Geometry{WheelRadius: 0.05, WheelBase: 0.2},
			expect: Geometry{WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11},
		},
		{
			name:   "valid full",
			geom:   Geometry{WheelRadius: 0.03, WheelBase: 0.15, GearRatio: 30, EncoderPPR: 7},
			expect: Geometry{WheelRadius: 0.03, WheelBase: 0.15, GearRatio: 30, EncoderPPR: 7},
		},
		{name: "zero radius", geom: Geometry{WheelBase: 0.2}, field: "wheel_radius"},
		{name: "negative base", geom: Geometry{WheelRadius: 0.05, WheelBase: -1}, field: "wheel_base"},
		{name: "NaN radius", geom: Geometry{WheelRadius: math.NaN(), WheelBase: 0.2}, field: "wheel_radius"},
		{name: "negative ppr", geom: Geometry{WheelRadius: 0.05, WheelBase: 0.2, EncoderPPR: -1}, field: "ppr"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewGeometryStore()
			applied, err := s.Configure(tc.geom)
			current, configured := s.Get()
			if tc.field != "" {
				var cfgErr *ConfigError
				require.True(t, errors.As(err, &cfgErr))
				require.Equal(t, tc.field, cfgErr.Field)
				require.False(t, configured)
				require.Equal(t, DefaultGeometry, current)
				return
			}
			require.NoError(t, err)
			require.True(t, configured)
			require.Equal(t, tc.expect, applied)
			require.Equal(t, tc.expect, current)
		})
	}
}

func TestGeometryStoreKeepsPrior(t *testing.T) {
	s := NewGeometryStore()
	good := Geometry{WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11}
	_, err := s.Configure(good)
	require.NoError(t, err)
	_, err = s.Configure(Geometry{WheelRadius: 0, WheelBase: 0.2})
	require.Error(t, err)
	current, configured := s.Get()
	require.True(t, configured)
	require.Equal(t, good, current)
}

func TestNormalizeAngle(t *testing.T) {
	testCases := []struct {
		in, out float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{1.5 * math.Pi, -0.5 * math.Pi},
		{-1.5 * math.Pi, 0.5 * math.Pi},
		{2 * math.Pi, 0},
		{-7.25 * math.Pi, 0.75 * math.Pi},
	}
	for _, tc := range testCases {
		out := NormalizeAngle(tc.in)
		require.InDelta(t, tc.out, out, 1e-9, "normalize %v", tc.in)
		require.True(t, out > -math.Pi && out <= math.Pi)
	}
}
