package odometry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
)

var testGeometry = kinematics.Geometry{WheelRadius: 0.05, WheelBase: 0.2, GearRatio: 56, EncoderPPR: 11}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestEstimator(t *testing.T, configure bool) (*Estimator, *fakeClock) {
	clock := &fakeClock{t: time.Unix(500, 0)}
	store := kinematics.NewGeometryStore()
	if configure {
		_, err := store.Configure(testGeometry)
		require.NoError(t, err)
	}
	return NewEstimator(store, clock.now), clock
}

func TestEstimatorUpdate(t *testing.T) {
	testCases := []struct {
		name        string
		from        Pose
		left, right float64
		dt          float64
		expect      Pose
	}{
		{
			name: "straight",
			left: 1, right: 1, dt: 1,
			expect: Pose{X: 1, V: 1},
		},
		{
			name: "straight along heading",
			from: Pose{Theta: math.Pi / 2},
			left: 0.5, right: 0.5, dt: 2,
			expect: Pose{Y: 1, Theta: math.Pi / 2, V: 0.5},
		},
		{
			name: "spin in place",
			left: -0.1, right: 0.1, dt: 0.5,
			expect: Pose{Theta: 0.5, W: 1},
		},
		{
			name: "arc uses midpoint heading",
			left: 0.4, right: 0.6, dt: 1,
			expect: Pose{X: 0.5 * math.Cos(0.5), Y: 0.5 * math.Sin(0.5), Theta: 1, V: 0.5, W: 1},
		},
		{
			name: "heading wraps",
			from: Pose{Theta: 3},
			left: -0.1, right: 0.1, dt: 1,
			expect: Pose{Theta: 4 - 2*math.Pi, W: 1},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, clock := newTestEstimator(t, true)
			e.pose = tc.from
			clock.t = clock.t.Add(1234 * time.Millisecond)
			require.True(t, e.Update(tc.left, tc.right, tc.dt))
			p := e.State()
			require.InDelta(t, tc.expect.X, p.X, 1e-9)
			require.InDelta(t, tc.expect.Y, p.Y, 1e-9)
			require.InDelta(t, tc.expect.Theta, p.Theta, 1e-9)
			require.InDelta(t, tc.expect.V, p.V, 1e-9)
			require.InDelta(t, tc.expect.W, p.W, 1e-9)
			require.Equal(t, int64(1234), p.TimestampMs)
		})
	}
}

func TestEstimatorNoop(t *testing.T) {
	e, _ := newTestEstimator(t, false)
	require.False(t, e.Update(1, 1, 1), "not configured")
	require.Equal(t, Pose{}, e.State())

	e, _ = newTestEstimator(t, true)
	require.False(t, e.Update(1, 1, 0))
	require.False(t, e.Update(1, 1, -1))
	require.Equal(t, Pose{}, e.State())
}

func TestEstimatorReset(t *testing.T) {
	e, clock := newTestEstimator(t, true)
	e.Update(1, 1, 1)
	clock.t = clock.t.Add(2 * time.Second)
	e.Reset()
	require.Equal(t, Pose{TimestampMs: 2000}, e.State())
}

func TestEstimatorConcurrentSnapshot(t *testing.T) {
	e, _ := newTestEstimator(t, true)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			e.Update(1, 1, 0.01)
		}
	}()
	for i := 0; i < 1000; i++ {
		p := e.State()
		// straight motion: x and v always move together
		if p.X > 0 {
			require.Equal(t, 1.0, p.V)
		}
		require.Zero(t, p.Y)
	}
	wg.Wait()
	require.InDelta(t, 10, e.State().X, 1e-6)
}

type fixedSample float64

func (s fixedSample) Sample() drive.WheelSpeedSample {
	return drive.WheelSpeedSample{Speed: float64(s)}
}

type fixedStatus struct {
	dir drive.Direction
}

func (s *fixedStatus) Status() drive.Status {
	return drive.Status{Direction: s.dir}
}

func TestIntegrator(t *testing.T) {
	e, _ := newTestEstimator(t, true)
	revs := 1 / (2 * math.Pi * testGeometry.WheelRadius)
	left, right := &fixedStatus{dir: drive.Forward}, &fixedStatus{dir: drive.Forward}
	i := &Integrator{
		Estimator: e,
		Wheels: [2]*WheelFeed{
			{Speed: fixedSample(revs), Status: left},
			{Speed: fixedSample(revs), Status: right},
		},
	}
	t0 := time.Unix(10, 0)
	i.Step(t0)
	require.Equal(t, Pose{}, e.State(), "first step sets time base")
	i.Step(t0.Add(500 * time.Millisecond))
	require.InDelta(t, 0.5, e.State().X, 1e-9)

	// coasting after stop keeps the last driven direction
	left.dir, right.dir = drive.Stop, drive.Stop
	i.Step(t0.Add(time.Second))
	require.InDelta(t, 1.0, e.State().X, 1e-9)

	left.dir, right.dir = drive.Backward, drive.Backward
	i.Step(t0.Add(2 * time.Second))
	require.InDelta(t, 0, e.State().X, 1e-9)
}
