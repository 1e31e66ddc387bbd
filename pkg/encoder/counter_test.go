package encoder

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/diffdrive/pkg/hal"
)

func TestPulseCounterDebounce(t *testing.T) {
	testCases := []struct {
		name   string
		edges  []hal.Level
		expect uint32
	}{
		{name: "rising falling", edges: []hal.Level{hal.High, hal.Low}, expect: 1},
		{name: "falling only", edges: []hal.Level{hal.Low}, expect: 0},
		{name: "extra falling", edges: []hal.Level{hal.High, hal.Low, hal.Low}, expect: 1},
		{name: "rising only", edges: []hal.Level{hal.High, hal.High}, expect: 0},
		{name: "chatter", edges: []hal.Level{hal.High, hal.High, hal.Low, hal.High, hal.Low}, expect: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var c PulseCounter
			for _, level := range tc.edges {
				c.OnEdge(level)
			}
			require.Equal(t, tc.expect, c.Count())
		})
	}
}

func TestPulseCounterDelta(t *testing.T) {
	var c PulseCounter
	for i := 0; i < 3; i++ {
		c.OnEdge(hal.High)
		c.OnEdge(hal.Low)
	}
	require.Equal(t, uint32(3), c.GetAndResetDelta())
	require.Equal(t, uint32(0), c.GetAndResetDelta())
	require.Equal(t, uint32(0), c.GetAndResetDelta())
}

func TestPulseCounterWraparound(t *testing.T) {
	var c PulseCounter
	c.count.Store(4294967294)
	require.Equal(t, uint32(4294967294), c.GetAndResetDelta())
	c.count.Store(2)
	require.Equal(t, uint32(4), c.GetAndResetDelta())
}

func TestPulseCounterReset(t *testing.T) {
	var c PulseCounter
	c.OnEdge(hal.High)
	c.OnEdge(hal.Low)
	c.OnEdge(hal.High)
	c.Reset()
	require.Zero(t, c.Count())
	require.Zero(t, c.GetAndResetDelta())
	c.OnEdge(hal.Low)
	require.Zero(t, c.Count(), "rising seen before reset is cleared")
}

func TestPulseCounterConcurrent(t *testing.T) {
	testCases := []struct {
		name   string
		pulses int
		resets bool
	}{
		{name: "delta", pulses: 100000},
		{name: "delta with resets", pulses: 100000, resets: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var c PulseCounter
			var wg sync.WaitGroup
			done := make(chan struct{})
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(done)
				for n := 0; n < tc.pulses; n++ {
					c.OnEdge(hal.High)
					c.OnEdge(hal.Low)
				}
			}()
			if tc.resets {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						select {
						case <-done:
							return
						default:
							c.Reset()
						}
					}
				}()
			}
			var sum uint64
			for running := true; running; {
				select {
				case <-done:
					running = false
				default:
				}
				delta := c.GetAndResetDelta()
				require.LessOrEqual(t, delta, uint32(tc.pulses))
				sum += uint64(delta)
			}
			wg.Wait()
			sum += uint64(c.GetAndResetDelta())
			if tc.resets {
				require.LessOrEqual(t, sum, uint64(tc.pulses))
				return
			}
			require.Equal(t, uint64(tc.pulses), sum)
			require.Equal(t, uint32(tc.pulses), c.Count())
		})
	}
}

type fakeGPIO struct {
	level   hal.Level
	handler hal.IRQHandler
	failOn  string
}

func (g *fakeGPIO) fail(op string) error {
	if g.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (g *fakeGPIO) SetMode(hal.Pin, hal.PinMode) error    { return g.fail("mode") }
func (g *fakeGPIO) Write(hal.Pin, hal.Level) error        { return nil }
func (g *fakeGPIO) Read(hal.Pin) (hal.Level, error)       { return g.level, nil }
func (g *fakeGPIO) EnableIRQ(hal.Pin, bool) error         { return g.fail("enable") }
func (g *fakeGPIO) AttachIRQ(_ hal.Pin, _ hal.EdgeMode, h hal.IRQHandler) error {
	g.handler = h
	return g.fail("attach")
}

func (g *fakeGPIO) edge(level hal.Level) {
	g.level = level
	g.handler(7)
}

func TestAttach(t *testing.T) {
	g := &fakeGPIO{}
	var c PulseCounter
	require.NoError(t, Attach(g, 7, &c))
	g.edge(hal.High)
	g.edge(hal.Low)
	g.edge(hal.Low)
	require.Equal(t, uint32(1), c.Count())

	for _, op := range []string{"mode", "attach", "enable"} {
		t.Run(op, func(t *testing.T) {
			err := Attach(&fakeGPIO{failOn: op}, 7, &PulseCounter{})
			var hwErr *hal.HardwareInitError
			require.True(t, errors.As(err, &hwErr))
			require.Equal(t, "pin 7", hwErr.Unit)
		})
	}
}
