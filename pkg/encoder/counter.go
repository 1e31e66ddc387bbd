// Package encoder counts hall encoder pulses from GPIO edge interrupts.
//
// Counting is unsigned and single phase: a pulse is a rising edge
// followed by a falling edge. Direction is not sensed by the encoder,
// it is whatever the wheel was driven in.
package encoder

import (
	"sync/atomic"

	"github.com/robotalks/diffdrive/pkg/hal"
)

// PulseCounter is a debounced pulse accumulator for one wheel.
//
// OnEdge is the only producer and runs in interrupt context.
// GetAndResetDelta is the only consumer. Both are lock free.
// The raw count only grows, Reset moves the reference points instead.
type PulseCounter struct {
	count     atomic.Uint32
	hasRising atomic.Bool
	last      atomic.Uint32
	base      atomic.Uint32
}

// OnEdge feeds a sampled edge level. A falling edge counts one pulse
// only when a rising edge was seen before it, isolated falling edges
// are dropped.
func (c *PulseCounter) OnEdge(level hal.Level) {
	if level != hal.Low {
		c.hasRising.Store(true)
		return
	}
	if c.hasRising.CompareAndSwap(true, false) {
		c.count.Add(1)
	}
}

// Count returns the pulses counted since the last Reset.
func (c *PulseCounter) Count() uint32 {
	return c.count.Load() - c.base.Load()
}

// Reset zeroes Count, clears the debounce state and drops pulses not
// yet returned by GetAndResetDelta. It's safe against a concurrent
// consumer: the delta snapshot only moves forward.
func (c *PulseCounter) Reset() {
	c.hasRising.Store(false)
	for {
		last, now := c.last.Load(), c.count.Load()
		if c.last.CompareAndSwap(last, now) {
			c.base.Store(now)
			return
		}
	}
}

// GetAndResetDelta returns pulses counted since the previous call.
// The subtraction is unsigned so it stays correct across wraparound.
func (c *PulseCounter) GetAndResetDelta() uint32 {
	for {
		last, now := c.last.Load(), c.count.Load()
		if c.last.CompareAndSwap(last, now) {
			return now - last
		}
	}
}

// Attach wires counter to an encoder pin: pulled-up input with an
// interrupt on both edges.
func Attach(gpio hal.GPIO, pin hal.Pin, counter *PulseCounter) error {
	if err := gpio.SetMode(pin, hal.ModeInputPullUp); err != nil {
		return hal.PinError(pin, err)
	}
	err := gpio.AttachIRQ(pin, hal.EdgeBoth, func(p hal.Pin) {
		// a read failure here can't be reported, the edge is dropped
		if level, err := gpio.Read(p); err == nil {
			counter.OnEdge(level)
		}
	})
	if err != nil {
		return hal.PinError(pin, err)
	}
	if err := gpio.EnableIRQ(pin, true); err != nil {
		return hal.PinError(pin, err)
	}
	return nil
}
