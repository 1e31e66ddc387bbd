// Package sim provides a simulated two-wheel motor board. PWM duty and
// H-bridge pins drive a first-order wheel model which emits encoder edges
// through the registered GPIO interrupts.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robotalks/diffdrive/pkg/hal"
)

// DriverName is the name registered with hal.
const DriverName = "sim"

// Config defines the wheel model.
type Config struct {
	// PulsesPerRev is encoder pulses per output wheel revolution.
	PulsesPerRev float64
	// Gain is the steady state wheel speed (rev/s) per unit of duty
	// above DeadBand.
	Gain     float64
	DeadBand float64
	// TimeConstant of the speed response when driven or coasting.
	TimeConstant time.Duration
	// Step is the simulation step when running in background.
	Step time.Duration
}

// DefaultConfig matches a 56:1 gear motor with an 11 PPR hall encoder.
var DefaultConfig = Config{
	PulsesPerRev: 56 * 11,
	Gain:         3.6,
	DeadBand:     0.03,
	TimeConstant: 50 * time.Millisecond,
	Step:         time.Millisecond,
}

type pinState struct {
	mode    hal.PinMode
	level   hal.Level
	edge    hal.EdgeMode
	handler hal.IRQHandler
	irqOn   bool
}

type channelState struct {
	periodNs uint32
	pulseNs  uint32
	enabled  bool
}

type wheel struct {
	wiring hal.WheelWiring
	speed  float64
	phase  float64
}

// Board implements hal.GPIO and hal.PWM.
type Board struct {
	Config Config

	lock     sync.Mutex
	pins     map[hal.Pin]*pinState
	channels map[int]*channelState
	wheels   [2]*wheel
}

// New creates a simulated board.
func New(wiring hal.Wiring, conf Config) *Board {
	return &Board{
		Config:   conf,
		pins:     make(map[hal.Pin]*pinState),
		channels: make(map[int]*channelState),
		wheels: [2]*wheel{
			{wiring: wiring.Left},
			{wiring: wiring.Right},
		},
	}
}

func (b *Board) pin(pin hal.Pin) *pinState {
	st := b.pins[pin]
	if st == nil {
		st = &pinState{}
		b.pins[pin] = st
	}
	return st
}

// SetMode implements hal.GPIO.
func (b *Board) SetMode(pin hal.Pin, mode hal.PinMode) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	st := b.pin(pin)
	st.mode = mode
	if mode == hal.ModeInputPullUp {
		st.level = hal.High
	}
	return nil
}

// Write implements hal.GPIO.
func (b *Board) Write(pin hal.Pin, level hal.Level) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	st := b.pin(pin)
	if st.mode != hal.ModeOutput {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	st.level = level
	return nil
}

// Read implements hal.GPIO.
func (b *Board) Read(pin hal.Pin) (hal.Level, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.pin(pin).level, nil
}

// AttachIRQ implements hal.GPIO.
func (b *Board) AttachIRQ(pin hal.Pin, mode hal.EdgeMode, handler hal.IRQHandler) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	st := b.pin(pin)
	st.edge, st.handler = mode, handler
	return nil
}

// EnableIRQ implements hal.GPIO.
func (b *Board) EnableIRQ(pin hal.Pin, enable bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	st := b.pin(pin)
	if st.handler == nil {
		return fmt.Errorf("no handler attached to pin %d", pin)
	}
	st.irqOn = enable
	return nil
}

// Set implements hal.PWM.
func (b *Board) Set(channel int, periodNs, pulseNs uint32) error {
	if pulseNs > periodNs {
		return fmt.Errorf("pulse %dns exceeds period %dns", pulseNs, periodNs)
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	ch := b.channels[channel]
	if ch == nil {
		ch = &channelState{}
		b.channels[channel] = ch
	}
	ch.periodNs, ch.pulseNs = periodNs, pulseNs
	return nil
}

// Enable implements hal.PWM.
func (b *Board) Enable(channel int) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	ch := b.channels[channel]
	if ch == nil {
		return fmt.Errorf("channel %d not configured", channel)
	}
	ch.enabled = true
	return nil
}

// WheelSpeed returns the simulated signed speed (rev/s) of a wheel,
// 0 for left and 1 for right.
func (b *Board) WheelSpeed(index int) float64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.wheels[index].speed
}

// Run implements framework.Runnable.
func (b *Board) Run(ctx context.Context) error {
	step := b.Config.Step
	if step <= 0 {
		step = time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b.Advance(now.Sub(last))
			last = now
		}
	}
}

// Advance moves the model forward by dt and fires encoder edges.
func (b *Board) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	for _, w := range b.wheels {
		pulses := b.advanceWheel(w, dt.Seconds())
		for i := 0; i < pulses; i++ {
			b.edge(w.wiring.EncoderPin, hal.High)
			b.edge(w.wiring.EncoderPin, hal.Low)
		}
	}
}

func (b *Board) advanceWheel(w *wheel, dt float64) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	var target float64
	tau := b.Config.TimeConstant.Seconds()
	p0, p1 := b.pin(w.wiring.BridgePins[0]).level, b.pin(w.wiring.BridgePins[1]).level
	switch {
	case p0 == hal.High && p1 == hal.High:
		tau /= 5
	case p0 != p1:
		target = b.steadySpeed(w.wiring.PWMChannel)
		if p1 == hal.High {
			target = -target
		}
	}
	if tau > 0 {
		w.speed += (target - w.speed) * (1 - math.Exp(-dt/tau))
	} else {
		w.speed = target
	}
	w.phase += math.Abs(w.speed) * b.Config.PulsesPerRev * dt
	pulses := math.Floor(w.phase)
	w.phase -= pulses
	return int(pulses)
}

func (b *Board) steadySpeed(channel int) float64 {
	ch := b.channels[channel]
	if ch == nil || !ch.enabled || ch.periodNs == 0 {
		return 0
	}
	duty := float64(ch.pulseNs) / float64(ch.periodNs)
	if duty <= b.Config.DeadBand {
		return 0
	}
	return (duty - b.Config.DeadBand) * b.Config.Gain
}

func (b *Board) edge(pin hal.Pin, level hal.Level) {
	b.lock.Lock()
	st := b.pin(pin)
	st.level = level
	var handler hal.IRQHandler
	if st.irqOn && st.handler != nil {
		switch st.edge {
		case hal.EdgeBoth:
			handler = st.handler
		case hal.EdgeRising:
			if level == hal.High {
				handler = st.handler
			}
		case hal.EdgeFalling:
			if level == hal.Low {
				handler = st.handler
			}
		}
	}
	b.lock.Unlock()
	if handler != nil {
		handler(pin)
	}
}

func init() {
	hal.Register(DriverName, func(wiring hal.Wiring) (*hal.Board, error) {
		b := New(wiring, DefaultConfig)
		return &hal.Board{Name: DriverName, GPIO: b, PWM: b}, nil
	})
}
