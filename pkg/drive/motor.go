package drive

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/hal"
)

// DefaultPWMPeriod is the PWM period in nanoseconds (10kHz).
const DefaultPWMPeriod uint32 = 100000

// StopMode selects how the bridge stops a wheel.
type StopMode int

// Stop modes.
const (
	// Coast drives both bridge inputs low, the wheel spins down freely.
	Coast StopMode = iota
	// Brake drives both inputs high, shorting the motor.
	Brake
)

// ErrMotorDisabled is returned when driving a motor whose hardware
// failed to initialize.
var ErrMotorDisabled = errors.New("motor disabled")

// Actuator drives a wheel.
type Actuator interface {
	Drive(dir Direction, duty float64) error
	Halt(mode StopMode) error
}

// Motor drives a DC motor through an H-bridge: two direction pins and
// one PWM channel for the enable input.
type Motor struct {
	Name     string
	GPIO     hal.GPIO
	PWM      hal.PWM
	Pins     [2]hal.Pin
	Channel  int
	PeriodNs uint32

	ready bool
}

// NewMotor creates a Motor from the wiring of a wheel.
func NewMotor(name string, board *hal.Board, wiring hal.WheelWiring, periodNs uint32) *Motor {
	if periodNs == 0 {
		periodNs = DefaultPWMPeriod
	}
	return &Motor{
		Name:     name,
		GPIO:     board.GPIO,
		PWM:      board.PWM,
		Pins:     wiring.BridgePins,
		Channel:  wiring.PWMChannel,
		PeriodNs: periodNs,
	}
}

// Init configures pins and PWM, leaving the motor coasting.
// On failure the motor stays disabled.
func (m *Motor) Init() error {
	m.ready = false
	for _, pin := range m.Pins {
		if err := m.GPIO.SetMode(pin, hal.ModeOutput); err != nil {
			return hal.PinError(pin, err)
		}
		if err := m.GPIO.Write(pin, hal.Low); err != nil {
			return hal.PinError(pin, err)
		}
	}
	if err := m.PWM.Set(m.Channel, m.PeriodNs, 0); err != nil {
		return hal.ChannelError(m.Channel, err)
	}
	if err := m.PWM.Enable(m.Channel); err != nil {
		return hal.ChannelError(m.Channel, err)
	}
	m.ready = true
	glog.Infof("motor %s ready: pins %v, pwm channel %d", m.Name, m.Pins, m.Channel)
	return nil
}

// Ready tells if Init succeeded.
func (m *Motor) Ready() bool {
	return m.ready
}

// Drive implements Actuator. duty is clamped to [0, 1].
func (m *Motor) Drive(dir Direction, duty float64) error {
	if !m.ready {
		return ErrMotorDisabled
	}
	var p0, p1 hal.Level
	switch dir {
	case Forward:
		p0, p1 = hal.High, hal.Low
	case Backward:
		p0, p1 = hal.Low, hal.High
	case Stop:
		return m.Halt(Coast)
	default:
		return fmt.Errorf("motor %s: invalid direction %v", m.Name, dir)
	}
	if err := m.setPins(p0, p1); err != nil {
		return err
	}
	return m.setDuty(clamp(duty, 0, 1))
}

// Halt implements Actuator.
func (m *Motor) Halt(mode StopMode) error {
	if !m.ready {
		return ErrMotorDisabled
	}
	level := hal.Low
	if mode == Brake {
		level = hal.High
	}
	if err := m.setDuty(0); err != nil {
		return err
	}
	return m.setPins(level, level)
}

func (m *Motor) setPins(p0, p1 hal.Level) error {
	if err := m.GPIO.Write(m.Pins[0], p0); err != nil {
		return fmt.Errorf("motor %s pin %d: %w", m.Name, m.Pins[0], err)
	}
	if err := m.GPIO.Write(m.Pins[1], p1); err != nil {
		return fmt.Errorf("motor %s pin %d: %w", m.Name, m.Pins[1], err)
	}
	return nil
}

func (m *Motor) setDuty(duty float64) error {
	pulse := uint32(duty * float64(m.PeriodNs))
	if err := m.PWM.Set(m.Channel, m.PeriodNs, pulse); err != nil {
		return fmt.Errorf("motor %s pwm %d: %w", m.Name, m.Channel, err)
	}
	return nil
}
