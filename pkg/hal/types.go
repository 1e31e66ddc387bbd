// Package hal defines the hardware collaborators the drive pipeline
// consumes: GPIO pins with edge interrupts and PWM channels.
package hal

import "fmt"

// Pin identifies a GPIO pin.
type Pin uint32

// Level is the logic level of a pin.
type Level uint8

// Logic levels.
const (
	Low  Level = 0
	High Level = 1
)

// PinMode configures a pin.
type PinMode int

// Pin modes.
const (
	ModeOutput PinMode = iota
	ModeInput
	ModeInputPullUp
	ModeInputPullDown
)

// EdgeMode selects which edges raise an interrupt.
type EdgeMode int

// Edge modes.
const (
	EdgeRising EdgeMode = iota
	EdgeFalling
	EdgeBoth
)

// IRQHandler is called from interrupt context when an edge is
// detected. It must not block.
type IRQHandler func(pin Pin)

// GPIO is the pin driver.
type GPIO interface {
	SetMode(pin Pin, mode PinMode) error
	Write(pin Pin, level Level) error
	Read(pin Pin) (Level, error)
	AttachIRQ(pin Pin, mode EdgeMode, handler IRQHandler) error
	EnableIRQ(pin Pin, enable bool) error
}

// PWM is the PWM device driver.
type PWM interface {
	// Set configures period and pulse width of a channel in nanoseconds.
	Set(channel int, periodNs, pulseNs uint32) error
	Enable(channel int) error
}

// HardwareInitError reports a device which failed to initialize.
// The affected channel stays disabled, the process continues.
type HardwareInitError struct {
	Device string
	// Unit is the pin or channel involved.
	Unit string
	Err  error
}

// Error implements error.
func (e *HardwareInitError) Error() string {
	return fmt.Sprintf("%s %s init failed: %v", e.Device, e.Unit, e.Err)
}

// Unwrap returns the underlying error.
func (e *HardwareInitError) Unwrap() error {
	return e.Err
}

// PinError creates HardwareInitError for a GPIO pin.
func PinError(pin Pin, err error) *HardwareInitError {
	return &HardwareInitError{Device: "gpio", Unit: fmt.Sprintf("pin %d", pin), Err: err}
}

// ChannelError creates HardwareInitError for a PWM channel.
func ChannelError(channel int, err error) *HardwareInitError {
	return &HardwareInitError{Device: "pwm", Unit: fmt.Sprintf("channel %d", channel), Err: err}
}
