package hal

import (
	"fmt"
	"sort"
	"sync"
)

// WheelWiring describes how one wheel is wired to the board.
type WheelWiring struct {
	// BridgePins are the two H-bridge direction inputs.
	BridgePins [2]Pin `yaml:"bridge_pins"`
	PWMChannel int    `yaml:"pwm_channel"`
	EncoderPin Pin    `yaml:"encoder_pin"`
}

// Wiring describes both wheels.
type Wiring struct {
	Left  WheelWiring `yaml:"left"`
	Right WheelWiring `yaml:"right"`
}

// Board bundles the drivers of one controller board.
// Drivers needing a background loop also implement framework.Runnable.
type Board struct {
	Name string
	GPIO GPIO
	PWM  PWM
}

// OpenFunc opens a board with the given wiring.
type OpenFunc func(Wiring) (*Board, error)

var (
	driversLock sync.RWMutex
	drivers     = make(map[string]OpenFunc)
)

// Register registers a board driver, usually from init.
func Register(name string, open OpenFunc) {
	driversLock.Lock()
	defer driversLock.Unlock()
	if _, exists := drivers[name]; exists {
		panic("hal: driver registered twice: " + name)
	}
	drivers[name] = open
}

// Drivers lists registered driver names.
func Drivers() []string {
	driversLock.RLock()
	defer driversLock.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a board using a registered driver.
func Open(name string, wiring Wiring) (*Board, error) {
	driversLock.RLock()
	open := drivers[name]
	driversLock.RUnlock()
	if open == nil {
		return nil, fmt.Errorf("unknown hardware driver %q, available: %v", name, Drivers())
	}
	board, err := open(wiring)
	if err != nil {
		return nil, &HardwareInitError{Device: name, Unit: "board", Err: err}
	}
	if board.Name == "" {
		board.Name = name
	}
	return board, nil
}
