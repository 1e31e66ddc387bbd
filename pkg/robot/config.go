// Package robot assembles the motor controller from its parts.
package robot

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/feedback"
	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/hal"
	"github.com/robotalks/diffdrive/pkg/kinematics"
)

// Models are the feedforward models of both wheels.
type Models struct {
	Left  drive.FeedforwardModel `yaml:"left"`
	Right drive.FeedforwardModel `yaml:"right"`
}

// Config is the controller configuration.
type Config struct {
	// ID identifies the robot, defaults to the machine ID.
	ID       string `yaml:"id"`
	Hardware string `yaml:"hardware"`

	ControlPeriod    time.Duration `yaml:"control_period"`
	FeedbackInterval time.Duration `yaml:"feedback_interval"`
	FeedbackDisabled bool          `yaml:"feedback_disabled"`

	// FeedbackMode is the speed loop correction: off, pid or bangbang.
	FeedbackMode string    `yaml:"feedback_mode"`
	PID          drive.PID `yaml:"pid"`
	Models       Models    `yaml:"models"`
	BrakeOnStop  bool      `yaml:"brake_on_stop"`
	StopOnUnbind bool      `yaml:"stop_on_unbind"`

	PWMPeriodNs uint32     `yaml:"pwm_period_ns"`
	Wiring      hal.Wiring `yaml:"wiring"`

	// Geometry is applied at start when set, otherwise the host must
	// send CFG before VEL.
	Geometry *kinematics.Geometry `yaml:"geometry"`

	// TelemetryURL is the MQTT broker mirroring the pose, disabled if empty.
	TelemetryURL      string        `yaml:"telemetry_url"`
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`
}

// DefaultWiring is the pinout of the reference board.
var DefaultWiring = hal.Wiring{
	Left: hal.WheelWiring{
		BridgePins: [2]hal.Pin{125, 127},
		PWMChannel: 9,
		EncoderPin: 158,
	},
	Right: hal.WheelWiring{
		BridgePins: [2]hal.Pin{71, 61},
		PWMChannel: 8,
		EncoderPin: 163,
	},
}

// DefaultPID is the default gain set of both wheels.
var DefaultPID = drive.PID{
	Kp:        0.1,
	Ki:        0.5,
	ILimit:    0.5,
	OutLimit:  0.3,
	Threshold: drive.DefaultBangBangThreshold,
}

var defaultConfig = Config{
	Hardware:          "sim",
	ControlPeriod:     fx.DefaultInterval,
	FeedbackInterval:  feedback.DefaultInterval,
	FeedbackMode:      drive.FeedbackOff.String(),
	PID:               DefaultPID,
	Models:            Models{Left: drive.DefaultLeftModel, Right: drive.DefaultRightModel},
	PWMPeriodNs:       drive.DefaultPWMPeriod,
	Wiring:            DefaultWiring,
	TelemetryInterval: 100 * time.Millisecond,
}

func init() {
	if val := os.Getenv("DIFFDRIVE_ID"); val != "" {
		defaultConfig.ID = val
	}
	if val := os.Getenv("DIFFDRIVE_HARDWARE"); val != "" {
		defaultConfig.Hardware = val
	}
	if val := os.Getenv("DIFFDRIVE_FEEDBACK_MODE"); val != "" {
		defaultConfig.FeedbackMode = val
	}
	if val := os.Getenv("DIFFDRIVE_CONTROL_PERIOD"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.ControlPeriod = d
		}
	}
	if val := os.Getenv("DIFFDRIVE_FEEDBACK_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.FeedbackInterval = d
		}
	}
	if val := os.Getenv("DIFFDRIVE_BRAKE_ON_STOP"); val != "" {
		defaultConfig.BrakeOnStop, _ = strconv.ParseBool(val)
	}
	if val := os.Getenv("DIFFDRIVE_TELEMETRY_URL"); val != "" {
		defaultConfig.TelemetryURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Robot ID, defaults to machine ID")
	flag.StringVar(&defaultConfig.Hardware, "hw", defaultConfig.Hardware, "Hardware driver")
	flag.DurationVar(&defaultConfig.ControlPeriod, "control-period", defaultConfig.ControlPeriod, "Control loop period")
	flag.DurationVar(&defaultConfig.FeedbackInterval, "feedback-interval", defaultConfig.FeedbackInterval, "Feedback interval")
	flag.BoolVar(&defaultConfig.FeedbackDisabled, "no-feedback", defaultConfig.FeedbackDisabled, "Start with feedback disabled")
	flag.StringVar(&defaultConfig.FeedbackMode, "feedback-mode", defaultConfig.FeedbackMode, "Speed correction: off, pid, bangbang")
	flag.Float64Var(&defaultConfig.PID.Kp, "kp", defaultConfig.PID.Kp, "PID Kp")
	flag.Float64Var(&defaultConfig.PID.Ki, "ki", defaultConfig.PID.Ki, "PID Ki")
	flag.Float64Var(&defaultConfig.PID.Kd, "kd", defaultConfig.PID.Kd, "PID Kd")
	flag.BoolVar(&defaultConfig.BrakeOnStop, "brake", defaultConfig.BrakeOnStop, "Brake instead of coast when stopping")
	flag.BoolVar(&defaultConfig.StopOnUnbind, "stop-on-unbind", defaultConfig.StopOnUnbind, "Stop wheels when the host goes away")
	flag.StringVar(&defaultConfig.TelemetryURL, "telemetry", defaultConfig.TelemetryURL, "MQTT broker URL for pose telemetry")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadFile overlays the YAML file on the config. Fields absent in the
// file are kept.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.ControlPeriod <= 0 {
		return &kinematics.ConfigError{Field: "control_period", Value: c.ControlPeriod.Seconds(), Reason: "must be positive"}
	}
	if _, err := drive.ParseFeedbackMode(c.FeedbackMode); err != nil {
		return err
	}
	if c.Geometry != nil {
		if err := c.Geometry.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// StopMode returns the configured stop action.
func (c *Config) StopMode() drive.StopMode {
	if c.BrakeOnStop {
		return drive.Brake
	}
	return drive.Coast
}
