// Package motion provides shell commands driving the controller.
package motion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/diffdrive/pkg/cli/sh"
	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/protocol"
)

func parseFloats(args []string, names ...string) ([]float64, error) {
	if len(args) < len(names) {
		return nil, fmt.Errorf("%s required", strings.Join(names[len(args):], " "))
	}
	vals := make([]float64, len(names))
	for n, name := range names {
		val, err := strconv.ParseFloat(args[n], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %v", name, err)
		}
		vals[n] = val
	}
	return vals, nil
}

// ParseGeometry parses RADIUS BASE [GEAR PPR], gear and ppr default to
// the stock motor.
func ParseGeometry(args []string) (kinematics.Geometry, error) {
	g := kinematics.DefaultGeometry
	vals, err := parseFloats(args, "RADIUS", "BASE")
	if err != nil {
		return g, err
	}
	g.WheelRadius, g.WheelBase = vals[0], vals[1]
	if len(args) > 2 {
		vals, err := parseFloats(args[2:], "GEAR", "PPR")
		if err != nil {
			return g, err
		}
		g.GearRatio, g.EncoderPPR = vals[0], vals[1]
	}
	return g, g.Validate()
}

// ParseFeedback parses on, off or an interval in ms.
func ParseFeedback(arg string) (protocol.FeedbackCommand, error) {
	switch arg {
	case "on":
		return protocol.FeedbackCommand{Action: protocol.FeedbackOn}, nil
	case "off":
		return protocol.FeedbackCommand{Action: protocol.FeedbackOff}, nil
	}
	ms, err := strconv.Atoi(arg)
	if err != nil || ms <= 0 {
		return protocol.FeedbackCommand{}, fmt.Errorf("expect on, off or interval in ms: %q", arg)
	}
	return protocol.FeedbackCommand{Action: protocol.FeedbackInterval, Interval: time.Duration(ms) * time.Millisecond}, nil
}

// ParseWheel parses DIR SPEED of the legacy command.
func ParseWheel(dirArg, speedArg string) (drive.Target, error) {
	dir, err := strconv.Atoi(dirArg)
	if err != nil || !drive.Direction(dir).Valid() {
		return drive.Target{}, fmt.Errorf("invalid DIR %q, expect 0, 1 or 2", dirArg)
	}
	speed, err := strconv.ParseFloat(speedArg, 64)
	if err != nil || speed < 0 {
		return drive.Target{}, fmt.Errorf("invalid SPEED %q", speedArg)
	}
	return drive.Target{Direction: drive.Direction(dir), Speed: speed}, nil
}

// FormatFeedback prints feedback for display.
func FormatFeedback(fb protocol.Feedback) string {
	switch f := fb.(type) {
	case protocol.OdometryFeedback:
		return f.Pose.String()
	case protocol.LegacyFeedback:
		return fmt.Sprintf("L %s %.3f rev/s  R %s %.3f rev/s",
			f.Left.Direction, float64(f.Left.SpeedMrs)/1000,
			f.Right.Direction, float64(f.Right.SpeedMrs)/1000)
	}
	return fmt.Sprint(fb)
}

var (
	// ConfigCmd sends the geometry.
	ConfigCmd = ishell.Cmd{
		Name:    "cfg",
		Aliases: []string{"config"},
		Help:    "RADIUS(m) BASE(m) [GEAR PPR]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			g, err := ParseGeometry(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoSend(c, func(cl *protocol.Client) error { return cl.Configure(g) })
		}),
	}

	// VelocityCmd sends a body velocity.
	VelocityCmd = ishell.Cmd{
		Name:    "vel",
		Aliases: []string{"v"},
		Help:    "V(m/s) W(rad/s)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, err := parseFloats(c.Args, "V", "W")
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoSend(c, func(cl *protocol.Client) error { return cl.SetVelocity(vals[0], vals[1]) })
		}),
	}

	// TurnCmd rotates in place.
	TurnCmd = ishell.Cmd{
		Name:    "turn",
		Aliases: []string{"t"},
		Help:    "SPEED(degrees/s)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			vals, err := parseFloats(c.Args, "SPEED")
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoSend(c, func(cl *protocol.Client) error { return cl.SetVelocity(0, kinematics.Radians(vals[0])) })
		}),
	}

	// StopCmd stops the robot.
	StopCmd = ishell.Cmd{
		Name:    "stop",
		Aliases: []string{"s"},
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoSend(c, (*protocol.Client).Stop)
		}),
	}

	// ResetCmd resets odometry.
	ResetCmd = ishell.Cmd{
		Name: "rst",
		Help: "reset odometry",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.DoSend(c, (*protocol.Client).Reset)
		}),
	}

	// WheelsCmd sends legacy per wheel targets.
	WheelsCmd = ishell.Cmd{
		Name:    "wheels",
		Aliases: []string{"w"},
		Help:    "DIR1 SPEED1(rev/s) DIR2 SPEED2(rev/s)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 4 {
				c.Err(fmt.Errorf("DIR1 SPEED1 DIR2 SPEED2 required"))
				return
			}
			left, err := ParseWheel(c.Args[0], c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			right, err := ParseWheel(c.Args[2], c.Args[3])
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoSend(c, func(cl *protocol.Client) error { return cl.SetWheels(left, right) })
		}),
	}

	// FeedbackCmd controls the feedback stream.
	FeedbackCmd = ishell.Cmd{
		Name:    "fbk",
		Aliases: []string{"feedback"},
		Help:    "on|off|INTERVAL(ms)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("on, off or INTERVAL required"))
				return
			}
			cmd, err := ParseFeedback(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoSend(c, func(cl *protocol.Client) error { return cl.SetFeedback(cmd) })
		}),
	}

	// StatusCmd prints the latest feedback.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			recv := sh.Client(c).Latest()
			if recv == nil {
				c.Err(fmt.Errorf("no feedback received"))
				return
			}
			sh.PrintValue(c, recv, fmt.Sprintf("%s (%s ago)",
				FormatFeedback(recv.Feedback), time.Since(recv.At).Round(time.Millisecond)))
		}),
	}

	// WatchCmd prints feedback as it arrives.
	WatchCmd = ishell.Cmd{
		Name: "watch",
		Help: "[COUNT] [EVERY]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			count, every := 10, 1
			var err error
			if len(c.Args) > 0 {
				if count, err = strconv.Atoi(c.Args[0]); err != nil || count <= 0 {
					c.Err(fmt.Errorf("invalid COUNT %q", c.Args[0]))
					return
				}
			}
			if len(c.Args) > 1 {
				if every, err = strconv.Atoi(c.Args[1]); err != nil || every <= 0 {
					c.Err(fmt.Errorf("invalid EVERY %q", c.Args[1]))
					return
				}
			}
			ch := make(chan protocol.Feedback, 16)
			unwatch := sh.Client(c).Watch(func(fb protocol.Feedback) {
				select {
				case ch <- fb:
				default:
				}
			})
			defer unwatch()
			for n := 0; n < count*every; n++ {
				select {
				case fb := <-ch:
					if n%every == 0 {
						sh.PrintValue(c, fb, FormatFeedback(fb))
					}
				case <-time.After(2 * time.Second):
					c.Err(fmt.Errorf("feedback timeout"))
					return
				}
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&ConfigCmd,
		&VelocityCmd,
		&TurnCmd,
		&StopCmd,
		&ResetCmd,
		&WheelsCmd,
		&FeedbackCmd,
		&StatusCmd,
		&WatchCmd,
		&FitCmd,
	)
}
