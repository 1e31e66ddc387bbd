package motion

import (
	"fmt"
	"os"

	"github.com/abiosoft/ishell"
	"gopkg.in/yaml.v2"

	"github.com/robotalks/diffdrive/pkg/drive"
)

// Sample is one open loop measurement: the steady speed reached at a duty.
type Sample struct {
	Speed float64 `yaml:"speed"`
	Duty  float64 `yaml:"duty"`
}

// Samples are measurements of one wheel per direction.
type Samples struct {
	Forward  []Sample `yaml:"forward"`
	Backward []Sample `yaml:"backward"`
}

// CalibrationLog is the input of FitModels, keyed by wheel name.
type CalibrationLog struct {
	Left  Samples `yaml:"left"`
	Right Samples `yaml:"right"`
}

func fitSamples(samples []Sample) (drive.Linear, error) {
	speeds, duties := make([]float64, len(samples)), make([]float64, len(samples))
	for n, s := range samples {
		speeds[n], duties[n] = s.Speed, s.Duty
	}
	return drive.FitLinear(speeds, duties)
}

func fitModel(s Samples) (m drive.FeedforwardModel, err error) {
	if m.Forward, err = fitSamples(s.Forward); err != nil {
		return m, fmt.Errorf("forward: %w", err)
	}
	if m.Backward, err = fitSamples(s.Backward); err != nil {
		return m, fmt.Errorf("backward: %w", err)
	}
	return m, nil
}

// FitModels fits the feedforward models from a calibration log. The
// result is in the layout of the models section of the robot config.
func FitModels(data []byte) (map[string]drive.FeedforwardModel, error) {
	var log CalibrationLog
	if err := yaml.UnmarshalStrict(data, &log); err != nil {
		return nil, err
	}
	left, err := fitModel(log.Left)
	if err != nil {
		return nil, fmt.Errorf("left %w", err)
	}
	right, err := fitModel(log.Right)
	if err != nil {
		return nil, fmt.Errorf("right %w", err)
	}
	return map[string]drive.FeedforwardModel{"left": left, "right": right}, nil
}

// FitCmd fits feedforward models from a calibration log.
var FitCmd = ishell.Cmd{
	Name: "fit",
	Help: "CALIBRATION-LOG.yaml",
	Func: func(c *ishell.Context) {
		if len(c.Args) < 1 {
			c.Err(fmt.Errorf("CALIBRATION-LOG required"))
			return
		}
		data, err := os.ReadFile(c.Args[0])
		if err != nil {
			c.Err(err)
			return
		}
		models, err := FitModels(data)
		if err != nil {
			c.Err(err)
			return
		}
		out, err := yaml.Marshal(map[string]interface{}{"models": models})
		if err != nil {
			c.Err(err)
			return
		}
		c.Print(string(out))
	},
}
