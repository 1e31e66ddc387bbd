package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/hal"
	"github.com/robotalks/diffdrive/pkg/robot"
	"github.com/robotalks/diffdrive/pkg/transport/env"

	_ "github.com/robotalks/diffdrive/pkg/hal/sim"
)

var configFile string

func init() {
	robot.SetupFlags()
	env.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config overlay, e.g. calibrated models")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := robot.NewConfig()
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			glog.Exit(err)
		}
	}
	board, err := hal.Open(conf.Hardware, conf.Wiring)
	if err != nil {
		glog.Exit(err)
	}
	r, err := robot.New(conf, board)
	if err != nil {
		glog.Exit(err)
	}
	if err := r.Init(); err != nil {
		glog.Warningf("running with disabled units: %v", err)
	}
	link, err := env.NewConfig().NewLink(r.Receive, r.Unbind)
	if err != nil {
		glog.Exit(err)
	}
	r.Bind(link)
	if conf.TelemetryURL != "" {
		if err := r.EnableTelemetry(); err != nil {
			glog.Exit(err)
		}
	}

	loop := fx.NewLoop().Add(r)
	glog.Infof("diffbot on %s, endpoint %s, control period %s", board.Name, link.Name(), loop.Interval)
	err = fx.NewRunner().HandleSignals().Go(loop).Wait()
	if cerr := r.Close(); cerr != nil {
		glog.Errorf("stop motors: %v", cerr)
	}
	if err != nil {
		glog.Exit(err)
	}
}
