package main

import (
	"context"
	"flag"
	"log"
	"os"

	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/telemetry"
	"github.com/robotalks/diffdrive/pkg/transport/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/diffdrive/"
)

func init() {
	if val := os.Getenv("DIFFDRIVE_TELEMETRY_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	telemetry.Subscribe(q, func(s telemetry.Sample) {
		log.Printf("%s: %s (%s)", s.Robot, s.Pose, s.Time.Format("15:04:05.000"))
	})
	err = fx.NewRunner().HandleSignals().Go(fx.RunFunc(func(ctx context.Context) error {
		token := q.Connect()
		if token.Wait(); token.Error() != nil {
			return token.Error()
		}
		<-ctx.Done()
		return q.Close()
	})).Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
