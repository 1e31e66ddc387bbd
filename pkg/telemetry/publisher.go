package telemetry

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/odometry"
	"github.com/robotalks/diffdrive/pkg/transport/mqtt"
)

// DefaultInterval is the default publish period.
const DefaultInterval = 100 * time.Millisecond

// PoseSource provides the current pose.
type PoseSource interface {
	State() odometry.Pose
}

// Publisher periodically publishes the pose.
type Publisher struct {
	Queue    *mqtt.Queue
	RobotID  string
	Source   PoseSource
	Interval time.Duration
	Now      func() time.Time

	RetryInterval time.Duration
}

// NewPublisher creates a Publisher connecting to brokerURL.
func NewPublisher(brokerURL, robotID string, source PoseSource) (*Publisher, error) {
	q, err := mqtt.NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		Queue:    q,
		RobotID:  robotID,
		Source:   source,
		Interval: DefaultInterval,
		Now:      time.Now,

		RetryInterval: mqtt.DefaultRetryInterval,
	}, nil
}

// Sample captures the current pose.
func (p *Publisher) Sample() Sample {
	return Sample{Robot: p.RobotID, Pose: p.Source.State(), Time: p.Now()}
}

// Run implements Runnable. Connect failures are retried every
// RetryInterval until the broker is reachable.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.Queue.ConnectRetry(ctx, p.RetryInterval); err != nil {
		return err
	}
	defer p.Queue.Close()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	topic := PoseTopic(p.RobotID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !p.Queue.Client.IsConnected() {
			continue
		}
		data, err := Marshal(p.Sample())
		if err != nil {
			glog.Errorf("telemetry encode: %v", err)
			continue
		}
		p.Queue.Pub(topic, data)
	}
}

// Subscribe delivers samples published by any robot under the queue's
// topic prefix.
func Subscribe(q *mqtt.Queue, fn func(Sample)) {
	q.Sub("+"+PoseTopicSuffix, func(topic string, payload []byte) {
		s, err := Unmarshal(payload)
		if err != nil {
			glog.Warningf("telemetry %s: %v", topic, err)
			return
		}
		fn(s)
	})
}
