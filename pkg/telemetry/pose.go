// Package telemetry mirrors the robot pose to an MQTT broker as
// protobuf encoded messages.
package telemetry

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/diffdrive/pkg/odometry"
)

// Field names of the pose message.
const (
	FieldRobot     = "robot"
	FieldX         = "x"
	FieldY         = "y"
	FieldTheta     = "theta"
	FieldV         = "v"
	FieldW         = "w"
	FieldTimestamp = "timestamp_ms"
	FieldTime      = "time"
)

// PoseTopicSuffix is appended to the robot ID to form the topic.
const PoseTopicSuffix = "/pose"

// PoseTopic returns the topic where the robot publishes its pose.
func PoseTopic(robotID string) string {
	return robotID + PoseTopicSuffix
}

// Sample is one published pose.
type Sample struct {
	Robot string
	Pose  odometry.Pose
	Time  time.Time
}

func number(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

func str(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

// Marshal encodes a sample.
func Marshal(s Sample) ([]byte, error) {
	ts, err := ptypes.TimestampProto(s.Time)
	if err != nil {
		return nil, err
	}
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldRobot:     str(s.Robot),
		FieldX:         number(s.Pose.X),
		FieldY:         number(s.Pose.Y),
		FieldTheta:     number(s.Pose.Theta),
		FieldV:         number(s.Pose.V),
		FieldW:         number(s.Pose.W),
		FieldTimestamp: number(float64(s.Pose.TimestampMs)),
		FieldTime:      str(ptypes.TimestampString(ts)),
	}}
	return proto.Marshal(msg)
}

// Unmarshal decodes a sample.
func Unmarshal(data []byte) (s Sample, err error) {
	var msg structpb.Struct
	if err = proto.Unmarshal(data, &msg); err != nil {
		return
	}
	num := func(name string) float64 {
		if v := msg.Fields[name]; v != nil {
			return v.GetNumberValue()
		}
		if err == nil {
			err = fmt.Errorf("missing field %q", name)
		}
		return 0
	}
	s.Pose = odometry.Pose{
		X:           num(FieldX),
		Y:           num(FieldY),
		Theta:       num(FieldTheta),
		V:           num(FieldV),
		W:           num(FieldW),
		TimestampMs: int64(num(FieldTimestamp)),
	}
	if err != nil {
		return
	}
	if v := msg.Fields[FieldRobot]; v != nil {
		s.Robot = v.GetStringValue()
	}
	if v := msg.Fields[FieldTime]; v != nil {
		s.Time, err = time.Parse(time.RFC3339Nano, v.GetStringValue())
	}
	return
}
