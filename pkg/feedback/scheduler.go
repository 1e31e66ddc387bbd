// Package feedback streams periodic status frames to the host.
package feedback

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/transport"
)

// Intervals.
const (
	DefaultInterval = 20 * time.Millisecond
	MinInterval     = 10 * time.Millisecond
	ReadyPollPeriod = 100 * time.Millisecond
)

// LogEvery is how often a sent frame is traced.
const LogEvery = 10

// Encoder encodes one frame into buf.
type Encoder interface {
	Encode(buf []byte) ([]byte, error)
}

// EncodeFunc is the func form of Encoder.
type EncodeFunc func(buf []byte) ([]byte, error)

// Encode implements Encoder.
func (f EncodeFunc) Encode(buf []byte) ([]byte, error) {
	return f(buf)
}

// TransientSendError is a failed send. The next period retries.
type TransientSendError struct {
	Endpoint string
	Err      error
}

// Error implements error.
func (e *TransientSendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the cause.
func (e *TransientSendError) Unwrap() error {
	return e.Err
}

// Stats counts frames.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Skipped uint64
}

// Scheduler sends a frame every interval while enabled and the
// endpoint is ready.
type Scheduler struct {
	Endpoint transport.Endpoint
	Encoder  Encoder

	interval atomic.Int64
	disabled atomic.Bool
	wakeCh   chan struct{}

	sent, failed, skipped atomic.Uint64
}

// NewScheduler creates a Scheduler with DefaultInterval.
func NewScheduler(endpoint transport.Endpoint, encoder Encoder) *Scheduler {
	s := &Scheduler{
		Endpoint: endpoint,
		Encoder:  encoder,
		wakeCh:   make(chan struct{}, 1),
	}
	s.interval.Store(int64(DefaultInterval))
	return s
}

// Enable turns frame output on or off.
func (s *Scheduler) Enable(on bool) {
	s.disabled.Store(!on)
	s.wake()
}

// Enabled tells if frame output is on.
func (s *Scheduler) Enabled() bool {
	return !s.disabled.Load()
}

// SetInterval changes the period and returns the effective one.
func (s *Scheduler) SetInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		d = MinInterval
	}
	s.interval.Store(int64(d))
	s.wake()
	return d
}

// Interval returns the current period.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Skipped: s.skipped.Load(),
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable. A frame goes out at most once per interval;
// Enable and SetInterval only reschedule the next one.
func (s *Scheduler) Run(ctx context.Context) error {
	var last time.Time
	for {
		wait := ReadyPollPeriod
		if s.Endpoint.Ready() {
			interval := s.Interval()
			if wait = interval - time.Since(last); wait <= 0 {
				if s.Enabled() {
					// endpoints may hold on to the frame, never reuse it
					if err := s.SendOnce(nil); err != nil {
						glog.Warning(err)
					}
				}
				last, wait = time.Now(), interval
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wakeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// SendOnce encodes and sends one frame.
func (s *Scheduler) SendOnce(buf []byte) error {
	frame, err := s.Encoder.Encode(buf)
	if err != nil {
		s.skipped.Add(1)
		return fmt.Errorf("encode feedback: %w", err)
	}
	if err := s.Endpoint.Send(frame); err != nil {
		s.failed.Add(1)
		return &TransientSendError{Endpoint: s.Endpoint.Name(), Err: err}
	}
	if n := s.sent.Add(1); n%LogEvery == 0 && glog.V(2) {
		glog.Infof("feedback #%d: %q", n, frame)
	}
	return nil
}
