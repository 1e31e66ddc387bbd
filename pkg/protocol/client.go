package protocol

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/drive"
	"github.com/robotalks/diffdrive/pkg/kinematics"
	"github.com/robotalks/diffdrive/pkg/transport"
)

// FeedbackFunc receives decoded feedback.
type FeedbackFunc func(Feedback)

// Received is the latest decoded feedback.
type Received struct {
	Feedback Feedback
	At       time.Time
}

// Client is the host side of the protocol.
type Client struct {
	Endpoint transport.Endpoint

	latest  atomic.Pointer[Received]
	invalid atomic.Uint64

	watchLock sync.RWMutex
	watchers  map[int]FeedbackFunc
	watchID   int
}

// NewClient creates a Client sending on endpoint. Inbound frames must be
// passed to HandleFrame.
func NewClient(endpoint transport.Endpoint) *Client {
	return &Client{Endpoint: endpoint, watchers: make(map[int]FeedbackFunc)}
}

// Configure validates and sends the geometry.
func (c *Client) Configure(g kinematics.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	return c.Endpoint.Send(FormatConfig(g))
}

// SetVelocity sends a body velocity in m/s and rad/s.
func (c *Client) SetVelocity(v, w float64) error {
	return c.Endpoint.Send(FormatVelocity(v, w))
}

// Stop sends a zero velocity.
func (c *Client) Stop() error {
	return c.SetVelocity(0, 0)
}

// Reset resets odometry on the controller.
func (c *Client) Reset() error {
	return c.Endpoint.Send(FormatReset())
}

// SetWheels sends per wheel targets in the legacy format.
func (c *Client) SetWheels(left, right drive.Target) error {
	return c.Endpoint.Send(FormatLegacy(left, right))
}

// SetFeedback controls the feedback stream.
func (c *Client) SetFeedback(cmd FeedbackCommand) error {
	return c.Endpoint.Send(FormatFeedback(cmd))
}

// HandleFrame decodes an inbound frame and notifies watchers.
func (c *Client) HandleFrame(frame []byte) {
	fb, err := ParseFeedback(frame)
	if err != nil {
		c.invalid.Add(1)
		glog.V(2).Infof("drop feedback: %v", err)
		return
	}
	c.latest.Store(&Received{Feedback: fb, At: time.Now()})
	c.watchLock.RLock()
	defer c.watchLock.RUnlock()
	for _, fn := range c.watchers {
		fn(fb)
	}
}

// Latest returns the most recent feedback, nil if none received.
func (c *Client) Latest() *Received {
	return c.latest.Load()
}

// Invalid returns the number of undecodable frames.
func (c *Client) Invalid() uint64 {
	return c.invalid.Load()
}

// Watch registers fn for each decoded feedback. The returned func
// unregisters it.
func (c *Client) Watch(fn FeedbackFunc) func() {
	c.watchLock.Lock()
	id := c.watchID
	c.watchID++
	c.watchers[id] = fn
	c.watchLock.Unlock()
	return func() {
		c.watchLock.Lock()
		delete(c.watchers, id)
		c.watchLock.Unlock()
	}
}
