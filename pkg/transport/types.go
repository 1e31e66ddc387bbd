// Package transport defines the message channel between the host and
// the controller. One transport message carries one frame.
package transport

import (
	"errors"
	"fmt"

	fx "github.com/robotalks/diffdrive/pkg/framework"
)

// ErrNotReady is returned by Send when the endpoint has no peer.
var ErrNotReady = errors.New("endpoint not ready")

// Address identifies an endpoint.
type Address struct {
	Name   string
	Local  uint32
	Remote uint32
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return fmt.Sprintf("%s[%d->%d]", a.Name, a.Local, a.Remote)
}

// ReceiveFunc is called with each inbound frame, from the transport's
// receive goroutine. The frame is only valid during the call.
type ReceiveFunc func(frame []byte)

// UnbindFunc is called when the endpoint loses its peer.
type UnbindFunc func()

// Endpoint sends frames to the peer.
type Endpoint interface {
	Name() string
	// Ready tells if a peer is bound and Send may succeed.
	Ready() bool
	// Send doesn't keep frame after it returns, the caller may reuse it.
	Send(frame []byte) error
}

// Link is an Endpoint with a background loop maintaining the
// connection and dispatching inbound frames.
type Link interface {
	Endpoint
	fx.Runnable
}
