package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

// PipeEnd is one end of an in-process Pipe.
type PipeEnd struct {
	name    string
	peer    *PipeEnd
	ready   atomic.Bool
	lock    sync.Mutex
	receive ReceiveFunc
}

// NewPipe creates a connected pair of endpoints. Frames sent on one end
// are delivered synchronously to the receive func of the other.
func NewPipe(name string) (*PipeEnd, *PipeEnd) {
	a, b := &PipeEnd{name: name}, &PipeEnd{name: name}
	a.peer, b.peer = b, a
	a.ready.Store(true)
	b.ready.Store(true)
	return a, b
}

// OnReceive sets the receive func.
func (p *PipeEnd) OnReceive(fn ReceiveFunc) {
	p.lock.Lock()
	p.receive = fn
	p.lock.Unlock()
}

// SetReady simulates binding and unbinding of the peer.
func (p *PipeEnd) SetReady(ready bool) {
	p.ready.Store(ready)
}

// Name implements Endpoint.
func (p *PipeEnd) Name() string {
	return p.name
}

// Ready implements Endpoint.
func (p *PipeEnd) Ready() bool {
	return p.ready.Load()
}

// Send implements Endpoint.
func (p *PipeEnd) Send(frame []byte) error {
	if !p.Ready() {
		return ErrNotReady
	}
	p.peer.lock.Lock()
	fn := p.peer.receive
	p.peer.lock.Unlock()
	if fn != nil {
		fn(append([]byte(nil), frame...))
	}
	return nil
}

// Run implements Link.
func (p *PipeEnd) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
