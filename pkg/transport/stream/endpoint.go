// Package stream carries NUL delimited frames over a byte stream, like
// a serial port or a TCP connection.
package stream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/transport"
)

// DefaultMaxFrame bounds inbound frames.
const DefaultMaxFrame = 128

// DefaultRetryInterval is the delay before reopening the stream.
const DefaultRetryInterval = time.Second

// OpenFunc opens the underlying stream.
type OpenFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Endpoint implements transport.Link. It is ready while the stream is
// open and reopens it after failures.
type Endpoint struct {
	Addr          transport.Address
	Open          OpenFunc
	Receive       transport.ReceiveFunc
	Unbind        transport.UnbindFunc
	MaxFrame      int
	RetryInterval time.Duration

	lock  sync.Mutex
	conn  io.ReadWriteCloser
	ready atomic.Bool
}

// NewEndpoint creates an Endpoint.
func NewEndpoint(addr transport.Address, open OpenFunc, recv transport.ReceiveFunc, unbind transport.UnbindFunc) *Endpoint {
	return &Endpoint{
		Addr:          addr,
		Open:          open,
		Receive:       recv,
		Unbind:        unbind,
		MaxFrame:      DefaultMaxFrame,
		RetryInterval: DefaultRetryInterval,
	}
}

// Name implements transport.Endpoint.
func (e *Endpoint) Name() string {
	return e.Addr.Name
}

// Ready implements transport.Endpoint.
func (e *Endpoint) Ready() bool {
	return e.ready.Load()
}

// Send implements transport.Endpoint.
func (e *Endpoint) Send(frame []byte) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.conn == nil {
		return transport.ErrNotReady
	}
	_, err := e.conn.Write(transport.Terminate(frame))
	return err
}

// Run implements Runnable.
func (e *Endpoint) Run(ctx context.Context) error {
	for {
		conn, err := e.Open(ctx)
		if err != nil {
			glog.Errorf("open %s: %v", e.Addr, err)
		} else {
			err = e.serve(ctx, conn)
			if ctx.Err() == nil {
				glog.Errorf("endpoint %s: %v", e.Addr, err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.RetryInterval):
		}
	}
}

// Serve runs the receive loop on an already opened stream until it
// fails or ctx is done.
func (e *Endpoint) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	return e.serve(ctx, conn)
}

func (e *Endpoint) serve(ctx context.Context, conn io.ReadWriteCloser) error {
	e.lock.Lock()
	e.conn = conn
	e.lock.Unlock()
	e.ready.Store(true)
	glog.Infof("endpoint %s bound", e.Addr)
	defer e.release()

	return fx.RunWithContextCloser(ctx, conn, func() error {
		r := transport.NewFrameReader(conn, e.MaxFrame)
		for {
			frame, err := r.ReadFrame()
			if err != nil {
				return err
			}
			if fn := e.Receive; fn != nil {
				fn(frame)
			}
		}
	})
}

func (e *Endpoint) release() {
	e.ready.Store(false)
	e.lock.Lock()
	e.conn = nil
	e.lock.Unlock()
	glog.Infof("endpoint %s unbound", e.Addr)
	if fn := e.Unbind; fn != nil {
		fn()
	}
}
