// Package websocket carries frames as binary websocket messages.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/transport"
)

// session is the single bound peer connection.
type session struct {
	addr    transport.Address
	receive transport.ReceiveFunc
	unbind  transport.UnbindFunc

	lock  sync.Mutex
	conn  *websocket.Conn
	ready atomic.Bool
}

// Name implements transport.Endpoint.
func (s *session) Name() string {
	return s.addr.Name
}

// Ready implements transport.Endpoint.
func (s *session) Ready() bool {
	return s.ready.Load()
}

// Send implements transport.Endpoint.
func (s *session) Send(frame []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return transport.ErrNotReady
	}
	return websocket.Message.Send(s.conn, frame)
}

// serve takes over conn, replacing the previous peer, and receives
// until conn fails.
func (s *session) serve(ctx context.Context, conn *websocket.Conn) error {
	s.lock.Lock()
	prev := s.conn
	s.conn = conn
	s.lock.Unlock()
	if prev != nil {
		prev.Close()
	}
	s.ready.Store(true)
	glog.Infof("endpoint %s bound to %s", s.addr, conn.RemoteAddr())

	err := fx.RunWithContextCloser(ctx, conn, func() error {
		for {
			var frame []byte
			if err := websocket.Message.Receive(conn, &frame); err != nil {
				return err
			}
			if fn := s.receive; fn != nil {
				fn(frame)
			}
		}
	})

	s.lock.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.lock.Unlock()
	if current {
		s.ready.Store(false)
		glog.Infof("endpoint %s unbound", s.addr)
		if fn := s.unbind; fn != nil {
			fn()
		}
	}
	return err
}

// Server accepts one peer at a time, a new connection replaces the
// current one.
type Server struct {
	session
	ListenAddr string
	Path       string
}

// NewServer creates a Server.
func NewServer(listenAddr, path string, addr transport.Address, recv transport.ReceiveFunc, unbind transport.UnbindFunc) *Server {
	if path == "" {
		path = "/"
	}
	return &Server{
		session:    session{addr: addr, receive: recv, unbind: unbind},
		ListenAddr: listenAddr,
		Path:       path,
	}
}

// Handler returns the http.Handler accepting websocket connections.
func (s *Server) Handler(ctx context.Context) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		if err := s.serve(ctx, conn); err != nil && ctx.Err() == nil {
			glog.V(2).Infof("endpoint %s: %v", s.addr, err)
		}
	})
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.Path, s.Handler(ctx))
	server := &http.Server{Addr: s.ListenAddr, Handler: mux}
	return fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
}

// DefaultRetryInterval is the delay before redialing.
const DefaultRetryInterval = time.Second

// Client dials the peer and redials after failures.
type Client struct {
	session
	URL           string
	Origin        string
	RetryInterval time.Duration
}

// NewClient creates a Client.
func NewClient(url string, addr transport.Address, recv transport.ReceiveFunc, unbind transport.UnbindFunc) *Client {
	return &Client{
		session:       session{addr: addr, receive: recv, unbind: unbind},
		URL:           url,
		Origin:        "http://localhost/",
		RetryInterval: DefaultRetryInterval,
	}
}

// Run implements Runnable.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := websocket.Dial(c.URL, "", c.Origin)
		if err != nil {
			glog.Errorf("dial %s: %v", c.URL, err)
		} else {
			conn.PayloadType = websocket.BinaryFrame
			if err = c.serve(ctx, conn); err != nil && ctx.Err() == nil {
				glog.Errorf("endpoint %s: %v", c.addr, err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.RetryInterval):
		}
	}
}
