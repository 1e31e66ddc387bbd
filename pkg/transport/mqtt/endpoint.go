package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/diffdrive/pkg/transport"
)

// Presence payloads published retained on the state topic.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// SendTimeout bounds the wait for a publish to complete.
var SendTimeout = time.Second

// Endpoint implements transport.Link over MQTT topics:
//
//	<prefix><name>/<local>         inbound frames
//	<prefix><name>/<remote>        outbound frames
//	<prefix><name>/<port>/state    retained presence of each side
//
// The endpoint is ready when connected and the peer is online.
type Endpoint struct {
	Queue   *Queue
	Addr    transport.Address
	Receive transport.ReceiveFunc
	Unbind  transport.UnbindFunc

	RetryInterval time.Duration

	connected  atomic.Bool
	peerOnline atomic.Bool
}

// RxTopic returns the topic of frames addressed to local port.
func RxTopic(addr transport.Address) string {
	return fmt.Sprintf("%s/%d", addr.Name, addr.Local)
}

// TxTopic returns the topic of frames addressed to remote port.
func TxTopic(addr transport.Address) string {
	return fmt.Sprintf("%s/%d", addr.Name, addr.Remote)
}

func stateTopic(name string, port uint32) string {
	return fmt.Sprintf("%s/%d/state", name, port)
}

// NewEndpoint creates an Endpoint from broker URL.
func NewEndpoint(brokerURL string, addr transport.Address, recv transport.ReceiveFunc, unbind transport.UnbindFunc) (*Endpoint, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetWill(topicPrefix+stateTopic(addr.Name, addr.Local), StateOffline, 1, true)
	e := &Endpoint{
		Queue:   NewQueue(opts, topicPrefix),
		Addr:    addr,
		Receive: recv,
		Unbind:  unbind,

		RetryInterval: DefaultRetryInterval,
	}
	e.Queue.OnConnect = func(*Queue) { e.onConnected() }
	e.Queue.OnDisconnect = func(*Queue) { e.onDisconnected() }
	e.Queue.Sub(RxTopic(addr), e.handleFrame)
	e.Queue.Sub(stateTopic(addr.Name, addr.Remote), e.handlePeerState)
	return e, nil
}

// Name implements transport.Endpoint.
func (e *Endpoint) Name() string {
	return e.Addr.Name
}

// Ready implements transport.Endpoint.
func (e *Endpoint) Ready() bool {
	return e.connected.Load() && e.peerOnline.Load()
}

// Send implements transport.Endpoint.
func (e *Endpoint) Send(frame []byte) error {
	if !e.Ready() {
		return transport.ErrNotReady
	}
	// paho keeps the payload queued past a timed out wait.
	token := e.Queue.Pub(TxTopic(e.Addr), append([]byte(nil), frame...))
	if !token.WaitTimeout(SendTimeout) {
		return fmt.Errorf("publish %s timeout", TxTopic(e.Addr))
	}
	return token.Error()
}

// Run implements Runnable. The broker may come up later, the first
// connect is retried every RetryInterval.
func (e *Endpoint) Run(ctx context.Context) error {
	if err := e.Queue.ConnectRetry(ctx, e.RetryInterval); err != nil {
		return err
	}
	<-ctx.Done()
	e.Queue.PubWith(stateTopic(e.Addr.Name, e.Addr.Local), []byte(StateOffline), 1, true).WaitTimeout(SendTimeout)
	e.Queue.Close()
	return ctx.Err()
}

func (e *Endpoint) onConnected() {
	e.connected.Store(true)
	e.Queue.PubWith(stateTopic(e.Addr.Name, e.Addr.Local), []byte(StateOnline), 1, true)
}

func (e *Endpoint) onDisconnected() {
	e.connected.Store(false)
	e.unbind()
}

func (e *Endpoint) unbind() {
	if e.peerOnline.Swap(false) {
		glog.Infof("endpoint %s unbound", e.Addr)
		if fn := e.Unbind; fn != nil {
			fn()
		}
	}
}

func (e *Endpoint) handlePeerState(_ string, payload []byte) {
	if string(payload) == StateOnline {
		if !e.peerOnline.Swap(true) {
			glog.Infof("endpoint %s bound", e.Addr)
		}
		return
	}
	e.unbind()
}

func (e *Endpoint) handleFrame(_ string, payload []byte) {
	// A frame implies the peer is there, even if its presence was missed.
	if !e.peerOnline.Swap(true) {
		glog.Infof("endpoint %s bound", e.Addr)
	}
	if fn := e.Receive; fn != nil {
		fn(payload)
	}
}
