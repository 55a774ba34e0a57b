// Package transport abstracts the reliable, ordered, bidirectional channel
// between two named endpoints. The session layer never sees sockets, only
// Endpoints and their open/message/close events.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/atch2203/split-the-bill/internal/ice"
)

// ErrClosed reports a send on an endpoint that is no longer open.
var ErrClosed = errors.New("transport: endpoint closed")

// Callbacks receives endpoint events. OnMessage fires once per inbound
// frame in delivery order. OnClose fires exactly once, and only when the
// peer or the transport closed the channel; a local Close never triggers
// it, which is how the session tells "I left" from "the network dropped".
type Callbacks struct {
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Endpoint is one side of an established channel. Close is safe to call
// any number of times. Frames received before SetCallbacks are buffered
// and replayed in order.
type Endpoint interface {
	RemoteID() string
	Send(data []byte) error
	SetCallbacks(cb Callbacks)
	Close() error
}

// AcceptFunc is invoked for every inbound channel on a listener. The
// endpoint delivers no messages until the callee installs callbacks.
type AcceptFunc func(ep Endpoint)

// Listener accepts inbound channels for a named identity.
type Listener interface {
	ID() string
	Close() error
}

// Options carries transport bootstrap material. Relay-capable factories
// use the ICE credentials; others ignore them.
type Options struct {
	ICE ice.Credentials
}

// Factory opens listening identities and outbound channels.
type Factory interface {
	Open(ctx context.Context, id string, accept AcceptFunc, opts Options) (Listener, error)
	Connect(ctx context.Context, target string, opts Options) (Endpoint, error)
}

// pump serializes event delivery for an endpoint: inbound frames and the
// terminal close event flow through one ordered queue, and nothing is
// delivered until callbacks are installed.
type pump struct {
	events chan pumpEvent
	quit   chan struct{}

	mu      sync.Mutex
	cb      Callbacks
	ready   chan struct{}
	armed   bool
	stopped bool
}

type pumpEvent struct {
	data  []byte
	err   error
	close bool
}

func newPump() *pump {
	p := &pump{
		events: make(chan pumpEvent, 64),
		quit:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) run() {
	select {
	case <-p.ready:
	case <-p.quit:
		return
	}
	for {
		select {
		case <-p.quit:
			return
		case ev := <-p.events:
			p.mu.Lock()
			cb := p.cb
			p.mu.Unlock()
			if ev.close {
				if cb.OnClose != nil {
					cb.OnClose(ev.err)
				}
				return
			}
			if cb.OnMessage != nil {
				cb.OnMessage(ev.data)
			}
		}
	}
}

func (p *pump) setCallbacks(cb Callbacks) {
	p.mu.Lock()
	p.cb = cb
	if !p.armed {
		p.armed = true
		close(p.ready)
	}
	p.mu.Unlock()
}

// message enqueues an inbound frame. The queue is generously buffered; a
// frame arriving when it is full is dropped rather than blocking the
// transport reader.
func (p *pump) message(data []byte) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	select {
	case p.events <- pumpEvent{data: data}:
	default:
	}
}

// closed enqueues the terminal close event for a remote/transport closure.
func (p *pump) closed(err error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	select {
	case p.events <- pumpEvent{err: err, close: true}:
	default:
	}
}

// stop tears down delivery without emitting a close event, for local Close.
func (p *pump) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.quit)
}
