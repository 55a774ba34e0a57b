package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryFactory wires endpoint pairs in process. It backs tests and keeps
// the session logic honest about the Factory contract: ordered delivery,
// buffered frames before callbacks, close-event semantics.
type MemoryFactory struct {
	mu        sync.Mutex
	listeners map[string]*memListener
	connSeq   atomic.Uint64
}

// NewMemoryFactory returns an empty in-process factory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{listeners: make(map[string]*memListener)}
}

// Open registers a listening identity. Reopening a closed id succeeds,
// which is what host reconnection relies on.
func (f *MemoryFactory) Open(_ context.Context, id string, accept AcceptFunc, _ Options) (Listener, error) {
	if id == "" {
		return nil, errors.New("transport: listener id required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.listeners[id]; ok {
		return nil, fmt.Errorf("transport: id %q already open", id)
	}
	l := &memListener{id: id, accept: accept, factory: f}
	f.listeners[id] = l
	return l, nil
}

// Connect dials a listening identity and returns the guest-side endpoint.
func (f *MemoryFactory) Connect(_ context.Context, target string, _ Options) (Endpoint, error) {
	f.mu.Lock()
	l, ok := f.listeners[target]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport: no listener for %q", target)
	}

	connID := fmt.Sprintf("conn-%d", f.connSeq.Add(1))
	guest := &MemoryEndpoint{remoteID: target, pump: newPump()}
	host := &MemoryEndpoint{remoteID: connID, pump: newPump()}
	guest.peer = host
	host.peer = guest

	l.accept(host)
	return guest, nil
}

type memListener struct {
	id      string
	accept  AcceptFunc
	factory *MemoryFactory
	once    sync.Once
}

func (l *memListener) ID() string { return l.id }

func (l *memListener) Close() error {
	l.once.Do(func() {
		l.factory.mu.Lock()
		if l.factory.listeners[l.id] == l {
			delete(l.factory.listeners, l.id)
		}
		l.factory.mu.Unlock()
	})
	return nil
}

// MemoryEndpoint is one side of an in-process channel. Exported so tests
// can sever it with Fail to simulate transport loss.
type MemoryEndpoint struct {
	remoteID string
	pump     *pump
	peer     *MemoryEndpoint

	mu     sync.Mutex
	closed bool
}

// RemoteID implements Endpoint.
func (e *MemoryEndpoint) RemoteID() string { return e.remoteID }

// SetCallbacks implements Endpoint.
func (e *MemoryEndpoint) SetCallbacks(cb Callbacks) { e.pump.setCallbacks(cb) }

// Send implements Endpoint with ordered in-process delivery.
func (e *MemoryEndpoint) Send(data []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.peer.mu.Lock()
	peerClosed := e.peer.closed
	e.peer.mu.Unlock()
	if peerClosed {
		return ErrClosed
	}
	e.peer.pump.message(append([]byte(nil), data...))
	return nil
}

// Close implements Endpoint. The local side gets no close event; the peer
// observes a remote closure.
func (e *MemoryEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.pump.stop()
	e.peer.pump.closed(errors.New("transport: peer closed"))
	return nil
}

// Fail severs the channel as if the transport died: both sides observe a
// close event carrying err. Safe to call after Close.
func (e *MemoryEndpoint) Fail(err error) {
	for _, side := range []*MemoryEndpoint{e, e.peer} {
		side.mu.Lock()
		alreadyClosed := side.closed
		side.closed = true
		side.mu.Unlock()
		if !alreadyClosed {
			side.pump.closed(err)
		}
	}
}
