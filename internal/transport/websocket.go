package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

// WebsocketConfig wires the websocket factory.
type WebsocketConfig struct {
	// ListenAddress is where Open binds its HTTP upgrade server.
	ListenAddress string
	Log           *zap.Logger
}

// WebsocketFactory serves room channels over websocket. A listening
// identity maps to the path /rooms/{id}; Connect targets are full ws URLs
// built by the room-link utilities.
type WebsocketFactory struct {
	cfg WebsocketConfig
	log *zap.Logger
}

// NewWebsocketFactory builds a factory.
func NewWebsocketFactory(cfg WebsocketConfig) *WebsocketFactory {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &WebsocketFactory{cfg: cfg, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Open binds the upgrade server and accepts inbound channels for id.
func (f *WebsocketFactory) Open(_ context.Context, id string, accept AcceptFunc, opts Options) (Listener, error) {
	if id == "" {
		return nil, errors.New("transport: listener id required")
	}

	ln, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", f.cfg.ListenAddress, err)
	}

	path := "/rooms/" + id
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			f.log.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		ep := newWSEndpoint(conn, r.RemoteAddr)
		accept(ep)
		go ep.readLoop()
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Warn("room listener stopped", zap.String("room", id), zap.Error(err))
		}
	}()
	f.log.Info("room listener open", zap.String("room", id), zap.String("address", ln.Addr().String()))

	// Relay-capable deployments pass opts.ICE through to their dialing
	// side; the plain websocket listener has nothing to do with it.
	_ = opts

	return &wsListener{id: id, srv: srv, addr: ln.Addr().String()}, nil
}

// Connect dials a room URL and returns the guest-side endpoint.
func (f *WebsocketFactory) Connect(ctx context.Context, target string, _ Options) (Endpoint, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", target, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	ep := newWSEndpoint(conn, target)
	go ep.readLoop()
	return ep, nil
}

type wsListener struct {
	id   string
	addr string
	srv  *http.Server
	once sync.Once
}

func (l *wsListener) ID() string { return l.id }

// Addr reports the bound address, handy when listening on :0.
func (l *wsListener) Addr() string { return l.addr }

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = l.srv.Shutdown(ctx)
		if err != nil {
			err = l.srv.Close()
		}
	})
	return err
}

type wsEndpoint struct {
	conn     *websocket.Conn
	remoteID string
	pump     *pump

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func newWSEndpoint(conn *websocket.Conn, remoteID string) *wsEndpoint {
	return &wsEndpoint{conn: conn, remoteID: remoteID, pump: newPump()}
}

func (e *wsEndpoint) RemoteID() string { return e.remoteID }

func (e *wsEndpoint) SetCallbacks(cb Callbacks) { e.pump.setCallbacks(cb) }

func (e *wsEndpoint) Send(data []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (e *wsEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.pump.stop()
	e.writeMu.Lock()
	_ = e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	e.writeMu.Unlock()
	return e.conn.Close()
}

func (e *wsEndpoint) readLoop() {
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			locallyClosed := e.closed
			e.closed = true
			e.mu.Unlock()
			if !locallyClosed {
				e.pump.closed(err)
				_ = e.conn.Close()
			}
			return
		}
		e.pump.message(data)
	}
}
