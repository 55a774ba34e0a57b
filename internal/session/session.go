// Package session implements the collaboration core: passcode handshake,
// host-authoritative document ownership, snapshot and incremental
// propagation, and suspension/reconnect bookkeeping.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atch2203/split-the-bill/internal/bill"
	"github.com/atch2203/split-the-bill/internal/ice"
	"github.com/atch2203/split-the-bill/internal/room"
	"github.com/atch2203/split-the-bill/internal/transport"
	"github.com/atch2203/split-the-bill/internal/wire"
)

// Role is the session's authority position.
type Role int

const (
	// RoleNone means no session is active; mutations apply locally.
	RoleNone Role = iota
	// RoleHost owns the authoritative document.
	RoleHost
	// RoleGuest mirrors the host's document and forwards intents.
	RoleGuest
)

const (
	defaultHandshakeTimeout  = 30 * time.Second
	defaultStateRequestDelay = 1500 * time.Millisecond
	stateRequestRetries      = 2
)

var (
	// ErrActive reports a Host/Join call on a session that already runs one.
	ErrActive = errors.New("session: already active")
	// ErrTimeout reports a handshake that never completed.
	ErrTimeout = errors.New("session: connection timeout")

	errAwaitingSnapshot = errors.New("session: awaiting snapshot")
)

// Hooks let the surrounding document layer plug in without the core
// knowing its shape: a state getter, a wholesale setter, and an action
// applier. All three are required.
type Hooks struct {
	State    func() bill.Bill
	SetState func(bill.Bill)
	Apply    func(bill.Action) error
}

// Config wires a Session's dependencies.
type Config struct {
	Log       *zap.Logger
	Transport transport.Factory
	ICE       ice.Provider
	Clock     clockwork.Clock
	Metrics   *Metrics
	Hooks     Hooks

	HandshakeTimeout  time.Duration
	StateRequestDelay time.Duration
}

// Session is one collaboration instance, owned by the application shell
// and never a process-wide singleton.
type Session struct {
	log       *zap.Logger
	transport transport.Factory
	ice       ice.Provider
	clock     clockwork.Clock
	metrics   *Metrics
	hooks     Hooks

	handshakeTimeout  time.Duration
	stateRequestDelay time.Duration

	mu   sync.Mutex
	role Role

	// Resumption identity: enough to rebuild the session after transport
	// loss without renegotiating who we are.
	roomID   string
	passcode string
	target   string

	listener transport.Listener
	guests   []*guestConn

	hostEp  transport.Endpoint
	pending transport.Endpoint

	connected        bool
	canReconnect     bool
	errMsg           string
	totalUsers       int
	awaitingPasscode bool
	applyingRemote   bool
	snapshotSeen     bool

	joinDone  chan error
	joinTimer clockwork.Timer
}

// New validates dependencies and returns an idle session.
func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport factory is required")
	}
	if cfg.Hooks.State == nil || cfg.Hooks.SetState == nil || cfg.Hooks.Apply == nil {
		return nil, errors.New("session: document hooks are required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.ICE == nil {
		cfg.ICE = ice.Static(ice.Default())
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.StateRequestDelay <= 0 {
		cfg.StateRequestDelay = defaultStateRequestDelay
	}
	return &Session{
		log:               cfg.Log,
		transport:         cfg.Transport,
		ice:               cfg.ICE,
		clock:             cfg.Clock,
		metrics:           cfg.Metrics,
		hooks:             cfg.Hooks,
		handshakeTimeout:  cfg.HandshakeTimeout,
		stateRequestDelay: cfg.StateRequestDelay,
		totalUsers:        1,
	}, nil
}

// Host starts accepting guests under roomID, generating an id when empty.
// An empty passcode admits everyone.
func (s *Session) Host(ctx context.Context, roomID, passcode string) (string, error) {
	s.mu.Lock()
	if s.role != RoleNone {
		s.mu.Unlock()
		return "", ErrActive
	}
	s.mu.Unlock()

	if roomID == "" {
		roomID = room.GenerateID()
	}

	creds := s.ice.Credentials(ctx)
	l, err := s.transport.Open(ctx, roomID, s.acceptGuest, transport.Options{ICE: creds})
	if err != nil {
		return "", fmt.Errorf("open room %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.role = RoleHost
	s.roomID = roomID
	s.passcode = passcode
	s.listener = l
	s.connected = true
	s.canReconnect = false
	s.errMsg = ""
	s.totalUsers = 1
	s.mu.Unlock()

	s.log.Info("hosting session",
		zap.String("room", roomID),
		zap.Bool("passcode", passcode != ""),
		zap.String("ice", creds.SourceName()))
	return roomID, nil
}

// Join connects to a host and blocks until the handshake settles, the
// handshake timeout fires, or ctx is done. When the host requires a
// passcode and none was provided, the attempt suspends awaiting
// SubmitPasscode instead of timing out.
func (s *Session) Join(ctx context.Context, target, passcode string) error {
	s.mu.Lock()
	if s.role != RoleNone {
		s.mu.Unlock()
		return ErrActive
	}
	s.mu.Unlock()
	return s.join(ctx, target, passcode, false)
}

func (s *Session) join(ctx context.Context, target, passcode string, isReconnect bool) error {
	creds := s.ice.Credentials(ctx)
	ep, err := s.transport.Connect(ctx, target, transport.Options{ICE: creds})
	if err != nil {
		s.mu.Lock()
		if isReconnect {
			s.canReconnect = true
		}
		s.errMsg = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("connect to %s: %w", target, err)
	}

	done := make(chan error, 1)

	s.mu.Lock()
	s.role = RoleGuest
	s.target = target
	s.passcode = passcode
	s.pending = ep
	s.connected = false
	s.awaitingPasscode = false
	s.snapshotSeen = false
	s.errMsg = ""
	s.joinDone = done
	s.joinTimer = s.clock.AfterFunc(s.handshakeTimeout, func() { s.expireJoin(ep) })
	s.mu.Unlock()

	ep.SetCallbacks(transport.Callbacks{
		OnMessage: func(data []byte) { s.onHostMessage(ep, data) },
		OnClose:   func(err error) { s.onHostClosed(ep, err) },
	})

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	if s.joinTimer != nil {
		s.joinTimer.Stop()
		s.joinTimer = nil
	}
	s.joinDone = nil
	if err != nil {
		s.pending = nil
		if isReconnect {
			s.canReconnect = true
		} else {
			s.role = RoleNone
		}
		if s.errMsg == "" {
			s.errMsg = err.Error()
		}
	}
	s.mu.Unlock()

	if err != nil {
		_ = ep.Close()
		return err
	}

	go s.requestStateWithRetry(ep)
	return nil
}

// expireJoin enforces the bounded handshake wait. A guest that is mid
// passcode entry is spared; that suspension is user-driven.
func (s *Session) expireJoin(ep transport.Endpoint) {
	s.mu.Lock()
	if s.connected || s.awaitingPasscode || s.pending != ep {
		s.mu.Unlock()
		return
	}
	s.errMsg = ErrTimeout.Error()
	s.signalJoinLocked(ErrTimeout)
	s.mu.Unlock()
	_ = ep.Close()
}

// signalJoinLocked delivers the join outcome exactly once.
func (s *Session) signalJoinLocked(err error) {
	if s.joinDone == nil {
		return
	}
	select {
	case s.joinDone <- err:
	default:
	}
	s.joinDone = nil
}

// SubmitPasscode answers a pending auth request that was suspended for
// user input. It is a no-op unless the session is awaiting a passcode.
func (s *Session) SubmitPasscode(passcode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || !s.awaitingPasscode {
		return
	}
	s.passcode = passcode
	s.awaitingPasscode = false
	s.sendLocked(s.pending, wire.AuthResponse{Passcode: passcode})
}

// Dispatch routes one user-originated mutation. Hosts and solo sessions
// apply it to the local document and hosts broadcast the delta; guests
// forward the intent and leave the local document untouched. While a
// remote update is being applied, everything applies locally regardless
// of role so a sync can never be re-forwarded.
func (s *Session) Dispatch(a bill.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applyingRemote && s.role == RoleGuest && s.connected && s.hostEp != nil {
		name, data, err := bill.EncodeAction(a)
		if err != nil {
			return err
		}
		frame, err := wire.Encode(wire.Action{Action: name, Data: data})
		if err != nil {
			return err
		}
		s.metrics.recordForward()
		return s.hostEp.Send(frame)
	}

	return s.applyLocked(a)
}

// applyLocked applies an action as the authority and, when hosting,
// broadcasts the incremental update to every authorized guest.
func (s *Session) applyLocked(a bill.Action) error {
	a = bill.Fill(a)
	if err := s.hooks.Apply(a); err != nil {
		return err
	}
	if s.role == RoleHost {
		s.broadcastUpdateLocked(a)
	}
	return nil
}

// applyRemoteLocked brackets the application of remote state so that any
// re-entrant dispatch stays local. The mode reverts on every exit path.
func (s *Session) applyRemoteLocked(fn func() error) error {
	s.applyingRemote = true
	defer func() { s.applyingRemote = false }()
	return fn()
}

func (s *Session) onHostMessage(ep transport.Endpoint, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.log.Debug("dropping unparseable frame from host", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ep != s.pending && ep != s.hostEp {
		return
	}

	switch m := msg.(type) {
	case wire.AuthRequest:
		if m.RequiresPasscode && s.passcode == "" {
			s.awaitingPasscode = true
			s.log.Info("host requires a passcode; awaiting input")
			return
		}
		s.sendLocked(ep, wire.AuthResponse{Passcode: s.passcode})

	case wire.AuthResult:
		if m.Success {
			s.hostEp = ep
			s.pending = nil
			s.awaitingPasscode = false
			s.connected = true
			s.canReconnect = false
			s.errMsg = ""
			s.signalJoinLocked(nil)
			s.log.Info("joined session", zap.String("target", s.target))
			return
		}
		reason := m.Reason
		if reason == "" {
			reason = "authentication failed"
		}
		s.errMsg = reason
		s.awaitingPasscode = false
		s.pending = nil
		s.metrics.recordAuthRejected()
		s.signalJoinLocked(errors.New(reason))

	case wire.Snapshot:
		s.snapshotSeen = true
		state := m.State
		_ = s.applyRemoteLocked(func() error {
			s.hooks.SetState(state)
			return nil
		})

	case wire.StateUpdate:
		action, err := bill.DecodeAction(m.Action, m.Data)
		if err != nil {
			s.log.Debug("dropping unknown state update", zap.String("action", m.Action), zap.Error(err))
			return
		}
		if err := s.applyRemoteLocked(func() error { return s.hooks.Apply(action) }); err != nil {
			s.log.Warn("state update failed; requesting snapshot",
				zap.String("action", m.Action), zap.Error(err))
			s.sendLocked(ep, wire.RequestState{})
		}

	case wire.MemberCount:
		s.totalUsers = m.Count

	default:
		// Guests never receive the remaining tags; drop them defensively.
		s.log.Debug("ignoring unexpected frame from host", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// onHostClosed handles transport-level loss of the host channel. An
// established session suspends with reconnection armed; a handshake in
// flight just fails.
func (s *Session) onHostClosed(ep transport.Endpoint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep != s.pending && ep != s.hostEp {
		return
	}

	if s.connected {
		s.connected = false
		s.canReconnect = true
		s.hostEp = nil
		if s.errMsg == "" {
			s.errMsg = "disconnected from host"
		}
		s.metrics.recordDisconnect()
		s.log.Warn("lost connection to host", zap.Error(err))
		return
	}

	s.pending = nil
	s.awaitingPasscode = false
	if s.errMsg == "" {
		s.errMsg = "connection closed during handshake"
	}
	s.signalJoinLocked(errors.New(s.errMsg))
}

// requestStateWithRetry demands a fresh snapshot after joining, retrying
// on a fixed delay in case the first request raced the admission push.
func (s *Session) requestStateWithRetry(ep transport.Endpoint) {
	op := func() error {
		s.mu.Lock()
		if s.snapshotSeen || !s.connected || s.hostEp != ep {
			s.mu.Unlock()
			return nil
		}
		s.sendLocked(ep, wire.RequestState{})
		s.mu.Unlock()
		return errAwaitingSnapshot
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.stateRequestDelay), stateRequestRetries)
	_ = backoff.Retry(op, policy)
}

// Suspend records a transport-level loss reported by the surrounding
// shell (e.g. the platform signalled the network dropped under a hosting
// listener). Explicit disconnects never go through here.
func (s *Session) Suspend(cause error) {
	s.mu.Lock()
	if s.role == RoleNone {
		s.mu.Unlock()
		return
	}
	listener := s.listener
	hostEp := s.hostEp
	s.listener = nil
	s.hostEp = nil
	s.closeGuestsLocked()
	s.connected = false
	s.canReconnect = true
	if cause != nil {
		s.errMsg = cause.Error()
	} else if s.errMsg == "" {
		s.errMsg = "connection lost"
	}
	s.metrics.recordDisconnect()
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	if hostEp != nil {
		_ = hostEp.Close()
	}
	s.log.Warn("session suspended", zap.Error(cause))
}

// Reconnect resumes a suspended session with its recorded identity: hosts
// reopen the same room id so shared links stay valid, guests redial the
// recorded target with the recorded passcode. Calling it when
// reconnection is not armed is a no-op. Failure re-arms for another
// manual attempt; there is no automatic retry.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.canReconnect {
		s.mu.Unlock()
		return nil
	}
	s.canReconnect = false
	role := s.role
	roomID := s.roomID
	target := s.target
	passcode := s.passcode
	s.mu.Unlock()

	switch role {
	case RoleHost:
		creds := s.ice.Credentials(ctx)
		l, err := s.transport.Open(ctx, roomID, s.acceptGuest, transport.Options{ICE: creds})
		if err != nil {
			s.mu.Lock()
			s.canReconnect = true
			s.errMsg = err.Error()
			s.mu.Unlock()
			return fmt.Errorf("reopen room %s: %w", roomID, err)
		}
		s.mu.Lock()
		s.listener = l
		s.connected = true
		s.errMsg = ""
		s.mu.Unlock()
		s.metrics.recordReconnect()
		s.log.Info("resumed hosting", zap.String("room", roomID))
		return nil

	case RoleGuest:
		if err := s.join(ctx, target, passcode, true); err != nil {
			return err
		}
		s.metrics.recordReconnect()
		return nil

	default:
		return nil
	}
}

// Disconnect tears the session down and clears all resumption state. An
// explicit leave is not recoverable, which is what distinguishes it from
// a network drop. Safe to call repeatedly.
func (s *Session) Disconnect() {
	s.mu.Lock()
	listener := s.listener
	hostEp := s.hostEp
	pending := s.pending
	s.signalJoinLocked(errors.New("session closed"))
	if s.joinTimer != nil {
		s.joinTimer.Stop()
		s.joinTimer = nil
	}
	s.closeGuestsLocked()
	s.listener = nil
	s.hostEp = nil
	s.pending = nil
	s.role = RoleNone
	s.roomID = ""
	s.passcode = ""
	s.target = ""
	s.connected = false
	s.canReconnect = false
	s.errMsg = ""
	s.totalUsers = 1
	s.awaitingPasscode = false
	s.snapshotSeen = false
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	if hostEp != nil {
		_ = hostEp.Close()
	}
	if pending != nil {
		_ = pending.Close()
	}
	s.log.Info("session closed")
}

// sendLocked encodes and sends one frame, absorbing failures: a dead
// endpoint surfaces through its close event, not through send errors.
func (s *Session) sendLocked(ep transport.Endpoint, payload any) {
	frame, err := wire.Encode(payload)
	if err != nil {
		s.log.Warn("encode frame", zap.Error(err))
		return
	}
	if err := ep.Send(frame); err != nil {
		s.log.Debug("send frame", zap.Error(err))
	}
}

// Role reports the current authority position.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Connected reports whether the session currently has live transport.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// CanReconnect reports whether a suspended session may be resumed.
func (s *Session) CanReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canReconnect
}

// Err returns the current user-visible error, empty when healthy.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// AwaitingPasscode reports whether a join is suspended on passcode entry.
func (s *Session) AwaitingPasscode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingPasscode
}

// RoomID returns the hosting identifier, empty for guests.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// TotalUsers counts all participants including the host.
func (s *Session) TotalUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role == RoleHost {
		return s.authorizedCountLocked() + 1
	}
	return s.totalUsers
}

// GuestCount reports authorized guest connections; zero for non-hosts.
func (s *Session) GuestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorizedCountLocked()
}
