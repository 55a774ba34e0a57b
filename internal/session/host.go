package session

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/atch2203/split-the-bill/internal/bill"
	"github.com/atch2203/split-the-bill/internal/transport"
	"github.com/atch2203/split-the-bill/internal/wire"
)

// connState tracks a guest connection through admission.
type connState int

const (
	connPending connState = iota
	connAwaitingAuth
	connAuthorized
	connRejected
	connClosed
)

func (s connState) String() string {
	switch s {
	case connPending:
		return "pending"
	case connAwaitingAuth:
		return "awaiting-auth"
	case connAuthorized:
		return "authorized"
	case connRejected:
		return "rejected"
	default:
		return "closed"
	}
}

// guestConn is the host-side record for one inbound channel. State moves
// pending -> awaiting-auth -> authorized or rejected, and closed from
// anywhere. Only authorized connections receive document traffic.
type guestConn struct {
	ep    transport.Endpoint
	state connState
	timer clockwork.Timer
}

// acceptGuest runs for every inbound channel: register the connection,
// challenge it, and start the handshake clock.
func (s *Session) acceptGuest(ep transport.Endpoint) {
	gc := &guestConn{ep: ep, state: connPending}

	s.mu.Lock()
	s.guests = append(s.guests, gc)
	gc.state = connAwaitingAuth
	gc.timer = s.clock.AfterFunc(s.handshakeTimeout, func() { s.expireGuest(gc) })
	s.sendLocked(ep, wire.AuthRequest{RequiresPasscode: s.passcode != ""})
	s.mu.Unlock()

	ep.SetCallbacks(transport.Callbacks{
		OnMessage: func(data []byte) { s.onGuestMessage(gc, data) },
		OnClose:   func(err error) { s.onGuestClosed(gc, err) },
	})

	s.log.Info("guest connecting", zap.String("conn", ep.RemoteID()))
}

func (s *Session) onGuestMessage(gc *guestConn, data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.log.Debug("dropping unparseable frame from guest",
			zap.String("conn", gc.ep.RemoteID()), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case wire.AuthResponse:
		if gc.state != connAwaitingAuth {
			return
		}
		s.settleAuthLocked(gc, m.Passcode)

	case wire.Action:
		if gc.state != connAuthorized {
			s.log.Debug("dropping action from unauthorized guest",
				zap.String("conn", gc.ep.RemoteID()), zap.Stringer("state", gc.state))
			return
		}
		action, err := bill.DecodeAction(m.Action, m.Data)
		if err != nil {
			s.log.Debug("dropping unknown guest action",
				zap.String("conn", gc.ep.RemoteID()), zap.String("action", m.Action), zap.Error(err))
			return
		}
		if err := s.applyLocked(action); err != nil {
			// The guest's intent referenced state that no longer exists.
			// Resend a snapshot so it converges instead of diverging.
			s.log.Debug("guest action rejected",
				zap.String("conn", gc.ep.RemoteID()), zap.String("action", m.Action), zap.Error(err))
			s.sendLocked(gc.ep, wire.Snapshot{State: s.hooks.State()})
		}

	case wire.RequestState:
		if gc.state != connAuthorized {
			return
		}
		s.sendLocked(gc.ep, wire.Snapshot{State: s.hooks.State()})

	default:
		s.log.Debug("ignoring unexpected frame from guest",
			zap.String("conn", gc.ep.RemoteID()), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// settleAuthLocked judges one auth response. Admission pushes the result,
// a snapshot of the authoritative document, and the new member count to
// everyone; rejection answers and closes.
func (s *Session) settleAuthLocked(gc *guestConn, passcode string) {
	if gc.timer != nil {
		gc.timer.Stop()
		gc.timer = nil
	}

	if s.passcode != "" && passcode != s.passcode {
		gc.state = connRejected
		s.sendLocked(gc.ep, wire.AuthResult{Success: false, Reason: "incorrect passcode"})
		s.removeGuestLocked(gc)
		s.metrics.recordAuthRejected()
		s.log.Info("guest rejected", zap.String("conn", gc.ep.RemoteID()))
		ep := gc.ep
		go func() { _ = ep.Close() }()
		return
	}

	gc.state = connAuthorized
	s.sendLocked(gc.ep, wire.AuthResult{Success: true})
	s.sendLocked(gc.ep, wire.Snapshot{State: s.hooks.State()})
	s.broadcastMemberCountLocked()
	s.metrics.recordAuthAccepted()
	s.metrics.setGuests(s.authorizedCountLocked())
	s.log.Info("guest authorized",
		zap.String("conn", gc.ep.RemoteID()),
		zap.Int("guests", s.authorizedCountLocked()))
}

// expireGuest closes a connection that never completed its handshake.
func (s *Session) expireGuest(gc *guestConn) {
	s.mu.Lock()
	if gc.state != connAwaitingAuth {
		s.mu.Unlock()
		return
	}
	gc.state = connClosed
	s.removeGuestLocked(gc)
	s.mu.Unlock()

	s.log.Info("guest handshake timed out", zap.String("conn", gc.ep.RemoteID()))
	_ = gc.ep.Close()
}

// onGuestClosed drops a departed connection and tells everyone left.
func (s *Session) onGuestClosed(gc *guestConn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gc.state == connClosed {
		return
	}
	wasAuthorized := gc.state == connAuthorized
	gc.state = connClosed
	if gc.timer != nil {
		gc.timer.Stop()
		gc.timer = nil
	}
	s.removeGuestLocked(gc)

	if wasAuthorized {
		s.broadcastMemberCountLocked()
		s.metrics.setGuests(s.authorizedCountLocked())
		s.log.Info("guest left",
			zap.String("conn", gc.ep.RemoteID()),
			zap.Int("guests", s.authorizedCountLocked()),
			zap.Error(err))
	}
}

func (s *Session) removeGuestLocked(gc *guestConn) {
	for i, g := range s.guests {
		if g == gc {
			s.guests = append(s.guests[:i], s.guests[i+1:]...)
			return
		}
	}
}

// broadcastUpdateLocked pushes one applied action to every authorized
// guest as an incremental update.
func (s *Session) broadcastUpdateLocked(a bill.Action) {
	name, data, err := bill.EncodeAction(a)
	if err != nil {
		s.log.Warn("encode update", zap.Error(err))
		return
	}
	frame, err := wire.Encode(wire.StateUpdate{Action: name, Data: data})
	if err != nil {
		s.log.Warn("encode update frame", zap.Error(err))
		return
	}
	for _, gc := range s.guests {
		if gc.state != connAuthorized {
			continue
		}
		if err := gc.ep.Send(frame); err != nil {
			s.log.Debug("update send failed", zap.String("conn", gc.ep.RemoteID()), zap.Error(err))
		}
	}
	s.metrics.recordBroadcast()
}

// broadcastMemberCountLocked announces the participant total, host
// included, to every authorized guest.
func (s *Session) broadcastMemberCountLocked() {
	count := s.authorizedCountLocked() + 1
	s.totalUsers = count
	frame, err := wire.Encode(wire.MemberCount{Count: count})
	if err != nil {
		return
	}
	for _, gc := range s.guests {
		if gc.state != connAuthorized {
			continue
		}
		if err := gc.ep.Send(frame); err != nil {
			s.log.Debug("member count send failed", zap.String("conn", gc.ep.RemoteID()))
		}
	}
}

func (s *Session) authorizedCountLocked() int {
	n := 0
	for _, gc := range s.guests {
		if gc.state == connAuthorized {
			n++
		}
	}
	return n
}

// closeGuestsLocked severs every guest connection without ceremony, for
// teardown and suspension.
func (s *Session) closeGuestsLocked() {
	for _, gc := range s.guests {
		gc.state = connClosed
		if gc.timer != nil {
			gc.timer.Stop()
			gc.timer = nil
		}
		ep := gc.ep
		go func() { _ = ep.Close() }()
	}
	s.guests = nil
	s.metrics.setGuests(0)
}
