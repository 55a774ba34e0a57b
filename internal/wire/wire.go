// Package wire defines the message vocabulary exchanged between a host and
// its guests. Every frame is a JSON envelope carrying a type tag and a
// typed payload.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atch2203/split-the-bill/internal/bill"
)

// Message type tags.
const (
	TypeAuthRequest  = "authRequest"
	TypeAuthResponse = "authResponse"
	TypeAuthResult   = "authResult"
	TypeSnapshot     = "snapshot"
	TypeStateUpdate  = "stateUpdate"
	TypeAction       = "action"
	TypeMemberCount  = "memberCount"
	TypeRequestState = "requestState"
)

// ErrUnknownType reports a frame whose tag is outside the protocol. The
// session drops such frames instead of tearing down the connection.
var ErrUnknownType = errors.New("wire: unknown message type")

// AuthRequest opens the handshake, host to guest.
type AuthRequest struct {
	RequiresPasscode bool `json:"requiresPasscode"`
}

// AuthResponse answers the challenge, guest to host.
type AuthResponse struct {
	Passcode string `json:"passcode"`
}

// AuthResult admits or rejects the guest.
type AuthResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Snapshot carries the full document, host to guest.
type Snapshot struct {
	State bill.Bill `json:"state"`
}

// StateUpdate carries one applied mutation for incremental propagation,
// host to guests.
type StateUpdate struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Action is a guest-originated intent forwarded to the host. It shares the
// StateUpdate encoding; the direction distinguishes the two.
type Action struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// MemberCount reports the participant total including the host.
type MemberCount struct {
	Count int `json:"count"`
}

// RequestState demands a fresh snapshot, guest to host.
type RequestState struct{}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps a payload in its envelope.
func Encode(payload any) ([]byte, error) {
	tag, err := tagOf(payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", tag, err)
	}
	return json.Marshal(envelope{Type: tag, Payload: raw})
}

// Decode parses an envelope into its typed payload.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("wire: decode envelope: %w", err)
	}

	var payload any
	switch env.Type {
	case TypeAuthRequest:
		payload = &AuthRequest{}
	case TypeAuthResponse:
		payload = &AuthResponse{}
	case TypeAuthResult:
		payload = &AuthResult{}
	case TypeSnapshot:
		payload = &Snapshot{}
	case TypeStateUpdate:
		payload = &StateUpdate{}
	case TypeAction:
		payload = &Action{}
	case TypeMemberCount:
		payload = &MemberCount{}
	case TypeRequestState:
		return RequestState{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return nil, fmt.Errorf("wire: decode %s payload: %w", env.Type, err)
		}
	}

	switch p := payload.(type) {
	case *AuthRequest:
		return *p, nil
	case *AuthResponse:
		return *p, nil
	case *AuthResult:
		return *p, nil
	case *Snapshot:
		return *p, nil
	case *StateUpdate:
		return *p, nil
	case *Action:
		return *p, nil
	case *MemberCount:
		return *p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func tagOf(payload any) (string, error) {
	switch payload.(type) {
	case AuthRequest, *AuthRequest:
		return TypeAuthRequest, nil
	case AuthResponse, *AuthResponse:
		return TypeAuthResponse, nil
	case AuthResult, *AuthResult:
		return TypeAuthResult, nil
	case Snapshot, *Snapshot:
		return TypeSnapshot, nil
	case StateUpdate, *StateUpdate:
		return TypeStateUpdate, nil
	case Action, *Action:
		return TypeAction, nil
	case MemberCount, *MemberCount:
		return TypeMemberCount, nil
	case RequestState, *RequestState:
		return TypeRequestState, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownType, payload)
	}
}
