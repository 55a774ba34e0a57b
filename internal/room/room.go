// Package room generates session identifiers and builds the shareable
// links that carry them, together with an optional passcode.
package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 6
)

// Link is the parsed content of a share URL.
type Link struct {
	RoomID   string
	Passcode string
}

// GenerateID returns a short random room identifier.
func GenerateID() string {
	out := make([]byte, idLength)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the process is in serious trouble;
			// fall back to a fixed char rather than panic in link building.
			out[i] = idAlphabet[0]
			continue
		}
		out[i] = idAlphabet[n.Int64()]
	}
	return string(out)
}

// ShareURL appends room and passcode query parameters to a base URL.
func ShareURL(base, roomID, passcode string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("room: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("room", roomID)
	if passcode != "" {
		q.Set("p", passcode)
	} else {
		q.Del("p")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Parse extracts the room id and passcode from a share URL or from a bare
// room id.
func Parse(raw string) (Link, error) {
	if raw == "" {
		return Link{}, errors.New("room: empty link")
	}
	if !strings.Contains(raw, "://") && !strings.Contains(raw, "?") {
		return Link{RoomID: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("room: parse link: %w", err)
	}
	id := u.Query().Get("room")
	if id == "" {
		return Link{}, errors.New("room: link has no room id")
	}
	return Link{RoomID: id, Passcode: u.Query().Get("p")}, nil
}

// ChannelURL converts a share link's host into the websocket target for a
// room, e.g. https://bill.example/?room=ab12 -> wss://bill.example/rooms/ab12.
func ChannelURL(raw string) (string, error) {
	link, err := Parse(raw)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.New("room: link has no host for channel dialing")
	}
	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/rooms/%s", scheme, u.Host, link.RoomID), nil
}
