package room

import (
	"strings"
	"testing"
)

func TestGenerateIDShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id := GenerateID()
		if len(id) != idLength {
			t.Fatalf("id %q has length %d, want %d", id, len(id), idLength)
		}
		for _, r := range id {
			if !strings.ContainsRune(idAlphabet, r) {
				t.Fatalf("id %q contains %q outside alphabet", id, r)
			}
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("ids are not random")
	}
}

func TestShareURLRoundTrip(t *testing.T) {
	share, err := ShareURL("https://bill.example/", "ab12cd", "4321")
	if err != nil {
		t.Fatalf("share url: %v", err)
	}
	link, err := Parse(share)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if link.RoomID != "ab12cd" || link.Passcode != "4321" {
		t.Fatalf("unexpected link: %+v", link)
	}
}

func TestShareURLWithoutPasscode(t *testing.T) {
	share, err := ShareURL("https://bill.example/", "ab12cd", "")
	if err != nil {
		t.Fatalf("share url: %v", err)
	}
	if strings.Contains(share, "p=") {
		t.Fatalf("passcode param present in %q", share)
	}
	link, err := Parse(share)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if link.Passcode != "" {
		t.Fatalf("expected no passcode, got %q", link.Passcode)
	}
}

func TestParseBareRoomID(t *testing.T) {
	link, err := Parse("ab12cd")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if link.RoomID != "ab12cd" || link.Passcode != "" {
		t.Fatalf("unexpected link: %+v", link)
	}
}

func TestParseRejectsEmptyAndMissingRoom(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected error for empty link")
	}
	if _, err := Parse("https://bill.example/?p=1234"); err == nil {
		t.Fatalf("expected error for link without room id")
	}
}

func TestChannelURL(t *testing.T) {
	got, err := ChannelURL("https://bill.example/?room=ab12cd&p=4321")
	if err != nil {
		t.Fatalf("channel url: %v", err)
	}
	if got != "wss://bill.example/rooms/ab12cd" {
		t.Fatalf("channel url %q", got)
	}

	got, err = ChannelURL("http://127.0.0.1:8787/?room=ab12cd")
	if err != nil {
		t.Fatalf("channel url: %v", err)
	}
	if got != "ws://127.0.0.1:8787/rooms/ab12cd" {
		t.Fatalf("channel url %q", got)
	}
}

func TestChannelURLNeedsHost(t *testing.T) {
	if _, err := ChannelURL("ab12cd"); err == nil {
		t.Fatalf("expected error for bare room id")
	}
}
