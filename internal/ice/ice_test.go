package ice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestHTTPProviderFetchesServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"iceServers":[{"urls":"turn:turn.example:3478","username":"u","credential":"c"}]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(srv.URL, zaptest.NewLogger(t))
	creds := p.Credentials(context.Background())

	if creds.Source != SourceFetched {
		t.Fatalf("source %v, want fetched", creds.Source)
	}
	if len(creds.Servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(creds.Servers))
	}
	s := creds.Servers[0]
	if len(s.URLs) != 1 || s.URLs[0] != "turn:turn.example:3478" {
		t.Fatalf("unexpected urls: %v", s.URLs)
	}
	if s.Username != "u" || s.Credential != "c" {
		t.Fatalf("credentials not carried: %+v", s)
	}
}

func TestHTTPProviderFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(srv.URL, zaptest.NewLogger(t))
	creds := p.Credentials(context.Background())

	if creds.Source != SourceDefault {
		t.Fatalf("source %v, want default fallback", creds.Source)
	}
	if len(creds.Servers) == 0 {
		t.Fatalf("fallback must still provide STUN servers")
	}
}

func TestHTTPProviderFallsBackOnBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"iceServers":[]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(srv.URL, zaptest.NewLogger(t))
	if creds := p.Credentials(context.Background()); creds.Source != SourceDefault {
		t.Fatalf("expected fallback for empty server list")
	}
}

func TestHTTPProviderEmptyURLUsesDefault(t *testing.T) {
	p := NewHTTPProvider("", zaptest.NewLogger(t))
	if creds := p.Credentials(context.Background()); creds.Source != SourceDefault {
		t.Fatalf("expected default credentials without a service url")
	}
}

func TestServerUnmarshalURLArray(t *testing.T) {
	var s Server
	if err := s.UnmarshalJSON([]byte(`{"urls":["stun:a","stun:b"]}`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(s.URLs) != 2 {
		t.Fatalf("urls %v", s.URLs)
	}
}

func TestStaticProvider(t *testing.T) {
	p := Static(Default())
	creds := p.Credentials(context.Background())
	if creds.Source != SourceDefault || len(creds.Servers) == 0 {
		t.Fatalf("unexpected static credentials: %+v", creds)
	}
	if creds.SourceName() != "default" {
		t.Fatalf("source name %q", creds.SourceName())
	}
}
