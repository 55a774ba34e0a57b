// Package ice resolves ICE/TURN credentials for relay-capable transports.
// Resolution is best effort: a failed fetch falls back to a public
// STUN-only configuration and never aborts connection setup.
package ice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Server is one ICE server entry, as exchanged with credential services.
type Server struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// UnmarshalJSON accepts both the single-string and array forms of "urls".
func (s *Server) UnmarshalJSON(data []byte) error {
	var raw struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Username = raw.Username
	s.Credential = raw.Credential
	s.URLs = nil
	if len(raw.URLs) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw.URLs, &single); err == nil {
		s.URLs = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw.URLs, &many); err != nil {
		return fmt.Errorf("ice: urls must be string or array: %w", err)
	}
	s.URLs = many
	return nil
}

// Source records how a credential set was obtained.
type Source int

const (
	// SourceDefault means the public STUN fallback is in use.
	SourceDefault Source = iota
	// SourceFetched means the credential service answered.
	SourceFetched
)

// Credentials is the two-outcome result of credential resolution. Both
// outcomes are usable; neither is an error.
type Credentials struct {
	Servers []Server
	Source  Source
}

// SourceName labels the source for logging.
func (c Credentials) SourceName() string {
	if c.Source == SourceFetched {
		return "fetched"
	}
	return "default"
}

// Default returns the public STUN-only configuration.
func Default() Credentials {
	return Credentials{
		Servers: []Server{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		Source: SourceDefault,
	}
}

// Provider resolves credentials. Implementations never return an error.
type Provider interface {
	Credentials(ctx context.Context) Credentials
}

// Static always returns a fixed credential set.
type Static Credentials

// Credentials implements Provider.
func (s Static) Credentials(context.Context) Credentials {
	return Credentials(s)
}

// HTTPProvider fetches {"iceServers": [...]} from a credential service.
type HTTPProvider struct {
	client *retryablehttp.Client
	url    string
	log    *zap.Logger
}

// NewHTTPProvider builds a provider for the given service URL.
func NewHTTPProvider(url string, log *zap.Logger) *HTTPProvider {
	if log == nil {
		log = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	// Credential fetch sits on the interactive connect path; keep the
	// retry window short and let the STUN fallback cover real outages.
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = nil
	return &HTTPProvider{client: client, url: url, log: log}
}

// Credentials fetches from the service, falling back silently to Default.
func (p *HTTPProvider) Credentials(ctx context.Context) Credentials {
	if p.url == "" {
		return Default()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Debug("ice credential request build failed", zap.Error(err))
		return Default()
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("ice credential fetch failed", zap.Error(err))
		return Default()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Debug("ice credential fetch rejected", zap.Int("status", resp.StatusCode))
		return Default()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		p.log.Debug("ice credential read failed", zap.Error(err))
		return Default()
	}

	var payload struct {
		ICEServers []Server `json:"iceServers"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.ICEServers) == 0 {
		p.log.Debug("ice credential payload unusable", zap.Error(err))
		return Default()
	}

	return Credentials{Servers: payload.ICEServers, Source: SourceFetched}
}
