package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddress != defaultListenAddress {
		t.Fatalf("expected default listen address %s, got %s", defaultListenAddress, cfg.ListenAddress)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level %s, got %s", defaultLogLevel, cfg.LogLevel)
	}
	if cfg.HandshakeTimeout != defaultHandshakeTimeout {
		t.Fatalf("expected default handshake timeout %s, got %s", defaultHandshakeTimeout, cfg.HandshakeTimeout)
	}
	if cfg.StateRequestDelay != defaultStateRequestDelay {
		t.Fatalf("expected default state request delay %s, got %s", defaultStateRequestDelay, cfg.StateRequestDelay)
	}
	if cfg.Resume.Path != defaultResumePath {
		t.Fatalf("expected default resume path %s, got %s", defaultResumePath, cfg.Resume.Path)
	}
	if cfg.Resume.PassphraseEnv != defaultPassphraseEnv {
		t.Fatalf("expected default passphrase env %s, got %s", defaultPassphraseEnv, cfg.Resume.PassphraseEnv)
	}
}

func TestLoadWithFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`
listen_address: "127.0.0.1:7001"
base_url: "https://bill.example"
log_level: "debug"
handshake_timeout: "5s"
ice:
  credential_url: "https://turn.example/creds"
resume:
  path: "/tmp/session.json"
  passphrase_env: "CUSTOM_ENV"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SPLITBILL_LISTEN_ADDRESS", ":6000")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ListenAddress != ":6000" {
		t.Fatalf("env override lost: %s", cfg.ListenAddress)
	}
	if cfg.BaseURL != "https://bill.example" {
		t.Fatalf("base url not read: %s", cfg.BaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level not read: %s", cfg.LogLevel)
	}
	if cfg.HandshakeTimeout != 5*time.Second {
		t.Fatalf("handshake timeout not parsed: %s", cfg.HandshakeTimeout)
	}
	if cfg.ICE.CredentialURL != "https://turn.example/creds" {
		t.Fatalf("ice url not read: %s", cfg.ICE.CredentialURL)
	}
	if cfg.Resume.Path != "/tmp/session.json" || cfg.Resume.PassphraseEnv != "CUSTOM_ENV" {
		t.Fatalf("resume config not read: %+v", cfg.Resume)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`handshake_timeout: "soon"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(configPath); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestResumePassphrase(t *testing.T) {
	t.Cleanup(func() { getenv = os.Getenv })

	getenv = func(key string) string {
		if key == "CUSTOM_ENV" {
			return " secret "
		}
		return ""
	}

	cfg := Config{Resume: ResumeConfig{PassphraseEnv: "CUSTOM_ENV"}}
	got, err := cfg.ResumePassphrase()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secret" {
		t.Fatalf("expected trimmed passphrase, got %q", got)
	}

	getenv = func(string) string { return "" }
	if _, err := cfg.ResumePassphrase(); err == nil {
		t.Fatalf("expected error for empty passphrase")
	}
}
