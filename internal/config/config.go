package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the splitd runtime parameters.
type Config struct {
	ListenAddress       string        `mapstructure:"listen_address"`
	BaseURL             string        `mapstructure:"base_url"`
	MetricsAddress      string        `mapstructure:"metrics_address"`
	LogLevel            string        `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	HandshakeTimeout    time.Duration `mapstructure:"handshake_timeout"`
	StateRequestDelay   time.Duration `mapstructure:"state_request_delay"`
	ICE                 ICEConfig     `mapstructure:"ice"`
	Resume              ResumeConfig  `mapstructure:"resume"`
}

// ICEConfig points at the optional TURN credential service.
type ICEConfig struct {
	CredentialURL string `mapstructure:"credential_url"`
}

// ResumeConfig describes the sealed session resumption file.
type ResumeConfig struct {
	Path          string `mapstructure:"path"`
	PassphraseEnv string `mapstructure:"passphrase_env"`
}

const (
	defaultListenAddress       = "0.0.0.0:8787"
	defaultBaseURL             = "http://localhost:8787"
	defaultMetricsAddress      = "127.0.0.1:9090"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultHandshakeTimeout    = 30 * time.Second
	defaultStateRequestDelay   = 1500 * time.Millisecond
	defaultResumePath          = "data/session.json"
	defaultPassphraseEnv       = "SPLITBILL_RESUME_PASSPHRASE"
)

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with SPLITBILL_ and can override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPLITBILL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("base_url", defaultBaseURL)
	v.SetDefault("metrics_address", defaultMetricsAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("handshake_timeout", defaultHandshakeTimeout.String())
	v.SetDefault("state_request_delay", defaultStateRequestDelay.String())
	v.SetDefault("ice.credential_url", "")
	v.SetDefault("resume.path", defaultResumePath)
	v.SetDefault("resume.passphrase_env", defaultPassphraseEnv)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	for _, d := range []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"shutdown_grace_period", &cfg.ShutdownGracePeriod, defaultShutdownGracePeriod},
		{"handshake_timeout", &cfg.HandshakeTimeout, defaultHandshakeTimeout},
		{"state_request_delay", &cfg.StateRequestDelay, defaultStateRequestDelay},
	} {
		if v.IsSet(d.key) {
			dur, err := time.ParseDuration(v.GetString(d.key))
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = dur
		} else {
			*d.dst = d.def
		}
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = defaultMetricsAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Resume.Path == "" {
		cfg.Resume.Path = defaultResumePath
	}
	if cfg.Resume.PassphraseEnv == "" {
		cfg.Resume.PassphraseEnv = defaultPassphraseEnv
	}

	return cfg, nil
}

// ResumePassphrase fetches the resumption passphrase from the configured
// environment variable.
func (c Config) ResumePassphrase() (string, error) {
	env := c.Resume.PassphraseEnv
	if env == "" {
		env = defaultPassphraseEnv
	}
	val := strings.TrimSpace(getenv(env))
	if val == "" {
		return "", fmt.Errorf("resume passphrase env %s is empty", env)
	}
	return val, nil
}

// split out for testing.
var getenv = os.Getenv
