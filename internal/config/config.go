package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"resonate/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/resonate"
	configFileName = "config.yaml"
)

// AuthConfig holds the settings for the OAuth flow and session storage.
type AuthConfig struct {
	// ClientID is the Spotify application client ID. PKCE public client,
	// so there is no client secret anywhere in the configuration.
	ClientID string `yaml:"clientID,omitempty"`

	// RedirectURI must exactly match the redirect URI registered with
	// Spotify, including the path. The callback listener binds the host
	// and port embedded here.
	RedirectURI string `yaml:"redirectURI,omitempty"`

	// Scopes overrides the default scope list. Leave empty for the defaults.
	Scopes []string `yaml:"scopes,omitempty"`

	// DataDir overrides the directory holding the encrypted session file.
	// Defaults to the per-user config directory.
	DataDir string `yaml:"dataDir,omitempty"`

	// ListenTimeout bounds how long the callback listener waits for the
	// browser leg of a login before giving up.
	ListenTimeout time.Duration `yaml:"listenTimeout,omitempty"`

	// RefreshMargin is how long before expiry a token is treated as
	// expiring and refreshed early.
	RefreshMargin time.Duration `yaml:"refreshMargin,omitempty"`
}

// Config is the top-level resonate configuration.
type Config struct {
	Auth AuthConfig `yaml:"auth,omitempty"`
}

// DefaultScopes is the fixed scope list the companion app requests: profile,
// playback read/modify, library, playlists, listening history, follows and
// the streaming scope for the playback SDK.
var DefaultScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"user-library-read",
	"user-library-modify",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-read-recently-played",
	"user-top-read",
	"user-follow-read",
	"user-follow-modify",
	"streaming",
}

const (
	// DefaultClientID is the Spotify client ID of the companion app.
	DefaultClientID = "a53c8535d69c4f0d9109b007bf10ca2d"

	// DefaultRedirectURI is the redirect URI registered with Spotify.
	// Port 8888 avoids the UI host's dev server on 3000.
	DefaultRedirectURI = "http://127.0.0.1:8888/callback"

	// DefaultListenTimeout leaves enough room for a manual login with 2FA.
	DefaultListenTimeout = 5 * time.Minute

	// DefaultRefreshMargin absorbs clock skew and request latency so a
	// token handed to a caller does not expire mid-request.
	DefaultRefreshMargin = 60 * time.Second
)

// GetDefaultConfigPathOrPanic returns the per-user resonate config directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// GetDefaultConfig returns a Config populated with the built-in defaults.
func GetDefaultConfig() Config {
	return Config{
		Auth: AuthConfig{
			ClientID:      DefaultClientID,
			RedirectURI:   DefaultRedirectURI,
			Scopes:        append([]string(nil), DefaultScopes...),
			ListenTimeout: DefaultListenTimeout,
			RefreshMargin: DefaultRefreshMargin,
		},
	}
}

// LoadConfig loads configuration from the specified directory, falling back
// to defaults when no config.yaml exists. Environment variables
// RESONATE_CLIENT_ID and RESONATE_REDIRECT_URI override both.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
			return applyEnvOverrides(cfg), nil
		}
		logging.Warn("Config", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	cfg = fillDefaults(cfg)
	logging.Info("Config", "Loaded configuration from %s", configFilePath)
	return applyEnvOverrides(cfg), nil
}

// fillDefaults backfills any field the user's config.yaml left unset.
func fillDefaults(cfg Config) Config {
	if cfg.Auth.ClientID == "" {
		cfg.Auth.ClientID = DefaultClientID
	}
	if cfg.Auth.RedirectURI == "" {
		cfg.Auth.RedirectURI = DefaultRedirectURI
	}
	if len(cfg.Auth.Scopes) == 0 {
		cfg.Auth.Scopes = append([]string(nil), DefaultScopes...)
	}
	if cfg.Auth.ListenTimeout <= 0 {
		cfg.Auth.ListenTimeout = DefaultListenTimeout
	}
	if cfg.Auth.RefreshMargin <= 0 {
		cfg.Auth.RefreshMargin = DefaultRefreshMargin
	}
	return cfg
}

func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("RESONATE_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("RESONATE_REDIRECT_URI"); v != "" {
		cfg.Auth.RedirectURI = v
	}
	return cfg
}
