package cmd

import (
	"fmt"
	"time"

	"resonate/internal/auth"
	"resonate/internal/config"
	"resonate/internal/spotify"

	"github.com/jedib0t/go-pretty/v6/text"
)

// authBackend bundles the wired-up auth components for one command
// invocation. Commands construct it fresh; there is no shared state beyond
// the session file on disk.
type authBackend struct {
	cfg     config.Config
	store   *auth.SessionStore
	client  *spotify.Client
	flow    *auth.FlowController
	manager *auth.SessionManager
}

// newAuthBackend loads the configuration and wires the session store,
// provider client, login flow and session manager together.
func newAuthBackend() (*authBackend, error) {
	cfg, err := config.LoadConfig(authConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dataDir := cfg.Auth.DataDir
	if dataDir == "" {
		dataDir = authConfigPath
	}

	store := auth.NewSessionStore(dataDir)
	client := spotify.NewClient(spotify.ClientConfig{
		ClientID:    cfg.Auth.ClientID,
		RedirectURI: cfg.Auth.RedirectURI,
		Scopes:      cfg.Auth.Scopes,
	})

	return &authBackend{
		cfg:     cfg,
		store:   store,
		client:  client,
		flow:    auth.NewFlowController(client, store, cfg.Auth.RedirectURI, cfg.Auth.ListenTimeout),
		manager: auth.NewSessionManager(store, client, cfg.Auth.RefreshMargin),
	}, nil
}

// formatDuration formats a duration in coarse human units.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiryWithDirection formats a time as "in X" or "expired X ago".
func formatExpiryWithDirection(expiresAt time.Time) string {
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}
