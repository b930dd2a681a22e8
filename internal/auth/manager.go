package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"resonate/internal/spotify"
	"resonate/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// SessionManager is the process-facing API over the persisted session:
// loading, transparent refresh on expiry, explicit refresh, and logout.
//
// One SessionManager is constructed per process and handed to whatever
// issues authenticated requests; there is no package-level singleton.
type SessionManager struct {
	mu     sync.RWMutex
	cached *Session

	// refreshGroup collapses concurrent refreshes into a single token
	// endpoint call. Spotify invalidates a refresh token that is used
	// concurrently, so at most one refresh may be in flight; concurrent
	// callers await the same result.
	refreshGroup singleflight.Group

	store         *SessionStore
	client        *spotify.Client
	refreshMargin time.Duration
}

// NewSessionManager creates a session manager.
func NewSessionManager(store *SessionStore, client *spotify.Client, refreshMargin time.Duration) *SessionManager {
	return &SessionManager{
		store:         store,
		client:        client,
		refreshMargin: refreshMargin,
	}
}

// Current returns the current session, refreshing it first when it is
// expired or within the refresh margin of expiring.
//
// Returns ErrNotAuthenticated when no session exists, when the persisted
// file is unreadable (wrong machine, corruption), or when the provider has
// revoked the grant -- in the latter two cases the stored state is erased so
// the app degrades cleanly to the login screen.
func (m *SessionManager) Current(ctx context.Context) (*Session, error) {
	session, err := m.load()
	if err != nil {
		return nil, err
	}

	if !session.ExpiresWithin(m.refreshMargin) {
		return session, nil
	}

	refreshed, err := m.Refresh(ctx)
	if err != nil {
		if IsRetryable(err) && !session.Expired() {
			// Early refresh failed on the network but the token is still
			// valid; hand it out and let a later call retry the refresh.
			logging.Warn("Auth", "Early refresh failed, serving still-valid token: %v", err)
			return session, nil
		}
		return nil, err
	}

	return refreshed, nil
}

// Refresh exchanges the stored refresh token for new token material,
// persists the updated session and returns it. Concurrent calls share one
// token endpoint request.
//
// Provider-rejected grants erase the session and return ErrInvalidGrant;
// network failures return a retryable *TransientError and leave the stored
// session untouched.
func (m *SessionManager) Refresh(ctx context.Context) (*Session, error) {
	result, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

func (m *SessionManager) doRefresh(ctx context.Context) (*Session, error) {
	session, err := m.load()
	if err != nil {
		return nil, err
	}

	if session.RefreshToken == "" {
		// The provider withheld the refresh token at login; the session
		// cannot be renewed. Force a fresh login.
		logging.Warn("Auth", "No refresh token available, forcing re-login")
		m.forceLogout()
		return nil, ErrInvalidGrant
	}

	tokens, err := m.client.RefreshToken(ctx, session.RefreshToken)
	if err != nil {
		var tokenErr *spotify.TokenError
		if errors.As(err, &tokenErr) && tokenErr.IsInvalidGrant() {
			logging.Warn("Auth", "Refresh token revoked by provider, forcing re-login")
			m.forceLogout()
			return nil, ErrInvalidGrant
		}
		return nil, &TransientError{Op: "token refresh", Err: err}
	}

	now := time.Now()
	updated := *session
	updated.AccessToken = tokens.AccessToken
	updated.ExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	updated.LastRefresh = now
	if tokens.TokenType != "" {
		updated.TokenType = tokens.TokenType
	}
	if tokens.Scope != "" {
		updated.Scope = tokens.Scope
	}
	// Spotify occasionally rotates the refresh token; keep the most
	// recently issued one.
	if tokens.RefreshToken != "" {
		updated.RefreshToken = tokens.RefreshToken
	}

	if err := m.store.Save(&updated); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cached = &updated
	m.mu.Unlock()

	logging.Info("Auth", "Token refreshed, new expiry %s", updated.ExpiresAt.Format(time.RFC3339))
	return &updated, nil
}

// AccessToken returns the current bearer token, refreshing first only when
// the expiry boundary has been reached. This is the hot path for the
// playback and API layers: when the token is valid it costs one cache read
// and no network traffic.
func (m *SessionManager) AccessToken(ctx context.Context) (string, error) {
	session, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}

// Logout erases the persisted session and the in-memory cache. Idempotent:
// logging out while already logged out succeeds.
func (m *SessionManager) Logout(ctx context.Context) error {
	if err := m.store.Erase(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()

	logging.Info("Auth", "Logged out")
	return nil
}

// Peek returns the session without refreshing or touching the network, or
// nil when none exists. Used by the UI at startup to decide which screen to
// show; an expired session still counts as "logged in" here because Current
// will transparently refresh it.
func (m *SessionManager) Peek() *Session {
	m.mu.RLock()
	cached := m.cached
	m.mu.RUnlock()
	if cached != nil {
		return cached
	}

	session, err := m.store.Load()
	if err != nil || session == nil {
		return nil
	}

	m.mu.Lock()
	m.cached = session
	m.mu.Unlock()
	return session
}

// Adopt installs a session produced by a completed login flow into the
// in-memory cache, so the first Current call after login does not re-read
// the file.
func (m *SessionManager) Adopt(session *Session) {
	m.mu.Lock()
	m.cached = session
	m.mu.Unlock()
}

// load returns the cached session or reads it from the store. An
// unreadable file is erased and reported as ErrNotAuthenticated; the raw
// decryption detail stays out of the return path.
func (m *SessionManager) load() (*Session, error) {
	m.mu.RLock()
	cached := m.cached
	m.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	session, err := m.store.Load()
	if err != nil {
		logging.Warn("Auth", "Stored session unreadable, forcing re-login")
		m.forceLogout()
		return nil, ErrNotAuthenticated
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}

	m.mu.Lock()
	m.cached = session
	m.mu.Unlock()
	return session, nil
}

// forceLogout is the unrecoverable-failure path: best-effort erase of the
// file plus cache clear.
func (m *SessionManager) forceLogout() {
	if err := m.store.Erase(); err != nil {
		logging.Error("Auth", err, "Failed to erase session during forced logout")
	}

	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}
