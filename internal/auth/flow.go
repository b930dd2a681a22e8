package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"resonate/internal/spotify"
	"resonate/pkg/logging"
	pkgoauth "resonate/pkg/oauth"

	"github.com/google/uuid"
)

// pendingAttempt is the ephemeral per-login PKCE state. It lives in memory
// for the duration of one attempt and is discarded when the attempt
// completes, fails, or times out. Never persisted.
type pendingAttempt struct {
	pkce  *pkgoauth.PKCEChallenge
	state string
}

// FlowController orchestrates the browser-based login: PKCE generation,
// callback listener, authorization URL, code exchange, profile fetch and
// session persistence.
//
// Concurrent logins are not supported; a second Login while one is in
// flight fails with ErrLoginInProgress (and would fail to bind the
// callback port anyway).
type FlowController struct {
	mu      sync.Mutex
	pending *pendingAttempt
	loginMu sync.Mutex
	inLogin bool

	client        *spotify.Client
	store         *SessionStore
	redirectURI   string
	listenTimeout time.Duration

	// openBrowser is swapped out in tests to avoid launching a real browser.
	openBrowser func(string) error
}

// NewFlowController creates a flow controller.
func NewFlowController(client *spotify.Client, store *SessionStore, redirectURI string, listenTimeout time.Duration) *FlowController {
	return &FlowController{
		client:        client,
		store:         store,
		redirectURI:   redirectURI,
		listenTimeout: listenTimeout,
		openBrowser:   OpenBrowser,
	}
}

// AuthURL generates a fresh PKCE pair and returns the authorization URL and
// its anti-CSRF state. This is the lower-level primitive for hosts that
// capture the redirect themselves; the matching ExchangeCode call consumes
// the pending PKCE state. Each call replaces any previous pending attempt.
func (f *FlowController) AuthURL() (authURL, state string, err error) {
	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return "", "", err
	}
	state, err = pkgoauth.GenerateState()
	if err != nil {
		return "", "", err
	}

	authURL, err = f.client.AuthorizeURL(state, pkce)
	if err != nil {
		return "", "", err
	}

	f.mu.Lock()
	f.pending = &pendingAttempt{pkce: pkce, state: state}
	f.mu.Unlock()

	return authURL, state, nil
}

// ExchangeCode completes a login whose redirect was captured by the host:
// it validates the returned state against the pending attempt, exchanges
// the code, fetches the profile and persists the session. The pending PKCE
// state is consumed whether or not the exchange succeeds.
func (f *FlowController) ExchangeCode(ctx context.Context, code, returnedState string) (*Session, error) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	if pending == nil {
		return nil, ErrNotAuthenticated
	}
	if pending.state != returnedState {
		logging.Warn("Auth", "State mismatch on code exchange - possible CSRF (expected len %d, got len %d)",
			len(pending.state), len(returnedState))
		return nil, ErrStateMismatch
	}

	return f.completeExchange(ctx, code, pending.pkce.CodeVerifier)
}

// Login runs the full browser-based flow and blocks until it completes,
// fails, or times out. The callback listener is bound before the browser is
// launched so a fast redirect can never race the listener.
func (f *FlowController) Login(ctx context.Context) (*Session, error) {
	f.loginMu.Lock()
	if f.inLogin {
		f.loginMu.Unlock()
		return nil, ErrLoginInProgress
	}
	f.inLogin = true
	f.loginMu.Unlock()

	defer func() {
		f.loginMu.Lock()
		f.inLogin = false
		f.loginMu.Unlock()
	}()

	attemptID := uuid.NewString()
	logging.Info("Auth", "Starting login flow (attempt %s)", attemptID)

	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := pkgoauth.GenerateState()
	if err != nil {
		return nil, err
	}

	server, err := NewCallbackServer(f.redirectURI)
	if err != nil {
		return nil, err
	}

	// Bind first. The browser must not be able to hit the redirect before
	// the listener is ready.
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := server.Start(listenCtx); err != nil {
		logging.Warn("Auth", "Callback listener bind failed (attempt %s): %v", attemptID, err)
		return nil, err
	}
	defer server.Stop()

	authURL, err := f.client.AuthorizeURL(state, pkce)
	if err != nil {
		return nil, err
	}

	// Fire-and-forget: a sandboxed host may block browser launching, in
	// which case the user can still open the URL manually before the
	// listener times out.
	if err := f.openBrowser(authURL); err != nil {
		logging.Warn("Auth", "Failed to open browser, navigate manually to the authorization URL: %v", err)
	}

	result, err := server.WaitForCallback(ctx, f.listenTimeout)
	if err != nil {
		logging.Info("Auth", "Login attempt %s ended without callback: %v", attemptID, err)
		return nil, err
	}

	if result.IsError() {
		return nil, &ProviderError{Code: result.Error, Description: result.ErrorDescription}
	}
	if result.State != state {
		logging.Warn("Auth", "State mismatch on callback - possible CSRF (attempt %s)", attemptID)
		return nil, ErrStateMismatch
	}

	session, err := f.completeExchange(ctx, result.Code, pkce.CodeVerifier)
	if err != nil {
		return nil, err
	}

	logging.Info("Auth", "Login flow completed for user %s (attempt %s)", session.User.ID, attemptID)
	return session, nil
}

// completeExchange performs the token exchange and profile fetch, then
// assembles and persists the session. Nothing is persisted unless every
// step succeeded.
func (f *FlowController) completeExchange(ctx context.Context, code, codeVerifier string) (*Session, error) {
	tokens, err := f.client.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return nil, mapTokenError("code exchange", err)
	}

	if tokens.RefreshToken == "" {
		// Tolerated: the session works until the access token expires,
		// then the user logs in again.
		logging.Warn("Auth", "Provider withheld refresh token; session will not be refreshable")
	}

	profile, err := f.client.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, &TransientError{Op: "profile fetch", Err: err}
	}

	now := time.Now()
	session := &Session{
		User:         userFromProfile(profile),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		Scope:        tokens.Scope,
		ExpiresAt:    now.Add(time.Duration(tokens.ExpiresIn) * time.Second),
		CreatedAt:    now,
		LastRefresh:  now,
	}

	if err := f.store.Save(session); err != nil {
		return nil, err
	}

	return session, nil
}

// mapTokenError classifies a token endpoint failure: explicit provider
// rejection becomes a ProviderError, anything else (DNS, timeouts,
// connection resets) is transient and retryable.
func mapTokenError(op string, err error) error {
	var tokenErr *spotify.TokenError
	if errors.As(err, &tokenErr) {
		return &ProviderError{Code: tokenErr.Code, Description: tokenErr.Description}
	}
	return &TransientError{Op: op, Err: err}
}

// userFromProfile converts the provider's profile shape to the session's.
func userFromProfile(p *spotify.UserProfile) User {
	images := make([]Image, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, Image{URL: img.URL, Height: img.Height, Width: img.Width})
	}

	return User{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Images:      images,
		Product:     p.Product,
		Country:     p.Country,
	}
}
