package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"resonate/internal/spotify"
	"resonate/internal/spotify/spotifytest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func premiumProfile() spotify.UserProfile {
	return spotify.UserProfile{
		ID:          "u1",
		DisplayName: "Test User",
		Email:       "u1@example.com",
		Product:     "premium",
		Country:     "DE",
	}
}

type flowFixture struct {
	stub        *spotifytest.Server
	store       *SessionStore
	flow        *FlowController
	storeDir    string
	redirectURI string
}

func newFlowFixture(t *testing.T, cfg spotifytest.Config) *flowFixture {
	t.Helper()

	stub := spotifytest.New(cfg)
	t.Cleanup(stub.Close)

	redirectURI := freeRedirectURI(t)
	client := spotify.NewClient(spotify.ClientConfig{
		ClientID:    "test-client",
		RedirectURI: redirectURI,
		Scopes:      []string{"user-read-private", "streaming"},
		AccountsURL: stub.URL(),
		APIURL:      stub.URL(),
	})

	storeDir := t.TempDir()
	store := NewSessionStore(storeDir)
	flow := NewFlowController(client, store, redirectURI, 2*time.Second)
	flow.openBrowser = func(string) error { return nil }

	return &flowFixture{
		stub:        stub,
		store:       store,
		flow:        flow,
		storeDir:    storeDir,
		redirectURI: redirectURI,
	}
}

func TestFlowController_AuthURL(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{ClientID: "test-client"})

	authURL, state, err := fx.flow.AuthURL()
	require.NoError(t, err)
	require.NotEmpty(t, state)

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, fx.redirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "user-read-private streaming", q.Get("scope"))
}

func TestFlowController_AuthURL_FreshStatePerAttempt(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{})

	_, state1, err := fx.flow.AuthURL()
	require.NoError(t, err)
	url2, state2, err := fx.flow.AuthURL()
	require.NoError(t, err)

	assert.NotEqual(t, state1, state2, "each attempt must generate a fresh state")
	assert.Contains(t, url2, state2)
}

func TestFlowController_ExchangeCode_EndToEnd(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{
		ClientID:     "test-client",
		AcceptedCode: "abc123",
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		ExpiresIn:    3600,
		Profile:      premiumProfile(),
	})

	_, state, err := fx.flow.AuthURL()
	require.NoError(t, err)

	session, err := fx.flow.ExchangeCode(context.Background(), "abc123", state)
	require.NoError(t, err)

	assert.Equal(t, "AT1", session.AccessToken)
	assert.Equal(t, "RT1", session.RefreshToken)
	assert.Equal(t, "u1", session.User.ID)
	assert.True(t, session.IsPremium())
	assert.False(t, session.Expired())

	// Simulated process restart: a fresh store against the same file must
	// yield the same session.
	reloaded, err := NewSessionStore(fx.storeDir).Load()
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, "AT1", reloaded.AccessToken)
	assert.Equal(t, "u1", reloaded.User.ID)
	assert.True(t, reloaded.IsPremium())
}

func TestFlowController_ExchangeCode_StateMismatch(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{AcceptedCode: "abc123"})

	_, _, err := fx.flow.AuthURL()
	require.NoError(t, err)

	_, err = fx.flow.ExchangeCode(context.Background(), "abc123", "attacker-state")
	assert.ErrorIs(t, err, ErrStateMismatch)

	// The exchange must have been aborted before any token endpoint call.
	assert.Zero(t, fx.stub.ExchangeCalls())
	assert.False(t, fx.store.Exists(), "no partial session may be persisted")
}

func TestFlowController_ExchangeCode_NoPendingAttempt(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{})

	_, err := fx.flow.ExchangeCode(context.Background(), "abc123", "xyz")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFlowController_ExchangeCode_ConsumesPendingState(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{AcceptedCode: "abc123", Profile: premiumProfile()})

	_, state, err := fx.flow.AuthURL()
	require.NoError(t, err)

	_, err = fx.flow.ExchangeCode(context.Background(), "abc123", state)
	require.NoError(t, err)

	// The verifier/state pair is single-use.
	_, err = fx.flow.ExchangeCode(context.Background(), "abc123", state)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestFlowController_ExchangeCode_ProviderRejection(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{AcceptedCode: "the-only-valid-code"})

	_, state, err := fx.flow.AuthURL()
	require.NoError(t, err)

	_, err = fx.flow.ExchangeCode(context.Background(), "stolen-code", state)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "invalid_grant", provErr.Code)
	assert.False(t, fx.store.Exists(), "no partial session may be persisted")
}

func TestFlowController_ExchangeCode_MissingRefreshTokenTolerated(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{
		AcceptedCode: "abc123",
		AccessToken:  "AT1",
		RefreshToken: "", // provider withheld it
		Profile:      premiumProfile(),
	})

	_, state, err := fx.flow.AuthURL()
	require.NoError(t, err)

	session, err := fx.flow.ExchangeCode(context.Background(), "abc123", state)
	require.NoError(t, err)
	assert.Empty(t, session.RefreshToken)
	assert.Equal(t, "AT1", session.AccessToken)
}

func TestFlowController_Login_EndToEnd(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{
		ClientID:     "test-client",
		AcceptedCode: "abc123",
		AccessToken:  "AT1",
		RefreshToken: "RT1",
		Profile:      premiumProfile(),
	})

	// Stand in for the browser: capture the authorization URL and hit the
	// redirect URI the way Spotify would after user consent.
	fx.flow.openBrowser = func(authURL string) error {
		go func() {
			u, err := url.Parse(authURL)
			if err != nil {
				return
			}
			state := u.Query().Get("state")
			callback := fx.redirectURI + "?code=abc123&state=" + url.QueryEscape(state)

			// The listener is bound before the browser launches, so the
			// first attempt must succeed; retry only to absorb scheduling.
			for i := 0; i < 50; i++ {
				resp, err := http.Get(callback)
				if err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
		return nil
	}

	session, err := fx.flow.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "AT1", session.AccessToken)
	assert.True(t, session.IsPremium())
	assert.True(t, fx.store.Exists())
}

func TestFlowController_Login_Timeout(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{})
	fx.flow.listenTimeout = 50 * time.Millisecond

	_, err := fx.flow.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginTimeout)
	assert.False(t, fx.store.Exists())
}

func TestFlowController_Login_PortReusableAfterFailure(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{
		AcceptedCode: "abc123",
		AccessToken:  "AT1",
		Profile:      premiumProfile(),
	})

	// First attempt times out.
	fx.flow.listenTimeout = 50 * time.Millisecond
	_, err := fx.flow.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginTimeout)

	// Second attempt binds the same port and completes.
	fx.flow.listenTimeout = 2 * time.Second
	fx.flow.openBrowser = func(authURL string) error {
		go func() {
			u, _ := url.Parse(authURL)
			state := u.Query().Get("state")
			for i := 0; i < 50; i++ {
				resp, err := http.Get(fx.redirectURI + "?code=abc123&state=" + url.QueryEscape(state))
				if err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
		return nil
	}

	session, err := fx.flow.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT1", session.AccessToken)
}

func TestFlowController_Login_ConcurrentAttemptRejected(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{})
	fx.flow.listenTimeout = 500 * time.Millisecond

	firstDone := make(chan error, 1)
	go func() {
		_, err := fx.flow.Login(context.Background())
		firstDone <- err
	}()

	// Wait until the first attempt holds the listener.
	require.Eventually(t, func() bool {
		fx.flow.loginMu.Lock()
		defer fx.flow.loginMu.Unlock()
		return fx.flow.inLogin
	}, time.Second, 5*time.Millisecond)

	_, err := fx.flow.Login(context.Background())
	assert.ErrorIs(t, err, ErrLoginInProgress)

	assert.ErrorIs(t, <-firstDone, ErrLoginTimeout)
}

func TestFlowController_Login_ProviderDenialSurfaced(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{})
	fx.flow.openBrowser = func(authURL string) error {
		go func() {
			for i := 0; i < 50; i++ {
				resp, err := http.Get(fx.redirectURI + "?error=access_denied&error_description=" + url.QueryEscape("User declined"))
				if err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
		return nil
	}

	_, err := fx.flow.Login(context.Background())

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "access_denied", provErr.Code)
	assert.True(t, strings.Contains(provErr.Error(), "User declined"))
}

func TestFlowController_Login_StateMismatchAborts(t *testing.T) {
	fx := newFlowFixture(t, spotifytest.Config{AcceptedCode: "abc123"})
	fx.flow.openBrowser = func(string) error {
		go func() {
			for i := 0; i < 50; i++ {
				resp, err := http.Get(fx.redirectURI + "?code=abc123&state=forged")
				if err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()
		return nil
	}

	_, err := fx.flow.Login(context.Background())
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Zero(t, fx.stub.ExchangeCalls(), "aborted flow must not reach the token endpoint")
}
