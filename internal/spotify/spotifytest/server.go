// Package spotifytest provides an in-process stub of the slice of Spotify's
// OAuth and Web API surface the auth backend talks to. Tests point both the
// accounts and API base URLs of a spotify.Client at Server.URL().
package spotifytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"resonate/internal/spotify"
)

// Config configures the stub provider's behavior.
type Config struct {
	// ClientID is the expected OAuth client ID. Empty accepts any.
	ClientID string

	// AcceptedCode is the single authorization code the token endpoint
	// accepts for the authorization_code grant.
	AcceptedCode string

	// AccessToken is returned on the first token response. Subsequent
	// refreshes return "<AccessToken>-r1", "<AccessToken>-r2", ...
	AccessToken string

	// RefreshToken is returned on the authorization_code grant.
	RefreshToken string

	// RotatedRefreshToken, when set, is returned on refresh_token grants,
	// simulating providers that rotate the refresh token.
	RotatedRefreshToken string

	// ExpiresIn is the lifetime the token endpoint reports, in seconds.
	ExpiresIn int64

	// Profile is served from /v1/me.
	Profile spotify.UserProfile

	// InvalidGrant makes every refresh_token grant fail with
	// "invalid_grant", simulating a revoked grant.
	InvalidGrant bool

	// TokenDelay adds artificial latency to the token endpoint, giving
	// concurrency tests a window in which requests overlap.
	TokenDelay time.Duration
}

// Server is the running stub provider.
type Server struct {
	cfg Config
	ts  *httptest.Server

	mu            sync.Mutex
	refreshCalls  atomic.Int64
	exchangeCalls atomic.Int64
	issuedTokens  int
}

// New starts a stub provider. The caller must Close it.
func New(cfg Config) *Server {
	if cfg.ExpiresIn == 0 {
		cfg.ExpiresIn = 3600
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = "stub-access-token"
	}

	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", s.handleToken)
	mux.HandleFunc("/v1/me", s.handleProfile)
	s.ts = httptest.NewServer(mux)

	return s
}

// URL returns the stub's base URL, used as both AccountsURL and APIURL.
func (s *Server) URL() string {
	return s.ts.URL
}

// Close shuts the stub down.
func (s *Server) Close() {
	s.ts.Close()
}

// RefreshCalls returns how many refresh_token grants the stub served.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// ExchangeCalls returns how many authorization_code grants the stub served.
func (s *Server) ExchangeCalls() int64 {
	return s.exchangeCalls.Load()
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.TokenDelay > 0 {
		time.Sleep(s.cfg.TokenDelay)
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "unparseable form body")
		return
	}

	if s.cfg.ClientID != "" && r.PostFormValue("client_id") != s.cfg.ClientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}

	switch grant := r.PostFormValue("grant_type"); grant {
	case "authorization_code":
		s.exchangeCalls.Add(1)
		if r.PostFormValue("code") != s.cfg.AcceptedCode {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code not recognized")
			return
		}
		if r.PostFormValue("code_verifier") == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code_verifier required")
			return
		}
		s.writeTokens(w, s.cfg.AccessToken, s.cfg.RefreshToken)

	case "refresh_token":
		s.refreshCalls.Add(1)
		if s.cfg.InvalidGrant {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token revoked")
			return
		}
		if r.PostFormValue("refresh_token") == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token required")
			return
		}

		s.mu.Lock()
		s.issuedTokens++
		accessToken := fmt.Sprintf("%s-r%d", s.cfg.AccessToken, s.issuedTokens)
		s.mu.Unlock()

		s.writeTokens(w, accessToken, s.cfg.RotatedRefreshToken)

	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", grant)
	}
}

func (s *Server) writeTokens(w http.ResponseWriter, accessToken, refreshToken string) {
	resp := spotify.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		Scope:        "user-read-private",
		ExpiresIn:    s.cfg.ExpiresIn,
		RefreshToken: refreshToken,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		http.Error(w, `{"error":{"status":401,"message":"No token provided"}}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cfg.Profile)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
