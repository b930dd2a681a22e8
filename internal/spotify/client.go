package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"resonate/pkg/logging"
	pkgoauth "resonate/pkg/oauth"
)

const (
	// DefaultAccountsURL is Spotify's authorization server.
	DefaultAccountsURL = "https://accounts.spotify.com"

	// DefaultAPIURL is Spotify's resource API.
	DefaultAPIURL = "https://api.spotify.com"

	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second
)

// Client is a typed client for the slice of Spotify's OAuth and Web API
// surface the auth backend consumes: the authorization endpoint (URL
// construction only, the browser does the GET), the token endpoint, and the
// current-user profile endpoint.
type Client struct {
	httpClient  *http.Client
	clientID    string
	redirectURI string
	scopes      []string
	accountsURL string
	apiURL      string
}

// ClientConfig configures the Spotify client.
type ClientConfig struct {
	// ClientID is the registered application's client ID. PKCE public
	// client; there is no client secret.
	ClientID string

	// RedirectURI must match the registered redirect URI exactly.
	RedirectURI string

	// Scopes is the scope list embedded in the authorization URL.
	Scopes []string

	// AccountsURL overrides the authorization server base URL (tests).
	AccountsURL string

	// APIURL overrides the resource API base URL (tests).
	APIURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// NewClient creates a Spotify client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	accountsURL := cfg.AccountsURL
	if accountsURL == "" {
		accountsURL = DefaultAccountsURL
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &Client{
		httpClient:  httpClient,
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		scopes:      cfg.Scopes,
		accountsURL: accountsURL,
		apiURL:      apiURL,
	}
}

// AuthorizeURL constructs the authorization URL the browser navigates to.
func (c *Client) AuthorizeURL(state string, pkce *pkgoauth.PKCEChallenge) (string, error) {
	authURL, err := url.Parse(c.accountsURL + "/authorize")
	if err != nil {
		return "", err
	}

	params := url.Values{
		"client_id":             {c.clientID},
		"response_type":         {"code"},
		"redirect_uri":          {c.redirectURI},
		"scope":                 {strings.Join(c.scopes, " ")},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {pkce.CodeChallengeMethod},
		"state":                 {state},
	}

	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

// ExchangeCode exchanges an authorization code plus PKCE verifier for
// tokens. No client secret is sent on this leg, consistent with the PKCE
// public-client model.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.redirectURI},
		"client_id":     {c.clientID},
		"code_verifier": {codeVerifier},
	}

	return c.postToken(ctx, data)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
	}

	return c.postToken(ctx, data)
}

// postToken performs a token endpoint POST and decodes the response.
// Non-2xx responses become *TokenError; transport failures are returned
// as-is for the caller to classify as transient.
func (c *Client) postToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	endpoint := c.accountsURL + "/api/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		tokenErr := &TokenError{StatusCode: resp.StatusCode}
		// Best effort: the body is an OAuth error object on spec-compliant
		// responses. Keep the status code either way.
		_ = json.Unmarshal(body, tokenErr)
		logging.Warn("Spotify", "Token endpoint rejected %s grant: %s",
			data.Get("grant_type"), tokenErr.Code)
		return nil, tokenErr
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &tokenResp, nil
}

// FetchProfile fetches the authenticated user's profile.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse user profile: %w", err)
	}

	return &profile, nil
}
