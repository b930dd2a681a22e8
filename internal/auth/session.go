package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// premiumProduct is the subscription tier Spotify reports for paying users.
const premiumProduct = "premium"

// Image is an avatar image in one of the sizes Spotify provides.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// User is a snapshot of the authenticated user's Spotify profile, taken at
// login time and carried inside the session.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name,omitempty"`
	Email       string  `json:"email,omitempty"`
	Images      []Image `json:"images,omitempty"`
	Product     string  `json:"product,omitempty"`
	Country     string  `json:"country,omitempty"`
}

// Session is the authenticated unit of truth: the user's profile snapshot
// plus the current token material. Exactly one Session is persisted at a
// time; a new login overwrites the previous one.
type Session struct {
	User User `json:"user"`

	// AccessToken is the short-lived bearer credential presented on API
	// requests.
	AccessToken string `json:"access_token"`

	// RefreshToken is the long-lived credential used to obtain new access
	// tokens. May be empty if the provider withheld it; refreshing is then
	// impossible and the next expiry forces re-login.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// Scope is the space-separated scope list the provider granted.
	Scope string `json:"scope,omitempty"`

	// ExpiresAt is the absolute expiry of AccessToken, computed as
	// now + expires_in at token-receipt time.
	ExpiresAt time.Time `json:"expires_at"`

	// CreatedAt is when the session was first established.
	CreatedAt time.Time `json:"created_at"`

	// LastRefresh is when the token material was last renewed.
	LastRefresh time.Time `json:"last_refresh"`
}

// IsPremium reports whether the user is on Spotify's paid tier. The playback
// SDK refuses non-premium accounts, so the UI gates on this.
func (s *Session) IsPremium() bool {
	return s.User.Product == premiumProduct
}

// Expired reports whether the access token's expiry has passed.
func (s *Session) Expired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires within d.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	return !time.Now().Add(d).Before(s.ExpiresAt)
}

// Token converts the session's token material to an oauth2.Token for
// callers that speak the x/oauth2 types.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.ExpiresAt,
	}
}
