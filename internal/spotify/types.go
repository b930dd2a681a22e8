package spotify

import "fmt"

// TokenResponse is the provider's token endpoint response, shared by the
// authorization_code and refresh_token grants.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`

	// RefreshToken is absent on some refresh responses; Spotify only
	// rotates it occasionally. Callers keep their previous value when this
	// is empty.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Image is one avatar size from the profile endpoint.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// UserProfile is the /v1/me response, reduced to the fields the companion
// app consumes. Unknown fields are ignored at the deserialization boundary.
type UserProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name,omitempty"`
	Email       string  `json:"email,omitempty"`
	Images      []Image `json:"images,omitempty"`
	Product     string  `json:"product,omitempty"`
	Country     string  `json:"country,omitempty"`
}

// TokenError is a non-2xx response from the token endpoint, carrying the
// OAuth error code so callers can distinguish a revoked grant from a
// misconfiguration.
type TokenError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint returned %d: %s - %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Code)
}

// IsInvalidGrant reports whether the provider rejected the grant itself
// (revoked or expired refresh token). This is unrecoverable; the stored
// session must be discarded.
func (e *TokenError) IsInvalidGrant() bool {
	return e.Code == "invalid_grant"
}

// APIError is a non-2xx response from the resource API.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("spotify API returned %d: %s", e.StatusCode, e.Body)
}
