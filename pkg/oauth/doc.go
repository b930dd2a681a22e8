// Package oauth provides protocol-level OAuth 2.0 helpers shared by the
// resonate auth backend: PKCE verifier/challenge generation and anti-CSRF
// state generation.
//
// The package is deliberately free of provider-specific knowledge; the
// Spotify request shapes live in internal/spotify.
package oauth
