package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code verifier.
	// 64 bytes encodes to 86 base64url characters, well inside RFC 7636's
	// 43-128 character window.
	pkceVerifierBytes = 64

	// stateBytes is the number of random bytes for the OAuth state parameter.
	stateBytes = 32
)

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
// PKCE lets a public client (no client secret) prove to the authorization
// server that the token request comes from the same party that initiated
// the authorization request.
type PKCEChallenge struct {
	// CodeVerifier is the cryptographically random string. It is kept in
	// memory for the duration of a single login attempt and never persisted.
	CodeVerifier string

	// CodeChallenge is the SHA256 hash of the verifier (base64url-encoded).
	// This is the only value sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256"; the "plain" method is not used.
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and challenge.
// The code verifier is 64 random bytes, base64url-encoded. The code
// challenge is the S256 (SHA256) hash of the verifier.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// GenerateState generates a random state parameter for OAuth.
// The state links the authorization response back to the original request
// and prevents CSRF: a callback carrying a different state is rejected.
//
// Returns a base64url-encoded random string.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
