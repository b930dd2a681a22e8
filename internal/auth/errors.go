package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the coarse failure taxonomy exposed to the UI
// layer. Crypto and storage failures are always mapped onto these before
// leaving the package; raw detail (paths, key material, cipher internals)
// stays in the logs at debug level or nowhere at all.
var (
	// ErrNotAuthenticated means no valid session exists; the caller should
	// present the login screen.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrLoginTimeout means the user abandoned the browser flow or took
	// longer than the listener timeout.
	ErrLoginTimeout = errors.New("login timed out waiting for browser authorization")

	// ErrLoginInProgress means another login attempt currently owns the
	// callback listener.
	ErrLoginInProgress = errors.New("a login attempt is already in progress")

	// ErrStateMismatch means the callback carried a state parameter that
	// does not match the one generated for this attempt. Treated as a
	// potential CSRF attempt: the flow is aborted and not retried.
	ErrStateMismatch = errors.New("state parameter mismatch")

	// ErrInvalidGrant means the provider rejected the refresh token
	// (revoked or expired grant). Unrecoverable; forces logout.
	ErrInvalidGrant = errors.New("refresh token rejected by provider")

	// ErrDecryptionFailed means the persisted session could not be
	// decrypted: wrong machine, corruption, or tampering. The causes are
	// deliberately not distinguished.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrBindFailed means the callback listener port is unavailable,
	// usually because a previous instance is still holding it.
	ErrBindFailed = errors.New("callback listener port unavailable")
)

// ProviderError is an explicit denial from the authorization server, carried
// in the callback's error query parameter (user declined consent, app
// misconfigured, ...).
type ProviderError struct {
	Code        string
	Description string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s - %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// TransientError wraps a network-level failure talking to the provider.
// The session is untouched; the caller may retry.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether an error is safe to retry without discarding
// the stored session.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
