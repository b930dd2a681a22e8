// Package auth implements the native authentication backend of the resonate
// desktop companion: a Spotify OAuth 2.0 Authorization Code + PKCE flow with
// machine-bound encrypted session persistence.
//
// # Architecture
//
// The package is layered leaf-first:
//   - machine key derivation (DeriveMachineKey): stable, machine-bound
//     32-byte key from hardware/OS identifiers
//   - credential cipher: AES-256-GCM over the serialized session
//   - SessionStore: the single owner of the encrypted auth.enc file
//   - CallbackServer: short-lived loopback listener for the OAuth redirect
//   - FlowController: login orchestration (PKCE, browser, callback,
//     code exchange, profile fetch, persist)
//   - SessionManager: process-facing API (current session, refresh,
//     access token, logout)
//
// Only FlowController and SessionManager are intended for the UI host;
// everything below them is an implementation detail.
//
// # Machine binding
//
// The encryption key is recomputed from machine identifiers on every
// save/load and never written to disk. Copying auth.enc to another machine
// derives a different key there, and decryption fails closed with
// ErrDecryptionFailed.
//
// # Failure model
//
// Expected failures are values from the taxonomy in errors.go, matched with
// errors.Is/As. Any unreadable persisted state degrades to "logged out,
// show the login screen" -- never to a crash or a stale session.
//
// # Usage
//
//	store := auth.NewSessionStore(dataDir)
//	flow := auth.NewFlowController(client, store, cfg.RedirectURI, cfg.ListenTimeout)
//	manager := auth.NewSessionManager(store, client, cfg.RefreshMargin)
//
//	session, err := flow.Login(ctx)   // browser-based login
//	token, err := manager.AccessToken(ctx) // per-request bearer token
package auth
