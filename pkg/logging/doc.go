// Package logging provides structured logging for resonate, built on the
// standard library's slog package.
//
// All log entries carry a subsystem identifier so that output from the auth
// flow, the session store, the callback listener and the Spotify client can
// be filtered independently by the host application.
//
// Initialize once at startup:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//
// then log through the level helpers:
//
//	logging.Info("Auth", "login flow started")
//	logging.Error("Store", err, "failed to persist session")
//
// Token values and key material must never be passed to this package; callers
// log lengths, expiry timestamps and endpoint URLs instead.
package logging
