package auth

import (
	"crypto/sha256"
	"os"
	"runtime"
	"strings"

	"resonate/pkg/logging"

	"github.com/denisbrodbeck/machineid"
)

// keySalt is mixed into the key derivation so the derived key is specific to
// resonate rather than a generic hash of the machine ID. Bumping the version
// suffix invalidates every persisted session (forced re-login), which is the
// intended migration path for key-derivation changes.
const keySalt = "resonate-machine-key-v1"

// fallbackMachineID is used when the platform machine ID is unavailable
// (e.g. a Linux system without /etc/machine-id, or a locked-down container).
// Sessions are then bound only to the OS descriptor and processor string,
// which is weaker binding but keeps the app usable. The degradation is
// logged so it is visible rather than silent.
const fallbackMachineID = "resonate-fallback-machine"

// DeriveMachineKey derives the 32-byte machine-bound encryption key.
//
// The key is a SHA-256 over stable, non-secret machine identifiers: the
// platform machine/install ID, the processor identifier string and an OS
// descriptor. It is recomputed on every call rather than cached to disk, so
// copying auth.enc to another machine yields a different key and decryption
// fails closed there.
//
// This is machine binding, not password-based key derivation: deterministic
// and deliberately fast.
func DeriveMachineKey() [32]byte {
	parts := []string{
		machineIdentifier(),
		processorIdentifier(),
		osDescriptor(),
		keySalt,
	}

	return sha256.Sum256([]byte(strings.Join(parts, "|")))
}

// machineIdentifier returns the platform machine ID, falling back to a fixed
// documented value when it cannot be read.
func machineIdentifier() string {
	id, err := machineid.ID()
	if err != nil || id == "" {
		logging.Warn("Auth", "Platform machine ID unavailable, falling back to weaker binding: %v", err)
		return fallbackMachineID
	}
	return id
}

// processorIdentifier returns a stable description of the processor. On
// Windows the PROCESSOR_IDENTIFIER environment variable carries the full
// vendor string; elsewhere the architecture is stable across reboots and
// good enough as a secondary component.
func processorIdentifier() string {
	if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
		return id
	}
	return runtime.GOARCH
}

// osDescriptor returns a stable OS identifier.
func osDescriptor() string {
	return runtime.GOOS
}
