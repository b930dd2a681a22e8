package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"resonate/pkg/logging"
)

const (
	// sessionFileName is the single persisted session file.
	sessionFileName = "auth.enc"

	// storeDirPerm and storeFilePerm restrict the session file to the
	// owning user.
	storeDirPerm  = 0700
	storeFilePerm = 0600
)

// storeMagic versions the on-disk format: magic || nonce || ciphertext.
// A future change to the serialization or key derivation bumps the version
// byte; readers of an unknown version fail like a decryption failure, which
// forces a clean re-login instead of a crash.
var storeMagic = []byte{'R', 'S', 'N', '1'}

// SessionStore persists the encrypted session file. It is the only code
// that touches the file; everything else goes through Save/Load/Erase.
//
// SECURITY: the store handles bearer and refresh tokens. Token values are
// never logged, files are created 0600 in a 0700 directory, and writes are
// atomic (temp file + rename) so a crash mid-write cannot leave a
// half-written file.
type SessionStore struct {
	dir string

	// deriveKey is swapped out in tests to simulate a foreign machine.
	deriveKey func() [32]byte
}

// NewSessionStore creates a store rooted at dir.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{
		dir:       dir,
		deriveKey: DeriveMachineKey,
	}
}

func (s *SessionStore) path() string {
	return filepath.Join(s.dir, sessionFileName)
}

// Save serializes, encrypts and atomically writes the session. The
// encryption key is derived fresh on every call; it is never cached to disk.
func (s *SessionStore) Save(session *Session) error {
	if err := os.MkdirAll(s.dir, storeDirPerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	plaintext, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	nonce, ciphertext, err := seal(plaintext, s.deriveKey())
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	data := make([]byte, 0, len(storeMagic)+len(nonce)+len(ciphertext))
	data = append(data, storeMagic...)
	data = append(data, nonce...)
	data = append(data, ciphertext...)

	// Write to a temp file in the same directory, then rename over the
	// final path so readers never observe a partial file.
	tmp, err := os.CreateTemp(s.dir, sessionFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(storeFilePerm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	logging.Info("Store", "Session persisted for user %s (expires %s)",
		session.User.ID, session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

// Load reads and decrypts the persisted session. A missing file is not an
// error: it returns (nil, nil) and the caller treats the user as logged
// out. Any other failure -- unreadable file, unknown format version, wrong
// machine, corruption -- returns ErrDecryptionFailed so the caller forces a
// fresh login instead of crashing or serving a stale session.
func (s *SessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		logging.Warn("Store", "Failed to read session file: %v", err)
		return nil, ErrDecryptionFailed
	}

	if len(data) < len(storeMagic)+nonceSize {
		return nil, ErrDecryptionFailed
	}
	if !bytes.Equal(data[:len(storeMagic)], storeMagic) {
		logging.Warn("Store", "Session file has unknown format version, forcing re-login")
		return nil, ErrDecryptionFailed
	}

	nonce := data[len(storeMagic) : len(storeMagic)+nonceSize]
	ciphertext := data[len(storeMagic)+nonceSize:]

	plaintext, err := open(nonce, ciphertext, s.deriveKey())
	if err != nil {
		logging.Warn("Store", "Session file could not be decrypted, forcing re-login")
		return nil, ErrDecryptionFailed
	}

	var session Session
	if err := json.Unmarshal(plaintext, &session); err != nil {
		return nil, ErrDecryptionFailed
	}

	return &session, nil
}

// Erase removes the persisted session. Erasing an absent file succeeds.
func (s *SessionStore) Erase() error {
	err := os.Remove(s.path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	if err == nil {
		logging.Info("Store", "Session file deleted")
	}
	return nil
}

// Exists reports whether a session file is present, without decrypting it.
func (s *SessionStore) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}
