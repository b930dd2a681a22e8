package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// nonceSize is the GCM standard 96-bit nonce.
const nonceSize = 12

// seal encrypts plaintext with AES-256-GCM under key, generating a fresh
// random nonce per call. Nonce reuse under the same key breaks GCM, so the
// nonce always comes from crypto/rand and is returned alongside the
// ciphertext for storage.
func seal(plaintext []byte, key [32]byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

// open decrypts and authenticates ciphertext. Every failure mode -- wrong
// key (wrong machine), truncated data, flipped bits, bad nonce length --
// collapses to ErrDecryptionFailed so the caller cannot be used as a
// decryption oracle.
func open(nonce, ciphertext []byte, key [32]byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	if len(nonce) != aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
