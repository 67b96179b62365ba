package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// encryptor seals values with AES-256-GCM, binding each ciphertext to the
// owning user id as additional authenticated data. A value encrypted for one
// user fails to decrypt under a different user id, so a storage-layer key
// collision or copy-paste bug cannot leak one user's token as another's.
type encryptor struct {
	gcm cipher.AEAD
}

// newEncryptor builds an encryptor from a base64-encoded 32-byte key.
func newEncryptor(base64Key string) (*encryptor, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

// seal encrypts plaintext and returns a base64-encoded nonce||ciphertext blob.
func (e *encryptor) seal(plaintext string, userID string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts a blob produced by seal for the given userID.
func (e *encryptor) open(blob string, userID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
