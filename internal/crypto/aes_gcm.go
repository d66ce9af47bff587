package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// seal encrypts plaintext with AES-256-GCM and no associated data.
// Returns: ciphertext || tag
func seal(key, iv, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid iv size: expected %d, got %d", aead.NonceSize(), len(iv))
	}

	return aead.Seal(nil, iv, plaintext, nil), nil
}

// open verifies the tag and decrypts ciphertext || tag.
func open(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid iv size: expected %d, got %d", aead.NonceSize(), len(iv))
	}

	return aead.Open(nil, iv, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return aead, nil
}

// ValidateKeySize checks if the key is the correct size.
func ValidateKeySize(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}
	return nil
}
