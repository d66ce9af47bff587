package state

import (
	"errors"
	"fmt"

	"github.com/castleatlas/atlas/internal/crypto"
)

// ErrSealed is returned when a stored value cannot be decrypted with the
// configured passphrase.
var ErrSealed = errors.New("stored value cannot be decrypted")

// SecureStore encrypts every value before handing it to the wrapped store.
// Keys are stored in clear.
type SecureStore struct {
	inner      Store
	cipher     crypto.Cipher
	passphrase string
}

// NewSecureStore wraps inner. The passphrase must not be empty.
func NewSecureStore(inner Store, cipher crypto.Cipher, passphrase string) (*SecureStore, error) {
	if inner == nil {
		return nil, errors.New("inner store is required")
	}
	if cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}

	return &SecureStore{
		inner:      inner,
		cipher:     cipher,
		passphrase: passphrase,
	}, nil
}

// Get decrypts the stored envelope.
func (s *SecureStore) Get(key string) (string, error) {
	envelope, err := s.inner.Get(key)
	if err != nil {
		return "", err
	}

	value, err := s.cipher.Decrypt(envelope, s.passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSealed, key)
	}

	return value, nil
}

// Set encrypts value and stores the envelope.
func (s *SecureStore) Set(key, value string) error {
	envelope, err := s.cipher.Encrypt(value, s.passphrase)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}

	return s.inner.Set(key, envelope)
}

// Delete removes key.
func (s *SecureStore) Delete(key string) error {
	return s.inner.Delete(key)
}

// Keys lists stored keys.
func (s *SecureStore) Keys() ([]string, error) {
	return s.inner.Keys()
}

// Close closes the wrapped store.
func (s *SecureStore) Close() error {
	return s.inner.Close()
}
