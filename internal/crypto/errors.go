package crypto

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrKeyDerivation = errors.New("key derivation failed")
	ErrEncryption    = errors.New("encryption failed")
	ErrDecryption    = errors.New("unable to decrypt")
	ErrHash          = errors.New("hash failed")
	ErrInvalidLength = errors.New("length must be positive")
)

// KeyDerivationError reports an invalid password or salt.
type KeyDerivationError struct {
	Reason string
	Err    error
}

func (e *KeyDerivationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("derive key: %s: %v", e.Reason, e.Err)
	}
	return "derive key: " + e.Reason
}

func (e *KeyDerivationError) Unwrap() error {
	return e.Err
}

func (e *KeyDerivationError) Is(target error) bool {
	return target == ErrKeyDerivation
}

// EncryptionError wraps the step of Encrypt that failed.
type EncryptionError struct {
	Op  string
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encrypt: %s: %v", e.Op, e.Err)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

func (e *EncryptionError) Is(target error) bool {
	return target == ErrEncryption
}

// DecryptionError carries no cause. A wrong password, a truncated envelope
// and a failed tag check must look identical to the caller.
type DecryptionError struct{}

func (e *DecryptionError) Error() string {
	return ErrDecryption.Error()
}

func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryption
}

// HashError wraps a failure reading the data being hashed.
type HashError struct {
	Err error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("hash: %v", e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}

func (e *HashError) Is(target error) bool {
	return target == ErrHash
}
