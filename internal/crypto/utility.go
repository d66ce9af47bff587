package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// Key sizes
	KeySize = 32 // AES-256
	IVSize  = 12 // GCM standard nonce
	TagSize = 16 // GCM tag

	// PBKDF2 parameters
	DefaultIterations = 100000
	SaltSize          = 16

	// MinEnvelopeSize is salt + iv + at least one byte of ciphertext/tag.
	MinEnvelopeSize = SaltSize + IVSize + 1

	DefaultKeyLength   = 32
	DefaultTokenLength = 32
)

// Utility derives keys from passwords and seals payloads into envelopes.
// It holds no secret state and is safe for concurrent use.
type Utility struct {
	iterations int
	random     io.Reader
	normalize  bool
}

// Option configures a Utility.
type Option func(*Utility) error

// WithIterations sets the PBKDF2 iteration count.
// Counts below DefaultIterations are rejected.
func WithIterations(n int) Option {
	return func(u *Utility) error {
		if n < DefaultIterations {
			return fmt.Errorf("iterations must be at least %d, got %d", DefaultIterations, n)
		}
		u.iterations = n
		return nil
	}
}

// WithRandom replaces the secure random source. Only tests should need this.
func WithRandom(r io.Reader) Option {
	return func(u *Utility) error {
		if r == nil {
			return fmt.Errorf("random source cannot be nil")
		}
		u.random = r
		return nil
	}
}

// WithPasswordNormalization applies NFKC normalization to passwords before
// key derivation, so visually identical passwords typed on different
// keyboards derive the same key. Envelopes produced this way only decrypt
// with a Utility that also normalizes.
func WithPasswordNormalization() Option {
	return func(u *Utility) error {
		u.normalize = true
		return nil
	}
}

// New creates a Utility. Without options it uses DefaultIterations and crypto/rand.
func New(opts ...Option) (*Utility, error) {
	u := &Utility{
		iterations: DefaultIterations,
		random:     rand.Reader,
	}

	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}

	return u, nil
}

var defaultUtility = &Utility{
	iterations: DefaultIterations,
	random:     rand.Reader,
}

// Default returns the shared default Utility.
func Default() *Utility {
	return defaultUtility
}

// Iterations returns the configured PBKDF2 iteration count.
func (u *Utility) Iterations() int {
	return u.iterations
}

// GenerateKey returns n bytes of secure random data. Zero selects DefaultKeyLength.
func (u *Utility) GenerateKey(n int) ([]byte, error) {
	if n == 0 {
		n = DefaultKeyLength
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	return u.read(n)
}

// DeriveKey derives a 256-bit AES key from password and a 16-byte salt
// using PBKDF2-HMAC-SHA256.
func (u *Utility) DeriveKey(password string, salt []byte) ([]byte, error) {
	if password == "" {
		return nil, &KeyDerivationError{Reason: "empty password"}
	}

	if len(salt) != SaltSize {
		return nil, &KeyDerivationError{
			Reason: fmt.Sprintf("salt must be %d bytes, got %d", SaltSize, len(salt)),
		}
	}

	if u.normalize {
		password = norm.NFKC.String(password)
	}

	return pbkdf2.Key([]byte(password), salt, u.iterations, KeySize, sha256.New), nil
}

// Encrypt seals plaintext under a key derived from password and returns the
// base64 envelope salt || iv || ciphertext+tag. Every call uses a fresh salt
// and IV.
func (u *Utility) Encrypt(plaintext, password string) (string, error) {
	salt, err := u.read(SaltSize)
	if err != nil {
		return "", &EncryptionError{Op: "generate salt", Err: err}
	}

	iv, err := u.read(IVSize)
	if err != nil {
		return "", &EncryptionError{Op: "generate iv", Err: err}
	}

	key, err := u.DeriveKey(password, salt)
	if err != nil {
		return "", &EncryptionError{Op: "derive key", Err: err}
	}
	defer clear(key)

	// Invalid sequences become U+FFFD, matching a UTF-8 text encoder.
	data := []byte(strings.ToValidUTF8(plaintext, "\uFFFD"))

	sealed, err := seal(key, iv, data)
	if err != nil {
		return "", &EncryptionError{Op: "seal", Err: err}
	}

	envelope := make([]byte, 0, SaltSize+IVSize+len(sealed))
	envelope = append(envelope, salt...)
	envelope = append(envelope, iv...)
	envelope = append(envelope, sealed...)

	return base64.StdEncoding.EncodeToString(envelope), nil
}

// Decrypt opens an envelope produced by Encrypt. Every failure, whether a
// malformed envelope, a wrong password or tampered data, yields the same
// *DecryptionError.
func (u *Utility) Decrypt(envelope, password string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", &DecryptionError{}
	}

	if len(raw) < MinEnvelopeSize {
		return "", &DecryptionError{}
	}

	salt := raw[:SaltSize]
	iv := raw[SaltSize : SaltSize+IVSize]
	ciphertext := raw[SaltSize+IVSize:]

	key, err := u.DeriveKey(password, salt)
	if err != nil {
		return "", &DecryptionError{}
	}
	defer clear(key)

	plaintext, err := open(key, iv, ciphertext)
	if err != nil {
		return "", &DecryptionError{}
	}

	if !utf8.Valid(plaintext) {
		return "", &DecryptionError{}
	}

	return string(plaintext), nil
}

// Hash returns the lowercase hex SHA-256 digest of data.
func (u *Utility) Hash(data string) string {
	return Hash(data)
}

// GenerateToken returns n random bytes rendered as lowercase hex.
// Zero selects DefaultTokenLength.
func (u *Utility) GenerateToken(n int) (string, error) {
	if n == 0 {
		n = DefaultTokenLength
	}
	if n < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	b, err := u.read(n)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func (u *Utility) read(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(u.random, b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through SHA-256.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", &HashError{Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Encrypt uses the default Utility.
func Encrypt(plaintext, password string) (string, error) {
	return defaultUtility.Encrypt(plaintext, password)
}

// Decrypt uses the default Utility.
func Decrypt(envelope, password string) (string, error) {
	return defaultUtility.Decrypt(envelope, password)
}

// DeriveKey uses the default Utility.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	return defaultUtility.DeriveKey(password, salt)
}

// GenerateKey uses the default Utility.
func GenerateKey(n int) ([]byte, error) {
	return defaultUtility.GenerateKey(n)
}

// GenerateToken uses the default Utility.
func GenerateToken(n int) (string, error) {
	return defaultUtility.GenerateToken(n)
}
