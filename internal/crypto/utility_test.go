package crypto_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/crypto/testdata"
)

func TestUtility_DeriveKey(t *testing.T) {
	u := crypto.Default()
	salt := bytes.Repeat([]byte{0x01}, crypto.SaltSize)

	tests := []struct {
		name     string
		password string
		salt     []byte
		wantErr  bool
	}{
		{name: "valid", password: "password123", salt: salt},
		{name: "unicode password", password: "пароль123", salt: salt},
		{name: "empty password", password: "", salt: salt, wantErr: true},
		{name: "short salt", password: "password123", salt: salt[:8], wantErr: true},
		{name: "long salt", password: "password123", salt: append(salt, 0x02), wantErr: true},
		{name: "nil salt", password: "password123", salt: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := u.DeriveKey(tt.password, tt.salt)
			if tt.wantErr {
				assert.ErrorIs(t, err, crypto.ErrKeyDerivation)
				var kdErr *crypto.KeyDerivationError
				assert.True(t, errors.As(err, &kdErr))
				return
			}

			require.NoError(t, err)
			assert.Len(t, key, crypto.KeySize)

			// Verify deterministic
			key2, err := u.DeriveKey(tt.password, tt.salt)
			require.NoError(t, err)
			assert.Equal(t, key, key2)
		})
	}
}

func TestKeyDerivationVectors(t *testing.T) {
	for _, vector := range testdata.KeyVectors {
		t.Run(vector.Name, func(t *testing.T) {
			salt, err := hex.DecodeString(vector.Salt)
			require.NoError(t, err)

			key, err := crypto.DeriveKey(vector.Password, salt)
			require.NoError(t, err)
			assert.Equal(t, vector.Key, hex.EncodeToString(key))
		})
	}
}

func TestPasswordNormalization(t *testing.T) {
	salt, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	plain := crypto.Default()
	normalized, err := crypto.New(crypto.WithPasswordNormalization())
	require.NoError(t, err)

	// U+FB01 LATIN SMALL LIGATURE FI folds to "fi" under NFKC.
	ligature, err := normalized.DeriveKey("ﬁ", salt)
	require.NoError(t, err)
	ascii, err := normalized.DeriveKey("fi", salt)
	require.NoError(t, err)
	assert.Equal(t, ascii, ligature)

	raw, err := plain.DeriveKey("ﬁ", salt)
	require.NoError(t, err)
	assert.NotEqual(t, ascii, raw)
}

func TestNewOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		u, err := crypto.New()
		require.NoError(t, err)
		assert.Equal(t, crypto.DefaultIterations, u.Iterations())
	})

	t.Run("higher iterations accepted", func(t *testing.T) {
		u, err := crypto.New(crypto.WithIterations(200000))
		require.NoError(t, err)
		assert.Equal(t, 200000, u.Iterations())
	})

	t.Run("lower iterations rejected", func(t *testing.T) {
		_, err := crypto.New(crypto.WithIterations(1000))
		assert.Error(t, err)
	})

	t.Run("nil random rejected", func(t *testing.T) {
		_, err := crypto.New(crypto.WithRandom(nil))
		assert.Error(t, err)
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	u := crypto.Default()

	tests := []struct {
		name      string
		plaintext string
		password  string
	}{
		{"empty plaintext", "", "k"},
		{"ascii", "hello world", "correct-horse"},
		{"multi-byte", "héllo wörld, 世界 🌍", "пароль"},
		{"long", strings.Repeat("castle atlas ", 10000), "long-password"},
		{"newlines and nulls", "a\nb\x00c", "p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := u.Encrypt(tt.plaintext, tt.password)
			require.NoError(t, err)

			got, err := u.Decrypt(envelope, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestEncrypt_Scenario(t *testing.T) {
	envelope, err := crypto.Encrypt("hello world", "correct-horse")
	require.NoError(t, err)

	// 16 salt + 12 iv + 11 plaintext + 16 tag = 55 bytes -> 76 base64 chars
	assert.GreaterOrEqual(t, len(envelope), 76)

	plain, err := crypto.Decrypt(envelope, "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "hello world", plain)

	_, err = crypto.Decrypt(envelope, "wrong-password")
	var decErr *crypto.DecryptionError
	assert.True(t, errors.As(err, &decErr))
}

func TestEncrypt_EnvelopeLayout(t *testing.T) {
	// Deterministic entropy: salt = 00..0f, iv = 10..1b
	entropy := make([]byte, crypto.SaltSize+crypto.IVSize)
	for i := range entropy {
		entropy[i] = byte(i)
	}

	u, err := crypto.New(crypto.WithRandom(bytes.NewReader(entropy)))
	require.NoError(t, err)

	envelope, err := u.Encrypt("hello world", "correct-horse")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)
	require.Len(t, raw, crypto.SaltSize+crypto.IVSize+len("hello world")+crypto.TagSize)
	assert.Len(t, envelope, 76)

	assert.Equal(t, entropy[:crypto.SaltSize], raw[:crypto.SaltSize], "salt comes first")
	assert.Equal(t, entropy[crypto.SaltSize:], raw[crypto.SaltSize:crypto.SaltSize+crypto.IVSize], "iv follows salt")

	plain, err := crypto.Decrypt(envelope, "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "hello world", plain)
}

func TestEncrypt_InvalidUTF8IsReplaced(t *testing.T) {
	envelope, err := crypto.Encrypt("ab\xffcd", "pw")
	require.NoError(t, err)

	plain, err := crypto.Decrypt(envelope, "pw")
	require.NoError(t, err)
	assert.Equal(t, "ab\uFFFDcd", plain)
}

func TestEncrypt_Errors(t *testing.T) {
	t.Run("empty password", func(t *testing.T) {
		_, err := crypto.Encrypt("data", "")
		assert.ErrorIs(t, err, crypto.ErrEncryption)
		assert.ErrorIs(t, err, crypto.ErrKeyDerivation)
	})

	t.Run("random source failure", func(t *testing.T) {
		u, err := crypto.New(crypto.WithRandom(iotest.ErrReader(errors.New("entropy exhausted"))))
		require.NoError(t, err)

		_, err = u.Encrypt("data", "pw")
		var encErr *crypto.EncryptionError
		require.True(t, errors.As(err, &encErr))
		assert.Equal(t, "generate salt", encErr.Op)
	})

	t.Run("random source exhausted before iv", func(t *testing.T) {
		u, err := crypto.New(crypto.WithRandom(bytes.NewReader(make([]byte, crypto.SaltSize))))
		require.NoError(t, err)

		_, err = u.Encrypt("data", "pw")
		var encErr *crypto.EncryptionError
		require.True(t, errors.As(err, &encErr))
		assert.Equal(t, "generate iv", encErr.Op)
	})

	t.Run("error does not leak secrets", func(t *testing.T) {
		_, err := crypto.Encrypt("top secret plaintext", "")
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "top secret plaintext")
	})
}

func TestDecrypt_Errors(t *testing.T) {
	valid, err := crypto.Encrypt("payload", "pw")
	require.NoError(t, err)

	short := base64.StdEncoding.EncodeToString(make([]byte, crypto.MinEnvelopeSize-1))

	tests := []struct {
		name     string
		envelope string
		password string
	}{
		{"empty envelope", "", "pw"},
		{"not base64", "!!not base64!!", "pw"},
		{"too short", short, "pw"},
		{"wrong password", valid, "other"},
		{"empty password", valid, ""},
		{"url alphabet", "-_-_" + valid, "pw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crypto.Decrypt(tt.envelope, tt.password)
			require.Error(t, err)
			assert.ErrorIs(t, err, crypto.ErrDecryption)
			// Every cause renders identically.
			assert.EqualError(t, err, "unable to decrypt")
			assert.Nil(t, errors.Unwrap(err))
		})
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	envelope, err := crypto.Encrypt("ok", "pw")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(envelope)
	require.NoError(t, err)

	for i := range raw {
		tampered := bytes.Clone(raw)
		tampered[i] ^= 0x01

		_, err := crypto.Decrypt(base64.StdEncoding.EncodeToString(tampered), "pw")
		assert.ErrorIs(t, err, crypto.ErrDecryption, "byte %d", i)
	}
}

func TestHash(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]{64}$`)

	for _, v := range testdata.DigestVectors {
		t.Run(v.Input, func(t *testing.T) {
			got := crypto.Hash(v.Input)
			assert.Equal(t, v.Digest, got)
			assert.Regexp(t, hexPattern, got)
			assert.Equal(t, got, crypto.Default().Hash(v.Input))
		})
	}

	assert.NotEqual(t, crypto.Hash("abc"), crypto.Hash("abd"))
}

func TestHashReader(t *testing.T) {
	got, err := crypto.HashReader(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, crypto.Hash("abc"), got)

	_, err = crypto.HashReader(iotest.ErrReader(errors.New("disk gone")))
	assert.ErrorIs(t, err, crypto.ErrHash)
	var hashErr *crypto.HashError
	assert.True(t, errors.As(err, &hashErr))
}

func TestGenerateKey(t *testing.T) {
	key, err := crypto.GenerateKey(0)
	require.NoError(t, err)
	assert.Len(t, key, crypto.DefaultKeyLength)

	key, err = crypto.GenerateKey(64)
	require.NoError(t, err)
	assert.Len(t, key, 64)

	other, err := crypto.GenerateKey(64)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = crypto.GenerateKey(-1)
	assert.ErrorIs(t, err, crypto.ErrInvalidLength)
}

func TestGenerateToken(t *testing.T) {
	hexPattern := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]struct{}, 1000)

	for i := 0; i < 1000; i++ {
		token, err := crypto.GenerateToken(16)
		require.NoError(t, err)
		require.Regexp(t, hexPattern, token)
		seen[token] = struct{}{}
	}

	assert.Len(t, seen, 1000)

	token, err := crypto.GenerateToken(0)
	require.NoError(t, err)
	assert.Len(t, token, 2*crypto.DefaultTokenLength)

	_, err = crypto.GenerateToken(-5)
	assert.ErrorIs(t, err, crypto.ErrInvalidLength)
}

func TestContextVariants(t *testing.T) {
	u := crypto.Default()

	t.Run("completes", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		envelope, err := u.EncryptContext(ctx, "hello", "pw")
		require.NoError(t, err)

		plain, err := u.DecryptContext(ctx, envelope, "pw")
		require.NoError(t, err)
		assert.Equal(t, "hello", plain)
	})

	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := u.EncryptContext(ctx, "hello", "pw")
		assert.ErrorIs(t, err, context.Canceled)

		_, err = u.DecryptContext(ctx, "irrelevant", "pw")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("decrypt failure propagates", func(t *testing.T) {
		_, err := u.DecryptContext(context.Background(), "", "pw")
		assert.ErrorIs(t, err, crypto.ErrDecryption)
	})
}

func TestConcurrentUse(t *testing.T) {
	u := crypto.Default()
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		go func(i int) {
			msg := strings.Repeat("x", i)
			envelope, err := u.Encrypt(msg, "pw")
			if err != nil {
				errs <- err
				return
			}
			got, err := u.Decrypt(envelope, "pw")
			if err == nil && got != msg {
				err = errors.New("round trip mismatch")
			}
			errs <- err
		}(i)
	}

	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}
