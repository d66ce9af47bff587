// Package crypto implements password-based authenticated encryption for
// small text payloads.
//
// A 256-bit key is derived from the password with PBKDF2-HMAC-SHA256
// (100,000 iterations) and a fresh 16-byte salt, then the payload is sealed
// with AES-256-GCM under a fresh 12-byte IV. The result is the base64
// encoding of:
//
//	salt (16) || iv (12) || ciphertext || tag (16)
//
// The package also offers SHA-256 hex digests, random hex tokens and a
// constant-time string comparison. Nothing here keeps secrets between calls;
// each Encrypt and Decrypt derives its key from scratch.
package crypto
