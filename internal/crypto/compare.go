package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecureCompare reports whether a and b are equal. Once the lengths match,
// every byte is visited regardless of where a mismatch occurs.
//
// The length check returns early and so leaks whether the lengths differ.
// Use SecureCompareDigest for secrets of variable length.
func SecureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	var acc byte
	for i := 0; i < len(a); i++ {
		acc |= a[i] ^ b[i]
	}

	return acc == 0
}

// SecureCompareDigest compares the SHA-256 digests of a and b in constant
// time, hiding the input lengths.
func SecureCompareDigest(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
