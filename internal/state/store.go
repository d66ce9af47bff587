package state

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Store is a small string key/value store for session data.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys lists stored keys in ascending order.
	Keys() ([]string, error)

	// Close releases resources.
	Close() error
}

// Well-known session keys.
const (
	TokenKey    = "castle_atlas_token"
	UserKey     = "castle_atlas_user"
	IssuedAtKey = "castle_atlas_issued_at"

	// MockSigningKey holds the in-process API's token key between runs.
	MockSigningKey = "castle_atlas_mock_signing_key"
)

// Errors
var (
	ErrNotFound   = errors.New("key not found")
	ErrCorrupt    = errors.New("stored value is corrupt")
	ErrInvalidKey = errors.New("invalid key")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// validateKey rejects keys that could escape a directory or collide with
// backup files.
func validateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Migrate copies every key from src to dst.
func Migrate(src, dst Store) error {
	keys, err := src.Keys()
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	for _, key := range keys {
		value, err := src.Get(key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}

		if err := dst.Set(key, value); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
