package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/events"
)

// record is the on-disk form of one key.
type record struct {
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	SchemaVersion int       `json:"schema_version"`
	UpdatedAt     time.Time `json:"updated_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

func (r record) checksum() (string, error) {
	r.Checksum = ""
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return crypto.Hash(string(data)), nil
}

// JSONStore implements file-based storage, one file per key.
type JSONStore struct {
	baseDir string
	logger  *events.Logger
	now     func() time.Time

	mu sync.RWMutex
}

// NewJSONStore creates a JSON-based store rooted at baseDir.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_store"),
		now:     time.Now,
	}, nil
}

// Get reads a key, falling back to its backup when the main file is corrupt.
func (s *JSONStore) Get(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.path(key)

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"path": path,
	}).Debug("Loading value")

	rec, err := s.read(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Value unreadable, trying backup")

		backup, berr := s.read(path + ".backup")
		if berr != nil {
			return "", ErrCorrupt
		}

		s.logger.WithField("key", key).Warn("Loaded value from backup due to corruption")
		return backup.Value, nil
	}

	if rec.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", rec.SchemaVersion).Warn("Schema version mismatch")
	}

	return rec.Value, nil
}

// Set writes a key atomically, keeping the previous file as a backup.
func (s *JSONStore) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)

	rec := record{
		Key:           key,
		Value:         value,
		SchemaVersion: CurrentSchemaVersion,
		UpdatedAt:     s.now().UTC(),
	}

	sum, err := rec.checksum()
	if err != nil {
		return fmt.Errorf("checksum record: %w", err)
	}
	rec.Checksum = sum

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	// Create backup of existing file
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	// Write atomically
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	return nil
}

// Delete removes a key and its backup.
func (s *JSONStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("key", key).Debug("Deleting value")

	path := s.path(key)
	for _, p := range []string{path, path + ".backup"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}

	return nil
}

// Keys lists stored keys.
func (s *JSONStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".json" {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) path(key string) string {
	return filepath.Join(s.baseDir, key+".json")
}

func (s *JSONStore) read(path string) (*record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if rec.Checksum != "" {
		sum, err := rec.checksum()
		if err != nil {
			return nil, err
		}
		if !crypto.SecureCompare(sum, rec.Checksum) {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
	}

	return &rec, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
