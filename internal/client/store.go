package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/castleatlas/atlas/internal/config"
	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/events"
	"github.com/castleatlas/atlas/internal/state"
)

// passphraseSize is the number of random bytes in a generated passphrase.
const passphraseSize = 32

// sessionPassphrase returns the configured passphrase. Without one, the
// memory backend gets a throwaway passphrase and file backends share one
// generated on first use and kept in cfg.PassphrasePath with mode 0600.
func sessionPassphrase(cfg *config.Config, util *crypto.Utility) (string, error) {
	if cfg.Auth.Passphrase != "" {
		return cfg.Auth.Passphrase, nil
	}

	if cfg.Storage.Backend == "memory" {
		passphrase, err := util.GenerateToken(passphraseSize)
		if err != nil {
			return "", fmt.Errorf("generate session passphrase: %w", err)
		}
		return passphrase, nil
	}

	path := cfg.PassphrasePath()
	if passphrase, err := readPassphrase(path); err == nil {
		return passphrase, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	passphrase, err := util.GenerateToken(passphraseSize)
	if err != nil {
		return "", fmt.Errorf("generate session passphrase: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		// Another process got there first.
		return readPassphrase(path)
	}
	if err != nil {
		return "", fmt.Errorf("create passphrase file: %w", err)
	}

	_, err = f.WriteString(passphrase + "\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write passphrase file: %w", err)
	}
	return passphrase, nil
}

func readPassphrase(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read passphrase file: %w", err)
	}

	passphrase := strings.TrimSpace(string(data))
	if passphrase == "" {
		return "", fmt.Errorf("passphrase file %s is empty", path)
	}
	return passphrase, nil
}

// migrateLegacy moves a session left by the other file backend into dst and
// removes the old copy. dst must be empty; values are copied as stored, so a
// sealed session stays readable with the same passphrase.
func migrateLegacy(cfg *config.Config, dst state.Store, logger *events.Logger) error {
	var legacy string
	switch cfg.Storage.Backend {
	case "json":
		legacy = "sqlite"
	case "sqlite":
		legacy = "json"
	default:
		return nil
	}

	path := cfg.SessionPathFor(legacy)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	keys, err := dst.Keys()
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(keys) > 0 {
		logger.WithField("path", path).Debug("Keeping current session store, ignoring legacy one")
		return nil
	}

	src, err := openBackend(cfg, legacy, logger)
	if err != nil {
		return fmt.Errorf("open legacy store: %w", err)
	}

	migrateErr := state.Migrate(src, dst)
	if err := src.Close(); err != nil && migrateErr == nil {
		migrateErr = err
	}
	if migrateErr != nil {
		return migrateErr
	}

	// SQLite may leave its WAL files behind.
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("remove legacy store: %w", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"from": legacy,
		"to":   cfg.Storage.Backend,
	}).Info("Migrated session store")
	return nil
}
