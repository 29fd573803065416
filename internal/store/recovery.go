package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// OpenSQLiteWithRecovery opens the local database, and when the file
// exists but cannot be read with the current key it moves it aside
// under a random suffix and starts fresh. The renamed backup is never
// deleted automatically; a user who recovers the old key can still get
// their history back.
func OpenSQLiteWithRecovery(path string, masterKey []byte, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := OpenSQLite(path, masterKey)
	if err == nil {
		return s, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}
	if !isDecryptFailure(err) {
		return nil, err
	}

	backup, renameErr := renameWithRandomSuffix(path)
	if renameErr != nil {
		return nil, fmt.Errorf("store: database unreadable and backup rename failed: %w", renameErr)
	}
	logger.Warn("local database could not be opened with the current key; starting fresh",
		"backup", backup, "error", err)

	return OpenSQLite(path, masterKey)
}

// isDecryptFailure matches the driver errors a wrong key or corrupted
// encrypted file produces.
func isDecryptFailure(err error) bool {
	text := err.Error()
	return strings.Contains(text, "file is not a database") ||
		strings.Contains(text, "file is encrypted") ||
		strings.Contains(text, "not a database") ||
		strings.Contains(text, "malformed")
}

func renameWithRandomSuffix(path string) (string, error) {
	var raw [4]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	backup := fmt.Sprintf("%s.unreadable-%s", path, hex.EncodeToString(raw[:]))
	if err := os.Rename(path, backup); err != nil {
		return "", err
	}
	return backup, nil
}
