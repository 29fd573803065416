// Package secretstore fetches the 32-byte master encryption key from
// the operating system's secret store. The key encrypts the local
// database and seeds the ignored-word hasher; it never touches disk in
// plaintext.
package secretstore

import "errors"

// KeySize is the master key length in bytes.
const KeySize = 32

// Attributes identifying the realtypecoach key inside the OS store.
const (
	serviceAttribute = "realtypecoach"
	keyAttribute     = "master-encryption-key"
)

// ErrKeyringUnavailable is returned when no OS secret store is
// reachable. The daemon fails fast on it: without the key there is no
// way to open the encrypted database.
var ErrKeyringUnavailable = errors.New("secretstore: OS secret store unavailable")

// Store is the platform secret-store surface.
type Store interface {
	// GetOrCreateMasterKey returns the stored master key, generating
	// and persisting a fresh one on first run.
	GetOrCreateMasterKey() ([]byte, error)
}

// Open returns the platform implementation.
func Open() (Store, error) {
	return openPlatform()
}
