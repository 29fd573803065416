// Package hasher computes privacy-preserving hashes of ignored words.
// The same word hashes identically on every device sharing a master
// key, which lets the synchronizer dedupe ignore-word rows without the
// remote server ever learning the plaintext word.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

// pepper is the application-wide constant mixed into every word hash as
// the BLAKE2b key. It is not a secret in the cryptographic sense (it
// ships in the binary) — it only keeps an attacker who obtains a
// database dump from running a plain dictionary attack against hashes
// without also having this binary.
var pepper = [32]byte{
	0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x1a, 0x2b,
	0x3c, 0x4d, 0x5e, 0x6f, 0x1a, 0x2b, 0x3c, 0x4d,
	0x5e, 0x6f, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f,
	0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x1a, 0x2b,
}

const userSaltDerivationInfo = "ignored_words_user_salt_derivation"

// Hasher hashes words with a user salt derived once from the master
// encryption key, keyed by the shared pepper.
type Hasher struct {
	userSalt [32]byte
}

// New derives the user salt from a 32-byte master key and returns a
// ready-to-use Hasher. The derivation goes through HKDF-SHA256 with a
// domain-separated info string, so every sub-key pulled from the master
// key lives in its own namespace.
func New(masterKey []byte) (*Hasher, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("hasher: master key must be 32 bytes, got %d", len(masterKey))
	}

	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(userSaltDerivationInfo))

	hsh := &Hasher{}
	if _, err := io.ReadFull(kdf, hsh.userSalt[:]); err != nil {
		return nil, fmt.Errorf("hasher: derive user salt: %w", err)
	}
	return hsh, nil
}

// HashWord returns the 64-character hex digest for word, lowercased
// first so hashing is case-insensitive.
func (h *Hasher) HashWord(word string) (string, error) {
	lower := []byte(strings.ToLower(word))

	mac, err := blake2b.New256(pepper[:])
	if err != nil {
		return "", fmt.Errorf("hasher: %w", err)
	}
	mac.Write(h.userSalt[:])
	mac.Write(lower)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
