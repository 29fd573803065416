package secretstore

import (
	"crypto/rand"
	"fmt"
)

// generateMasterKey produces a fresh 32-byte key. The OS CSPRNG is the
// base source; on platforms with a reachable TPM its hardware RNG is
// XOR-folded in best-effort, so a weak userspace entropy pool alone
// cannot determine the key.
func generateMasterKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secretstore: generate master key: %w", err)
	}

	if hw, err := hardwareRandom(KeySize); err == nil {
		for i := range key {
			key[i] ^= hw[i]
		}
	}
	return key, nil
}
