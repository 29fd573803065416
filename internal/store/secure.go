package store

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/Dronakurl/realtypecoach/internal/stats"
)

// Tamper-evidence model: bursts is the only append-only table, so it is
// the only one chained. Aggregate tables (key_stats, word_stats,
// daily_summaries, ...) are upserted in place and cannot carry a hash
// chain — a later correction to a running mean would break any chain
// built over them. chain_integrity holds the running head: its chain
// hash, burst count, and an HMAC over both so the head itself can't be
// forged without the key.

const (
	burstHashDomain      = "realtypecoach-burst-v1"
	chainIntegrityDomain = "realtypecoach-chain-integrity-v1"

	chainKeyDerivationInfo = "realtypecoach-burst-chain-hmac-key-v1"
)

// deriveChainHMACKey pulls the chain's HMAC sub-key from the master key
// through HKDF-SHA256 with its own info string. The master key itself
// never keys a MAC directly; each sub-key lives in its own derivation
// namespace, so a compromise of one use cannot be replayed against
// another.
func deriveChainHMACKey(masterKey []byte) ([]byte, error) {
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(chainKeyDerivationInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("store: derive chain hmac key: %w", err)
	}
	return key, nil
}

func (s *SQLite) chainHMACKey() []byte {
	return s.chainKey
}

// ensureChainIntegrity seeds the chain_integrity singleton row on a
// brand-new database. No-op if the row already exists.
func (s *SQLite) ensureChainIntegrity() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chain_integrity WHERE id = 1`).Scan(&count); err != nil {
		return fmt.Errorf("store: check chain integrity row: %w", err)
	}
	if count > 0 {
		return nil
	}

	var zeroHash [32]byte
	mac := s.computeIntegrityHMAC(zeroHash, 0)
	_, err := s.db.Exec(`
		INSERT INTO chain_integrity (id, chain_hash, burst_count, hmac) VALUES (1, ?, 0, ?)`,
		zeroHash[:], mac)
	if err != nil {
		return fmt.Errorf("store: seed chain integrity: %w", err)
	}
	return nil
}

// VerifyChain walks every burst in insertion order and confirms the
// chain_hash/hmac columns match a recomputation, and that the
// chain_integrity head matches the last burst. It does not mutate
// anything; callers decide what to do with a broken chain (refuse
// writes, alert, or just log).
func (s *SQLite) VerifyChain() error {
	rows, err := s.db.Query(`
		SELECT "timestamp", start_ms, end_ms, key_count, backspace_count, net_key_count, duration_ms, qualifies_for_high_score, avg_wpm, chain_hash, hmac
		FROM bursts ORDER BY "timestamp" ASC`)
	if err != nil {
		return fmt.Errorf("store: query bursts for verification: %w", err)
	}
	defer rows.Close()

	var previousHash [32]byte
	var count int64

	for rows.Next() {
		var b stats.PersistedBurst
		var qualifies int
		var chainHash, mac []byte
		if err := rows.Scan(&b.Timestamp, &b.StartMs, &b.EndMs, &b.KeyCount, &b.BackspaceCount, &b.NetKeyCount, &b.DurationMs, &qualifies, &b.AvgWPM, &chainHash, &mac); err != nil {
			return fmt.Errorf("store: scan burst for verification: %w", err)
		}
		b.QualifiesForHighScore = qualifies != 0

		expectedHash := computeBurstHash(b, previousHash)
		if !hmac.Equal(chainHash, expectedHash[:]) {
			return fmt.Errorf("store: chain break at burst %d: hash mismatch", b.Timestamp)
		}
		expectedMAC := s.computeBurstHMAC(expectedHash)
		if !hmac.Equal(mac, expectedMAC) {
			return fmt.Errorf("store: chain break at burst %d: hmac mismatch", b.Timestamp)
		}

		copy(previousHash[:], chainHash)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: iterate bursts for verification: %w", err)
	}

	var headHash, headMAC []byte
	var headCount int64
	err = s.db.QueryRow(`SELECT chain_hash, burst_count, hmac FROM chain_integrity WHERE id = 1`).
		Scan(&headHash, &headCount, &headMAC)
	if errors.Is(err, sql.ErrNoRows) {
		if count == 0 {
			return nil
		}
		return errors.New("store: chain integrity row missing")
	}
	if err != nil {
		return fmt.Errorf("store: read chain integrity: %w", err)
	}

	if headCount != count {
		return fmt.Errorf("store: chain integrity count mismatch: head says %d, found %d", headCount, count)
	}
	if !hmac.Equal(headHash, previousHash[:]) {
		return errors.New("store: chain integrity head hash mismatch")
	}
	var headHashArr [32]byte
	copy(headHashArr[:], headHash)
	expectedHeadMAC := s.computeIntegrityHMAC(headHashArr, headCount)
	if !hmac.Equal(headMAC, expectedHeadMAC) {
		return errors.New("store: chain integrity head hmac mismatch")
	}
	return nil
}

// insertChainedBurst inserts b, linking it to the previous burst's hash
// and extending the chain_integrity head, all in one transaction.
func (s *SQLite) insertChainedBurst(b stats.PersistedBurst) error {
	if err := s.ensureChainIntegrity(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin burst transaction: %w", err)
	}
	defer tx.Rollback()

	var previousHash []byte
	var burstCount int64
	err = tx.QueryRow(`SELECT chain_hash, burst_count FROM chain_integrity WHERE id = 1`).Scan(&previousHash, &burstCount)
	if err != nil {
		return fmt.Errorf("store: read chain head: %w", err)
	}
	var prev [32]byte
	copy(prev[:], previousHash)

	newHash := computeBurstHash(b, prev)
	burstMAC := s.computeBurstHMAC(newHash)

	_, err = tx.Exec(`
		INSERT INTO bursts ("timestamp", start_ms, end_ms, key_count, backspace_count, net_key_count, duration_ms, qualifies_for_high_score, avg_wpm, chain_hash, hmac)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Timestamp, b.StartMs, b.EndMs, b.KeyCount, b.BackspaceCount, b.NetKeyCount, b.DurationMs, b.QualifiesForHighScore, b.AvgWPM, newHash[:], burstMAC,
	)
	if err != nil {
		return fmt.Errorf("store: insert burst: %w", err)
	}

	burstCount++
	newIntegrityMAC := s.computeIntegrityHMAC(newHash, burstCount)
	_, err = tx.Exec(`UPDATE chain_integrity SET chain_hash = ?, burst_count = ?, hmac = ? WHERE id = 1`,
		newHash[:], burstCount, newIntegrityMAC)
	if err != nil {
		return fmt.Errorf("store: update chain integrity: %w", err)
	}

	return tx.Commit()
}

func (s *SQLite) computeBurstHMAC(burstHash [32]byte) []byte {
	h := hmac.New(sha256.New, s.chainHMACKey())
	h.Write([]byte(burstHashDomain))
	h.Write(burstHash[:])
	return h.Sum(nil)
}

func (s *SQLite) computeIntegrityHMAC(chainHash [32]byte, burstCount int64) []byte {
	h := hmac.New(sha256.New, s.chainHMACKey())
	h.Write([]byte(chainIntegrityDomain))
	h.Write(chainHash[:])
	h.Write(int64Bytes(burstCount))
	return h.Sum(nil)
}

func computeBurstHash(b stats.PersistedBurst, previousHash [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(burstHashDomain))
	h.Write(previousHash[:])
	h.Write(int64Bytes(b.Timestamp))
	h.Write(int64Bytes(b.StartMs))
	h.Write(int64Bytes(b.EndMs))
	h.Write(int64Bytes(int64(b.KeyCount)))
	h.Write(int64Bytes(int64(b.BackspaceCount)))
	h.Write(int64Bytes(int64(b.NetKeyCount)))
	h.Write(int64Bytes(b.DurationMs))
	if b.QualifiesForHighScore {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var wpmBuf [8]byte
	binary.BigEndian.PutUint64(wpmBuf[:], uint64(int64(b.AvgWPM*1000)))
	h.Write(wpmBuf[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func int64Bytes(n int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func marshalTableBreakdown(breakdown map[string]TableSyncCounts) (string, error) {
	if breakdown == nil {
		return "{}", nil
	}
	b, err := json.Marshal(breakdown)
	if err != nil {
		return "", fmt.Errorf("store: marshal table breakdown: %w", err)
	}
	return string(b), nil
}

func unmarshalTableBreakdown(raw string) (map[string]TableSyncCounts, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var out map[string]TableSyncCounts
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("store: unmarshal table breakdown: %w", err)
	}
	return out, nil
}
