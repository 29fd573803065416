package store

import "fmt"

// ApplyRetention deletes bursts, high scores, and daily summaries older
// than retentionDays, keyed off their own timestamp/date columns.
// KeyStat, DigraphStat, and WordStat are running aggregates with no
// per-row timestamp worth expiring on — deleting them would throw away
// the very training signal the aggregates exist to build, so retention
// never touches them.
func (s *SQLite) ApplyRetention(retentionDays int, nowMs int64) error {
	// -1 means keep forever; 0 is a real policy that prunes everything
	// older than the moment of the sweep.
	if retentionDays < 0 {
		return nil
	}
	cutoffMs := nowMs - int64(retentionDays)*24*60*60*1000

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin retention transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM bursts WHERE start_ms < ?`, cutoffMs); err != nil {
		return fmt.Errorf("store: delete expired bursts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM high_scores WHERE "timestamp" < ?`, cutoffMs); err != nil {
		return fmt.Errorf("store: delete expired high scores: %w", err)
	}
	if _, err := tx.Exec(`
		DELETE FROM daily_summaries
		WHERE date < date(? / 1000, 'unixepoch', 'localtime')`, cutoffMs); err != nil {
		return fmt.Errorf("store: delete expired daily summaries: %w", err)
	}

	return tx.Commit()
}

// ClearAll wipes every table in one transaction, including the
// tamper-evidence chain head. The schema itself stays in place.
func (s *SQLite) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"bursts", "high_scores", "key_stats", "digraph_stats", "word_stats",
		"daily_summaries", "ignored_word_hashes", "settings", "sync_log",
		"chain_integrity",
	} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
