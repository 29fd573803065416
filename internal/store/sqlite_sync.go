package store

import (
	"fmt"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

// Sync surface of the local store. These methods exist so the
// synchronizer can treat the local and remote backends uniformly.

func (s *SQLite) BurstTimestamps() ([]int64, error) {
	return s.view().timestamps("bursts")
}

func (s *SQLite) BurstsByTimestamps(ts []int64) ([]stats.PersistedBurst, error) {
	return s.view().burstsByTimestamps(ts)
}

func (s *SQLite) HighScoreTimestamps() ([]int64, error) {
	return s.view().timestamps("high_scores")
}

func (s *SQLite) HighScoresByTimestamps(ts []int64) ([]stats.HighScore, error) {
	return s.view().highScoresByTimestamps(ts)
}

func (s *SQLite) AllKeyStats() ([]stats.KeyStat, error)         { return s.view().allKeyStats() }
func (s *SQLite) AllDigraphStats() ([]stats.DigraphStat, error) { return s.view().allDigraphStats() }
func (s *SQLite) AllWordStats() ([]stats.WordStat, error)       { return s.view().allWordStats() }
func (s *SQLite) AllDailySummaries() ([]stats.DailySummary, error) {
	return s.view().allDailySummaries()
}
func (s *SQLite) AllSettings() ([]Setting, error) { return s.view().allSettings() }
func (s *SQLite) AllIgnoredWordHashes() ([]IgnoredWordHash, error) {
	return s.view().allIgnoredWordHashes()
}

func (s *SQLite) SyncLogTimestamps() ([]int64, error) {
	return s.view().timestamps("sync_log")
}

func (s *SQLite) SyncLogEntriesByTimestamps(ts []int64) ([]SyncLogEntry, error) {
	return s.view().syncLogEntriesByTimestamps(ts)
}

// DeleteWordStat removes one word row, used by the exclude-names side
// effect when the setting flips on.
func (s *SQLite) DeleteWordStat(word string, layout keycodes.Layout) error {
	_, err := s.db.Exec(`DELETE FROM word_stats WHERE word = ? AND layout = ?`, word, string(layout))
	if err != nil {
		return fmt.Errorf("store: delete word stat: %w", err)
	}
	return nil
}

func (s *SQLite) view() syncView {
	return newLocalSyncView(s.db)
}
