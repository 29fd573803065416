package store

import "github.com/Dronakurl/realtypecoach/internal/stats"

// Sync surface of the remote store, all scoped to the configured user.

func (p *Postgres) BurstTimestamps() ([]int64, error) {
	return p.view().timestamps("bursts")
}

func (p *Postgres) BurstsByTimestamps(ts []int64) ([]stats.PersistedBurst, error) {
	return p.view().burstsByTimestamps(ts)
}

func (p *Postgres) HighScoreTimestamps() ([]int64, error) {
	return p.view().timestamps("high_scores")
}

func (p *Postgres) HighScoresByTimestamps(ts []int64) ([]stats.HighScore, error) {
	return p.view().highScoresByTimestamps(ts)
}

func (p *Postgres) AllDigraphStats() ([]stats.DigraphStat, error) {
	return p.view().allDigraphStats()
}

func (p *Postgres) AllDailySummaries() ([]stats.DailySummary, error) {
	return p.view().allDailySummaries()
}

func (p *Postgres) AllSettings() ([]Setting, error) { return p.view().allSettings() }

func (p *Postgres) SyncLogTimestamps() ([]int64, error) {
	return p.view().timestamps("sync_log")
}

func (p *Postgres) SyncLogEntriesByTimestamps(ts []int64) ([]SyncLogEntry, error) {
	return p.view().syncLogEntriesByTimestamps(ts)
}

func (p *Postgres) view() syncView {
	return newRemoteSyncView(p.db, p.userID)
}
