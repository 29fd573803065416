// Package store provides the encrypted local and relational remote
// backends for typing telemetry: KeyStat/DigraphStat/WordStat/Burst/
// HighScore/DailySummary rows plus settings and the hashed ignore list.
package store

// Setting is a last-writer-wins configuration row synced between local
// and remote stores.
type Setting struct {
	Key         string
	Value       string
	UpdatedAtMs int64
}

// IgnoredWordHash is a privacy-preserving, append-only row: the
// original word is never stored, only its hash.
type IgnoredWordHash struct {
	WordHash  string
	AddedAtMs int64
}

// SyncLogEntry records the outcome of one synchronizer run.
type SyncLogEntry struct {
	Timestamp      int64
	MachineName    string
	Pushed         int
	Pulled         int
	Merged         int
	DurationMs     int64
	Error          string
	TableBreakdown map[string]TableSyncCounts
}

// TableSyncCounts is the per-table breakdown within a SyncLogEntry.
type TableSyncCounts struct {
	Pushed int
	Pulled int
	Merged int
}
