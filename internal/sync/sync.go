// Package sync reconciles the local store with the remote one. Append-only
// tables are merged by set difference on their natural keys; aggregate
// tables by last-writer-wins on their update timestamps. One sync runs at
// a time per process, and each run leaves a SyncLogEntry with a per-table
// breakdown in the local store; the remote store records it only when the
// run succeeds.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
	"github.com/Dronakurl/realtypecoach/internal/store"
)

// ErrSyncInProgress is returned when a sync is requested while another
// one is still running.
var ErrSyncInProgress = errors.New("sync: already in progress")

// UnresolvableRowsError reports rows that could not be merged because
// neither side carries an update timestamp. Such rows are skipped, noted
// in the sync log entry's error detail, and do not abort the run.
type UnresolvableRowsError struct {
	Count int
}

func (e *UnresolvableRowsError) Error() string {
	return fmt.Sprintf("sync: %d rows skipped (missing last_updated_ms)", e.Count)
}

// Backend is the capability set the synchronizer needs from a store.
// Both *store.SQLite and *store.Postgres implement it.
type Backend interface {
	BurstTimestamps() ([]int64, error)
	BurstsByTimestamps([]int64) ([]stats.PersistedBurst, error)
	InsertBurst(stats.PersistedBurst) error

	HighScoreTimestamps() ([]int64, error)
	HighScoresByTimestamps([]int64) ([]stats.HighScore, error)
	InsertHighScore(stats.HighScore) error

	AllKeyStats() ([]stats.KeyStat, error)
	UpsertKeyStat(stats.KeyStat) error
	AllDigraphStats() ([]stats.DigraphStat, error)
	UpsertDigraphStat(stats.DigraphStat) error
	AllWordStats() ([]stats.WordStat, error)
	UpsertWordStat(stats.WordStat) error
	DeleteWordStat(word string, layout keycodes.Layout) error
	AllDailySummaries() ([]stats.DailySummary, error)
	UpsertDailySummary(stats.DailySummary) error

	AllSettings() ([]store.Setting, error)
	UpsertSetting(store.Setting) error

	AllIgnoredWordHashes() ([]store.IgnoredWordHash, error)
	InsertIgnoredWordHash(store.IgnoredWordHash) error

	SyncLogTimestamps() ([]int64, error)
	SyncLogEntriesByTimestamps([]int64) ([]store.SyncLogEntry, error)
	InsertSyncLogEntry(store.SyncLogEntry) error
}

// Breakdown table names. Key statistics report as "statistics",
// matching what the shell's sync history view expects.
const (
	tableBursts     = "bursts"
	tableHighScores = "high_scores"
	tableStatistics = "statistics"
	tableDigraphs   = "digraph_statistics"
	tableWords      = "word_statistics"
	tableDaily      = "daily_summaries"
	tableSettings   = "settings"
	tableIgnored    = "ignored_words"
	tableSyncLog    = "sync_log"
)

// Synchronizer merges the two stores in both directions.
type Synchronizer struct {
	local  Backend
	remote Backend
	log    *slog.Logger

	machineName string

	// excludedNames supplies the common-names set (with genitives) for
	// the exclude_names_enabled side effect.
	excludedNames func() []string

	running atomic.Bool
}

// New builds a Synchronizer. excludedNames may be nil when the names
// feature is not configured.
func New(local, remote Backend, machineName string, excludedNames func() []string, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		local:         local,
		remote:        remote,
		log:           logger.With("component", "sync"),
		machineName:   machineName,
		excludedNames: excludedNames,
	}
}

// Sync runs one full cycle and returns the log entry it recorded. A
// second concurrent call fails fast with ErrSyncInProgress.
func (s *Synchronizer) Sync(ctx context.Context) (store.SyncLogEntry, error) {
	if !s.running.CompareAndSwap(false, true) {
		return store.SyncLogEntry{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	entry := store.SyncLogEntry{
		Timestamp:      start.UnixMilli(),
		MachineName:    s.machineName,
		TableBreakdown: make(map[string]store.TableSyncCounts),
	}

	// Each step is one table. A failure aborts the remaining tables but
	// keeps the counts already accumulated; everything written so far is
	// an upsert or keyed append, so a rerun converges.
	steps := []struct {
		table string
		run   func(context.Context) (store.TableSyncCounts, error)
	}{
		{tableBursts, s.syncBursts},
		{tableHighScores, s.syncHighScores},
		{tableStatistics, s.syncKeyStats},
		{tableDigraphs, s.syncDigraphStats},
		{tableWords, s.syncWordStats},
		{tableDaily, s.syncDailySummaries},
		{tableSettings, s.syncSettings},
		{tableIgnored, s.syncIgnoredWords},
		{tableSyncLog, s.syncSyncLog},
	}

	var syncErr error
	var skippedNotes []string
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			syncErr = err
			break
		}
		counts, err := step.run(ctx)
		entry.TableBreakdown[step.table] = counts
		entry.Pushed += counts.Pushed
		entry.Pulled += counts.Pulled
		entry.Merged += counts.Merged
		if err != nil {
			var unresolvable *UnresolvableRowsError
			if errors.As(err, &unresolvable) {
				skippedNotes = append(skippedNotes,
					fmt.Sprintf("%s: %d rows skipped (missing last_updated_ms)", step.table, unresolvable.Count))
				continue
			}
			syncErr = fmt.Errorf("sync: %s: %w", step.table, err)
			break
		}
	}

	entry.DurationMs = time.Since(start).Milliseconds()
	if len(skippedNotes) > 0 {
		entry.Error = strings.Join(skippedNotes, "; ")
	}
	if syncErr != nil {
		entry.Error = syncErr.Error()
		s.log.Error("sync failed", "error", syncErr,
			"pushed", entry.Pushed, "pulled", entry.Pulled, "duration_ms", entry.DurationMs)
	} else {
		s.log.Info("sync complete",
			"pushed", entry.Pushed, "pulled", entry.Pulled, "merged", entry.Merged,
			"duration_ms", entry.DurationMs)
	}

	if err := s.local.InsertSyncLogEntry(entry); err != nil {
		s.log.Warn("recording sync log locally failed", "error", err)
	}
	if syncErr == nil {
		if err := s.remote.InsertSyncLogEntry(entry); err != nil {
			s.log.Warn("recording sync log remotely failed", "error", err)
		}
	}

	return entry, syncErr
}

// --- append-only tables ---

func (s *Synchronizer) syncBursts(ctx context.Context) (store.TableSyncCounts, error) {
	var counts store.TableSyncCounts

	localTs, err := s.local.BurstTimestamps()
	if err != nil {
		return counts, err
	}
	remoteTs, err := s.remote.BurstTimestamps()
	if err != nil {
		return counts, err
	}

	toPull, toPush := diffInt64(localTs, remoteTs)

	pulled, err := s.remote.BurstsByTimestamps(toPull)
	if err != nil {
		return counts, err
	}
	for _, b := range pulled {
		if err := s.local.InsertBurst(b); err != nil {
			return counts, err
		}
		counts.Pulled++
	}

	pushed, err := s.local.BurstsByTimestamps(toPush)
	if err != nil {
		return counts, err
	}
	for _, b := range pushed {
		if err := s.remote.InsertBurst(b); err != nil {
			return counts, err
		}
		counts.Pushed++
	}
	return counts, nil
}

func (s *Synchronizer) syncHighScores(ctx context.Context) (store.TableSyncCounts, error) {
	var counts store.TableSyncCounts

	localTs, err := s.local.HighScoreTimestamps()
	if err != nil {
		return counts, err
	}
	remoteTs, err := s.remote.HighScoreTimestamps()
	if err != nil {
		return counts, err
	}

	toPull, toPush := diffInt64(localTs, remoteTs)

	pulled, err := s.remote.HighScoresByTimestamps(toPull)
	if err != nil {
		return counts, err
	}
	for _, h := range pulled {
		if err := s.local.InsertHighScore(h); err != nil {
			return counts, err
		}
		counts.Pulled++
	}

	pushed, err := s.local.HighScoresByTimestamps(toPush)
	if err != nil {
		return counts, err
	}
	for _, h := range pushed {
		if err := s.remote.InsertHighScore(h); err != nil {
			return counts, err
		}
		counts.Pushed++
	}
	return counts, nil
}

func (s *Synchronizer) syncSyncLog(ctx context.Context) (store.TableSyncCounts, error) {
	var counts store.TableSyncCounts

	localTs, err := s.local.SyncLogTimestamps()
	if err != nil {
		return counts, err
	}
	remoteTs, err := s.remote.SyncLogTimestamps()
	if err != nil {
		return counts, err
	}

	toPull, toPush := diffInt64(localTs, remoteTs)

	pulled, err := s.remote.SyncLogEntriesByTimestamps(toPull)
	if err != nil {
		return counts, err
	}
	for _, e := range pulled {
		if err := s.local.InsertSyncLogEntry(e); err != nil {
			return counts, err
		}
		counts.Pulled++
	}

	pushed, err := s.local.SyncLogEntriesByTimestamps(toPush)
	if err != nil {
		return counts, err
	}
	for _, e := range pushed {
		if err := s.remote.InsertSyncLogEntry(e); err != nil {
			return counts, err
		}
		counts.Pushed++
	}
	return counts, nil
}

func (s *Synchronizer) syncIgnoredWords(ctx context.Context) (store.TableSyncCounts, error) {
	var counts store.TableSyncCounts

	local, err := s.local.AllIgnoredWordHashes()
	if err != nil {
		return counts, err
	}
	remote, err := s.remote.AllIgnoredWordHashes()
	if err != nil {
		return counts, err
	}

	localSet := make(map[string]struct{}, len(local))
	for _, h := range local {
		localSet[h.WordHash] = struct{}{}
	}
	remoteSet := make(map[string]struct{}, len(remote))
	for _, h := range remote {
		remoteSet[h.WordHash] = struct{}{}
	}

	for _, h := range remote {
		if _, ok := localSet[h.WordHash]; ok {
			continue
		}
		if err := s.local.InsertIgnoredWordHash(h); err != nil {
			return counts, err
		}
		counts.Pulled++
	}
	for _, h := range local {
		if _, ok := remoteSet[h.WordHash]; ok {
			continue
		}
		if err := s.remote.InsertIgnoredWordHash(h); err != nil {
			return counts, err
		}
		counts.Pushed++
	}
	return counts, nil
}

// diffInt64 returns (inRemoteOnly, inLocalOnly).
func diffInt64(local, remote []int64) (toPull, toPush []int64) {
	localSet := make(map[int64]struct{}, len(local))
	for _, t := range local {
		localSet[t] = struct{}{}
	}
	remoteSet := make(map[int64]struct{}, len(remote))
	for _, t := range remote {
		remoteSet[t] = struct{}{}
	}
	for _, t := range remote {
		if _, ok := localSet[t]; !ok {
			toPull = append(toPull, t)
		}
	}
	for _, t := range local {
		if _, ok := remoteSet[t]; !ok {
			toPush = append(toPush, t)
		}
	}
	return toPull, toPush
}
