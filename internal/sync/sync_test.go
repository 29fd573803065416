package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
	"github.com/Dronakurl/realtypecoach/internal/store"
)

// fakeBackend is an in-memory Backend for exercising the merge logic
// without a database.
type fakeBackend struct {
	bursts     map[int64]stats.PersistedBurst
	highScores map[int64]stats.HighScore
	keyStats   map[string]stats.KeyStat
	digraphs   map[string]stats.DigraphStat
	words      map[string]stats.WordStat
	daily      map[string]stats.DailySummary
	settings   map[string]store.Setting
	ignored    map[string]store.IgnoredWordHash
	syncLog    map[int64]store.SyncLogEntry
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		bursts:     make(map[int64]stats.PersistedBurst),
		highScores: make(map[int64]stats.HighScore),
		keyStats:   make(map[string]stats.KeyStat),
		digraphs:   make(map[string]stats.DigraphStat),
		words:      make(map[string]stats.WordStat),
		daily:      make(map[string]stats.DailySummary),
		settings:   make(map[string]store.Setting),
		ignored:    make(map[string]store.IgnoredWordHash),
		syncLog:    make(map[int64]store.SyncLogEntry),
	}
}

func keyStatKey(k stats.KeyStat) string {
	return string(rune(k.Keycode)) + "|" + string(k.Layout)
}

func (f *fakeBackend) BurstTimestamps() ([]int64, error) {
	out := make([]int64, 0, len(f.bursts))
	for ts := range f.bursts {
		out = append(out, ts)
	}
	return out, nil
}

func (f *fakeBackend) BurstsByTimestamps(ts []int64) ([]stats.PersistedBurst, error) {
	var out []stats.PersistedBurst
	for _, t := range ts {
		if b, ok := f.bursts[t]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBackend) InsertBurst(b stats.PersistedBurst) error {
	f.bursts[b.Timestamp] = b
	return nil
}

func (f *fakeBackend) HighScoreTimestamps() ([]int64, error) {
	out := make([]int64, 0, len(f.highScores))
	for ts := range f.highScores {
		out = append(out, ts)
	}
	return out, nil
}

func (f *fakeBackend) HighScoresByTimestamps(ts []int64) ([]stats.HighScore, error) {
	var out []stats.HighScore
	for _, t := range ts {
		if h, ok := f.highScores[t]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeBackend) InsertHighScore(h stats.HighScore) error {
	f.highScores[h.Timestamp] = h
	return nil
}

func (f *fakeBackend) AllKeyStats() ([]stats.KeyStat, error) {
	var out []stats.KeyStat
	for _, k := range f.keyStats {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeBackend) UpsertKeyStat(k stats.KeyStat) error {
	f.keyStats[keyStatKey(k)] = k
	return nil
}

func (f *fakeBackend) AllDigraphStats() ([]stats.DigraphStat, error) {
	var out []stats.DigraphStat
	for _, d := range f.digraphs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeBackend) UpsertDigraphStat(d stats.DigraphStat) error {
	f.digraphs[string(rune(d.FirstKeycode))+string(rune(d.SecondKeycode))+string(d.Layout)] = d
	return nil
}

func (f *fakeBackend) AllWordStats() ([]stats.WordStat, error) {
	var out []stats.WordStat
	for _, w := range f.words {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeBackend) UpsertWordStat(w stats.WordStat) error {
	f.words[w.Word+"|"+string(w.Layout)] = w
	return nil
}

func (f *fakeBackend) DeleteWordStat(word string, layout keycodes.Layout) error {
	delete(f.words, word+"|"+string(layout))
	return nil
}

func (f *fakeBackend) AllDailySummaries() ([]stats.DailySummary, error) {
	var out []stats.DailySummary
	for _, d := range f.daily {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeBackend) UpsertDailySummary(d stats.DailySummary) error {
	f.daily[d.Date] = d
	return nil
}

func (f *fakeBackend) AllSettings() ([]store.Setting, error) {
	var out []store.Setting
	for _, s := range f.settings {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeBackend) UpsertSetting(s store.Setting) error {
	f.settings[s.Key] = s
	return nil
}

func (f *fakeBackend) AllIgnoredWordHashes() ([]store.IgnoredWordHash, error) {
	var out []store.IgnoredWordHash
	for _, h := range f.ignored {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeBackend) InsertIgnoredWordHash(h store.IgnoredWordHash) error {
	if _, exists := f.ignored[h.WordHash]; !exists {
		f.ignored[h.WordHash] = h
	}
	return nil
}

func (f *fakeBackend) SyncLogTimestamps() ([]int64, error) {
	out := make([]int64, 0, len(f.syncLog))
	for ts := range f.syncLog {
		out = append(out, ts)
	}
	return out, nil
}

func (f *fakeBackend) SyncLogEntriesByTimestamps(ts []int64) ([]store.SyncLogEntry, error) {
	var out []store.SyncLogEntry
	for _, t := range ts {
		if e, ok := f.syncLog[t]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) InsertSyncLogEntry(e store.SyncLogEntry) error {
	f.syncLog[e.Timestamp] = e
	return nil
}

func newTestSynchronizer(local, remote Backend) *Synchronizer {
	return New(local, remote, "test-machine", func() []string { return []string{"james", "jamess"} }, nil)
}

func TestAppendOnlyConvergence(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	local.bursts[100] = stats.PersistedBurst{Timestamp: 100, KeyCount: 12, AvgWPM: 60}
	local.bursts[200] = stats.PersistedBurst{Timestamp: 200, KeyCount: 20, AvgWPM: 70}
	remote.bursts[200] = stats.PersistedBurst{Timestamp: 200, KeyCount: 20, AvgWPM: 70}
	remote.bursts[300] = stats.PersistedBurst{Timestamp: 300, KeyCount: 15, AvgWPM: 80}

	s := newTestSynchronizer(local, remote)
	entry, err := s.Sync(context.Background())
	require.NoError(t, err)

	counts := entry.TableBreakdown["bursts"]
	assert.Equal(t, 1, counts.Pushed)
	assert.Equal(t, 1, counts.Pulled)

	// Union of rows on both sides after sync equals the union before.
	for _, ts := range []int64{100, 200, 300} {
		assert.Contains(t, local.bursts, ts)
		assert.Contains(t, remote.bursts, ts)
	}
}

func TestSyncIdempotence(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	local.bursts[100] = stats.PersistedBurst{Timestamp: 100, KeyCount: 12}
	remoteRow := stats.KeyStat{Keycode: 30, Layout: keycodes.US, AvgPressTimeMs: 100, TotalPresses: 30, LastUpdatedMs: 500}
	remote.keyStats[keyStatKey(remoteRow)] = remoteRow
	local.ignored["abc"] = store.IgnoredWordHash{WordHash: "abc", AddedAtMs: 1}

	s := newTestSynchronizer(local, remote)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	second, err := s.Sync(context.Background())
	require.NoError(t, err)

	for table, counts := range second.TableBreakdown {
		// The first run's own sync_log entry legitimately syncs on the
		// second run; every data table must be all-zero.
		if table == tableSyncLog {
			continue
		}
		assert.Zero(t, counts.Pushed, "table %s pushed", table)
		assert.Zero(t, counts.Pulled, "table %s pulled", table)
		assert.Zero(t, counts.Merged, "table %s merged", table)
	}
}

func TestAggregateMergeLastWriterWins(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	// Scenario: local row older than remote; remote must win on both
	// sides and the full payload must come from the remote row.
	localRow := stats.KeyStat{
		Keycode: 30, Layout: keycodes.US, KeyName: "a",
		AvgPressTimeMs: 120, TotalPresses: 10, LastUpdatedMs: 1000,
	}
	remoteRow := stats.KeyStat{
		Keycode: 30, Layout: keycodes.US, KeyName: "a",
		AvgPressTimeMs: 100, TotalPresses: 30, LastUpdatedMs: 2000,
	}
	local.keyStats[keyStatKey(localRow)] = localRow
	remote.keyStats[keyStatKey(remoteRow)] = remoteRow

	s := newTestSynchronizer(local, remote)
	entry, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, entry.TableBreakdown[tableStatistics].Pulled, 1)

	for _, side := range []*fakeBackend{local, remote} {
		got := side.keyStats[keyStatKey(stats.KeyStat{Keycode: 30, Layout: keycodes.US})]
		assert.Equal(t, float64(100), got.AvgPressTimeMs)
		assert.Equal(t, int64(30), got.TotalPresses)
		assert.Equal(t, int64(2000), got.LastUpdatedMs)
	}
}

func TestAggregateMergeTieLeavesBothSides(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	row := stats.KeyStat{Keycode: 30, Layout: keycodes.US, AvgPressTimeMs: 100, TotalPresses: 5, LastUpdatedMs: 1000}
	local.keyStats[keyStatKey(row)] = row
	remote.keyStats[keyStatKey(row)] = row

	s := newTestSynchronizer(local, remote)
	entry, err := s.Sync(context.Background())
	require.NoError(t, err)

	counts := entry.TableBreakdown[tableStatistics]
	assert.Zero(t, counts.Pushed)
	assert.Zero(t, counts.Pulled)
	assert.Zero(t, counts.Merged)
}

func TestIgnoredWordsAppendOnly(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	local.ignored["h1"] = store.IgnoredWordHash{WordHash: "h1", AddedAtMs: 1}
	remote.ignored["h2"] = store.IgnoredWordHash{WordHash: "h2", AddedAtMs: 2}

	s := newTestSynchronizer(local, remote)
	entry, err := s.Sync(context.Background())
	require.NoError(t, err)

	counts := entry.TableBreakdown[tableIgnored]
	assert.Equal(t, 1, counts.Pushed)
	assert.Equal(t, 1, counts.Pulled)
	assert.Len(t, local.ignored, 2)
	assert.Len(t, remote.ignored, 2)
}

func TestExcludeNamesSideEffectPurgesLocalWords(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	local.words["james|us"] = stats.WordStat{Word: "james", Layout: keycodes.US, ObservationCount: 4}
	local.words["haus|us"] = stats.WordStat{Word: "haus", Layout: keycodes.US, ObservationCount: 2}
	remote.settings["exclude_names_enabled"] = store.Setting{
		Key: "exclude_names_enabled", Value: "true", UpdatedAtMs: 9000,
	}

	s := newTestSynchronizer(local, remote)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, local.words, "james|us", "name word should be purged")
	assert.Contains(t, local.words, "haus|us", "ordinary word must survive")
}

func TestSecondSyncAttemptWhileRunning(t *testing.T) {
	s := newTestSynchronizer(newFakeBackend(), newFakeBackend())
	s.running.Store(true)

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestUnresolvableRowsAreSkippedNotFatal(t *testing.T) {
	local := newFakeBackend()
	remote := newFakeBackend()

	// Both sides hold the row with no update timestamp: no ordering
	// exists, so the row is skipped and noted, and the sync succeeds.
	localRow := stats.KeyStat{Keycode: 30, Layout: keycodes.US, AvgPressTimeMs: 120}
	remoteRow := stats.KeyStat{Keycode: 30, Layout: keycodes.US, AvgPressTimeMs: 90}
	local.keyStats[keyStatKey(localRow)] = localRow
	remote.keyStats[keyStatKey(remoteRow)] = remoteRow

	s := newTestSynchronizer(local, remote)
	entry, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Contains(t, entry.Error, "skipped")
}
