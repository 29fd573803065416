package store

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

func testMasterKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i + 7)
	}
	return k
}

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(dbPath, testMasterKey())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndClose(t *testing.T) {
	openTestStore(t)
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")
	s, err := OpenSQLite(dbPath, testMasterKey())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()
}

func TestUpsertAndGetKeyStat(t *testing.T) {
	s := openTestStore(t)
	k := stats.KeyStat{
		Keycode: 30, Layout: keycodes.US, KeyName: "a",
		AvgPressTimeMs: 120, TotalPresses: 5, SlowestMs: 200, FastestMs: 80, LastUpdatedMs: 1000,
	}
	if err := s.UpsertKeyStat(k); err != nil {
		t.Fatalf("UpsertKeyStat: %v", err)
	}

	got, found, err := s.GetKeyStat(30, keycodes.US)
	if err != nil || !found {
		t.Fatalf("GetKeyStat: found=%v err=%v", found, err)
	}
	if got.AvgPressTimeMs != 120 || got.TotalPresses != 5 {
		t.Errorf("GetKeyStat returned %+v", got)
	}

	k.AvgPressTimeMs = 110
	k.TotalPresses = 6
	if err := s.UpsertKeyStat(k); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _, _ = s.GetKeyStat(30, keycodes.US)
	if got.TotalPresses != 6 {
		t.Errorf("upsert did not overwrite, got %+v", got)
	}
}

func TestGetKeyStatMissing(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.GetKeyStat(999, keycodes.US)
	if err != nil {
		t.Fatalf("GetKeyStat: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestUpsertAndGetDigraphStat(t *testing.T) {
	s := openTestStore(t)
	d := stats.DigraphStat{
		FirstKeycode: 30, SecondKeycode: 31, Layout: keycodes.US,
		AvgIntervalMs: 90, TotalSequences: 3, SlowestMs: 150, FastestMs: 50, LastUpdatedMs: 2000,
	}
	if err := s.UpsertDigraphStat(d); err != nil {
		t.Fatalf("UpsertDigraphStat: %v", err)
	}
	got, found, err := s.GetDigraphStat(30, 31, keycodes.US)
	if err != nil || !found {
		t.Fatalf("GetDigraphStat: found=%v err=%v", found, err)
	}
	if got.TotalSequences != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestUpsertAndGetWordStat(t *testing.T) {
	s := openTestStore(t)
	w := stats.WordStat{
		Word: "hello", Layout: keycodes.US,
		AvgSpeedMsPerLetter: 85, TotalLetters: 5, TotalDurationMs: 425,
		ObservationCount: 1, LastSeenMs: 3000,
	}
	if err := s.UpsertWordStat(w); err != nil {
		t.Fatalf("UpsertWordStat: %v", err)
	}
	got, found, err := s.GetWordStat("hello", keycodes.US)
	if err != nil || !found {
		t.Fatalf("GetWordStat: found=%v err=%v", found, err)
	}
	if got.TotalLetters != 5 {
		t.Errorf("got %+v", got)
	}
}

func TestUpsertDailySummary(t *testing.T) {
	s := openTestStore(t)
	d := stats.DailySummary{
		Date: "2026-07-31", TotalKeystrokes: 100, TotalBursts: 4, AvgWPM: 55,
		SlowestKeycode: 30, SlowestKeyName: "a", TotalTypingSec: 60, SummarySent: false,
	}
	if err := s.UpsertDailySummary(d); err != nil {
		t.Fatalf("UpsertDailySummary: %v", err)
	}
	got, found, err := s.GetDailySummary("2026-07-31")
	if err != nil || !found {
		t.Fatalf("GetDailySummary: found=%v err=%v", found, err)
	}
	if got.TotalKeystrokes != 100 || got.SlowestKeyName != "a" {
		t.Errorf("got %+v", got)
	}

	d.SummarySent = true
	if err := s.UpsertDailySummary(d); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _, _ = s.GetDailySummary("2026-07-31")
	if !got.SummarySent {
		t.Error("expected summary_sent true after upsert")
	}
}

func TestInsertBurstChainsAndVerifies(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		b := stats.PersistedBurst{
			Timestamp: int64(1000 + i), StartMs: int64(1000 + i*500), EndMs: int64(1400 + i*500),
			KeyCount: 20 + i, BackspaceCount: i, NetKeyCount: 20, DurationMs: 400, AvgWPM: 50 + float64(i),
		}
		if err := s.InsertBurst(b); err != nil {
			t.Fatalf("InsertBurst %d: %v", i, err)
		}
	}
	if err := s.VerifyChain(); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}

	wpms, err := s.AllBurstWPMs()
	if err != nil {
		t.Fatalf("AllBurstWPMs: %v", err)
	}
	if len(wpms) != 5 {
		t.Errorf("expected 5 wpms, got %d", len(wpms))
	}
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	s := openTestStore(t)
	b := stats.PersistedBurst{Timestamp: 1, StartMs: 0, EndMs: 400, KeyCount: 20, NetKeyCount: 20, DurationMs: 400, AvgWPM: 60}
	if err := s.InsertBurst(b); err != nil {
		t.Fatalf("InsertBurst: %v", err)
	}

	if _, err := s.db.Exec(`UPDATE bursts SET avg_wpm = 999 WHERE "timestamp" = 1`); err != nil {
		t.Fatalf("tamper update: %v", err)
	}

	if err := s.VerifyChain(); err == nil {
		t.Error("expected VerifyChain to detect tampering, got nil")
	}
}

func TestInsertHighScore(t *testing.T) {
	s := openTestStore(t)
	h := stats.HighScore{Timestamp: 1, Date: "2026-07-31", FastestBurstWPM: 95, BurstDurationSec: 8, BurstDurationMs: 8000, BurstKeyCount: 120}
	if err := s.InsertHighScore(h); err != nil {
		t.Fatalf("InsertHighScore: %v", err)
	}
}

func TestIgnoredWordHashRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.HashAndInsertIgnoredWord("cordate", 1); err != nil {
		t.Fatalf("HashAndInsertIgnoredWord: %v", err)
	}
	if !s.IsWordIgnored("cordate") {
		t.Error("expected cordate to be ignored")
	}
	if s.IsWordIgnored("doesnotexist") {
		t.Error("expected doesnotexist to not be ignored")
	}

	// duplicate insert must not error (ON CONFLICT DO NOTHING)
	if err := s.HashAndInsertIgnoredWord("cordate", 2); err != nil {
		t.Fatalf("duplicate HashAndInsertIgnoredWord: %v", err)
	}
}

func TestSettingLastWriterWins(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertSetting(Setting{Key: "k", Value: "v1", UpdatedAtMs: 100}); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}
	// Older write must not overwrite a newer one.
	if err := s.UpsertSetting(Setting{Key: "k", Value: "v0", UpdatedAtMs: 50}); err != nil {
		t.Fatalf("UpsertSetting (stale): %v", err)
	}
	got, found, err := s.GetSetting("k")
	if err != nil || !found {
		t.Fatalf("GetSetting: found=%v err=%v", found, err)
	}
	if got.Value != "v1" {
		t.Errorf("expected last-writer-wins to keep v1, got %q", got.Value)
	}
}

func TestSlowestAndFastestKeys(t *testing.T) {
	s := openTestStore(t)
	keys := []stats.KeyStat{
		{Keycode: 1, Layout: keycodes.US, KeyName: "a", AvgPressTimeMs: 200, TotalPresses: 25},
		{Keycode: 2, Layout: keycodes.US, KeyName: "s", AvgPressTimeMs: 100, TotalPresses: 25},
		{Keycode: 3, Layout: keycodes.US, KeyName: "d", AvgPressTimeMs: 5, TotalPresses: 5}, // below min sample
	}
	for _, k := range keys {
		if err := s.UpsertKeyStat(k); err != nil {
			t.Fatalf("UpsertKeyStat: %v", err)
		}
	}

	slowest, err := s.SlowestKeys(10, keycodes.US, 20)
	if err != nil {
		t.Fatalf("SlowestKeys: %v", err)
	}
	if len(slowest) != 2 || slowest[0].KeyName != "a" {
		t.Fatalf("SlowestKeys = %+v", slowest)
	}

	fastest, err := s.FastestKeys(10, keycodes.US, 20)
	if err != nil {
		t.Fatalf("FastestKeys: %v", err)
	}
	if len(fastest) != 2 || fastest[0].KeyName != "s" {
		t.Fatalf("FastestKeys = %+v", fastest)
	}
}

func TestSyncLogEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	entry := SyncLogEntry{
		Timestamp: 1, MachineName: "laptop", Pushed: 3, Pulled: 1, Merged: 0, DurationMs: 250,
		TableBreakdown: map[string]TableSyncCounts{"word_stats": {Pushed: 3, Pulled: 1}},
	}
	if err := s.InsertSyncLogEntry(entry); err != nil {
		t.Fatalf("InsertSyncLogEntry: %v", err)
	}
}

func TestKeyLeaderboardsSkipNonLetterKeys(t *testing.T) {
	s := openTestStore(t)
	keys := []stats.KeyStat{
		{Keycode: 30, Layout: keycodes.US, KeyName: "a", AvgPressTimeMs: 120, TotalPresses: 30},
		{Keycode: 57, Layout: keycodes.US, KeyName: "SPACE", AvgPressTimeMs: 500, TotalPresses: 90},
		{Keycode: 14, Layout: keycodes.US, KeyName: "BACKSPACE", AvgPressTimeMs: 700, TotalPresses: 50},
		{Keycode: 26, Layout: keycodes.DE, KeyName: "ü", AvgPressTimeMs: 300, TotalPresses: 40},
	}
	for _, k := range keys {
		if err := s.UpsertKeyStat(k); err != nil {
			t.Fatalf("UpsertKeyStat: %v", err)
		}
	}

	slowest, err := s.SlowestKeys(10, keycodes.US, 20)
	if err != nil {
		t.Fatalf("SlowestKeys: %v", err)
	}
	if len(slowest) != 1 || slowest[0].KeyName != "a" {
		t.Fatalf("SlowestKeys should exclude modifier keys, got %+v", slowest)
	}

	de, err := s.SlowestKeys(10, keycodes.DE, 20)
	if err != nil {
		t.Fatalf("SlowestKeys DE: %v", err)
	}
	if len(de) != 1 || de[0].KeyName != "ü" {
		t.Fatalf("German letters must count as letters, got %+v", de)
	}
}

func TestApplyRetention(t *testing.T) {
	s := openTestStore(t)
	const day = int64(24 * 60 * 60 * 1000)
	now := int64(100 * day)

	old := stats.PersistedBurst{Timestamp: now - 40*day, StartMs: now - 40*day, EndMs: now - 40*day + 9000, KeyCount: 30, NetKeyCount: 30, DurationMs: 9000, AvgWPM: 40}
	fresh := stats.PersistedBurst{Timestamp: now - 2*day, StartMs: now - 2*day, EndMs: now - 2*day + 9000, KeyCount: 30, NetKeyCount: 30, DurationMs: 9000, AvgWPM: 50}
	for _, b := range []stats.PersistedBurst{old, fresh} {
		if err := s.InsertBurst(b); err != nil {
			t.Fatalf("InsertBurst: %v", err)
		}
	}
	if err := s.InsertHighScore(stats.HighScore{Timestamp: now - 40*day, Date: "old"}); err != nil {
		t.Fatalf("InsertHighScore: %v", err)
	}

	// Aggregates must survive retention untouched.
	if err := s.UpsertKeyStat(stats.KeyStat{Keycode: 30, Layout: keycodes.US, KeyName: "a", TotalPresses: 5, LastUpdatedMs: now - 40*day}); err != nil {
		t.Fatalf("UpsertKeyStat: %v", err)
	}

	if err := s.ApplyRetention(30, now); err != nil {
		t.Fatalf("ApplyRetention: %v", err)
	}

	ts, err := s.BurstTimestamps()
	if err != nil {
		t.Fatalf("BurstTimestamps: %v", err)
	}
	if len(ts) != 1 || ts[0] != fresh.Timestamp {
		t.Errorf("bursts after retention = %v", ts)
	}

	hs, err := s.HighScoreTimestamps()
	if err != nil {
		t.Fatalf("HighScoreTimestamps: %v", err)
	}
	if len(hs) != 0 {
		t.Errorf("high scores after retention = %v", hs)
	}

	if _, found, err := s.GetKeyStat(30, keycodes.US); err != nil || !found {
		t.Errorf("key stat must survive retention (found=%v err=%v)", found, err)
	}
}

func TestRetentionZeroDaysPrunesEverythingOlderThanNow(t *testing.T) {
	s := openTestStore(t)
	now := int64(1_000_000)

	if err := s.InsertBurst(stats.PersistedBurst{Timestamp: now - 10, StartMs: now - 10, EndMs: now - 1, KeyCount: 30, DurationMs: 9, AvgWPM: 40}); err != nil {
		t.Fatalf("InsertBurst: %v", err)
	}
	if err := s.InsertHighScore(stats.HighScore{Timestamp: now - 10, Date: "today"}); err != nil {
		t.Fatalf("InsertHighScore: %v", err)
	}

	if err := s.ApplyRetention(0, now); err != nil {
		t.Fatalf("ApplyRetention: %v", err)
	}

	ts, err := s.BurstTimestamps()
	if err != nil {
		t.Fatalf("BurstTimestamps: %v", err)
	}
	if len(ts) != 0 {
		t.Errorf("retention 0 must prune everything older than now, got %v", ts)
	}
	hs, err := s.HighScoreTimestamps()
	if err != nil {
		t.Fatalf("HighScoreTimestamps: %v", err)
	}
	if len(hs) != 0 {
		t.Errorf("high scores survived zero-day retention: %v", hs)
	}
}

func TestRetentionDisabledKeepsEverything(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertBurst(stats.PersistedBurst{Timestamp: 1, EndMs: 9000, KeyCount: 30, DurationMs: 9000}); err != nil {
		t.Fatalf("InsertBurst: %v", err)
	}
	if err := s.ApplyRetention(-1, 1_000_000_000_000); err != nil {
		t.Fatalf("ApplyRetention: %v", err)
	}
	ts, _ := s.BurstTimestamps()
	if len(ts) != 1 {
		t.Errorf("retention -1 must keep everything, got %v", ts)
	}
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertBurst(stats.PersistedBurst{Timestamp: 1, KeyCount: 30}); err != nil {
		t.Fatalf("InsertBurst: %v", err)
	}
	if err := s.UpsertSetting(Setting{Key: "k", Value: "v", UpdatedAtMs: 1}); err != nil {
		t.Fatalf("UpsertSetting: %v", err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	ts, _ := s.BurstTimestamps()
	if len(ts) != 0 {
		t.Errorf("bursts survived clear: %v", ts)
	}
	if _, found, _ := s.GetSetting("k"); found {
		t.Error("setting survived clear")
	}

	// A fresh chain must start cleanly after the wipe.
	if err := s.InsertBurst(stats.PersistedBurst{Timestamp: 2, KeyCount: 30}); err != nil {
		t.Fatalf("InsertBurst after clear: %v", err)
	}
	if err := s.VerifyChain(); err != nil {
		t.Errorf("VerifyChain after clear: %v", err)
	}
}

func TestExportBurstsCSV(t *testing.T) {
	s := openTestStore(t)
	for _, b := range []stats.PersistedBurst{
		{Timestamp: 1000, StartMs: 1000, EndMs: 7000, KeyCount: 30, NetKeyCount: 30, DurationMs: 6000, AvgWPM: 60},
		{Timestamp: 900000, StartMs: 900000, EndMs: 906000, KeyCount: 30, NetKeyCount: 30, DurationMs: 6000, AvgWPM: 72},
	} {
		if err := s.InsertBurst(b); err != nil {
			t.Fatalf("InsertBurst: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := s.ExportBurstsCSV(&buf, 0, 500000); err != nil {
		t.Fatalf("ExportBurstsCSV: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "1000,") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestSyncViewRoundTrips(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertKeyStat(stats.KeyStat{Keycode: 30, Layout: keycodes.US, KeyName: "a", AvgPressTimeMs: 110, TotalPresses: 12, LastUpdatedMs: 99}); err != nil {
		t.Fatalf("UpsertKeyStat: %v", err)
	}
	if err := s.InsertBurst(stats.PersistedBurst{Timestamp: 5, KeyCount: 30, AvgWPM: 66}); err != nil {
		t.Fatalf("InsertBurst: %v", err)
	}

	keys, err := s.AllKeyStats()
	if err != nil {
		t.Fatalf("AllKeyStats: %v", err)
	}
	if len(keys) != 1 || keys[0].LastUpdatedMs != 99 {
		t.Fatalf("AllKeyStats = %+v", keys)
	}

	ts, err := s.BurstTimestamps()
	if err != nil {
		t.Fatalf("BurstTimestamps: %v", err)
	}
	bursts, err := s.BurstsByTimestamps(ts)
	if err != nil {
		t.Fatalf("BurstsByTimestamps: %v", err)
	}
	if len(bursts) != 1 || bursts[0].AvgWPM != 66 {
		t.Fatalf("BurstsByTimestamps = %+v", bursts)
	}

	if none, err := s.BurstsByTimestamps(nil); err != nil || none != nil {
		t.Errorf("empty timestamp fetch = %v, %v", none, err)
	}
}
