package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Dronakurl/realtypecoach/internal/hasher"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

// SQLite is the local, on-device backend. It is opened with a master key
// so an eventual encrypted SQLite build (SQLCipher) can be swapped in
// without touching callers; the plain mattn/go-sqlite3 driver used here
// simply ignores the cipher PRAGMAs.
type SQLite struct {
	db        *sqlx.DB
	masterKey []byte
	chainKey  []byte
	hasher    *hasher.Hasher
}

// sqliteDSN mirrors the pragmas a SQLCipher-backed build would need:
// a 4096-byte page size and a costly KDF iteration count on the cipher
// side, WAL journaling and foreign keys on the plain side.
const sqliteDSN = "%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// OpenSQLite opens or creates the local database at path, applying
// migrations and the local PRAGMAs. masterKey is the application's
// data-encryption key, retrieved from secretstore; it is threaded through
// for the secure burst chain (see secure.go) even though the open driver
// here does not use it to encrypt pages.
func OpenSQLite(path string, masterKey []byte) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", fmt.Sprintf(sqliteDSN, path))
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("store: set database permissions: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA cipher_page_size = 4096",
		"PRAGMA kdf_iter = 256000",
		"PRAGMA cipher_memory_security = ON",
	} {
		// Ignored by the plain sqlite3 driver; kept so the DSN and
		// pragma set match what a SQLCipher build expects verbatim.
		db.Exec(pragma)
	}

	if err := migrateSQLite(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	h, err := hasher.New(masterKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init word hasher: %w", err)
	}

	chainKey, err := deriveChainHMACKey(masterKey)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, masterKey: masterKey, chainKey: chainKey, hasher: h}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for secure.go and export.go, which
// need direct transaction control beyond sqlx's convenience methods.
func (s *SQLite) DB() *sql.DB {
	return s.db.DB
}

// --- stats.Store ---

func (s *SQLite) UpsertKeyStat(k stats.KeyStat) error {
	_, err := s.db.Exec(`
		INSERT INTO key_stats (keycode, layout, key_name, avg_press_time_ms, total_presses, slowest_ms, fastest_ms, last_updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(keycode, layout) DO UPDATE SET
			key_name = excluded.key_name,
			avg_press_time_ms = excluded.avg_press_time_ms,
			total_presses = excluded.total_presses,
			slowest_ms = excluded.slowest_ms,
			fastest_ms = excluded.fastest_ms,
			last_updated_ms = excluded.last_updated_ms`,
		k.Keycode, string(k.Layout), k.KeyName, k.AvgPressTimeMs, k.TotalPresses, k.SlowestMs, k.FastestMs, k.LastUpdatedMs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert key stat: %w", err)
	}
	return nil
}

func (s *SQLite) UpsertDigraphStat(d stats.DigraphStat) error {
	_, err := s.db.Exec(`
		INSERT INTO digraph_stats (first_keycode, second_keycode, layout, avg_interval_ms, total_sequences, slowest_ms, fastest_ms, last_updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(first_keycode, second_keycode, layout) DO UPDATE SET
			avg_interval_ms = excluded.avg_interval_ms,
			total_sequences = excluded.total_sequences,
			slowest_ms = excluded.slowest_ms,
			fastest_ms = excluded.fastest_ms,
			last_updated_ms = excluded.last_updated_ms`,
		d.FirstKeycode, d.SecondKeycode, string(d.Layout), d.AvgIntervalMs, d.TotalSequences, d.SlowestMs, d.FastestMs, d.LastUpdatedMs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert digraph stat: %w", err)
	}
	return nil
}

func (s *SQLite) UpsertWordStat(w stats.WordStat) error {
	_, err := s.db.Exec(`
		INSERT INTO word_stats (word, layout, avg_speed_ms_per_letter, total_letters, total_duration_ms, observation_count, backspace_count, editing_time_ms, last_seen_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(word, layout) DO UPDATE SET
			avg_speed_ms_per_letter = excluded.avg_speed_ms_per_letter,
			total_letters = excluded.total_letters,
			total_duration_ms = excluded.total_duration_ms,
			observation_count = excluded.observation_count,
			backspace_count = excluded.backspace_count,
			editing_time_ms = excluded.editing_time_ms,
			last_seen_ms = excluded.last_seen_ms`,
		w.Word, string(w.Layout), w.AvgSpeedMsPerLetter, w.TotalLetters, w.TotalDurationMs, w.ObservationCount, w.BackspaceCount, w.EditingTimeMs, w.LastSeenMs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert word stat: %w", err)
	}
	return nil
}

// InsertBurst writes a completed burst and extends the tamper-evidence
// chain over it. See secure.go for the chaining logic.
func (s *SQLite) InsertBurst(b stats.PersistedBurst) error {
	return s.insertChainedBurst(b)
}

func (s *SQLite) InsertHighScore(h stats.HighScore) error {
	_, err := s.db.Exec(`
		INSERT INTO high_scores (timestamp, date, fastest_burst_wpm, burst_duration_sec, burst_duration_ms, burst_key_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.Timestamp, h.Date, h.FastestBurstWPM, h.BurstDurationSec, h.BurstDurationMs, h.BurstKeyCount,
	)
	if err != nil {
		return fmt.Errorf("store: insert high score: %w", err)
	}
	return nil
}

func (s *SQLite) UpsertDailySummary(d stats.DailySummary) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_summaries (date, total_keystrokes, total_bursts, avg_wpm, slowest_keycode, slowest_key_name, total_typing_sec, summary_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_keystrokes = excluded.total_keystrokes,
			total_bursts = excluded.total_bursts,
			avg_wpm = excluded.avg_wpm,
			slowest_keycode = excluded.slowest_keycode,
			slowest_key_name = excluded.slowest_key_name,
			total_typing_sec = excluded.total_typing_sec,
			summary_sent = excluded.summary_sent`,
		d.Date, d.TotalKeystrokes, d.TotalBursts, d.AvgWPM, nullableKeycode(d.SlowestKeycode), nullableString(d.SlowestKeyName), d.TotalTypingSec, d.SummarySent,
	)
	if err != nil {
		return fmt.Errorf("store: upsert daily summary: %w", err)
	}
	return nil
}

func (s *SQLite) GetKeyStat(keycode uint16, layout keycodes.Layout) (stats.KeyStat, bool, error) {
	var k stats.KeyStat
	var l string
	err := s.db.QueryRow(`
		SELECT keycode, layout, key_name, avg_press_time_ms, total_presses, slowest_ms, fastest_ms, last_updated_ms
		FROM key_stats WHERE keycode = ? AND layout = ?`, keycode, string(layout),
	).Scan(&k.Keycode, &l, &k.KeyName, &k.AvgPressTimeMs, &k.TotalPresses, &k.SlowestMs, &k.FastestMs, &k.LastUpdatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.KeyStat{}, false, nil
	}
	if err != nil {
		return stats.KeyStat{}, false, fmt.Errorf("store: get key stat: %w", err)
	}
	k.Layout = keycodes.Layout(l)
	return k, true, nil
}

func (s *SQLite) GetDigraphStat(first, second uint16, layout keycodes.Layout) (stats.DigraphStat, bool, error) {
	var d stats.DigraphStat
	var l string
	err := s.db.QueryRow(`
		SELECT first_keycode, second_keycode, layout, avg_interval_ms, total_sequences, slowest_ms, fastest_ms, last_updated_ms
		FROM digraph_stats WHERE first_keycode = ? AND second_keycode = ? AND layout = ?`, first, second, string(layout),
	).Scan(&d.FirstKeycode, &d.SecondKeycode, &l, &d.AvgIntervalMs, &d.TotalSequences, &d.SlowestMs, &d.FastestMs, &d.LastUpdatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.DigraphStat{}, false, nil
	}
	if err != nil {
		return stats.DigraphStat{}, false, fmt.Errorf("store: get digraph stat: %w", err)
	}
	d.Layout = keycodes.Layout(l)
	return d, true, nil
}

func (s *SQLite) GetWordStat(word string, layout keycodes.Layout) (stats.WordStat, bool, error) {
	var w stats.WordStat
	var l string
	err := s.db.QueryRow(`
		SELECT word, layout, avg_speed_ms_per_letter, total_letters, total_duration_ms, observation_count, backspace_count, editing_time_ms, last_seen_ms
		FROM word_stats WHERE word = ? AND layout = ?`, word, string(layout),
	).Scan(&w.Word, &l, &w.AvgSpeedMsPerLetter, &w.TotalLetters, &w.TotalDurationMs, &w.ObservationCount, &w.BackspaceCount, &w.EditingTimeMs, &w.LastSeenMs)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.WordStat{}, false, nil
	}
	if err != nil {
		return stats.WordStat{}, false, fmt.Errorf("store: get word stat: %w", err)
	}
	w.Layout = keycodes.Layout(l)
	return w, true, nil
}

func (s *SQLite) GetDailySummary(date string) (stats.DailySummary, bool, error) {
	var d stats.DailySummary
	var slowestKeycode sql.NullInt64
	var slowestKeyName sql.NullString
	err := s.db.QueryRow(`
		SELECT date, total_keystrokes, total_bursts, avg_wpm, slowest_keycode, slowest_key_name, total_typing_sec, summary_sent
		FROM daily_summaries WHERE date = ?`, date,
	).Scan(&d.Date, &d.TotalKeystrokes, &d.TotalBursts, &d.AvgWPM, &slowestKeycode, &slowestKeyName, &d.TotalTypingSec, &d.SummarySent)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.DailySummary{}, false, nil
	}
	if err != nil {
		return stats.DailySummary{}, false, fmt.Errorf("store: get daily summary: %w", err)
	}
	d.SlowestKeycode = uint16(slowestKeycode.Int64)
	d.SlowestKeyName = slowestKeyName.String
	return d, true, nil
}

func (s *SQLite) SlowestLetterKey(layout keycodes.Layout, minPresses int64) (stats.KeyStat, bool, error) {
	keys, err := s.SlowestKeys(1, layout, minPresses)
	if err != nil {
		return stats.KeyStat{}, false, err
	}
	if len(keys) == 0 {
		return stats.KeyStat{}, false, nil
	}
	return keys[0], true, nil
}

// --- analyzer.Store ---

// letterKeyPredicate keeps leaderboards to letter keys only: single
// ASCII letters plus the German letters. Modifier and function keys
// carry upper-snake names and never match.
const letterKeyPredicate = `(key_name GLOB '[a-z]' OR key_name IN ('ä', 'ö', 'ü', 'ß'))`

func (s *SQLite) SlowestKeys(limit int, layout keycodes.Layout, minPresses int64) ([]stats.KeyStat, error) {
	return s.queryKeyStats(`
		SELECT keycode, layout, key_name, avg_press_time_ms, total_presses, slowest_ms, fastest_ms, last_updated_ms
		FROM key_stats WHERE layout = ? AND total_presses >= ? AND `+letterKeyPredicate+`
		ORDER BY avg_press_time_ms DESC LIMIT ?`, string(layout), minPresses, limit)
}

func (s *SQLite) FastestKeys(limit int, layout keycodes.Layout, minPresses int64) ([]stats.KeyStat, error) {
	return s.queryKeyStats(`
		SELECT keycode, layout, key_name, avg_press_time_ms, total_presses, slowest_ms, fastest_ms, last_updated_ms
		FROM key_stats WHERE layout = ? AND total_presses >= ? AND `+letterKeyPredicate+`
		ORDER BY avg_press_time_ms ASC LIMIT ?`, string(layout), minPresses, limit)
}

func (s *SQLite) queryKeyStats(query string, args ...any) ([]stats.KeyStat, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query key stats: %w", err)
	}
	defer rows.Close()

	var out []stats.KeyStat
	for rows.Next() {
		var k stats.KeyStat
		var l string
		if err := rows.Scan(&k.Keycode, &l, &k.KeyName, &k.AvgPressTimeMs, &k.TotalPresses, &k.SlowestMs, &k.FastestMs, &k.LastUpdatedMs); err != nil {
			return nil, fmt.Errorf("store: scan key stat: %w", err)
		}
		k.Layout = keycodes.Layout(l)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLite) SlowestWords(limit int, layout keycodes.Layout, minObservations int64) ([]stats.WordStat, error) {
	return s.queryWordStats(`
		SELECT word, layout, avg_speed_ms_per_letter, total_letters, total_duration_ms, observation_count, backspace_count, editing_time_ms, last_seen_ms
		FROM word_stats WHERE layout = ? AND observation_count >= ?
		ORDER BY avg_speed_ms_per_letter DESC LIMIT ?`, string(layout), minObservations, limit)
}

func (s *SQLite) FastestWords(limit int, layout keycodes.Layout, minObservations int64) ([]stats.WordStat, error) {
	return s.queryWordStats(`
		SELECT word, layout, avg_speed_ms_per_letter, total_letters, total_duration_ms, observation_count, backspace_count, editing_time_ms, last_seen_ms
		FROM word_stats WHERE layout = ? AND observation_count >= ?
		ORDER BY avg_speed_ms_per_letter ASC LIMIT ?`, string(layout), minObservations, limit)
}

func (s *SQLite) queryWordStats(query string, args ...any) ([]stats.WordStat, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query word stats: %w", err)
	}
	defer rows.Close()

	var out []stats.WordStat
	for rows.Next() {
		var w stats.WordStat
		var l string
		if err := rows.Scan(&w.Word, &l, &w.AvgSpeedMsPerLetter, &w.TotalLetters, &w.TotalDurationMs, &w.ObservationCount, &w.BackspaceCount, &w.EditingTimeMs, &w.LastSeenMs); err != nil {
			return nil, fmt.Errorf("store: scan word stat: %w", err)
		}
		w.Layout = keycodes.Layout(l)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLite) SlowestDigraphs(limit int, layout keycodes.Layout, minSequences int64) ([]stats.DigraphStat, error) {
	return s.queryDigraphStats(`
		SELECT first_keycode, second_keycode, layout, avg_interval_ms, total_sequences, slowest_ms, fastest_ms, last_updated_ms
		FROM digraph_stats WHERE layout = ? AND total_sequences >= ?
		ORDER BY avg_interval_ms DESC LIMIT ?`, string(layout), minSequences, limit)
}

func (s *SQLite) FastestDigraphs(limit int, layout keycodes.Layout, minSequences int64) ([]stats.DigraphStat, error) {
	return s.queryDigraphStats(`
		SELECT first_keycode, second_keycode, layout, avg_interval_ms, total_sequences, slowest_ms, fastest_ms, last_updated_ms
		FROM digraph_stats WHERE layout = ? AND total_sequences >= ?
		ORDER BY avg_interval_ms ASC LIMIT ?`, string(layout), minSequences, limit)
}

func (s *SQLite) queryDigraphStats(query string, args ...any) ([]stats.DigraphStat, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query digraph stats: %w", err)
	}
	defer rows.Close()

	var out []stats.DigraphStat
	for rows.Next() {
		var d stats.DigraphStat
		var l string
		if err := rows.Scan(&d.FirstKeycode, &d.SecondKeycode, &l, &d.AvgIntervalMs, &d.TotalSequences, &d.SlowestMs, &d.FastestMs, &d.LastUpdatedMs); err != nil {
			return nil, fmt.Errorf("store: scan digraph stat: %w", err)
		}
		d.Layout = keycodes.Layout(l)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) AllBurstWPMs() ([]float64, error) {
	rows, err := s.db.Query(`SELECT avg_wpm FROM bursts ORDER BY "timestamp" ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: query burst wpms: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var wpm float64
		if err := rows.Scan(&wpm); err != nil {
			return nil, fmt.Errorf("store: scan burst wpm: %w", err)
		}
		out = append(out, wpm)
	}
	return out, rows.Err()
}

func (s *SQLite) AverageWPM() (float64, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(avg_wpm) FROM bursts`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("store: average wpm: %w", err)
	}
	return avg.Float64, nil
}

func (s *SQLite) TodayBestWPM() (float64, bool, error) {
	var best sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT MAX(avg_wpm) FROM bursts
		WHERE date(start_ms / 1000, 'unixepoch', 'localtime') = date('now', 'localtime')`).Scan(&best)
	if err != nil {
		return 0, false, fmt.Errorf("store: today best wpm: %w", err)
	}
	if !best.Valid {
		return 0, false, nil
	}
	return best.Float64, true, nil
}

// --- dictionary.IgnoreChecker ---

// IsWordIgnored hashes lowercase (already lowercased by the dictionary
// package) with the store's salted hasher and checks it against the
// hashed ignore set, so the plaintext word never needs to leave the
// caller's stack frame to answer the question.
func (s *SQLite) IsWordIgnored(lowercase string) bool {
	wordHash, err := s.hasher.HashWord(lowercase)
	if err != nil {
		return false
	}
	var exists int
	err = s.db.QueryRow(`SELECT 1 FROM ignored_word_hashes WHERE word_hash = ?`, wordHash).Scan(&exists)
	return err == nil
}

// HashAndInsertIgnoredWord hashes word and records it as ignored,
// called when the user adds a word to their ignore list.
func (s *SQLite) HashAndInsertIgnoredWord(word string, addedAtMs int64) error {
	wordHash, err := s.hasher.HashWord(word)
	if err != nil {
		return fmt.Errorf("store: hash ignored word: %w", err)
	}
	return s.InsertIgnoredWordHash(IgnoredWordHash{WordHash: wordHash, AddedAtMs: addedAtMs})
}

// --- settings / ignore hashes / sync log ---

func (s *SQLite) GetSetting(key string) (Setting, bool, error) {
	var st Setting
	err := s.db.QueryRow(`SELECT key, value, updated_at_ms FROM settings WHERE key = ?`, key).
		Scan(&st.Key, &st.Value, &st.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, fmt.Errorf("store: get setting: %w", err)
	}
	return st, true, nil
}

func (s *SQLite) UpsertSetting(st Setting) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms
		WHERE excluded.updated_at_ms >= settings.updated_at_ms`,
		st.Key, st.Value, st.UpdatedAtMs,
	)
	if err != nil {
		return fmt.Errorf("store: upsert setting: %w", err)
	}
	return nil
}

func (s *SQLite) InsertIgnoredWordHash(h IgnoredWordHash) error {
	_, err := s.db.Exec(`
		INSERT INTO ignored_word_hashes (word_hash, added_at_ms) VALUES (?, ?)
		ON CONFLICT(word_hash) DO NOTHING`,
		h.WordHash, h.AddedAtMs,
	)
	if err != nil {
		return fmt.Errorf("store: insert ignored word hash: %w", err)
	}
	return nil
}

func (s *SQLite) InsertSyncLogEntry(e SyncLogEntry) error {
	breakdown, err := marshalTableBreakdown(e.TableBreakdown)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sync_log (timestamp, machine_name, pushed, pulled, merged, duration_ms, error, table_breakdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp, e.MachineName, e.Pushed, e.Pulled, e.Merged, e.DurationMs, nullableString(e.Error), breakdown,
	)
	if err != nil {
		return fmt.Errorf("store: insert sync log entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableKeycode(k uint16) any {
	if k == 0 {
		return nil
	}
	return k
}
