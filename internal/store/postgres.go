package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

// Postgres is the remote, multi-device backend. Every table carries a
// leading user_id column in its primary key; Postgres scopes every
// query to the configured user so one remote database can serve many
// accounts. internal/sync is the only caller.
type Postgres struct {
	db     *sqlx.DB
	userID string
}

// OpenPostgres connects to dsn (a standard libpq connection string) and
// runs the remote migrations.
func OpenPostgres(dsn, userID string) (*Postgres, error) {
	if userID == "" {
		return nil, errors.New("store: postgres user id must not be empty")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := migratePostgres(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db, userID: userID}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// UpsertKeyStat pushes a local key stat up, scoped to the configured user.
func (p *Postgres) UpsertKeyStat(k stats.KeyStat) error {
	_, err := p.db.Exec(`
		INSERT INTO key_stats (user_id, keycode, layout, key_name, avg_press_time_ms, total_presses, slowest_ms, fastest_ms, last_updated_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, keycode, layout) DO UPDATE SET
			key_name = excluded.key_name,
			avg_press_time_ms = excluded.avg_press_time_ms,
			total_presses = excluded.total_presses,
			slowest_ms = excluded.slowest_ms,
			fastest_ms = excluded.fastest_ms,
			last_updated_ms = excluded.last_updated_ms
		WHERE excluded.last_updated_ms >= key_stats.last_updated_ms`,
		p.userID, k.Keycode, string(k.Layout), k.KeyName, k.AvgPressTimeMs, k.TotalPresses, k.SlowestMs, k.FastestMs, k.LastUpdatedMs,
	)
	if err != nil {
		return fmt.Errorf("store: postgres upsert key stat: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertDigraphStat(d stats.DigraphStat) error {
	_, err := p.db.Exec(`
		INSERT INTO digraph_stats (user_id, first_keycode, second_keycode, layout, avg_interval_ms, total_sequences, slowest_ms, fastest_ms, last_updated_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, first_keycode, second_keycode, layout) DO UPDATE SET
			avg_interval_ms = excluded.avg_interval_ms,
			total_sequences = excluded.total_sequences,
			slowest_ms = excluded.slowest_ms,
			fastest_ms = excluded.fastest_ms,
			last_updated_ms = excluded.last_updated_ms
		WHERE excluded.last_updated_ms >= digraph_stats.last_updated_ms`,
		p.userID, d.FirstKeycode, d.SecondKeycode, string(d.Layout), d.AvgIntervalMs, d.TotalSequences, d.SlowestMs, d.FastestMs, d.LastUpdatedMs,
	)
	if err != nil {
		return fmt.Errorf("store: postgres upsert digraph stat: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertWordStat(w stats.WordStat) error {
	_, err := p.db.Exec(`
		INSERT INTO word_stats (user_id, word, layout, avg_speed_ms_per_letter, total_letters, total_duration_ms, observation_count, backspace_count, editing_time_ms, last_seen_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, word, layout) DO UPDATE SET
			avg_speed_ms_per_letter = excluded.avg_speed_ms_per_letter,
			total_letters = excluded.total_letters,
			total_duration_ms = excluded.total_duration_ms,
			observation_count = excluded.observation_count,
			backspace_count = excluded.backspace_count,
			editing_time_ms = excluded.editing_time_ms,
			last_seen_ms = excluded.last_seen_ms
		WHERE excluded.last_seen_ms >= word_stats.last_seen_ms`,
		p.userID, w.Word, string(w.Layout), w.AvgSpeedMsPerLetter, w.TotalLetters, w.TotalDurationMs, w.ObservationCount, w.BackspaceCount, w.EditingTimeMs, w.LastSeenMs,
	)
	if err != nil {
		return fmt.Errorf("store: postgres upsert word stat: %w", err)
	}
	return nil
}

// InsertBurst appends a burst row. Bursts are append-only both locally
// and remotely; the remote copy carries no chain_hash/hmac columns
// because the hash chain is a single-device, tamper-evidence mechanism
// that doesn't extend across a merge from multiple local chains.
func (p *Postgres) InsertBurst(b stats.PersistedBurst) error {
	_, err := p.db.Exec(`
		INSERT INTO bursts (user_id, "timestamp", start_ms, end_ms, key_count, backspace_count, net_key_count, duration_ms, qualifies_for_high_score, avg_wpm)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, "timestamp") DO NOTHING`,
		p.userID, b.Timestamp, b.StartMs, b.EndMs, b.KeyCount, b.BackspaceCount, b.NetKeyCount, b.DurationMs, b.QualifiesForHighScore, b.AvgWPM,
	)
	if err != nil {
		return fmt.Errorf("store: postgres insert burst: %w", err)
	}
	return nil
}

func (p *Postgres) InsertHighScore(h stats.HighScore) error {
	_, err := p.db.Exec(`
		INSERT INTO high_scores (user_id, "timestamp", date, fastest_burst_wpm, burst_duration_sec, burst_duration_ms, burst_key_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, "timestamp") DO NOTHING`,
		p.userID, h.Timestamp, h.Date, h.FastestBurstWPM, h.BurstDurationSec, h.BurstDurationMs, h.BurstKeyCount,
	)
	if err != nil {
		return fmt.Errorf("store: postgres insert high score: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertDailySummary(d stats.DailySummary) error {
	_, err := p.db.Exec(`
		INSERT INTO daily_summaries (user_id, date, total_keystrokes, total_bursts, avg_wpm, slowest_keycode, slowest_key_name, total_typing_sec, summary_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, date) DO UPDATE SET
			total_keystrokes = excluded.total_keystrokes,
			total_bursts = excluded.total_bursts,
			avg_wpm = excluded.avg_wpm,
			slowest_keycode = excluded.slowest_keycode,
			slowest_key_name = excluded.slowest_key_name,
			total_typing_sec = excluded.total_typing_sec,
			summary_sent = excluded.summary_sent`,
		p.userID, d.Date, d.TotalKeystrokes, d.TotalBursts, d.AvgWPM, nullableKeycode(d.SlowestKeycode), nullableString(d.SlowestKeyName), d.TotalTypingSec, d.SummarySent,
	)
	if err != nil {
		return fmt.Errorf("store: postgres upsert daily summary: %w", err)
	}
	return nil
}

// AllKeyStats returns every key stat row for the configured user, for
// merging against the local store during a sync cycle.
func (p *Postgres) AllKeyStats() ([]stats.KeyStat, error) {
	rows, err := p.db.Query(`
		SELECT keycode, layout, key_name, avg_press_time_ms, total_presses, slowest_ms, fastest_ms, last_updated_ms
		FROM key_stats WHERE user_id = $1`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("store: postgres all key stats: %w", err)
	}
	defer rows.Close()

	var out []stats.KeyStat
	for rows.Next() {
		var k stats.KeyStat
		var l string
		if err := rows.Scan(&k.Keycode, &l, &k.KeyName, &k.AvgPressTimeMs, &k.TotalPresses, &k.SlowestMs, &k.FastestMs, &k.LastUpdatedMs); err != nil {
			return nil, fmt.Errorf("store: postgres scan key stat: %w", err)
		}
		k.Layout = keycodes.Layout(l)
		out = append(out, k)
	}
	return out, rows.Err()
}

// AllWordStats returns every word stat row for the configured user.
func (p *Postgres) AllWordStats() ([]stats.WordStat, error) {
	rows, err := p.db.Query(`
		SELECT word, layout, avg_speed_ms_per_letter, total_letters, total_duration_ms, observation_count, backspace_count, editing_time_ms, last_seen_ms
		FROM word_stats WHERE user_id = $1`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("store: postgres all word stats: %w", err)
	}
	defer rows.Close()

	var out []stats.WordStat
	for rows.Next() {
		var w stats.WordStat
		var l string
		if err := rows.Scan(&w.Word, &l, &w.AvgSpeedMsPerLetter, &w.TotalLetters, &w.TotalDurationMs, &w.ObservationCount, &w.BackspaceCount, &w.EditingTimeMs, &w.LastSeenMs); err != nil {
			return nil, fmt.Errorf("store: postgres scan word stat: %w", err)
		}
		w.Layout = keycodes.Layout(l)
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWordStat removes a word row for the configured user, used when
// exclude_names_enabled retroactively purges names that slipped in
// before the setting was turned on.
func (p *Postgres) DeleteWordStat(word string, layout keycodes.Layout) error {
	_, err := p.db.Exec(`DELETE FROM word_stats WHERE user_id = $1 AND word = $2 AND layout = $3`, p.userID, word, string(layout))
	if err != nil {
		return fmt.Errorf("store: postgres delete word stat: %w", err)
	}
	return nil
}

func (p *Postgres) GetSetting(key string) (Setting, bool, error) {
	var st Setting
	err := p.db.QueryRow(`SELECT key, value, updated_at_ms FROM settings WHERE user_id = $1 AND key = $2`, p.userID, key).
		Scan(&st.Key, &st.Value, &st.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, false, nil
	}
	if err != nil {
		return Setting{}, false, fmt.Errorf("store: postgres get setting: %w", err)
	}
	return st, true, nil
}

func (p *Postgres) UpsertSetting(st Setting) error {
	_, err := p.db.Exec(`
		INSERT INTO settings (user_id, key, value, updated_at_ms) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms
		WHERE excluded.updated_at_ms >= settings.updated_at_ms`,
		p.userID, st.Key, st.Value, st.UpdatedAtMs,
	)
	if err != nil {
		return fmt.Errorf("store: postgres upsert setting: %w", err)
	}
	return nil
}

func (p *Postgres) InsertIgnoredWordHash(h IgnoredWordHash) error {
	_, err := p.db.Exec(`
		INSERT INTO ignored_word_hashes (user_id, word_hash, added_at_ms) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, word_hash) DO NOTHING`,
		p.userID, h.WordHash, h.AddedAtMs,
	)
	if err != nil {
		return fmt.Errorf("store: postgres insert ignored word hash: %w", err)
	}
	return nil
}

func (p *Postgres) AllIgnoredWordHashes() ([]IgnoredWordHash, error) {
	rows, err := p.db.Query(`SELECT word_hash, added_at_ms FROM ignored_word_hashes WHERE user_id = $1`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("store: postgres all ignored word hashes: %w", err)
	}
	defer rows.Close()

	var out []IgnoredWordHash
	for rows.Next() {
		var h IgnoredWordHash
		if err := rows.Scan(&h.WordHash, &h.AddedAtMs); err != nil {
			return nil, fmt.Errorf("store: postgres scan ignored word hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertSyncLogEntry(e SyncLogEntry) error {
	breakdown, err := marshalTableBreakdown(e.TableBreakdown)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
		INSERT INTO sync_log (user_id, "timestamp", machine_name, pushed, pulled, merged, duration_ms, error, table_breakdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.userID, e.Timestamp, e.MachineName, e.Pushed, e.Pulled, e.Merged, e.DurationMs, nullableString(e.Error), breakdown,
	)
	if err != nil {
		return fmt.Errorf("store: postgres insert sync log entry: %w", err)
	}
	return nil
}
