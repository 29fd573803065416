package store

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

// syncView builds the synchronizer's row-set queries. The same builder
// code serves both backends: the local store runs it with question-mark
// placeholders and no partition column, the remote store with dollar
// placeholders and every query scoped to its user_id.
type syncView struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	userID  string // empty on the local, single-user store
}

func newLocalSyncView(db *sqlx.DB) syncView {
	return syncView{db: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

func newRemoteSyncView(db *sqlx.DB, userID string) syncView {
	return syncView{db: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar), userID: userID}
}

// scoped applies the user partition predicate on the remote backend.
func (v syncView) scoped(b sq.SelectBuilder) sq.SelectBuilder {
	if v.userID != "" {
		return b.Where(sq.Eq{"user_id": v.userID})
	}
	return b
}

func (v syncView) timestamps(table string) ([]int64, error) {
	query, args, err := v.scoped(v.builder.Select(`"timestamp"`).From(table)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build %s timestamp query: %w", table, err)
	}
	var out []int64
	if err := v.db.Select(&out, query, args...); err != nil {
		return nil, fmt.Errorf("store: %s timestamps: %w", table, err)
	}
	return out, nil
}

func (v syncView) burstsByTimestamps(ts []int64) ([]stats.PersistedBurst, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	query, args, err := v.scoped(v.builder.
		Select(`"timestamp"`, "start_ms", "end_ms", "key_count", "backspace_count",
			"net_key_count", "duration_ms", "qualifies_for_high_score", "avg_wpm").
		From("bursts").
		Where(sq.Eq{`"timestamp"`: ts}).
		OrderBy(`"timestamp" ASC`)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build burst fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch bursts: %w", err)
	}
	defer rows.Close()

	var out []stats.PersistedBurst
	for rows.Next() {
		var b stats.PersistedBurst
		if err := rows.Scan(&b.Timestamp, &b.StartMs, &b.EndMs, &b.KeyCount, &b.BackspaceCount,
			&b.NetKeyCount, &b.DurationMs, &b.QualifiesForHighScore, &b.AvgWPM); err != nil {
			return nil, fmt.Errorf("store: scan burst: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (v syncView) highScoresByTimestamps(ts []int64) ([]stats.HighScore, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	query, args, err := v.scoped(v.builder.
		Select(`"timestamp"`, "date", "fastest_burst_wpm", "burst_duration_sec",
			"burst_duration_ms", "burst_key_count").
		From("high_scores").
		Where(sq.Eq{`"timestamp"`: ts}).
		OrderBy(`"timestamp" ASC`)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build high score fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch high scores: %w", err)
	}
	defer rows.Close()

	var out []stats.HighScore
	for rows.Next() {
		var h stats.HighScore
		if err := rows.Scan(&h.Timestamp, &h.Date, &h.FastestBurstWPM, &h.BurstDurationSec,
			&h.BurstDurationMs, &h.BurstKeyCount); err != nil {
			return nil, fmt.Errorf("store: scan high score: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (v syncView) allKeyStats() ([]stats.KeyStat, error) {
	query, args, err := v.scoped(v.builder.
		Select("keycode", "layout", "key_name", "avg_press_time_ms", "total_presses",
			"slowest_ms", "fastest_ms", "last_updated_ms").
		From("key_stats")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build key stat fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch key stats: %w", err)
	}
	defer rows.Close()

	var out []stats.KeyStat
	for rows.Next() {
		var k stats.KeyStat
		var l string
		if err := rows.Scan(&k.Keycode, &l, &k.KeyName, &k.AvgPressTimeMs, &k.TotalPresses,
			&k.SlowestMs, &k.FastestMs, &k.LastUpdatedMs); err != nil {
			return nil, fmt.Errorf("store: scan key stat: %w", err)
		}
		k.Layout = keycodes.Layout(l)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (v syncView) allDigraphStats() ([]stats.DigraphStat, error) {
	query, args, err := v.scoped(v.builder.
		Select("first_keycode", "second_keycode", "layout", "avg_interval_ms",
			"total_sequences", "slowest_ms", "fastest_ms", "last_updated_ms").
		From("digraph_stats")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build digraph stat fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch digraph stats: %w", err)
	}
	defer rows.Close()

	var out []stats.DigraphStat
	for rows.Next() {
		var d stats.DigraphStat
		var l string
		if err := rows.Scan(&d.FirstKeycode, &d.SecondKeycode, &l, &d.AvgIntervalMs,
			&d.TotalSequences, &d.SlowestMs, &d.FastestMs, &d.LastUpdatedMs); err != nil {
			return nil, fmt.Errorf("store: scan digraph stat: %w", err)
		}
		d.Layout = keycodes.Layout(l)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (v syncView) allWordStats() ([]stats.WordStat, error) {
	query, args, err := v.scoped(v.builder.
		Select("word", "layout", "avg_speed_ms_per_letter", "total_letters",
			"total_duration_ms", "observation_count", "backspace_count",
			"editing_time_ms", "last_seen_ms").
		From("word_stats")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build word stat fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch word stats: %w", err)
	}
	defer rows.Close()

	var out []stats.WordStat
	for rows.Next() {
		var w stats.WordStat
		var l string
		if err := rows.Scan(&w.Word, &l, &w.AvgSpeedMsPerLetter, &w.TotalLetters,
			&w.TotalDurationMs, &w.ObservationCount, &w.BackspaceCount,
			&w.EditingTimeMs, &w.LastSeenMs); err != nil {
			return nil, fmt.Errorf("store: scan word stat: %w", err)
		}
		w.Layout = keycodes.Layout(l)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (v syncView) allDailySummaries() ([]stats.DailySummary, error) {
	query, args, err := v.scoped(v.builder.
		Select("date", "total_keystrokes", "total_bursts", "avg_wpm", "slowest_keycode",
			"slowest_key_name", "total_typing_sec", "summary_sent").
		From("daily_summaries")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build daily summary fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch daily summaries: %w", err)
	}
	defer rows.Close()

	var out []stats.DailySummary
	for rows.Next() {
		var d stats.DailySummary
		var keycode sql.NullInt64
		var keyName sql.NullString
		if err := rows.Scan(&d.Date, &d.TotalKeystrokes, &d.TotalBursts, &d.AvgWPM,
			&keycode, &keyName, &d.TotalTypingSec, &d.SummarySent); err != nil {
			return nil, fmt.Errorf("store: scan daily summary: %w", err)
		}
		d.SlowestKeycode = uint16(keycode.Int64)
		d.SlowestKeyName = keyName.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (v syncView) allSettings() ([]Setting, error) {
	query, args, err := v.scoped(v.builder.
		Select("key", "value", "updated_at_ms").
		From("settings")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build settings fetch: %w", err)
	}
	var out []Setting
	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("store: scan setting: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (v syncView) allIgnoredWordHashes() ([]IgnoredWordHash, error) {
	query, args, err := v.scoped(v.builder.
		Select("word_hash", "added_at_ms").
		From("ignored_word_hashes")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build ignored hash fetch: %w", err)
	}
	var out []IgnoredWordHash
	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch ignored hashes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h IgnoredWordHash
		if err := rows.Scan(&h.WordHash, &h.AddedAtMs); err != nil {
			return nil, fmt.Errorf("store: scan ignored hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (v syncView) syncLogEntriesByTimestamps(ts []int64) ([]SyncLogEntry, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	query, args, err := v.scoped(v.builder.
		Select(`"timestamp"`, "machine_name", "pushed", "pulled", "merged",
			"duration_ms", "error", "table_breakdown").
		From("sync_log").
		Where(sq.Eq{`"timestamp"`: ts}).
		OrderBy(`"timestamp" ASC`)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build sync log fetch: %w", err)
	}

	rows, err := v.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch sync log: %w", err)
	}
	defer rows.Close()

	var out []SyncLogEntry
	for rows.Next() {
		var e SyncLogEntry
		var errText sql.NullString
		var breakdown string
		if err := rows.Scan(&e.Timestamp, &e.MachineName, &e.Pushed, &e.Pulled, &e.Merged,
			&e.DurationMs, &errText, &breakdown); err != nil {
			return nil, fmt.Errorf("store: scan sync log entry: %w", err)
		}
		e.Error = errText.String
		e.TableBreakdown, err = unmarshalTableBreakdown(breakdown)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
