package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ExportBurstsCSV streams every burst with start_ms in [fromMs, toMs) to
// w as CSV, one row at a time, so a multi-year export never materializes
// the full result set in memory.
func (s *SQLite) ExportBurstsCSV(w io.Writer, fromMs, toMs int64) error {
	rows, err := s.db.Query(`
		SELECT "timestamp", start_ms, end_ms, key_count, backspace_count, net_key_count, duration_ms, qualifies_for_high_score, avg_wpm
		FROM bursts WHERE start_ms >= ? AND start_ms < ? ORDER BY start_ms ASC`, fromMs, toMs)
	if err != nil {
		return fmt.Errorf("store: query bursts for export: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	header := []string{"timestamp", "start_ms", "end_ms", "key_count", "backspace_count", "net_key_count", "duration_ms", "qualifies_for_high_score", "avg_wpm"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("store: write csv header: %w", err)
	}

	var (
		ts, startMs, endMs, durationMs   int64
		keyCount, backspaceCount, netKey int
		qualifies                        bool
		avgWPM                           float64
	)
	record := make([]string, len(header))

	for rows.Next() {
		if err := rows.Scan(&ts, &startMs, &endMs, &keyCount, &backspaceCount, &netKey, &durationMs, &qualifies, &avgWPM); err != nil {
			return fmt.Errorf("store: scan burst for export: %w", err)
		}
		record[0] = strconv.FormatInt(ts, 10)
		record[1] = strconv.FormatInt(startMs, 10)
		record[2] = strconv.FormatInt(endMs, 10)
		record[3] = strconv.Itoa(keyCount)
		record[4] = strconv.Itoa(backspaceCount)
		record[5] = strconv.Itoa(netKey)
		record[6] = strconv.FormatInt(durationMs, 10)
		record[7] = strconv.FormatBool(qualifies)
		record[8] = strconv.FormatFloat(avgWPM, 'f', 2, 64)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("store: write csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: iterate bursts for export: %w", err)
	}

	cw.Flush()
	return cw.Error()
}
