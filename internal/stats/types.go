// Package stats owns the running aggregates derived from bursts, key
// presses, digraphs and finalized words: KeyStat, DigraphStat, WordStat,
// DailySummary and HighScore. It runs entirely on the consumer thread
// and needs no internal locking.
package stats

import "github.com/Dronakurl/realtypecoach/internal/keycodes"

// KeyStat is the running per-key press-time aggregate, keyed by
// (keycode, layout).
type KeyStat struct {
	Keycode        uint16
	Layout         keycodes.Layout
	KeyName        string
	AvgPressTimeMs float64
	TotalPresses   int64
	SlowestMs      int64
	FastestMs      int64
	LastUpdatedMs  int64
}

// DigraphStat is the running per-digraph interval aggregate, keyed by
// (first_keycode, second_keycode, layout).
type DigraphStat struct {
	FirstKeycode   uint16
	SecondKeycode  uint16
	Layout         keycodes.Layout
	AvgIntervalMs  float64
	TotalSequences int64
	SlowestMs      int64
	FastestMs      int64
	LastUpdatedMs  int64
}

// WordStat is the running per-word aggregate, keyed by (word, layout).
type WordStat struct {
	Word                string
	Layout              keycodes.Layout
	AvgSpeedMsPerLetter float64
	TotalLetters        int64
	TotalDurationMs     int64
	ObservationCount    int64
	BackspaceCount      int64
	EditingTimeMs       int64
	LastSeenMs          int64
}

// HighScore is a persisted burst that cleared the high-score duration
// threshold, unique by Timestamp.
type HighScore struct {
	Timestamp        int64
	Date             string
	FastestBurstWPM  float64
	BurstDurationSec float64
	BurstDurationMs  int64
	BurstKeyCount    int
}

// DailySummary is the per-day rollup, keyed by Date (YYYY-MM-DD, local
// zone).
type DailySummary struct {
	Date            string
	TotalKeystrokes int64
	TotalBursts     int64
	AvgWPM          float64
	SlowestKeycode  uint16
	SlowestKeyName  string
	TotalTypingSec  float64
	SummarySent     bool
}

// PersistedBurst is the row form of a completed burst, as written to
// storage after passing the unrealistic-burst gate.
type PersistedBurst struct {
	Timestamp             int64
	StartMs               int64
	EndMs                 int64
	KeyCount              int
	BackspaceCount        int
	NetKeyCount           int
	DurationMs            int64
	QualifiesForHighScore bool
	AvgWPM                float64
}
