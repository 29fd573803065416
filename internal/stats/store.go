package stats

import "github.com/Dronakurl/realtypecoach/internal/keycodes"

// Store is the narrow persistence surface the aggregator writes
// through. internal/store implements it; keeping the interface here
// (rather than importing internal/store) avoids a dependency cycle
// since storage rows are expressed in terms of these stats types.
type Store interface {
	UpsertKeyStat(KeyStat) error
	UpsertDigraphStat(DigraphStat) error
	UpsertWordStat(WordStat) error
	InsertBurst(PersistedBurst) error
	InsertHighScore(HighScore) error
	UpsertDailySummary(DailySummary) error
	GetKeyStat(keycode uint16, layout keycodes.Layout) (KeyStat, bool, error)
	GetDigraphStat(first, second uint16, layout keycodes.Layout) (DigraphStat, bool, error)
	GetWordStat(word string, layout keycodes.Layout) (WordStat, bool, error)
	GetDailySummary(date string) (DailySummary, bool, error)
	SlowestLetterKey(layout keycodes.Layout, minPresses int64) (KeyStat, bool, error)
}
