package notifier

import (
	"testing"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/analyzer"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

type captureSink struct {
	notifications []Notification
}

func (s *captureSink) Notify(n Notification) {
	s.notifications = append(s.notifications, n)
}

// fakeStore implements the slices of stats.Store and analyzer.Store the
// notifier touches.
type fakeStore struct {
	summaries map[string]stats.DailySummary
	wpms      []float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{summaries: make(map[string]stats.DailySummary)}
}

func (f *fakeStore) UpsertKeyStat(stats.KeyStat) error         { return nil }
func (f *fakeStore) UpsertDigraphStat(stats.DigraphStat) error { return nil }
func (f *fakeStore) UpsertWordStat(stats.WordStat) error       { return nil }
func (f *fakeStore) InsertBurst(stats.PersistedBurst) error    { return nil }
func (f *fakeStore) InsertHighScore(stats.HighScore) error     { return nil }

func (f *fakeStore) UpsertDailySummary(d stats.DailySummary) error {
	f.summaries[d.Date] = d
	return nil
}

func (f *fakeStore) GetKeyStat(uint16, keycodes.Layout) (stats.KeyStat, bool, error) {
	return stats.KeyStat{}, false, nil
}
func (f *fakeStore) GetDigraphStat(uint16, uint16, keycodes.Layout) (stats.DigraphStat, bool, error) {
	return stats.DigraphStat{}, false, nil
}
func (f *fakeStore) GetWordStat(string, keycodes.Layout) (stats.WordStat, bool, error) {
	return stats.WordStat{}, false, nil
}

func (f *fakeStore) GetDailySummary(date string) (stats.DailySummary, bool, error) {
	d, ok := f.summaries[date]
	return d, ok, nil
}

func (f *fakeStore) SlowestLetterKey(keycodes.Layout, int64) (stats.KeyStat, bool, error) {
	return stats.KeyStat{}, false, nil
}

// analyzer.Store surface.
func (f *fakeStore) SlowestKeys(int, keycodes.Layout, int64) ([]stats.KeyStat, error) {
	return nil, nil
}
func (f *fakeStore) FastestKeys(int, keycodes.Layout, int64) ([]stats.KeyStat, error) {
	return nil, nil
}
func (f *fakeStore) SlowestWords(int, keycodes.Layout, int64) ([]stats.WordStat, error) {
	return nil, nil
}
func (f *fakeStore) FastestWords(int, keycodes.Layout, int64) ([]stats.WordStat, error) {
	return nil, nil
}
func (f *fakeStore) SlowestDigraphs(int, keycodes.Layout, int64) ([]stats.DigraphStat, error) {
	return nil, nil
}
func (f *fakeStore) FastestDigraphs(int, keycodes.Layout, int64) ([]stats.DigraphStat, error) {
	return nil, nil
}
func (f *fakeStore) AllBurstWPMs() ([]float64, error) { return f.wpms, nil }
func (f *fakeStore) AverageWPM() (float64, error)     { return 0, nil }
func (f *fakeStore) TodayBestWPM() (float64, bool, error) {
	return 0, false, nil
}

func newTestNotifier(st *fakeStore, cfg Config) (*Notifier, *captureSink) {
	sink := &captureSink{}
	return New(sink, analyzer.New(st), st, cfg, nil), sink
}

func TestUnrealisticBurstAlwaysForwarded(t *testing.T) {
	n, sink := newTestNotifier(newFakeStore(), Config{})

	n.OnAggregatorEvents([]stats.Event{{Kind: stats.EventUnrealisticBurst, WPM: 12000}})

	if len(sink.notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sink.notifications))
	}
	if sink.notifications[0].Kind != KindUnrealisticBurst {
		t.Errorf("kind = %s", sink.notifications[0].Kind)
	}
	if wpm := sink.notifications[0].Details["wpm"].(float64); wpm != 12000 {
		t.Errorf("wpm detail = %v", wpm)
	}
}

func TestWorstLetterGatedByConfig(t *testing.T) {
	event := stats.Event{
		Kind:        stats.EventWorstLetterChanged,
		PrevKeyName: "q",
		NewKeyName:  "z",
	}

	n, sink := newTestNotifier(newFakeStore(), Config{WorstLetterEnabled: false})
	n.OnAggregatorEvents([]stats.Event{event})
	if len(sink.notifications) != 0 {
		t.Fatal("disabled worst-letter notification leaked through")
	}

	n.SetConfig(Config{WorstLetterEnabled: true})
	n.OnAggregatorEvents([]stats.Event{event})
	if len(sink.notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sink.notifications))
	}
}

func TestExceptionalBurstRequiresQualification(t *testing.T) {
	st := newFakeStore()
	st.wpms = []float64{50, 55, 60, 65, 70, 75, 80, 85, 90, 95}
	n, sink := newTestNotifier(st, Config{})

	// Fast but too short to qualify: silent.
	n.OnBurstPersisted(stats.PersistedBurst{AvgWPM: 120, QualifiesForHighScore: false})
	if len(sink.notifications) != 0 {
		t.Fatal("unqualified burst celebrated")
	}

	// Qualifies and clears the 95th percentile (95 for this series).
	n.OnBurstPersisted(stats.PersistedBurst{AvgWPM: 120, DurationMs: 12000, QualifiesForHighScore: true})
	if len(sink.notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sink.notifications))
	}
	if sink.notifications[0].Kind != KindExceptionalBurst {
		t.Errorf("kind = %s", sink.notifications[0].Kind)
	}

	// Qualifies but below the percentile: silent.
	n.OnBurstPersisted(stats.PersistedBurst{AvgWPM: 60, DurationMs: 12000, QualifiesForHighScore: true})
	if len(sink.notifications) != 1 {
		t.Fatal("sub-percentile burst celebrated")
	}
}

func TestDailySummarySentOnce(t *testing.T) {
	st := newFakeStore()
	now := time.Now()
	date := now.Format("2006-01-02")
	st.summaries[date] = stats.DailySummary{
		Date:            date,
		TotalKeystrokes: 4200,
		TotalBursts:     17,
		AvgWPM:          64.5,
		SlowestKeyName:  "q",
	}

	n, sink := newTestNotifier(st, Config{DailySummaryHour: 18})

	if err := n.RunDailySummary(now); err != nil {
		t.Fatalf("RunDailySummary: %v", err)
	}
	if len(sink.notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(sink.notifications))
	}
	if !st.summaries[date].SummarySent {
		t.Error("summary_sent flag not persisted")
	}

	// Debounced on rerun.
	if err := n.RunDailySummary(now); err != nil {
		t.Fatalf("RunDailySummary rerun: %v", err)
	}
	if len(sink.notifications) != 1 {
		t.Error("daily summary sent twice")
	}
}

func TestDailySummaryNoDataIsSilent(t *testing.T) {
	n, sink := newTestNotifier(newFakeStore(), Config{})
	if err := n.RunDailySummary(time.Now()); err != nil {
		t.Fatalf("RunDailySummary: %v", err)
	}
	if len(sink.notifications) != 0 {
		t.Error("summary emitted with no data")
	}
}
