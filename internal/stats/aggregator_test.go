package stats

import (
	"testing"

	"github.com/Dronakurl/realtypecoach/internal/burst"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
)

type memStore struct {
	keys      map[string]KeyStat
	digraphs  map[string]DigraphStat
	words     map[string]WordStat
	bursts    []PersistedBurst
	highs     []HighScore
	summaries map[string]DailySummary
}

func newMemStore() *memStore {
	return &memStore{
		keys:      make(map[string]KeyStat),
		digraphs:  make(map[string]DigraphStat),
		words:     make(map[string]WordStat),
		summaries: make(map[string]DailySummary),
	}
}

func keyKey(k uint16, l keycodes.Layout) string { return string(l) + "/" + string(rune(k)) }

func (m *memStore) UpsertKeyStat(k KeyStat) error {
	m.keys[keyKey(k.Keycode, k.Layout)] = k
	return nil
}
func (m *memStore) GetKeyStat(keycode uint16, layout keycodes.Layout) (KeyStat, bool, error) {
	k, ok := m.keys[keyKey(keycode, layout)]
	return k, ok, nil
}
func (m *memStore) UpsertDigraphStat(d DigraphStat) error {
	m.digraphs[digraphKey(d.FirstKeycode, d.SecondKeycode, d.Layout)] = d
	return nil
}
func digraphKey(f, s uint16, l keycodes.Layout) string {
	return string(l) + "/" + string(rune(f)) + "/" + string(rune(s))
}
func (m *memStore) GetDigraphStat(first, second uint16, layout keycodes.Layout) (DigraphStat, bool, error) {
	d, ok := m.digraphs[digraphKey(first, second, layout)]
	return d, ok, nil
}
func (m *memStore) UpsertWordStat(w WordStat) error {
	m.words[string(w.Layout)+"/"+w.Word] = w
	return nil
}
func (m *memStore) GetWordStat(word string, layout keycodes.Layout) (WordStat, bool, error) {
	w, ok := m.words[string(layout)+"/"+word]
	return w, ok, nil
}
func (m *memStore) InsertBurst(b PersistedBurst) error {
	m.bursts = append(m.bursts, b)
	return nil
}
func (m *memStore) InsertHighScore(h HighScore) error {
	m.highs = append(m.highs, h)
	return nil
}
func (m *memStore) UpsertDailySummary(d DailySummary) error {
	m.summaries[d.Date] = d
	return nil
}
func (m *memStore) GetDailySummary(date string) (DailySummary, bool, error) {
	d, ok := m.summaries[date]
	return d, ok, nil
}
func (m *memStore) SlowestLetterKey(layout keycodes.Layout, minPresses int64) (KeyStat, bool, error) {
	var slowest KeyStat
	found := false
	for _, k := range m.keys {
		if k.Layout != layout || k.TotalPresses < minPresses {
			continue
		}
		if !keycodes.IsLetterKey(k.KeyName) {
			continue
		}
		if !found || k.AvgPressTimeMs > slowest.AvgPressTimeMs {
			slowest = k
			found = true
		}
	}
	return slowest, found, nil
}

func TestOnPressSkipsIntervalForFirstOfBurst(t *testing.T) {
	store := newMemStore()
	agg := New(store, DefaultConfig(), nil)

	agg.StartBurst()
	if err := agg.OnPress(30, "a", keycodes.US, 1000); err != nil {
		t.Fatal(err)
	}
	stat, ok, _ := store.GetKeyStat(30, keycodes.US)
	if !ok {
		t.Fatal("expected key stat to exist")
	}
	if stat.TotalPresses != 0 {
		t.Fatalf("first press of burst should not sample an interval, total_presses = %d", stat.TotalPresses)
	}
}

func TestOnPressSamplesSecondPressInterval(t *testing.T) {
	store := newMemStore()
	agg := New(store, DefaultConfig(), nil)

	agg.StartBurst()
	agg.OnPress(30, "a", keycodes.US, 1000)
	agg.OnPress(48, "b", keycodes.US, 1200)

	stat, ok, _ := store.GetKeyStat(48, keycodes.US)
	if !ok || stat.TotalPresses != 1 {
		t.Fatalf("expected one sampled interval for second press, got %+v ok=%v", stat, ok)
	}
	if stat.AvgPressTimeMs != 200 {
		t.Fatalf("avg_press_time_ms = %v, want 200", stat.AvgPressTimeMs)
	}

	dg, ok, _ := store.GetDigraphStat(30, 48, keycodes.US)
	if !ok || dg.TotalSequences != 1 || dg.AvgIntervalMs != 200 {
		t.Fatalf("expected digraph stat for a->b, got %+v ok=%v", dg, ok)
	}
}

func TestUnrealisticBurstDropped(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.MaxRealisticWPM = 50
	agg := New(store, cfg, nil)

	b := burst.Burst{StartMs: 0, EndMs: 1000, KeyCount: 100, DurationMs: 1000}
	events, err := agg.OnBurstComplete(b, keycodes.US, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(store.bursts) != 0 {
		t.Fatal("unrealistic burst must not be persisted")
	}
	if len(events) != 1 || events[0].Kind != EventUnrealisticBurst {
		t.Fatalf("expected one UnrealisticBurst event, got %+v", events)
	}
}

func TestBurstPersistedAndDailySummaryAccumulates(t *testing.T) {
	store := newMemStore()
	agg := New(store, DefaultConfig(), nil)

	b := burst.Burst{StartMs: 0, EndMs: 1000, KeyCount: 6, DurationMs: 1000}
	now := int64(1000)
	if _, err := agg.OnBurstComplete(b, keycodes.US, now); err != nil {
		t.Fatal(err)
	}
	if len(store.bursts) != 1 {
		t.Fatal("expected burst to be persisted")
	}

	date := dateFromMs(now)
	summary, ok, _ := store.GetDailySummary(date)
	if !ok {
		t.Fatal("expected daily summary to exist")
	}
	if summary.TotalBursts != 1 || summary.TotalKeystrokes != 6 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestHighScoreInsertedWhenQualifying(t *testing.T) {
	store := newMemStore()
	agg := New(store, DefaultConfig(), nil)

	b := burst.Burst{StartMs: 0, EndMs: 2000, KeyCount: 20, DurationMs: 2000, QualifiesForHighScore: true}
	if _, err := agg.OnBurstComplete(b, keycodes.US, 2000); err != nil {
		t.Fatal(err)
	}
	if len(store.highs) != 1 {
		t.Fatal("expected one high score to be recorded")
	}
}

func TestWorstLetterChangeDebounced(t *testing.T) {
	store := newMemStore()
	cfg := DefaultConfig()
	cfg.WorstLetterNotifyEnabled = true
	cfg.WorstLetterMinPresses = 1
	cfg.WorstLetterDebounceMs = 10_000
	agg := New(store, cfg, nil)

	store.keys[keyKey(30, keycodes.US)] = KeyStat{Keycode: 30, Layout: keycodes.US, KeyName: "a", TotalPresses: 5, AvgPressTimeMs: 500}

	b := burst.Burst{StartMs: 0, EndMs: 1000, KeyCount: 3, DurationMs: 1000}
	events, err := agg.OnBurstComplete(b, keycodes.US, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Kind != EventWorstLetterChanged {
		t.Fatalf("expected worst-letter-changed event, got %+v", events)
	}

	// Second completion within the debounce window: the slowest letter
	// hasn't changed, so no further event even though min duration
	// passed.
	events2, err := agg.OnBurstComplete(b, keycodes.US, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(events2) != 0 {
		t.Fatalf("expected no event for an unchanged slowest letter, got %+v", events2)
	}
}

func TestOnWordObservationRunningMean(t *testing.T) {
	store := newMemStore()
	agg := New(store, DefaultConfig(), nil)

	if err := agg.OnWordObservation("hello", keycodes.US, 500, 5, 0, 0, 1000); err != nil {
		t.Fatal(err)
	}
	if err := agg.OnWordObservation("hello", keycodes.US, 1000, 5, 1, 200, 2000); err != nil {
		t.Fatal(err)
	}

	ws, ok, _ := store.GetWordStat("hello", keycodes.US)
	if !ok {
		t.Fatal("expected word stat")
	}
	if ws.ObservationCount != 2 {
		t.Fatalf("observation_count = %d, want 2", ws.ObservationCount)
	}
	if ws.BackspaceCount != 1 || ws.EditingTimeMs != 200 {
		t.Fatalf("unexpected backspace/editing totals: %+v", ws)
	}
	// speeds: 100 then 200 -> running mean (100+200)/2 = 150
	if ws.AvgSpeedMsPerLetter != 150 {
		t.Fatalf("avg_speed_ms_per_letter = %v, want 150", ws.AvgSpeedMsPerLetter)
	}
}
