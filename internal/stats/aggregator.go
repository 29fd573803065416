package stats

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/burst"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
)

// EventKind discriminates the events Aggregator can emit.
type EventKind int

const (
	EventUnrealisticBurst EventKind = iota
	EventWorstLetterChanged
)

// Event is a notification-worthy occurrence surfaced by the
// aggregator. The consumer forwards these to internal/notifier without
// the aggregator depending on it directly.
type Event struct {
	Kind EventKind

	// EventUnrealisticBurst fields.
	WPM float64

	// EventWorstLetterChanged fields.
	PrevKeyName string
	NewKeyName  string
	Improvement bool
}

// Aggregator owns all running statistical state. It is meant to be
// driven exclusively from the single consumer thread; it holds no
// internal lock.
type Aggregator struct {
	store Store
	cfg   Config
	log   *slog.Logger

	// In-burst digraph tracking: reset whenever the caller signals a
	// new burst via StartBurst.
	havePrevPress bool
	prevKeycode   uint16
	prevTimestamp int64

	lastReportedSlowest map[keycodes.Layout]uint16
	lastChangeNotified  map[keycodes.Layout]int64
}

// New creates an Aggregator backed by store.
func New(store Store, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:               store,
		cfg:                 cfg,
		log:                 logger.With("component", "stats"),
		lastReportedSlowest: make(map[keycodes.Layout]uint16),
		lastChangeNotified:  make(map[keycodes.Layout]int64),
	}
}

// StartBurst resets the in-burst digraph tracking state; call this
// whenever the burst detector opens a new burst.
func (a *Aggregator) StartBurst() {
	a.havePrevPress = false
}

// OnPress updates KeyStat and, if a previous press exists within the
// same burst, DigraphStat. Call StartBurst first for the opening press
// of each burst so its press time is correctly left unsampled.
func (a *Aggregator) OnPress(keycode uint16, keyName string, layout keycodes.Layout, timestampMs int64) error {
	if a.havePrevPress {
		interval := timestampMs - a.prevTimestamp
		if err := a.updateKeyStat(keycode, keyName, layout, interval, timestampMs); err != nil {
			return err
		}
		if keycodes.IsLetterKey(keyName) {
			if err := a.updateDigraphStat(a.prevKeycode, keycode, layout, interval, timestampMs); err != nil {
				return err
			}
		}
	} else {
		if err := a.touchKeyStat(keycode, keyName, layout, timestampMs); err != nil {
			return err
		}
	}

	a.havePrevPress = true
	a.prevKeycode = keycode
	a.prevTimestamp = timestampMs
	return nil
}

func (a *Aggregator) touchKeyStat(keycode uint16, keyName string, layout keycodes.Layout, nowMs int64) error {
	_, found, err := a.store.GetKeyStat(keycode, layout)
	if err != nil {
		return fmt.Errorf("stats: get key stat: %w", err)
	}
	if found {
		return nil
	}
	return a.store.UpsertKeyStat(KeyStat{
		Keycode:       keycode,
		Layout:        layout,
		KeyName:       keyName,
		LastUpdatedMs: nowMs,
	})
}

func (a *Aggregator) updateKeyStat(keycode uint16, keyName string, layout keycodes.Layout, intervalMs, nowMs int64) error {
	existing, found, err := a.store.GetKeyStat(keycode, layout)
	if err != nil {
		return fmt.Errorf("stats: get key stat: %w", err)
	}
	if !found {
		existing = KeyStat{
			Keycode:   keycode,
			Layout:    layout,
			KeyName:   keyName,
			SlowestMs: intervalMs,
			FastestMs: intervalMs,
		}
	}

	existing.AvgPressTimeMs = runningMean(existing.AvgPressTimeMs, existing.TotalPresses, float64(intervalMs))
	existing.TotalPresses++
	if existing.TotalPresses == 1 || intervalMs > existing.SlowestMs {
		existing.SlowestMs = intervalMs
	}
	if existing.TotalPresses == 1 || intervalMs < existing.FastestMs {
		existing.FastestMs = intervalMs
	}
	existing.LastUpdatedMs = nowMs
	existing.KeyName = keyName

	return a.store.UpsertKeyStat(existing)
}

func (a *Aggregator) updateDigraphStat(first, second uint16, layout keycodes.Layout, intervalMs, nowMs int64) error {
	existing, found, err := a.store.GetDigraphStat(first, second, layout)
	if err != nil {
		return fmt.Errorf("stats: get digraph stat: %w", err)
	}
	if !found {
		existing = DigraphStat{
			FirstKeycode:  first,
			SecondKeycode: second,
			Layout:        layout,
			SlowestMs:     intervalMs,
			FastestMs:     intervalMs,
		}
	}

	existing.AvgIntervalMs = runningMean(existing.AvgIntervalMs, existing.TotalSequences, float64(intervalMs))
	existing.TotalSequences++
	if existing.TotalSequences == 1 || intervalMs > existing.SlowestMs {
		existing.SlowestMs = intervalMs
	}
	if existing.TotalSequences == 1 || intervalMs < existing.FastestMs {
		existing.FastestMs = intervalMs
	}
	existing.LastUpdatedMs = nowMs

	return a.store.UpsertDigraphStat(existing)
}

// OnWordObservation upserts a finalized, validated word into WordStat
// using an incremental running mean over avg_speed_ms_per_letter.
func (a *Aggregator) OnWordObservation(word string, layout keycodes.Layout, totalDurationMs int64, totalLetters int, backspaceCount int, editingTimeMs int64, nowMs int64) error {
	existing, found, err := a.store.GetWordStat(word, layout)
	if err != nil {
		return fmt.Errorf("stats: get word stat: %w", err)
	}
	if !found {
		existing = WordStat{Word: word, Layout: layout}
	}

	var speed float64
	if totalLetters > 0 {
		speed = float64(totalDurationMs) / float64(totalLetters)
	}

	existing.AvgSpeedMsPerLetter = runningMean(existing.AvgSpeedMsPerLetter, existing.ObservationCount, speed)
	existing.ObservationCount++
	existing.TotalLetters += int64(totalLetters)
	existing.TotalDurationMs += totalDurationMs
	existing.BackspaceCount += int64(backspaceCount)
	existing.EditingTimeMs += editingTimeMs
	existing.LastSeenMs = nowMs

	return a.store.UpsertWordStat(existing)
}

// OnBurstComplete applies the unrealistic-burst gate, persists the
// burst and any high score, rolls it into today's DailySummary, and
// checks for a worst-letter change. It returns the notable events the
// caller should forward to the notifier.
func (a *Aggregator) OnBurstComplete(b burst.Burst, layout keycodes.Layout, nowMs int64) ([]Event, error) {
	wpm := b.WPM()
	if wpm > a.cfg.MaxRealisticWPM {
		a.log.Warn("dropping unrealistic burst", "wpm", wpm, "max", a.cfg.MaxRealisticWPM)
		return []Event{{Kind: EventUnrealisticBurst, WPM: wpm}}, nil
	}

	if err := a.store.InsertBurst(PersistedBurst{
		Timestamp:             b.StartMs,
		StartMs:               b.StartMs,
		EndMs:                 b.EndMs,
		KeyCount:              b.KeyCount,
		BackspaceCount:        b.BackspaceCount,
		NetKeyCount:           b.NetKeyCount(),
		DurationMs:            b.DurationMs,
		QualifiesForHighScore: b.QualifiesForHighScore,
		AvgWPM:                wpm,
	}); err != nil {
		return nil, fmt.Errorf("stats: insert burst: %w", err)
	}

	if b.QualifiesForHighScore {
		if err := a.store.InsertHighScore(HighScore{
			Timestamp:        b.StartMs,
			Date:             dateFromMs(nowMs),
			FastestBurstWPM:  wpm,
			BurstDurationSec: float64(b.DurationMs) / 1000,
			BurstDurationMs:  b.DurationMs,
			BurstKeyCount:    b.KeyCount,
		}); err != nil {
			return nil, fmt.Errorf("stats: insert high score: %w", err)
		}
	}

	if err := a.updateDailySummary(nowMs, b, wpm); err != nil {
		return nil, err
	}

	events := make([]Event, 0, 1)
	if a.cfg.WorstLetterNotifyEnabled {
		if ev, ok, err := a.checkWorstLetter(layout, nowMs); err != nil {
			return nil, err
		} else if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (a *Aggregator) updateDailySummary(nowMs int64, b burst.Burst, wpm float64) error {
	date := dateFromMs(nowMs)
	existing, found, err := a.store.GetDailySummary(date)
	if err != nil {
		return fmt.Errorf("stats: get daily summary: %w", err)
	}
	if !found {
		existing = DailySummary{Date: date}
	}

	existing.TotalKeystrokes += int64(b.KeyCount)
	existing.TotalBursts++
	existing.AvgWPM = runningMean(existing.AvgWPM, existing.TotalBursts-1, wpm)
	existing.TotalTypingSec += float64(b.DurationMs) / 1000

	return a.store.UpsertDailySummary(existing)
}

func (a *Aggregator) checkWorstLetter(layout keycodes.Layout, nowMs int64) (Event, bool, error) {
	slowest, found, err := a.store.SlowestLetterKey(layout, a.cfg.WorstLetterMinPresses)
	if err != nil {
		return Event{}, false, fmt.Errorf("stats: slowest letter key: %w", err)
	}
	if !found {
		return Event{}, false, nil
	}

	prevKeycode, hadPrev := a.lastReportedSlowest[layout]
	if hadPrev && prevKeycode == slowest.Keycode {
		return Event{}, false, nil
	}

	if lastNotified, hadNotified := a.lastChangeNotified[layout]; hadNotified && nowMs-lastNotified < a.cfg.WorstLetterDebounceMs {
		return Event{}, false, nil
	}

	var prevKeyName string
	var improvement bool
	if hadPrev {
		prevStat, ok, err := a.store.GetKeyStat(prevKeycode, layout)
		if err != nil {
			return Event{}, false, fmt.Errorf("stats: get prev key stat: %w", err)
		}
		if ok {
			prevKeyName = prevStat.KeyName
			improvement = slowest.AvgPressTimeMs < prevStat.AvgPressTimeMs
		}
	}

	a.lastReportedSlowest[layout] = slowest.Keycode
	a.lastChangeNotified[layout] = nowMs

	return Event{
		Kind:        EventWorstLetterChanged,
		PrevKeyName: prevKeyName,
		NewKeyName:  slowest.KeyName,
		Improvement: improvement,
	}, true, nil
}

func runningMean(currentMean float64, currentCount int64, newValue float64) float64 {
	if currentCount <= 0 {
		return newValue
	}
	return (currentMean*float64(currentCount) + newValue) / float64(currentCount+1)
}

func dateFromMs(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02")
}
