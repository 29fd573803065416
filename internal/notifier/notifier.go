// Package notifier decides which events deserve the user's attention
// and hands them to a presentation sink. The daemon core never renders
// anything itself: the sink is the control-plane event stream, and the
// external shells (tray, GUI) turn events into desktop notifications.
package notifier

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/analyzer"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

// Kind labels a notification.
type Kind string

const (
	KindDailySummary      Kind = "daily_summary"
	KindExceptionalBurst  Kind = "exceptional_burst"
	KindWorstLetterChange Kind = "worst_letter_changed"
	KindUnrealisticBurst  Kind = "unrealistic_burst"
)

// Notification is one user-facing event.
type Notification struct {
	Kind  Kind
	Title string
	Body  string

	// Details carries the structured payload for shells that render
	// their own copy instead of the prebuilt title/body.
	Details map[string]any
}

// Sink receives notifications; implementations must not block.
type Sink interface {
	Notify(Notification)
}

// Config gates each notification category independently.
type Config struct {
	DailySummaryHour   int
	WorstLetterEnabled bool
}

// exceptionalPercentile is the rolling WPM percentile a qualifying
// burst has to clear to be celebrated.
const exceptionalPercentile = 95

// Notifier owns the gating state.
type Notifier struct {
	sink     Sink
	analyzer *analyzer.Analyzer
	store    stats.Store
	cfg      Config
	log      *slog.Logger
}

// New builds a Notifier publishing into sink.
func New(sink Sink, an *analyzer.Analyzer, st stats.Store, cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sink:     sink,
		analyzer: an,
		store:    st,
		cfg:      cfg,
		log:      logger.With("component", "notifier"),
	}
}

// SetConfig applies a live configuration update.
func (n *Notifier) SetConfig(cfg Config) { n.cfg = cfg }

// OnAggregatorEvents forwards the aggregator's notable events. The
// worst-letter debounce already happened inside the aggregator; the
// enable gate is honored here as well so a live config change takes
// effect without resetting aggregator state.
func (n *Notifier) OnAggregatorEvents(events []stats.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case stats.EventUnrealisticBurst:
			n.sink.Notify(Notification{
				Kind:  KindUnrealisticBurst,
				Title: "Burst discarded",
				Body:  fmt.Sprintf("A burst computed to %.1f WPM and was not recorded.", ev.WPM),
				Details: map[string]any{
					"wpm": ev.WPM,
				},
			})
		case stats.EventWorstLetterChanged:
			if !n.cfg.WorstLetterEnabled {
				continue
			}
			body := fmt.Sprintf("Your slowest letter is now %q (was %q).", ev.NewKeyName, ev.PrevKeyName)
			if ev.Improvement {
				body = fmt.Sprintf("Nice: %q sped up, your slowest letter is now %q.", ev.PrevKeyName, ev.NewKeyName)
			}
			n.sink.Notify(Notification{
				Kind:  KindWorstLetterChange,
				Title: "Slowest letter changed",
				Body:  body,
				Details: map[string]any{
					"previous":    ev.PrevKeyName,
					"new":         ev.NewKeyName,
					"improvement": ev.Improvement,
				},
			})
		}
	}
}

// OnBurstPersisted checks a stored burst against the rolling percentile
// and celebrates it when it is both exceptional and long enough to
// qualify for the high-score table.
func (n *Notifier) OnBurstPersisted(b stats.PersistedBurst) {
	if !b.QualifiesForHighScore {
		return
	}
	threshold, err := n.analyzer.WPMPercentile(exceptionalPercentile)
	if err != nil {
		n.log.Warn("percentile query failed", "error", err)
		return
	}
	if threshold <= 0 || b.AvgWPM < threshold {
		return
	}
	n.sink.Notify(Notification{
		Kind:  KindExceptionalBurst,
		Title: "Exceptional burst",
		Body:  fmt.Sprintf("%.1f WPM over %.0f seconds, in your top %d%%.", b.AvgWPM, float64(b.DurationMs)/1000, 100-exceptionalPercentile),
		Details: map[string]any{
			"wpm":         b.AvgWPM,
			"duration_ms": b.DurationMs,
			"key_count":   b.KeyCount,
		},
	})
}

// RunDailySummary surfaces today's rollup once. The summary_sent flag
// debounces: re-running the job within the same day is a no-op.
func (n *Notifier) RunDailySummary(now time.Time) error {
	date := now.Format("2006-01-02")
	summary, found, err := n.store.GetDailySummary(date)
	if err != nil {
		return fmt.Errorf("notifier: load daily summary: %w", err)
	}
	if !found || summary.SummarySent {
		return nil
	}

	body := fmt.Sprintf("%d keystrokes across %d bursts, averaging %.1f WPM.",
		summary.TotalKeystrokes, summary.TotalBursts, summary.AvgWPM)
	if summary.SlowestKeyName != "" {
		body += fmt.Sprintf(" Slowest letter: %q.", summary.SlowestKeyName)
	}

	n.sink.Notify(Notification{
		Kind:  KindDailySummary,
		Title: "Today's typing",
		Body:  body,
		Details: map[string]any{
			"date":             summary.Date,
			"total_keystrokes": summary.TotalKeystrokes,
			"total_bursts":     summary.TotalBursts,
			"avg_wpm":          summary.AvgWPM,
			"total_typing_sec": summary.TotalTypingSec,
		},
	})

	summary.SummarySent = true
	if err := n.store.UpsertDailySummary(summary); err != nil {
		return fmt.Errorf("notifier: mark summary sent: %w", err)
	}
	return nil
}
