package daemon

import (
	"context"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/burst"
	"github.com/Dronakurl/realtypecoach/internal/eventqueue"
	"github.com/Dronakurl/realtypecoach/internal/ipc"
	"github.com/Dronakurl/realtypecoach/internal/stats"
	"github.com/Dronakurl/realtypecoach/internal/wordseg"
)

// drainBudget bounds how many events one tick processes, so a huge
// backlog cannot monopolize the thread between stop-flag checks.
const drainBudget = 1000

// Adaptive wake intervals: a typing user gets low latency, an idle
// machine gets long sleeps.
const (
	wakeActive       = 500 * time.Millisecond
	wakeRecentlyIdle = 2 * time.Second
	wakeLongIdle     = 5 * time.Second

	longIdleAfter = 30 * time.Second
)

// consumeLoop is the single consumer thread. It owns the burst
// detector, the word segmenter and the aggregator outright; nothing
// else touches them, so none of them carry locks.
func (d *Daemon) consumeLoop(ctx context.Context) {
	var lastEventAt time.Time

	for {
		processed := d.drainTick(ctx)
		if ctx.Err() != nil {
			d.flushOpenBurst(time.Now().UnixMilli())
			return
		}

		now := time.Now()
		if processed > 0 {
			lastEventAt = now
		}

		d.metrics.QueueDepth.Set(float64(d.queue.Len()))
		d.metrics.DroppedEvents.Set(float64(d.queue.Drops()))
		d.checkIdleBurst(now)

		// Nothing buffered: block for one event or the adaptive
		// interval, whichever comes first.
		if d.queue.Len() == 0 {
			wake := wakeActive
			if idle := now.Sub(lastEventAt); idle >= longIdleAfter {
				wake = wakeLongIdle
			} else if idle >= 2*time.Second {
				wake = wakeRecentlyIdle
			}
			waitCtx, cancel := context.WithTimeout(ctx, wake)
			ev, ok := d.queue.Get(waitCtx)
			cancel()
			if ok {
				d.handleEvent(ev)
				lastEventAt = time.Now()
			}
		}
	}
}

// drainTick consumes up to drainBudget queued events.
func (d *Daemon) drainTick(ctx context.Context) int {
	processed := 0
	for processed < drainBudget {
		if ctx.Err() != nil {
			return processed
		}
		ev, ok := d.queue.TryGet()
		if !ok {
			break
		}
		d.handleEvent(ev)
		processed++
	}
	return processed
}

func (d *Daemon) handleEvent(ev eventqueue.Event) {
	d.eventsConsumed.Add(1)
	d.metrics.KeystrokesTotal.Inc()

	layout := d.layout.Current()
	isBackspace := ev.KeyName == "BACKSPACE"

	completed, closed := d.detector.Process(burst.Press{
		Keycode:     ev.Keycode,
		KeyName:     ev.KeyName,
		TimestampMs: ev.TimestampMs,
		IsBackspace: isBackspace,
	})
	if closed {
		// The word buffer still belongs to the burst that just closed;
		// finalize it before the new burst's first press reaches the
		// segmenter.
		d.finalizeWord(d.segmenter.CloseBurst())
		d.completeBurst(completed, ev.TimestampMs)
	}

	// Detector state reflects the press already; a key count of one
	// means it opened a fresh burst with this press.
	if info, open := d.detector.CurrentInfo(); open && info.KeyCount == 1 {
		d.agg.StartBurst()
	}

	d.finalizeWord(d.segmenter.Process(wordseg.Press{
		KeyName:     ev.KeyName,
		TimestampMs: ev.TimestampMs,
		IsBackspace: isBackspace,
	}))

	if err := d.agg.OnPress(ev.Keycode, ev.KeyName, layout, ev.TimestampMs); err != nil {
		d.log.Warn("press aggregation failed", "error", err)
		d.metrics.RecordError("stats")
	}
}

// checkIdleBurst closes the open burst once the user has paused past
// the timeout, instead of waiting for the next keypress to do it.
func (d *Daemon) checkIdleBurst(now time.Time) {
	info, open := d.detector.CurrentInfo()
	if !open {
		return
	}
	nowMs := now.UnixMilli()
	if nowMs-info.EndMs <= d.currentConfig().Burst.TimeoutMs {
		return
	}

	d.finalizeWord(d.segmenter.CloseBurst())
	if completed, ok := d.detector.Flush(); ok {
		d.completeBurst(completed, nowMs)
	}
}

func (d *Daemon) flushOpenBurst(nowMs int64) {
	d.finalizeWord(d.segmenter.CloseBurst())
	if completed, ok := d.detector.Flush(); ok {
		d.completeBurst(completed, nowMs)
	}
}

func (d *Daemon) completeBurst(b burst.Burst, nowMs int64) {
	layout := d.layout.Current()
	events, err := d.agg.OnBurstComplete(b, layout, nowMs)
	if err != nil {
		d.log.Error("burst aggregation failed", "error", err)
		d.metrics.RecordError("stats")
		return
	}

	wpm := b.WPM()
	unrealistic := false
	for _, ev := range events {
		if ev.Kind == stats.EventUnrealisticBurst {
			unrealistic = true
			d.metrics.UnrealisticBurstsTotal.Inc()
		}
	}
	d.notifier.OnAggregatorEvents(events)
	if unrealistic {
		return
	}

	d.metrics.BurstsTotal.Inc()
	d.metrics.BurstWPM.Observe(wpm)

	persisted := stats.PersistedBurst{
		Timestamp:             b.StartMs,
		StartMs:               b.StartMs,
		EndMs:                 b.EndMs,
		KeyCount:              b.KeyCount,
		BackspaceCount:        b.BackspaceCount,
		NetKeyCount:           b.NetKeyCount(),
		DurationMs:            b.DurationMs,
		QualifiesForHighScore: b.QualifiesForHighScore,
		AvgWPM:                wpm,
	}
	d.notifier.OnBurstPersisted(persisted)

	if ev, err := ipc.NewEvent(ipc.EventBurst, nowMs, persisted); err == nil {
		d.ipcServer.Broadcast(ev)
	}
	if b.QualifiesForHighScore {
		if ev, err := ipc.NewEvent(ipc.EventHighScore, nowMs, persisted); err == nil {
			d.ipcServer.Broadcast(ev)
		}
	}
}

func (d *Daemon) finalizeWord(obs wordseg.Observation, ok bool) {
	if !ok {
		return
	}
	layout := d.layout.Current()
	nowMs := time.Now().UnixMilli()

	err := d.agg.OnWordObservation(obs.CapitalizedForm, layout,
		obs.TotalDurationMs, obs.TotalLetters, obs.BackspaceCount, obs.EditingTimeMs, nowMs)
	if err != nil {
		d.log.Warn("word aggregation failed", "word_len", obs.TotalLetters, "error", err)
		d.metrics.RecordError("stats")
		return
	}
	d.metrics.WordsTotal.Inc()
}
