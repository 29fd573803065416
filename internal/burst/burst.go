// Package burst groups timestamped key presses into bursts of continuous
// typing: a maximal run of presses with no inter-press gap exceeding the
// configured timeout.
package burst

import "fmt"

// DurationMethod selects how a burst's duration is computed.
type DurationMethod string

const (
	// TotalTime is end_ms - start_ms.
	TotalTime DurationMethod = "total_time"
	// ActiveTime sums only the inter-key gaps at or below
	// ActiveTimeThresholdMs, excluding longer pauses within the burst.
	ActiveTime DurationMethod = "active_time"
)

// Config holds the burst detector's tunables. Field names mirror the
// `burst_timeout_ms` family of settings in the configuration schema.
type Config struct {
	BurstTimeoutMs         int64
	HighScoreMinDurationMs int64
	DurationMethod         DurationMethod
	ActiveTimeThresholdMs  int64
	MinKeyCount            int
	MinDurationMs          int64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BurstTimeoutMs:         1000,
		HighScoreMinDurationMs: 10000,
		DurationMethod:         TotalTime,
		ActiveTimeThresholdMs:  500,
		MinKeyCount:            10,
		MinDurationMs:          5000,
	}
}

// Validate checks the inter-field constraint required by the burst
// detector: active_time_threshold_ms must be strictly less than
// burst_timeout_ms.
func (c Config) Validate() error {
	if c.BurstTimeoutMs <= 0 {
		return fmt.Errorf("burst: burst_timeout_ms must be > 0")
	}
	if c.HighScoreMinDurationMs <= 0 {
		return fmt.Errorf("burst: high_score_min_duration_ms must be > 0")
	}
	if c.ActiveTimeThresholdMs <= 0 {
		return fmt.Errorf("burst: active_time_threshold_ms must be > 0")
	}
	if c.MinKeyCount < 1 {
		return fmt.Errorf("burst: min_key_count must be >= 1")
	}
	if c.MinDurationMs <= 0 {
		return fmt.Errorf("burst: min_duration_ms must be > 0")
	}
	if c.ActiveTimeThresholdMs >= c.BurstTimeoutMs {
		return fmt.Errorf("burst: active_time_threshold_ms (%d) must be less than burst_timeout_ms (%d)",
			c.ActiveTimeThresholdMs, c.BurstTimeoutMs)
	}
	if c.DurationMethod != TotalTime && c.DurationMethod != ActiveTime {
		return fmt.Errorf("burst: unknown burst_duration_calculation %q", c.DurationMethod)
	}
	return nil
}

// Press is a single timestamped key press fed into the detector.
type Press struct {
	Keycode     uint16
	KeyName     string
	TimestampMs int64
	IsBackspace bool
}

// Burst is a completed, maximal run of continuous typing.
type Burst struct {
	StartMs               int64
	EndMs                 int64
	KeyCount              int
	BackspaceCount        int
	DurationMs            int64
	QualifiesForHighScore bool
	KeyTimestampsMs       []int64
}

// NetKeyCount is key_count - 2*backspace_count, floored at zero.
func (b Burst) NetKeyCount() int {
	n := b.KeyCount - 2*b.BackspaceCount
	if n < 0 {
		return 0
	}
	return n
}

// BackspaceRatio is backspace_count/key_count, or 0 if key_count is 0.
func (b Burst) BackspaceRatio() float64 {
	if b.KeyCount == 0 {
		return 0
	}
	return float64(b.BackspaceCount) / float64(b.KeyCount)
}

// WPM computes words-per-minute from net keystrokes and duration.
func WPM(netKeyCount int, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	words := float64(netKeyCount) / 5.0
	minutes := float64(durationMs) / 60000.0
	return words / minutes
}

// WPM returns this burst's words-per-minute.
func (b Burst) WPM() float64 { return WPM(b.NetKeyCount(), b.DurationMs) }

// NegativeDurationFunc is invoked when a press's timestamp regresses
// relative to the last observed press; the gap is clamped to zero and
// processing continues.
type NegativeDurationFunc func(gapMs int64)

// Detector is a single-threaded burst state machine: it owns the
// in-progress burst and the timestamp of the last accepted press.
type Detector struct {
	cfg Config

	current       *Burst
	lastKeyTimeMs *int64

	// OnNegativeDuration, if set, is called whenever an out-of-order
	// timestamp forces a clamp to a zero gap (see spec §5 and §7
	// NegativeDuration).
	OnNegativeDuration NegativeDurationFunc
}

// NewDetector validates cfg and returns a Detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Process consumes a single press and returns a completed Burst if one
// was just closed and passed the minimum-size gate; ok is false
// otherwise (either no burst closed, or it closed but didn't qualify for
// persistence).
func (d *Detector) Process(p Press) (completed Burst, ok bool) {
	if d.lastKeyTimeMs == nil {
		t := p.TimestampMs
		d.lastKeyTimeMs = &t
		d.current = &Burst{
			StartMs:         p.TimestampMs,
			EndMs:           p.TimestampMs,
			KeyCount:        1,
			BackspaceCount:  boolToCount(p.IsBackspace),
			KeyTimestampsMs: []int64{p.TimestampMs},
		}
		return Burst{}, false
	}

	gap := p.TimestampMs - *d.lastKeyTimeMs
	if gap < 0 {
		if d.OnNegativeDuration != nil {
			d.OnNegativeDuration(gap)
		}
		gap = 0
	}

	if gap > d.cfg.BurstTimeoutMs {
		result, emitted := d.finishCurrent()
		d.openNew(p)
		return result, emitted
	}

	d.current.KeyCount++
	if p.IsBackspace {
		d.current.BackspaceCount++
	}
	d.current.KeyTimestampsMs = append(d.current.KeyTimestampsMs, p.TimestampMs)
	d.current.EndMs = p.TimestampMs
	d.current.DurationMs = d.calculateDuration(d.current)
	d.lastKeyTimeMs = &p.TimestampMs

	return Burst{}, false
}

// Flush completes and returns the in-progress burst, e.g. on shutdown or
// an explicit idle timeout check. It does not open a replacement burst.
func (d *Detector) Flush() (completed Burst, ok bool) {
	if d.current == nil {
		return Burst{}, false
	}
	result, emitted := d.finishCurrent()
	d.current = nil
	d.lastKeyTimeMs = nil
	return result, emitted
}

func (d *Detector) openNew(p Press) {
	d.current = &Burst{
		StartMs:         p.TimestampMs,
		EndMs:           p.TimestampMs,
		KeyCount:        1,
		BackspaceCount:  boolToCount(p.IsBackspace),
		KeyTimestampsMs: []int64{p.TimestampMs},
	}
	t := p.TimestampMs
	d.lastKeyTimeMs = &t
}

func (d *Detector) finishCurrent() (Burst, bool) {
	b := d.current
	if b == nil || b.KeyCount == 0 {
		return Burst{}, false
	}
	b.DurationMs = d.calculateDuration(b)

	meetsMin := b.KeyCount >= d.cfg.MinKeyCount && b.DurationMs >= d.cfg.MinDurationMs
	if !meetsMin {
		return Burst{}, false
	}
	b.QualifiesForHighScore = b.DurationMs >= d.cfg.HighScoreMinDurationMs
	return *b, true
}

func (d *Detector) calculateDuration(b *Burst) int64 {
	if len(b.KeyTimestampsMs) < 2 {
		return 0
	}
	switch d.cfg.DurationMethod {
	case ActiveTime:
		var total int64
		for i := 1; i < len(b.KeyTimestampsMs); i++ {
			interval := b.KeyTimestampsMs[i] - b.KeyTimestampsMs[i-1]
			if interval <= d.cfg.ActiveTimeThresholdMs {
				total += interval
			}
		}
		return total
	default:
		return b.EndMs - b.StartMs
	}
}

// CurrentInfo reports a snapshot of the in-progress burst, or ok=false if
// none is open.
func (d *Detector) CurrentInfo() (info Burst, ok bool) {
	if d.current == nil {
		return Burst{}, false
	}
	return *d.current, true
}

// Reset clears all in-progress state.
func (d *Detector) Reset() {
	d.current = nil
	d.lastKeyTimeMs = nil
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
