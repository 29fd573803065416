// Package analyzer provides read-only queries over storage: leaderboards,
// trends, percentiles, and burst-WPM smoothing. None of its functions
// mutate state.
package analyzer

import (
	"fmt"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
)

const (
	minKeyPresses       = 20
	minWordObservations = 3
	minDigraphSequences = 10
)

// Store is the read surface the analyzer queries. internal/store
// implements it.
type Store interface {
	SlowestKeys(limit int, layout keycodes.Layout, minPresses int64) ([]stats.KeyStat, error)
	FastestKeys(limit int, layout keycodes.Layout, minPresses int64) ([]stats.KeyStat, error)
	SlowestWords(limit int, layout keycodes.Layout, minObservations int64) ([]stats.WordStat, error)
	FastestWords(limit int, layout keycodes.Layout, minObservations int64) ([]stats.WordStat, error)
	SlowestDigraphs(limit int, layout keycodes.Layout, minSequences int64) ([]stats.DigraphStat, error)
	FastestDigraphs(limit int, layout keycodes.Layout, minSequences int64) ([]stats.DigraphStat, error)
	AllBurstWPMs() ([]float64, error)
	AverageWPM() (float64, error)
	TodayBestWPM() (float64, bool, error)
}

// Analyzer wraps a Store with the derived, pure-function queries
// described by the spec.
type Analyzer struct {
	store Store
}

// New wraps store.
func New(store Store) *Analyzer {
	return &Analyzer{store: store}
}

func (a *Analyzer) SlowestKeys(limit int, layout keycodes.Layout) ([]stats.KeyStat, error) {
	return a.store.SlowestKeys(limit, layout, minKeyPresses)
}

func (a *Analyzer) FastestKeys(limit int, layout keycodes.Layout) ([]stats.KeyStat, error) {
	return a.store.FastestKeys(limit, layout, minKeyPresses)
}

func (a *Analyzer) SlowestWords(limit int, layout keycodes.Layout) ([]stats.WordStat, error) {
	return a.store.SlowestWords(limit, layout, minWordObservations)
}

func (a *Analyzer) FastestWords(limit int, layout keycodes.Layout) ([]stats.WordStat, error) {
	return a.store.FastestWords(limit, layout, minWordObservations)
}

func (a *Analyzer) SlowestDigraphs(limit int, layout keycodes.Layout) ([]stats.DigraphStat, error) {
	return a.store.SlowestDigraphs(limit, layout, minDigraphSequences)
}

func (a *Analyzer) FastestDigraphs(limit int, layout keycodes.Layout) ([]stats.DigraphStat, error) {
	return a.store.FastestDigraphs(limit, layout, minDigraphSequences)
}

// WPMHistogram buckets every stored burst's avg_wpm into binCount
// equal-width bins spanning [min, max] of the observed values.
type HistogramBin struct {
	LowerBound float64
	UpperBound float64
	Count      int
}

func (a *Analyzer) WPMHistogram(binCount int) ([]HistogramBin, error) {
	if binCount <= 0 {
		return nil, fmt.Errorf("analyzer: bin count must be > 0")
	}
	values, err := a.store.AllBurstWPMs()
	if err != nil {
		return nil, fmt.Errorf("analyzer: all burst wpms: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		hi = lo + 1
	}
	width := (hi - lo) / float64(binCount)

	bins := make([]HistogramBin, binCount)
	for i := range bins {
		bins[i] = HistogramBin{LowerBound: lo + float64(i)*width, UpperBound: lo + float64(i+1)*width}
	}
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= binCount {
			idx = binCount - 1
		}
		if idx < 0 {
			idx = 0
		}
		bins[idx].Count++
	}
	return bins, nil
}

// AverageWPM is the long-term mean burst WPM.
func (a *Analyzer) AverageWPM() (float64, error) {
	return a.store.AverageWPM()
}

// TodayBestWPM is the fastest burst WPM recorded today, if any.
func (a *Analyzer) TodayBestWPM() (float64, bool, error) {
	return a.store.TodayBestWPM()
}

// WPMPercentile computes the p-th percentile over every stored burst's
// avg_wpm using nearest-rank.
func (a *Analyzer) WPMPercentile(p float64) (float64, error) {
	values, err := a.store.AllBurstWPMs()
	if err != nil {
		return 0, fmt.Errorf("analyzer: all burst wpms: %w", err)
	}
	return NearestRankPercentile(values, p), nil
}

// WPMTrend returns the smoothed (wpm, burst-index) series across every
// stored burst at the given smoothness level (1-100).
func (a *Analyzer) WPMTrend(smoothness int) (wpm []float64, x []int, err error) {
	values, err := a.store.AllBurstWPMs()
	if err != nil {
		return nil, nil, fmt.Errorf("analyzer: all burst wpms: %w", err)
	}
	wpm, x = Smooth(values, smoothness)
	return wpm, x, nil
}
