// Package wordseg groups consecutive letter presses into candidate
// words, validates them, and finalizes a WordObservation for the
// statistical aggregator.
package wordseg

import (
	"strings"
	"unicode"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
)

// Config controls segmentation timing.
type Config struct {
	WordBoundaryTimeoutMs int64
}

// DefaultConfig matches the documented default.
func DefaultConfig() Config {
	return Config{WordBoundaryTimeoutMs: 1000}
}

// Validator checks candidate words against the loaded dictionaries, the
// ignore lists, and the names-exclusion set.
type Validator interface {
	IsValidWord(word, language string) bool
	IsAbbreviationFromDictionary(wordLower string) bool
	AcceptAllMode() bool
	GetCapitalizedForm(word, language string) string
}

// Press is a single letter (or other) keypress fed into the segmenter.
type Press struct {
	KeyName     string
	TimestampMs int64
	IsBackspace bool
}

// Observation is a finalized, validated word ready for WordStat upsert.
type Observation struct {
	Word             string // canonical lowercase form
	CapitalizedForm  string
	FirstPressMs     int64
	LastPressMs      int64
	TotalDurationMs  int64
	TotalLetters     int
	SpeedMsPerLetter float64
	BackspaceCount   int
	EditingTimeMs    int64
}

type bufferedKey struct {
	keyName     string
	timestampMs int64
}

// Segmenter accumulates a tentative word buffer and finalizes it on a
// boundary condition: a non-letter key, a timeout, or an externally
// signaled burst close.
type Segmenter struct {
	cfg       Config
	validator Validator
	language  string

	buf            []bufferedKey
	lastPressMs    int64
	haveLast       bool
	backspaceCount int
	editingTimeMs  int64
}

// New creates a Segmenter. language narrows dictionary lookups (may be
// empty to check all loaded languages).
func New(cfg Config, validator Validator, language string) *Segmenter {
	return &Segmenter{cfg: cfg, validator: validator, language: language}
}

// Process consumes one press. It returns a finalized Observation when
// the press (or the gap preceding it) closes out the current buffer.
func (s *Segmenter) Process(p Press) (Observation, bool) {
	// A backspace mid-word corrects a typo rather than closing it: it
	// pops the last buffered letter and keeps the word alive so the
	// corrected spelling can still finalize normally.
	if p.IsBackspace {
		return s.processBackspace(p)
	}

	if !keycodes.IsLetterKey(p.KeyName) {
		obs, ok := s.finalize()
		s.reset()
		return obs, ok
	}

	if s.haveLast {
		gap := p.TimestampMs - s.lastPressMs
		if gap > s.cfg.WordBoundaryTimeoutMs {
			obs, ok := s.finalize()
			s.reset()
			s.appendLetter(p)
			return obs, ok
		}
	}

	s.appendLetter(p)
	return Observation{}, false
}

func (s *Segmenter) processBackspace(p Press) (Observation, bool) {
	if !s.haveLast {
		return Observation{}, false
	}

	gap := p.TimestampMs - s.lastPressMs
	if gap > s.cfg.WordBoundaryTimeoutMs {
		obs, ok := s.finalize()
		s.reset()
		return obs, ok
	}

	if len(s.buf) > 0 {
		s.buf = s.buf[:len(s.buf)-1]
	}
	s.backspaceCount++
	s.editingTimeMs += gap
	s.lastPressMs = p.TimestampMs
	if len(s.buf) == 0 {
		s.haveLast = false
	}
	return Observation{}, false
}

func (s *Segmenter) appendLetter(p Press) {
	s.buf = append(s.buf, bufferedKey{keyName: p.KeyName, timestampMs: p.TimestampMs})
	s.lastPressMs = p.TimestampMs
	s.haveLast = true
}

// CloseBurst finalizes whatever is buffered because the owning burst
// just closed, without consuming a new press.
func (s *Segmenter) CloseBurst() (Observation, bool) {
	obs, ok := s.finalize()
	s.reset()
	return obs, ok
}

func (s *Segmenter) reset() {
	s.buf = nil
	s.haveLast = false
	s.backspaceCount = 0
	s.editingTimeMs = 0
}

func (s *Segmenter) finalize() (Observation, bool) {
	if len(s.buf) == 0 {
		return Observation{}, false
	}

	raw := make([]rune, 0, len(s.buf))
	for _, k := range s.buf {
		raw = append(raw, []rune(strings.ToLower(k.keyName))...)
	}
	word := string(raw)

	if len(word) < minWordLength {
		return Observation{}, false
	}
	if isSingleRepeatedLetter(word) {
		return Observation{}, false
	}
	if !allLetters(word) {
		return Observation{}, false
	}
	if s.validator != nil && s.validator.IsAbbreviationFromDictionary(word) {
		return Observation{}, false
	}

	if s.validator != nil && !s.validator.IsValidWord(word, s.language) {
		return Observation{}, false
	}

	first := s.buf[0].timestampMs
	last := s.buf[len(s.buf)-1].timestampMs
	duration := last - first
	letters := len([]rune(word))

	var speed float64
	if letters > 0 {
		speed = float64(duration) / float64(letters)
	}

	capForm := word
	if s.validator != nil {
		capForm = s.validator.GetCapitalizedForm(word, s.language)
	}

	return Observation{
		Word:             word,
		CapitalizedForm:  capForm,
		FirstPressMs:     first,
		LastPressMs:      last,
		TotalDurationMs:  duration,
		TotalLetters:     letters,
		SpeedMsPerLetter: speed,
		BackspaceCount:   s.backspaceCount,
		EditingTimeMs:    s.editingTimeMs,
	}, true
}

const minWordLength = 3

func isSingleRepeatedLetter(word string) bool {
	if word == "" {
		return false
	}
	first := rune(word[0])
	for _, r := range word {
		if r != first {
			return false
		}
	}
	return true
}

func allLetters(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
