package wordseg

import "testing"

type stubValidator struct {
	valid        map[string]bool
	abbreviation map[string]bool
	acceptAll    bool
	capitalized  map[string]string
}

func (s stubValidator) IsValidWord(word, _ string) bool {
	if s.acceptAll {
		return len(word) >= minWordLength
	}
	return s.valid[word]
}

func (s stubValidator) IsAbbreviationFromDictionary(word string) bool {
	return s.abbreviation[word]
}

func (s stubValidator) AcceptAllMode() bool { return s.acceptAll }

func (s stubValidator) GetCapitalizedForm(word, _ string) string {
	if f, ok := s.capitalized[word]; ok {
		return f
	}
	return word
}

func typeWord(s *Segmenter, word string, startMs int64, stepMs int64) (Observation, bool) {
	var obs Observation
	var ok bool
	t := startMs
	for _, r := range word {
		obs, ok = s.Process(Press{KeyName: string(r), TimestampMs: t})
		t += stepMs
	}
	return obs, ok
}

func TestFinalizesOnNonLetterKey(t *testing.T) {
	v := stubValidator{valid: map[string]bool{"hello": true}}
	s := New(DefaultConfig(), v, "en")

	typeWord(s, "hello", 0, 100)
	obs, ok := s.Process(Press{KeyName: "SPACE", TimestampMs: 500})
	if !ok {
		t.Fatal("expected finalized observation on space")
	}
	if obs.Word != "hello" {
		t.Fatalf("word = %q, want hello", obs.Word)
	}
	if obs.TotalLetters != 5 {
		t.Fatalf("total_letters = %d, want 5", obs.TotalLetters)
	}
}

func TestFinalizesOnTimeout(t *testing.T) {
	v := stubValidator{valid: map[string]bool{"hit": true}}
	cfg := Config{WordBoundaryTimeoutMs: 1000}
	s := New(cfg, v, "")

	s.Process(Press{KeyName: "h", TimestampMs: 0})
	s.Process(Press{KeyName: "i", TimestampMs: 100})
	s.Process(Press{KeyName: "t", TimestampMs: 200})
	// gap of 2000ms triggers timeout-based finalize, plus starts new word
	obs, ok := s.Process(Press{KeyName: "x", TimestampMs: 2200})
	if !ok || obs.Word != "hit" {
		t.Fatalf("expected 'hit' to finalize on timeout, got %q ok=%v", obs.Word, ok)
	}
}

func TestRejectsTooShortWord(t *testing.T) {
	v := stubValidator{valid: map[string]bool{"hi": true}}
	s := New(DefaultConfig(), v, "")
	typeWord(s, "hi", 0, 50)
	if _, ok := s.Process(Press{KeyName: "SPACE", TimestampMs: 200}); ok {
		t.Fatal("2-letter word should be rejected (below min length)")
	}
}

func TestRejectsSingleRepeatedLetter(t *testing.T) {
	v := stubValidator{acceptAll: true}
	s := New(DefaultConfig(), v, "")
	typeWord(s, "aaaa", 0, 50)
	if _, ok := s.Process(Press{KeyName: "SPACE", TimestampMs: 300}); ok {
		t.Fatal("single repeated letter should be rejected")
	}
}

func TestRejectsAbbreviation(t *testing.T) {
	v := stubValidator{
		valid:        map[string]bool{"pcx": true},
		abbreviation: map[string]bool{"pcx": true},
	}
	s := New(DefaultConfig(), v, "")
	typeWord(s, "pcx", 0, 50)
	if _, ok := s.Process(Press{KeyName: "SPACE", TimestampMs: 300}); ok {
		t.Fatal("abbreviation-flagged word should be rejected")
	}
}

func TestDiscardsWordNotInDictionary(t *testing.T) {
	v := stubValidator{valid: map[string]bool{}}
	s := New(DefaultConfig(), v, "")
	typeWord(s, "xyzzy", 0, 50)
	if _, ok := s.Process(Press{KeyName: "SPACE", TimestampMs: 300}); ok {
		t.Fatal("word absent from every dictionary should be discarded")
	}
}

func TestBackspaceCorrectsWithoutFinalizing(t *testing.T) {
	v := stubValidator{valid: map[string]bool{"hello": true}}
	s := New(DefaultConfig(), v, "")

	s.Process(Press{KeyName: "h", TimestampMs: 0})
	s.Process(Press{KeyName: "e", TimestampMs: 100})
	s.Process(Press{KeyName: "l", TimestampMs: 200})
	s.Process(Press{KeyName: "x", TimestampMs: 300}) // typo
	s.Process(Press{KeyName: "BACKSPACE", TimestampMs: 400, IsBackspace: true})
	s.Process(Press{KeyName: "l", TimestampMs: 500})
	s.Process(Press{KeyName: "o", TimestampMs: 600})

	obs, ok := s.Process(Press{KeyName: "SPACE", TimestampMs: 700})
	if !ok {
		t.Fatal("expected corrected word to finalize")
	}
	if obs.Word != "hello" {
		t.Fatalf("word = %q, want hello", obs.Word)
	}
	if obs.BackspaceCount != 1 {
		t.Fatalf("backspace_count = %d, want 1", obs.BackspaceCount)
	}
	if obs.EditingTimeMs != 100 {
		t.Fatalf("editing_time_ms = %d, want 100", obs.EditingTimeMs)
	}
}

func TestCloseBurstFinalizesBuffer(t *testing.T) {
	v := stubValidator{valid: map[string]bool{"end": true}}
	s := New(DefaultConfig(), v, "")
	typeWord(s, "end", 0, 50)

	obs, ok := s.CloseBurst()
	if !ok || obs.Word != "end" {
		t.Fatalf("expected burst close to finalize 'end', got %q ok=%v", obs.Word, ok)
	}
}

func TestSpeedMsPerLetter(t *testing.T) {
	v := stubValidator{valid: map[string]bool{"abcd": true}}
	s := New(DefaultConfig(), v, "")
	s.Process(Press{KeyName: "a", TimestampMs: 0})
	s.Process(Press{KeyName: "b", TimestampMs: 100})
	s.Process(Press{KeyName: "c", TimestampMs: 200})
	s.Process(Press{KeyName: "d", TimestampMs: 300})
	obs, ok := s.CloseBurst()
	if !ok {
		t.Fatal("expected finalize")
	}
	if obs.SpeedMsPerLetter != 75 {
		t.Fatalf("speed_ms_per_letter = %v, want 75 (300ms/4 letters)", obs.SpeedMsPerLetter)
	}
}
