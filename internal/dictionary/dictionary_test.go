package dictionary

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempDict(t *testing.T, words []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "american-english")
	if err := os.WriteFile(path, []byte(joinLines(words)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func TestAcceptAllMode(t *testing.T) {
	d := New(Config{AcceptAllMode: true}, "", nil, nil)
	if !d.IsValidWord("hello", "") {
		t.Fatal("expected accept-all to validate any 3+ letter word")
	}
	if d.IsValidWord("hi", "") {
		t.Fatal("expected accept-all to reject words under MinWordLength")
	}
}

func TestDictionaryLoadAndValidate(t *testing.T) {
	path := writeTempDict(t, []string{"hello", "world", "PC", "Haus"})
	cfg := Config{EnabledDictionaryPaths: []string{path}}
	d := New(cfg, "", nil, nil)

	if !d.IsValidWord("Hello", "en") {
		t.Fatal("expected case-insensitive match")
	}
	if d.IsValidWord("xyzzy", "en") {
		t.Fatal("unexpected match for absent word")
	}
}

func TestAbbreviationDetection(t *testing.T) {
	path := writeTempDict(t, []string{"PC", "Haus", "USB"})
	cfg := Config{EnabledDictionaryPaths: []string{path}}
	d := New(cfg, "", nil, nil)

	if !d.IsAbbreviationFromDictionary("pc") {
		t.Error("PC (2 uppercase) should be detected as abbreviation")
	}
	if !d.IsAbbreviationFromDictionary("usb") {
		t.Error("USB (3 uppercase) should be detected as abbreviation")
	}
	if d.IsAbbreviationFromDictionary("haus") {
		t.Error("Haus (1 uppercase, normal capitalization) should not be an abbreviation")
	}
}

func TestAutoFallbackToAcceptAll(t *testing.T) {
	cfg := Config{
		EnabledLanguages: []string{"xx"},
		AutoFallback:     true,
	}
	d := New(cfg, "", nil, nil)
	if !d.AcceptAllMode() {
		t.Fatal("expected fallback to accept-all mode when no dictionary resolves")
	}
}

func TestNoFallbackRefusesEverything(t *testing.T) {
	cfg := Config{
		EnabledLanguages: []string{"xx"},
		AutoFallback:     false,
	}
	d := New(cfg, "", nil, nil)
	if d.AcceptAllMode() {
		t.Fatal("did not expect accept-all mode")
	}
	if d.IsValidWord("hello", "") {
		t.Fatal("expected every word to be rejected with no dictionaries and no fallback")
	}
}

type fakeIgnoreChecker struct{ ignored map[string]bool }

func (f fakeIgnoreChecker) IsWordIgnored(w string) bool { return f.ignored[w] }

func TestIgnoreListsTakePriority(t *testing.T) {
	path := writeTempDict(t, []string{"hello"})
	cfg := Config{EnabledDictionaryPaths: []string{path}}
	checker := fakeIgnoreChecker{ignored: map[string]bool{"hello": true}}
	d := New(cfg, "", checker, nil)

	if d.IsValidWord("hello", "en") {
		t.Fatal("word present in the hashed ignore set must be rejected")
	}
}

func TestExcludeNames(t *testing.T) {
	path := writeTempDict(t, []string{"james", "hello"})
	cfg := Config{
		EnabledDictionaryPaths: []string{path},
		EnabledLanguages:       []string{"en"},
		ExcludeNamesEnabled:    true,
	}
	d := New(cfg, "", nil, nil)
	if d.IsValidWord("james", "en") {
		t.Fatal("common name should be excluded when exclude_names is enabled")
	}
	if !d.IsValidWord("hello", "en") {
		t.Fatal("non-name word should still validate")
	}
}

func TestGetCapitalizedForm(t *testing.T) {
	path := writeTempDict(t, []string{"Haus"})
	cfg := Config{EnabledDictionaryPaths: []string{path}}
	d := New(cfg, "", nil, nil)

	if got := d.GetCapitalizedForm("haus", "de"); got != "Haus" {
		t.Fatalf("GetCapitalizedForm = %q, want Haus", got)
	}
}
