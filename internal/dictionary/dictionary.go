package dictionary

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// IgnoreChecker consults a store-backed hashed ignore set. Implemented by
// the hasher/store packages; kept as a narrow interface here so the
// dictionary package never depends on storage.
type IgnoreChecker interface {
	IsWordIgnored(lowercase string) bool
}

// Dictionary validates finalized words against one or more loaded
// language wordlists, an ignore list, and (optionally) a common-names
// exclusion set. It is safe for concurrent reads; the ignore-file reload
// (reloadIgnoreWords) and UpdateExcludeNames swap state under a lock.
type Dictionary struct {
	mu sync.RWMutex

	words            map[string]map[string]struct{} // language -> lowercase word set
	capitalized      map[string]map[string]string   // language -> lowercase -> original case
	loadedPaths      map[string]string
	acceptAllMode    bool
	ignoredWords     map[string]struct{}
	excludeNames     bool
	namesSet         map[string]struct{}
	ignoreFilePath   string
	storageIgnore    IgnoreChecker
	enabledLanguages []string
	log              *slog.Logger
}

// New builds a Dictionary from cfg. ignoreFilePath may be empty.
// checker may be nil until storage is wired up.
func New(cfg Config, ignoreFilePath string, checker IgnoreChecker, logger *slog.Logger) *Dictionary {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dictionary{
		words:            make(map[string]map[string]struct{}),
		capitalized:      make(map[string]map[string]string),
		loadedPaths:      make(map[string]string),
		ignoredWords:     make(map[string]struct{}),
		namesSet:         make(map[string]struct{}),
		ignoreFilePath:   ignoreFilePath,
		storageIgnore:    checker,
		excludeNames:     cfg.ExcludeNamesEnabled,
		enabledLanguages: cfg.EnabledLanguages,
		log:              logger.With("component", "dictionary"),
	}

	d.loadIgnoreWords()
	if d.excludeNames {
		d.loadNames(cfg.EnabledLanguages)
	}

	resolvedPaths, acceptAll := d.determineLanguagesToLoad(cfg)
	d.acceptAllMode = acceptAll
	for lang, path := range resolvedPaths {
		d.loadOne(lang, path)
	}

	if d.acceptAllMode {
		d.log.Warn("dictionary in accept-all mode, all words 3+ letters accepted")
	} else if langs := d.loadedLanguagesLocked(); len(langs) > 0 {
		d.log.Info("dictionary loaded", "languages", langs)
	}
	return d
}

func (d *Dictionary) loadIgnoreWords() {
	if d.ignoreFilePath == "" {
		return
	}
	f, err := os.Open(d.ignoreFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.Warn("failed to open ignore words file", "path", d.ignoreFilePath, "error", err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d.ignoredWords[strings.ToLower(line)] = struct{}{}
	}
	d.log.Info("loaded ignore words", "count", len(d.ignoredWords), "path", d.ignoreFilePath)
}

func (d *Dictionary) loadNames(enabledLangs []string) {
	for _, lang := range enabledLangs {
		names, ok := commonNames[lang]
		if !ok {
			continue
		}
		for n := range names {
			d.namesSet[n] = struct{}{}
		}
	}
	d.log.Info("loaded common names for exclusion", "count", len(d.namesSet))
}

// UpdateExcludeNames toggles name filtering without a full reload.
func (d *Dictionary) UpdateExcludeNames(enabled bool, enabledLangs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.excludeNames = enabled
	if enabled {
		if len(d.namesSet) == 0 {
			d.loadNames(enabledLangs)
		}
		d.log.Info("exclude_names enabled")
	} else {
		d.namesSet = make(map[string]struct{})
		d.log.Info("exclude_names disabled")
	}
}

func (d *Dictionary) determineLanguagesToLoad(cfg Config) (map[string]string, bool) {
	if cfg.AcceptAllMode {
		return nil, true
	}

	if len(cfg.EnabledDictionaryPaths) > 0 {
		resolved := make(map[string]string)
		for _, path := range cfg.EnabledDictionaryPaths {
			lang := guessLanguageFromFilename(path)
			if lang == "" {
				d.log.Warn("could not detect language for dictionary file", "path", path)
				continue
			}
			resolved[lang] = path
		}
		if len(resolved) > 0 {
			return resolved, false
		}
		if cfg.AutoFallback {
			d.log.Warn("no valid specific dictionaries found, enabling accept-all mode")
			return nil, true
		}
		d.log.Error("no valid specific dictionaries found and auto_fallback disabled")
		return nil, false
	}

	resolved := resolvePaths(cfg.EnabledLanguages, cfg.CustomPaths)
	if len(resolved) >= len(cfg.EnabledLanguages) && len(cfg.EnabledLanguages) > 0 {
		return resolved, false
	}

	missing := make([]string, 0)
	for _, lang := range cfg.EnabledLanguages {
		if _, ok := resolved[lang]; !ok {
			missing = append(missing, lang)
		}
	}
	if len(missing) > 0 {
		d.log.Warn("requested languages not available", "missing", missing)
	}

	if len(resolved) > 0 {
		return resolved, false
	}

	if cfg.AutoFallback {
		d.log.Warn("no dictionaries available, enabling accept-all mode")
		return nil, true
	}
	d.log.Error("no dictionaries available and auto_fallback disabled")
	return nil, false
}

func guessLanguageFromFilename(path string) string {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "ngerman"), strings.Contains(name, "german"):
		return "de"
	case strings.Contains(name, "american"), strings.Contains(name, "english"), strings.Contains(name, "words"):
		return "en"
	default:
		return ""
	}
}

func (d *Dictionary) loadOne(lang, path string) bool {
	f, err := os.Open(path)
	if err != nil {
		d.log.Warn("dictionary file not found", "language", lang, "path", path, "error", err)
		return false
	}
	defer f.Close()

	wordSet := make(map[string]struct{})
	capMap := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		original := strings.TrimSpace(scanner.Text())
		if original == "" {
			continue
		}
		lower := strings.ToLower(original)
		wordSet[lower] = struct{}{}
		if _, seen := capMap[lower]; !seen {
			capMap[lower] = original
		}
	}
	if err := scanner.Err(); err != nil {
		d.log.Error("error reading dictionary", "language", lang, "path", path, "error", err)
		return false
	}

	d.words[lang] = wordSet
	d.capitalized[lang] = capMap
	d.loadedPaths[lang] = path
	d.log.Info("loaded dictionary", "language", lang, "words", len(wordSet), "path", path)
	return true
}

func (d *Dictionary) isName(wordLower string) bool {
	_, ok := d.namesSet[wordLower]
	return ok
}

// IsValidWord reports whether word passes every check: ignore lists,
// names exclusion, and dictionary membership (or the accept-all length
// rule). language narrows the lookup but falls through to all loaded
// dictionaries if not found there.
func (d *Dictionary) IsValidWord(word string, language string) bool {
	if word == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	lower := strings.ToLower(word)

	if d.storageIgnore != nil && d.storageIgnore.IsWordIgnored(lower) {
		return false
	}
	if _, ignored := d.ignoredWords[lower]; ignored {
		return false
	}
	if d.excludeNames && d.isName(lower) {
		return false
	}

	if d.acceptAllMode {
		return len([]rune(word)) >= MinWordLength
	}

	if language != "" {
		if set, ok := d.words[language]; ok {
			if _, found := set[lower]; found {
				return true
			}
		}
	}
	for _, set := range d.words {
		if _, found := set[lower]; found {
			return true
		}
	}
	return false
}

// IsAbbreviationFromDictionary reports whether the dictionary's original
// (pre-lowercasing) form of wordLower has 2+ uppercase code points —
// distinguishing an acronym like "PC" from a normally capitalized noun
// like "Haus".
func (d *Dictionary) IsAbbreviationFromDictionary(wordLower string) bool {
	if wordLower == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.acceptAllMode {
		return false
	}
	for _, mapping := range d.capitalized {
		original, ok := mapping[wordLower]
		if !ok {
			continue
		}
		upper := 0
		for _, r := range original {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		return upper >= 2
	}
	return false
}

// GetCapitalizedForm returns the dictionary's canonical-case spelling of
// word (e.g. "haus" -> "Haus"), or word unchanged if not found or in
// accept-all mode.
func (d *Dictionary) GetCapitalizedForm(word, language string) string {
	if word == "" {
		return word
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.acceptAllMode {
		return word
	}
	lower := strings.ToLower(word)

	if language != "" {
		if mapping, ok := d.capitalized[language]; ok {
			if original, ok := mapping[lower]; ok {
				return original
			}
		}
	}
	for _, mapping := range d.capitalized {
		if original, ok := mapping[lower]; ok {
			return original
		}
	}
	return word
}

// LoadedLanguages returns the language codes successfully loaded.
func (d *Dictionary) LoadedLanguages() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedLanguagesLocked()
}

func (d *Dictionary) loadedLanguagesLocked() []string {
	langs := make([]string, 0, len(d.words))
	for l := range d.words {
		langs = append(langs, l)
	}
	return langs
}

// IsLoaded reports whether at least one dictionary was loaded, or the
// dictionary is running in accept-all mode.
func (d *Dictionary) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.acceptAllMode || len(d.words) > 0
}

// AcceptAllMode reports whether validation is currently disabled.
func (d *Dictionary) AcceptAllMode() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.acceptAllMode
}
