// Package dictionary validates finalized words against one or more
// language wordlists, with accept-all and auto-fallback modes, an
// ignore list, and an optional common-names exclusion set.
package dictionary

// Config controls which dictionaries are loaded and how.
type Config struct {
	// EnabledDictionaryPaths, if non-empty, are explicit dictionary
	// files to load; language is auto-detected from filename.
	EnabledDictionaryPaths []string

	// EnabledLanguages is the legacy selection mechanism: language
	// codes resolved against CustomPaths or the system's detected
	// dictionaries.
	EnabledLanguages []string

	// CustomPaths overrides the detected path for a given language code.
	CustomPaths map[string]string

	// AcceptAllMode disables dictionary validation entirely; any word
	// of MinWordLength+ letters is accepted.
	AcceptAllMode bool

	// AutoFallback switches to accept-all mode when no requested
	// dictionary can be resolved, instead of refusing every word.
	AutoFallback bool

	// ExcludeNamesEnabled filters words found in the common-names set.
	ExcludeNamesEnabled bool
}

// MinWordLength is the shortest word considered valid, both in
// accept-all mode and as a pre-filter before dictionary lookup.
const MinWordLength = 3
