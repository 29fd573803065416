package dictionary

import "os"

// candidatePaths lists the conventional system dictionary locations
// searched per language when no custom path is configured. The first
// existing file for a language wins.
var candidatePaths = map[string][]string{
	"en": {
		"/usr/share/dict/american-english",
		"/usr/share/dict/british-english",
		"/usr/share/dict/words",
		"/usr/share/hunspell/en_US.dic",
	},
	"de": {
		"/usr/share/dict/ngerman",
		"/usr/share/dict/ogerman",
		"/usr/share/hunspell/de_DE.dic",
	},
}

// detectAvailable scans candidatePaths and returns the first existing
// file per language. Re-run on every call so newly installed
// dictionaries are picked up without a restart.
func detectAvailable() map[string]string {
	found := make(map[string]string)
	for lang, paths := range candidatePaths {
		for _, p := range paths {
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				found[lang] = p
				break
			}
		}
	}
	return found
}

// resolvePaths resolves a dictionary path per requested language,
// preferring an explicit custom path over system auto-detection.
func resolvePaths(requested []string, custom map[string]string) map[string]string {
	resolved := make(map[string]string)
	detected := detectAvailable()

	for _, lang := range requested {
		if p, ok := custom[lang]; ok {
			resolved[lang] = p
			continue
		}
		if p, ok := detected[lang]; ok {
			resolved[lang] = p
		}
	}
	return resolved
}
