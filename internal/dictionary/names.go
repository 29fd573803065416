package dictionary

import "strings"

// commonNames is a small embedded seed list of given names, shared
// between English and German (most first names are used across both).
// Operators can extend coverage via the ignore-words file; this list
// only needs to catch the frequent cases that would otherwise pollute
// per-word statistics.
var commonNames = map[string]map[string]struct{}{
	"en": buildNamesWithGenitives(baseNames),
	"de": buildNamesWithGenitives(baseNames),
}

var baseNames = []string{
	"james", "john", "robert", "michael", "david", "william", "richard",
	"joseph", "thomas", "daniel", "mary", "patricia", "jennifer", "linda",
	"elizabeth", "barbara", "susan", "jessica", "sarah", "karen",
	"alexander", "benjamin", "christopher", "matthew", "andrew", "joshua",
	"anna", "laura", "julia", "sophie", "emma", "lena", "hannah", "lisa",
	"thomas", "felix", "jonas", "paul", "lukas", "maximilian", "leon",
	"peter", "klaus", "hans", "stefan", "michael", "andreas", "markus",
	"sabine", "claudia", "sandra", "nicole", "petra", "monika", "ursula",
}

// CommonNames returns the deduplicated union of the common-names set
// (with genitive forms) across the given language codes. Used by the
// synchronizer to purge WordStat rows retroactively when
// exclude_names_enabled flips on.
func CommonNames(langs []string) []string {
	seen := make(map[string]struct{})
	for _, lang := range langs {
		names, ok := commonNames[lang]
		if !ok {
			continue
		}
		for n := range names {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// generateGenitive returns name+"s" unless name already ends in "s", in
// which case there is no distinct genitive form to add.
func generateGenitive(name string) (string, bool) {
	if strings.HasSuffix(name, "s") {
		return "", false
	}
	return name + "s", true
}

func buildNamesWithGenitives(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names)*2)
	for _, n := range names {
		lower := strings.ToLower(n)
		set[lower] = struct{}{}
		if genitive, ok := generateGenitive(lower); ok {
			set[genitive] = struct{}{}
		}
	}
	return set
}
