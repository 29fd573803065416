// Package keycodes maps OS keycodes to printable key names per keyboard
// layout and tracks which layout is currently active.
//
// It never records which character a user typed for prose content — only
// the symbolic name of the physical key (e.g. "a", "SPACE", "BACKSPACE") —
// the same privacy boundary the rest of the ingestion pipeline holds to.
package keycodes

import "unicode"

// Layout identifies a keyboard layout.
type Layout string

// Supported layouts. Unsupported layouts fall back to Layout "us".
const (
	US Layout = "us"
	DE Layout = "de"
)

// tables maps each supported layout to a dense keycode -> name table.
var tables = map[Layout]map[uint16]string{
	US: usTable,
	DE: deTable,
}

// IsSupported reports whether a dedicated keycode table exists for layout.
func IsSupported(layout Layout) bool {
	_, ok := tables[layout]
	return ok
}

// Resolve returns layout if supported, otherwise the "us" fallback.
func Resolve(layout Layout) Layout {
	if IsSupported(layout) {
		return layout
	}
	return US
}

// KeyName returns the symbolic name for keycode under layout, falling back
// to "us" for unsupported layouts and "KEY_<n>" for unknown keycodes.
func KeyName(keycode uint16, layout Layout) string {
	table, ok := tables[layout]
	if !ok {
		table = tables[US]
	}
	if name, ok := table[keycode]; ok {
		return name
	}
	return unknownKeyName(keycode)
}

func unknownKeyName(keycode uint16) string {
	return "KEY_" + itoa(keycode)
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// germanLetters are the language-specific letters IsLetterKey recognizes
// beyond plain ASCII a-z.
var germanLetters = map[rune]bool{
	'ä': true, 'ö': true, 'ü': true, 'ß': true,
}

// IsLetterKey reports whether name denotes a single alphabetic key: either
// a plain ASCII letter or one of the recognized language-specific letters.
func IsLetterKey(name string) bool {
	runes := []rune(name)
	if len(runes) != 1 {
		return false
	}
	r := runes[0]
	if unicode.IsLetter(r) && r < unicode.MaxASCII {
		return true
	}
	return germanLetters[r]
}

// Names for keys commonly referenced by the burst/word pipeline.
const (
	KeySpace     = "SPACE"
	KeyBackspace = "BACKSPACE"
	KeyEnter     = "ENTER"
	KeyEscape    = "ESC"
)

// IsBackspace reports whether name is the backspace key.
func IsBackspace(name string) bool {
	return name == KeyBackspace
}
