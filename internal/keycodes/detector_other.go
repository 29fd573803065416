//go:build !linux

package keycodes

import (
	"os"
	"strings"
)

// probeActiveLayout falls back to an environment hint on platforms without
// a dedicated layout query; callers needing precise detection should run
// the Linux build or extend this with a platform-specific probe.
func probeActiveLayout() Layout {
	if v := strings.TrimSpace(os.Getenv("RTC_KEYBOARD_LAYOUT")); v != "" {
		return Layout(strings.ToLower(v))
	}
	return US
}
