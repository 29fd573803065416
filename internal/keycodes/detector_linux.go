//go:build linux

package keycodes

import (
	"os"
	"os/exec"
	"strings"
)

// probeActiveLayout determines the active keyboard layout on Linux.
//
// It prefers an explicit RTC_KEYBOARD_LAYOUT environment override (useful
// under a headless daemon with no session bus), then falls back to
// querying setxkbmap, which reflects the X11/XWayland keyboard layout on
// most desktop sessions.
func probeActiveLayout() Layout {
	if v := strings.TrimSpace(os.Getenv("RTC_KEYBOARD_LAYOUT")); v != "" {
		return Layout(strings.ToLower(v))
	}

	out, err := exec.Command("setxkbmap", "-query").Output()
	if err != nil {
		return US
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "layout:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// setxkbmap reports comma-separated layout groups; the first is active.
		first := strings.Split(fields[1], ",")[0]
		return Layout(strings.ToLower(strings.TrimSpace(first)))
	}
	return US
}
