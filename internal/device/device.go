// Package device discovers keyboard input devices and feeds their press
// events into the ingestion queue. It is the only component that holds
// open device handles; everything downstream sees eventqueue.Events.
package device

import (
	"errors"
	"log/slog"

	"github.com/Dronakurl/realtypecoach/internal/eventqueue"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
)

// ErrNoInputDevices means enumeration found nothing usable to read.
var ErrNoInputDevices = errors.New("device: no usable keyboard input devices found")

// ErrPermissionDenied means devices exist but cannot be opened. The
// message carries the actionable fix since this is the most common
// first-run failure.
var ErrPermissionDenied = errors.New("device: permission denied opening input devices (add the daemon's user to the 'input' group)")

// LayoutProvider reports the active keyboard layout at enqueue time.
type LayoutProvider func() keycodes.Layout

// Sink receives decoded press events. *eventqueue.Queue satisfies it.
type Sink interface {
	Put(ev eventqueue.Event)
}

// platformSource is the per-OS reader implementation.
type platformSource interface {
	Start()
	Stop()
	DevicePaths() []string
	SetLogger(*slog.Logger)
}

// Source owns the reader thread over all selected keyboard devices.
type Source struct {
	platformSource
}

// New enumerates keyboard devices and prepares a Source. It fails with
// ErrNoInputDevices or ErrPermissionDenied before any thread starts, so
// startup surfaces both cases immediately.
func New(sink Sink, layout LayoutProvider) (*Source, error) {
	ps, err := newPlatformSource(sink, layout)
	if err != nil {
		return nil, err
	}
	return &Source{platformSource: ps}, nil
}
