//go:build !linux

package device

import "log/slog"

type stubSource struct{}

func newPlatformSource(Sink, LayoutProvider) (*stubSource, error) {
	return nil, ErrNoInputDevices
}

func (s *stubSource) Start()                 {}
func (s *stubSource) Stop()                  {}
func (s *stubSource) DevicePaths() []string  { return nil }
func (s *stubSource) SetLogger(*slog.Logger) {}
