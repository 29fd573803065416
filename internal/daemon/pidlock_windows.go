//go:build windows

package daemon

import "errors"

// The daemon core currently targets Linux; the Windows service wrapper
// lives in the platform shell.
func AcquirePIDLock(path string) error {
	return errors.New("daemon: pid lock not supported on windows")
}

func ReleasePIDLock(path string) {}
