//go:build !linux

package core

import "errors"

var errPlatformUnsupported = errors.New("not supported on this platform")

func setThreadAffinity(core int) error {
	return errPlatformUnsupported
}

func setThreadName(name string) error {
	return errPlatformUnsupported
}

func setThreadPriority(p ThreadPriority) error {
	return errPlatformUnsupported
}
