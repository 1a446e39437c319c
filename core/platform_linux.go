//go:build linux

package core

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The calls below act on the calling OS thread and are only meaningful on a
// worker that has locked its goroutine to that thread.

func setThreadAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

func setThreadName(name string) error {
	// the kernel keeps 15 bytes plus the terminator
	if len(name) > 15 {
		name = name[:15]
	}
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	err = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
	runtime.KeepAlive(p)
	return err
}

func setThreadPriority(p ThreadPriority) error {
	nice := 0
	switch p {
	case ThreadPriorityLow:
		nice = 10
	case ThreadPriorityHigh:
		nice = -5
	}
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
