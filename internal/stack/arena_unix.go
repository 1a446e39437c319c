//go:build linux || darwin || freebsd || netbsd || openbsd

package stack

import (
	"golang.org/x/sys/unix"
)

func pageSize() int {
	return unix.Getpagesize()
}

func reserve(size, stride, guard int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	for off := 0; off < size; off += stride {
		if err := unix.Mprotect(region[off:off+guard], unix.PROT_NONE); err != nil {
			_ = unix.Munmap(region)
			return nil, err
		}
	}
	return region, nil
}

func free(region []byte) error {
	return unix.Munmap(region)
}
