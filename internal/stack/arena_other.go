//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package stack

import "os"

func pageSize() int {
	return os.Getpagesize()
}

// Guard pages are not enforced on this platform; the region is plain heap.
func reserve(size, stride, guard int) ([]byte, error) {
	return make([]byte, size), nil
}

func free(region []byte) error {
	return nil
}
