//go:build unix

package arena

import (
	"errors"

	"golang.org/x/sys/unix"
)

// reserve maps limit bytes of anonymous private memory. Pages are committed
// lazily by the kernel on first touch.
func reserve(limit int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, limit, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	release := func() error {
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, release, nil
}
