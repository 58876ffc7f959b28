//go:build linux

package shm

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// attachPlatform opens the POSIX shared-memory object backing candidate
// (glibc's shm_open resolves "/name" to the regular file /dev/shm/name) and
// maps size bytes of it read-write, shared.
func attachPlatform(candidate string, size int) ([]byte, func() error, error) {
	path := filepath.Join("/dev/shm", strings.TrimPrefix(candidate, "/"))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error {
		return unix.Munmap(mem)
	}
	return mem, closer, nil
}
