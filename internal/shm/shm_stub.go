//go:build !linux

package shm

import "fmt"

// attachPlatform is unimplemented outside Linux: the host's shared-memory
// object naming convention (POSIX shm under /dev/shm) is Linux-specific,
// matching the teacher's own per-OS split for low-level transport code
// (internal/transport/transport_linux.go vs. transport_windows.go).
func attachPlatform(candidate string, size int) ([]byte, func() error, error) {
	return nil, nil, fmt.Errorf("shm: attach not supported on this platform")
}
