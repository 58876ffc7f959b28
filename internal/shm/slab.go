// Package shm attaches the worker to the host-allocated shared-memory slab
// and splits it into the two ring halves (spec.md §3, §6).
//
// Grounded on the teacher's internal/transport/transport_linux_uring.go,
// which maps a kernel-allocated ring region with golang.org/x/sys/unix.Mmap
// and addresses fields inside it via unsafe.Pointer arithmetic — the same
// technique used here, pointed instead at a POSIX shared-memory object the
// host created.
package shm

import "fmt"

// Slab is the attached shared-memory region, split into ring A (host→worker)
// and ring B (worker→host) per spec.md §3.
type Slab struct {
	mem   []byte
	close func() error
}

// RingA returns the host→worker half.
func (s *Slab) RingA() []byte { return s.mem[:len(s.mem)/2] }

// RingB returns the worker→host half.
func (s *Slab) RingB() []byte { return s.mem[len(s.mem)/2:] }

// Close unmaps and releases the underlying resource.
func (s *Slab) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// candidateNames returns the name variants the worker tries in order, per
// spec.md §6: the name as given, with a leading slash prepended, and with
// leading slashes stripped — deduplicated, order preserved.
func candidateNames(name string) []string {
	withSlash := name
	if len(name) == 0 || name[0] != '/' {
		withSlash = "/" + name
	}
	stripped := name
	for len(stripped) > 0 && stripped[0] == '/' {
		stripped = stripped[1:]
	}

	seen := make(map[string]bool, 3)
	var out []string
	for _, c := range []string{name, withSlash, stripped} {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Attach resolves name against the platform's POSIX shared-memory namespace
// and maps size bytes of it. It is a transport-fatal error (spec.md §7) if
// no candidate name resolves.
func Attach(name string, size int) (*Slab, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid size %d", size)
	}
	var lastErr error
	for _, candidate := range candidateNames(name) {
		mem, closer, err := attachPlatform(candidate, size)
		if err == nil {
			return &Slab{mem: mem, close: closer}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("shm: no candidate name resolved for %q: %w", name, lastErr)
}
