// Package ringbuf implements the byte-exact, lock-free single-producer/
// single-consumer framed ring buffer that sits directly on one half of the
// shared-memory slab (spec.md §3, §4.1).
//
// The cursor publication technique — treating the mapped header as plain
// memory and moving head/tail through sync/atomic via unsafe.Pointer — is
// the same one the teacher repository uses for the io_uring submission/
// completion queue head and tail words in
// internal/transport/transport_linux_uring.go. The span-splitting approach
// for wraparound mirrors the jangala-dev-devicecode-go shmring reference
// implementation.
package ringbuf

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// HeaderSize is the fixed size, in bytes, of a ring header (spec.md §3).
const HeaderSize = 64

const (
	offHead = 0
	offTail = 4
	offCap  = 8
)

// Ring is one half of the shared-memory slab: a 64-byte header followed by
// a data area. There must be exactly one producer and one consumer across
// the process boundary; within this process, Ring is not safe for
// concurrent use by more than one goroutine on the same side.
type Ring struct {
	mem     []byte // header + data area, length == HeaderSize + capacity
	headPtr *uint32
	tailPtr *uint32
	capPtr  *uint32
}

// New wraps an existing half of the shared-memory slab. The header must
// already have been initialized by the host (capacity set, head/tail
// zeroed); New does not write to mem.
func New(mem []byte) *Ring {
	if len(mem) < HeaderSize {
		panic("ringbuf: half too small for header")
	}
	return &Ring{
		mem:     mem,
		headPtr: (*uint32)(unsafe.Pointer(&mem[offHead])),
		tailPtr: (*uint32)(unsafe.Pointer(&mem[offTail])),
		capPtr:  (*uint32)(unsafe.Pointer(&mem[offCap])),
	}
}

// InitHeader writes a fresh, empty header for a data area of the given
// capacity. Used by the host side and by tests that construct a ring
// in-process without a real attaching peer.
func InitHeader(mem []byte, capacity uint32) {
	if len(mem) < HeaderSize {
		panic("ringbuf: half too small for header")
	}
	binary.LittleEndian.PutUint32(mem[offHead:], 0)
	binary.LittleEndian.PutUint32(mem[offTail:], 0)
	binary.LittleEndian.PutUint32(mem[offCap:], capacity)
	for i := 12; i < HeaderSize; i++ {
		mem[i] = 0
	}
}

func (r *Ring) capacity() uint32 { return atomic.LoadUint32(r.capPtr) }

// Write attempts to enqueue one length-prefixed frame (spec.md §4.1). It
// returns 0 without mutating any cursor if the frame does not fit; it is
// never partial.
func (r *Ring) Write(payload []byte) int {
	total := r.capacity()
	if total == 0 {
		return 0
	}
	head := atomic.LoadUint32(r.headPtr)
	tail := atomic.LoadUint32(r.tailPtr)

	used := (tail - head + total) % total
	free := total - used - 1 // one slot sentinel reserved

	need := uint32(4 + len(payload))
	if free < need {
		return 0
	}

	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(payload)))
	newTail := r.writeRaw(lenBytes[:], tail, total)
	newTail = r.writeRaw(payload, newTail, total)

	atomic.StoreUint32(r.tailPtr, newTail) // release: payload is in place first
	return len(payload)
}

// Read returns the next frame's payload, or nil if the ring is empty or
// only a partial frame has arrived so far.
func (r *Ring) Read() []byte {
	total := r.capacity()
	if total == 0 {
		return nil
	}
	head := atomic.LoadUint32(r.headPtr)
	tail := atomic.LoadUint32(r.tailPtr) // acquire: observe producer's payload

	if head == tail {
		return nil
	}

	used := (tail - head + total) % total
	if used < 4 {
		return nil
	}

	lenBytes, afterLen := r.readRaw(4, head, total)
	msgLen := binary.LittleEndian.Uint32(lenBytes)

	if used < 4+msgLen {
		return nil // partial frame still arriving
	}

	payload, newHead := r.readRaw(msgLen, afterLen, total)
	atomic.StoreUint32(r.headPtr, newHead)
	return payload
}

// writeRaw copies b into the data area starting at start (mod cap),
// splitting across the wrap boundary if needed, and returns the new
// (unpublished) offset.
func (r *Ring) writeRaw(b []byte, start, capn uint32) uint32 {
	data := r.mem[HeaderSize:]
	n := uint32(len(b))
	first := capn - start
	if first > n {
		first = n
	}
	copy(data[start:start+first], b[:first])
	if first < n {
		copy(data[0:n-first], b[first:])
	}
	return (start + n) % capn
}

// readRaw reads length bytes from the data area starting at start (mod
// cap) into a freshly allocated buffer, returning it and the new offset.
func (r *Ring) readRaw(length, start, capn uint32) ([]byte, uint32) {
	data := r.mem[HeaderSize:]
	out := make([]byte, length)
	first := capn - start
	if first > length {
		first = length
	}
	copy(out[:first], data[start:start+first])
	if first < length {
		copy(out[first:], data[0:length-first])
	}
	return out, (start + length) % capn
}
