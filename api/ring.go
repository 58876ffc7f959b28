// Package api
// Author: momentics <momentics@gmail.com>
//
// Fast, lock-free ring buffer contract for cross-process framed transfer.

package api

// Ring is the byte-exact SPSC framed queue contract implemented over a
// shared-memory half (spec.md §4.1). There is exactly one producer and one
// consumer per Ring across the process boundary.
type Ring interface {
	// Write attempts to enqueue one length-prefixed frame. Returns 0
	// without mutating any cursor if the frame does not fit.
	Write(payload []byte) int

	// Read returns the next frame's payload, or nil if the ring is empty
	// or only a partial frame is currently available.
	Read() []byte
}
