package ringbuf

import (
	"bytes"
	"math/rand"
	"testing"
)

func newTestRing(t *testing.T, capacity uint32) *Ring {
	t.Helper()
	mem := make([]byte, HeaderSize+capacity)
	InitHeader(mem, capacity)
	return New(mem)
}

func TestWriteReadRoundTrip(t *testing.T) {
	r := newTestRing(t, 64)
	msgs := [][]byte{[]byte("hello"), []byte("world"), []byte("!")}
	for _, m := range msgs {
		if n := r.Write(m); n != len(m) {
			t.Fatalf("Write(%q) = %d, want %d", m, n, len(m))
		}
	}
	for _, want := range msgs {
		got := r.Read()
		if !bytes.Equal(got, want) {
			t.Fatalf("Read() = %q, want %q", got, want)
		}
	}
	if got := r.Read(); got != nil {
		t.Fatalf("Read() on empty ring = %q, want nil", got)
	}
}

func TestWriteReturnsZeroWhenFull(t *testing.T) {
	r := newTestRing(t, 16)
	big := bytes.Repeat([]byte("x"), 20)
	if n := r.Write(big); n != 0 {
		t.Fatalf("Write() = %d, want 0 (frame larger than capacity)", n)
	}
	// cursors unchanged
	if head, tail := r.headPtr, r.tailPtr; *head != 0 || *tail != 0 {
		t.Fatalf("cursors mutated on failed write: head=%d tail=%d", *head, *tail)
	}
}

func TestWriteFullRingLeavesOneSlotSentinel(t *testing.T) {
	r := newTestRing(t, 8)
	// Data area is 8 bytes; one 0-length frame costs exactly 4 bytes (prefix only).
	if n := r.Write(nil); n != 0 {
		t.Fatalf("first zero-length write = %d, want 0 (n==0 is a valid write of an empty payload)", n)
	}
	// A second 4-byte frame would fill all 8 bytes, but one slot is kept as
	// the full/empty sentinel (free = 8 - 4 - 1 = 3), so it is refused. Write
	// returns 0 either way for an empty payload; the unchanged tail shows it.
	r.Write(nil)
	if tail := *r.tailPtr; tail != 4 {
		t.Fatalf("tail = %d after second zero-length write, want 4 (one-slot sentinel)", tail)
	}
	// A zero length write still "succeeds" per spec (len(b)==0 is valid), but
	// Write returns len(payload) which is 0 either way; verify via Read.
	got := r.Read()
	if got == nil || len(got) != 0 {
		t.Fatalf("Read() = %v, want empty non-nil payload", got)
	}
}

func TestWrapAroundPreservesContentAndOrder(t *testing.T) {
	r := newTestRing(t, 32)
	// Fill and drain repeatedly to force the cursors past the capacity boundary.
	for round := 0; round < 20; round++ {
		msg := []byte{byte(round), byte(round + 1), byte(round + 2)}
		if n := r.Write(msg); n != len(msg) {
			t.Fatalf("round %d: Write = %d, want %d", round, n, len(msg))
		}
		got := r.Read()
		if !bytes.Equal(got, msg) {
			t.Fatalf("round %d: Read = %v, want %v", round, got, msg)
		}
	}
}

func TestRandomizedInterleavingPreservesFIFO(t *testing.T) {
	r := newTestRing(t, 256)
	rng := rand.New(rand.NewSource(1))

	var pending [][]byte
	var written, read int

	for written < 500 || len(pending) > 0 {
		if written < 500 && (len(pending) == 0 || rng.Intn(2) == 0) {
			n := rng.Intn(20)
			msg := make([]byte, n)
			rng.Read(msg)
			if w := r.Write(msg); w == len(msg) {
				pending = append(pending, msg)
				written++
			}
		} else if len(pending) > 0 {
			got := r.Read()
			if got == nil {
				continue
			}
			want := pending[0]
			if !bytes.Equal(got, want) {
				t.Fatalf("read %d: got %v, want %v", read, got, want)
			}
			pending = pending[1:]
			read++
		}
	}
}

func TestUsedPlusFreeInvariant(t *testing.T) {
	r := newTestRing(t, 64)
	check := func() {
		cap := r.capacity()
		head := *r.headPtr
		tail := *r.tailPtr
		used := (tail - head + cap) % cap
		free := cap - used - 1
		if used+free != cap-1 {
			t.Fatalf("used(%d) + free(%d) != capacity-1(%d)", used, free, cap-1)
		}
	}
	check()
	r.Write([]byte("abc"))
	check()
	r.Write([]byte("defgh"))
	check()
	r.Read()
	check()
}
