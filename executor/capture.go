package executor

import (
	"github.com/eapache/queue"

	"github.com/momentics/sandboxworker/internal/transport"
)

// captureSink is the standard-output target swapped in for the duration of
// one frame (spec.md §4.5 step 2/6). Writes are queued rather than sent to
// the ring one at a time so a chatty script (many small print calls) does
// not force a ring write, and its retry-with-backoff loop, per write
// call — the same batching concern the teacher's
// internal/concurrency.Executor addresses with github.com/eapache/queue
// for task dispatch is addressed here for output chunks instead.
type captureSink struct {
	q *queue.Queue
	t *transport.Transport
}

func newCaptureSink(t *transport.Transport) *captureSink {
	return &captureSink{q: queue.New(), t: t}
}

// Write implements io.Writer by enqueuing a copy of p.
func (c *captureSink) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	c.q.Add(cp)
	return len(p), nil
}

// Flush drains every queued chunk, joined in write order, into a single
// STDOUT frame on ring B (spec.md §4.1 "frame delivery is strictly FIFO"
// within one ring). Nothing is written when no output was captured.
func (c *captureSink) Flush() {
	var out []byte
	for c.q.Length() > 0 {
		out = append(out, c.q.Peek().([]byte)...)
		c.q.Remove()
	}
	if len(out) > 0 {
		c.t.WriteStdout(out)
	}
}
