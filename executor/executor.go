// Package executor drives the worker's single frame-intake loop: read a
// CODE frame from ring A, evaluate it against the persistent execution
// context, emit state events, and capture standard output back to ring B
// (spec.md §4.5 "Executor loop").
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/sandboxworker/control"
	"github.com/momentics/sandboxworker/internal/controlstream"
	"github.com/momentics/sandboxworker/internal/lang"
	"github.com/momentics/sandboxworker/internal/transport"
	"github.com/momentics/sandboxworker/internal/wire"
)

const idleBackoff = time.Millisecond

// Executor owns the frame loop and the single persistent lang.Evaluator
// for this worker lifetime.
type Executor struct {
	transport *transport.Transport
	control   *controlstream.Stream
	eval      *lang.Evaluator
	metrics   *control.WorkerMetrics

	mu         sync.Mutex
	cancelExec context.CancelFunc
}

// New returns an Executor wired to t and ctl, evaluating frames with ev.
func New(t *transport.Transport, ctl *controlstream.Stream, ev *lang.Evaluator, metrics *control.WorkerMetrics) *Executor {
	return &Executor{transport: t, control: ctl, eval: ev, metrics: metrics}
}

// Interrupt cancels the frame currently being evaluated, if any (spec.md
// §5 "Cancellation"). It is a no-op if no frame is in flight.
func (e *Executor) Interrupt() {
	e.mu.Lock()
	cancel := e.cancelExec
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run reads frames from ring A until ctx is canceled. Non-CODE frames are
// discarded (spec.md §4.5 "Frames whose envelope type is not CODE ...").
// Malformed frames are discarded per spec.md §7 "Protocol-inconsistency".
func (e *Executor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		env, err := e.transport.ReadIn()
		if err != nil {
			continue
		}
		if env == nil {
			time.Sleep(idleBackoff)
			continue
		}
		if env.Type != wire.MsgCode {
			continue
		}
		e.handleFrame(ctx, env.Body)
	}
}

func (e *Executor) handleFrame(ctx context.Context, body []byte) {
	e.control.SendState("code_received", map[string]int{"size": len(body)})
	e.metrics.RecordFrame()

	sink := newCaptureSink(e.transport)
	e.eval.SetOutput(sink)

	frameCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelExec = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelExec = nil
		e.mu.Unlock()
		cancel()
	}()

	e.control.SendState("exec_start", nil)
	res, err := e.eval.Eval(frameCtx, string(body))

	switch {
	case err == lang.ErrInterrupted:
		e.control.SendState("interrupted", nil)
	case err != nil:
		e.metrics.RecordException()
		fmt.Fprintf(sink, "Traceback (most recent call last):\n  %s\n", err.Error())
		e.control.SendState("exception", map[string]string{"error": err.Error()})
	default:
		if res.HasValue {
			fmt.Fprintln(sink, lang.Stringify(res.Value))
		}
		e.control.SendState("exec_end", map[string]bool{"success": true})
	}

	sink.Flush()
}
