// Package transport is the framed-message layer above internal/ringbuf:
// it prepends/strips the wire envelope and pairs each write with the
// matching control-stream readiness token (spec.md §4.2).
//
// Grounded on the teacher's protocol/frame_codec.go split between "codec"
// (pure encode/decode) and a thin transport wrapper that owns the
// readiness/ack side channel — here the control stream plays that role
// instead of a TCP ack.
package transport

import (
	"time"

	"github.com/momentics/sandboxworker/api"
	"github.com/momentics/sandboxworker/internal/controlstream"
	"github.com/momentics/sandboxworker/internal/wire"
)

const writeBackoff = time.Millisecond

// Transport owns both ring halves and the control stream. In is the
// host→worker ring (ring A): it carries CODE frames to the executor and,
// per the original worker's send_sync / bun2py.read wiring, ALLOW/DENY
// decision replies back to the policy client. Out is the worker→host ring
// (ring B): it carries probes and captured stdout.
type Transport struct {
	In      api.Ring
	Out     api.Ring
	Control *controlstream.Stream
}

// New wires a Transport over an already-attached ring pair and control
// stream.
func New(in, out api.Ring, control *controlstream.Stream) *Transport {
	return &Transport{In: in, Out: out, Control: control}
}

// WriteProbe encodes and writes a probe envelope to ring B, retrying on
// backpressure, then emits the CHECK readiness token (spec.md §4.2, §4.4
// "Backpressure"). A CHECK send failure is returned to the caller, who
// treats it as the probe becoming a deny (spec.md §7).
func (t *Transport) WriteProbe(env wire.Envelope) error {
	t.writeOutBlocking(env)
	return t.Control.SendCheck()
}

// WriteStdout encodes and writes a STDOUT envelope to ring B, retrying on
// backpressure, then emits the DATA readiness token. A DATA send failure
// is swallowed (spec.md §4.2, §7 "transport-recoverable").
func (t *Transport) WriteStdout(body []byte) {
	t.writeOutBlocking(wire.Envelope{Type: wire.MsgStdout, RequestID: 0, Body: body})
	_ = t.Control.SendData()
}

func (t *Transport) writeOutBlocking(env wire.Envelope) {
	payload := env.Encode()
	for {
		if n := t.Out.Write(payload); n > 0 || len(payload) == 0 {
			return
		}
		time.Sleep(writeBackoff)
	}
}

// ReadIn performs a single, non-blocking read attempt on ring A. It
// returns (nil, nil) when the ring is empty, and (nil, err) for a frame
// that fails to decode — a protocol-inconsistency (spec.md §7) the caller
// discards by simply trying again.
func (t *Transport) ReadIn() (*wire.Envelope, error) {
	payload := t.In.Read()
	if payload == nil {
		return nil, nil
	}
	env, err := wire.Decode(payload)
	if err != nil {
		return nil, err
	}
	return &env, nil
}
