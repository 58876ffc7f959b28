// Package policyclient implements the worker-side half of the policy
// protocol (spec.md §4.4): translating a probe into either an optimistic
// (fire-and-forget) or synchronous (blocking, correlated) exchange when the
// worker defers to the host, or resolving it locally when the worker is
// configured to evaluate policy itself (spec.md §9 "Open question" — this
// package is the unified abstraction the note calls for).
//
// Grounded on the teacher's client/reconnect-and-correlate request style in
// control/hotreload.go's hook dispatch and on protocol/frame_codec.go's
// request/response pairing; the blocking poll-with-backoff loop mirrors the
// teacher's internal/concurrency busy-wait avoidance guidance generalized
// to a sleep-based backoff since this worker is single-threaded and has no
// futex/eventfd wakeup primitive available across the process boundary.
package policyclient

import (
	"sync/atomic"
	"time"

	"github.com/momentics/sandboxworker/api"
	"github.com/momentics/sandboxworker/control"
	"github.com/momentics/sandboxworker/internal/transport"
	"github.com/momentics/sandboxworker/internal/wire"
)

// Mode selects how probes are resolved.
type Mode int

const (
	// ModeHostMediated defers every decision to the host over the rings.
	ModeHostMediated Mode = iota
	// ModeEmbedded resolves every probe locally against an api.Evaluator,
	// never touching the rings.
	ModeEmbedded
)

func (m Mode) String() string {
	if m == ModeEmbedded {
		return "embedded"
	}
	return "host-mediated"
}

const (
	defaultTimeout      = 5 * time.Second
	defaultPollInterval = time.Millisecond
)

// Client is the single entry point intercept/ calls for every probe kind.
// It is not safe for concurrent use by more than one goroutine; the worker
// is single-threaded cooperative (spec.md §5).
type Client struct {
	mode      Mode
	transport *transport.Transport
	evaluator api.Evaluator
	metrics   *control.WorkerMetrics

	reqID uint32

	timeout      time.Duration
	pollInterval time.Duration
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTimeout overrides the default 5s synchronous probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithPollInterval overrides the default ~1ms poll backoff.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// NewHostMediated returns a Client that defers every probe to the host
// over t.
func NewHostMediated(t *transport.Transport, metrics *control.WorkerMetrics, opts ...Option) *Client {
	c := &Client{
		mode:         ModeHostMediated,
		transport:    t,
		metrics:      metrics,
		timeout:      defaultTimeout,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewEmbedded returns a Client that resolves every probe against ev
// without any transport side effects.
func NewEmbedded(ev api.Evaluator, metrics *control.WorkerMetrics) *Client {
	return &Client{mode: ModeEmbedded, evaluator: ev, metrics: metrics}
}

// Mode reports which resolution strategy this client uses.
func (c *Client) Mode() Mode { return c.mode }

// nextRequestID returns the next worker-local, monotonically increasing
// (mod 2^32) request id (spec.md §3 "Lifecycles").
func (c *Client) nextRequestID() uint32 {
	return atomic.AddUint32(&c.reqID, 1)
}

// Optimistic resolves a read-like probe (spec.md §4.4). In host-mediated
// mode the probe is emitted and the call returns immediately without
// waiting for any reply, and the result is always Allow. In embedded mode
// the probe is resolved locally without blocking and the evaluator's
// decision is returned, which may be Deny; the guarded read-like operations
// in intercept act only on Warn (an audit note) and proceed regardless.
func (c *Client) Optimistic(p api.Probe) api.Decision {
	if c.mode == ModeEmbedded {
		d := c.evaluator.Evaluate(p)
		c.metrics.RecordProbe(p.Kind, d)
		return d
	}
	env := wire.Envelope{Type: probeMsgType(p.Kind), RequestID: c.nextRequestID(), Body: []byte(p.Subject)}
	_ = c.transport.WriteProbe(env) // audit-only: send failure has no bearing on the caller
	c.metrics.RecordProbe(p.Kind, api.Allow)
	return api.Allow
}

// Synchronous resolves a mutating or externally-observable probe (spec.md
// §4.4). In host-mediated mode it blocks for a matching ALLOW/DENY reply,
// polling at pollInterval and denying on timeout or on a transport write
// failure (spec.md §7 "probe becomes deny"). In embedded mode it resolves
// immediately against the local evaluator.
func (c *Client) Synchronous(p api.Probe) api.Decision {
	if c.mode == ModeEmbedded {
		d := c.evaluator.Evaluate(p)
		c.metrics.RecordProbe(p.Kind, d)
		return d
	}

	reqID := c.nextRequestID()
	env := wire.Envelope{Type: probeMsgType(p.Kind), RequestID: reqID, Body: []byte(p.Subject)}
	if err := c.transport.WriteProbe(env); err != nil {
		c.metrics.RecordProbe(p.Kind, api.Deny)
		return api.Deny
	}

	deadline := time.Now().Add(c.timeout)
	for {
		in, err := c.transport.ReadIn()
		if err != nil {
			continue // malformed frame: discard, keep waiting (spec.md §7)
		}
		if in == nil {
			if time.Now().After(deadline) {
				c.metrics.RecordTimeout(p.Kind)
				c.metrics.RecordProbe(p.Kind, api.Deny)
				return api.Deny
			}
			time.Sleep(c.pollInterval)
			continue
		}
		switch {
		case in.Type == wire.MsgCode:
			// A well-behaved host never sends the next CODE frame while a
			// synchronous probe from the current one is outstanding; if it
			// does anyway, this worker drops it rather than act on it out
			// of order.
			continue
		case in.RequestID != reqID:
			continue // stale or out-of-order reply, discard (spec.md §4.2)
		case in.Type == wire.MsgAllow:
			c.metrics.RecordProbe(p.Kind, api.Allow)
			return api.Allow
		case in.Type == wire.MsgDeny:
			c.metrics.RecordProbe(p.Kind, api.Deny)
			return api.Deny
		default:
			continue
		}
	}
}

func probeMsgType(k api.ProbeKind) wire.MsgType {
	switch k {
	case api.ProbeFSRead:
		return wire.MsgFSRead
	case api.ProbeFSWrite:
		return wire.MsgFSWrite
	case api.ProbeNetConnect:
		return wire.MsgNetConnect
	case api.ProbeExec:
		return wire.MsgExec
	case api.ProbeListDir:
		return wire.MsgListDir
	default:
		return wire.MsgFSRead
	}
}
