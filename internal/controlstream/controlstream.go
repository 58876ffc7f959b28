// Package controlstream implements the worker side of the out-of-band
// control stream: a Unix-domain byte stream used only for ASCII readiness
// tokens and newline-delimited JSON state events (spec.md §3, §6).
//
// Connection establishment follows a bounded-retry loop (30 attempts, 100ms
// apart, spec.md §7) in the style of the reconnect loop in
// bobbydeveaux-starbucks-mugs's agent/internal/transport client, though this
// stream dials once at startup rather than reconnecting for the worker's
// lifetime. A broken control stream does not end the worker: DATA, state
// and metrics write failures are logged and ignored, and a CHECK failure is
// returned to the caller, which turns the probe into a deny.
package controlstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	dialAttempts = 30
	dialInterval = 100 * time.Millisecond
)

// Stream is the worker's handle on the control socket.
type Stream struct {
	conn net.Conn
	log  *slog.Logger
}

// Dial connects to the Unix-domain socket at path, retrying up to
// dialAttempts times, dialInterval apart. Failure to connect within the
// bounded window is transport-fatal (spec.md §7).
func Dial(path string, log *slog.Logger) (*Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return &Stream{conn: conn, log: log}, nil
		}
		lastErr = err
		time.Sleep(dialInterval)
	}
	return nil, fmt.Errorf("controlstream: dial %q: %w", path, lastErr)
}

// SendReady emits the one-per-lifetime READY token.
func (s *Stream) SendReady() error { return s.sendToken("READY\n") }

// SendData emits a DATA wakeup: a frame was enqueued to ring B. Per spec.md
// §4.2, a broken pipe here is best-effort and swallowed.
func (s *Stream) SendData() error {
	if err := s.sendToken("DATA\n"); err != nil {
		s.log.Warn("control stream broken pipe on DATA token, ignoring", "err", err)
		return nil
	}
	return nil
}

// SendCheck emits a CHECK wakeup: a probe was posted to ring B. Per spec.md
// §4.2, a broken pipe here propagates (the caller treats it as host-gone).
func (s *Stream) SendCheck() error {
	if err := s.sendToken("CHECK\n"); err != nil {
		s.log.Error("control stream broken pipe on CHECK token, host appears gone", "err", err)
		return err
	}
	return nil
}

func (s *Stream) sendToken(tok string) error {
	_, err := s.conn.Write([]byte(tok))
	return err
}

// stateEvent is the JSON line shape from spec.md §3.
type stateEvent struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// SendState emits one state-event JSON line. Encoding errors are logged and
// swallowed: a malformed diagnostic line must never take down the executor
// loop (spec.md §7 "Code-evaluation failure" — state events are diagnostic,
// not part of the decision path).
func (s *Stream) SendState(event string, data any) {
	line, err := json.Marshal(stateEvent{Type: "state", Event: event, Data: data})
	if err != nil {
		s.log.Error("failed to encode state event", "event", event, "err", err)
		return
	}
	line = append(line, '\n')
	if _, err := s.conn.Write(line); err != nil {
		s.log.Warn("failed to write state event", "event", event, "err", err)
	}
}

// metricsEvent is the JSON line shape for a periodic metrics snapshot
// (SPEC_FULL.md §6 "SANDBOX_METRICS_ADDR") — diagnostic only, never part
// of the decision path, so it gets a distinct "type" from state events
// rather than overloading SendState.
type metricsEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// SendMetrics emits one {"type":"metrics","data":...} JSON line.
func (s *Stream) SendMetrics(snapshot map[string]any) {
	line, err := json.Marshal(metricsEvent{Type: "metrics", Data: snapshot})
	if err != nil {
		s.log.Error("failed to encode metrics snapshot", "err", err)
		return
	}
	line = append(line, '\n')
	if _, err := s.conn.Write(line); err != nil {
		s.log.Warn("failed to write metrics snapshot", "err", err)
	}
}

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }
