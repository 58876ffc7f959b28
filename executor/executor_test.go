package executor

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/sandboxworker/api"
	"github.com/momentics/sandboxworker/control"
	"github.com/momentics/sandboxworker/internal/controlstream"
	"github.com/momentics/sandboxworker/internal/lang"
	"github.com/momentics/sandboxworker/internal/ringbuf"
	"github.com/momentics/sandboxworker/internal/transport"
	"github.com/momentics/sandboxworker/internal/wire"
	"github.com/momentics/sandboxworker/intercept"
)

type allowDecider struct{}

func (allowDecider) Optimistic(api.Probe) api.Decision  { return api.Allow }
func (allowDecider) Synchronous(api.Probe) api.Decision { return api.Allow }

func newTestRings(t *testing.T) (ringA, ringB *ringbuf.Ring) {
	t.Helper()
	const cap = 4096
	memA := make([]byte, ringbuf.HeaderSize+cap)
	memB := make([]byte, ringbuf.HeaderSize+cap)
	ringbuf.InitHeader(memA, cap)
	ringbuf.InitHeader(memB, cap)
	return ringbuf.New(memA), ringbuf.New(memB)
}

func newTestControlStream(t *testing.T) (*controlstream.Stream, net.Conn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "control.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	s, err := controlstream.Dial(path, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("server never accepted")
	}
	t.Cleanup(func() { server.Close() })
	return s, server
}

func TestExecutorRunsCodeFrameAndCapturesOutput(t *testing.T) {
	ringA, ringB := newTestRings(t)
	ctl, serverConn := newTestControlStream(t)

	tr := transport.New(ringA, ringB, ctl)
	guard := intercept.New(allowDecider{}, "")
	ev := lang.NewEvaluator(guard, nil)
	metrics := control.NewWorkerMetrics(control.NewMetricsRegistry())
	ex := New(tr, ctl, ev, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ex.Run(ctx) }()

	// Host side: write a CODE frame directly onto ring A.
	env := wire.Envelope{Type: wire.MsgCode, RequestID: 0, Body: []byte(`print("hello")`)}
	if n := ringA.Write(env.Encode()); n == 0 {
		t.Fatal("ring A write failed")
	}

	// Drain the control stream's token lines until we see a DATA token
	// (emitted when the captured "hello\n" is flushed to ring B).
	reader := bufio.NewReader(serverConn)
	sawData := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		serverConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		line, err := reader.ReadString('\n')
		if err != nil {
			continue
		}
		if line == "DATA\n" {
			sawData = true
			break
		}
	}
	if !sawData {
		t.Fatal("never observed a DATA token for captured output")
	}

	payload := ringB.Read()
	if payload == nil {
		t.Fatal("expected a STDOUT frame on ring B")
	}
	outEnv, err := wire.Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if outEnv.Type != wire.MsgStdout {
		t.Fatalf("envelope type = %v, want STDOUT", outEnv.Type)
	}
	if string(outEnv.Body) != "hello\n" {
		t.Fatalf("captured output = %q, want %q", outEnv.Body, "hello\n")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor did not stop after context cancellation")
	}
}

func TestExecutorDiscardsNonCodeFrames(t *testing.T) {
	ringA, ringB := newTestRings(t)
	ctl, _ := newTestControlStream(t)

	tr := transport.New(ringA, ringB, ctl)
	guard := intercept.New(allowDecider{}, "")
	ev := lang.NewEvaluator(guard, nil)
	metrics := control.NewWorkerMetrics(control.NewMetricsRegistry())
	ex := New(tr, ctl, ev, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ex.Run(ctx) }()

	stray := wire.Envelope{Type: wire.MsgAllow, RequestID: 7}
	ringA.Write(stray.Encode())

	time.Sleep(50 * time.Millisecond)
	if payload := ringB.Read(); payload != nil {
		t.Fatalf("unexpected output for a discarded non-CODE frame: %q", payload)
	}

	cancel()
	<-done
}
