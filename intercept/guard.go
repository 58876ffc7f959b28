// Package intercept is the capability-API seam (spec.md §9 "In-process
// interception") that stands in for the original implementation's
// monkey-patched builtins.open/os.listdir/subprocess.run/
// socket.create_connection. Instead of rewriting process-wide globals, it
// exposes a small set of guarded operations that internal/lang's builtin
// functions call through; nothing else in the evaluated code's reach can
// acquire a resource unguarded.
//
// Grounded on the teacher's trait-object style interception points in
// internal/concurrency (operations are swapped behind an interface rather
// than patched in place) and on original_source/src/worker.py's
// guarded_open/guarded_listdir/guarded_run/guarded_create_connection for
// the exact probe-kind-per-operation and permission-derivation rules.
package intercept

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/momentics/sandboxworker/api"
)

// Decider is the subset of policyclient.Client each guarded operation
// needs. Accepting the interface rather than the concrete type keeps this
// package testable without a real transport or ring pair.
type Decider interface {
	Optimistic(api.Probe) api.Decision
	Synchronous(api.Probe) api.Decision
}

// PermissionError is the failure surfaced to evaluated code when a probe
// resolves to deny (spec.md §4.5 "Denial semantics"). Its message mirrors
// the original worker's f"policy denied {op}: {subject}" wording so that
// internal/lang's exception formatting needs no per-kind special-casing.
type PermissionError struct {
	Op      string
	Subject string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("policy denied %s: %s", e.Op, e.Subject)
}

// Guard is the runtime-owned value passed to every interception site
// (spec.md §9 "Global state" — explicit, not a true global). One Guard is
// constructed per worker lifetime and shared by the persistent execution
// context across every frame.
type Guard struct {
	client     Decider
	policyPath string // absolute; empty disables self-exemption

	// audit receives warn-decision audit notes (spec.md scenario 4).
	// lang.Evaluator.SetOutput, which the executor calls before each
	// evaluation, points this at the active frame's capture sink, mirroring
	// the original's sys.stdout swap.
	audit io.Writer
}

// New returns a Guard that resolves probes through client. policyPath, if
// non-empty, is resolved to an absolute path once and used for the
// self-exemption check on every open.
func New(client Decider, policyPath string) *Guard {
	abs := ""
	if policyPath != "" {
		if a, err := filepath.Abs(policyPath); err == nil {
			abs = a
		} else {
			abs = policyPath
		}
	}
	return &Guard{client: client, policyPath: abs, audit: io.Discard}
}

// SetAuditSink directs warn-decision audit text to w for the duration of
// the current frame.
func (g *Guard) SetAuditSink(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	g.audit = w
}

func (g *Guard) auditf(format string, args ...any) {
	fmt.Fprintf(g.audit, format, args...)
}

func isWriteMode(mode string) bool {
	for _, c := range []byte("wa+x") {
		if strings.IndexByte(mode, c) >= 0 {
			return true
		}
	}
	return false
}

// Open performs a guarded file open (spec.md §4.5 "File open"). mode uses
// the same character vocabulary as the original Python open(): any of
// w a + x means a write-capable open. A path equal to the active policy
// document's absolute path bypasses interception entirely (spec.md §4.5
// "Self-exemption").
func (g *Guard) Open(path string, mode string) (*os.File, error) {
	if g.isSelfExempt(path) {
		return osOpen(path, mode)
	}

	if isWriteMode(mode) {
		d := g.client.Synchronous(api.Probe{Kind: api.ProbeFSWrite, Subject: path})
		if d == api.Deny {
			return nil, &PermissionError{Op: "write", Subject: path}
		}
		if d == api.Warn {
			g.auditf("[policy] warn: write %s\n", path)
		}
	} else {
		d := g.client.Optimistic(api.Probe{Kind: api.ProbeFSRead, Subject: path})
		if d == api.Warn {
			g.auditf("[policy] warn: read %s\n", path)
		}
	}
	return osOpen(path, mode)
}

func (g *Guard) isSelfExempt(path string) bool {
	if g.policyPath == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return abs == g.policyPath
}

// osOpen translates a Python-style mode string into the stdlib open flags
// this interpreter needs.
func osOpen(path, mode string) (*os.File, error) {
	flag := os.O_RDONLY
	switch {
	case strings.Contains(mode, "a"):
		flag = os.O_APPEND | os.O_CREATE | os.O_WRONLY
	case strings.Contains(mode, "x"):
		flag = os.O_CREATE | os.O_EXCL | os.O_WRONLY
	case strings.ContainsAny(mode, "w"):
		flag = os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	case strings.Contains(mode, "+"):
		flag = os.O_RDWR
	}
	return os.OpenFile(path, flag, 0o644)
}

// ListDir performs a guarded directory listing (spec.md §4.5 "Directory
// listing"). Always optimistic; never denies.
func (g *Guard) ListDir(path string) ([]os.DirEntry, error) {
	if path == "" {
		path = "."
	}
	d := g.client.Optimistic(api.Probe{Kind: api.ProbeListDir, Subject: path})
	if d == api.Warn {
		g.auditf("[policy] warn: listdir %s\n", path)
	}
	return os.ReadDir(path)
}

// Run performs a guarded subprocess launch from an argv sequence (spec.md
// §4.5 "Subprocess launch"). argv must be non-empty; the probed subject is
// argv[0].
func (g *Guard) Run(argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("intercept: empty argv")
	}
	return g.run(argv[0], argv)
}

// RunLine performs a guarded subprocess launch from a single command-line
// string, whitespace-splitting it to find the probed subject — the
// fallback path the original took when the caller passed a command as a
// string rather than a sequence.
func (g *Guard) RunLine(cmdline string) ([]byte, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("intercept: empty command line")
	}
	return g.run(fields[0], []string{"sh", "-c", cmdline})
}

func (g *Guard) run(subject string, argv []string) ([]byte, error) {
	d := g.client.Synchronous(api.Probe{Kind: api.ProbeExec, Subject: subject})
	if d == api.Deny {
		return nil, &PermissionError{Op: "exec", Subject: subject}
	}
	if d == api.Warn {
		g.auditf("[policy] warn: exec %s\n", subject)
	}
	return exec.Command(argv[0], argv[1:]...).CombinedOutput()
}

// Connect performs a guarded outbound TCP dial (spec.md §4.5 "Outbound TCP
// connect"). hostport is the literal "host:port" probe subject.
func (g *Guard) Connect(hostport string) (net.Conn, error) {
	d := g.client.Synchronous(api.Probe{Kind: api.ProbeNetConnect, Subject: hostport})
	if d == api.Deny {
		return nil, &PermissionError{Op: "net", Subject: hostport}
	}
	if d == api.Warn {
		g.auditf("[policy] warn: connect %s\n", hostport)
	}
	return net.Dial("tcp", hostport)
}
