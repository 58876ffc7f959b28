package control

import "github.com/momentics/sandboxworker/api"

// WorkerMetrics layers the counters the policy client and executor record
// on top of a generic MetricsRegistry: probes by kind and decision, probe
// timeouts, and frames/exceptions seen by the executor loop.
type WorkerMetrics struct {
	reg *MetricsRegistry
}

// NewWorkerMetrics wraps reg. A nil reg is valid: all Record* calls become
// no-ops, so tests can construct a Client without a registry.
func NewWorkerMetrics(reg *MetricsRegistry) *WorkerMetrics {
	return &WorkerMetrics{reg: reg}
}

// RecordProbe increments the counter for one (kind, decision) pair.
func (m *WorkerMetrics) RecordProbe(kind api.ProbeKind, d api.Decision) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Incr("probe."+kind.String()+"."+d.String(), 1)
}

// RecordTimeout increments the synchronous-probe-timeout counter for kind.
func (m *WorkerMetrics) RecordTimeout(kind api.ProbeKind) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Incr("probe."+kind.String()+".timeout", 1)
}

// RecordFrame increments the frames-processed counter.
func (m *WorkerMetrics) RecordFrame() {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Incr("executor.frames", 1)
}

// Snapshot returns the current counters for diagnostic reporting.
func (m *WorkerMetrics) Snapshot() map[string]any {
	if m == nil || m.reg == nil {
		return map[string]any{}
	}
	return m.reg.GetSnapshot()
}

// RecordException increments the executor exception counter.
func (m *WorkerMetrics) RecordException() {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Incr("executor.exceptions", 1)
}
