// control/hotreload.go
//
// Hooks and interfaces for hot-reload-compatible components. The worker
// binary itself is never hot-reloaded (spec.md §1 "Non-goals"); this is
// used solely to re-read the policy ruleset on an operator signal without
// restarting the worker process.
package control

import "sync"

// ReloadHooks collects reload listeners registered by independent
// components (currently just policy.CachingLoader.Invalidate) and
// dispatches them together.
type ReloadHooks struct {
	mu    sync.Mutex
	hooks []func()
}

// NewReloadHooks returns an empty hook set.
func NewReloadHooks() *ReloadHooks {
	return &ReloadHooks{}
}

// Register adds a component reload listener.
func (r *ReloadHooks) Register(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Trigger dispatches every registered hook synchronously, in registration
// order. Synchronous dispatch keeps a SIGHUP-triggered policy reload
// ordered with respect to the next probe the executor evaluates.
func (r *ReloadHooks) Trigger() {
	r.mu.Lock()
	hooks := make([]func(), len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
