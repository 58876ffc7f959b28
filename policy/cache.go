package policy

import (
	"os"
	"sync"
	"time"
)

// CachingLoader memoizes a parsed Ruleset keyed by the policy file's
// modification time, invalidating on any mtime change (spec.md §4.3
// "Caching"). Adapted from the snapshot/merge discipline of the teacher's
// control.ConfigStore, generalized from an in-memory key/value map to a
// single mtime-keyed cache entry.
type CachingLoader struct {
	path string

	mu       sync.RWMutex
	mtime    time.Time
	ruleset  *Ruleset
	compiled *Compiled
}

// NewCachingLoader returns a loader bound to path. No file is read until
// the first call to Load.
func NewCachingLoader(path string) *CachingLoader {
	return &CachingLoader{path: path}
}

// Load returns the cached, precompiled evaluator for path if its mtime has
// not changed since the last load; otherwise it re-reads and re-parses the
// file.
func (l *CachingLoader) Load() (*Compiled, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, err
	}
	mtime := info.ModTime()

	l.mu.RLock()
	if l.compiled != nil && mtime.Equal(l.mtime) {
		c := l.compiled
		l.mu.RUnlock()
		return c, nil
	}
	l.mu.RUnlock()

	rs, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	compiled := Compile(rs)

	l.mu.Lock()
	l.mtime = mtime
	l.ruleset = rs
	l.compiled = compiled
	l.mu.Unlock()

	return compiled, nil
}

// Invalidate drops the cached entry, forcing the next Load to re-read the
// file regardless of mtime. Registered with control.ReloadHooks by
// cmd/sandboxworker so an operator-triggered reload always takes effect.
func (l *CachingLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mtime = time.Time{}
	l.ruleset = nil
	l.compiled = nil
}
