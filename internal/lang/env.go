package lang

import (
	"os"
	"sync"
)

// Context is the persistent name-to-value namespace that survives across
// code frames within one worker lifetime (spec.md §3 "Execution context").
// It also owns the handle table for values (open files) that cannot be
// represented as plain Go data and so are threaded through by integer
// handle, the same way the guarded open/close pair must hand back
// something the next statement in the same frame — or a later frame — can
// reference.
type Context struct {
	mu     sync.Mutex
	vars   map[string]any
	files  map[int]*os.File
	nextFH int
}

// NewContext returns a fresh execution context with __name__ bound to
// "__main__" (spec.md §3).
func NewContext() *Context {
	return &Context{
		vars:  map[string]any{"__name__": "__main__"},
		files: make(map[int]*os.File),
	}
}

// Get returns the value bound to name and whether it was found.
func (c *Context) Get(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[name]
	return v, ok
}

// Set binds name to value, visible to every later frame (spec.md §3).
func (c *Context) Set(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[name] = value
}

// registerFile stores f under a fresh handle and returns it.
func (c *Context) registerFile(f *os.File) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextFH++
	h := c.nextFH
	c.files[h] = f
	return h
}

// file resolves a handle to its *os.File.
func (c *Context) file(h int) (*os.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[h]
	return f, ok
}

// closeFile closes and forgets the handle.
func (c *Context) closeFile(h int) error {
	c.mu.Lock()
	f, ok := c.files[h]
	delete(c.files, h)
	c.mu.Unlock()
	if !ok {
		return &EvalError{TypeName: "ValueError", Message: "close of unknown file handle"}
	}
	return f.Close()
}
