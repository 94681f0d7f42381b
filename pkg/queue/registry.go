package queue

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry maps job-type names to handlers. It is populated at process
// bootstrap and is effectively read-only afterwards; registration uses an
// exclusive lock only because tests and hot-reload setups re-register.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register associates a handler with its name. Registering the same name
// twice replaces the previous handler (last write wins). This is intentional:
// it supports test overrides and hot reload, so callers must not rely on
// duplicate registration failing.
func (r *Registry) Register(handlers ...Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range handlers {
		if h == nil {
			continue
		}
		r.handlers[h.Name()] = h
	}
}

// Get returns the handler for the given job-type name or ErrHandlerNotFound.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
	}
	return h, nil
}

// Has reports whether a handler is registered for the given name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.handlers[name]
	return ok
}

// List returns the registered job-type names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered handlers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers)
}

// ValidateRequired fails fast at bootstrap if any of the given job-type
// names lacks a handler, preventing silent drops at runtime.
func (r *Registry) ValidateRequired(names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, name := range names {
		if _, ok := r.handlers[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, strings.Join(missing, ", "))
	}
	return nil
}
