package sched

import (
	"sync"

	"github.com/marquev/sked/errors"
	"github.com/marquev/sked/job"
)

// Registry manages job handlers by name. Thread-safe for concurrent
// registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]job.HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]job.HandlerFunc),
	}
}

// Register adds a handler under the given job name. Registering the
// same name twice is an error.
func (r *Registry) Register(name string, fn job.HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return errors.Newf("handler already registered for name: %s", name)
	}
	r.handlers[name] = fn
	return nil
}

// Get retrieves the handler for a job name. Returns nil if no handler
// is registered.
func (r *Registry) Get(name string) job.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has checks if a handler is registered for a name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Names returns all registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
