// Package registry provides a generic, mutex-guarded named-item registry,
// adapted from the teacher's pkg/registry/registry.go. It backs the
// typed-worker lookup and the per-agent thinking machines in
// internal/engine.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe map of name -> T.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// New creates an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register adds item under name. It fails if name is empty or already
// taken — callers that want upsert semantics should Remove first.
func (r *Registry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("registry: name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("registry: item %q already registered", name)
	}
	r.items[name] = item
	return nil
}

// GetOrCreate returns the existing item for name, or calls create,
// stores, and returns its result. The engine uses it to lazily create one
// thinking machine per agent id.
func (r *Registry[T]) GetOrCreate(name string, create func() T) T {
	r.mu.RLock()
	item, exists := r.items[name]
	r.mu.RUnlock()
	if exists {
		return item
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if item, exists = r.items[name]; exists {
		return item
	}
	item = create()
	r.items[name] = item
	return item
}

// Get returns the item for name and whether it was found.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, exists := r.items[name]
	return item, exists
}

// List returns every registered item in no particular order.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]T, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items
}

// Names returns every registered name, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove deletes name. It is a no-op if name was never registered.
func (r *Registry[T]) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, name)
}

// Count returns the number of registered items.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
