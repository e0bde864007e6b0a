package generate

import (
	"fmt"
	"sort"
)

// Router maps engine names to backends with a fallback default.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a router whose fallback engine is used when the requested one is missing.
func NewRouter[T any](fallback string) *Router[T] {
	return &Router[T]{backends: make(map[string]T), fallback: fallback}
}

// Register adds or replaces the backend for engine.
func (r *Router[T]) Register(engine string, backend T) {
	r.backends[engine] = backend
}

// Route returns the backend for engine and the name that actually served it.
func (r *Router[T]) Route(engine string) (T, string, error) {
	if backend, ok := r.backends[engine]; ok {
		return backend, engine, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, r.fallback, nil
	}
	var zero T
	return zero, "", fmt.Errorf("no backend for engine %q", engine)
}

func (r *Router[T]) Has(engine string) bool {
	_, ok := r.backends[engine]
	return ok
}

// Engines returns the registered engine names, sorted.
func (r *Router[T]) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
