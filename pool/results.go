package pool

import "sync"

// Entry is one keyed outcome. Error is empty on success.
type Entry[V any] struct {
	Value V      `json:"value"`
	Error string `json:"error"`
}

// Results collects one entry per key from a concurrent batch
type Results[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]Entry[V]
}

func NewResults[K comparable, V any]() *Results[K, V] {
	return &Results[K, V]{entries: make(map[K]Entry[V])}
}

// Put records a success
func (r *Results[K, V]) Put(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = Entry[V]{Value: value}
}

// PutFallback records a failure with its fallback value
func (r *Results[K, V]) PutFallback(key K, fallback V, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = Entry[V]{Value: fallback, Error: errMsg}
}

// Ensure adds a fallback entry for every key that has none
func (r *Results[K, V]) Ensure(keys []K, fallback V, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if _, ok := r.entries[k]; !ok {
			r.entries[k] = Entry[V]{Value: fallback, Error: errMsg}
		}
	}
}

// Get returns the entry for key
func (r *Results[K, V]) Get(key K) (Entry[V], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

func (r *Results[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Map returns a copy of the collected entries
func (r *Results[K, V]) Map() map[K]Entry[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[K]Entry[V], len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}
