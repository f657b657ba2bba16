package messagestore

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Registry holds one Store per execution id, bounded by an LRU so a node
// that has run many short-lived executions doesn't retain their stores
// forever; eviction here is fine because a finished execution's log is
// already durable through the batcher (spec §4.E), unlike eviction inside
// a single Store which would lose not-yet-batched data.
type Registry struct {
	cache *lru.Cache[string, *Store]
}

// NewRegistry builds a Registry capped at maxEntries cached stores.
func NewRegistry(maxEntries int) (*Registry, error) {
	cache, err := lru.New[string, *Store](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Registry{cache: cache}, nil
}

// GetOrCreate returns the execution's Store, creating one with maxBytes
// capacity on first access.
func (r *Registry) GetOrCreate(executionID string, maxBytes int) *Store {
	if s, ok := r.cache.Get(executionID); ok {
		return s
	}
	s := New(maxBytes)
	r.cache.Add(executionID, s)
	return s
}

// Get returns the execution's Store if present.
func (r *Registry) Get(executionID string) (*Store, bool) {
	return r.cache.Get(executionID)
}

// Remove drops the execution's Store from the registry.
func (r *Registry) Remove(executionID string) {
	r.cache.Remove(executionID)
}
