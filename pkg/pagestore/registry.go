package pagestore

import (
	"sync"

	"chatfeed/pkg/models"
)

// Registry maps cache keys to their stores and owns the per-channel summary
// records. Stores are created explicitly by the session layer; events for
// keys that were never opened find no store and are dropped upstream.
type Registry struct {
	mu        sync.RWMutex
	maxPages  int
	stores    map[string]*Store
	summaries map[string]*models.ChannelSummary
}

// NewRegistry creates an empty registry. maxPages bounds every store;
// zero means DefaultMaxPages.
func NewRegistry(maxPages int) *Registry {
	return &Registry{
		maxPages:  maxPages,
		stores:    make(map[string]*Store),
		summaries: make(map[string]*models.ChannelSummary),
	}
}

// Get returns the store for key if one was ever created.
func (r *Registry) Get(key string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[key]
	return s, ok
}

// Ensure returns the store for key, creating it when absent.
func (r *Registry) Ensure(key string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[key]; ok {
		return s
	}
	s := newStore(key, r.maxPages)
	r.stores[key] = s
	return s
}

// Drop removes the store for key outright (channel switch teardown).
func (r *Registry) Drop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, key)
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Keys returns the keys of all live stores.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for k := range r.stores {
		out = append(out, k)
	}
	return out
}

// Summary returns a copy of the summary record for a channel.
func (r *Registry) Summary(key string) (models.ChannelSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summaries[key]
	if !ok {
		return models.ChannelSummary{}, false
	}
	cp := *s
	cp.Members = append([]string(nil), s.Members...)
	return cp, true
}

// UpdateSummary applies fn to the summary record for key, creating the
// record when absent. Summaries live independently of page stores: the
// channel list is known before any feed is opened.
func (r *Registry) UpdateSummary(key string, fn func(*models.ChannelSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[key]
	if !ok {
		s = &models.ChannelSummary{ID: key}
		r.summaries[key] = s
	}
	fn(s)
}

// InvalidateSummary drops the summary record for key.
func (r *Registry) InvalidateSummary(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.summaries, key)
}
