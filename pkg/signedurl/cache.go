// Package signedurl caches short-lived attachment URLs behind a freshness
// window. Lookups never hand out a URL that could expire mid-display:
// anything inside the refresh buffer counts as absent. Concurrent fetches
// for one id coalesce into a single upstream call.
package signedurl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"chatfeed/pkg/fetch"
	"chatfeed/pkg/logger"
	"chatfeed/pkg/metrics"
	"chatfeed/pkg/models"
)

// DefaultRefreshBuffer is the lookahead window before expiry beyond which
// an entry is treated as stale.
const DefaultRefreshBuffer = 5 * time.Minute

// Cache maps file ids to signed URLs.
type Cache struct {
	signer fetch.URLSigner
	buffer time.Duration
	now    func() time.Time

	mu       sync.Mutex
	entries  map[string]models.SignedURL
	inflight map[string]struct{}
	sf       singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over the given signer. buffer <= 0 selects
// DefaultRefreshBuffer.
func New(signer fetch.URLSigner, buffer time.Duration, opts ...Option) *Cache {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	c := &Cache{
		signer:   signer,
		buffer:   buffer,
		now:      time.Now,
		entries:  make(map[string]models.SignedURL),
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) freshLocked(e models.SignedURL) bool {
	return time.Duration(e.ExpiresTS-c.now().UnixNano()) > c.buffer
}

// CachedIfFresh returns the cached URL for id if it is still outside the
// refresh buffer. It never fetches.
func (c *Cache) CachedIfFresh(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || !c.freshLocked(e) {
		return "", false
	}
	return e.URL, true
}

// URL returns a fresh signed URL for id, fetching when the cache cannot
// answer. Concurrent callers for the same id share one upstream fetch.
func (c *Cache) URL(ctx context.Context, id string) (string, error) {
	if u, ok := c.CachedIfFresh(id); ok {
		metrics.URLCacheHits.Inc()
		return u, nil
	}
	metrics.URLCacheMisses.Inc()

	v, err, shared := c.sf.Do(id, func() (any, error) {
		c.markInflight(id)
		defer c.clearInflight(id)
		// a racing fetch may have landed between the freshness check and
		// the flight start
		if u, ok := c.CachedIfFresh(id); ok {
			return u, nil
		}
		su, err := c.signer.SignURL(ctx, id)
		if err != nil {
			return "", err
		}
		c.store(su)
		return su.URL, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		metrics.URLFetchesCoalesced.Inc()
	}
	return v.(string), nil
}

// WarmURLs batch-fetches URLs for every id that is neither fresh nor
// already being fetched, and populates the cache with whatever the signer
// returns. A failed batch leaves no partial entries and clears the
// in-flight markers so callers can retry.
func (c *Cache) WarmURLs(ctx context.Context, ids []string) error {
	c.mu.Lock()
	need := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if e, ok := c.entries[id]; ok && c.freshLocked(e) {
			continue
		}
		if _, ok := c.inflight[id]; ok {
			continue
		}
		c.inflight[id] = struct{}{}
		need = append(need, id)
	}
	c.mu.Unlock()
	if len(need) == 0 {
		return nil
	}
	defer func() {
		c.mu.Lock()
		for _, id := range need {
			delete(c.inflight, id)
		}
		c.mu.Unlock()
	}()

	urls, err := c.signer.SignURLs(ctx, need)
	if err != nil {
		logger.Warn("signed_url_batch_failed", "count", len(need), "error", err)
		return err
	}
	for _, su := range urls {
		c.store(su)
	}
	logger.Debug("signed_url_batch_warmed", "requested", len(need), "returned", len(urls))
	return nil
}

// Invalidate drops the entry for id, typically after a downstream load
// failure.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// PurgeStale physically removes entries inside the refresh buffer and
// returns how many were dropped. Lookups already treat them as absent;
// this just keeps the map from growing.
func (c *Cache) PurgeStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !c.freshLocked(e) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of entries held, stale included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) store(su models.SignedURL) {
	if su.FileID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[su.FileID] = su
}

func (c *Cache) markInflight(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[id] = struct{}{}
}

func (c *Cache) clearInflight(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}
