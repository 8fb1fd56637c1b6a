// Package session tracks, per channel, whether the view is tailing the
// live edge or detached onto an arbitrary historical window, and drives
// the pagination fetches that move between the two. Fetches happen outside
// the store boundary; results are applied with the generation snapshotted
// at issue time, so a reset that raced the fetch wins.
package session

import (
	"context"
	"errors"
	"sync"

	"chatfeed/pkg/fetch"
	"chatfeed/pkg/logger"
	"chatfeed/pkg/metrics"
	"chatfeed/pkg/models"
	"chatfeed/pkg/pagestore"
)

// Mode is the per-channel session state.
type Mode string

const (
	// Live tails the newest messages; message.new events land at the
	// window's edge.
	Live Mode = "live"
	// Detached centers on a historical anchor message, decoupled from the
	// live tail.
	Detached Mode = "detached"
)

// ErrUnknownKey is returned for pagination on a key that was never opened.
var ErrUnknownKey = errors.New("session: unknown cache key")

type channelState struct {
	mode   Mode
	anchor string
}

// Controller owns the per-channel mode machine on top of the registry.
type Controller struct {
	mu       sync.Mutex
	reg      *pagestore.Registry
	fetcher  fetch.PageFetcher
	pageSize int
	states   map[string]*channelState
}

// New creates a controller fetching pages of pageSize messages.
func New(reg *pagestore.Registry, fetcher fetch.PageFetcher, pageSize int) *Controller {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Controller{
		reg:      reg,
		fetcher:  fetcher,
		pageSize: pageSize,
		states:   make(map[string]*channelState),
	}
}

// Mode returns the session mode for key; channels start Live.
func (c *Controller) Mode(key string) Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[key]; ok {
		return st.mode
	}
	return Live
}

// Anchor returns the anchor message id while Detached, empty otherwise.
func (c *Controller) Anchor(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[key]; ok && st.mode == Detached {
		return st.anchor
	}
	return ""
}

func (c *Controller) setState(key string, mode Mode, anchor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[key] = &channelState{mode: mode, anchor: anchor}
}

// Open loads the newest page for a key that has no data yet and puts it in
// Live mode. Opening an already-loaded key is a no-op.
func (c *Controller) Open(ctx context.Context, key string) error {
	st := c.reg.Ensure(key)
	metrics.StoresLive.Set(float64(c.reg.Len()))
	if !st.Empty() {
		return nil
	}
	gen := st.Generation()
	page, err := c.fetcher.FetchPage(ctx, fetch.Request{Key: key, Limit: c.pageSize, Direction: fetch.DirBackward})
	if err != nil {
		return err
	}
	if err := st.AppendPage(gen, page, models.PosReplace); err != nil {
		metrics.StaleFetches.Inc()
		return nil
	}
	metrics.PagesAppended.Inc()
	c.setState(key, Live, "")
	logger.Debug("session_opened", "key", key, "count", len(page.Messages))
	return nil
}

// LoadOlder extends the window backward from the oldest held page. A key
// with no older history left is a no-op.
func (c *Controller) LoadOlder(ctx context.Context, key string) error {
	return c.paginate(ctx, key, fetch.DirBackward)
}

// LoadNewer extends the window forward toward the live tail. Only
// meaningful while Detached; in Live mode the push stream keeps the tail
// current.
func (c *Controller) LoadNewer(ctx context.Context, key string) error {
	return c.paginate(ctx, key, fetch.DirForward)
}

func (c *Controller) paginate(ctx context.Context, key string, dir fetch.Direction) error {
	st, ok := c.reg.Get(key)
	if !ok {
		return ErrUnknownKey
	}
	v := st.Read()
	cursor := v.Cursors.Prev
	pos := models.PosOlder
	if dir == fetch.DirForward {
		cursor = v.Cursors.Next
		pos = models.PosNewer
	}
	if cursor == "" {
		// window already reaches this end
		return nil
	}
	gen := st.Generation()
	page, err := c.fetcher.FetchPage(ctx, fetch.Request{Key: key, Cursor: cursor, Limit: c.pageSize, Direction: dir})
	if err != nil {
		return err
	}
	if err := st.AppendPage(gen, page, pos); err != nil {
		metrics.StaleFetches.Inc()
		logger.Debug("paginate_superseded", "key", key, "direction", dir)
		return nil
	}
	metrics.PagesAppended.Inc()
	return nil
}

// JumpToMessage centers the view on id. When id is already in the merged
// window it reports already=true and changes nothing: the caller just
// scrolls. Otherwise the store is replaced with a window fetched around id
// and the channel detaches.
func (c *Controller) JumpToMessage(ctx context.Context, key, id string) (already bool, err error) {
	st := c.reg.Ensure(key)
	metrics.StoresLive.Set(float64(c.reg.Len()))
	if st.Contains(id) {
		return true, nil
	}
	st.Reset(nil)
	gen := st.Generation()
	page, err := c.fetcher.FetchPage(ctx, fetch.Request{Key: key, Cursor: id, Limit: c.pageSize, Direction: fetch.DirAround})
	if err != nil {
		return false, err
	}
	if err := st.AppendPage(gen, page, models.PosReplace); err != nil {
		metrics.StaleFetches.Inc()
		return false, nil
	}
	metrics.PagesAppended.Inc()
	c.setState(key, Detached, id)
	logger.Info("session_detached", "key", key, "anchor", id)
	return false, nil
}

// JumpToLatest unconditionally discards the window and reloads the newest
// page, returning the channel to Live.
func (c *Controller) JumpToLatest(ctx context.Context, key string) error {
	st := c.reg.Ensure(key)
	metrics.StoresLive.Set(float64(c.reg.Len()))
	st.Reset(nil)
	c.setState(key, Live, "")
	gen := st.Generation()
	page, err := c.fetcher.FetchPage(ctx, fetch.Request{Key: key, Limit: c.pageSize, Direction: fetch.DirBackward})
	if err != nil {
		return err
	}
	if err := st.AppendPage(gen, page, models.PosReplace); err != nil {
		metrics.StaleFetches.Inc()
		return nil
	}
	metrics.PagesAppended.Inc()
	logger.Info("session_jumped_to_latest", "key", key)
	return nil
}

// OnReachBottom is called when the view hits its bottom edge. A Detached
// channel reattaches only when no newer page remains to fetch; otherwise
// it stays Detached and the caller should LoadNewer. Returns the resulting
// mode.
func (c *Controller) OnReachBottom(key string) Mode {
	if c.Mode(key) == Live {
		return Live
	}
	st, ok := c.reg.Get(key)
	if !ok {
		c.setState(key, Live, "")
		return Live
	}
	if v := st.Read(); v.Cursors.Next != "" {
		// newer history still unfetched; the bottom of the window is not
		// the live edge
		return Detached
	}
	c.setState(key, Live, "")
	logger.Info("session_reattached", "key", key)
	return Live
}

// Close drops the per-channel state and store (channel switch teardown).
func (c *Controller) Close(key string) {
	c.mu.Lock()
	delete(c.states, key)
	c.mu.Unlock()
	c.reg.Drop(key)
	metrics.StoresLive.Set(float64(c.reg.Len()))
}
