package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatfeed/pkg/fetch"
	"chatfeed/pkg/models"
	"chatfeed/pkg/pagestore"
)

// fakeFetcher records requests and answers them through a pluggable
// respond func.
type fakeFetcher struct {
	mu      sync.Mutex
	reqs    []fetch.Request
	respond func(fetch.Request) (models.Page, error)
}

func (f *fakeFetcher) FetchPage(_ context.Context, req fetch.Request) (models.Page, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.respond == nil {
		return models.Page{}, nil
	}
	return f.respond(req)
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeFetcher) lastReq(t *testing.T) fetch.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.reqs)
	return f.reqs[len(f.reqs)-1]
}

func pageOf(prev, next string, ids ...string) models.Page {
	p := models.Page{PrevCursor: prev, NextCursor: next}
	for _, id := range ids {
		p.Messages = append(p.Messages, models.Message{ID: id, Channel: "c", Author: "a", CreatedTS: 1})
	}
	return p
}

func TestOpenFetchesNewestPage(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(fetch.Request) (models.Page, error) {
		return pageOf("m1", "", "m1", "m2", "m3"), nil
	}}
	c := New(reg, ff, 50)

	require.NoError(t, c.Open(context.Background(), "c"))
	require.Equal(t, Live, c.Mode("c"))

	req := ff.lastReq(t)
	require.Equal(t, fetch.DirBackward, req.Direction)
	require.Empty(t, req.Cursor, "newest page has no cursor")
	require.Equal(t, 50, req.Limit)

	st, ok := reg.Get("c")
	require.True(t, ok)
	require.True(t, st.Contains("m2"))
}

func TestOpenAlreadyLoadedSkipsFetch(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	st := reg.Ensure("c")
	require.NoError(t, st.AppendPage(st.Generation(), pageOf("", "", "m1"), models.PosReplace))

	ff := &fakeFetcher{}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))
	require.Equal(t, 0, ff.calls())
}

func TestLoadOlderUsesPrevCursor(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(req fetch.Request) (models.Page, error) {
		if req.Direction == fetch.DirBackward && req.Cursor == "" {
			return pageOf("m3", "", "m3", "m4"), nil
		}
		return pageOf("m1", "", "m1", "m2"), nil
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))

	require.NoError(t, c.LoadOlder(context.Background(), "c"))
	req := ff.lastReq(t)
	require.Equal(t, fetch.DirBackward, req.Direction)
	require.Equal(t, "m3", req.Cursor)

	st, _ := reg.Get("c")
	require.True(t, st.Contains("m1"))
	require.Equal(t, 2, st.PageCount())
}

func TestLoadOlderAtHistoryStartIsNoop(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(fetch.Request) (models.Page, error) {
		// empty prev cursor: the window already reaches the oldest message
		return pageOf("", "", "m1"), nil
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))

	require.NoError(t, c.LoadOlder(context.Background(), "c"))
	require.Equal(t, 1, ff.calls(), "no fetch without a cursor")
}

func TestPaginateUnknownKey(t *testing.T) {
	c := New(pagestore.NewRegistry(5), &fakeFetcher{}, 50)
	require.ErrorIs(t, c.LoadOlder(context.Background(), "nope"), ErrUnknownKey)
	require.ErrorIs(t, c.LoadNewer(context.Background(), "nope"), ErrUnknownKey)
}

func TestFetchErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	ff := &fakeFetcher{respond: func(fetch.Request) (models.Page, error) {
		return models.Page{}, boom
	}}
	c := New(pagestore.NewRegistry(5), ff, 50)
	require.ErrorIs(t, c.Open(context.Background(), "c"), boom)
}

func TestJumpToMessageAlreadyInWindow(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(fetch.Request) (models.Page, error) {
		return pageOf("m1", "", "m1", "m2"), nil
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))

	already, err := c.JumpToMessage(context.Background(), "c", "m1")
	require.NoError(t, err)
	require.True(t, already)
	require.Equal(t, Live, c.Mode("c"), "no mode change when only scrolling")
	require.Equal(t, 1, ff.calls())
}

func TestJumpToMessageDetaches(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(req fetch.Request) (models.Page, error) {
		if req.Direction == fetch.DirAround {
			return pageOf("m4", "m6", "m4", "m5", "m6"), nil
		}
		return pageOf("m9", "", "m9"), nil
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))

	already, err := c.JumpToMessage(context.Background(), "c", "m5")
	require.NoError(t, err)
	require.False(t, already)
	require.Equal(t, Detached, c.Mode("c"))
	require.Equal(t, "m5", c.Anchor("c"))

	req := ff.lastReq(t)
	require.Equal(t, fetch.DirAround, req.Direction)
	require.Equal(t, "m5", req.Cursor)

	st, _ := reg.Get("c")
	require.False(t, st.Contains("m9"), "old window discarded")
	require.True(t, st.Contains("m5"))
}

func TestJumpSupersededByConcurrentReset(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{}
	ff.respond = func(req fetch.Request) (models.Page, error) {
		if req.Direction == fetch.DirAround {
			// a reset lands while the fetch is in flight
			st, _ := reg.Get("c")
			st.Reset(nil)
			return pageOf("m4", "m6", "m4", "m5", "m6"), nil
		}
		return pageOf("m9", "", "m9"), nil
	}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))

	already, err := c.JumpToMessage(context.Background(), "c", "m5")
	require.NoError(t, err)
	require.False(t, already)

	st, _ := reg.Get("c")
	require.False(t, st.Contains("m5"), "superseded page discarded")
	require.Equal(t, Live, c.Mode("c"), "mode untouched when the fetch lost")
}

func TestJumpToLatestReattaches(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(req fetch.Request) (models.Page, error) {
		if req.Direction == fetch.DirAround {
			return pageOf("m1", "m3", "m1", "m2", "m3"), nil
		}
		return pageOf("m8", "", "m8", "m9"), nil
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))
	_, err := c.JumpToMessage(context.Background(), "c", "m2")
	require.NoError(t, err)
	require.Equal(t, Detached, c.Mode("c"))

	require.NoError(t, c.JumpToLatest(context.Background(), "c"))
	require.Equal(t, Live, c.Mode("c"))
	require.Empty(t, c.Anchor("c"))

	st, _ := reg.Get("c")
	require.True(t, st.Contains("m9"))
	require.False(t, st.Contains("m2"))
}

func TestOnReachBottom(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(req fetch.Request) (models.Page, error) {
		switch {
		case req.Direction == fetch.DirAround:
			return pageOf("m1", "m3", "m1", "m2", "m3"), nil
		case req.Direction == fetch.DirForward:
			// reaches the live edge: no next cursor
			return pageOf("", "", "m4", "m5"), nil
		default:
			return pageOf("m8", "", "m8", "m9"), nil
		}
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))
	require.Equal(t, Live, c.OnReachBottom("c"), "live stays live")

	_, err := c.JumpToMessage(context.Background(), "c", "m2")
	require.NoError(t, err)
	require.Equal(t, Detached, c.OnReachBottom("c"), "newer history still unfetched")

	require.NoError(t, c.LoadNewer(context.Background(), "c"))
	require.Equal(t, Live, c.OnReachBottom("c"), "reattaches at the true live edge")
	require.Equal(t, Live, c.Mode("c"))
}

func TestCloseDropsStateAndStore(t *testing.T) {
	reg := pagestore.NewRegistry(5)
	ff := &fakeFetcher{respond: func(fetch.Request) (models.Page, error) {
		return pageOf("", "", "m1"), nil
	}}
	c := New(reg, ff, 50)
	require.NoError(t, c.Open(context.Background(), "c"))

	c.Close("c")
	_, ok := reg.Get("c")
	require.False(t, ok)
	require.Equal(t, Live, c.Mode("c"), "fresh default after close")
}
