package pagestore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"chatfeed/pkg/models"
)

func msg(id string) models.Message {
	return models.Message{ID: id, Channel: "c1", Author: "u1", CreatedTS: 1}
}

func page(ids ...string) models.Page {
	var p models.Page
	for _, id := range ids {
		p.Messages = append(p.Messages, msg(id))
	}
	return p
}

func TestReadMergesSortsAndDedups(t *testing.T) {
	s := newStore("c1", 5)
	require.NoError(t, s.AppendPage(s.Generation(), page("m3", "m4"), models.PosReplace))
	require.NoError(t, s.AppendPage(s.Generation(), page("m1", "m2", "m3"), models.PosOlder))

	v := s.Read()
	var ids []string
	for _, m := range v.Messages {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
}

func TestReadPrefersLatestFetchedCopy(t *testing.T) {
	s := newStore("c1", 5)
	stale := msg("m1")
	stale.Body = "stale"
	require.NoError(t, s.AppendPage(s.Generation(), models.Page{Messages: []models.Message{stale}}, models.PosReplace))

	// an overlapping forward page returns m1 re-edited on the server
	fresh := msg("m1")
	fresh.Body = "fresh"
	fresh.EditedTS = 9
	require.NoError(t, s.AppendPage(s.Generation(), models.Page{Messages: []models.Message{fresh, msg("m2")}}, models.PosNewer))

	v := s.Read()
	require.Len(t, v.Messages, 2)
	require.Equal(t, "fresh", v.Messages[0].Body)
	require.Equal(t, int64(9), v.Messages[0].EditedTS)

	// the same rule holds when the later fetch extends backward
	stale2 := msg("m0")
	stale2.Body = "stale"
	older := models.Page{Messages: []models.Message{stale2}}
	require.NoError(t, s.AppendPage(s.Generation(), older, models.PosOlder))
	fresh2 := msg("m0")
	fresh2.Body = "fresh"
	require.NoError(t, s.AppendPage(s.Generation(), models.Page{Messages: []models.Message{fresh2, msg("m1")}}, models.PosOlder))

	v = s.Read()
	require.Equal(t, "fresh", v.Messages[0].Body)
}

func TestReadCursorsComeFromWindowEnds(t *testing.T) {
	s := newStore("c1", 5)
	newer := page("m5", "m6")
	newer.PrevCursor = "m5"
	newer.NextCursor = "m6"
	require.NoError(t, s.AppendPage(s.Generation(), newer, models.PosReplace))

	older := page("m1", "m2")
	older.PrevCursor = "m1"
	require.NoError(t, s.AppendPage(s.Generation(), older, models.PosOlder))

	v := s.Read()
	require.Equal(t, "m1", v.Cursors.Prev)
	require.Equal(t, "m6", v.Cursors.Next)
}

func TestEvictionDropsFarEnd(t *testing.T) {
	s := newStore("c1", 3)
	require.NoError(t, s.AppendPage(s.Generation(), page("m9"), models.PosReplace))
	for i := 8; i >= 6; i-- {
		require.NoError(t, s.AppendPage(s.Generation(), page(fmt.Sprintf("m%d", i)), models.PosOlder))
	}
	// paginating backward keeps the old end, evicts the newest page
	require.Equal(t, 3, s.PageCount())
	v := s.Read()
	require.Equal(t, "m6", v.Messages[0].ID)
	require.Equal(t, "m8", v.Messages[len(v.Messages)-1].ID)
	require.False(t, s.Contains("m9"))

	// now grow forward: the oldest page goes first
	require.NoError(t, s.AppendPage(s.Generation(), page("m9"), models.PosNewer))
	require.Equal(t, 3, s.PageCount())
	require.False(t, s.Contains("m6"))
	require.True(t, s.Contains("m9"))
}

func TestEvictionKeepsViewDuplicateFree(t *testing.T) {
	s := newStore("c1", 2)
	require.NoError(t, s.AppendPage(s.Generation(), page("m1", "m2"), models.PosReplace))
	require.NoError(t, s.AppendPage(s.Generation(), page("m2", "m3"), models.PosNewer))
	require.NoError(t, s.AppendPage(s.Generation(), page("m3", "m4"), models.PosNewer))

	v := s.Read()
	seen := map[string]bool{}
	for _, m := range v.Messages {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestResetInvalidatesInFlightFetch(t *testing.T) {
	s := newStore("c1", 5)
	gen := s.Generation()
	s.Reset(nil)
	err := s.AppendPage(gen, page("m1"), models.PosReplace)
	require.ErrorIs(t, err, ErrStaleFetch)
	require.True(t, s.Empty())

	// the post-reset generation is accepted
	require.NoError(t, s.AppendPage(s.Generation(), page("m2"), models.PosReplace))
	require.True(t, s.Contains("m2"))
}

func TestResetWithSeed(t *testing.T) {
	s := newStore("c1", 5)
	seed := page("m1", "m2")
	s.Reset(&seed)
	v := s.Read()
	require.Len(t, v.Messages, 2)
}

func TestInsertLiveDedupsAndRequiresPages(t *testing.T) {
	s := newStore("c1", 5)
	require.False(t, s.InsertLive(msg("m1")), "no pages yet")

	require.NoError(t, s.AppendPage(s.Generation(), page("m1", "m2"), models.PosReplace))
	require.False(t, s.InsertLive(msg("m2")), "duplicate id")
	require.True(t, s.InsertLive(msg("m3")))

	v := s.Read()
	require.Equal(t, "m3", v.Messages[len(v.Messages)-1].ID)
}

func TestUpdatePatchesEveryCopy(t *testing.T) {
	s := newStore("c1", 5)
	require.NoError(t, s.AppendPage(s.Generation(), page("m1", "m2"), models.PosReplace))
	require.NoError(t, s.AppendPage(s.Generation(), page("m2", "m3"), models.PosNewer))

	require.True(t, s.Update("m2", func(m *models.Message) { m.Body = "edited" }))
	v := s.Read()
	for _, m := range v.Messages {
		if m.ID == "m2" {
			require.Equal(t, "edited", m.Body)
		}
	}

	require.False(t, s.Update("missing", func(m *models.Message) {}))
}

func TestRemoveMessage(t *testing.T) {
	s := newStore("c1", 5)
	require.NoError(t, s.AppendPage(s.Generation(), page("m1", "m2"), models.PosReplace))
	require.True(t, s.RemoveMessage("m1"))
	require.False(t, s.RemoveMessage("m1"))
	require.False(t, s.Contains("m1"))
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(5)
	_, ok := r.Get("c1")
	require.False(t, ok)

	s := r.Ensure("c1")
	require.Same(t, s, r.Ensure("c1"))
	require.Equal(t, 1, r.Len())

	r.Drop("c1")
	_, ok = r.Get("c1")
	require.False(t, ok)
}

func TestRegistrySummaries(t *testing.T) {
	r := NewRegistry(5)
	r.UpdateSummary("c1", func(s *models.ChannelSummary) { s.UnreadCount = 3 })
	sum, ok := r.Summary("c1")
	require.True(t, ok)
	require.Equal(t, 3, sum.UnreadCount)

	// returned summary is a copy
	sum.UnreadCount = 99
	again, _ := r.Summary("c1")
	require.Equal(t, 3, again.UnreadCount)

	r.InvalidateSummary("c1")
	_, ok = r.Summary("c1")
	require.False(t, ok)
}
