// Package pagestore holds the client-side message window for one cache key
// (a channel feed or a thread feed): a bounded sequence of fetched pages
// plus the cursors to extend it. Reads always return a merged, sorted,
// deduplicated view; the merge is structurally incapable of emitting the
// same id twice.
package pagestore

import (
	"errors"
	"sort"
	"sync"

	"chatfeed/pkg/models"
)

// ErrStaleFetch is returned when a page arrives for a generation that a
// Reset has since invalidated; the result must be discarded.
var ErrStaleFetch = errors.New("pagestore: fetch superseded by reset")

// DefaultMaxPages bounds the pages held per key before far-end eviction.
const DefaultMaxPages = 5

// pageEntry is one held page tagged with the order it was appended in, so
// the merge can prefer the most recently fetched copy of an id.
type pageEntry struct {
	models.Page
	seq uint64
}

// Store owns the fetched pages for one cache key. All methods are safe for
// concurrent use; mutations are synchronous and never block on I/O.
type Store struct {
	mu       sync.RWMutex
	key      string
	maxPages int
	// pages ordered oldest to newest by message position, not append order
	pages []*pageEntry
	// lastPos remembers which end grew most recently; eviction drops the
	// page farthest from it
	lastPos models.Position
	gen     uint64
	nextSeq uint64
}

func newStore(key string, maxPages int) *Store {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Store{key: key, maxPages: maxPages, lastPos: models.PosNewer}
}

// Key returns the cache key this store belongs to.
func (s *Store) Key() string { return s.key }

// Generation returns the current reset generation. Callers snapshot it
// before issuing a fetch and pass it back to AppendPage so results that
// raced a Reset are dropped.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Reset discards all pages, bumps the generation, and optionally seeds the
// window with one page.
func (s *Store) Reset(seed *models.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.pages = nil
	s.lastPos = models.PosNewer
	if seed != nil {
		s.pages = []*pageEntry{s.entryFor(seed)}
	}
}

func (s *Store) entryFor(p *models.Page) *pageEntry {
	e := &pageEntry{Page: *clonePage(p), seq: s.nextSeq}
	s.nextSeq++
	return e
}

// AppendPage adds a fetched page at the given position. gen must be the
// generation snapshotted when the fetch was issued; a mismatch returns
// ErrStaleFetch and leaves the store untouched.
func (s *Store) AppendPage(gen uint64, page models.Page, pos models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return ErrStaleFetch
	}
	p := s.entryFor(&page)
	switch pos {
	case models.PosReplace:
		s.pages = []*pageEntry{p}
	case models.PosOlder:
		s.pages = append([]*pageEntry{p}, s.pages...)
	case models.PosNewer:
		s.pages = append(s.pages, p)
	default:
		return errors.New("pagestore: unknown page position")
	}
	s.lastPos = pos
	s.evictLocked()
	return nil
}

// evictLocked drops pages beyond maxPages from the end opposite the most
// recent append, so the window slides with the reading direction.
func (s *Store) evictLocked() {
	for len(s.pages) > s.maxPages {
		if s.lastPos == models.PosOlder {
			// growing toward older history; drop the newest page
			s.pages = s.pages[:len(s.pages)-1]
		} else {
			s.pages = s.pages[1:]
		}
	}
}

// View is the merged read surface of a store.
type View struct {
	Messages []models.Message
	Cursors  models.Cursors
}

// Read merges all held pages into one ascending, deduplicated sequence.
// When overlapping pages disagree about an id, the copy from the most
// recently appended page wins: a later fetch carries fresher server state
// (an edit made while the client was detached, say) than a cached copy.
func (s *Store) Read() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int
	for _, p := range s.pages {
		total += len(p.Messages)
	}
	type winner struct {
		m   models.Message
		seq uint64
	}
	best := make(map[string]winner, total)
	for _, p := range s.pages {
		for _, m := range p.Messages {
			if w, ok := best[m.ID]; ok && w.seq > p.seq {
				continue
			}
			best[m.ID] = winner{m: m, seq: p.seq}
		}
	}
	out := make([]models.Message, 0, len(best))
	for _, w := range best {
		out = append(out, w.m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	v := View{Messages: out}
	if len(s.pages) > 0 {
		v.Cursors.Prev = s.pages[0].PrevCursor
		v.Cursors.Next = s.pages[len(s.pages)-1].NextCursor
	}
	return v
}

// Contains reports whether id is present in any held page.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pages {
		for i := range p.Messages {
			if p.Messages[i].ID == id {
				return p.Messages[i], true
			}
		}
	}
	return models.Message{}, false
}

// Empty reports whether the store holds no pages at all. A store with no
// pages has no data yet, and incoming events for it are dropped rather
// than buffered.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages) == 0
}

// InsertLive adds a message at the live edge (the newest page). Returns
// false when the store holds no pages or the id is already present; the
// caller treats that as a duplicate or an unloaded key.
func (s *Store) InsertLive(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pages) == 0 {
		return false
	}
	if s.findLocked(m.ID) {
		return false
	}
	tail := s.pages[len(s.pages)-1]
	tail.Messages = append(tail.Messages, m)
	// live ids normally sort last already; keep the page ordered when an
	// out-of-order id slips in
	if n := len(tail.Messages); n > 1 && tail.Messages[n-2].ID > m.ID {
		sort.SliceStable(tail.Messages, func(i, j int) bool {
			return tail.Messages[i].ID < tail.Messages[j].ID
		})
	}
	return true
}

// Update applies fn to every cached copy of id. Returns false when the id
// is not present anywhere (stale reference: the event is dropped).
func (s *Store) Update(id string, fn func(*models.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, p := range s.pages {
		for i := range p.Messages {
			if p.Messages[i].ID == id {
				fn(&p.Messages[i])
				found = true
			}
		}
	}
	return found
}

// PatchMessage shallow-merges a partial patch into every cached copy of id.
func (s *Store) PatchMessage(id string, patch models.MessagePatch) bool {
	return s.Update(id, func(m *models.Message) { patch.Apply(m) })
}

// RemoveMessage removes id from every page that holds it. Emptied pages are
// kept so their cursors stay usable.
func (s *Store) RemoveMessage(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, p := range s.pages {
		kept := p.Messages[:0]
		for _, m := range p.Messages {
			if m.ID == id {
				found = true
				continue
			}
			kept = append(kept, m)
		}
		p.Messages = kept
	}
	return found
}

// PageCount returns the number of pages currently held.
func (s *Store) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

func (s *Store) findLocked(id string) bool {
	for _, p := range s.pages {
		for i := range p.Messages {
			if p.Messages[i].ID == id {
				return true
			}
		}
	}
	return false
}

func clonePage(p *models.Page) *models.Page {
	cp := &models.Page{
		Messages:   append([]models.Message(nil), p.Messages...),
		PrevCursor: p.PrevCursor,
		NextCursor: p.NextCursor,
	}
	sort.SliceStable(cp.Messages, func(i, j int) bool {
		return cp.Messages[i].ID < cp.Messages[j].ID
	})
	return cp
}
