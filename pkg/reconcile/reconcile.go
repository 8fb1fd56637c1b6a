// Package reconcile applies mutation events to the page stores. Push
// events and locally-issued optimistic mutations enter through the same
// Apply call, so one set of idempotency rules covers both: replaying any
// event leaves the stores exactly as a single application would.
package reconcile

import (
	"chatfeed/pkg/events"
	"chatfeed/pkg/logger"
	"chatfeed/pkg/metrics"
	"chatfeed/pkg/models"
	"chatfeed/pkg/pagestore"
)

// Sink receives the reconciled message state for write-behind persistence.
// The archive implements it; a nil sink disables the tee.
type Sink interface {
	SaveMessage(m models.Message) error
	DeleteMessage(channel, id string) error
}

// Reconciler mutates the registry's stores according to the event rules.
type Reconciler struct {
	reg  *pagestore.Registry
	self string
	sink Sink
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSink tees reconciled messages into a persistence sink.
func WithSink(s Sink) Option {
	return func(r *Reconciler) { r.sink = s }
}

// New creates a reconciler. selfUser is the local user id; messages
// authored by it never count as unread.
func New(reg *pagestore.Registry, selfUser string, opts ...Option) *Reconciler {
	r := &Reconciler{reg: reg, self: selfUser}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Apply dispatches one event to its handler. The union is closed; an
// unknown variant can only appear through a bug in the events package.
func (r *Reconciler) Apply(ev events.Event) {
	switch e := ev.(type) {
	case events.MessageNew:
		r.applyMessageNew(e)
	case events.MessageUpdated:
		r.applyMessageUpdated(e)
	case events.MessageDeleted:
		r.applyMessageDeleted(e)
	case events.ReactionAdded:
		r.applyReactionAdded(e)
	case events.ReactionRemoved:
		r.applyReactionRemoved(e)
	case events.ChannelCreated:
		r.applyChannelCreated(e)
	case events.ChannelUpdated:
		r.applyChannelUpdated(e)
	case events.ChannelArchived:
		r.applyChannelArchived(e)
	case events.ChannelMemberAdded:
		r.applyChannelMemberAdded(e)
	case events.ChannelMemberRemoved:
		r.applyChannelMemberRemoved(e)
	case events.ChannelRead:
		r.applyChannelRead(e)
	default:
		logger.Warn("apply_unknown_event", "type", ev.EventType())
	}
}

func (r *Reconciler) applyMessageNew(ev events.MessageNew) {
	m := ev.Message
	if m.ThreadParent == "" {
		if r.insertChannel(m) {
			metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
			r.teeSave(m)
		}
		return
	}

	// Threaded reply. Step one: the thread store, when loaded. A reply
	// already present means this event is the server echo of a local
	// optimistic send (or a transport replay); it must not re-append and
	// must not re-count.
	already := false
	threadLoaded := false
	touched := false
	if ts, ok := r.reg.Get(m.ThreadParent); ok && !ts.Empty() {
		threadLoaded = true
		if ts.Contains(m.ID) {
			already = true
			metrics.EventsDropped.WithLabelValues(string(ev.EventType()), metrics.ReasonDuplicate).Inc()
		} else {
			ts.InsertLive(m)
			r.teeSave(m)
			touched = true
		}
	}

	// Step two: patch the parent in the channel store. This is an
	// independent write; a reader may observe it before or after step one.
	if cs, ok := r.reg.Get(m.Channel); ok && !cs.Empty() {
		patched := cs.Update(m.ThreadParent, func(parent *models.Message) {
			if !threadLoaded {
				// No thread store to check presence against; fall back to
				// the parent's last-reply watermark so replays stay
				// idempotent.
				already = parent.LastReplyTS >= m.CreatedTS
			}
			if m.CreatedTS > parent.LastReplyTS {
				parent.LastReplyTS = m.CreatedTS
			}
			if !parent.HasParticipant(m.Author) {
				parent.Participants = append(parent.Participants, m.Author)
			}
			if !already {
				parent.ReplyCount++
			}
		})
		if patched {
			touched = true
			if parent, ok := cs.Get(m.ThreadParent); ok {
				r.teeSave(parent)
			}
		}
	}

	if m.AlsoInChannel && r.insertChannel(m) {
		touched = true
	}

	if touched {
		metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
		return
	}
	if !already {
		// neither the thread window nor the parent is loaded; same drop
		// rule as the non-thread path
		metrics.EventsDropped.WithLabelValues(string(ev.EventType()), metrics.ReasonUnloadedKey).Inc()
		logger.Debug("message_new_unloaded_thread", "thread", m.ThreadParent, "id", m.ID)
	}
}

// insertChannel applies the non-thread "prepend at the live edge, dedup by
// id" rule against a channel store and bumps the unread counter for
// foreign authors.
func (r *Reconciler) insertChannel(m models.Message) bool {
	cs, ok := r.reg.Get(m.Channel)
	if !ok || cs.Empty() {
		metrics.EventsDropped.WithLabelValues(string(events.TypeMessageNew), metrics.ReasonUnloadedKey).Inc()
		logger.Debug("message_new_unloaded_channel", "channel", m.Channel, "id", m.ID)
		return false
	}
	if !cs.InsertLive(m) {
		// optimistic echo or replay
		metrics.EventsDropped.WithLabelValues(string(events.TypeMessageNew), metrics.ReasonDuplicate).Inc()
		return false
	}
	if m.Author != r.self {
		r.reg.UpdateSummary(m.Channel, func(s *models.ChannelSummary) { s.UnreadCount++ })
	}
	return true
}

func (r *Reconciler) applyMessageUpdated(ev events.MessageUpdated) {
	touched := false
	if cs, ok := r.reg.Get(ev.Channel); ok {
		touched = cs.PatchMessage(ev.ID, ev.Patch) || touched
	}
	if ev.ThreadParent != "" {
		if ts, ok := r.reg.Get(ev.ThreadParent); ok {
			touched = ts.PatchMessage(ev.ID, ev.Patch) || touched
		}
	}
	if !touched {
		metrics.EventsDropped.WithLabelValues(string(ev.EventType()), metrics.ReasonStaleRef).Inc()
		logger.Debug("message_updated_stale_ref", "channel", ev.Channel, "id", ev.ID)
		return
	}
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
	r.teeCurrent(ev.Channel, ev.ThreadParent, ev.ID)
}

func (r *Reconciler) applyMessageDeleted(ev events.MessageDeleted) {
	isReply := ev.ThreadParent != ""

	// Presence in the thread store decides whether a local optimistic
	// delete already ran: absent means it did, and the parent reply_count
	// was already decremented once. An unloaded thread store cannot answer
	// the question, so the decrement is suppressed there too rather than
	// risking a double-decrement.
	decremented := isReply
	touched := false
	if isReply {
		if ts, ok := r.reg.Get(ev.ThreadParent); ok && !ts.Empty() {
			if m, found := ts.Get(ev.ID); found {
				decremented = false
				r.deleteFrom(ts, ev, m.ReplyCount)
				touched = true
			}
		}
	}

	if cs, ok := r.reg.Get(ev.Channel); ok && !cs.Empty() {
		if m, found := cs.Get(ev.ID); found {
			r.deleteFrom(cs, ev, m.ReplyCount)
			touched = true
		}
	}

	// A deleted thread root also lives in its own thread store under its
	// id as the cache key.
	if !isReply {
		if ts, ok := r.reg.Get(ev.ID); ok && !ts.Empty() {
			if m, found := ts.Get(ev.ID); found {
				r.deleteFrom(ts, ev, m.ReplyCount)
				touched = true
			}
		}
	}

	if isReply && !decremented {
		if cs, ok := r.reg.Get(ev.Channel); ok {
			cs.Update(ev.ThreadParent, func(parent *models.Message) {
				if parent.ReplyCount > 0 {
					parent.ReplyCount--
				}
			})
			if parent, ok2 := cs.Get(ev.ThreadParent); ok2 {
				r.teeSave(parent)
			}
		}
	}

	if !touched {
		metrics.EventsDropped.WithLabelValues(string(ev.EventType()), metrics.ReasonStaleRef).Inc()
		return
	}
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

// deleteFrom applies the soft/hard delete rule against one store: a
// message that still has replies stays as a tombstone placeholder, one
// without replies is removed outright.
func (r *Reconciler) deleteFrom(s *pagestore.Store, ev events.MessageDeleted, replyCount int) {
	if replyCount > 0 {
		s.Update(ev.ID, func(m *models.Message) {
			m.Deleted = true
			m.DeletedTS = ev.DeletedTS
		})
		if m, ok := s.Get(ev.ID); ok {
			r.teeSave(m)
		}
		return
	}
	s.RemoveMessage(ev.ID)
	r.teeDelete(ev.Channel, ev.ID)
}

func (r *Reconciler) applyReactionAdded(ev events.ReactionAdded) {
	rc := ev.Reaction
	upsert := func(m *models.Message) {
		for i := range m.Reactions {
			if m.Reactions[i].UserID == rc.UserID && m.Reactions[i].Emoji == rc.Emoji {
				// optimistic entry confirmed by the server echo: replace,
				// never append a second copy
				m.Reactions[i] = rc
				return
			}
		}
		m.Reactions = append(m.Reactions, rc)
	}
	if !r.updateEverywhere(ev.Channel, ev.ThreadParent, rc.MessageID, upsert) {
		metrics.EventsDropped.WithLabelValues(string(ev.EventType()), metrics.ReasonStaleRef).Inc()
		return
	}
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
	r.teeCurrent(ev.Channel, ev.ThreadParent, rc.MessageID)
}

func (r *Reconciler) applyReactionRemoved(ev events.ReactionRemoved) {
	rc := ev.Reaction
	strip := func(m *models.Message) {
		kept := m.Reactions[:0]
		for _, existing := range m.Reactions {
			if existing.UserID == rc.UserID && existing.Emoji == rc.Emoji {
				continue
			}
			kept = append(kept, existing)
		}
		m.Reactions = kept
	}
	if !r.updateEverywhere(ev.Channel, ev.ThreadParent, rc.MessageID, strip) {
		metrics.EventsDropped.WithLabelValues(string(ev.EventType()), metrics.ReasonStaleRef).Inc()
		return
	}
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
	r.teeCurrent(ev.Channel, ev.ThreadParent, rc.MessageID)
}

// updateEverywhere applies fn to every cached copy of id: the channel
// store and, for thread replies, the thread store. Two independent writes.
func (r *Reconciler) updateEverywhere(channel, threadParent, id string, fn func(*models.Message)) bool {
	touched := false
	if cs, ok := r.reg.Get(channel); ok {
		touched = cs.Update(id, fn) || touched
	}
	if threadParent != "" {
		if ts, ok := r.reg.Get(threadParent); ok {
			touched = ts.Update(id, fn) || touched
		}
	}
	return touched
}

func (r *Reconciler) applyChannelCreated(ev events.ChannelCreated) {
	in := ev.Summary
	r.reg.UpdateSummary(in.ID, func(s *models.ChannelSummary) {
		s.Name = in.Name
		s.Topic = in.Topic
		s.Archived = in.Archived
		s.CreatedTS = in.CreatedTS
		s.Members = append([]string(nil), in.Members...)
	})
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

func (r *Reconciler) applyChannelUpdated(ev events.ChannelUpdated) {
	r.reg.UpdateSummary(ev.ID, func(s *models.ChannelSummary) {
		if ev.Name != nil {
			s.Name = *ev.Name
		}
		if ev.Topic != nil {
			s.Topic = *ev.Topic
		}
	})
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

func (r *Reconciler) applyChannelArchived(ev events.ChannelArchived) {
	r.reg.UpdateSummary(ev.ID, func(s *models.ChannelSummary) { s.Archived = true })
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

func (r *Reconciler) applyChannelMemberAdded(ev events.ChannelMemberAdded) {
	r.reg.UpdateSummary(ev.Channel, func(s *models.ChannelSummary) {
		if !s.HasMember(ev.UserID) {
			s.Members = append(s.Members, ev.UserID)
		}
	})
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

func (r *Reconciler) applyChannelMemberRemoved(ev events.ChannelMemberRemoved) {
	r.reg.UpdateSummary(ev.Channel, func(s *models.ChannelSummary) {
		kept := s.Members[:0]
		for _, m := range s.Members {
			if m == ev.UserID {
				continue
			}
			kept = append(kept, m)
		}
		s.Members = kept
	})
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

func (r *Reconciler) applyChannelRead(ev events.ChannelRead) {
	r.reg.UpdateSummary(ev.Channel, func(s *models.ChannelSummary) {
		s.UnreadCount = 0
		if ev.LastReadID != "" {
			s.LastReadID = ev.LastReadID
		}
	})
	metrics.EventsApplied.WithLabelValues(string(ev.EventType())).Inc()
}

func (r *Reconciler) teeSave(m models.Message) {
	if r.sink == nil {
		return
	}
	if err := r.sink.SaveMessage(m); err != nil {
		logger.Error("archive_save_failed", "channel", m.Channel, "id", m.ID, "error", err)
	}
}

func (r *Reconciler) teeDelete(channel, id string) {
	if r.sink == nil {
		return
	}
	if err := r.sink.DeleteMessage(channel, id); err != nil {
		logger.Error("archive_delete_failed", "channel", channel, "id", id, "error", err)
	}
}

func (r *Reconciler) teeCurrent(channel, threadParent, id string) {
	if r.sink == nil {
		return
	}
	if cs, ok := r.reg.Get(channel); ok {
		if m, found := cs.Get(id); found {
			r.teeSave(m)
			return
		}
	}
	if threadParent != "" {
		if ts, ok := r.reg.Get(threadParent); ok {
			if m, found := ts.Get(id); found {
				r.teeSave(m)
			}
		}
	}
}
