package models

// Message is one chat message as cached on the client. IDs are
// lexicographically time-ordered strings: a later message always compares
// greater, so sorting by ID is sorting by creation time.
type Message struct {
	ID      string `json:"id"`
	Channel string `json:"channel_id"`
	// ThreadParent is the id of the thread root when this message is a
	// threaded reply; empty for top-level channel messages.
	ThreadParent string `json:"thread_parent_id,omitempty"`
	Author       string `json:"author_id"`
	Body         string `json:"body,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts"`
	// Edited timestamp (ns); zero when never edited
	EditedTS int64 `json:"edited_ts,omitempty"`
	// Deleted marks a soft-deleted message kept as a thread placeholder;
	// DeletedTS records deletion time (ns)
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`

	ReplyCount  int   `json:"reply_count,omitempty"`
	LastReplyTS int64 `json:"last_reply_ts,omitempty"`
	// Participants lists author ids that replied in this message's thread.
	Participants []string     `json:"thread_participants,omitempty"`
	Reactions    []Reaction   `json:"reactions,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	// AlsoInChannel mirrors a threaded reply into the parent channel feed.
	AlsoInChannel bool `json:"also_in_channel,omitempty"`
}

// Reaction is one (message, user, emoji) entry. At most one entry exists per
// (user, emoji) pair on a message; an optimistic reaction and its server echo
// are the same logical entity.
type Reaction struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
	TS        int64  `json:"ts,omitempty"`
}

// Attachment references an uploaded file; the fetch URL is short-lived and
// resolved separately through the signed-URL cache.
type Attachment struct {
	FileID   string `json:"file_id"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// MessagePatch is a partial update to an existing message. Nil fields leave
// the current value untouched; set fields win.
type MessagePatch struct {
	Body         *string       `json:"body,omitempty"`
	EditedTS     *int64        `json:"edited_ts,omitempty"`
	Deleted      *bool         `json:"deleted,omitempty"`
	DeletedTS    *int64        `json:"deleted_ts,omitempty"`
	ReplyCount   *int          `json:"reply_count,omitempty"`
	LastReplyTS  *int64        `json:"last_reply_ts,omitempty"`
	Participants *[]string     `json:"thread_participants,omitempty"`
	Reactions    *[]Reaction   `json:"reactions,omitempty"`
	Attachments  *[]Attachment `json:"attachments,omitempty"`
}

// Apply merges the patch into m, shallow field-wise.
func (p MessagePatch) Apply(m *Message) {
	if p.Body != nil {
		m.Body = *p.Body
	}
	if p.EditedTS != nil {
		m.EditedTS = *p.EditedTS
	}
	if p.Deleted != nil {
		m.Deleted = *p.Deleted
	}
	if p.DeletedTS != nil {
		m.DeletedTS = *p.DeletedTS
	}
	if p.ReplyCount != nil {
		m.ReplyCount = *p.ReplyCount
	}
	if p.LastReplyTS != nil {
		m.LastReplyTS = *p.LastReplyTS
	}
	if p.Participants != nil {
		m.Participants = append([]string(nil), (*p.Participants)...)
	}
	if p.Reactions != nil {
		m.Reactions = append([]Reaction(nil), (*p.Reactions)...)
	}
	if p.Attachments != nil {
		m.Attachments = append([]Attachment(nil), (*p.Attachments)...)
	}
}

// HasParticipant reports whether userID already appears in the thread
// participant list.
func (m *Message) HasParticipant(userID string) bool {
	for _, p := range m.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
