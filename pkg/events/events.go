// Package events defines the push-event contract consumed by the
// reconciler: a closed set of typed variants dispatched on a wire-level
// type tag. Optimistic local mutations are expressed with the same
// variants so both paths share one rulebook.
package events

import (
	"encoding/json"
	"fmt"

	"chatfeed/pkg/models"
)

// Type is the wire tag of a push event.
type Type string

const (
	TypeMessageNew           Type = "message.new"
	TypeMessageUpdated       Type = "message.updated"
	TypeMessageDeleted       Type = "message.deleted"
	TypeReactionAdded        Type = "reaction.added"
	TypeReactionRemoved      Type = "reaction.removed"
	TypeChannelCreated       Type = "channel.created"
	TypeChannelUpdated       Type = "channel.updated"
	TypeChannelArchived      Type = "channel.archived"
	TypeChannelMemberAdded   Type = "channel.member_added"
	TypeChannelMemberRemoved Type = "channel.member_removed"
	TypeChannelRead          Type = "channel.read"
)

// Event is the closed union of push events. Only variants in this package
// implement it.
type Event interface {
	EventType() Type
}

// MessageNew carries a full new message, either a top-level channel message
// or a threaded reply (ThreadParent set on the message).
type MessageNew struct {
	Message models.Message `json:"message"`
}

// MessageUpdated carries a partial patch for an already-delivered message.
type MessageUpdated struct {
	ID           string              `json:"id"`
	Channel      string              `json:"channel_id"`
	ThreadParent string              `json:"thread_parent_id,omitempty"`
	Patch        models.MessagePatch `json:"patch"`
}

// MessageDeleted deletes a message; the reconciler decides between soft
// delete and outright removal based on the cached reply count.
type MessageDeleted struct {
	ID           string `json:"id"`
	Channel      string `json:"channel_id"`
	ThreadParent string `json:"thread_parent_id,omitempty"`
	DeletedTS    int64  `json:"deleted_ts"`
}

// ReactionAdded adds (or confirms) one reaction entry.
type ReactionAdded struct {
	Channel      string          `json:"channel_id"`
	ThreadParent string          `json:"thread_parent_id,omitempty"`
	Reaction     models.Reaction `json:"reaction"`
}

// ReactionRemoved removes one (user, emoji) entry from a message.
type ReactionRemoved struct {
	Channel      string          `json:"channel_id"`
	ThreadParent string          `json:"thread_parent_id,omitempty"`
	Reaction     models.Reaction `json:"reaction"`
}

// ChannelCreated announces a channel the client may open later.
type ChannelCreated struct {
	Summary models.ChannelSummary `json:"channel"`
}

// ChannelUpdated patches channel metadata. Nil fields are untouched.
type ChannelUpdated struct {
	ID    string  `json:"id"`
	Name  *string `json:"name,omitempty"`
	Topic *string `json:"topic,omitempty"`
}

// ChannelArchived marks a channel archived.
type ChannelArchived struct {
	ID string `json:"id"`
}

// ChannelMemberAdded adds a user to a channel's member list.
type ChannelMemberAdded struct {
	Channel string `json:"channel_id"`
	UserID  string `json:"user_id"`
}

// ChannelMemberRemoved removes a user from a channel's member list.
type ChannelMemberRemoved struct {
	Channel string `json:"channel_id"`
	UserID  string `json:"user_id"`
}

// ChannelRead records that the local user read the channel up to
// LastReadID; the unread counter resets.
type ChannelRead struct {
	Channel    string `json:"channel_id"`
	LastReadID string `json:"last_read_id,omitempty"`
}

func (MessageNew) EventType() Type           { return TypeMessageNew }
func (MessageUpdated) EventType() Type       { return TypeMessageUpdated }
func (MessageDeleted) EventType() Type       { return TypeMessageDeleted }
func (ReactionAdded) EventType() Type        { return TypeReactionAdded }
func (ReactionRemoved) EventType() Type      { return TypeReactionRemoved }
func (ChannelCreated) EventType() Type       { return TypeChannelCreated }
func (ChannelUpdated) EventType() Type       { return TypeChannelUpdated }
func (ChannelArchived) EventType() Type      { return TypeChannelArchived }
func (ChannelMemberAdded) EventType() Type   { return TypeChannelMemberAdded }
func (ChannelMemberRemoved) EventType() Type { return TypeChannelMemberRemoved }
func (ChannelRead) EventType() Type          { return TypeChannelRead }

// Frame is the wire envelope: a type tag plus the JSON payload.
type Frame struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode turns a type tag and raw payload into the concrete variant.
func Decode(t Type, payload []byte) (Event, error) {
	switch t {
	case TypeMessageNew:
		var ev MessageNew
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if ev.Message.ID == "" {
			return nil, fmt.Errorf("%s: missing message id", t)
		}
		return ev, nil
	case TypeMessageUpdated:
		var ev MessageUpdated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if ev.ID == "" {
			return nil, fmt.Errorf("%s: missing message id", t)
		}
		return ev, nil
	case TypeMessageDeleted:
		var ev MessageDeleted
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if ev.ID == "" {
			return nil, fmt.Errorf("%s: missing message id", t)
		}
		return ev, nil
	case TypeReactionAdded:
		var ev ReactionAdded
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if ev.Reaction.MessageID == "" {
			return nil, fmt.Errorf("%s: missing message id", t)
		}
		return ev, nil
	case TypeReactionRemoved:
		var ev ReactionRemoved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if ev.Reaction.MessageID == "" {
			return nil, fmt.Errorf("%s: missing message id", t)
		}
		return ev, nil
	case TypeChannelCreated:
		var ev ChannelCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if ev.Summary.ID == "" {
			return nil, fmt.Errorf("%s: missing channel id", t)
		}
		return ev, nil
	case TypeChannelUpdated:
		var ev ChannelUpdated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		return ev, nil
	case TypeChannelArchived:
		var ev ChannelArchived
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		return ev, nil
	case TypeChannelMemberAdded:
		var ev ChannelMemberAdded
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		return ev, nil
	case TypeChannelMemberRemoved:
		var ev ChannelMemberRemoved
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		return ev, nil
	case TypeChannelRead:
		var ev ChannelRead
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// DecodeFrame decodes a full wire envelope.
func DecodeFrame(raw []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid event frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("event frame missing type")
	}
	return Decode(f.Type, f.Payload)
}
