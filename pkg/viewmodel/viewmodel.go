// Package viewmodel turns a flat, sorted message sequence into the item
// sequence a list renderer draws: message rows, date separators, and at
// most one unread divider. Build is pure and cheap enough to call on every
// render.
package viewmodel

import (
	"time"

	"chatfeed/pkg/models"
)

// Kind discriminates render items.
type Kind string

const (
	KindMessage       Kind = "message"
	KindDateSeparator Kind = "date_separator"
	KindUnreadDivider Kind = "unread_divider"
)

// Item is one renderable row.
type Item struct {
	Kind    Kind
	Message *models.Message
	// Day is set on date separators: midnight (UTC) of the day that
	// starts below the separator.
	Day time.Time
}

// Build renders messages (pre-sorted ascending by id) into items. A date
// separator is inserted whenever the calendar day changes between
// consecutive messages. One unread divider is inserted directly after the
// message with lastReadID, but only when unreadCount > 0 and that message
// is not the last in the sequence.
func Build(messages []models.Message, lastReadID string, unreadCount int) []Item {
	items := make([]Item, 0, len(messages)+4)
	for i := range messages {
		m := &messages[i]
		if i > 0 {
			prev := day(messages[i-1].CreatedTS)
			cur := day(m.CreatedTS)
			if !prev.Equal(cur) {
				items = append(items, Item{Kind: KindDateSeparator, Day: cur})
			}
		}
		items = append(items, Item{Kind: KindMessage, Message: m})
		if unreadCount > 0 && m.ID == lastReadID && i != len(messages)-1 {
			items = append(items, Item{Kind: KindUnreadDivider})
		}
	}
	return items
}

func day(ts int64) time.Time {
	t := time.Unix(0, ts).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
