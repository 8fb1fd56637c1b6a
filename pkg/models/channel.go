package models

// ChannelSummary is the per-channel record kept next to the channel's page
// store: metadata from structural events plus the unread counter the
// reconciler maintains.
type ChannelSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Topic    string `json:"topic,omitempty"`
	Archived bool   `json:"archived,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64    `json:"created_ts,omitempty"`
	Members   []string `json:"members,omitempty"`

	UnreadCount int    `json:"unread_count"`
	LastReadID  string `json:"last_read_id,omitempty"`
}

// HasMember reports whether userID is in the member list.
func (c *ChannelSummary) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}
