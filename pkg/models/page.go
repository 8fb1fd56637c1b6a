package models

// Position says where an appended page sits relative to the pages a store
// already holds.
type Position string

const (
	// PosOlder extends the window toward older messages (backward
	// pagination).
	PosOlder Position = "older"
	// PosNewer extends the window toward newer messages (forward
	// pagination and the live tail).
	PosNewer Position = "newer"
	// PosReplace discards the held pages and seeds the window fresh
	// (initial load, jump-to-message, jump-to-latest).
	PosReplace Position = "replace"
)

// Page is one fetched batch of messages, ordered ascending by id, tagged
// with the cursors to continue in either direction. An empty cursor means
// that direction is exhausted.
type Page struct {
	Messages []Message `json:"messages"`
	// PrevCursor continues toward older messages.
	PrevCursor string `json:"prev_cursor,omitempty"`
	// NextCursor continues toward newer messages; empty at the live tail.
	NextCursor string `json:"next_cursor,omitempty"`
}

// Cursors is the pagination state of a merged view.
type Cursors struct {
	Prev string `json:"prev,omitempty"`
	Next string `json:"next,omitempty"`
}

// SignedURL is one short-lived attachment fetch URL.
type SignedURL struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
	// Expiry timestamp (ns)
	ExpiresTS int64 `json:"expires_ts"`
}
