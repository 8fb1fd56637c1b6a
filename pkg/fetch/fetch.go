// Package fetch defines the external collaborators the cache depends on:
// cursor-based page fetching and signed-URL issuance. The cache core only
// sees these interfaces; the HTTP client in this package is the production
// implementation.
package fetch

import (
	"context"

	"chatfeed/pkg/models"
)

// Direction selects which way a page fetch extends the window.
type Direction string

const (
	// DirBackward fetches older messages from the cursor.
	DirBackward Direction = "backward"
	// DirForward fetches newer messages from the cursor.
	DirForward Direction = "forward"
	// DirAround fetches a window centered on the cursor; used only by
	// jump-to-message.
	DirAround Direction = "around"
)

// Request describes one page fetch. An empty cursor with DirBackward means
// "newest page".
type Request struct {
	Key       string
	Cursor    string
	Limit     int
	Direction Direction
}

// PageFetcher fetches one page of messages for a cache key.
type PageFetcher interface {
	FetchPage(ctx context.Context, req Request) (models.Page, error)
}

// URLSigner issues short-lived attachment URLs, singly or in batch.
type URLSigner interface {
	SignURL(ctx context.Context, fileID string) (models.SignedURL, error)
	SignURLs(ctx context.Context, fileIDs []string) ([]models.SignedURL, error)
}
