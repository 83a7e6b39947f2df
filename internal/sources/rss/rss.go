package rss

import (
	"context"
	"time"
)

// FetchOptions controls RSS fetch behavior.
type FetchOptions struct {
	// Limit caps the number of entries returned, in feed order. Zero means all.
	Limit int
}

// Item is a single RSS or Atom entry.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Categories  []string
	PublishedAt time.Time
}

// Fetcher fetches and parses RSS/Atom feeds.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, options FetchOptions) ([]Item, error)
}
