package impl

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bakkerme/matchday/internal/sources/rss"
	"github.com/mmcdole/gofeed"
)

type Fetcher struct {
	parser *gofeed.Parser
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = userAgent
	return &Fetcher{parser: parser}
}

// Fetch makes a single attempt; a failed poll is retried by the next invocation.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) ([]rss.Item, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	limit := options.Limit
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	items := make([]rss.Item, 0, limit)
	for _, entry := range feed.Items {
		if len(items) >= limit {
			break
		}
		if entry == nil {
			continue
		}
		item := rss.Item{
			GUID:       strings.TrimSpace(entry.GUID),
			Title:      strings.TrimSpace(entry.Title),
			Link:       strings.TrimSpace(entry.Link),
			Categories: entry.Categories,
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			item.PublishedAt = entry.UpdatedParsed.UTC()
		}
		items = append(items, item)
	}
	return items, nil
}
