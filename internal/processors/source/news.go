package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/processors/quality"
	"github.com/bakkerme/matchday/internal/sources/rss"
)

// NewsProcessor turns feed entries into news announcements.
type NewsProcessor struct {
	name     string
	config   config.NewsConfig
	fetcher  rss.Fetcher
	rule     *quality.Rule
	validate *validator.Validate
	now      func() time.Time
}

// newsEntry holds the fields a feed entry needs before it can be announced.
type newsEntry struct {
	Title string `validate:"required"`
	Link  string `validate:"required_without=GUID"`
	GUID  string
}

func NewNewsProcessor(cfg config.NewsConfig, fetcher rss.Fetcher) (*NewsProcessor, error) {
	rule, err := quality.CompileRule(cfg.Rule)
	if err != nil {
		return nil, err
	}
	p := &NewsProcessor{
		name:     "news",
		config:   cfg,
		fetcher:  fetcher,
		rule:     rule,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *NewsProcessor) Name() string {
	return p.name
}

func (p *NewsProcessor) Validate() error {
	if len(p.config.Feeds) == 0 {
		return fmt.Errorf("at least one news feed is required")
	}
	if p.fetcher == nil {
		return fmt.Errorf("rss fetcher is required")
	}
	return nil
}

// Fetch reads every feed. A failing feed is logged and skipped while at
// least one other feed succeeds.
func (p *NewsProcessor) Fetch(ctx context.Context) ([]core.Event, error) {
	logger := core.LoggerFromContext(ctx)
	now := p.now().UTC()
	events := []core.Event{}
	var errs []error
	for _, feed := range p.config.Feeds {
		items, err := p.fetcher.Fetch(ctx, feed.URL, rss.FetchOptions{Limit: p.config.Limit})
		if err != nil {
			logger.Warn("news feed fetch failed", "feed", feed.Name, "error", err)
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.Name, err))
			continue
		}
		for _, item := range items {
			news := &core.NewsItem{
				Source:      feed.Name,
				GUID:        strings.TrimSpace(item.GUID),
				Link:        strings.TrimSpace(item.Link),
				Title:       strings.TrimSpace(item.Title),
				PublishedAt: item.PublishedAt,
			}
			if err := p.validate.Struct(newsEntry{Title: news.Title, Link: news.Link, GUID: news.GUID}); err != nil {
				logger.Warn("skipping malformed news entry", "feed", feed.Name, "guid", news.GUID, "error", err)
				continue
			}
			keep, err := p.keep(news, item.Categories, now)
			if err != nil {
				logger.Warn("news rule failed, skipping entry", "feed", feed.Name, "link", item.Link, "error", err)
				continue
			}
			if !keep {
				logger.Debug("news entry filtered by rule", "feed", feed.Name, "title", item.Title)
				continue
			}
			events = append(events, core.Event{Kind: core.EventNews, ObservedAt: now, News: news})
		}
	}
	if len(errs) == len(p.config.Feeds) {
		return nil, errors.Join(errs...)
	}
	return events, nil
}

func (p *NewsProcessor) keep(item *core.NewsItem, categories []string, now time.Time) (bool, error) {
	env := quality.NewsEnv{
		Title:       item.Title,
		Link:        item.Link,
		Source:      item.Source,
		Categories:  categories,
		PublishedAt: item.PublishedAt,
	}
	if !item.PublishedAt.IsZero() {
		env.AgeHours = now.Sub(item.PublishedAt).Hours()
	}
	return p.rule.Keep(env)
}
