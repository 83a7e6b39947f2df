package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is the YAML configuration for what to watch and how to post.
type Document struct {
	Team     TeamConfig     `yaml:"team"`
	Scores   ScoresConfig   `yaml:"scores"`
	News     NewsConfig     `yaml:"news"`
	Posts    PostsConfig    `yaml:"posts"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

type TeamConfig struct {
	// ID is the team id used by the score source.
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type ScoresConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	// Source prefixes fixture identifiers, e.g. "sofascore:1234:prematch".
	Source            string   `yaml:"source"`
	Window            Duration `yaml:"window"`
	PrematchLead      Duration `yaml:"prematch_lead"`
	PrematchTolerance Duration `yaml:"prematch_tolerance"`
}

type NewsConfig struct {
	Feeds []NewsFeed `yaml:"feeds"`
	// Limit caps the entries considered per feed.
	Limit int `yaml:"limit"`
	// Rule is an optional expr-lang boolean; entries for which it is false are ignored.
	Rule string `yaml:"rule,omitempty"`
}

type NewsFeed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type PostsConfig struct {
	Hashtags  string          `yaml:"hashtags"`
	Timezone  string          `yaml:"timezone"`
	MaxLength int             `yaml:"max_length"`
	Templates TemplatesConfig `yaml:"templates"`
}

type TemplatesConfig struct {
	Prematch string `yaml:"prematch,omitempty"`
	Goal     string `yaml:"goal,omitempty"`
	Halftime string `yaml:"halftime,omitempty"`
	Fulltime string `yaml:"fulltime,omitempty"`
	News     string `yaml:"news,omitempty"`
}

type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// ScoresEnabled defaults to true.
func (c ScoresConfig) ScoresEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DefaultDocument watches Tottenham Hotspur on SofaScore and the BBC team feed.
func DefaultDocument() Document {
	return Document{
		Team: TeamConfig{ID: 17, Name: "Tottenham Hotspur"},
		Scores: ScoresConfig{
			Source:            "sofascore",
			Window:            Duration(36 * time.Hour),
			PrematchLead:      Duration(60 * time.Minute),
			PrematchTolerance: Duration(5 * time.Minute),
		},
		News: NewsConfig{
			Feeds: []NewsFeed{{
				Name: "bbc",
				URL:  "https://feeds.bbci.co.uk/sport/football/teams/tottenham-hotspur/rss.xml",
			}},
			Limit: 3,
		},
		Posts: PostsConfig{
			Hashtags:  "#COYS #THFC",
			Timezone:  "Europe/London",
			MaxLength: 280,
		},
		Schedule: ScheduleConfig{
			Cron:     "*/5 * * * *",
			Timezone: "UTC",
		},
	}
}

// LoadDocument reads path over the defaults. A missing file yields the defaults.
func LoadDocument(path string) (Document, error) {
	doc := DefaultDocument()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("read config document: %w", err)
	}
	if err := decodeDocument(data, &doc); err != nil {
		return Document{}, err
	}
	if err := doc.Validate(); err != nil {
		return Document{}, fmt.Errorf("invalid config document %s: %w", path, err)
	}
	return doc, nil
}

func decodeDocument(data []byte, doc *Document) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config document: %w", err)
	}
	return nil
}

func (d Document) Validate() error {
	var problems []string
	if d.Scores.ScoresEnabled() {
		if d.Team.ID <= 0 {
			problems = append(problems, "team.id must be positive")
		}
		if strings.TrimSpace(d.Scores.Source) == "" || strings.Contains(d.Scores.Source, ":") {
			problems = append(problems, "scores.source must be non-empty and contain no ':'")
		}
		if d.Scores.Window.Std() <= 0 {
			problems = append(problems, "scores.window must be positive")
		}
		if d.Scores.PrematchLead.Std() <= 0 {
			problems = append(problems, "scores.prematch_lead must be positive")
		}
		if d.Scores.PrematchTolerance.Std() < 0 {
			problems = append(problems, "scores.prematch_tolerance must not be negative")
		}
	}
	names := map[string]bool{}
	for i, feed := range d.News.Feeds {
		name := strings.TrimSpace(feed.Name)
		if name == "" || strings.Contains(name, ":") {
			problems = append(problems, fmt.Sprintf("news.feeds[%d].name must be non-empty and contain no ':'", i))
		}
		if names[name] {
			problems = append(problems, fmt.Sprintf("news.feeds[%d].name %q is duplicated", i, name))
		}
		names[name] = true
		if strings.TrimSpace(feed.URL) == "" {
			problems = append(problems, fmt.Sprintf("news.feeds[%d].url is required", i))
		}
	}
	if d.News.Limit < 0 {
		problems = append(problems, "news.limit must not be negative")
	}
	if d.Posts.MaxLength <= 1 {
		problems = append(problems, "posts.max_length must be greater than 1")
	}
	for field, tz := range map[string]string{"posts.timezone": d.Posts.Timezone, "schedule.timezone": d.Schedule.Timezone} {
		if tz == "" {
			continue
		}
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field, err))
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
