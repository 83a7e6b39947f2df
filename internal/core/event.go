package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EventKind names the announcement an Event produces.
type EventKind string

const (
	EventPrematch EventKind = "prematch"
	EventGoal     EventKind = "goal"
	EventHalftime EventKind = "halftime"
	EventFulltime EventKind = "fulltime"
	EventNews     EventKind = "news"
)

// ErrMalformedEvent is returned when an event's identifier cannot be derived.
var ErrMalformedEvent = errors.New("malformed event")

// Phase is the match phase reported by the score source.
type Phase string

const (
	PhaseScheduled Phase = "scheduled"
	PhaseLive      Phase = "live"
	PhaseHalftime  Phase = "halftime"
	PhaseFinished  Phase = "finished"
	PhaseCancelled Phase = "cancelled"
)

// Fixture is a single match as reported by a score source.
type Fixture struct {
	Source    string    `json:"source" yaml:"source"`
	ID        string    `json:"id" yaml:"id"`
	Kickoff   time.Time `json:"kickoff" yaml:"kickoff"`
	HomeTeam  string    `json:"home_team" yaml:"home_team"`
	AwayTeam  string    `json:"away_team" yaml:"away_team"`
	HomeScore int       `json:"home_score" yaml:"home_score"`
	AwayScore int       `json:"away_score" yaml:"away_score"`
	Phase     Phase     `json:"phase" yaml:"phase"`
	Goals     []Goal    `json:"goals,omitempty" yaml:"goals,omitempty"`
}

// Goal is a scoring incident within a fixture.
type Goal struct {
	Minute    int    `json:"minute" yaml:"minute"`
	AddedTime int    `json:"added_time,omitempty" yaml:"added_time,omitempty"`
	Scorer    string `json:"scorer,omitempty" yaml:"scorer,omitempty"`
	ScorerID  string `json:"scorer_id,omitempty" yaml:"scorer_id,omitempty"`
	IsHome    bool   `json:"is_home" yaml:"is_home"`
	// HomeScore and AwayScore hold the scoreline after this goal. Nil when upstream omitted it.
	HomeScore *int `json:"home_score,omitempty" yaml:"home_score,omitempty"`
	AwayScore *int `json:"away_score,omitempty" yaml:"away_score,omitempty"`
}

// NewsItem is a single feed entry.
type NewsItem struct {
	Source      string    `json:"source" yaml:"source"`
	GUID        string    `json:"guid,omitempty" yaml:"guid,omitempty"`
	Link        string    `json:"link" yaml:"link"`
	Title       string    `json:"title" yaml:"title"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
}

// Event is one announcement candidate. Exactly one of Fixture or News is set,
// and Goal is set only for EventGoal.
type Event struct {
	Kind       EventKind `json:"kind" yaml:"kind"`
	ObservedAt time.Time `json:"observed_at" yaml:"observed_at"`
	Fixture    *Fixture  `json:"fixture,omitempty" yaml:"fixture,omitempty"`
	Goal       *Goal     `json:"goal,omitempty" yaml:"goal,omitempty"`
	News       *NewsItem `json:"news,omitempty" yaml:"news,omitempty"`
}

// ID returns the stable identifier used as the dedup key. The same logical
// event always yields the same identifier across runs.
func (e Event) ID() (string, error) {
	switch e.Kind {
	case EventPrematch, EventHalftime, EventFulltime:
		scope, err := e.fixtureScope()
		if err != nil {
			return "", err
		}
		return scope + ":" + string(e.Kind), nil
	case EventGoal:
		scope, err := e.fixtureScope()
		if err != nil {
			return "", err
		}
		if e.Goal == nil {
			return "", fmt.Errorf("%w: goal event without goal data", ErrMalformedEvent)
		}
		if e.Goal.Minute <= 0 || e.Goal.AddedTime < 0 {
			return "", fmt.Errorf("%w: goal minute %d+%d out of range", ErrMalformedEvent, e.Goal.Minute, e.Goal.AddedTime)
		}
		minute := strconv.Itoa(e.Goal.Minute)
		if e.Goal.AddedTime > 0 {
			minute += "+" + strconv.Itoa(e.Goal.AddedTime)
		}
		disambiguator := goalDisambiguator(*e.Goal)
		if disambiguator == "" {
			return "", fmt.Errorf("%w: goal at %s' has neither scoreline nor scorer", ErrMalformedEvent, minute)
		}
		return scope + ":goal:" + minute + ":" + disambiguator, nil
	case EventNews:
		if e.News == nil {
			return "", fmt.Errorf("%w: news event without news data", ErrMalformedEvent)
		}
		source, err := cleanSource(e.News.Source)
		if err != nil {
			return "", err
		}
		articleID := strings.TrimSpace(e.News.GUID)
		if articleID == "" {
			articleID, err = NormalizeLink(e.News.Link)
			if err != nil {
				return "", fmt.Errorf("%w: news item has no guid and an unusable link: %v", ErrMalformedEvent, err)
			}
		}
		return source + ":" + articleID, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, e.Kind)
	}
}

// FixtureScope returns "{source}:{fixtureId}" for fixture events.
func (e Event) FixtureScope() (string, bool) {
	if e.Kind == EventNews {
		return "", false
	}
	scope, err := e.fixtureScope()
	if err != nil {
		return "", false
	}
	return scope, true
}

func (e Event) fixtureScope() (string, error) {
	if e.Fixture == nil {
		return "", fmt.Errorf("%w: %s event without fixture", ErrMalformedEvent, e.Kind)
	}
	source, err := cleanSource(e.Fixture.Source)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(e.Fixture.ID)
	if id == "" {
		return "", fmt.Errorf("%w: fixture without id", ErrMalformedEvent)
	}
	if strings.Contains(id, ":") {
		return "", fmt.Errorf("%w: fixture id %q contains ':'", ErrMalformedEvent, id)
	}
	return source + ":" + id, nil
}

// goalDisambiguator separates goals scored in the same minute. The scoreline
// after the goal is preferred because it never repeats within a fixture and
// does not change when upstream corrects the scorer.
func goalDisambiguator(g Goal) string {
	if g.HomeScore != nil && g.AwayScore != nil && *g.HomeScore >= 0 && *g.AwayScore >= 0 {
		return strconv.Itoa(*g.HomeScore) + "-" + strconv.Itoa(*g.AwayScore)
	}
	if id := strings.TrimSpace(g.ScorerID); id != "" {
		return "p" + slug(id)
	}
	return slug(g.Scorer)
}

func cleanSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", fmt.Errorf("%w: missing source", ErrMalformedEvent)
	}
	if strings.Contains(source, ":") {
		return "", fmt.Errorf("%w: source %q contains ':'", ErrMalformedEvent, source)
	}
	return source, nil
}

// slug folds accents so that "Reguilón" and "Reguilon" from different upstream
// payloads produce the same identifier.
func slug(s string) string {
	if folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s); err == nil {
		s = folded
	}
	fields := strings.Fields(strings.ToLower(s))
	return strings.ReplaceAll(strings.Join(fields, "-"), ":", "-")
}
