package output

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
)

const ellipsis = "…"

var defaultTemplates = map[core.EventKind]string{
	core.EventPrematch: "📅 Next Match (in ~{{.MinutesToKickoff}}m)\n{{.Home}} vs {{.Away}}\nKick-off: {{.KickoffLocal}}",
	core.EventGoal:     "⚽ GOAL!\n{{.Scoreline}}{{if .Scorer}}\n{{.Scorer}} {{.GoalMinute}}{{end}}",
	core.EventHalftime: "⏸️ Halftime: {{.Scoreline}}",
	core.EventFulltime: "🔔 Full-time: {{.Scoreline}}",
	core.EventNews:     "📰 {{.Title}}\n{{.Link}}",
}

// Formatter renders events into post text.
type Formatter struct {
	templates map[core.EventKind]*template.Template
	hashtags  string
	maxLength int
	location  *time.Location
	now       func() time.Time
}

// postData is what post templates see.
type postData struct {
	Kind             core.EventKind
	Home             string
	Away             string
	HomeScore        int
	AwayScore        int
	Scoreline        string
	Kickoff          time.Time
	KickoffLocal     string
	MinutesToKickoff int
	Scorer           string
	GoalMinute       string
	Title            string
	Link             string
	Source           string
}

func NewFormatter(cfg config.PostsConfig) (*Formatter, error) {
	location := time.UTC
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load post timezone: %w", err)
		}
		location = loc
	}
	overrides := map[core.EventKind]string{
		core.EventPrematch: cfg.Templates.Prematch,
		core.EventGoal:     cfg.Templates.Goal,
		core.EventHalftime: cfg.Templates.Halftime,
		core.EventFulltime: cfg.Templates.Fulltime,
		core.EventNews:     cfg.Templates.News,
	}
	f := &Formatter{
		templates: make(map[core.EventKind]*template.Template, len(defaultTemplates)),
		hashtags:  strings.TrimSpace(cfg.Hashtags),
		maxLength: cfg.MaxLength,
		location:  location,
		now:       time.Now,
	}
	if f.maxLength <= 1 {
		f.maxLength = 280
	}
	for kind, text := range defaultTemplates {
		if strings.TrimSpace(overrides[kind]) != "" {
			text = overrides[kind]
		}
		tmpl, err := template.New(string(kind)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		if err := typeCheck(kind, tmpl); err != nil {
			return nil, err
		}
		f.templates[kind] = tmpl
	}
	return f, nil
}

// Render returns the post text for event. Match posts carry the hashtags;
// news posts do not.
func (f *Formatter) Render(event core.Event) (string, error) {
	tmpl, ok := f.templates[event.Kind]
	if !ok {
		return "", fmt.Errorf("no template for %q events", event.Kind)
	}
	data, err := f.data(event)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	if err := tmpl.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", event.Kind, err)
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", fmt.Errorf("%s template rendered empty text", event.Kind)
	}
	if event.Kind != core.EventNews && f.hashtags != "" {
		text += "\n" + f.hashtags
	}
	return Truncate(text, f.maxLength), nil
}

func (f *Formatter) data(event core.Event) (postData, error) {
	data := postData{Kind: event.Kind}
	if event.Kind == core.EventNews {
		if event.News == nil {
			return postData{}, fmt.Errorf("%w: news event without news data", core.ErrMalformedEvent)
		}
		data.Title = strings.TrimSpace(event.News.Title)
		if data.Title == "" {
			return postData{}, fmt.Errorf("%w: news item without title", core.ErrMalformedEvent)
		}
		data.Link = event.News.Link
		data.Source = event.News.Source
		return data, nil
	}
	fixture := event.Fixture
	if fixture == nil {
		return postData{}, fmt.Errorf("%w: %s event without fixture", core.ErrMalformedEvent, event.Kind)
	}
	data.Home = fixture.HomeTeam
	data.Away = fixture.AwayTeam
	data.HomeScore = fixture.HomeScore
	data.AwayScore = fixture.AwayScore
	data.Source = fixture.Source
	data.Kickoff = fixture.Kickoff.In(f.location)
	data.KickoffLocal = data.Kickoff.Format("15:04 MST")
	observed := event.ObservedAt
	if observed.IsZero() {
		observed = f.now()
	}
	if minutes := int(fixture.Kickoff.Sub(observed).Round(time.Minute) / time.Minute); minutes > 0 {
		data.MinutesToKickoff = minutes
	}
	if goal := event.Goal; goal != nil {
		if goal.HomeScore != nil && goal.AwayScore != nil {
			data.HomeScore, data.AwayScore = *goal.HomeScore, *goal.AwayScore
		}
		data.Scorer = strings.TrimSpace(goal.Scorer)
		data.GoalMinute = strconv.Itoa(goal.Minute) + "'"
		if goal.AddedTime > 0 {
			data.GoalMinute = strconv.Itoa(goal.Minute) + "+" + strconv.Itoa(goal.AddedTime) + "'"
		}
	}
	data.Scoreline = fmt.Sprintf("%s %d–%d %s", data.Home, data.HomeScore, data.AwayScore, data.Away)
	return data, nil
}

// Truncate shortens text to at most max runes, ending with an ellipsis when cut.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max-1]) + ellipsis
}
