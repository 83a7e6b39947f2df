package factory

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bakkerme/matchday/internal/alert"
	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/dedupe"
	"github.com/bakkerme/matchday/internal/observability/metrics"
	"github.com/bakkerme/matchday/internal/outputs/email"
	"github.com/bakkerme/matchday/internal/outputs/email/smtp"
	"github.com/bakkerme/matchday/internal/outputs/social"
	"github.com/bakkerme/matchday/internal/outputs/social/x"
	"github.com/bakkerme/matchday/internal/processors/output"
	"github.com/bakkerme/matchday/internal/processors/source"
	"github.com/bakkerme/matchday/internal/processors/trigger"
	"github.com/bakkerme/matchday/internal/runner"
	"github.com/bakkerme/matchday/internal/sources/rss"
	rssimpl "github.com/bakkerme/matchday/internal/sources/rss/impl"
	"github.com/bakkerme/matchday/internal/sources/scores"
	scoresimpl "github.com/bakkerme/matchday/internal/sources/scores/impl"
)

// Factory builds the runner's collaborators from env and document config.
// Tests replace the exported clients with mocks before calling the New* methods.
type Factory struct {
	Logger       *slog.Logger
	Env          config.EnvConfig
	Doc          config.Document
	ScoreFetcher scores.Fetcher
	RSSFetcher   rss.Fetcher
	// Poster and EmailSender are built from Env when nil.
	Poster      social.Poster
	EmailSender email.Sender
	Store       dedupe.Store
}

func NewFromEnvConfig(logger *slog.Logger, env config.EnvConfig, doc config.Document) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		Logger:       logger,
		Env:          env,
		Doc:          doc,
		ScoreFetcher: scoresimpl.NewSofaScore(env.SofaScore.BaseURL, env.SofaScore.HTTPTimeout, env.SofaScore.UserAgent, doc.Scores.Source),
		RSSFetcher:   rssimpl.NewFetcher(env.RSS.HTTPTimeout, env.RSS.UserAgent),
	}
}

func (f *Factory) NewSources() ([]core.SourceProcessor, error) {
	sources := []core.SourceProcessor{}
	if f.Doc.Scores.ScoresEnabled() {
		fixtures, err := source.NewFixtureProcessor(f.Doc.Team, f.Doc.Scores, f.ScoreFetcher)
		if err != nil {
			return nil, fmt.Errorf("fixture source: %w", err)
		}
		sources = append(sources, fixtures)
	}
	if len(f.Doc.News.Feeds) > 0 {
		news, err := source.NewNewsProcessor(f.Doc.News, f.RSSFetcher)
		if err != nil {
			return nil, fmt.Errorf("news source: %w", err)
		}
		sources = append(sources, news)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources configured: enable scores or add news feeds")
	}
	return sources, nil
}

// NewPoster returns the configured poster. Dry runs only log.
func (f *Factory) NewPoster(dryRun bool) (social.Poster, error) {
	if dryRun {
		return social.NewLogPoster(), nil
	}
	if f.Poster != nil {
		return f.Poster, nil
	}
	return x.NewPoster(f.Env.Twitter)
}

// NewNotifier mails alerts when SMTP and a recipient are configured and logs them otherwise.
func (f *Factory) NewNotifier() (alert.Notifier, error) {
	if !f.Env.Alert.Enabled(f.Env.SMTP) {
		return alert.LogNotifier{}, nil
	}
	sender := f.EmailSender
	if sender == nil {
		smtpSender, err := smtp.NewSender(f.Env.SMTP)
		if err != nil {
			return nil, err
		}
		sender = smtpSender
	}
	return alert.NewEmailNotifier(sender, f.Env.Alert.EmailFrom, f.Env.Alert.EmailTo)
}

func (f *Factory) NewStore() (dedupe.Store, error) {
	if f.Store != nil {
		return f.Store, nil
	}
	return dedupe.Open(f.Env.State.Backend, f.Env.State.Path)
}

func (f *Factory) NewTrigger() (core.TriggerProcessor, error) {
	return trigger.NewCronProcessor(f.Doc.Schedule)
}

// validateRetention rejects a retention that expires ids while their fixture
// can still be returned by the score source.
func (f *Factory) validateRetention() error {
	retention := f.Env.State.Retention
	if retention <= 0 || !f.Doc.Scores.ScoresEnabled() {
		return nil
	}
	floor := 2 * time.Duration(f.Doc.Scores.Window)
	if retention < floor {
		return fmt.Errorf("STATE_RETENTION %s is shorter than twice the scores window (%s)", retention, floor)
	}
	return nil
}

// NewRunner wires every collaborator. The caller closes the returned store.
func (f *Factory) NewRunner(dryRun bool) (*runner.Runner, dedupe.Store, error) {
	if err := f.validateRetention(); err != nil {
		return nil, nil, err
	}
	sources, err := f.NewSources()
	if err != nil {
		return nil, nil, err
	}
	formatter, err := output.NewFormatter(f.Doc.Posts)
	if err != nil {
		return nil, nil, err
	}
	poster, err := f.NewPoster(dryRun)
	if err != nil {
		return nil, nil, err
	}
	notifier, err := f.NewNotifier()
	if err != nil {
		return nil, nil, err
	}
	store, err := f.NewStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}
	r, err := runner.New(f.Logger, runner.Options{
		Store:           store,
		Sources:         sources,
		Formatter:       formatter,
		Poster:          poster,
		Notifier:        notifier,
		Retention:       f.Env.State.Retention,
		Metrics:         metrics.New(),
		MetricsTextfile: f.Env.MetricsTextfile,
		SnapshotPath:    f.Env.RunSnapshotPath,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return r, store, nil
}
