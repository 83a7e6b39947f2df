package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bakkerme/matchday/internal/alert"
	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/dedupe"
	"github.com/bakkerme/matchday/internal/observability/metrics"
	"github.com/bakkerme/matchday/internal/observability/otelx"
	"github.com/bakkerme/matchday/internal/outputs/social"
	"github.com/bakkerme/matchday/internal/runner/snapshot"
)

// Formatter renders an event into post text.
type Formatter interface {
	Render(event core.Event) (string, error)
}

type Options struct {
	Store     dedupe.Store
	Sources   []core.SourceProcessor
	Formatter Formatter
	Poster    social.Poster
	// Notifier receives the alert when state cannot be saved. Defaults to logging.
	Notifier alert.Notifier
	// Retention drops seen identifiers older than this at the start of each run. Zero keeps everything.
	Retention time.Duration
	Metrics   *metrics.Metrics
	// MetricsTextfile and SnapshotPath are written after every run when set.
	MetricsTextfile string
	SnapshotPath    string
}

type Runner struct {
	logger  *slog.Logger
	opts    Options
	tracer  trace.Tracer
	now     func() time.Time
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, opts Options) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if opts.Formatter == nil {
		return nil, fmt.Errorf("formatter is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("poster is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = alert.LogNotifier{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Runner{
		logger:  logger,
		opts:    opts,
		tracer:  otelx.Tracer(),
		now:     time.Now,
		metrics: m,
	}, nil
}

// Start runs one invocation per trigger event until ctx is cancelled or the
// trigger closes. Invocations never overlap. A state persist failure stops the
// loop and is returned.
func (r *Runner) Start(ctx context.Context, trigger core.TriggerProcessor) error {
	if trigger == nil {
		return fmt.Errorf("trigger is required")
	}
	events, err := trigger.Start(ctx)
	if err != nil {
		return fmt.Errorf("start %s trigger: %w", trigger.Name(), err)
	}
	defer func() { _ = trigger.Stop() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			r.logger.Info("trigger event", "trigger", trigger.Name(), "time", event.Timestamp)
			if _, err := r.RunOnce(ctx); err != nil {
				if errors.Is(err, dedupe.ErrPersist) {
					return err
				}
				r.logger.Error("run failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single load, fetch, post, persist cycle. Failures of a
// single source, event or post are recorded on the run and do not fail it;
// only a state persist failure does.
func (r *Runner) RunOnce(ctx context.Context) (*core.Run, error) {
	startedAt := r.now().UTC()
	run := &core.Run{
		ID:        "run-" + uuid.NewString(),
		StartedAt: startedAt,
		Status:    core.RunStatusRunning,
	}
	logger := r.logger.With("run_id", run.ID)
	ctx = core.WithLogger(core.WithRunID(ctx, run.ID), logger)
	ctx, span := r.tracer.Start(ctx, "matchday.run", trace.WithAttributes(attribute.String("run_id", run.ID)))
	defer span.End()

	state := r.opts.Store.Load(ctx)
	logger.Info("run started", "seen_ids", state.Len())

	events := r.fetchAll(ctx, run)
	run.Fetched = len(events)

	dirty := false
	if r.opts.Retention > 0 {
		var pruned int
		state, pruned = dedupe.Prune(state, startedAt.Add(-r.opts.Retention), stillListed(events))
		if pruned > 0 {
			run.Pruned = pruned
			r.metrics.StatePruned.Add(float64(pruned))
			dirty = true
			logger.Info("pruned expired ids", "pruned", pruned, "seen_ids", state.Len())
		}
	}

	for _, event := range events {
		next, posted := r.announce(ctx, run, state, event)
		state = next
		dirty = dirty || posted
	}

	if dirty {
		if err := r.opts.Store.Persist(ctx, state); err != nil {
			r.recordError(run, "state", "persist", "", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "state persist failed")
			logger.Error("state persist failed", "error", err)
			r.alertPersistFailure(ctx, run, err)
			r.finish(ctx, run, core.RunStatusFailed, state)
			return run, fmt.Errorf("run %s: %w", run.ID, err)
		}
	}

	r.finish(ctx, run, core.RunStatusCompleted, state)
	span.SetAttributes(
		attribute.Int("events.fetched", run.Fetched),
		attribute.Int("events.posted", len(run.Posts)),
		attribute.Int("events.skipped", run.Skipped),
	)
	logger.Info("run completed",
		"fetched", run.Fetched,
		"posted", len(run.Posts),
		"skipped", run.Skipped,
		"errors", len(run.Errors),
		"persisted", dirty,
	)
	return run, nil
}

// stillListed reports whether an identifier belongs to something upstream is
// still returning: an event in this batch or any event of a fixture in it.
// Such identifiers are never pruned.
func stillListed(events []core.Event) func(id string) bool {
	ids := make(map[string]struct{}, len(events))
	scopes := make(map[string]struct{})
	for _, event := range events {
		if id, err := event.ID(); err == nil {
			ids[id] = struct{}{}
		}
		if scope, ok := event.FixtureScope(); ok {
			scopes[scope] = struct{}{}
		}
	}
	return func(id string) bool {
		if _, ok := ids[id]; ok {
			return true
		}
		for scope := range scopes {
			if strings.HasPrefix(id, scope+":") {
				return true
			}
		}
		return false
	}
}

func (r *Runner) fetchAll(ctx context.Context, run *core.Run) []core.Event {
	logger := core.LoggerFromContext(ctx)
	events := []core.Event{}
	for _, source := range r.opts.Sources {
		if source == nil {
			continue
		}
		sourceCtx, span := r.tracer.Start(ctx, "matchday.fetch", trace.WithAttributes(attribute.String("source", source.Name())))
		fetched, err := source.Fetch(core.WithLogger(sourceCtx, logger.With("source", source.Name())))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			span.End()
			logger.Warn("source fetch failed, skipping", "source", source.Name(), "error", err)
			r.metrics.SourceErrorsTotal.WithLabelValues(source.Name()).Inc()
			r.recordError(run, source.Name(), "source", "", err)
			continue
		}
		span.SetAttributes(attribute.Int("events", len(fetched)))
		span.End()
		r.metrics.EventsFetched.WithLabelValues(source.Name()).Add(float64(len(fetched)))
		logger.Debug("source fetched", "source", source.Name(), "events", len(fetched))
		events = append(events, fetched...)
	}
	return events
}

// announce posts event if it is new and returns the updated state. The
// identifier is recorded only after the post succeeded.
func (r *Runner) announce(ctx context.Context, run *core.Run, state dedupe.State, event core.Event) (dedupe.State, bool) {
	logger := core.LoggerFromContext(ctx)
	id, err := event.ID()
	if err != nil {
		run.Skipped++
		r.metrics.EventsSkipped.WithLabelValues("malformed").Inc()
		logger.Warn("skipping malformed event", "kind", event.Kind, "error", err)
		r.recordError(run, string(event.Kind), "identify", "", err)
		return state, false
	}
	if !dedupe.IsNew(state, event) {
		run.Skipped++
		r.metrics.EventsSkipped.WithLabelValues("seen").Inc()
		logger.Debug("event already announced", "event_id", id)
		return state, false
	}
	text, err := r.opts.Formatter.Render(event)
	if err != nil {
		run.Skipped++
		r.metrics.EventsSkipped.WithLabelValues("render").Inc()
		logger.Warn("skipping event that failed to render", "event_id", id, "error", err)
		r.recordError(run, string(event.Kind), "render", id, err)
		return state, false
	}

	postCtx, span := r.tracer.Start(ctx, "matchday.post", trace.WithAttributes(
		attribute.String("event_id", id),
		attribute.String("kind", string(event.Kind)),
	))
	postID, err := r.opts.Poster.Post(postCtx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post failed")
		span.End()
		r.metrics.PostsTotal.WithLabelValues(string(event.Kind), "failed").Inc()
		logger.Error("post failed, will retry on a later run", "event_id", id, "error", err)
		r.recordError(run, string(event.Kind), "post", id, err)
		return state, false
	}
	span.End()

	postedAt := r.now().UTC()
	next, err := dedupe.MarkSeen(state, event, postedAt)
	if err != nil {
		r.recordError(run, string(event.Kind), "mark", id, err)
		return state, false
	}
	r.metrics.PostsTotal.WithLabelValues(string(event.Kind), "posted").Inc()
	run.Posts = append(run.Posts, core.PostRecord{
		EventID:  id,
		Kind:     event.Kind,
		PostID:   postID,
		Text:     text,
		PostedAt: postedAt,
	})
	logger.Info("posted", "event_id", id, "post_id", postID)
	return next, true
}

func (r *Runner) alertPersistFailure(ctx context.Context, run *core.Run, err error) {
	var body strings.Builder
	fmt.Fprintf(&body, "**Seen-event state could not be saved.** Announcements from this run may be repeated on the next run.\n\n")
	fmt.Fprintf(&body, "- run: `%s`\n", run.ID)
	fmt.Fprintf(&body, "- error: %s\n", err)
	if len(run.Posts) > 0 {
		fmt.Fprintf(&body, "\nPosted this run:\n\n")
		for _, post := range run.Posts {
			fmt.Fprintf(&body, "- `%s` (post %s)\n", post.EventID, post.PostID)
		}
	}
	if notifyErr := r.opts.Notifier.Notify(ctx, "state persist failed", body.String()); notifyErr != nil {
		core.LoggerFromContext(ctx).Error("alert delivery failed", "error", notifyErr)
	}
}

func (r *Runner) finish(ctx context.Context, run *core.Run, status core.RunStatus, state dedupe.State) {
	logger := core.LoggerFromContext(ctx)
	completedAt := r.now().UTC()
	run.CompletedAt = &completedAt
	run.Status = status

	r.metrics.StateEntries.Set(float64(state.Len()))
	r.metrics.ObserveRun(string(status), run.StartedAt, completedAt)
	if r.opts.MetricsTextfile != "" {
		if err := r.metrics.WriteTextfile(r.opts.MetricsTextfile); err != nil {
			logger.Warn("metrics textfile not written", "error", err)
		}
	}
	if r.opts.SnapshotPath != "" {
		if err := snapshot.Save(r.opts.SnapshotPath, run); err != nil {
			logger.Warn("run snapshot not written", "error", err)
		}
	}
}

func (r *Runner) recordError(run *core.Run, processor, stage, eventID string, err error) {
	run.Errors = append(run.Errors, core.ProcessError{
		ProcessorName: processor,
		Stage:         stage,
		EventID:       eventID,
		Error:         err.Error(),
		OccurredAt:    r.now().UTC(),
	})
}
