package runner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/dedupe"
	dedupemock "github.com/bakkerme/matchday/internal/dedupe/mock"
	socialmock "github.com/bakkerme/matchday/internal/outputs/social/mock"
	"github.com/bakkerme/matchday/internal/processors/output"
	"github.com/bakkerme/matchday/internal/runner/snapshot"
)

var testNow = time.Date(2026, 10, 17, 15, 30, 0, 0, time.UTC)

type stubSource struct {
	name   string
	events []core.Event
	err    error
	calls  int
}

func (s *stubSource) Name() string    { return s.name }
func (s *stubSource) Validate() error { return nil }
func (s *stubSource) Fetch(ctx context.Context) ([]core.Event, error) {
	_ = ctx
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

type recordingNotifier struct {
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Notify(ctx context.Context, subject, body string) error {
	_ = ctx
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func intPtr(v int) *int { return &v }

func spursFixture(phase core.Phase) *core.Fixture {
	return &core.Fixture{
		Source:    "sofascore",
		ID:        "1234",
		Kickoff:   testNow.Add(-50 * time.Minute),
		HomeTeam:  "Tottenham Hotspur",
		AwayTeam:  "Arsenal",
		HomeScore: 2,
		AwayScore: 0,
		Phase:     phase,
	}
}

func goalEvent(f *core.Fixture, minute, home, away int, scorer string) core.Event {
	return core.Event{
		Kind:       core.EventGoal,
		ObservedAt: testNow,
		Fixture:    f,
		Goal:       &core.Goal{Minute: minute, Scorer: scorer, IsHome: true, HomeScore: intPtr(home), AwayScore: intPtr(away)},
	}
}

func newsEvent(guid, title string) core.Event {
	return core.Event{
		Kind:       core.EventNews,
		ObservedAt: testNow,
		News:       &core.NewsItem{Source: "bbc", GUID: guid, Title: title, Link: "https://www.bbc.co.uk/sport/" + guid},
	}
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Formatter == nil {
		formatter, err := output.NewFormatter(config.DefaultDocument().Posts)
		if err != nil {
			t.Fatalf("NewFormatter: %v", err)
		}
		opts.Formatter = formatter
	}
	r, err := New(nil, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.now = func() time.Time { return testNow }
	return r
}

func TestRunOnceFirstRunPostsEverythingThenNothing(t *testing.T) {
	live := spursFixture(core.PhaseLive)
	source := &stubSource{name: "sofascore", events: []core.Event{
		goalEvent(live, 55, 1, 0, "Son"),
		goalEvent(live, 55, 2, 0, "Son"),
	}}
	news := &stubSource{name: "news", events: []core.Event{newsEvent("a", "Spurs news")}}
	store := &dedupemock.Store{}
	poster := &socialmock.Poster{}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source, news}, Poster: poster})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Status != core.RunStatusCompleted || run.Fetched != 3 || len(run.Posts) != 3 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(poster.Posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(poster.Posts))
	}
	for _, id := range []string{"sofascore:1234:goal:55:1-0", "sofascore:1234:goal:55:2-0", "bbc:a"} {
		if !store.State.Has(id) {
			t.Fatalf("expected %s to be persisted, state=%v", id, store.State.IDs())
		}
	}

	run, err = r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(run.Posts) != 0 || run.Skipped != 3 {
		t.Fatalf("expected nothing posted on second run, got %+v", run)
	}
	if len(poster.Posts) != 3 {
		t.Fatalf("expected no new posts, got %d", len(poster.Posts))
	}
	if store.Persists != 1 {
		t.Fatalf("expected no persist when nothing changed, got %d persists", store.Persists)
	}
}

func TestRunOnceFailedPostIsNotMarkedSeen(t *testing.T) {
	source := &stubSource{name: "news", events: []core.Event{newsEvent("a", "first"), newsEvent("b", "second")}}
	store := &dedupemock.Store{}
	poster := &socialmock.Poster{ErrFor: map[string]error{
		"📰 first\nhttps://www.bbc.co.uk/sport/a": errors.New("rate limited"),
	}}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: poster})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if store.State.Has("bbc:a") {
		t.Fatalf("failed post must not be marked seen")
	}
	if !store.State.Has("bbc:b") {
		t.Fatalf("successful post must be marked seen")
	}
	if len(run.Errors) != 1 || run.Errors[0].Stage != "post" || run.Errors[0].EventID != "bbc:a" {
		t.Fatalf("unexpected errors %+v", run.Errors)
	}

	poster.ErrFor = nil
	run, err = r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(run.Posts) != 1 || run.Posts[0].EventID != "bbc:a" {
		t.Fatalf("expected the failed post to be retried, got %+v", run.Posts)
	}
}

func TestRunOnceNothingAfterFulltime(t *testing.T) {
	store := &dedupemock.Store{}
	poster := &socialmock.Poster{}
	finished := spursFixture(core.PhaseFinished)
	source := &stubSource{name: "sofascore", events: []core.Event{{Kind: core.EventFulltime, ObservedAt: testNow, Fixture: finished}}}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: poster})

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// Upstream flips the fixture back to live with a late goal correction.
	live := spursFixture(core.PhaseLive)
	source.events = []core.Event{
		goalEvent(live, 88, 3, 0, "Kane"),
		{Kind: core.EventHalftime, ObservedAt: testNow, Fixture: live},
	}
	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(run.Posts) != 0 || len(poster.Posts) != 1 {
		t.Fatalf("expected nothing after full-time, got %+v", run.Posts)
	}
}

func TestRunOnceSourceFailureDoesNotBlockOthers(t *testing.T) {
	broken := &stubSource{name: "sofascore", err: errors.New("503")}
	news := &stubSource{name: "news", events: []core.Event{newsEvent("a", "Spurs news")}}
	store := &dedupemock.Store{}
	poster := &socialmock.Poster{}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{broken, news}, Poster: poster})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Status != core.RunStatusCompleted || len(run.Posts) != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Errors) != 1 || run.Errors[0].Stage != "source" || run.Errors[0].ProcessorName != "sofascore" {
		t.Fatalf("unexpected errors %+v", run.Errors)
	}
}

func TestRunOnceSkipsMalformedAndDuplicateEvents(t *testing.T) {
	live := spursFixture(core.PhaseLive)
	source := &stubSource{name: "sofascore", events: []core.Event{
		{Kind: core.EventGoal, ObservedAt: testNow, Fixture: live},
		{Kind: core.EventNews, ObservedAt: testNow, News: &core.NewsItem{Source: "bbc", Link: "not a url"}},
		goalEvent(live, 10, 1, 0, "Son"),
		goalEvent(live, 10, 1, 0, "Heung-min Son"),
	}}
	store := &dedupemock.Store{}
	poster := &socialmock.Poster{}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: poster})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(poster.Posts) != 1 {
		t.Fatalf("expected a single post, got %v", poster.Posts)
	}
	if run.Skipped != 3 {
		t.Fatalf("expected 3 skipped, got %d", run.Skipped)
	}
	identify := 0
	for _, e := range run.Errors {
		if e.Stage == "identify" {
			identify++
		}
	}
	if identify != 2 {
		t.Fatalf("expected 2 identify errors, got %+v", run.Errors)
	}
}

func TestRunOncePersistFailureAlertsAndFails(t *testing.T) {
	source := &stubSource{name: "news", events: []core.Event{newsEvent("a", "Spurs news")}}
	store := &dedupemock.Store{PersistErr: errors.New("read-only file system")}
	notifier := &recordingNotifier{}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: &socialmock.Poster{}, Notifier: notifier})

	run, err := r.RunOnce(context.Background())
	if !errors.Is(err, dedupe.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if run.Status != core.RunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
	if len(notifier.subjects) != 1 || !strings.Contains(notifier.bodies[0], "bbc:a") || !strings.Contains(notifier.bodies[0], "read-only") {
		t.Fatalf("unexpected alert %v %v", notifier.subjects, notifier.bodies)
	}
}

func TestRunOncePrunesByRetention(t *testing.T) {
	state, err := dedupe.MarkSeen(dedupe.NewState(), newsEvent("old", "x"), testNow.Add(-40*24*time.Hour))
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	state, err = dedupe.MarkSeen(state, newsEvent("recent", "y"), testNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	store := &dedupemock.Store{State: state}
	r := newRunner(t, Options{Store: store, Poster: &socialmock.Poster{}, Retention: 30 * 24 * time.Hour})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Pruned != 1 || store.Persists != 1 {
		t.Fatalf("expected 1 pruned and a persist, got pruned=%d persists=%d", run.Pruned, store.Persists)
	}
	if store.State.Has("bbc:old") || !store.State.Has("bbc:recent") {
		t.Fatalf("unexpected state %v", store.State.IDs())
	}
}

func TestRunOnceRetentionKeepsItemsStillListed(t *testing.T) {
	finished := spursFixture(core.PhaseFinished)
	listed := []core.Event{
		newsEvent("a", "Spurs news still in feed"),
		{Kind: core.EventFulltime, ObservedAt: testNow, Fixture: finished},
	}
	state := dedupe.NewState()
	for _, event := range append(listed, goalEvent(finished, 30, 1, 0, "Son")) {
		var err error
		state, err = dedupe.MarkSeen(state, event, testNow.Add(-2*time.Hour))
		if err != nil {
			t.Fatalf("MarkSeen: %v", err)
		}
	}
	store := &dedupemock.Store{State: state}
	poster := &socialmock.Poster{}
	source := &stubSource{name: "mixed", events: listed}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: poster, Retention: time.Hour})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(poster.Posts) != 0 {
		t.Fatalf("expected nothing reposted after prune, got %v", poster.Posts)
	}
	if run.Pruned != 0 || store.State.Len() != 3 {
		t.Fatalf("expected listed items and their fixture to survive, pruned=%d ids=%v", run.Pruned, store.State.IDs())
	}

	source.events = nil
	run, err = r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Pruned != 3 || store.State.Len() != 0 {
		t.Fatalf("expected delisted items to be pruned, pruned=%d ids=%v", run.Pruned, store.State.IDs())
	}
}

func TestRunOnceSkipsUntitledNews(t *testing.T) {
	source := &stubSource{name: "news", events: []core.Event{
		{Kind: core.EventNews, ObservedAt: testNow, News: &core.NewsItem{Source: "bbc", GUID: "urn:bbc:123"}},
	}}
	store := &dedupemock.Store{}
	poster := &socialmock.Poster{}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: poster})

	run, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(poster.Posts) != 0 || run.Skipped != 1 {
		t.Fatalf("expected the untitled entry to be skipped, posts=%v skipped=%d", poster.Posts, run.Skipped)
	}
	if store.State.Has("bbc:urn:bbc:123") {
		t.Fatalf("skipped entry must not be marked seen")
	}
}

func TestRunOnceWritesSnapshotAndMetrics(t *testing.T) {
	dir := t.TempDir()
	source := &stubSource{name: "news", events: []core.Event{newsEvent("a", "Spurs news")}}
	r := newRunner(t, Options{
		Store:           &dedupemock.Store{},
		Sources:         []core.SourceProcessor{source},
		Poster:          &socialmock.Poster{},
		SnapshotPath:    filepath.Join(dir, "last-run.json"),
		MetricsTextfile: filepath.Join(dir, "matchday.prom"),
	})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	report, err := snapshot.Load(filepath.Join(dir, "last-run.json"))
	if err != nil {
		t.Fatalf("snapshot.Load: %v", err)
	}
	if report.Status != core.RunStatusCompleted || len(report.Posts) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

type stubTrigger struct {
	events chan core.TriggerEvent
	stops  int
}

func (t *stubTrigger) Name() string    { return "stub" }
func (t *stubTrigger) Validate() error { return nil }
func (t *stubTrigger) Start(ctx context.Context) (<-chan core.TriggerEvent, error) {
	_ = ctx
	return t.events, nil
}
func (t *stubTrigger) Stop() error {
	t.stops++
	return nil
}

func TestStartRunsPerTriggerUntilClosed(t *testing.T) {
	source := &stubSource{name: "news"}
	trigger := &stubTrigger{events: make(chan core.TriggerEvent, 2)}
	trigger.events <- core.TriggerEvent{Timestamp: testNow}
	trigger.events <- core.TriggerEvent{Timestamp: testNow.Add(time.Minute)}
	close(trigger.events)
	r := newRunner(t, Options{Store: &dedupemock.Store{}, Sources: []core.SourceProcessor{source}, Poster: &socialmock.Poster{}})

	if err := r.Start(context.Background(), trigger); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if source.calls != 2 || trigger.stops != 1 {
		t.Fatalf("expected 2 runs and a stop, got calls=%d stops=%d", source.calls, trigger.stops)
	}
}

func TestStartStopsOnPersistFailure(t *testing.T) {
	source := &stubSource{name: "news", events: []core.Event{newsEvent("a", "x")}}
	trigger := &stubTrigger{events: make(chan core.TriggerEvent, 2)}
	trigger.events <- core.TriggerEvent{Timestamp: testNow}
	trigger.events <- core.TriggerEvent{Timestamp: testNow}
	store := &dedupemock.Store{PersistErr: errors.New("disk full")}
	r := newRunner(t, Options{Store: store, Sources: []core.SourceProcessor{source}, Poster: &socialmock.Poster{}})

	err := r.Start(context.Background(), trigger)
	if !errors.Is(err, dedupe.ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected the loop to stop after the first run, got %d runs", source.calls)
	}
}
