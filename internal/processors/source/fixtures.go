package source

import (
	"context"
	"fmt"
	"time"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/sources/scores"
)

// FixtureProcessor turns the team's current fixtures into match announcements.
type FixtureProcessor struct {
	name      string
	teamID    int
	window    time.Duration
	lead      time.Duration
	tolerance time.Duration
	fetcher   scores.Fetcher
	now       func() time.Time
}

func NewFixtureProcessor(team config.TeamConfig, cfg config.ScoresConfig, fetcher scores.Fetcher) (*FixtureProcessor, error) {
	p := &FixtureProcessor{
		name:      cfg.Source,
		teamID:    team.ID,
		window:    cfg.Window.Std(),
		lead:      cfg.PrematchLead.Std(),
		tolerance: cfg.PrematchTolerance.Std(),
		fetcher:   fetcher,
		now:       time.Now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FixtureProcessor) Name() string {
	return p.name
}

func (p *FixtureProcessor) Validate() error {
	if p.fetcher == nil {
		return fmt.Errorf("score fetcher is required")
	}
	if p.teamID <= 0 {
		return fmt.Errorf("team id is required")
	}
	if p.lead <= 0 {
		return fmt.Errorf("prematch lead must be positive")
	}
	return nil
}

func (p *FixtureProcessor) Fetch(ctx context.Context) ([]core.Event, error) {
	now := p.now().UTC()
	fixtures, err := p.fetcher.Fixtures(ctx, scores.Filter{TeamID: p.teamID, Window: p.window, Now: now})
	if err != nil {
		return nil, fmt.Errorf("fetch fixtures: %w", err)
	}
	events := []core.Event{}
	for i := range fixtures {
		events = append(events, p.fixtureEvents(&fixtures[i], now)...)
	}
	return events, nil
}

// fixtureEvents derives the announcements a fixture is currently eligible for.
func (p *FixtureProcessor) fixtureEvents(fixture *core.Fixture, now time.Time) []core.Event {
	event := func(kind core.EventKind) core.Event {
		return core.Event{Kind: kind, ObservedAt: now, Fixture: fixture}
	}
	switch fixture.Phase {
	case core.PhaseScheduled:
		untilKickoff := fixture.Kickoff.Sub(now)
		if untilKickoff >= p.lead-p.tolerance && untilKickoff <= p.lead+p.tolerance {
			return []core.Event{event(core.EventPrematch)}
		}
		return nil
	case core.PhaseLive, core.PhaseHalftime:
		events := make([]core.Event, 0, len(fixture.Goals)+1)
		for i := range fixture.Goals {
			goal := event(core.EventGoal)
			goal.Goal = &fixture.Goals[i]
			events = append(events, goal)
		}
		if fixture.Phase == core.PhaseHalftime {
			events = append(events, event(core.EventHalftime))
		}
		return events
	case core.PhaseFinished:
		return []core.Event{event(core.EventFulltime)}
	default:
		return nil
	}
}
