package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/sources/scores"
	"github.com/go-playground/validator/v10"
)

const maxResponseBytes = 4 << 20

// SofaScore reads fixtures and incidents from the public SofaScore JSON API.
type SofaScore struct {
	client    *http.Client
	baseURL   string
	userAgent string
	source    string
	validate  *validator.Validate
}

func NewSofaScore(baseURL string, timeout time.Duration, userAgent, source string) *SofaScore {
	if source == "" {
		source = "sofascore"
	}
	return &SofaScore{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		source:    source,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

type eventsResponse struct {
	Events []json.RawMessage `json:"events"`
}

type eventRecord struct {
	ID             int64        `json:"id" validate:"gt=0"`
	StartTimestamp int64        `json:"startTimestamp" validate:"gt=0"`
	Status         statusRecord `json:"status" validate:"required"`
	HomeTeam       teamRecord   `json:"homeTeam" validate:"required"`
	AwayTeam       teamRecord   `json:"awayTeam" validate:"required"`
	HomeScore      scoreRecord  `json:"homeScore"`
	AwayScore      scoreRecord  `json:"awayScore"`
}

type statusRecord struct {
	Type        string `json:"type" validate:"required"`
	Description string `json:"description"`
}

type teamRecord struct {
	ID        int64  `json:"id" validate:"gt=0"`
	Name      string `json:"name" validate:"required"`
	ShortName string `json:"shortName"`
}

type scoreRecord struct {
	Current *int `json:"current" validate:"omitnil,gte=0"`
}

type incidentsResponse struct {
	Incidents []json.RawMessage `json:"incidents"`
}

type incidentRecord struct {
	IncidentType string        `json:"incidentType"`
	Type         string        `json:"type"`
	Time         int           `json:"time" validate:"gt=0"`
	AddedTime    int           `json:"addedTime"`
	IsHome       *bool         `json:"isHome" validate:"required"`
	Player       *playerRecord `json:"player"`
	PlayerName   string        `json:"playerName"`
	// The scoreline after the goal identifies it, so a goal incident without
	// one is skipped until upstream fills it in.
	HomeScore *int `json:"homeScore" validate:"required,gte=0"`
	AwayScore *int `json:"awayScore" validate:"required,gte=0"`
}

type playerRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

func (r incidentRecord) kind() string {
	if r.IncidentType != "" {
		return r.IncidentType
	}
	return r.Type
}

func (s *SofaScore) Fixtures(ctx context.Context, filter scores.Filter) ([]core.Fixture, error) {
	logger := core.LoggerFromContext(ctx).With("source", s.source)
	if filter.TeamID <= 0 {
		return nil, fmt.Errorf("team id is required")
	}
	if filter.Now.IsZero() {
		filter.Now = time.Now()
	}

	// The next listing can miss a match that already kicked off, so the
	// last listing is read as well.
	var raws []json.RawMessage
	var errs []error
	for _, listing := range []string{"next", "last"} {
		var resp eventsResponse
		path := fmt.Sprintf("/team/%d/events/%s/0", filter.TeamID, listing)
		if err := s.getJSON(ctx, path, &resp); err != nil {
			logger.Warn("fixture listing failed", "listing", listing, "error", err)
			errs = append(errs, fmt.Errorf("%s events: %w", listing, err))
			continue
		}
		raws = append(raws, resp.Events...)
	}
	if len(errs) == 2 {
		return nil, errors.Join(errs...)
	}

	seen := map[int64]bool{}
	fixtures := []core.Fixture{}
	for _, raw := range raws {
		record, err := s.decodeEvent(raw)
		if err != nil {
			logger.Warn("skipping malformed fixture record", "error", err)
			continue
		}
		if seen[record.ID] {
			continue
		}
		seen[record.ID] = true
		if record.HomeTeam.ID != int64(filter.TeamID) && record.AwayTeam.ID != int64(filter.TeamID) {
			continue
		}
		fixture, ok := s.toFixture(record)
		if !ok {
			logger.Warn("skipping fixture with unknown status", "fixture_id", record.ID, "status", record.Status.Type)
			continue
		}
		if !filter.Contains(fixture.Kickoff) {
			continue
		}
		if fixture.Phase == core.PhaseLive || fixture.Phase == core.PhaseHalftime {
			goals, err := s.goals(ctx, record.ID)
			if err != nil {
				logger.Warn("incidents unavailable, goals skipped this run", "fixture_id", record.ID, "error", err)
			}
			fixture.Goals = goals
		}
		fixtures = append(fixtures, fixture)
	}

	sort.SliceStable(fixtures, func(i, j int) bool {
		return fixtures[i].Kickoff.Before(fixtures[j].Kickoff)
	})
	return fixtures, nil
}

func (s *SofaScore) decodeEvent(raw json.RawMessage) (eventRecord, error) {
	var record eventRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return eventRecord{}, fmt.Errorf("decode event: %w", err)
	}
	if err := s.validate.Struct(record); err != nil {
		return eventRecord{}, fmt.Errorf("event %d: %w", record.ID, err)
	}
	return record, nil
}

func (s *SofaScore) toFixture(record eventRecord) (core.Fixture, bool) {
	phase, ok := mapPhase(record.Status)
	if !ok {
		return core.Fixture{}, false
	}
	return core.Fixture{
		Source:    s.source,
		ID:        strconv.FormatInt(record.ID, 10),
		Kickoff:   time.Unix(record.StartTimestamp, 0).UTC(),
		HomeTeam:  teamName(record.HomeTeam),
		AwayTeam:  teamName(record.AwayTeam),
		HomeScore: currentScore(record.HomeScore),
		AwayScore: currentScore(record.AwayScore),
		Phase:     phase,
	}, true
}

func (s *SofaScore) goals(ctx context.Context, eventID int64) ([]core.Goal, error) {
	logger := core.LoggerFromContext(ctx).With("source", s.source, "fixture_id", eventID)
	var resp incidentsResponse
	if err := s.getJSON(ctx, fmt.Sprintf("/event/%d/incidents", eventID), &resp); err != nil {
		return nil, err
	}
	goals := []core.Goal{}
	for _, raw := range resp.Incidents {
		var record incidentRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			logger.Warn("skipping malformed incident", "error", err)
			continue
		}
		if record.kind() != "goal" {
			continue
		}
		if err := s.validate.Struct(record); err != nil {
			logger.Warn("skipping malformed goal incident", "error", err)
			continue
		}
		goal := core.Goal{
			Minute:    record.Time,
			IsHome:    *record.IsHome,
			Scorer:    record.PlayerName,
			HomeScore: record.HomeScore,
			AwayScore: record.AwayScore,
		}
		// SofaScore uses large sentinel values when there is no added time.
		if record.AddedTime > 0 && record.AddedTime < 60 {
			goal.AddedTime = record.AddedTime
		}
		if record.Player != nil {
			if record.Player.ID > 0 {
				goal.ScorerID = strconv.FormatInt(record.Player.ID, 10)
			}
			if record.Player.Name != "" {
				goal.Scorer = record.Player.Name
			}
		}
		goals = append(goals, goal)
	}
	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].Minute != goals[j].Minute {
			return goals[i].Minute < goals[j].Minute
		}
		return goals[i].AddedTime < goals[j].AddedTime
	})
	return goals, nil
}

func (s *SofaScore) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func mapPhase(status statusRecord) (core.Phase, bool) {
	switch strings.ToLower(status.Type) {
	case "notstarted", "delayed":
		return core.PhaseScheduled, true
	case "inprogress", "live", "interrupted":
		if strings.EqualFold(strings.TrimSpace(status.Description), "halftime") {
			return core.PhaseHalftime, true
		}
		return core.PhaseLive, true
	case "finished", "afterextra", "penalties":
		return core.PhaseFinished, true
	case "postponed", "canceled", "cancelled", "abandoned":
		return core.PhaseCancelled, true
	default:
		return "", false
	}
}

func teamName(team teamRecord) string {
	if team.ShortName != "" {
		return team.ShortName
	}
	return team.Name
}

func currentScore(score scoreRecord) int {
	if score.Current == nil {
		return 0
	}
	return *score.Current
}
