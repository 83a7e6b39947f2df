package scores

import (
	"context"
	"time"

	"github.com/bakkerme/matchday/internal/core"
)

// Filter selects the fixtures a Fetcher returns.
type Filter struct {
	TeamID int
	// Window keeps fixtures whose kickoff is within Window of Now.
	Window time.Duration
	Now    time.Time
}

// Contains reports whether kickoff falls inside the filter window.
func (f Filter) Contains(kickoff time.Time) bool {
	if f.Window <= 0 {
		return true
	}
	delta := kickoff.Sub(f.Now)
	if delta < 0 {
		delta = -delta
	}
	return delta < f.Window
}

// Fetcher returns the current fixtures for a team. Live and finished fixtures
// include their goals when the upstream provides them.
type Fetcher interface {
	Fixtures(ctx context.Context, filter Filter) ([]core.Fixture, error)
}
