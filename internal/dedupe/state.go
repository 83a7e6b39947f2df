package dedupe

import (
	"maps"
	"slices"
	"time"

	"github.com/bakkerme/matchday/internal/core"
)

// State is the set of already-announced identifiers, each mapped to the time
// it was first recorded. The zero value is an empty state.
type State struct {
	seen map[string]time.Time
}

// NewState returns an empty state.
func NewState() State {
	return State{seen: map[string]time.Time{}}
}

// Len returns the number of seen identifiers.
func (s State) Len() int {
	return len(s.seen)
}

// Has reports whether id has been recorded.
func (s State) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// SeenAt returns when id was first recorded.
func (s State) SeenAt(id string) (time.Time, bool) {
	at, ok := s.seen[id]
	return at, ok
}

// IDs returns the seen identifiers in sorted order.
func (s State) IDs() []string {
	return slices.Sorted(maps.Keys(s.seen))
}

// Equal compares two states as sets, including first-seen times.
func (s State) Equal(other State) bool {
	return maps.EqualFunc(s.seen, other.seen, func(a, b time.Time) bool { return a.Equal(b) })
}

// with returns a copy of s with id recorded at at, keeping an existing entry.
func (s State) with(id string, at time.Time) State {
	if s.Has(id) {
		return s
	}
	next := make(map[string]time.Time, len(s.seen)+1)
	maps.Copy(next, s.seen)
	next[id] = at.UTC()
	return State{seen: next}
}

// IsNew reports whether event has not been announced yet. Events whose
// identifier cannot be derived are never new, and once a fixture's full-time
// has been recorded no further event for it is new.
func IsNew(state State, event core.Event) bool {
	id, err := event.ID()
	if err != nil {
		return false
	}
	if state.Has(id) {
		return false
	}
	if scope, ok := event.FixtureScope(); ok && state.Has(scope+":"+string(core.EventFulltime)) {
		return false
	}
	return true
}

// MarkSeen returns a new state with event's identifier recorded. The input
// state is left untouched and marking an already seen event is a no-op.
func MarkSeen(state State, event core.Event, at time.Time) (State, error) {
	id, err := event.ID()
	if err != nil {
		return state, err
	}
	return state.with(id, at), nil
}

// Prune drops identifiers first recorded before cutoff and reports how many
// were removed. Identifiers for which keep reports true survive regardless of
// age; keep may be nil.
func Prune(state State, cutoff time.Time, keep func(id string) bool) (State, int) {
	removed := 0
	next := make(map[string]time.Time, len(state.seen))
	for id, at := range state.seen {
		if at.Before(cutoff) && (keep == nil || !keep(id)) {
			removed++
			continue
		}
		next[id] = at
	}
	if removed == 0 {
		return state, 0
	}
	return State{seen: next}, removed
}
