package mock

import (
	"context"
	"fmt"

	"github.com/bakkerme/matchday/internal/dedupe"
)

// Store keeps state in memory. PersistErr makes every Persist fail with an
// error wrapping dedupe.ErrPersist.
type Store struct {
	State      dedupe.State
	PersistErr error
	Persists   int
	Loads      int
}

func (s *Store) Load(ctx context.Context) dedupe.State {
	_ = ctx
	s.Loads++
	if s.State.Len() == 0 {
		return dedupe.NewState()
	}
	return s.State
}

func (s *Store) Persist(ctx context.Context, state dedupe.State) error {
	_ = ctx
	if s.PersistErr != nil {
		return fmt.Errorf("%w: %w", dedupe.ErrPersist, s.PersistErr)
	}
	s.Persists++
	s.State = state
	return nil
}

func (s *Store) Close() error {
	return nil
}
