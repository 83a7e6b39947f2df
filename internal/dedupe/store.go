package dedupe

import (
	"context"
	"errors"
)

// ErrPersist marks a failure to write state. Posts already sent cannot be
// taken back, so callers treat it as fatal for the invocation.
var ErrPersist = errors.New("persist state")

// Store loads and persists the seen-identifier state between invocations.
type Store interface {
	// Load never fails: missing or unreadable state yields an empty State.
	Load(ctx context.Context) State
	// Persist replaces the stored state atomically.
	Persist(ctx context.Context, state State) error
	Close() error
}
