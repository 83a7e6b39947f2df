package core

import (
	"context"
	"time"
)

// Processor is the base interface that all processors implement.
type Processor interface {
	// Name returns the processor name used in logs and metrics.
	Name() string
	// Validate checks if the processor configuration is valid.
	Validate() error
}

// TriggerEvent represents a trigger firing.
type TriggerEvent struct {
	Timestamp time.Time
}

// TriggerProcessor decides when an invocation runs.
type TriggerProcessor interface {
	Processor
	// Start begins the trigger and returns a channel of trigger events.
	// The channel is closed when the trigger stops.
	Start(ctx context.Context) (<-chan TriggerEvent, error)
	// Stop gracefully shuts down the trigger.
	Stop() error
}

// SourceProcessor fetches upstream data and turns it into announcement candidates.
type SourceProcessor interface {
	Processor
	// Fetch retrieves the current upstream data. An error means nothing from
	// this source should be considered during the invocation.
	Fetch(ctx context.Context) ([]Event, error)
}
