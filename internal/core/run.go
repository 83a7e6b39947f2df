package core

import "time"

// Run represents a single invocation of the fetch, diff, post, persist cycle.
type Run struct {
	ID          string         `json:"id" yaml:"id"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status      RunStatus      `json:"status" yaml:"status"`
	Fetched     int            `json:"fetched" yaml:"fetched"`
	Posts       []PostRecord   `json:"posts,omitempty" yaml:"posts,omitempty"`
	Skipped     int            `json:"skipped" yaml:"skipped"`
	Pruned      int            `json:"pruned" yaml:"pruned"`
	Errors      []ProcessError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// RunStatus represents the current state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PostRecord is one successful announcement.
type PostRecord struct {
	EventID  string    `json:"event_id" yaml:"event_id"`
	Kind     EventKind `json:"kind" yaml:"kind"`
	PostID   string    `json:"post_id,omitempty" yaml:"post_id,omitempty"`
	Text     string    `json:"text" yaml:"text"`
	PostedAt time.Time `json:"posted_at" yaml:"posted_at"`
}

// ProcessError tracks a non-fatal error that occurred during a run.
type ProcessError struct {
	ProcessorName string    `json:"processor_name" yaml:"processor_name"`
	Stage         string    `json:"stage" yaml:"stage"` // "source", "identify", "render", "post", "mark", "persist"
	EventID       string    `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	Error         string    `json:"error" yaml:"error"`
	OccurredAt    time.Time `json:"occurred_at" yaml:"occurred_at"`
}
