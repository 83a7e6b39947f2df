package social

import (
	"context"
	"fmt"
	"time"

	"github.com/bakkerme/matchday/internal/core"
)

// Poster publishes a single post and returns the platform's post id.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// LogPoster only logs what would have been posted. Used for dry runs.
type LogPoster struct {
	now func() time.Time
}

func NewLogPoster() *LogPoster {
	return &LogPoster{now: time.Now}
}

func (p *LogPoster) Post(ctx context.Context, text string) (string, error) {
	id := fmt.Sprintf("dry-run-%d", p.now().UnixNano())
	core.LoggerFromContext(ctx).Info("dry run: would post", "post_id", id, "text", text)
	return id, nil
}
