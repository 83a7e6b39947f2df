package mock

import (
	"context"

	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/sources/scores"
)

type Fetcher struct {
	Items   []core.Fixture
	Err     error
	Filters []scores.Filter
}

func (f *Fetcher) Fixtures(ctx context.Context, filter scores.Filter) ([]core.Fixture, error) {
	_ = ctx
	f.Filters = append(f.Filters, filter)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]core.Fixture, len(f.Items))
	copy(out, f.Items)
	return out, nil
}
