package mock

import (
	"context"
	"fmt"
)

// Poster records posts. Err fails every call; ErrFor fails posts with matching text.
type Poster struct {
	Posts  []string
	Err    error
	ErrFor map[string]error
}

func (p *Poster) Post(ctx context.Context, text string) (string, error) {
	_ = ctx
	if p.Err != nil {
		return "", p.Err
	}
	if err, ok := p.ErrFor[text]; ok {
		return "", err
	}
	p.Posts = append(p.Posts, text)
	return fmt.Sprintf("post-%d", len(p.Posts)), nil
}
