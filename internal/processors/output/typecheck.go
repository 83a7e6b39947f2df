package output

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/bakkerme/matchday/internal/core"
)

// typeCheck executes tmpl against sample data so that a template naming an
// unknown field fails at startup instead of on the first goal.
func typeCheck(kind core.EventKind, tmpl *template.Template) error {
	if err := tmpl.Execute(io.Discard, samplePostData(kind)); err != nil {
		return fmt.Errorf("%s template type check failed: %w", kind, err)
	}
	return nil
}

func samplePostData(kind core.EventKind) postData {
	kickoff := time.Unix(0, 0).UTC()
	return postData{
		Kind:             kind,
		Home:             "Home",
		Away:             "Away",
		HomeScore:        1,
		AwayScore:        0,
		Scoreline:        "Home 1–0 Away",
		Kickoff:          kickoff,
		KickoffLocal:     kickoff.Format("15:04 MST"),
		MinutesToKickoff: 60,
		Scorer:           "Scorer",
		GoalMinute:       "45+2'",
		Title:            "Example headline",
		Link:             "https://example.com/news/1",
		Source:           "example",
	}
}
