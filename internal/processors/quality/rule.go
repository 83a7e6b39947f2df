package quality

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// NewsEnv is what a news rule sees for each feed entry.
type NewsEnv struct {
	Title       string
	Link        string
	Source      string
	Categories  []string
	PublishedAt time.Time
	// AgeHours is zero when the entry carries no publish date.
	AgeHours float64
}

// Rule is a compiled expr-lang boolean expression over NewsEnv. A nil Rule
// keeps everything.
type Rule struct {
	source  string
	program *vm.Program
}

// CompileRule returns nil for an empty expression.
func CompileRule(expression string) (*Rule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.Env(NewsEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile news rule: %w", err)
	}
	return &Rule{source: expression, program: program}, nil
}

func (r *Rule) String() string {
	if r == nil {
		return "true"
	}
	return r.source
}

// Keep reports whether env passes the rule.
func (r *Rule) Keep(env NewsEnv) (bool, error) {
	if r == nil {
		return true, nil
	}
	result, err := expr.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate news rule %q: %w", r.source, err)
	}
	keep, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("news rule %q did not return bool", r.source)
	}
	return keep, nil
}
