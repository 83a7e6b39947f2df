package quality

import (
	"testing"
	"time"
)

func TestCompileRuleEmptyKeepsEverything(t *testing.T) {
	rule, err := CompileRule("  ")
	if err != nil {
		t.Fatalf("CompileRule: %v", err)
	}
	if rule != nil {
		t.Fatalf("expected nil rule for empty expression")
	}
	keep, err := rule.Keep(NewsEnv{Title: "anything"})
	if err != nil || !keep {
		t.Fatalf("expected nil rule to keep, got %v (%v)", keep, err)
	}
	if rule.String() != "true" {
		t.Fatalf("unexpected nil rule string %q", rule.String())
	}
}

func TestRuleEvaluatesTitleAndAge(t *testing.T) {
	rule, err := CompileRule(`Title contains "Spurs" && AgeHours < 24`)
	if err != nil {
		t.Fatalf("CompileRule: %v", err)
	}
	cases := []struct {
		env  NewsEnv
		want bool
	}{
		{NewsEnv{Title: "Spurs win", AgeHours: 2}, true},
		{NewsEnv{Title: "Spurs win", AgeHours: 30}, false},
		{NewsEnv{Title: "Cricket", AgeHours: 1}, false},
	}
	for _, tc := range cases {
		got, err := rule.Keep(tc.env)
		if err != nil {
			t.Fatalf("Keep(%+v): %v", tc.env, err)
		}
		if got != tc.want {
			t.Fatalf("Keep(%+v)=%v want %v", tc.env, got, tc.want)
		}
	}
}

func TestRuleSeesCategoriesAndPublishedAt(t *testing.T) {
	rule, err := CompileRule(`"Transfers" in Categories && PublishedAt.Year() == 2026`)
	if err != nil {
		t.Fatalf("CompileRule: %v", err)
	}
	keep, err := rule.Keep(NewsEnv{
		Categories:  []string{"Football", "Transfers"},
		PublishedAt: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
	})
	if err != nil || !keep {
		t.Fatalf("expected keep, got %v (%v)", keep, err)
	}
}

func TestCompileRuleRejectsInvalid(t *testing.T) {
	for _, expression := range []string{`Title +`, `len(Title)`, `Unknown == 1`} {
		if _, err := CompileRule(expression); err == nil {
			t.Fatalf("expected compile error for %q", expression)
		}
	}
}
