package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var durationTerm = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)([a-zµ]+)`)

// ParseDuration parses Go duration strings and additionally accepts d (24h)
// and w (7d) units, e.g. "30d", "1w2d", "1.5d", "-2w".
func ParseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if !strings.ContainsAny(s, "dw") {
		return time.ParseDuration(s)
	}

	var b strings.Builder
	if s[0] == '+' || s[0] == '-' {
		b.WriteByte(s[0])
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	for s != "" {
		m := durationTerm.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		s = s[len(m[0]):]
		number, unit := m[1], m[2]

		hoursPerUnit := 0.0
		switch unit {
		case "d":
			hoursPerUnit = 24
		case "w":
			hoursPerUnit = 7 * 24
		default:
			b.WriteString(number + unit)
			continue
		}
		n, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		b.WriteString(strconv.FormatFloat(n*hoursPerUnit, 'f', -1, 64) + "h")
	}
	return time.ParseDuration(b.String())
}

// Duration is a YAML-friendly duration using ParseDuration syntax.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
