package conditionals

import (
	"fmt"
	"strings"
)

// Condition is an inclusive bound check on a single named stat.
// A nil Min or Max leaves that side of the range open.
type Condition struct {
	Stat string `json:"stat" yaml:"stat"`
	Min  *int   `json:"min,omitempty" yaml:"min,omitempty"`
	Max  *int   `json:"max,omitempty" yaml:"max,omitempty"`
}

// When groups conditions. Every condition in All must hold, and when Any is
// non-empty at least one of its conditions must hold as well.
type When struct {
	Any []Condition `json:"any,omitempty" yaml:"any,omitempty"`
	All []Condition `json:"all,omitempty" yaml:"all,omitempty"`
}

// StatView provides the minimal interface needed to evaluate conditions.
// This avoids import cycles with the state package
type StatView interface {
	Stat(name string) (int, bool)
}

// AtLeast matches when stat >= n.
func AtLeast(stat string, n int) Condition {
	return Condition{Stat: stat, Min: &n}
}

// AtMost matches when stat <= n.
func AtMost(stat string, n int) Condition {
	return Condition{Stat: stat, Max: &n}
}

// Holds reports whether the condition is met. Unknown stats never match.
func (c Condition) Holds(v StatView) bool {
	if c.Min == nil && c.Max == nil {
		return false
	}
	value, ok := v.Stat(c.Stat)
	if !ok {
		return false
	}
	if c.Min != nil && value < *c.Min {
		return false
	}
	if c.Max != nil && value > *c.Max {
		return false
	}
	return true
}

func (c Condition) String() string {
	switch {
	case c.Min != nil && c.Max != nil:
		return fmt.Sprintf("%d ≤ %s ≤ %d", *c.Min, c.Stat, *c.Max)
	case c.Min != nil:
		return fmt.Sprintf("%s ≥ %d", c.Stat, *c.Min)
	case c.Max != nil:
		return fmt.Sprintf("%s ≤ %d", c.Stat, *c.Max)
	default:
		return c.Stat
	}
}

// IsEmpty reports whether the clause has no conditions at all.
func (w When) IsEmpty() bool {
	return len(w.Any) == 0 && len(w.All) == 0
}

// EvaluateWhen checks if the conditions in a When clause are met.
// An empty clause never matches.
func EvaluateWhen(w When, v StatView) bool {
	if w.IsEmpty() {
		return false
	}

	for _, c := range w.All {
		if !c.Holds(v) {
			return false
		}
	}

	if len(w.Any) == 0 {
		return true
	}
	for _, c := range w.Any {
		if c.Holds(v) {
			return true
		}
	}
	return false
}

// Describe renders the clause as a single human-readable line, e.g.
// "corruption ≥ 10 OR fate ≥ 10".
func Describe(w When) string {
	var parts []string
	if len(w.All) > 0 {
		all := make([]string, len(w.All))
		for i, c := range w.All {
			all[i] = c.String()
		}
		parts = append(parts, strings.Join(all, " AND "))
	}
	if len(w.Any) > 0 {
		anyOf := make([]string, len(w.Any))
		for i, c := range w.Any {
			anyOf[i] = c.String()
		}
		joined := strings.Join(anyOf, " OR ")
		if len(parts) > 0 && len(w.Any) > 1 {
			joined = "(" + joined + ")"
		}
		parts = append(parts, joined)
	}
	return strings.Join(parts, " AND ")
}
