package state

import (
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/conditionals"
)

// EndingType is the terminal outcome of a playthrough.
type EndingType string

const (
	EndingGood EndingType = "GOOD"
	EndingBad  EndingType = "BAD"
)

// ParseEndingType resolves GOOD or BAD, ignoring case.
func ParseEndingType(s string) (EndingType, bool) {
	switch EndingType(strings.ToUpper(strings.TrimSpace(s))) {
	case EndingGood:
		return EndingGood, true
	case EndingBad:
		return EndingBad, true
	}
	return "", false
}

// EndingRule maps a stat condition to an ending.
type EndingRule struct {
	Type EndingType
	When conditionals.When
}

// EndingRules returns the ending predicates in priority order. Failure
// endings are listed first so they win when both could match.
func EndingRules() []EndingRule {
	return []EndingRule{
		{
			Type: EndingBad,
			When: conditionals.When{Any: []conditionals.Condition{
				conditionals.AtLeast(StatCorruption, MaxStat),
				conditionals.AtLeast(StatFate, MaxStat),
			}},
		},
		{
			Type: EndingBad,
			When: conditionals.When{Any: []conditionals.Condition{
				conditionals.AtMost(StatSanity, MinStat),
				conditionals.AtMost(StatTrust, MinStat),
			}},
		},
		{
			Type: EndingGood,
			When: conditionals.When{All: []conditionals.Condition{
				conditionals.AtLeast(StatCanonity, MaxStat),
				conditionals.AtMost(StatCorruption, 3),
			}},
		},
	}
}

// ResolveEnding evaluates the ending rules against s. ok is false while the
// game should continue.
func ResolveEnding(s StoryState) (EndingType, bool) {
	for _, rule := range EndingRules() {
		if conditionals.EvaluateWhen(rule.When, s) {
			return rule.Type, true
		}
	}
	return "", false
}

// Advance applies a chosen delta to the prior state, clamps the result and
// resolves whether the playthrough has ended.
func Advance(prior StoryState, d Delta) (StoryState, EndingType, bool) {
	d = d.Clamp()
	prior = prior.Clamp()
	next := StoryState{
		Canonity:   prior.Canonity + d.Canonity,
		Corruption: prior.Corruption + d.Corruption,
		Sanity:     prior.Sanity + d.Sanity,
		Trust:      prior.Trust + d.Trust,
		Fate:       prior.Fate + d.Fate,
	}.Clamp()

	ending, ended := ResolveEnding(next)
	return next, ending, ended
}
