package state

// Stat names as they appear on the wire and in ending rules.
const (
	StatCanonity   = "canonity"
	StatCorruption = "corruption"
	StatSanity     = "sanity"
	StatTrust      = "trust"
	StatFate       = "fate"
)

// Bounds for story attributes and for per-choice adjustments.
const (
	MinStat  = 0
	MaxStat  = 10
	MinDelta = -3
	MaxDelta = 3
)

// StatNames lists the five attributes in canonical order.
var StatNames = []string{StatCanonity, StatCorruption, StatSanity, StatTrust, StatFate}

// StoryState is the five-attribute numeric game state. It is owned by the
// client and resent in full on every turn.
type StoryState struct {
	Canonity   int `json:"canonity"`
	Corruption int `json:"corruption"`
	Sanity     int `json:"sanity"`
	Trust      int `json:"trust"`
	Fate       int `json:"fate"`
}

// Delta is the signed adjustment a choice applies to a StoryState.
type Delta struct {
	Canonity   int `json:"canonity" jsonschema:"minimum=-3,maximum=3"`
	Corruption int `json:"corruption" jsonschema:"minimum=-3,maximum=3"`
	Sanity     int `json:"sanity" jsonschema:"minimum=-3,maximum=3"`
	Trust      int `json:"trust" jsonschema:"minimum=-3,maximum=3"`
	Fate       int `json:"fate" jsonschema:"minimum=-3,maximum=3"`
}

// DefaultStoryState is the state a new playthrough starts from.
func DefaultStoryState() StoryState {
	return StoryState{Canonity: 5, Corruption: 0, Sanity: 7, Trust: 6, Fate: 0}
}

// Stat implements conditionals.StatView.
func (s StoryState) Stat(name string) (int, bool) {
	switch name {
	case StatCanonity:
		return s.Canonity, true
	case StatCorruption:
		return s.Corruption, true
	case StatSanity:
		return s.Sanity, true
	case StatTrust:
		return s.Trust, true
	case StatFate:
		return s.Fate, true
	}
	return 0, false
}

// Clamp returns a copy with every attribute bounded to [MinStat, MaxStat].
func (s StoryState) Clamp() StoryState {
	return StoryState{
		Canonity:   Clamp(s.Canonity, MinStat, MaxStat),
		Corruption: Clamp(s.Corruption, MinStat, MaxStat),
		Sanity:     Clamp(s.Sanity, MinStat, MaxStat),
		Trust:      Clamp(s.Trust, MinStat, MaxStat),
		Fate:       Clamp(s.Fate, MinStat, MaxStat),
	}
}

// With returns a copy of s with the named attribute replaced. Unknown names
// leave s unchanged.
func (s StoryState) With(name string, v int) StoryState {
	return StoryState(Delta(s).With(name, v))
}

// Stat returns the adjustment for the named attribute.
func (d Delta) Stat(name string) (int, bool) {
	return StoryState(d).Stat(name)
}

// Clamp returns a copy with every field bounded to [MinDelta, MaxDelta].
func (d Delta) Clamp() Delta {
	return Delta{
		Canonity:   Clamp(d.Canonity, MinDelta, MaxDelta),
		Corruption: Clamp(d.Corruption, MinDelta, MaxDelta),
		Sanity:     Clamp(d.Sanity, MinDelta, MaxDelta),
		Trust:      Clamp(d.Trust, MinDelta, MaxDelta),
		Fate:       Clamp(d.Fate, MinDelta, MaxDelta),
	}
}

// With returns a copy of d with the named field replaced. Unknown names
// leave d unchanged.
func (d Delta) With(name string, v int) Delta {
	switch name {
	case StatCanonity:
		d.Canonity = v
	case StatCorruption:
		d.Corruption = v
	case StatSanity:
		d.Sanity = v
	case StatTrust:
		d.Trust = v
	case StatFate:
		d.Fate = v
	}
	return d
}

// Clamp bounds v to the closed interval [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
