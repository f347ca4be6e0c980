package scene

import (
	"github.com/jwebster45206/divergence-engine/pkg/state"
)

// Bounds applied by the coercer.
const (
	ChoiceCount   = 4
	MaxTextLen    = 520
	MaxLabelLen   = 60
	MaxSpeakerLen = 40
	MaxTitleLen   = 60
	MaxFlags      = 24
	MaxFlagLen    = 64
)

// Layer is the narrative register of a scene.
type Layer string

const (
	LayerCanon   Layer = "CANON"
	LayerMixed   Layer = "MIXED"
	LayerCorrupt Layer = "CORRUPT"
)

// Portrait is the speaker's displayed expression.
type Portrait string

const (
	PortraitNeutral Portrait = "neutral"
	PortraitHappy   Portrait = "happy"
	PortraitAngry   Portrait = "angry"
	PortraitSad     Portrait = "sad"
	PortraitShocked Portrait = "shocked"
	PortraitSmirk   Portrait = "smirk"
	PortraitFear    Portrait = "fear"
)

var (
	layers    = []Layer{LayerCanon, LayerMixed, LayerCorrupt}
	portraits = []Portrait{PortraitNeutral, PortraitHappy, PortraitAngry, PortraitSad, PortraitShocked, PortraitSmirk, PortraitFear}
)

// ChoiceIDs and ChoiceTags are structural: slot i always carries
// ChoiceIDs[i] and ChoiceTags[i].
var (
	ChoiceIDs  = [ChoiceCount]string{"A", "B", "C", "D"}
	ChoiceTags = [ChoiceCount]string{"📜", "⚠️", "🩸", "❓"}
)

// Choice is one of the four options offered by a scene.
type Choice struct {
	ID    string      `json:"id" jsonschema:"enum=A,enum=B,enum=C,enum=D"`
	Tag   string      `json:"tag" jsonschema:"enum=📜,enum=⚠️,enum=🩸,enum=❓"`
	Label string      `json:"label" jsonschema:"maxLength=60"`
	Delta state.Delta `json:"delta"`
}

// Ending is the terminal payload of a playthrough.
type Ending struct {
	Type  state.EndingType `json:"type" jsonschema:"enum=GOOD,enum=BAD"`
	Title string           `json:"title"`
	Text  string           `json:"text"`
}

// Scene is one turn's narrative payload plus its four choices.
type Scene struct {
	Chapter  state.Chapter       `json:"chapter" jsonschema_description:"Current chapter on the roadmap"`
	Layer    Layer               `json:"layer" jsonschema:"enum=CANON,enum=MIXED,enum=CORRUPT"`
	Speaker  string              `json:"speaker"`
	Portrait Portrait            `json:"portrait" jsonschema:"enum=neutral,enum=happy,enum=angry,enum=sad,enum=shocked,enum=smirk,enum=fear"`
	Text     string              `json:"text" jsonschema:"maxLength=520" jsonschema_description:"2 to 6 sentences of narration"`
	Choices  [ChoiceCount]Choice `json:"choices"`
	Flags    []string            `json:"flags" jsonschema:"maxItems=24"`
	Ending   *Ending             `json:"ending" jsonschema:"nullable" jsonschema_description:"null unless the story has ended"`
}

// IsTerminal reports whether the scene ends the playthrough.
func (s Scene) IsTerminal() bool {
	return s.Ending != nil
}

// Choice returns the choice with the given id.
func (s Scene) Choice(id string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// Fallback returns the canonical default scene. Every call builds a fresh
// value so callers may modify the result freely.
func Fallback() Scene {
	return Scene{
		Chapter:  state.ChapterPrologue,
		Layer:    LayerCanon,
		Speaker:  "나 (베르)",
		Portrait: PortraitNeutral,
		Text:     "베르는 숨을 삼켰다. 이 세계는 분명, 원래의 흐름을 기억하고 있었다.",
		Choices: [ChoiceCount]Choice{
			{ID: "A", Tag: "📜", Label: "조용히 상황을 지켜본다", Delta: state.Delta{Canonity: 1}},
			{ID: "B", Tag: "⚠️", Label: "조심스럽게 질문한다", Delta: state.Delta{Corruption: 1}},
			{ID: "C", Tag: "🩸", Label: "금기를 건드린다", Delta: state.Delta{Canonity: -1, Corruption: 2, Sanity: -1, Trust: -1, Fate: 1}},
			{ID: "D", Tag: "❓", Label: "유혹을 따른다", Delta: state.Delta{Corruption: 1, Sanity: -1, Fate: 1}},
		},
		Flags:  []string{},
		Ending: nil,
	}
}
