package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/conditionals"
	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
)

// Section headings of the system instruction.
const (
	headingCopyright   = "[저작권 안전 규칙]"
	headingProtagonist = "[주인공]"
	headingStats       = "[수치]"
	headingChoices     = "[선택지 규칙]"
	headingEndings     = "[엔딩 규칙]"
	headingRoadmap     = "[Book I 진행표]"
	headingStyle       = "[문체]"
	headingOutput      = "[출력 규칙]"
	headingSchema      = "JSON 스키마:"
	headingState       = "[현재 상태]"
)

const titleLine = "이 게임의 제목은 “%s”다."

const roadmapRule = "아직 도달하지 않은 챕터의 사건/장소/인물은 미리 등장시키지 마라."

// TurnInstruction closes every user prompt.
const TurnInstruction = "지금 current_chapter에 맞는 다음 장면 1개를 생성하라.\nJSON만 출력하라."

// EndingInstruction is appended when the current state already satisfies an
// ending rule.
const EndingInstruction = "엔딩 조건이 충족되었다: %s END. chapter를 ENDING으로 하고 ending을 채워 이야기를 마무리하라."

// StatsLine lists the attributes and their range.
func StatsLine() string {
	return fmt.Sprintf("%s (%d~%d)", strings.Join(state.StatNames, ", "), state.MinStat, state.MaxStat)
}

// ChoiceRules describes the fixed choice slots and the delta range.
func ChoiceRules() []string {
	slots := make([]string, scene.ChoiceCount)
	for i := range slots {
		slots[i] = scene.ChoiceIDs[i] + "=" + scene.ChoiceTags[i]
	}
	return []string{
		fmt.Sprintf("매 장면 선택지 %d개 고정: %s", scene.ChoiceCount, strings.Join(slots, ", ")),
		fmt.Sprintf("각 선택지는 delta(정수 %d~%+d)를 포함한다.", state.MinDelta, state.MaxDelta),
	}
}

// EndingRuleLines renders the ending rules in priority order, one per line.
// They come from the same data the resolver evaluates.
func EndingRuleLines() []string {
	rules := state.EndingRules()
	lines := make([]string, 0, len(rules))
	for _, r := range rules {
		lines = append(lines, fmt.Sprintf("%s → %s END", conditionals.Describe(r.When), r.Type))
	}
	return lines
}
