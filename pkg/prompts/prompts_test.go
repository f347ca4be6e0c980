package prompts

import (
	"testing"
)

func TestStatsLine(t *testing.T) {
	want := "canonity, corruption, sanity, trust, fate (0~10)"
	if got := StatsLine(); got != want {
		t.Errorf("StatsLine() = %q, want %q", got, want)
	}
}

func TestChoiceRules(t *testing.T) {
	rules := ChoiceRules()
	if len(rules) != 2 {
		t.Fatalf("Expected 2 choice rules, got %d", len(rules))
	}
	if want := "매 장면 선택지 4개 고정: A=📜, B=⚠️, C=🩸, D=❓"; rules[0] != want {
		t.Errorf("rules[0] = %q, want %q", rules[0], want)
	}
	if want := "각 선택지는 delta(정수 -3~+3)를 포함한다."; rules[1] != want {
		t.Errorf("rules[1] = %q, want %q", rules[1], want)
	}
}
