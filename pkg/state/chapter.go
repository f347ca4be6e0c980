package state

import (
	"errors"
	"fmt"
	"strings"
)

// Chapter is one step of the fixed, totally ordered story roadmap.
type Chapter string

const (
	ChapterPrologue  Chapter = "PROLOGUE"
	ChapterLetter    Chapter = "LETTER"
	ChapterDiagon    Chapter = "DIAGON"
	ChapterPlatform  Chapter = "PLATFORM"
	ChapterSorting   Chapter = "SORTING"
	ChapterClasses   Chapter = "CLASSES"
	ChapterWhispers  Chapter = "WHISPERS"
	ChapterMirror    Chapter = "MIRROR"
	ChapterSuspicion Chapter = "SUSPICION"
	ChapterTrials    Chapter = "TRIALS"
	ChapterDescent   Chapter = "DESCENT"
	ChapterCore      Chapter = "CORE"
	ChapterEnding    Chapter = "ENDING"
)

var chapters = []Chapter{
	ChapterPrologue,
	ChapterLetter,
	ChapterDiagon,
	ChapterPlatform,
	ChapterSorting,
	ChapterClasses,
	ChapterWhispers,
	ChapterMirror,
	ChapterSuspicion,
	ChapterTrials,
	ChapterDescent,
	ChapterCore,
	ChapterEnding,
}

// ErrUnknownChapter is returned when a chapter name is not on the roadmap.
var ErrUnknownChapter = errors.New("unknown chapter")

// Chapters returns the roadmap in order.
func Chapters() []Chapter {
	out := make([]Chapter, len(chapters))
	copy(out, chapters)
	return out
}

// ParseChapter resolves a chapter name, ignoring case and surrounding space.
func ParseChapter(s string) (Chapter, error) {
	c := Chapter(strings.ToUpper(strings.TrimSpace(s)))
	if c.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownChapter, s)
	}
	return c, nil
}

// Index returns the chapter's position on the roadmap, or -1.
func (c Chapter) Index() int {
	for i, ch := range chapters {
		if ch == c {
			return i
		}
	}
	return -1
}

func (c Chapter) Valid() bool {
	return c.Index() >= 0
}

// Next returns the following chapter. ENDING is its own successor.
func (c Chapter) Next() Chapter {
	i := c.Index()
	if i < 0 || i == len(chapters)-1 {
		return c
	}
	return chapters[i+1]
}

// ClampChapter enforces chapter ordering: a scene may stay on the current
// chapter or advance exactly one step. Anything else is clamped to current
// and reported as a violation (ok == false).
func ClampChapter(current, proposed Chapter) (Chapter, bool) {
	ci, pi := current.Index(), proposed.Index()
	if ci < 0 {
		return proposed, pi >= 0
	}
	if pi == ci || pi == ci+1 {
		return proposed, true
	}
	return current, false
}

// Roadmap renders the chapter sequence for prompts and help output.
func Roadmap() string {
	names := make([]string, len(chapters))
	for i, c := range chapters {
		names[i] = string(c)
	}
	return strings.Join(names, " → ")
}
