package textfilter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ```json, ```JSON, ``` etc. at the very start of the text
	leadingFenceRX = regexp.MustCompile("(?i)^```[a-z0-9_-]*[ \t]*\r?\n?")
	// ``` at the very end of the text
	trailingFenceRX = regexp.MustCompile("\r?\n?```[ \t]*$")
)

// Clean repairs invalid UTF-8, drops control characters other than newline
// and tab, normalises to NFC and trims surrounding whitespace.
func Clean(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(norm.NFC.String(s))
}

// Truncate shortens s to at most limit runes. A non-positive limit returns "".
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Bound cleans s and caps it at limit runes. The result is stable:
// Bound(Bound(s, n), n) == Bound(s, n).
func Bound(s string, limit int) string {
	s = Truncate(Clean(s), limit)
	return strings.TrimSpace(norm.NFC.String(s))
}

// StripCodeFence removes a leading ``` marker (with optional language tag)
// and a trailing ``` marker. Matching is case-insensitive.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFenceRX.ReplaceAllString(s, "")
	s = trailingFenceRX.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Len returns the length of s in runes.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}
