package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/textfilter"
)

// ErrExtraction is returned when no JSON value can be recovered from model output.
var ErrExtraction = errors.New("could not extract JSON from model output")

// maxDecodeAttempts bounds how many '{' positions are tried before falling
// back to first-brace/last-brace slicing.
const maxDecodeAttempts = 8

// Extract pulls a best-effort JSON value out of noisy model text. It strips
// code fences, tolerates prose before and after the object, and unwraps one
// level of double encoding. Any failure is total: no partial value is returned.
//
// Candidate objects are decoded from each '{' in order, so braces inside
// string values are handled. Stray prose that itself contains a valid JSON
// object before the real payload will be picked up instead of the payload.
// A candidate that starts like an object but fails to decode, such as a
// reply cut off mid-choice, ends extraction with an error.
func Extract(text string) (any, error) {
	v, err := parseValue(textfilter.StripCodeFence(text))
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		v, err = parseValue(textfilter.StripCodeFence(s))
		if err != nil {
			return nil, fmt.Errorf("double-encoded payload: %w", err)
		}
	}
	return v, nil
}

func parseValue(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrExtraction)
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case map[string]any, string:
			return v, nil
		}
	}

	start := 0
	for attempt := 0; attempt < maxDecodeAttempts; attempt++ {
		i := strings.IndexByte(s[start:], '{')
		if i < 0 {
			break
		}
		pos := start + i
		var obj map[string]any
		err := json.NewDecoder(strings.NewReader(s[pos:])).Decode(&obj)
		if err == nil {
			return obj, nil
		}
		if opensObject(s[pos:]) {
			// later braces belong to the broken payload
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		start = pos + 1
	}

	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first < 0 || last < first {
		return nil, fmt.Errorf("%w: no JSON object found", ErrExtraction)
	}
	if err := json.Unmarshal([]byte(s[first:last+1]), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return v, nil
}

// opensObject reports whether s starts with '{' followed by a key or a
// closing brace, as opposed to a brace in prose.
func opensObject(s string) bool {
	rest := strings.TrimLeft(s[1:], " \t\r\n")
	return strings.HasPrefix(rest, `"`) || strings.HasPrefix(rest, "}")
}
