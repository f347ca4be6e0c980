package scene

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/textfilter"
)

// Report lists what the coercer had to repair. It is informational only.
type Report struct {
	// Fallback is set when the input was not an object and the canonical
	// fallback scene was returned as-is.
	Fallback bool
	Repairs  []string
}

// Repaired reports whether anything in the input was defaulted or bounded.
func (r Report) Repaired() bool {
	return r.Fallback || len(r.Repairs) > 0
}

func (r *Report) add(format string, args ...any) {
	r.Repairs = append(r.Repairs, fmt.Sprintf(format, args...))
}

// Coerce maps an arbitrary decoded JSON value onto a valid Scene. It never
// fails, and Coerce of an already-coerced scene returns it unchanged.
func Coerce(raw any) Scene {
	s, _ := CoerceWithReport(raw)
	return s
}

// CoerceWithReport is Coerce plus a description of every repair applied.
func CoerceWithReport(raw any) (Scene, Report) {
	var r Report
	out := Fallback()

	obj, ok := raw.(map[string]any)
	if !ok || obj == nil {
		r.Fallback = true
		return out, r
	}

	if v, present := obj["chapter"]; present {
		out.Chapter = coerceChapter(v, out.Chapter, &r)
	}
	if v, present := obj["layer"]; present {
		out.Layer = coerceLayer(v, out.Layer, &r)
	}
	if v, present := obj["speaker"]; present {
		out.Speaker = coerceText("speaker", v, out.Speaker, MaxSpeakerLen, &r)
	}
	if v, present := obj["portrait"]; present {
		out.Portrait = coercePortrait(v, out.Portrait, &r)
	}
	if v, present := obj["text"]; present {
		out.Text = coerceText("text", v, out.Text, MaxTextLen, &r)
	}
	if v, present := obj["choices"]; present {
		out.Choices = coerceChoices(v, out.Choices, &r)
	} else {
		r.add("choices: missing")
	}
	if v, present := obj["flags"]; present {
		out.Flags = coerceFlags(v, &r)
	}
	if v, present := obj["ending"]; present {
		out.Ending = coerceEnding(v, &r)
	}

	return out, r
}

func coerceChapter(v any, def state.Chapter, r *Report) state.Chapter {
	s, ok := v.(string)
	if !ok {
		r.add("chapter: not a string")
		return def
	}
	c, err := state.ParseChapter(s)
	if err != nil {
		r.add("chapter: unknown %q", textfilter.Truncate(s, 32))
		return def
	}
	return c
}

func coerceLayer(v any, def Layer, r *Report) Layer {
	if s, ok := v.(string); ok {
		l := Layer(strings.ToUpper(strings.TrimSpace(s)))
		for _, known := range layers {
			if l == known {
				return l
			}
		}
	}
	r.add("layer: invalid")
	return def
}

func coercePortrait(v any, def Portrait, r *Report) Portrait {
	if s, ok := v.(string); ok {
		p := Portrait(strings.ToLower(strings.TrimSpace(s)))
		for _, known := range portraits {
			if p == known {
				return p
			}
		}
	}
	r.add("portrait: invalid")
	return def
}

// coerceText stringifies and bounds v, keeping def when the result is empty.
func coerceText(field string, v any, def string, limit int, r *Report) string {
	raw := stringify(v)
	s := textfilter.Bound(raw, limit)
	if s == "" {
		r.add("%s: empty", field)
		return def
	}
	if textfilter.Len(textfilter.Clean(raw)) > limit {
		r.add("%s: truncated", field)
	}
	return s
}

func coerceChoices(v any, def [ChoiceCount]Choice, r *Report) [ChoiceCount]Choice {
	arr, ok := v.([]any)
	if !ok || len(arr) != ChoiceCount {
		r.add("choices: expected %d entries", ChoiceCount)
		return def
	}

	var out [ChoiceCount]Choice
	for i := range out {
		m, _ := arr[i].(map[string]any)
		out[i] = coerceChoice(i, m, def[i], r)
	}
	return out
}

// coerceChoice reconciles slot i. Identity and tag are fixed per position;
// values supplied by the model for them are ignored.
func coerceChoice(i int, m map[string]any, base Choice, r *Report) Choice {
	out := Choice{
		ID:    ChoiceIDs[i],
		Tag:   ChoiceTags[i],
		Label: base.Label,
	}
	if m == nil {
		r.add("choices[%d]: not an object", i)
		out.Delta = base.Delta
		return out
	}

	if id, ok := m["id"].(string); ok && id != out.ID {
		r.add("choices[%d].id: %q replaced", i, textfilter.Truncate(id, 8))
	}
	if tag, ok := m["tag"].(string); ok && tag != out.Tag {
		r.add("choices[%d].tag: replaced", i)
	}

	if v, present := m["label"]; present {
		out.Label = coerceText(fmt.Sprintf("choices[%d].label", i), v, base.Label, MaxLabelLen, r)
	}

	dm, _ := m["delta"].(map[string]any)
	d := base.Delta
	for _, name := range state.StatNames {
		def, _ := base.Delta.Stat(name)
		raw, present := dm[name]
		n, ok := toInt(raw)
		if !ok {
			if present {
				r.add("choices[%d].delta.%s: not a number", i, name)
			}
			d = d.With(name, def)
			continue
		}
		clamped := state.Clamp(n, state.MinDelta, state.MaxDelta)
		if clamped != n {
			r.add("choices[%d].delta.%s: clamped", i, name)
		}
		d = d.With(name, clamped)
	}
	out.Delta = d
	return out
}

func coerceFlags(v any, r *Report) []string {
	arr, ok := v.([]any)
	if !ok {
		r.add("flags: not an array")
		return []string{}
	}
	if len(arr) > MaxFlags {
		r.add("flags: capped at %d", MaxFlags)
		arr = arr[:MaxFlags]
	}
	out := make([]string, 0, len(arr))
	for _, f := range arr {
		out = append(out, textfilter.Bound(stringify(f), MaxFlagLen))
	}
	return out
}

// coerceEnding keeps only well-formed endings; it never invents one.
func coerceEnding(v any, r *Report) *Ending {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		r.add("ending: not an object")
		return nil
	}
	t, _ := m["type"].(string)
	typ, ok := state.ParseEndingType(t)
	if !ok {
		r.add("ending.type: invalid")
		return nil
	}
	return &Ending{
		Type:  typ,
		Title: textfilter.Bound(stringify(m["title"]), MaxTitleLen),
		Text:  textfilter.Bound(stringify(m["text"]), MaxTextLen),
	}
}

// stringify renders a decoded JSON value as text. null becomes "".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// toInt coerces numbers and numeric strings, rounding to the nearest integer.
func toInt(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		return t, true
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// anything past this is clamped anyway
	f = math.Max(math.Min(f, 1e6), -1e6)
	return int(math.Round(f)), true
}
