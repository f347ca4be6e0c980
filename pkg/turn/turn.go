package turn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/textfilter"
)

// MaxLogLen bounds the rolling story log a client may send.
const MaxLogLen = 1600

// ErrInvalidRequest is wrapped by every request decoding failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one turn sent by the client. The server keeps no state between
// turns; the client resends everything each time.
type Request struct {
	State      state.StoryState `json:"state"`
	Chapter    state.Chapter    `json:"chapter"`
	LastChoice *scene.Choice    `json:"lastChoice"`
	Flags      []string         `json:"flags"`
	Log        string           `json:"log"`
}

// rawRequest defers decoding so each field can fall back independently.
type rawRequest struct {
	State      json.RawMessage `json:"state"`
	Chapter    json.RawMessage `json:"chapter"`
	LastChoice json.RawMessage `json:"lastChoice"`
	Flags      json.RawMessage `json:"flags"`
	Log        json.RawMessage `json:"log"`
}

// NewRequest returns the request used when the client sends nothing.
func NewRequest() Request {
	return Request{
		State:   state.DefaultStoryState(),
		Chapter: state.ChapterPrologue,
		Flags:   []string{},
	}
}

// Decode reads a request body. Missing or null fields take their defaults,
// a non-array flags value becomes empty and a non-string log is dropped.
// A body that is not an object, a malformed state or an unknown chapter
// is an error wrapping ErrInvalidRequest.
func Decode(r io.Reader) (Request, error) {
	req := NewRequest()

	var raw rawRequest
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return Request{}, fmt.Errorf("%w: body must be a JSON object: %w", ErrInvalidRequest, err)
	}

	if present(raw.State) {
		s, err := decodeState(raw.State)
		if err != nil {
			return Request{}, fmt.Errorf("%w: state: %w", ErrInvalidRequest, err)
		}
		req.State = s
	}

	if present(raw.Chapter) {
		var name string
		if err := json.Unmarshal(raw.Chapter, &name); err != nil {
			return Request{}, fmt.Errorf("%w: chapter must be a string", ErrInvalidRequest)
		}
		c, err := state.ParseChapter(name)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		req.Chapter = c
	}

	if present(raw.LastChoice) {
		var c scene.Choice
		if err := json.Unmarshal(raw.LastChoice, &c); err != nil {
			return Request{}, fmt.Errorf("%w: lastChoice: %w", ErrInvalidRequest, err)
		}
		req.LastChoice = &c
	}

	var flags []any
	if present(raw.Flags) && json.Unmarshal(raw.Flags, &flags) == nil {
		for _, f := range flags {
			if s, ok := f.(string); ok {
				req.Flags = append(req.Flags, s)
			}
		}
	}

	var log string
	if present(raw.Log) && json.Unmarshal(raw.Log, &log) == nil {
		req.Log = log
	}

	req.Normalize()
	return req, nil
}

// decodeState reads each attribute as a number and rounds it. Missing or
// null attributes keep their defaults and unknown keys are ignored.
func decodeState(b json.RawMessage) (state.StoryState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return state.StoryState{}, err
	}
	s := state.DefaultStoryState()
	for _, name := range state.StatNames {
		v, ok := fields[name]
		if !ok || !present(v) {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return state.StoryState{}, fmt.Errorf("%s: %w", name, err)
		}
		// Normalize clamps to the stat range afterwards
		f = math.Max(math.Min(f, 1e6), -1e6)
		s = s.With(name, int(math.Round(f)))
	}
	return s, nil
}

func present(m json.RawMessage) bool {
	return len(m) > 0 && string(m) != "null"
}

// Normalize clamps the state, defaults an unknown chapter and bounds the
// free-text fields. It is safe to call more than once.
func (r *Request) Normalize() {
	r.State = r.State.Clamp()
	if !r.Chapter.Valid() {
		r.Chapter = state.ChapterPrologue
	}
	if r.Flags == nil {
		r.Flags = []string{}
	}
	if len(r.Flags) > scene.MaxFlags {
		r.Flags = r.Flags[len(r.Flags)-scene.MaxFlags:]
	}
	for i, f := range r.Flags {
		r.Flags[i] = textfilter.Bound(f, scene.MaxFlagLen)
	}
	if r.LastChoice != nil {
		c := *r.LastChoice
		c.Label = textfilter.Bound(c.Label, scene.MaxLabelLen)
		c.Delta = c.Delta.Clamp()
		r.LastChoice = &c
	}
	r.Log = textfilter.Truncate(r.Log, MaxLogLen)
}

// ErrorResponse is the body of every failed turn. It never carries scene data.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

// Hint is returned for GET requests on the turn endpoint.
type Hint struct {
	OK   bool   `json:"ok"`
	Hint string `json:"hint"`
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry of the prompt sent to a model.
type Message struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}
